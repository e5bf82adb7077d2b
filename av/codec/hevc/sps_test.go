// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"testing"

	"github.com/cnotch/vdec/av/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawSPS_DecodeString(t *testing.T) {
	tests := []struct {
		name      string
		b64       string
		wantW     int
		wantH     int
		wantFR    float64
		level     int
		chroma    codec.ChromaMode
		bitDepth  int
		dpb       int
		seqMode   codec.SequenceMode
		wantNumRP int
	}{
		{
			"base64_1",
			"QgEBAWAAAAMAkAAAAwAAAwBdoAKAgC0WWVmkkyuAQAAA+kAAF3AC",
			1280, 720, float64(24000) / float64(1001),
			31, codec.Chroma420, 8, 6, codec.SequenceProgressive, 0,
		},
		{
			"base64_2",
			"QgEBBAgAAAMAnQgAAAMAAF2wAoCALRZZWaSTK4BAAAADAEAAAAeC",
			1280, 720, 30,
			31, codec.Chroma422, 10, 6, codec.SequenceProgressive, 0,
		},
		{
			"tpl500-265",
			"AAAAAUIBAQFgAAADAAADAAADAAADAJagAWggBln3ja5JMmuWMAgAAAMACAAAAwB4QA==",
			2880, 1620, 15,
			50, codec.Chroma420, 8, 8, codec.SequenceUnknown, 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sps := &RawSPS{}
			require.NoError(t, sps.DecodeString(tt.b64))
			assert.Equal(t, tt.wantW, sps.Width())
			assert.Equal(t, tt.wantH, sps.Height())
			assert.Equal(t, tt.wantFR, sps.FrameRate())
			assert.Equal(t, tt.level, sps.Level())
			assert.Equal(t, tt.chroma, codec.ChromaModeFromIdc(int(sps.ChromaFormatIdc)))
			assert.Equal(t, tt.bitDepth, sps.MaxBitDepth())
			assert.Equal(t, tt.dpb, sps.DpbCapacity())
			assert.Equal(t, tt.seqMode, sps.SequenceMode())
			assert.Len(t, sps.StRefPicSets, tt.wantNumRP)
		})
	}
}

func TestRawSPS_DecodeDeterministic(t *testing.T) {
	for _, b64 := range []string{
		"QgEBAWAAAAMAkAAAAwAAAwBdoAKAgC0WWVmkkyuAQAAA+kAAF3AC",
		"QgEBBAgAAAMAnQgAAAMAAF2wAoCALRZZWaSTK4BAAAADAEAAAAeC",
	} {
		var a, b RawSPS
		require.NoError(t, a.DecodeString(b64))
		require.NoError(t, b.DecodeString(b64))
		assert.Equal(t, a, b)
	}
}

func TestRawSPS_ShortTermRefPicSets(t *testing.T) {
	sps := &RawSPS{}
	require.NoError(t, sps.DecodeString("AAAAAUIBAQFgAAADAAADAAADAAADAJagAWggBln3ja5JMmuWMAgAAAMACAAAAwB4QA=="))
	require.Len(t, sps.StRefPicSets, 2)

	assert.Equal(t, 1, sps.StRefPicSets[0].NumDeltaPocs())
	assert.Equal(t, int32(-1), sps.StRefPicSets[0].DeltaPocS0[0])
	assert.Equal(t, 1, sps.StRefPicSets[0].NumUsedByCurr())
	assert.Equal(t, int32(-1), sps.StRefPicSets[1].DeltaPocS0[0])
	assert.Equal(t, 0, sps.StRefPicSets[1].NumUsedByCurr())

	assert.Equal(t, 2, sps.MaxDecPicBuffering())
	assert.Equal(t, 0, sps.MaxNumReorder())
	assert.Equal(t, 1<<16, sps.MaxPicOrderCntLsb())
	assert.Equal(t, 4, sps.CropInfo().Bottom)
}

func TestStRefPicSet_InterPrediction(t *testing.T) {
	data := testSPS{
		log2PocLsb: 4,
		rps: []testRPS{
			{neg: []int32{-1, -3}, pos: []int32{2}},
			// deltaRps -1 作用于 {-1,-3,+2} 及自身
			{deltaRps: -1, interUsed: []uint8{1, 1, 0, 1}},
		},
	}.bytes()

	sps := &RawSPS{}
	require.NoError(t, sps.Decode(data))
	require.Len(t, sps.StRefPicSets, 2)

	rps := sps.StRefPicSets[1]
	assert.Equal(t, uint8(1), rps.InterRefPicSetPredictionFlag)
	// 负方向：-1(自身)、-2、-4，正方向：+1，未使用的 +1 仍保留
	require.Equal(t, uint8(3), rps.NumNegativePics)
	assert.Equal(t, []int32{-1, -2, -4}, rps.DeltaPocS0[:3])
	assert.Equal(t, []uint8{1, 1, 1}, rps.UsedByCurrPicS0[:3])
	require.Equal(t, uint8(1), rps.NumPositivePics)
	assert.Equal(t, int32(1), rps.DeltaPocS1[0])
	assert.Equal(t, uint8(0), rps.UsedByCurrPicS1[0])
	assert.Equal(t, 3, rps.NumUsedByCurr())
}

func TestRawSPS_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"odd width", testSPS{width: 66}.bytes(), codec.ErrMalformed},
		{"height above limit", testSPS{height: 0xffff}.bytes(), codec.ErrMalformed},
		{"poc lsb bits", testSPS{log2PocLsb: 13}.bytes(), codec.ErrMalformed},
		{"dpb size", testSPS{maxDecPic: 16}.bytes(), codec.ErrMalformed},
		{"positive pictures", testSPS{maxDecPic: 1, rps: []testRPS{{neg: []int32{-1}, pos: []int32{1}}}}.bytes(), codec.ErrMalformed},
		{"truncated", testSPS{}.bytes()[:12], codec.ErrMalformed},
		{"not sps", testPPS{}.bytes(), codec.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sps := &RawSPS{}
			err := sps.Decode(tt.data)
			require.Error(t, err)
			assert.Equal(t, tt.want, codec.Outcome(err))
		})
	}
}

func TestRawSPS_DpbCapacity(t *testing.T) {
	tests := []struct {
		name  string
		sps   testSPS
		want  int
	}{
		{"small picture", testSPS{level: 93}, 16},
		{"half", testSPS{level: 30, width: 192, height: 96}, 12},
		{"three quarters", testSPS{level: 30, width: 192, height: 144}, 8},
		{"full", testSPS{level: 30, width: 192, height: 192}, 6},
		{"dec pic buffering", testSPS{level: 30, width: 192, height: 192, maxDecPic: 9}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sps := &RawSPS{}
			require.NoError(t, sps.Decode(tt.sps.bytes()))
			assert.Equal(t, tt.want, sps.DpbCapacity())
		})
	}
}

func TestRawSPS_Requirements(t *testing.T) {
	sps := &RawSPS{}
	require.NoError(t, sps.Decode(testSPS{width: 128, height: 64}.bytes()))
	req := sps.Requirements()
	assert.NoError(t, codec.CheckCompatible(req, codec.StreamSettings{}, codec.DefaultHWBitDepth))
}

func Benchmark_SPSDecode(b *testing.B) {
	spsstr := "QgEBAWAAAAMAkAAAAwAAAwBdoAKAgC0WWVmkkyuAQAAA+kAAF3ACQgEBAWAAAAMAkAAAAwAAAwBdoAKAgC0WWVmkkyuAQAAA+kAAF3AC"

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			sps := &RawSPS{}
			_ = sps.DecodeString(spsstr)
		}
	})
}
