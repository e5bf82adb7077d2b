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

// newTestParamSets SPS 0 带两个 rps: {-1} 与 {-1,-2}；
// PPS 0 默认，PPS 1 允许列表修改且 L0 默认两个参考。
func newTestParamSets(t *testing.T) *ParamSets {
	ps := NewParamSets()
	id, err := ps.ParseSPS(testSPS{
		log2PocLsb: 4,
		rps: []testRPS{
			{neg: []int32{-1}},
			{neg: []int32{-1, -2}},
		},
	}.bytes())
	require.NoError(t, err)
	require.Equal(t, 0, id)

	id, err = ps.ParsePPS(testPPS{dependent: true}.bytes())
	require.NoError(t, err)
	require.Equal(t, 0, id)
	id, err = ps.ParsePPS(testPPS{id: 1, listsMod: true, refsL0: 1}.bytes())
	require.NoError(t, err)
	require.Equal(t, 1, id)
	return ps
}

// 同一对 SPS/PPS 重复解析得到相同的结果
func TestParamSets_DecodeDeterministic(t *testing.T) {
	tests := []struct {
		name string
		sps  []byte
		pps  []byte
	}{
		{"default", testSPS{}.bytes(), testPPS{}.bytes()},
		{"rps and long term", testSPS{
			log2PocLsb: 4,
			longTerm:   true,
			rps:        []testRPS{{neg: []int32{-1}}, {neg: []int32{-1, -2}}},
		}.bytes(), testPPS{id: 1, listsMod: true, refsL0: 1}.bytes()},
		{"dependent segments", testSPS{width: 128, height: 64}.bytes(), testPPS{id: 5, dependent: true}.bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parse := func() (*RawSPS, *RawPPS) {
				ps := NewParamSets()
				_, err := ps.ParseSPS(tt.sps)
				require.NoError(t, err)
				id, err := ps.ParsePPS(tt.pps)
				require.NoError(t, err)
				sps, ok := ps.SPS(0)
				require.True(t, ok)
				pps, ok := ps.PPS(id)
				require.True(t, ok)
				return sps, pps
			}
			sps1, pps1 := parse()
			sps2, pps2 := parse()
			assert.Equal(t, sps1, sps2)
			assert.Equal(t, pps1, pps2)
		})
	}
}

func TestParseSliceHeader_IDR(t *testing.T) {
	ps := newTestParamSets(t)
	h, err := ParseSliceHeader(testSlice{nut: NalIdrWRadl, typ: SliceI}.bytes(), ps, 0, nil)
	require.NoError(t, err)

	assert.True(t, h.IsIRAP())
	assert.Equal(t, uint8(1), h.FirstSliceSegmentInPicFlag)
	assert.Equal(t, codec.SliceI, h.CodecType())
	assert.Nil(t, h.RPS())
	assert.Equal(t, 0, h.NumPicTotalCurr)
	assert.Equal(t, uint8(1), h.PicOutputFlag)
	assert.Equal(t, 0, h.HeaderBits%8)
	assert.NotNil(t, h.SPS)
}

func TestParseSliceHeader_RefPicSets(t *testing.T) {
	ps := newTestParamSets(t)
	tests := []struct {
		name      string
		slice     testSlice
		wantS0    []int32
		wantS1    []int32
		wantTotal int
	}{
		{
			"sps set",
			testSlice{nut: NalTrailR, typ: SliceP, pocLsb: 5, rpsIdx: 1, numSets: 2},
			[]int32{-1, -2}, nil, 2,
		},
		{
			"slice set",
			testSlice{nut: NalTrailR, typ: SliceB, pocLsb: 5, rpsIdx: -1, numSets: 2,
				rps: testRPS{neg: []int32{-1, -3}, pos: []int32{1}}},
			[]int32{-1, -3}, []int32{1}, 3,
		},
		{
			"predicted slice set",
			testSlice{nut: NalTrailN, typ: SliceP, pocLsb: 9, rpsIdx: -1, numSets: 2,
				rps: testRPS{deltaRps: -1, interUsed: []uint8{1, 1, 1}}},
			[]int32{-1, -2, -3}, nil, 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseSliceHeader(tt.slice.bytes(), ps, 0, nil)
			require.NoError(t, err)
			assert.Equal(t, uint16(tt.slice.pocLsb), h.SlicePicOrderCntLsb)

			rps := h.RPS()
			require.NotNil(t, rps)
			require.Equal(t, len(tt.wantS0), int(rps.NumNegativePics))
			require.Equal(t, len(tt.wantS1), int(rps.NumPositivePics))
			for i, d := range tt.wantS0 {
				assert.Equal(t, d, rps.DeltaPocS0[i])
			}
			for i, d := range tt.wantS1 {
				assert.Equal(t, d, rps.DeltaPocS1[i])
			}
			assert.Equal(t, tt.wantTotal, h.NumPicTotalCurr)
		})
	}
}

func TestParseSliceHeader_ListModification(t *testing.T) {
	ps := newTestParamSets(t)
	s := testSlice{nut: NalTrailR, typ: SliceP, ppsID: 1, pocLsb: 3, rpsIdx: 1, numSets: 2,
		listEntry: []uint64{1, 0}}
	h, err := ParseSliceHeader(s.bytes(), ps, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, h.NumRefIdxActive(0))
	assert.Equal(t, 0, h.NumRefIdxActive(1))
	assert.Equal(t, uint8(1), h.RefPicListModificationFlag[0])
	assert.Equal(t, []uint8{1, 0}, h.ListEntry[0][:2])

	s.listEntry = []uint64{}
	h, err = ParseSliceHeader(s.bytes(), ps, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), h.RefPicListModificationFlag[0])
}

func TestParseSliceHeader_Dependent(t *testing.T) {
	ps := newTestParamSets(t)
	first, err := ParseSliceHeader(testSlice{nut: NalTrailR, typ: SliceP, pocLsb: 7, rpsIdx: 0, numSets: 2}.bytes(), ps, 0, nil)
	require.NoError(t, err)

	dep := testSlice{nut: NalTrailR, address: 4, dependent: true}
	h, err := ParseSliceHeader(dep.bytes(), ps, 0, first)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), h.DependentSliceSegmentFlag)
	assert.Equal(t, uint32(4), h.SliceSegmentAddress)
	assert.Equal(t, uint8(0), h.FirstSliceSegmentInPicFlag)
	assert.Equal(t, first.SliceType, h.SliceType)
	assert.Equal(t, first.SlicePicOrderCntLsb, h.SlicePicOrderCntLsb)
	assert.Equal(t, first.NumPicTotalCurr, h.NumPicTotalCurr)

	_, err = ParseSliceHeader(dep.bytes(), ps, 0, nil)
	require.Error(t, err)
	assert.Equal(t, codec.ErrMalformed, codec.Outcome(err))

	// 独立分片的后续分片
	h, err = ParseSliceHeader(testSlice{nut: NalTrailR, address: 8, typ: SliceI, pocLsb: 7, rpsIdx: 0, numSets: 2}.bytes(), ps, 0, first)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), h.DependentSliceSegmentFlag)
	assert.Equal(t, uint32(8), h.SliceSegmentAddress)
}

func TestParseSliceHeader_Errors(t *testing.T) {
	ps := newTestParamSets(t)

	t.Run("irap slice must be intra", func(t *testing.T) {
		_, err := ParseSliceHeader(testSlice{nut: NalCraNut, typ: SliceP, rpsIdx: 0, numSets: 2}.bytes(), ps, 0, nil)
		require.Error(t, err)
		assert.Equal(t, codec.ErrMalformed, codec.Outcome(err))
	})

	t.Run("not a slice", func(t *testing.T) {
		_, err := ParseSliceHeader(testPPS{}.bytes(), ps, 0, nil)
		require.Error(t, err)
		assert.Equal(t, codec.ErrUnsupported, codec.Outcome(err))
	})

	t.Run("missing pps substitutes the last one", func(t *testing.T) {
		h, err := ParseSliceHeader(testSlice{nut: NalIdrNLp, typ: SliceI, ppsID: 9}.bytes(), ps, 1, nil)
		require.Error(t, err)
		assert.Equal(t, codec.ErrMalformed, codec.Outcome(err))
		pps, _ := ps.PPS(1)
		assert.Same(t, pps, h.PPS)
		assert.NotNil(t, h.SPS)
	})

	t.Run("truncated", func(t *testing.T) {
		data := testSlice{nut: NalTrailR, typ: SliceP, pocLsb: 5, rpsIdx: 1, numSets: 2}.bytes()
		h, err := ParseSliceHeader(data[:3], ps, 0, nil)
		require.Error(t, err)
		assert.Equal(t, codec.ErrMalformed, codec.Outcome(err))
		assert.NotNil(t, h.PPS)
	})
}

func TestParamSets_PPSNeedsSPS(t *testing.T) {
	ps := NewParamSets()
	_, err := ps.ParsePPS(testPPS{id: 3, spsID: 1}.bytes())
	require.Error(t, err)
	assert.Equal(t, codec.ErrMalformed, codec.Outcome(err))
	assert.Equal(t, codec.NeverParsed, ps.PPSState(3))
}

func TestParamSets_StaleKeepsValue(t *testing.T) {
	ps := newTestParamSets(t)
	good, ok := ps.SPS(0)
	require.True(t, ok)

	_, err := ps.ParseSPS(testSPS{log2PocLsb: 13}.bytes())
	require.Error(t, err)
	assert.Equal(t, codec.Stale, ps.SPSState(0))

	sps, ok := ps.SPS(0)
	require.True(t, ok)
	assert.Same(t, good, sps)

	_, err = ps.ParseSPS(testSPS{width: 128}.bytes())
	require.NoError(t, err)
	assert.Equal(t, codec.Current, ps.SPSState(0))
	sps, _ = ps.SPS(0)
	assert.Equal(t, 128, sps.Width())
}

func TestParamSets_Poison(t *testing.T) {
	ps := newTestParamSets(t)
	ps.PoisonSPS(0)
	assert.Equal(t, codec.Poisoned, ps.SPSState(0))
	_, ok := ps.SPS(0)
	assert.False(t, ok)
	_, _, ok = ps.Active(0)
	assert.False(t, ok)

	pps, sps := ps.Fallback(0)
	assert.NotNil(t, pps)
	assert.NotNil(t, sps)
}

func TestParseSEI(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantRP   *RecoveryPoint
		wantBPID int
		wantErr  bool
	}{
		{
			"recovery point",
			[]byte{0x4e, 0x01, 0x06, 0x01, 0xd0, 0x80},
			&RecoveryPoint{RecoveryPocCnt: 0, ExactMatchFlag: 1}, -1, false,
		},
		{
			"buffering period and recovery point",
			[]byte{0x4e, 0x01, 0x00, 0x01, 0x24, 0x06, 0x01, 0x4c, 0x80},
			&RecoveryPoint{RecoveryPocCnt: 1, BrokenLinkFlag: 1}, 3, false,
		},
		{
			"suffix with unknown payload",
			[]byte{0x50, 0x01, 0x05, 0x02, 0x11, 0x22, 0x80},
			nil, -1, false,
		},
		{"overflow", []byte{0x4e, 0x01, 0x06, 0x08, 0xd0, 0x80}, nil, -1, true},
		{"not sei", []byte{0x42, 0x01, 0x06, 0x01, 0xd0, 0x80}, nil, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sei, err := ParseSEI(tt.data)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRP, sei.RecoveryPoint)
			assert.Equal(t, tt.wantBPID, sei.BufferingPeriodSPS)
		})
	}
}
