// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dpb

import (
	"sort"
	"testing"

	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/av/codec/h264"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func avcSPS(pocType, maxRefs uint8, gaps bool) *h264.RawSPS {
	sps := &h264.RawSPS{
		LevelIdc:                  30,
		PicWidthInMbsMinus1:       3,
		PicHeightInMapUnitsMinus1: 3,
		FrameMbsOnlyFlag:          1,
		PicOrderCntType:           pocType,
		MaxNumRefFrames:           maxRefs,
	}
	if gaps {
		sps.GapsInFrameNumAllowedFlag = 1
	}
	return sps
}

func avcSlice(sps *h264.RawSPS, typ uint8, ref bool, fn, lsb uint16) *h264.SliceHeader {
	h := &h264.SliceHeader{
		SliceType:      typ,
		FrameNum:       fn,
		PicOrderCntLsb: lsb,
		SPS:            sps,
	}
	h.NalUnitHeader.NalUnitType = h264.NalSlice
	if ref {
		h.NalUnitHeader.NalRefIdc = 1
	}
	return h
}

func avcIDR(sps *h264.RawSPS) *h264.SliceHeader {
	h := avcSlice(sps, h264.SliceI, true, 0, 0)
	h.NalUnitHeader.NalUnitType = h264.NalIdrSlice
	return h
}

type avcHarness struct {
	m   *AVC
	rec *recorder
}

func newAVCHarness(sps *h264.RawSPS) *avcHarness {
	rec := &recorder{}
	m := NewAVC(New(NewPool(PoolSize(sps.DpbCapacity(), 2)), rec.output))
	m.Configure(sps)
	return &avcHarness{m: m, rec: rec}
}

// decode 按解码器的顺序处理一帧：间隙、POC、参考列表、标记
func (hs *avcHarness) decode(t *testing.T, h *h264.SliceHeader) (*Picture, RefLists, bool) {
	hs.m.Begin()
	hs.m.FillFrameNumGap(h)
	p, err := hs.m.DPB().NewPicture()
	require.NoError(t, err)
	p.POC = hs.m.ComputePOC(h)
	lists, ok := hs.m.RefLists(h)
	hs.m.EndFrame(p, h)
	hs.m.Commit()
	hs.m.DPB().Completed(p.ID, codec.Success)
	return p, lists, ok
}

func residentPOCs(d *DPB) []int32 {
	var pocs []int32
	for _, p := range d.Pictures() {
		pocs = append(pocs, p.POC)
	}
	sort.Slice(pocs, func(i, j int) bool { return pocs[i] < pocs[j] })
	return pocs
}

func listPOCs(list []RefEntry) []int32 {
	pocs := make([]int32, len(list))
	for i, e := range list {
		pocs[i] = -1
		if p, ok := e.Get(); ok {
			pocs[i] = p.POC
		}
	}
	return pocs
}

func TestAVC_IDRAndPSlices(t *testing.T) {
	sps := avcSPS(0, 4, false)
	hs := newAVCHarness(sps)

	var pocs []int32
	p, _, ok := hs.decode(t, avcIDR(sps))
	require.True(t, ok)
	pocs = append(pocs, p.POC)
	for fn := uint16(1); fn <= 4; fn++ {
		p, lists, ok := hs.decode(t, avcSlice(sps, h264.SliceP, true, fn, fn))
		require.True(t, ok)
		assert.Equal(t, []int32{int32(fn) - 1}, listPOCs(lists[0]))
		pocs = append(pocs, p.POC)
	}

	assert.Equal(t, []int32{0, 1, 2, 3, 4}, pocs)
	assert.Equal(t, []int32{0, 1, 2, 3, 4}, hs.rec.pocs)
	// 滑动窗口移除了 IDR
	d := hs.m.DPB()
	for _, p := range d.Pictures() {
		assert.Equal(t, ShortTerm, p.Ref)
	}
	assert.Equal(t, []int32{1, 2, 3, 4}, residentPOCs(d))
}

func TestAVC_FrameNumGap(t *testing.T) {
	sps := avcSPS(0, 4, true)
	hs := newAVCHarness(sps)
	hs.decode(t, avcIDR(sps))
	hs.decode(t, avcSlice(sps, h264.SliceP, true, 1, 2))
	hs.decode(t, avcSlice(sps, h264.SliceP, true, 2, 4))

	h := avcSlice(sps, h264.SliceP, true, 5, 10)
	require.True(t, hs.m.HasFrameNumGap(h))
	hs.m.Begin()
	n := hs.m.FillFrameNumGap(h)
	hs.m.Commit()
	assert.Equal(t, 2, n)

	var gaps []int
	for _, p := range hs.m.DPB().Pictures() {
		if p.NonExisting {
			gaps = append(gaps, p.FrameNum)
			assert.Equal(t, -1, p.Buffer)
		}
	}
	assert.Equal(t, []int{3, 4}, gaps)

	hs.decode(t, h)
	d := hs.m.DPB()
	assert.Equal(t, 0, d.Overflows())
	assert.True(t, d.Len() <= d.Capacity())
	var refs []int
	for _, p := range d.Pictures() {
		if p.IsReference() {
			refs = append(refs, p.FrameNum)
		}
	}
	sort.Ints(refs)
	assert.Equal(t, []int{2, 3, 4, 5}, refs)
	// 非存在帧不输出
	assert.Equal(t, []int32{0, 2, 4, 10}, hs.rec.pocs)
}

func TestAVC_FrameNumGapNotAllowed(t *testing.T) {
	sps := avcSPS(0, 4, false)
	hs := newAVCHarness(sps)
	hs.decode(t, avcIDR(sps))

	h := avcSlice(sps, h264.SliceP, true, 3, 6)
	assert.True(t, hs.m.HasFrameNumGap(h))
	assert.Equal(t, 0, hs.m.FillFrameNumGap(h))
}

func TestAVC_LargeGapBounded(t *testing.T) {
	sps := avcSPS(2, 2, true)
	sps.Log2MaxFrameNumMinus4 = 12
	hs := newAVCHarness(sps)
	hs.decode(t, avcIDR(sps))

	hs.m.Begin()
	n := hs.m.FillFrameNumGap(avcSlice(sps, h264.SliceP, true, 60000, 0))
	hs.m.Commit()
	// 报告全部丢失的 frame_num，只插入 max_num_ref_frames 个
	assert.Equal(t, 59999, n)
	short, long := hs.m.DPB().NumRefs()
	assert.Equal(t, 2, short)
	assert.Equal(t, 0, long)
	var gaps []int
	for _, p := range hs.m.DPB().Pictures() {
		if p.NonExisting {
			gaps = append(gaps, p.FrameNum)
		}
	}
	assert.Equal(t, []int{59998, 59999}, gaps)
}

func TestAVC_POCType0(t *testing.T) {
	tests := []struct {
		name string
		lsbs []uint16
		want []int32
	}{
		{"increasing", []uint16{0, 2, 4, 6}, []int32{0, 2, 4, 6}},
		{"wrap forward", []uint16{0, 6, 12, 2, 8}, []int32{0, 6, 12, 18, 24}},
		{"step back over wrap", []uint16{0, 6, 12, 2, 14}, []int32{0, 6, 12, 18, 14}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sps := avcSPS(0, 4, false)
			hs := newAVCHarness(sps)
			var got []int32
			for i, lsb := range tt.lsbs {
				h := avcSlice(sps, h264.SliceP, true, uint16(i), lsb)
				if i == 0 {
					h = avcIDR(sps)
				}
				p, _, _ := hs.decode(t, h)
				got = append(got, p.POC)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAVC_POCType1And2(t *testing.T) {
	type pic struct {
		ref bool
		fn  uint16
	}
	seq := []pic{{true, 0}, {true, 1}, {false, 2}, {true, 2}}
	tests := []struct {
		name    string
		pocType uint8
		want    []int32
	}{
		{"type 1", 1, []int32{0, 2, 1, 4}},
		{"type 2", 2, []int32{0, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sps := avcSPS(tt.pocType, 4, false)
			sps.NumRefFramesInPicOrderCntCycle = 1
			sps.OffsetForRefFrame[0] = 2
			sps.OffsetForNonRefPic = -1
			hs := newAVCHarness(sps)
			var got []int32
			for i, s := range seq {
				h := avcSlice(sps, h264.SliceP, s.ref, s.fn, 0)
				if i == 0 {
					h = avcIDR(sps)
				}
				p, _, _ := hs.decode(t, h)
				got = append(got, p.POC)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAVC_POCType2FrameNumWrap(t *testing.T) {
	sps := avcSPS(2, 4, false)
	hs := newAVCHarness(sps)
	hs.decode(t, avcIDR(sps))
	for fn := uint16(1); fn < 16; fn++ {
		hs.decode(t, avcSlice(sps, h264.SliceP, true, fn, 0))
	}
	p, _, _ := hs.decode(t, avcSlice(sps, h264.SliceP, true, 0, 0))
	assert.Equal(t, int32(32), p.POC)
}

// buildRefs 解码 IDR 和 n 个 P 帧，POC = 2*frame_num
func buildRefs(t *testing.T, hs *avcHarness, sps *h264.RawSPS, n int) {
	hs.decode(t, avcIDR(sps))
	for fn := 1; fn <= n; fn++ {
		hs.decode(t, avcSlice(sps, h264.SliceP, true, uint16(fn), uint16(2*fn)))
	}
}

func TestAVC_PListModification(t *testing.T) {
	tests := []struct {
		name string
		mods []h264.RefPicListModification
		want []int32
	}{
		{"default", nil, []int32{6, 4, 2}},
		{"move oldest first", []h264.RefPicListModification{{Idc: 0, AbsDiffPicNumMinus1: 2}}, []int32{2, 6, 4}},
		{"subtract then add", []h264.RefPicListModification{
			{Idc: 0, AbsDiffPicNumMinus1: 2},
			{Idc: 1, AbsDiffPicNumMinus1: 0},
		}, []int32{2, 4, 6}},
		{"missing picture", []h264.RefPicListModification{{Idc: 0, AbsDiffPicNumMinus1: 9}}, []int32{-1, 6, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sps := avcSPS(0, 4, false)
			hs := newAVCHarness(sps)
			buildRefs(t, hs, sps, 3)

			h := avcSlice(sps, h264.SliceP, true, 4, 8)
			h.NumRefIdxL0ActiveMinus1 = 2
			if tt.mods != nil {
				h.RefPicListModificationFlag[0] = 1
				h.RefPicListModification[0] = tt.mods
			}
			hs.m.ComputePOC(h)
			lists, ok := hs.m.RefLists(h)
			assert.Equal(t, tt.want, listPOCs(lists[0]))
			assert.Equal(t, tt.want[0] != -1, ok)
			assert.Nil(t, lists[1])
		})
	}
}

func TestAVC_BLists(t *testing.T) {
	tests := []struct {
		name   string
		lsb    uint16
		l0, l1 []int32
	}{
		{"between references", 4, []int32{0, 8}, []int32{8, 0}},
		{"after all references", 12, []int32{8, 0}, []int32{0, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sps := avcSPS(0, 4, false)
			hs := newAVCHarness(sps)
			hs.decode(t, avcIDR(sps))
			hs.decode(t, avcSlice(sps, h264.SliceP, true, 1, 8))

			h := avcSlice(sps, h264.SliceB, false, 2, tt.lsb)
			h.NumRefIdxL0ActiveMinus1 = 1
			h.NumRefIdxL1ActiveMinus1 = 1
			_, lists, ok := hs.decode(t, h)
			require.True(t, ok)
			assert.Equal(t, tt.l0, listPOCs(lists[0]))
			assert.Equal(t, tt.l1, listPOCs(lists[1]))
		})
	}
}

func TestAVC_RefListIncomplete(t *testing.T) {
	sps := avcSPS(0, 4, false)
	hs := newAVCHarness(sps)
	hs.decode(t, avcIDR(sps))

	h := avcSlice(sps, h264.SliceP, true, 1, 2)
	h.NumRefIdxL0ActiveMinus1 = 2
	_, lists, ok := hs.decode(t, h)
	assert.False(t, ok)
	assert.Len(t, lists[0], 3)
	assert.Equal(t, 1, lists.Usable(0))

	// I 片不需要参考帧
	_, _, ok = hs.decode(t, avcSlice(sps, h264.SliceI, true, 2, 4))
	assert.True(t, ok)
}

func TestAVC_MMCO(t *testing.T) {
	sps := avcSPS(0, 4, false)

	t.Run("unmark short-term", func(t *testing.T) {
		hs := newAVCHarness(sps)
		buildRefs(t, hs, sps, 2)
		h := avcSlice(sps, h264.SliceP, true, 3, 6)
		h.AdaptiveRefPicMarkingModeFlag = 1
		h.MMCOs = []h264.MMCO{{Op: 1, DifferenceOfPicNumsMinus1: 0}}
		hs.decode(t, h)
		assert.Equal(t, []int32{0, 2, 6}, residentPOCs(hs.m.DPB()))
	})

	t.Run("long-term and list", func(t *testing.T) {
		hs := newAVCHarness(sps)
		hs.decode(t, avcIDR(sps))
		h := avcSlice(sps, h264.SliceP, true, 1, 2)
		h.AdaptiveRefPicMarkingModeFlag = 1
		h.MMCOs = []h264.MMCO{{Op: 4, MaxLongTermFrameIdxPlus1: 1}, {Op: 6, LongTermFrameIdx: 0}}
		lt, _, _ := hs.decode(t, h)
		assert.Equal(t, LongTerm, lt.Ref)
		hs.decode(t, avcSlice(sps, h264.SliceP, true, 2, 4))

		h = avcSlice(sps, h264.SliceP, true, 3, 6)
		h.NumRefIdxL0ActiveMinus1 = 2
		_, lists, ok := hs.decode(t, h)
		require.True(t, ok)
		assert.Equal(t, []int32{4, 0, 2}, listPOCs(lists[0]))

		h = avcSlice(sps, h264.SliceP, true, 4, 8)
		h.NumRefIdxL0ActiveMinus1 = 1
		h.RefPicListModificationFlag[0] = 1
		h.RefPicListModification[0] = []h264.RefPicListModification{{Idc: 2, LongTermPicNum: 0}}
		_, lists, ok = hs.decode(t, h)
		require.True(t, ok)
		assert.Equal(t, []int32{2, 6}, listPOCs(lists[0]))
	})

	t.Run("short-term to long-term", func(t *testing.T) {
		hs := newAVCHarness(sps)
		buildRefs(t, hs, sps, 2)
		h := avcSlice(sps, h264.SliceP, true, 3, 6)
		h.AdaptiveRefPicMarkingModeFlag = 1
		h.MMCOs = []h264.MMCO{
			{Op: 4, MaxLongTermFrameIdxPlus1: 2},
			{Op: 3, DifferenceOfPicNumsMinus1: 2, LongTermFrameIdx: 1},
		}
		hs.decode(t, h)
		p, ok := findPOC(hs.m.DPB(), 0)
		require.True(t, ok)
		assert.Equal(t, LongTerm, p.Ref)
		assert.Equal(t, 1, p.LongTermFrameIdx)

		// 缩小 MaxLongTermFrameIdx 移除该长期参考帧
		h = avcSlice(sps, h264.SliceP, true, 4, 8)
		h.AdaptiveRefPicMarkingModeFlag = 1
		h.MMCOs = []h264.MMCO{{Op: 4, MaxLongTermFrameIdxPlus1: 1}}
		hs.decode(t, h)
		_, long := hs.m.DPB().NumRefs()
		assert.Equal(t, 0, long)
	})

	t.Run("memory reset", func(t *testing.T) {
		hs := newAVCHarness(sps)
		buildRefs(t, hs, sps, 2)
		h := avcSlice(sps, h264.SliceP, true, 3, 6)
		h.AdaptiveRefPicMarkingModeFlag = 1
		h.MMCOs = []h264.MMCO{{Op: 5}}
		p, _, _ := hs.decode(t, h)
		assert.Equal(t, int32(0), p.POC)
		assert.Equal(t, 0, p.FrameNum)
		assert.Equal(t, []int32{0}, residentPOCs(hs.m.DPB()))

		next := avcSlice(sps, h264.SliceP, true, 1, 2)
		assert.False(t, hs.m.HasFrameNumGap(next))
		p, _, _ = hs.decode(t, next)
		assert.Equal(t, int32(2), p.POC)
	})
}

func findPOC(d *DPB, poc int32) (*Picture, bool) {
	for _, p := range d.Pictures() {
		if p.POC == poc {
			return p, true
		}
	}
	return nil, false
}

func TestAVC_Overflow(t *testing.T) {
	sps := avcSPS(0, 1, false)
	sps.PicWidthInMbsMinus1 = 119
	sps.PicHeightInMapUnitsMinus1 = 66
	hs := newAVCHarness(sps)
	require.Equal(t, 1, hs.m.DPB().Capacity())
	hs.decode(t, avcIDR(sps))

	h := avcSlice(sps, h264.SliceP, true, 1, 2)
	h.AdaptiveRefPicMarkingModeFlag = 1
	hs.m.Begin()
	p, err := hs.m.DPB().NewPicture()
	require.NoError(t, err)
	p.POC = hs.m.ComputePOC(h)
	assert.False(t, hs.m.EndFrame(p, h))
	hs.m.Commit()

	d := hs.m.DPB()
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, 1, d.Overflows())
}

func TestAVC_Rollback(t *testing.T) {
	sps := avcSPS(0, 4, true)
	hs := newAVCHarness(sps)
	buildRefs(t, hs, sps, 1)
	d := hs.m.DPB()
	before := residentPOCs(d)
	avail := d.pool.Available()

	h := avcSlice(sps, h264.SliceP, true, 4, 8)
	hs.m.Begin()
	require.Equal(t, 2, hs.m.FillFrameNumGap(h))
	_, err := d.NewPicture()
	require.NoError(t, err)
	hs.m.Rollback()

	assert.Equal(t, before, residentPOCs(d))
	assert.Equal(t, avail, d.pool.Available())
	assert.True(t, hs.m.HasFrameNumGap(h))
	assert.False(t, hs.m.HasFrameNumGap(avcSlice(sps, h264.SliceP, true, 2, 4)))
}

func TestAVC_NonRefBypass(t *testing.T) {
	sps := avcSPS(0, 1, false)
	sps.PicWidthInMbsMinus1 = 119
	sps.PicHeightInMapUnitsMinus1 = 66
	sps.Vui.MaxNumReorderFrames = 1
	hs := newAVCHarness(sps)
	hs.decode(t, avcIDR(sps))
	hs.decode(t, avcSlice(sps, h264.SliceP, true, 1, 4))
	// B 帧比待输出的 P 帧早，DPB 已满时不存储直接输出
	hs.decode(t, avcSlice(sps, h264.SliceB, false, 2, 2))

	d := hs.m.DPB()
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, 0, d.Overflows())
	assert.Equal(t, []int32{0, 2}, hs.rec.pocs)
	d.Flush()
	assert.Equal(t, []int32{0, 2, 4}, hs.rec.pocs)
}
