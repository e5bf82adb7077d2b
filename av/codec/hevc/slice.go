// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
//
// Syntax from T-REC-H.265-201802 7.3.6
//
package hevc

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/utils"
	"github.com/cnotch/vdec/utils/bits"
)

// PredWeightTable pred_weight_table()，保存推导后的权重和偏移
type PredWeightTable struct {
	LumaLog2WeightDenom   uint8
	ChromaLog2WeightDenom uint8

	LumaWeightFlag   [2][MaxRefIdx]uint8
	ChromaWeightFlag [2][MaxRefIdx]uint8
	LumaWeight       [2][MaxRefIdx]int16
	LumaOffset       [2][MaxRefIdx]int16
	ChromaWeight     [2][MaxRefIdx][2]int16
	ChromaOffset     [2][MaxRefIdx][2]int16
}

// SliceHeader slice_segment_header()
type SliceHeader struct {
	NalUnitHeader RawNALUnitHeader

	FirstSliceSegmentInPicFlag uint8
	NoOutputOfPriorPicsFlag    uint8
	PicParameterSetID          uint8
	DependentSliceSegmentFlag  uint8
	SliceSegmentAddress        uint32

	SliceType     uint8
	PicOutputFlag uint8
	ColourPlaneID uint8

	SlicePicOrderCntLsb uint16

	ShortTermRefPicSetSpsFlag uint8
	ShortTermRefPicSetIdx     uint8
	// 片头自带的短期参考集
	StRefPicSet StRefPicSet

	NumLongTermSps  uint8
	NumLongTermPics uint8
	// 已按 lt_idx_sps 展开
	PocLsbLt               [MaxDpbSize]uint16
	UsedByCurrPicLt        [MaxDpbSize]uint8
	DeltaPocMsbPresentFlag [MaxDpbSize]uint8
	// DeltaPocMsbCycleLt 累计值 (7-52)
	DeltaPocMsbCycleLt [MaxDpbSize]uint32

	SliceTemporalMvpEnabledFlag uint8
	SliceSaoLumaFlag            uint8
	SliceSaoChromaFlag          uint8

	NumRefIdxActiveOverrideFlag uint8
	NumRefIdxL0ActiveMinus1     uint8
	NumRefIdxL1ActiveMinus1     uint8

	RefPicListModificationFlag [2]uint8
	ListEntry                  [2][MaxRefIdx]uint8

	MvdL1ZeroFlag            uint8
	CabacInitFlag            uint8
	CollocatedFromL0Flag     uint8
	CollocatedRefIdx         uint8
	PredWeightTable          PredWeightTable
	FiveMinusMaxNumMergeCand uint8

	SliceQpDelta    int8
	SliceCbQpOffset int8
	SliceCrQpOffset int8

	CuChromaQpOffsetEnabledFlag uint8

	DeblockingFilterOverrideFlag      uint8
	SliceDeblockingFilterDisabledFlag uint8
	SliceBetaOffsetDiv2               int8
	SliceTcOffsetDiv2                 int8

	SliceLoopFilterAcrossSlicesEnabledFlag uint8

	NumEntryPointOffsets   uint16
	OffsetLenMinus1        uint8
	EntryPointOffsetMinus1 []uint32

	SliceSegmentHeaderExtensionLength uint16

	// NumPicTotalCurr (7-55)
	NumPicTotalCurr int

	// HeaderBits 含 byte_alignment() 的片头长度（位）
	HeaderBits int

	// 片头引用的参数集；解析失败时为最后一个有效的 PPS
	PPS *RawPPS
	SPS *RawSPS
}

// NalType nal_unit_type
func (h *SliceHeader) NalType() int {
	return int(h.NalUnitHeader.NalUnitType)
}

// IsIRAP .
func (h *SliceHeader) IsIRAP() bool {
	return IsIRAP(h.NalType())
}

// CodecType codec neutral slice type.
func (h *SliceHeader) CodecType() codec.SliceType {
	switch h.SliceType {
	case SliceB:
		return codec.SliceB
	case SliceP:
		return codec.SliceP
	default:
		return codec.SliceI
	}
}

// RPS returns the short-term reference picture set of the picture, nil for IDR.
func (h *SliceHeader) RPS() *StRefPicSet {
	if IsIDR(h.NalType()) || h.SPS == nil {
		return nil
	}
	if h.ShortTermRefPicSetSpsFlag == 1 {
		return &h.SPS.StRefPicSets[h.ShortTermRefPicSetIdx]
	}
	return &h.StRefPicSet
}

// NumLongTerm num_long_term_sps + num_long_term_pics
func (h *SliceHeader) NumLongTerm() int {
	return int(h.NumLongTermSps) + int(h.NumLongTermPics)
}

// NumRefIdxActive returns num_ref_idx_lX_active_minus1 + 1, 0 when the
// slice type uses no list X.
func (h *SliceHeader) NumRefIdxActive(list int) int {
	switch {
	case h.SliceType == SliceI:
		return 0
	case list == 0:
		return int(h.NumRefIdxL0ActiveMinus1) + 1
	case h.SliceType == SliceB:
		return int(h.NumRefIdxL1ActiveMinus1) + 1
	}
	return 0
}

func ceilLog2(v int) int {
	n := 0
	for (1 << uint(n)) < v {
		n++
	}
	return n
}

// ParseSliceHeader parses a slice segment header against the parameter sets.
// A dependent slice segment copies the independent fields of prev, the header
// of the preceding segment in the picture. On a parameter set lookup failure
// the header is returned with the PPS at lastPPS substituted, together with
// the error.
func ParseSliceHeader(data []byte, ps *ParamSets, lastPPS int, prev *SliceHeader) (h *SliceHeader, err error) {
	h = &SliceHeader{}
	defer func() {
		if r := recover(); r != nil {
			err = codec.Malformedf("slice header truncated: %v", r)
		}
		if err != nil && h.PPS == nil {
			h.substitute(ps, lastPPS)
		}
	}()

	rbsp := utils.RemoveH264or5EmulationBytes(data)
	if len(rbsp) < 3 {
		return h, codec.Malformedf("slice: %d bytes is not enough", len(rbsp))
	}
	r := bits.NewReader(rbsp)
	if err = h.NalUnitHeader.decode(r); err != nil {
		return
	}
	nut := h.NalType()
	if !IsVCL(nut) {
		return h, codec.Unsupportedf("nal_unit_type %d is not a slice", nut)
	}

	h.FirstSliceSegmentInPicFlag = r.ReadBit()
	if IsIRAP(nut) {
		h.NoOutputOfPriorPicsFlag = r.ReadBit()
	}
	ppsID, ok := r.ReadUeMax(MaxPpsCount - 1)
	if !ok {
		return h, codec.Malformedf("slice_pic_parameter_set_id %d", ppsID)
	}
	h.PicParameterSetID = uint8(ppsID)
	pps, sps, ok := ps.Active(int(ppsID))
	if !ok {
		return h, codec.Malformedf("pps %d is not available", ppsID)
	}
	h.PPS, h.SPS = pps, sps

	if h.FirstSliceSegmentInPicFlag == 0 {
		if pps.DependentSliceSegmentsEnabledFlag == 1 {
			h.DependentSliceSegmentFlag = r.ReadBit()
		}
		ctbs := sps.PicSizeInCtbsY()
		h.SliceSegmentAddress = r.ReadUint32(ceilLog2(ctbs))
		if h.SliceSegmentAddress == 0 || h.SliceSegmentAddress >= uint32(ctbs) {
			return h, codec.Malformedf("slice_segment_address %d", h.SliceSegmentAddress)
		}
	}

	if h.DependentSliceSegmentFlag == 1 {
		if prev == nil || prev.PPS != pps {
			return h, codec.Malformedf("dependent slice segment without a preceding segment")
		}
		h.inherit(prev)
	} else if err = h.decodeIndependent(r, pps, sps); err != nil {
		return
	}

	if pps.TilesEnabledFlag == 1 || pps.EntropyCodingSyncEnabledFlag == 1 {
		if err = h.decodeEntryPoints(r, pps, sps); err != nil {
			return
		}
	}

	if pps.SliceSegmentHeaderExtensionPresentFlag == 1 {
		n, ok := r.ReadUeMax(256)
		if !ok {
			return h, codec.Malformedf("slice_segment_header_extension_length %d", n)
		}
		h.SliceSegmentHeaderExtensionLength = uint16(n)
		r.Skip(int(n) * 8)
	}

	// byte_alignment()
	if r.ReadBit() != 1 {
		return h, codec.Malformedf("alignment_bit_equal_to_one")
	}
	for !r.ByteAligned() {
		if r.ReadBit() != 0 {
			return h, codec.Malformedf("alignment_bit_equal_to_zero")
		}
	}

	h.HeaderBits = r.Offset()
	return h, nil
}

// inherit copies the independent slice segment fields of prev.
func (h *SliceHeader) inherit(prev *SliceHeader) {
	first, noOutput := h.FirstSliceSegmentInPicFlag, h.NoOutputOfPriorPicsFlag
	ppsID, addr := h.PicParameterSetID, h.SliceSegmentAddress
	nal := h.NalUnitHeader

	*h = *prev
	h.NalUnitHeader = nal
	h.FirstSliceSegmentInPicFlag, h.NoOutputOfPriorPicsFlag = first, noOutput
	h.PicParameterSetID, h.SliceSegmentAddress = ppsID, addr
	h.DependentSliceSegmentFlag = 1
	h.EntryPointOffsetMinus1 = nil
	h.NumEntryPointOffsets = 0
	h.OffsetLenMinus1 = 0
	h.SliceSegmentHeaderExtensionLength = 0
}

func (h *SliceHeader) decodeIndependent(r *bits.Reader, pps *RawPPS, sps *RawSPS) (err error) {
	nut := h.NalType()

	r.Skip(int(pps.NumExtraSliceHeaderBits)) // slice_reserved_flag
	st, ok := r.ReadUeMax(2)
	if !ok {
		return codec.Malformedf("slice_type %d", st)
	}
	h.SliceType = uint8(st)
	if IsIRAP(nut) && h.SliceType != SliceI {
		return codec.Malformedf("irap slice of type %d", h.SliceType)
	}

	h.PicOutputFlag = 1
	if pps.OutputFlagPresentFlag == 1 {
		h.PicOutputFlag = r.ReadBit()
	}
	if sps.SeparateColourPlaneFlag == 1 {
		h.ColourPlaneID = r.ReadUint8(2)
	}

	if !IsIDR(nut) {
		h.SlicePicOrderCntLsb = r.ReadUint16(int(sps.Log2MaxPicOrderCntLsbMinus4) + 4)
		if err = h.decodeRefPicSets(r, sps); err != nil {
			return
		}
		if sps.TemporalMvpEnabledFlag == 1 {
			h.SliceTemporalMvpEnabledFlag = r.ReadBit()
		}
	}

	if sps.SampleAdaptiveOffsetEnabledFlag == 1 {
		h.SliceSaoLumaFlag = r.ReadBit()
		if sps.ChromaFormatIdc != 0 {
			h.SliceSaoChromaFlag = r.ReadBit()
		}
	}

	if h.SliceType == SliceP || h.SliceType == SliceB {
		if err = h.decodeInter(r, pps, sps); err != nil {
			return
		}
	}

	qpBdOffset := 6 * int32(sps.BitDepthLumaMinus8)
	initQp := 26 + int32(pps.InitQpMinus26)
	qpDelta, ok := r.ReadSeRange(-qpBdOffset-initQp, 51-initQp)
	if !ok {
		return codec.Malformedf("slice_qp_delta %d", qpDelta)
	}
	h.SliceQpDelta = int8(qpDelta)

	if pps.SliceChromaQpOffsetsPresentFlag == 1 {
		cb, ok := r.ReadSeRange(-12, 12)
		if !ok || cb+int32(pps.CbQpOffset) < -12 || cb+int32(pps.CbQpOffset) > 12 {
			return codec.Malformedf("slice_cb_qp_offset %d", cb)
		}
		cr, ok := r.ReadSeRange(-12, 12)
		if !ok || cr+int32(pps.CrQpOffset) < -12 || cr+int32(pps.CrQpOffset) > 12 {
			return codec.Malformedf("slice_cr_qp_offset %d", cr)
		}
		h.SliceCbQpOffset, h.SliceCrQpOffset = int8(cb), int8(cr)
	}

	if pps.ChromaQpOffsetListEnabledFlag == 1 {
		h.CuChromaQpOffsetEnabledFlag = r.ReadBit()
	}

	if pps.DeblockingFilterOverrideEnabledFlag == 1 {
		h.DeblockingFilterOverrideFlag = r.ReadBit()
	}
	if h.DeblockingFilterOverrideFlag == 1 {
		h.SliceDeblockingFilterDisabledFlag = r.ReadBit()
		if h.SliceDeblockingFilterDisabledFlag == 0 {
			beta, ok1 := r.ReadSeRange(-6, 6)
			tc, ok2 := r.ReadSeRange(-6, 6)
			if !ok1 || !ok2 {
				return codec.Malformedf("deblocking offsets %d/%d", beta, tc)
			}
			h.SliceBetaOffsetDiv2, h.SliceTcOffsetDiv2 = int8(beta), int8(tc)
		}
	} else {
		h.SliceDeblockingFilterDisabledFlag = pps.DeblockingFilterDisabledFlag
		h.SliceBetaOffsetDiv2 = pps.BetaOffsetDiv2
		h.SliceTcOffsetDiv2 = pps.TcOffsetDiv2
	}

	h.SliceLoopFilterAcrossSlicesEnabledFlag = pps.LoopFilterAcrossSlicesEnabledFlag
	if pps.LoopFilterAcrossSlicesEnabledFlag == 1 &&
		(h.SliceSaoLumaFlag == 1 || h.SliceSaoChromaFlag == 1 || h.SliceDeblockingFilterDisabledFlag == 0) {
		h.SliceLoopFilterAcrossSlicesEnabledFlag = r.ReadBit()
	}
	return nil
}

func (h *SliceHeader) decodeRefPicSets(r *bits.Reader, sps *RawSPS) error {
	numSets := int(sps.NumShortTermRefPicSets)
	h.ShortTermRefPicSetSpsFlag = r.ReadBit()
	if h.ShortTermRefPicSetSpsFlag == 0 {
		if err := h.StRefPicSet.decode(r, numSets, sps.StRefPicSets, sps.MaxDecPicBuffering()-1); err != nil {
			return err
		}
	} else {
		if numSets == 0 {
			return codec.Malformedf("short_term_ref_pic_set_sps_flag without sps sets")
		}
		if numSets > 1 {
			idx := int(r.ReadUint8(ceilLog2(numSets)))
			if idx >= numSets {
				return codec.Malformedf("short_term_ref_pic_set_idx %d", idx)
			}
			h.ShortTermRefPicSetIdx = uint8(idx)
		}
	}
	rps := h.RPS()

	if sps.LongTermRefPicsPresentFlag == 1 {
		if sps.NumLongTermRefPicsSps > 0 {
			n, ok := r.ReadUeMax(uint32(sps.NumLongTermRefPicsSps))
			if !ok {
				return codec.Malformedf("num_long_term_sps %d", n)
			}
			h.NumLongTermSps = uint8(n)
		}
		limit := MaxDpbSize - rps.NumDeltaPocs() - int(h.NumLongTermSps)
		if limit < 0 {
			limit = 0
		}
		n, ok := r.ReadUeMax(uint32(limit))
		if !ok {
			return codec.Malformedf("num_long_term_pics %d", n)
		}
		h.NumLongTermPics = uint8(n)

		for i := 0; i < h.NumLongTerm(); i++ {
			if i < int(h.NumLongTermSps) {
				idx := 0
				if sps.NumLongTermRefPicsSps > 1 {
					idx = int(r.ReadUint8(ceilLog2(int(sps.NumLongTermRefPicsSps))))
					if idx >= int(sps.NumLongTermRefPicsSps) {
						return codec.Malformedf("lt_idx_sps %d", idx)
					}
				}
				h.PocLsbLt[i] = sps.LtRefPicPocLsbSps[idx]
				h.UsedByCurrPicLt[i] = sps.UsedByCurrPicLtSpsFlag[idx]
			} else {
				h.PocLsbLt[i] = r.ReadUint16(int(sps.Log2MaxPicOrderCntLsbMinus4) + 4)
				h.UsedByCurrPicLt[i] = r.ReadBit()
			}

			h.DeltaPocMsbPresentFlag[i] = r.ReadBit()
			if h.DeltaPocMsbPresentFlag[i] == 1 {
				h.DeltaPocMsbCycleLt[i] = r.ReadUe()
			}
			if i != 0 && i != int(h.NumLongTermSps) {
				h.DeltaPocMsbCycleLt[i] += h.DeltaPocMsbCycleLt[i-1]
			}
		}
	}

	h.NumPicTotalCurr = rps.NumUsedByCurr()
	for i := 0; i < h.NumLongTerm(); i++ {
		h.NumPicTotalCurr += int(h.UsedByCurrPicLt[i])
	}
	return nil
}

func (h *SliceHeader) decodeInter(r *bits.Reader, pps *RawPPS, sps *RawSPS) (err error) {
	h.NumRefIdxL0ActiveMinus1 = pps.NumRefIdxL0DefaultActiveMinus1
	h.NumRefIdxL1ActiveMinus1 = pps.NumRefIdxL1DefaultActiveMinus1
	h.NumRefIdxActiveOverrideFlag = r.ReadBit()
	if h.NumRefIdxActiveOverrideFlag == 1 {
		v, ok := r.ReadUeMax(MaxRefIdx - 1)
		if !ok {
			return codec.Malformedf("num_ref_idx_l0_active_minus1 %d", v)
		}
		h.NumRefIdxL0ActiveMinus1 = uint8(v)
		if h.SliceType == SliceB {
			if v, ok = r.ReadUeMax(MaxRefIdx - 1); !ok {
				return codec.Malformedf("num_ref_idx_l1_active_minus1 %d", v)
			}
			h.NumRefIdxL1ActiveMinus1 = uint8(v)
		}
	}

	if pps.ListsModificationPresentFlag == 1 && h.NumPicTotalCurr > 1 {
		n := ceilLog2(h.NumPicTotalCurr)
		for list := 0; list < 2; list++ {
			if list == 1 && h.SliceType != SliceB {
				break
			}
			h.RefPicListModificationFlag[list] = r.ReadBit()
			if h.RefPicListModificationFlag[list] == 0 {
				continue
			}
			for i := 0; i < h.NumRefIdxActive(list); i++ {
				e := int(r.ReadUint8(n))
				if e >= h.NumPicTotalCurr {
					return codec.Malformedf("list_entry_l%d %d", list, e)
				}
				h.ListEntry[list][i] = uint8(e)
			}
		}
	}

	if h.SliceType == SliceB {
		h.MvdL1ZeroFlag = r.ReadBit()
	}
	if pps.CabacInitPresentFlag == 1 {
		h.CabacInitFlag = r.ReadBit()
	}

	if h.SliceTemporalMvpEnabledFlag == 1 {
		h.CollocatedFromL0Flag = 1
		if h.SliceType == SliceB {
			h.CollocatedFromL0Flag = r.ReadBit()
		}
		list := 1 - int(h.CollocatedFromL0Flag)
		if h.NumRefIdxActive(list) > 1 {
			idx, ok := r.ReadUeMax(uint32(h.NumRefIdxActive(list) - 1))
			if !ok {
				return codec.Malformedf("collocated_ref_idx %d", idx)
			}
			h.CollocatedRefIdx = uint8(idx)
		}
	}

	if (pps.WeightedPredFlag == 1 && h.SliceType == SliceP) ||
		(pps.WeightedBipredFlag == 1 && h.SliceType == SliceB) {
		if err = h.PredWeightTable.decode(r, h, sps); err != nil {
			return
		}
	}

	v, ok := r.ReadUeMax(4)
	if !ok {
		return codec.Malformedf("five_minus_max_num_merge_cand %d", v)
	}
	h.FiveMinusMaxNumMergeCand = uint8(v)
	return nil
}

func (h *SliceHeader) decodeEntryPoints(r *bits.Reader, pps *RawPPS, sps *RawSPS) error {
	var max int
	switch {
	case pps.TilesEnabledFlag == 0:
		max = sps.PicHeightInCtbsY() - 1
	case pps.EntropyCodingSyncEnabledFlag == 0:
		max = pps.NumTiles() - 1
	default:
		max = len(pps.ColumnWidth)*sps.PicHeightInCtbsY() - 1
	}
	if max > MaxEntryPointOffsets {
		max = MaxEntryPointOffsets
	}

	n, ok := r.ReadUeMax(uint32(max))
	if !ok {
		return codec.Malformedf("num_entry_point_offsets %d", n)
	}
	h.NumEntryPointOffsets = uint16(n)
	if n == 0 {
		return nil
	}

	l, ok := r.ReadUeMax(31)
	if !ok {
		return codec.Malformedf("offset_len_minus1 %d", l)
	}
	h.OffsetLenMinus1 = uint8(l)
	h.EntryPointOffsetMinus1 = make([]uint32, n)
	for i := range h.EntryPointOffsetMinus1 {
		h.EntryPointOffsetMinus1[i] = r.ReadUint32(int(l) + 1)
	}
	return nil
}

func (pwt *PredWeightTable) decode(r *bits.Reader, h *SliceHeader, sps *RawSPS) error {
	denom, ok := r.ReadUeMax(7)
	if !ok {
		return codec.Malformedf("luma_log2_weight_denom %d", denom)
	}
	pwt.LumaLog2WeightDenom = uint8(denom)
	chroma := sps.ChromaFormatIdc != 0
	if chroma {
		delta := r.ReadSe()
		cd := int32(denom) + delta
		if cd < 0 || cd > 7 {
			return codec.Malformedf("ChromaLog2WeightDenom %d", cd)
		}
		pwt.ChromaLog2WeightDenom = uint8(cd)
	}

	lumaHalf := int32(128)
	chromaHalf := int32(128)
	if sps.HighPrecisionOffsetsEnabledFlag == 1 {
		lumaHalf = 1 << uint(sps.BitDepthLuma()-1)
		chromaHalf = 1 << uint(sps.BitDepthChroma()-1)
	}

	for list := 0; list < 2; list++ {
		n := h.NumRefIdxActive(list)
		if n == 0 {
			break
		}
		for i := 0; i < n; i++ {
			pwt.LumaWeightFlag[list][i] = r.ReadBit()
		}
		if chroma {
			for i := 0; i < n; i++ {
				pwt.ChromaWeightFlag[list][i] = r.ReadBit()
			}
		}

		for i := 0; i < n; i++ {
			pwt.LumaWeight[list][i] = 1 << pwt.LumaLog2WeightDenom
			if pwt.LumaWeightFlag[list][i] == 1 {
				dw, ok1 := r.ReadSeRange(-128, 127)
				off, ok2 := r.ReadSeRange(-lumaHalf, lumaHalf-1)
				if !ok1 || !ok2 {
					return codec.Malformedf("luma weight l%d[%d] %d/%d", list, i, dw, off)
				}
				pwt.LumaWeight[list][i] += int16(dw)
				pwt.LumaOffset[list][i] = int16(off)
			}

			for j := 0; j < 2; j++ {
				pwt.ChromaWeight[list][i][j] = 1 << pwt.ChromaLog2WeightDenom
			}
			if pwt.ChromaWeightFlag[list][i] == 0 {
				continue
			}
			for j := 0; j < 2; j++ {
				dw, ok1 := r.ReadSeRange(-128, 127)
				doff, ok2 := r.ReadSeRange(-4*chromaHalf, 4*chromaHalf-1)
				if !ok1 || !ok2 {
					return codec.Malformedf("chroma weight l%d[%d] %d/%d", list, i, dw, doff)
				}
				w := int32(pwt.ChromaWeight[list][i][j]) + dw
				pwt.ChromaWeight[list][i][j] = int16(w)
				// 7-56
				off := chromaHalf - ((chromaHalf * w) >> pwt.ChromaLog2WeightDenom) + doff
				if off < -chromaHalf {
					off = -chromaHalf
				} else if off > chromaHalf-1 {
					off = chromaHalf - 1
				}
				pwt.ChromaOffset[list][i][j] = int16(off)
			}
		}
	}
	return nil
}

// substitute keeps usable parameters for concealment.
func (h *SliceHeader) substitute(ps *ParamSets, lastPPS int) {
	if pps, sps, ok := ps.Active(lastPPS); ok {
		h.PPS, h.SPS = pps, sps
		return
	}
	// 最后有效的 PPS 也不可用，尝试任意已解析的参数集
	h.PPS, h.SPS = ps.Fallback(lastPPS)
}
