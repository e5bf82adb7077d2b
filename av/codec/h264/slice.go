// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/utils"
	"github.com/cnotch/vdec/utils/bits"
)

// RefPicListModification one modification_of_pic_nums_idc command.
type RefPicListModification struct {
	Idc                 uint8
	AbsDiffPicNumMinus1 uint32
	LongTermPicNum      uint32
}

// MMCO memory_management_control_operation
type MMCO struct {
	Op                        uint8
	DifferenceOfPicNumsMinus1 uint32
	LongTermPicNum            uint32
	LongTermFrameIdx          uint32
	MaxLongTermFrameIdxPlus1  uint32
}

// PredWeightTable pred_weight_table()
type PredWeightTable struct {
	LumaLog2WeightDenom   uint8
	ChromaLog2WeightDenom uint8

	LumaWeightFlag   [2][MaxRefIdx]uint8
	LumaWeight       [2][MaxRefIdx]int16
	LumaOffset       [2][MaxRefIdx]int16
	ChromaWeightFlag [2][MaxRefIdx]uint8
	ChromaWeight     [2][MaxRefIdx][2]int16
	ChromaOffset     [2][MaxRefIdx][2]int16
}

// SliceHeader 片头
type SliceHeader struct {
	NalUnitHeader RawNALUnitHeader

	FirstMbInSlice    uint32
	SliceType         uint8
	PicParameterSetID uint8
	ColourPlaneID     uint8

	FrameNum uint16
	IdrPicID uint16

	PicOrderCntLsb         uint16
	DeltaPicOrderCntBottom int32
	DeltaPicOrderCnt       [2]int32

	RedundantPicCnt uint8

	DirectSpatialMvPredFlag     uint8
	NumRefIdxActiveOverrideFlag uint8
	NumRefIdxL0ActiveMinus1     uint8
	NumRefIdxL1ActiveMinus1     uint8

	RefPicListModificationFlag [2]uint8
	RefPicListModification     [2][]RefPicListModification

	PredWeightTable PredWeightTable

	NoOutputOfPriorPicsFlag       uint8
	LongTermReferenceFlag         uint8
	AdaptiveRefPicMarkingModeFlag uint8
	MMCOs                         []MMCO

	CabacInitIdc uint8
	SliceQpDelta int8

	SpForSwitchFlag uint8
	SliceQsDelta    int8

	DisableDeblockingFilterIdc uint8
	SliceAlphaC0OffsetDiv2     int8
	SliceBetaOffsetDiv2        int8

	// HeaderBits slice_header() 的长度（位）
	HeaderBits int

	// 片头引用的参数集；解析失败时为最后一个有效的 PPS
	PPS *RawPPS
	SPS *RawSPS
}

// Type returns slice_type modulo 5.
func (h *SliceHeader) Type() int {
	return int(h.SliceType % 5)
}

// CodecType codec neutral slice type.
func (h *SliceHeader) CodecType() codec.SliceType {
	switch h.Type() {
	case SliceP:
		return codec.SliceP
	case SliceB:
		return codec.SliceB
	case SliceSP:
		return codec.SliceSP
	case SliceSI:
		return codec.SliceSI
	default:
		return codec.SliceI
	}
}

// IsIDR .
func (h *SliceHeader) IsIDR() bool {
	return h.NalUnitHeader.NalUnitType == NalIdrSlice
}

// IsReference nal_ref_idc != 0
func (h *SliceHeader) IsReference() bool {
	return h.NalUnitHeader.NalRefIdc != 0
}

// HasMMCO5 .
func (h *SliceHeader) HasMMCO5() bool {
	for _, m := range h.MMCOs {
		if m.Op == 5 {
			return true
		}
	}
	return false
}

// NumRefIdxActive returns num_ref_idx_lX_active_minus1 + 1, 0 when the
// slice type uses no list X.
func (h *SliceHeader) NumRefIdxActive(list int) int {
	t := h.Type()
	if t == SliceI || t == SliceSI {
		return 0
	}
	if list == 0 {
		return int(h.NumRefIdxL0ActiveMinus1) + 1
	}
	if t != SliceB {
		return 0
	}
	return int(h.NumRefIdxL1ActiveMinus1) + 1
}

// ParseSliceHeader parses the header of a slice NAL unit against the
// parameter sets. On a parameter set lookup failure the header is returned
// with the PPS at lastPPS substituted, together with the error.
func ParseSliceHeader(data []byte, ps *ParamSets, lastPPS int) (h *SliceHeader, err error) {
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
	if len(rbsp) < 2 {
		return h, codec.Malformedf("slice: %d bytes is not enough", len(rbsp))
	}
	r := bits.NewReader(rbsp)
	if err = h.NalUnitHeader.decode(r); err != nil {
		return
	}
	nut := h.NalUnitHeader.NalUnitType
	if nut != NalSlice && nut != NalIdrSlice {
		return h, codec.Unsupportedf("nal_unit_type %d is not a slice", nut)
	}

	h.FirstMbInSlice = r.ReadUe()
	st, ok := r.ReadUeMax(9)
	if !ok {
		return h, codec.Malformedf("slice_type %d", st)
	}
	h.SliceType = uint8(st)

	ppsID, ok := r.ReadUeMax(MaxPpsCount - 1)
	if !ok {
		return h, codec.Malformedf("pic_parameter_set_id %d", ppsID)
	}
	h.PicParameterSetID = uint8(ppsID)
	pps, sps, ok := ps.Active(int(ppsID))
	if !ok {
		return h, codec.Malformedf("pps %d is not available", ppsID)
	}
	h.PPS, h.SPS = pps, sps

	if h.FirstMbInSlice >= uint32(sps.PicSizeInMbs()) {
		return h, codec.Malformedf("first_mb_in_slice %d", h.FirstMbInSlice)
	}
	if h.IsIDR() && h.Type() != SliceI && h.Type() != SliceSI {
		return h, codec.Malformedf("idr slice of type %d", h.SliceType)
	}

	if sps.SeparateColourPlaneFlag == 1 {
		h.ColourPlaneID = r.ReadUint8(2)
	}

	h.FrameNum = r.ReadUint16(int(sps.Log2MaxFrameNumMinus4) + 4)
	if h.IsIDR() {
		if h.FrameNum != 0 {
			return h, codec.Malformedf("idr frame_num %d", h.FrameNum)
		}
		h.IdrPicID = r.ReadUe16()
	}

	if sps.PicOrderCntType == 0 {
		h.PicOrderCntLsb = r.ReadUint16(int(sps.Log2MaxPicOrderCntLsbMinus4) + 4)
		if pps.BottomFieldPicOrderInFramePresentFlag == 1 {
			h.DeltaPicOrderCntBottom = r.ReadSe()
		}
	}
	if sps.PicOrderCntType == 1 && sps.DeltaPicOrderAlwaysZeroFlag == 0 {
		h.DeltaPicOrderCnt[0] = r.ReadSe()
		if pps.BottomFieldPicOrderInFramePresentFlag == 1 {
			h.DeltaPicOrderCnt[1] = r.ReadSe()
		}
	}

	if pps.RedundantPicCntPresentFlag == 1 {
		rpc, ok := r.ReadUeMax(127)
		if !ok {
			return h, codec.Malformedf("redundant_pic_cnt %d", rpc)
		}
		h.RedundantPicCnt = uint8(rpc)
	}

	t := h.Type()
	if t == SliceB {
		h.DirectSpatialMvPredFlag = r.ReadBit()
	}

	h.NumRefIdxL0ActiveMinus1 = pps.NumRefIdxL0DefaultActiveMinus1
	h.NumRefIdxL1ActiveMinus1 = pps.NumRefIdxL1DefaultActiveMinus1
	if t == SliceP || t == SliceSP || t == SliceB {
		h.NumRefIdxActiveOverrideFlag = r.ReadBit()
		if h.NumRefIdxActiveOverrideFlag == 1 {
			n, ok := r.ReadUeMax(MaxRefIdx - 1)
			if !ok {
				return h, codec.Malformedf("num_ref_idx_l0_active_minus1 %d", n)
			}
			h.NumRefIdxL0ActiveMinus1 = uint8(n)
			if t == SliceB {
				if n, ok = r.ReadUeMax(MaxRefIdx - 1); !ok {
					return h, codec.Malformedf("num_ref_idx_l1_active_minus1 %d", n)
				}
				h.NumRefIdxL1ActiveMinus1 = uint8(n)
			}
		}
	}

	if err = h.decodeRefPicListModification(r); err != nil {
		return
	}

	if (pps.WeightedPredFlag == 1 && (t == SliceP || t == SliceSP)) ||
		(pps.WeightedBipredIdc == 1 && t == SliceB) {
		if err = h.PredWeightTable.decode(r, h, sps); err != nil {
			return
		}
	}

	if h.IsReference() {
		if err = h.decodeRefPicMarking(r); err != nil {
			return
		}
	}

	if pps.EntropyCodingModeFlag == 1 && t != SliceI && t != SliceSI {
		idc, ok := r.ReadUeMax(2)
		if !ok {
			return h, codec.Malformedf("cabac_init_idc %d", idc)
		}
		h.CabacInitIdc = uint8(idc)
	}

	qpBdOffset := 6 * int32(sps.BitDepthLumaMinus8)
	qpMin := -qpBdOffset - 26 - int32(pps.PicInitQpMinus26)
	qpDelta, ok := r.ReadSeRange(qpMin, 25-int32(pps.PicInitQpMinus26))
	if !ok {
		return h, codec.Malformedf("slice_qp_delta %d", qpDelta)
	}
	h.SliceQpDelta = int8(qpDelta)

	if t == SliceSP || t == SliceSI {
		if t == SliceSP {
			h.SpForSwitchFlag = r.ReadBit()
		}
		h.SliceQsDelta = int8(r.ReadSe())
	}

	if pps.DeblockingFilterControlPresentFlag == 1 {
		idc, ok := r.ReadUeMax(2)
		if !ok {
			return h, codec.Malformedf("disable_deblocking_filter_idc %d", idc)
		}
		h.DisableDeblockingFilterIdc = uint8(idc)
		if idc != 1 {
			alpha, ok1 := r.ReadSeRange(-6, 6)
			beta, ok2 := r.ReadSeRange(-6, 6)
			if !ok1 || !ok2 {
				return h, codec.Malformedf("deblocking offsets %d/%d", alpha, beta)
			}
			h.SliceAlphaC0OffsetDiv2 = int8(alpha)
			h.SliceBetaOffsetDiv2 = int8(beta)
		}
	}

	h.HeaderBits = r.Offset()
	return h, nil
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

func (h *SliceHeader) decodeRefPicListModification(r *bits.Reader) error {
	t := h.Type()
	if t == SliceI || t == SliceSI {
		return nil
	}
	lists := 1
	if t == SliceB {
		lists = 2
	}
	for l := 0; l < lists; l++ {
		h.RefPicListModificationFlag[l] = r.ReadBit()
		if h.RefPicListModificationFlag[l] == 0 {
			continue
		}
		for {
			var m RefPicListModification
			idc, ok := r.ReadUeMax(5)
			if !ok {
				return codec.Malformedf("modification_of_pic_nums_idc %d", idc)
			}
			m.Idc = uint8(idc)
			if m.Idc == 3 {
				break
			}
			switch m.Idc {
			case 0, 1:
				m.AbsDiffPicNumMinus1 = r.ReadUe()
			case 2:
				m.LongTermPicNum = r.ReadUe()
			default:
				// 4/5 为 MVC 视图间预测
				return codec.Unsupportedf("modification_of_pic_nums_idc %d", m.Idc)
			}
			if len(h.RefPicListModification[l]) >= MaxRplmCount {
				return codec.Malformedf("too many ref_pic_list_modification commands")
			}
			h.RefPicListModification[l] = append(h.RefPicListModification[l], m)
		}
	}
	return nil
}

func (h *SliceHeader) decodeRefPicMarking(r *bits.Reader) error {
	if h.IsIDR() {
		h.NoOutputOfPriorPicsFlag = r.ReadBit()
		h.LongTermReferenceFlag = r.ReadBit()
		return nil
	}

	h.AdaptiveRefPicMarkingModeFlag = r.ReadBit()
	if h.AdaptiveRefPicMarkingModeFlag == 0 {
		return nil
	}
	for {
		var m MMCO
		op, ok := r.ReadUeMax(6)
		if !ok {
			return codec.Malformedf("memory_management_control_operation %d", op)
		}
		m.Op = uint8(op)
		if m.Op == 0 {
			break
		}
		if m.Op == 1 || m.Op == 3 {
			m.DifferenceOfPicNumsMinus1 = r.ReadUe()
		}
		if m.Op == 2 {
			m.LongTermPicNum = r.ReadUe()
		}
		if m.Op == 3 || m.Op == 6 {
			m.LongTermFrameIdx = r.ReadUe()
		}
		if m.Op == 4 {
			m.MaxLongTermFrameIdxPlus1 = r.ReadUe()
		}
		if len(h.MMCOs) >= MaxMmcoCount {
			return codec.Malformedf("too many memory_management_control_operation")
		}
		h.MMCOs = append(h.MMCOs, m)
	}
	return nil
}

func (pwt *PredWeightTable) decode(r *bits.Reader, h *SliceHeader, sps *RawSPS) error {
	denom, ok := r.ReadUeMax(7)
	if !ok {
		return codec.Malformedf("luma_log2_weight_denom %d", denom)
	}
	pwt.LumaLog2WeightDenom = uint8(denom)

	chroma := sps.ChromaFormatIdc != 0 && sps.SeparateColourPlaneFlag == 0
	if chroma {
		if denom, ok = r.ReadUeMax(7); !ok {
			return codec.Malformedf("chroma_log2_weight_denom %d", denom)
		}
		pwt.ChromaLog2WeightDenom = uint8(denom)
	}

	for l := 0; l < 2; l++ {
		n := h.NumRefIdxActive(l)
		for i := 0; i < n; i++ {
			pwt.LumaWeight[l][i] = 1 << pwt.LumaLog2WeightDenom
			pwt.LumaWeightFlag[l][i] = r.ReadBit()
			if pwt.LumaWeightFlag[l][i] == 1 {
				w, ok1 := r.ReadSeRange(-128, 127)
				o, ok2 := r.ReadSeRange(-128, 127)
				if !ok1 || !ok2 {
					return codec.Malformedf("luma weight %d/%d", w, o)
				}
				pwt.LumaWeight[l][i] = int16(w)
				pwt.LumaOffset[l][i] = int16(o)
			}
			if !chroma {
				continue
			}
			pwt.ChromaWeight[l][i] = [2]int16{1 << pwt.ChromaLog2WeightDenom, 1 << pwt.ChromaLog2WeightDenom}
			pwt.ChromaWeightFlag[l][i] = r.ReadBit()
			if pwt.ChromaWeightFlag[l][i] == 1 {
				for j := 0; j < 2; j++ {
					w, ok1 := r.ReadSeRange(-128, 127)
					o, ok2 := r.ReadSeRange(-128, 127)
					if !ok1 || !ok2 {
						return codec.Malformedf("chroma weight %d/%d", w, o)
					}
					pwt.ChromaWeight[l][i][j] = int16(w)
					pwt.ChromaOffset[l][i][j] = int16(o)
				}
			}
		}
	}
	return nil
}
