// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
//
// Syntax from T-REC-H.265-201802 7.3.2.3
//
package hevc

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/utils"
	"github.com/cnotch/vdec/utils/bits"
)

// RawPPS 图像参数集
type RawPPS struct {
	NalUnitHeader RawNALUnitHeader

	PicParameterSetID uint8
	SeqParameterSetID uint8

	DependentSliceSegmentsEnabledFlag uint8
	OutputFlagPresentFlag             uint8
	NumExtraSliceHeaderBits           uint8
	SignDataHidingEnabledFlag         uint8
	CabacInitPresentFlag              uint8

	NumRefIdxL0DefaultActiveMinus1 uint8
	NumRefIdxL1DefaultActiveMinus1 uint8

	InitQpMinus26 int8

	ConstrainedIntraPredFlag uint8
	TransformSkipEnabledFlag uint8
	CuQpDeltaEnabledFlag     uint8
	DiffCuQpDeltaDepth       uint8

	CbQpOffset                      int8
	CrQpOffset                      int8
	SliceChromaQpOffsetsPresentFlag uint8

	WeightedPredFlag   uint8
	WeightedBipredFlag uint8

	TransquantBypassEnabledFlag  uint8
	TilesEnabledFlag             uint8
	EntropyCodingSyncEnabledFlag uint8

	NumTileColumnsMinus1 uint8
	NumTileRowsMinus1    uint8
	UniformSpacingFlag   uint8
	// 以 CTB 为单位的 tile 列宽和行高（已按 6-3、6-4 推导）
	ColumnWidth []uint16
	RowHeight   []uint16

	LoopFilterAcrossTilesEnabledFlag  uint8
	LoopFilterAcrossSlicesEnabledFlag uint8

	DeblockingFilterControlPresentFlag  uint8
	DeblockingFilterOverrideEnabledFlag uint8
	DeblockingFilterDisabledFlag        uint8
	BetaOffsetDiv2                      int8
	TcOffsetDiv2                        int8

	ScalingListDataPresentFlag uint8
	// 有效量化矩阵: PPS 自带或继承 SPS
	Scaling ScalingList

	ListsModificationPresentFlag           uint8
	Log2ParallelMergeLevelMinus2           uint8
	SliceSegmentHeaderExtensionPresentFlag uint8

	ExtensionPresentFlag    uint8
	RangeExtensionFlag      uint8
	MultilayerExtensionFlag uint8
	Extension3dFlag         uint8
	SccExtensionFlag        uint8
	Extension4bits          uint8

	// pps_range_extension()
	Log2MaxTransformSkipBlockSizeMinus2 uint8
	CrossComponentPredictionEnabledFlag uint8
	ChromaQpOffsetListEnabledFlag       uint8
	DiffCuChromaQpOffsetDepth           uint8
	ChromaQpOffsetListLenMinus1         uint8
	CbQpOffsetList                      [6]int8
	CrQpOffsetList                      [6]int8
	Log2SaoOffsetScaleLuma              uint8
	Log2SaoOffsetScaleChroma            uint8
}

// SPSLookup returns the usable SPS with the given id.
type SPSLookup func(id int) (*RawSPS, bool)

// Decode decode a PPS NAL unit. The referenced SPS must be usable.
func (pps *RawPPS) Decode(data []byte, lookup SPSLookup) (err error) {
	defer codec.RecoverMalformed(&err, "pps")

	rbsp := utils.RemoveH264or5EmulationBytes(data)
	if len(rbsp) < 3 {
		return codec.Malformedf("pps: %d bytes is not enough", len(rbsp))
	}

	r := bits.NewReader(rbsp)
	if err = pps.NalUnitHeader.decode(r); err != nil {
		return
	}
	if pps.NalUnitHeader.NalUnitType != NalPps {
		return codec.Malformedf("nal_unit_type %d is not pps", pps.NalUnitHeader.NalUnitType)
	}

	id, ok := r.ReadUeMax(MaxPpsCount - 1)
	if !ok {
		return codec.Malformedf("pps_pic_parameter_set_id %d", id)
	}
	pps.PicParameterSetID = uint8(id)

	spsID, ok := r.ReadUeMax(MaxSpsCount - 1)
	if !ok {
		return codec.Malformedf("pps_seq_parameter_set_id %d", spsID)
	}
	pps.SeqParameterSetID = uint8(spsID)
	sps, ok := lookup(int(spsID))
	if !ok {
		return codec.Malformedf("pps %d refers to unavailable sps %d", id, spsID)
	}

	pps.DependentSliceSegmentsEnabledFlag = r.ReadBit()
	pps.OutputFlagPresentFlag = r.ReadBit()
	pps.NumExtraSliceHeaderBits = r.ReadUint8(3)
	pps.SignDataHidingEnabledFlag = r.ReadBit()
	pps.CabacInitPresentFlag = r.ReadBit()

	v, ok := r.ReadUeMax(MaxRefIdx - 1)
	if !ok {
		return codec.Malformedf("num_ref_idx_l0_default_active_minus1 %d", v)
	}
	pps.NumRefIdxL0DefaultActiveMinus1 = uint8(v)
	if v, ok = r.ReadUeMax(MaxRefIdx - 1); !ok {
		return codec.Malformedf("num_ref_idx_l1_default_active_minus1 %d", v)
	}
	pps.NumRefIdxL1DefaultActiveMinus1 = uint8(v)

	qpBdOffset := 6 * int32(sps.BitDepthLumaMinus8)
	qp, ok := r.ReadSeRange(-(26 + qpBdOffset), 25)
	if !ok {
		return codec.Malformedf("init_qp_minus26 %d", qp)
	}
	pps.InitQpMinus26 = int8(qp)

	pps.ConstrainedIntraPredFlag = r.ReadBit()
	pps.TransformSkipEnabledFlag = r.ReadBit()
	pps.CuQpDeltaEnabledFlag = r.ReadBit()
	if pps.CuQpDeltaEnabledFlag == 1 {
		if v, ok = r.ReadUeMax(uint32(sps.Log2DiffMaxMinLumaCodingBlockSize)); !ok {
			return codec.Malformedf("diff_cu_qp_delta_depth %d", v)
		}
		pps.DiffCuQpDeltaDepth = uint8(v)
	}

	cb, ok := r.ReadSeRange(-12, 12)
	if !ok {
		return codec.Malformedf("pps_cb_qp_offset %d", cb)
	}
	cr, ok := r.ReadSeRange(-12, 12)
	if !ok {
		return codec.Malformedf("pps_cr_qp_offset %d", cr)
	}
	pps.CbQpOffset, pps.CrQpOffset = int8(cb), int8(cr)
	pps.SliceChromaQpOffsetsPresentFlag = r.ReadBit()

	pps.WeightedPredFlag = r.ReadBit()
	pps.WeightedBipredFlag = r.ReadBit()

	pps.TransquantBypassEnabledFlag = r.ReadBit()
	pps.TilesEnabledFlag = r.ReadBit()
	pps.EntropyCodingSyncEnabledFlag = r.ReadBit()

	if pps.TilesEnabledFlag == 1 {
		if err = pps.decodeTiles(r, sps); err != nil {
			return
		}
	} else {
		pps.ColumnWidth = []uint16{uint16(sps.PicWidthInCtbsY())}
		pps.RowHeight = []uint16{uint16(sps.PicHeightInCtbsY())}
	}

	pps.LoopFilterAcrossSlicesEnabledFlag = r.ReadBit()
	pps.DeblockingFilterControlPresentFlag = r.ReadBit()
	if pps.DeblockingFilterControlPresentFlag == 1 {
		pps.DeblockingFilterOverrideEnabledFlag = r.ReadBit()
		pps.DeblockingFilterDisabledFlag = r.ReadBit()
		if pps.DeblockingFilterDisabledFlag == 0 {
			beta, ok := r.ReadSeRange(-6, 6)
			if !ok {
				return codec.Malformedf("pps_beta_offset_div2 %d", beta)
			}
			tc, ok := r.ReadSeRange(-6, 6)
			if !ok {
				return codec.Malformedf("pps_tc_offset_div2 %d", tc)
			}
			pps.BetaOffsetDiv2, pps.TcOffsetDiv2 = int8(beta), int8(tc)
		}
	}

	pps.ScalingListDataPresentFlag = r.ReadBit()
	if pps.ScalingListDataPresentFlag == 1 {
		if sps.ScalingListEnabledFlag == 0 {
			return codec.Malformedf("pps scaling list without scaling_list_enabled_flag")
		}
		if err = pps.Scaling.decode(r); err != nil {
			return
		}
	} else {
		pps.Scaling = sps.Scaling
	}

	pps.ListsModificationPresentFlag = r.ReadBit()
	if v, ok = r.ReadUeMax(uint32(sps.CtbLog2SizeY() - 2)); !ok {
		return codec.Malformedf("log2_parallel_merge_level_minus2 %d", v)
	}
	pps.Log2ParallelMergeLevelMinus2 = uint8(v)
	pps.SliceSegmentHeaderExtensionPresentFlag = r.ReadBit()

	pps.ExtensionPresentFlag = r.ReadBit()
	if pps.ExtensionPresentFlag == 1 {
		pps.RangeExtensionFlag = r.ReadBit()
		pps.MultilayerExtensionFlag = r.ReadBit()
		pps.Extension3dFlag = r.ReadBit()
		pps.SccExtensionFlag = r.ReadBit()
		pps.Extension4bits = r.ReadUint8(4)
		if pps.RangeExtensionFlag == 1 {
			if err = pps.decodeRangeExtension(r, sps); err != nil {
				return
			}
		}
	}
	return
}

func (pps *RawPPS) decodeTiles(r *bits.Reader, sps *RawSPS) error {
	widthInCtbs, heightInCtbs := sps.PicWidthInCtbsY(), sps.PicHeightInCtbsY()

	cols, ok := r.ReadUeMax(uint32(widthInCtbs) - 1)
	if !ok || cols >= MaxTileColumns {
		return codec.Malformedf("num_tile_columns_minus1 %d", cols)
	}
	rows, ok := r.ReadUeMax(uint32(heightInCtbs) - 1)
	if !ok || rows >= MaxTileRows {
		return codec.Malformedf("num_tile_rows_minus1 %d", rows)
	}
	pps.NumTileColumnsMinus1 = uint8(cols)
	pps.NumTileRowsMinus1 = uint8(rows)
	pps.ColumnWidth = make([]uint16, cols+1)
	pps.RowHeight = make([]uint16, rows+1)

	pps.UniformSpacingFlag = r.ReadBit()
	if pps.UniformSpacingFlag == 1 {
		uniformSpacing(pps.ColumnWidth, widthInCtbs)
		uniformSpacing(pps.RowHeight, heightInCtbs)
	} else {
		if err := explicitSpacing(r, pps.ColumnWidth, widthInCtbs); err != nil {
			return err
		}
		if err := explicitSpacing(r, pps.RowHeight, heightInCtbs); err != nil {
			return err
		}
	}

	pps.LoopFilterAcrossTilesEnabledFlag = r.ReadBit()
	return nil
}

// uniformSpacing equations 6-3 and 6-4.
func uniformSpacing(sizes []uint16, total int) {
	n := len(sizes)
	for i := range sizes {
		sizes[i] = uint16((i+1)*total/n - i*total/n)
	}
}

// explicitSpacing reads all but the last size, the last one takes the rest.
func explicitSpacing(r *bits.Reader, sizes []uint16, total int) error {
	left := total
	last := len(sizes) - 1
	for i := 0; i < last; i++ {
		v := int(r.ReadUe()) + 1
		if v >= left {
			return codec.Malformedf("tile size %d exceeds the picture", v)
		}
		sizes[i] = uint16(v)
		left -= v
	}
	sizes[last] = uint16(left)
	return nil
}

func (pps *RawPPS) decodeRangeExtension(r *bits.Reader, sps *RawSPS) error {
	if pps.TransformSkipEnabledFlag == 1 {
		v, ok := r.ReadUeMax(3)
		if !ok {
			return codec.Malformedf("log2_max_transform_skip_block_size_minus2 %d", v)
		}
		pps.Log2MaxTransformSkipBlockSizeMinus2 = uint8(v)
	}
	pps.CrossComponentPredictionEnabledFlag = r.ReadBit()
	pps.ChromaQpOffsetListEnabledFlag = r.ReadBit()
	if pps.ChromaQpOffsetListEnabledFlag == 1 {
		pps.DiffCuChromaQpOffsetDepth = r.ReadUe8()
		n, ok := r.ReadUeMax(5)
		if !ok {
			return codec.Malformedf("chroma_qp_offset_list_len_minus1 %d", n)
		}
		pps.ChromaQpOffsetListLenMinus1 = uint8(n)
		for i := 0; i <= int(n); i++ {
			cb, ok := r.ReadSeRange(-12, 12)
			if !ok {
				return codec.Malformedf("cb_qp_offset_list %d", cb)
			}
			cr, ok := r.ReadSeRange(-12, 12)
			if !ok {
				return codec.Malformedf("cr_qp_offset_list %d", cr)
			}
			pps.CbQpOffsetList[i], pps.CrQpOffsetList[i] = int8(cb), int8(cr)
		}
	}

	maxScale := func(bitDepth int) uint32 {
		if bitDepth <= 10 {
			return 0
		}
		return uint32(bitDepth - 10)
	}
	v, ok := r.ReadUeMax(maxScale(sps.BitDepthLuma()))
	if !ok {
		return codec.Malformedf("log2_sao_offset_scale_luma %d", v)
	}
	pps.Log2SaoOffsetScaleLuma = uint8(v)
	if v, ok = r.ReadUeMax(maxScale(sps.BitDepthChroma())); !ok {
		return codec.Malformedf("log2_sao_offset_scale_chroma %d", v)
	}
	pps.Log2SaoOffsetScaleChroma = uint8(v)
	return nil
}

// NumTiles .
func (pps *RawPPS) NumTiles() int {
	return len(pps.ColumnWidth) * len(pps.RowHeight)
}
