// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

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

	EntropyCodingModeFlag                 uint8
	BottomFieldPicOrderInFramePresentFlag uint8
	NumSliceGroupsMinus1                  uint8

	NumRefIdxL0DefaultActiveMinus1 uint8
	NumRefIdxL1DefaultActiveMinus1 uint8

	WeightedPredFlag  uint8
	WeightedBipredIdc uint8

	PicInitQpMinus26    int8
	PicInitQsMinus26    int8
	ChromaQpIndexOffset int8

	DeblockingFilterControlPresentFlag uint8
	ConstrainedIntraPredFlag           uint8
	RedundantPicCntPresentFlag         uint8

	Transform8x8ModeFlag        uint8
	PicScalingMatrixPresentFlag uint8
	PicScalingListPresentFlag   [12]uint8
	SecondChromaQpIndexOffset   int8

	// 解析后的有效量化矩阵
	Scaling ScalingMatrix
}

// SPSLookup returns the usable SPS with the given id.
type SPSLookup func(id int) (*RawSPS, bool)

func clip3(min, max, v int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Decode decode a PPS NAL unit. The referenced SPS must be usable.
func (pps *RawPPS) Decode(data []byte, lookup SPSLookup) (err error) {
	defer codec.RecoverMalformed(&err, "pps")

	rbsp := utils.RemoveH264or5EmulationBytes(data)
	if len(rbsp) < 2 {
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
		return codec.Malformedf("pic_parameter_set_id %d", id)
	}
	pps.PicParameterSetID = uint8(id)

	spsID, ok := r.ReadUeMax(MaxSpsCount - 1)
	if !ok {
		return codec.Malformedf("seq_parameter_set_id %d", spsID)
	}
	pps.SeqParameterSetID = uint8(spsID)
	sps, ok := lookup(int(spsID))
	if !ok {
		return codec.Malformedf("pps %d refers to unavailable sps %d", id, spsID)
	}

	pps.EntropyCodingModeFlag = r.ReadBit()
	pps.BottomFieldPicOrderInFramePresentFlag = r.ReadBit()

	groups := r.ReadUe()
	if groups != 0 {
		// FMO 仅 Baseline/Extended 支持
		return codec.Unsupportedf("num_slice_groups_minus1 %d", groups)
	}

	pps.NumRefIdxL0DefaultActiveMinus1 = uint8(clip3(0, MaxRefIdx-1, int(r.ReadUe())))
	pps.NumRefIdxL1DefaultActiveMinus1 = uint8(clip3(0, MaxRefIdx-1, int(r.ReadUe())))

	pps.WeightedPredFlag = r.ReadBit()
	pps.WeightedBipredIdc = uint8(clip3(0, 2, int(r.ReadUint8(2))))

	qpBdOffset := 6 * int(sps.BitDepthLumaMinus8)
	pps.PicInitQpMinus26 = int8(clip3(-(26 + qpBdOffset), 25, int(r.ReadSe())))
	pps.PicInitQsMinus26 = int8(clip3(-26, 25, int(r.ReadSe())))
	pps.ChromaQpIndexOffset = int8(clip3(-12, 12, int(r.ReadSe())))

	pps.DeblockingFilterControlPresentFlag = r.ReadBit()
	pps.ConstrainedIntraPredFlag = r.ReadBit()
	pps.RedundantPicCntPresentFlag = r.ReadBit()

	pps.SecondChromaQpIndexOffset = pps.ChromaQpIndexOffset
	if r.MoreRbspData() {
		pps.Transform8x8ModeFlag = r.ReadBit()
		pps.PicScalingMatrixPresentFlag = r.ReadBit()
		if pps.PicScalingMatrixPresentFlag != 0 {
			if err = pps.decodeScalingLists(r, sps); err != nil {
				return
			}
		}
		pps.SecondChromaQpIndexOffset = int8(clip3(-12, 12, int(r.ReadSe())))
	}

	if pps.PicScalingMatrixPresentFlag == 0 {
		pps.Scaling = sps.Scaling
	}

	if !r.TrailingBits() {
		return codec.Malformedf("pps %d: bad rbsp_trailing_bits", id)
	}
	return
}

func (pps *RawPPS) decodeScalingLists(r *bits.Reader, sps *RawSPS) error {
	n := 6
	if pps.Transform8x8ModeFlag != 0 {
		if sps.ChromaFormatIdc == 3 {
			n += 6
		} else {
			n += 2
		}
	}
	for i := 0; i < 12; i++ {
		if i < n {
			pps.PicScalingListPresentFlag[i] = r.ReadBit()
		}
		if pps.PicScalingListPresentFlag[i] != 0 {
			useDefault, err := pps.Scaling.decodeList(r, i)
			if err != nil {
				return err
			}
			if useDefault {
				pps.Scaling.setDefault(i)
			}
			continue
		}
		if i < 8 {
			// 回退规则 B
			pps.Scaling.fallbackB(i, sps)
		} else {
			pps.Scaling.inheritPrevious(i)
		}
	}
	return nil
}
