// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
//
// Syntax from T-REC-H.265-201802 7.3.1.2, 7.3.3 and Annex E
//
package hevc

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/utils/bits"
)

// RawNALUnitHeader 原始 h265 Nal单元头
type RawNALUnitHeader struct {
	ForbiddenZeroBit   uint8
	NalUnitType        uint8
	NuhLayerID         uint8
	NuhTemporalIDPlus1 uint8
}

func (h *RawNALUnitHeader) decode(r *bits.Reader) (err error) {
	h.ForbiddenZeroBit = r.ReadBit()
	h.NalUnitType = r.ReadUint8(6)
	h.NuhLayerID = r.ReadUint8(6)
	h.NuhTemporalIDPlus1 = r.ReadUint8(3)

	if h.ForbiddenZeroBit != 0 {
		return codec.Malformedf("forbidden_zero_bit set")
	}
	if h.NuhTemporalIDPlus1 == 0 {
		return codec.Malformedf("nuh_temporal_id_plus1 is 0")
	}
	if h.NuhLayerID != 0 {
		// 仅支持基本层
		return codec.Unsupportedf("nuh_layer_id %d", h.NuhLayerID)
	}
	return
}

// TemporalID .
func (h *RawNALUnitHeader) TemporalID() int {
	return int(h.NuhTemporalIDPlus1) - 1
}

// RawProfileTierLevel profile_tier_level()
type RawProfileTierLevel struct {
	GeneralProfileSpace uint8
	GeneralTierFlag     uint8
	GeneralProfileIdc   uint8

	GeneralProfileCompatibilityFlag [32]uint8

	GeneralProgressiveSourceFlag   uint8
	GeneralInterlacedSourceFlag    uint8
	GeneralNonPackedConstraintFlag uint8
	GeneralFrameOnlyConstraintFlag uint8

	GeneralMax12bitConstraintFlag       uint8
	GeneralMax10bitConstraintFlag       uint8
	GeneralMax8bitConstraintFlag        uint8
	GeneralMax422chromaConstraintFlag   uint8
	GeneralMax420chromaConstraintFlag   uint8
	GeneralMaxMonochromeConstraintFlag  uint8
	GeneralIntraConstraintFlag          uint8
	GeneralOnePictureOnlyConstraintFlag uint8
	GeneralLowerBitRateConstraintFlag   uint8
	GeneralMax14bitConstraintFlag       uint8
	GeneralInbldFlag                    uint8

	GeneralLevelIdc uint8

	SubLayerProfilePresentFlag [MaxSubLayers]uint8
	SubLayerLevelPresentFlag   [MaxSubLayers]uint8
	SubLayerLevelIdc           [MaxSubLayers]uint8
}

// profile_idc values of Annex A.
const (
	ProfileMain            = 1
	ProfileMain10          = 2
	ProfileMainStillPicture = 3
	ProfileRext            = 4
)

// Compatible reports whether the general profile is or is compatible with idc.
func (ptl *RawProfileTierLevel) Compatible(idc int) bool {
	return int(ptl.GeneralProfileIdc) == idc || ptl.GeneralProfileCompatibilityFlag[idc] == 1
}

func compatibleWith(profileIdc uint8, flags *[32]uint8, idcs ...int) bool {
	for _, idc := range idcs {
		if int(profileIdc) == idc || flags[idc] == 1 {
			return true
		}
	}
	return false
}

func (ptl *RawProfileTierLevel) decode(r *bits.Reader,
	profilePresentFlag bool, maxNumSubLayersMinus1 int) (err error) {

	if profilePresentFlag {
		ptl.GeneralProfileSpace = r.ReadUint8(2)
		ptl.GeneralTierFlag = r.ReadBit()
		ptl.GeneralProfileIdc = r.ReadUint8(5)

		for j := 0; j < 32; j++ {
			ptl.GeneralProfileCompatibilityFlag[j] = r.ReadBit()
		}

		ptl.GeneralProgressiveSourceFlag = r.ReadBit()
		ptl.GeneralInterlacedSourceFlag = r.ReadBit()
		ptl.GeneralNonPackedConstraintFlag = r.ReadBit()
		ptl.GeneralFrameOnlyConstraintFlag = r.ReadBit()

		idc, flags := ptl.GeneralProfileIdc, &ptl.GeneralProfileCompatibilityFlag
		if compatibleWith(idc, flags, 4, 5, 6, 7, 8, 9, 10) {
			ptl.GeneralMax12bitConstraintFlag = r.ReadBit()
			ptl.GeneralMax10bitConstraintFlag = r.ReadBit()
			ptl.GeneralMax8bitConstraintFlag = r.ReadBit()
			ptl.GeneralMax422chromaConstraintFlag = r.ReadBit()
			ptl.GeneralMax420chromaConstraintFlag = r.ReadBit()
			ptl.GeneralMaxMonochromeConstraintFlag = r.ReadBit()
			ptl.GeneralIntraConstraintFlag = r.ReadBit()
			ptl.GeneralOnePictureOnlyConstraintFlag = r.ReadBit()
			ptl.GeneralLowerBitRateConstraintFlag = r.ReadBit()

			if compatibleWith(idc, flags, 5, 9, 10) {
				ptl.GeneralMax14bitConstraintFlag = r.ReadBit()
				r.Skip(33) // general_reserved_zero_33bits
			} else {
				r.Skip(34) // general_reserved_zero_34bits
			}
		} else if compatibleWith(idc, flags, 2) {
			r.Skip(7) // general_reserved_zero_7bits
			ptl.GeneralOnePictureOnlyConstraintFlag = r.ReadBit()
			r.Skip(35) // general_reserved_zero_35bits
		} else {
			r.Skip(43) // general_reserved_zero_43bits
		}

		if compatibleWith(idc, flags, 1, 2, 3, 4, 5, 9) {
			ptl.GeneralInbldFlag = r.ReadBit()
		} else {
			r.Skip(1) // general_reserved_zero_bit
		}
	}

	ptl.GeneralLevelIdc = r.ReadUint8(8)

	for i := 0; i < maxNumSubLayersMinus1; i++ {
		ptl.SubLayerProfilePresentFlag[i] = r.ReadBit()
		ptl.SubLayerLevelPresentFlag[i] = r.ReadBit()
	}

	if maxNumSubLayersMinus1 > 0 {
		for i := maxNumSubLayersMinus1; i < 8; i++ {
			r.Skip(2) // reserved_zero_2bits
		}
	}

	for i := 0; i < maxNumSubLayersMinus1; i++ {
		if ptl.SubLayerProfilePresentFlag[i] == 1 {
			// 子层的 profile 信息解码器不使用:
			// profile_space..reserved bits 共 88 位
			r.Skip(88)
		}
		if ptl.SubLayerLevelPresentFlag[i] == 1 {
			ptl.SubLayerLevelIdc[i] = r.ReadUint8(8)
		}
	}
	return
}

// RawSubLayerHRD sub_layer_hrd_parameters()
type RawSubLayerHRD struct {
	BitRateValueMinus1   [MaxCpbCnt]uint32
	CpbSizeValueMinus1   [MaxCpbCnt]uint32
	CpbSizeDuValueMinus1 [MaxCpbCnt]uint32
	BitRateDuValueMinus1 [MaxCpbCnt]uint32
	CbrFlag              [MaxCpbCnt]uint8
}

func (shrd *RawSubLayerHRD) decode(r *bits.Reader,
	subPicHrdParamsPresentFlag bool, cpbCntMinus1 int) {
	for i := 0; i <= cpbCntMinus1; i++ {
		shrd.BitRateValueMinus1[i] = r.ReadUe()
		shrd.CpbSizeValueMinus1[i] = r.ReadUe()
		if subPicHrdParamsPresentFlag {
			shrd.CpbSizeDuValueMinus1[i] = r.ReadUe()
			shrd.BitRateDuValueMinus1[i] = r.ReadUe()
		}
		shrd.CbrFlag[i] = r.ReadBit()
	}
}

// RawHRD hrd_parameters()
type RawHRD struct {
	NalHrdParametersPresentFlag uint8
	VclHrdParametersPresentFlag uint8

	SubPicHrdParamsPresentFlag             uint8
	TickDivisorMinus2                      uint8
	DuCpbRemovalDelayIncrementLengthMinus1 uint8
	SubPicCpbParamsInPicTimingSeiFlag      uint8
	DpbOutputDelayDuLengthMinus1           uint8

	BitRateScale   uint8
	CpbSizeScale   uint8
	CpbSizeDuScale uint8

	InitialCpbRemovalDelayLengthMinus1 uint8
	AuCpbRemovalDelayLengthMinus1      uint8
	DpbOutputDelayLengthMinus1         uint8

	FixedPicRateGeneralFlag     [MaxSubLayers]uint8
	FixedPicRateWithinCvsFlag   [MaxSubLayers]uint8
	ElementalDurationInTcMinus1 [MaxSubLayers]uint16
	LowDelayHrdFlag             [MaxSubLayers]uint8
	CpbCntMinus1                [MaxSubLayers]uint8
	NalSubLayerHrdParameters    [MaxSubLayers]RawSubLayerHRD
	VclSubLayerHrdParameters    [MaxSubLayers]RawSubLayerHRD
}

func (hrd *RawHRD) decode(r *bits.Reader,
	commonInfPresentFlag bool, maxNumSubLayersMinus1 int) (err error) {
	if commonInfPresentFlag {
		hrd.NalHrdParametersPresentFlag = r.ReadBit()
		hrd.VclHrdParametersPresentFlag = r.ReadBit()

		if hrd.NalHrdParametersPresentFlag == 1 ||
			hrd.VclHrdParametersPresentFlag == 1 {
			hrd.SubPicHrdParamsPresentFlag = r.ReadBit()
			if hrd.SubPicHrdParamsPresentFlag == 1 {
				hrd.TickDivisorMinus2 = r.ReadUint8(8)
				hrd.DuCpbRemovalDelayIncrementLengthMinus1 = r.ReadUint8(5)
				hrd.SubPicCpbParamsInPicTimingSeiFlag = r.ReadBit()
				hrd.DpbOutputDelayDuLengthMinus1 = r.ReadUint8(5)
			}

			hrd.BitRateScale = r.ReadUint8(4)
			hrd.CpbSizeScale = r.ReadUint8(4)
			if hrd.SubPicHrdParamsPresentFlag == 1 {
				hrd.CpbSizeDuScale = r.ReadUint8(4)
			}

			hrd.InitialCpbRemovalDelayLengthMinus1 = r.ReadUint8(5)
			hrd.AuCpbRemovalDelayLengthMinus1 = r.ReadUint8(5)
			hrd.DpbOutputDelayLengthMinus1 = r.ReadUint8(5)
		} else {
			hrd.InitialCpbRemovalDelayLengthMinus1 = 23
			hrd.AuCpbRemovalDelayLengthMinus1 = 23
			hrd.DpbOutputDelayLengthMinus1 = 23
		}
	}

	for i := 0; i <= maxNumSubLayersMinus1; i++ {
		hrd.FixedPicRateGeneralFlag[i] = r.ReadBit()

		hrd.FixedPicRateWithinCvsFlag[i] = 1
		if hrd.FixedPicRateGeneralFlag[i] == 0 {
			hrd.FixedPicRateWithinCvsFlag[i] = r.ReadBit()
		}

		if hrd.FixedPicRateWithinCvsFlag[i] == 1 {
			hrd.ElementalDurationInTcMinus1[i] = r.ReadUe16()
		} else {
			hrd.LowDelayHrdFlag[i] = r.ReadBit()
		}

		if hrd.LowDelayHrdFlag[i] == 0 {
			cnt, ok := r.ReadUeMax(MaxCpbCnt - 1)
			if !ok {
				return codec.Malformedf("cpb_cnt_minus1 %d", cnt)
			}
			hrd.CpbCntMinus1[i] = uint8(cnt)
		}

		if hrd.NalHrdParametersPresentFlag == 1 {
			hrd.NalSubLayerHrdParameters[i].decode(r, hrd.SubPicHrdParamsPresentFlag == 1, int(hrd.CpbCntMinus1[i]))
		}
		if hrd.VclHrdParametersPresentFlag == 1 {
			hrd.VclSubLayerHrdParameters[i].decode(r, hrd.SubPicHrdParamsPresentFlag == 1, int(hrd.CpbCntMinus1[i]))
		}
	}
	return
}
