// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
//
// Syntax from T-REC-H.264-201704 7.3.2.1.1 and Annex E
//
package h264

import (
	"encoding/base64"

	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/utils"
	"github.com/cnotch/vdec/utils/bits"
)

// RawNALUnitHeader 原始 h264 Nal单元头
type RawNALUnitHeader struct {
	ForbiddenZeroBit uint8
	NalRefIdc        uint8
	NalUnitType      uint8
}

func (h *RawNALUnitHeader) decode(r *bits.Reader) (err error) {
	h.ForbiddenZeroBit = r.ReadBit()
	h.NalRefIdc = r.ReadUint8(2)
	h.NalUnitType = r.ReadUint8(5)

	if h.ForbiddenZeroBit != 0 {
		return codec.Malformedf("forbidden_zero_bit set")
	}
	if h.NalUnitType == NalPrefix ||
		h.NalUnitType == NalExtenSlice ||
		h.NalUnitType == NalDepthExtenSlice {
		return codec.Unsupportedf("SVC,3DAVC,MVC nal_unit_type = %d", h.NalUnitType)
	}
	return
}

// RawHRD .
type RawHRD struct {
	CpbCntMinus1 uint8
	BitRateScale uint8
	CpbSizeScale uint8

	BitRateValueMinus1 [MaxCpbCnt]uint32
	CpbSizeValueMinus1 [MaxCpbCnt]uint32
	CbrFlag            [MaxCpbCnt]uint8

	InitialCpbRemovalDelayLengthMinus1 uint8
	CpbRemovalDelayLengthMinus1        uint8
	DpbOutputDelayLengthMinus1         uint8
	TimeOffsetLength                   uint8
}

// RawVUI .
type RawVUI struct {
	AspectRatioInfoPresentFlag uint8
	AspectRatioIdc             uint8
	SarWidth                   uint16 // 样点高宽比的水平尺寸
	SarHeight                  uint16 // 样点高宽比的垂直尺寸

	OverscanInfoPresentFlag uint8
	OverscanAppropriateFlag uint8

	VideoSignalTypePresentFlag   uint8
	VideoFormat                  uint8
	VideoFullRangeFlag           uint8
	ColourDescriptionPresentFlag uint8
	ColourPrimaries              uint8
	TransferCharacteristics      uint8
	MatrixCoefficients           uint8

	ChromaLocInfoPresentFlag       uint8
	ChromaSampleLocTypeTopField    uint8
	ChromaSampleLocTypeBottomField uint8

	TimingInfoPresentFlag uint8
	NumUnitsInTick        uint32
	TimeScale             uint32
	FixedFrameRateFlag    uint8

	NalHrdParametersPresentFlag uint8
	NalHrdParameters            RawHRD
	VclHrdParametersPresentFlag uint8
	VclHrdParameters            RawHRD
	LowDelayHrdFlag             uint8

	PicStructPresentFlag uint8

	BitstreamRestrictionFlag           uint8
	MotionVectorsOverPicBoundariesFlag uint8
	MaxBytesPerPicDenom                uint8
	MaxBitsPerMbDenom                  uint8
	Log2MaxMvLengthHorizontal          uint8
	Log2MaxMvLengthVertical            uint8
	MaxNumReorderFrames                uint8
	MaxDecFrameBuffering               uint8
}

// RawSPS 序列参数集
type RawSPS struct {
	NalUnitHeader RawNALUnitHeader

	ProfileIdc         uint8
	ConstraintSet0Flag uint8
	ConstraintSet1Flag uint8
	ConstraintSet2Flag uint8
	ConstraintSet3Flag uint8
	ConstraintSet4Flag uint8
	ConstraintSet5Flag uint8
	ReservedZero2Bits  uint8
	LevelIdc           uint8

	SeqParameterSetID uint8

	ChromaFormatIdc                 uint8
	SeparateColourPlaneFlag         uint8
	BitDepthLumaMinus8              uint8
	BitDepthChromaMinus8            uint8
	QpprimeYZeroTransformBypassFlag uint8

	SeqScalingMatrixPresentFlag uint8
	SeqScalingListPresentFlag   [12]uint8
	// 解析后的有效量化矩阵（已应用缺省与回退规则）
	Scaling ScalingMatrix

	Log2MaxFrameNumMinus4          uint8
	PicOrderCntType                uint8      // poc 的编码方法
	Log2MaxPicOrderCntLsbMinus4    uint8      // MaxPicOrderCntLsb = pow(2, (log2_max_pic_order_cnt_lsb_minus4 + 4))
	DeltaPicOrderAlwaysZeroFlag    uint8      // 等于 1 时,delta_pic_order_cnt[0]和 delta_pic_order_cnt[1] 不出现在片头
	OffsetForNonRefPic             int32      // 计算非参考帧的 POC
	OffsetForTopToBottomField      int32      // 计算帧的底场的 POC
	NumRefFramesInPicOrderCntCycle uint8      // [0,255]
	OffsetForRefFrame              [256]int32 // 循环中每一个参考帧的偏移

	MaxNumRefFrames           uint8
	GapsInFrameNumAllowedFlag uint8

	PicWidthInMbsMinus1       uint16
	PicHeightInMapUnitsMinus1 uint16

	FrameMbsOnlyFlag         uint8
	MbAdaptiveFrameFieldFlag uint8
	Direct8x8InferenceFlag   uint8

	FrameCroppingFlag     uint8
	FrameCropLeftOffset   uint16
	FrameCropRightOffset  uint16
	FrameCropTopOffset    uint16
	FrameCropBottomOffset uint16

	VuiParametersPresentFlag uint8
	Vui                      RawVUI
}

// profiles carrying chroma_format_idc and bit depth in the SPS
func hasChromaInfo(profileIdc uint8) bool {
	switch profileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		return true
	}
	return false
}

// isProfileSupported deny-list of the decode hardware.
func isProfileSupported(profileIdc, constraintSet1 uint8) bool {
	if constraintSet1 != 0 {
		// 兼容 Main profile 的码流可以解码
		return true
	}
	switch profileIdc {
	case 88, 44, 244, 86:
		return false
	}
	return true
}

// DecodeString decode from base64 string.
func (sps *RawSPS) DecodeString(b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	return sps.Decode(data)
}

// Decode decode a SPS NAL unit, with or without start code.
func (sps *RawSPS) Decode(data []byte) (err error) {
	defer codec.RecoverMalformed(&err, "sps")

	rbsp := utils.RemoveH264or5EmulationBytes(data)
	if len(rbsp) < 4 {
		return codec.Malformedf("sps: %d bytes is not enough", len(rbsp))
	}

	r := bits.NewReader(rbsp)
	if err = sps.NalUnitHeader.decode(r); err != nil {
		return
	}
	if sps.NalUnitHeader.NalUnitType != NalSps {
		return codec.Malformedf("nal_unit_type %d is not sps", sps.NalUnitHeader.NalUnitType)
	}

	sps.ProfileIdc = r.ReadUint8(8)
	sps.ConstraintSet0Flag = r.ReadBit()
	sps.ConstraintSet1Flag = r.ReadBit()
	sps.ConstraintSet2Flag = r.ReadBit()
	sps.ConstraintSet3Flag = r.ReadBit()
	sps.ConstraintSet4Flag = r.ReadBit()
	sps.ConstraintSet5Flag = r.ReadBit()
	sps.ReservedZero2Bits = r.ReadUint8(2)
	sps.LevelIdc = r.ReadUint8(8)

	if !isProfileSupported(sps.ProfileIdc, sps.ConstraintSet1Flag) {
		return codec.Unsupportedf("profile_idc %d", sps.ProfileIdc)
	}

	id, ok := r.ReadUeMax(MaxSpsCount - 1)
	if !ok {
		return codec.Malformedf("seq_parameter_set_id %d", id)
	}
	sps.SeqParameterSetID = uint8(id)

	if hasChromaInfo(sps.ProfileIdc) {
		idc, ok := r.ReadUeMax(3)
		if !ok {
			return codec.Malformedf("chroma_format_idc %d", idc)
		}
		sps.ChromaFormatIdc = uint8(idc)
		if sps.ChromaFormatIdc == 3 {
			sps.SeparateColourPlaneFlag = r.ReadBit()
		}

		sps.BitDepthLumaMinus8 = clipBitDepth(r.ReadUe())
		sps.BitDepthChromaMinus8 = clipBitDepth(r.ReadUe())
		sps.QpprimeYZeroTransformBypassFlag = r.ReadBit()

		sps.SeqScalingMatrixPresentFlag = r.ReadBit()
		if sps.SeqScalingMatrixPresentFlag != 0 {
			if err = sps.decodeScalingLists(r); err != nil {
				return
			}
		}
	} else {
		if sps.ProfileIdc == 183 {
			sps.ChromaFormatIdc = 0
		} else {
			sps.ChromaFormatIdc = 1
		}
	}
	if sps.SeqScalingMatrixPresentFlag == 0 {
		sps.Scaling.setFlat()
	}

	v, ok := r.ReadUeMax(12)
	if !ok {
		return codec.Malformedf("log2_max_frame_num_minus4 %d", v)
	}
	sps.Log2MaxFrameNumMinus4 = uint8(v)

	if v, ok = r.ReadUeMax(2); !ok {
		return codec.Malformedf("pic_order_cnt_type %d", v)
	}
	sps.PicOrderCntType = uint8(v)
	if sps.PicOrderCntType == 0 {
		if v, ok = r.ReadUeMax(12); !ok {
			return codec.Malformedf("log2_max_pic_order_cnt_lsb_minus4 %d", v)
		}
		sps.Log2MaxPicOrderCntLsbMinus4 = uint8(v)
	} else if sps.PicOrderCntType == 1 {
		sps.DeltaPicOrderAlwaysZeroFlag = r.ReadBit()
		sps.OffsetForNonRefPic = r.ReadSe()
		sps.OffsetForTopToBottomField = r.ReadSe()
		if v, ok = r.ReadUeMax(255); !ok {
			return codec.Malformedf("num_ref_frames_in_pic_order_cnt_cycle %d", v)
		}
		sps.NumRefFramesInPicOrderCntCycle = uint8(v)
		for i := 0; i < int(sps.NumRefFramesInPicOrderCntCycle); i++ {
			sps.OffsetForRefFrame[i] = r.ReadSe()
		}
	}

	if v, ok = r.ReadUeMax(MaxDpbFrames); !ok {
		return codec.Malformedf("max_num_ref_frames %d", v)
	}
	sps.MaxNumRefFrames = uint8(v)
	sps.GapsInFrameNumAllowedFlag = r.ReadBit()

	if v, ok = r.ReadUeMax(MaxMbWidth - 1); !ok || v < 1 {
		return codec.Malformedf("pic_width_in_mbs_minus1 %d", v)
	}
	sps.PicWidthInMbsMinus1 = uint16(v)
	if v, ok = r.ReadUeMax(MaxMbHeight - 1); !ok || v < 1 {
		return codec.Malformedf("pic_height_in_map_units_minus1 %d", v)
	}
	sps.PicHeightInMapUnitsMinus1 = uint16(v)

	sps.FrameMbsOnlyFlag = r.ReadBit()
	if sps.FrameMbsOnlyFlag == 0 {
		// 硬件不支持场编码
		return codec.Unsupportedf("interlaced coding (frame_mbs_only_flag = 0)")
	}
	sps.Direct8x8InferenceFlag = r.ReadBit()

	sps.FrameCroppingFlag = r.ReadBit()
	if sps.FrameCroppingFlag == 1 {
		sps.FrameCropLeftOffset = r.ReadUe16()
		sps.FrameCropRightOffset = r.ReadUe16()
		sps.FrameCropTopOffset = r.ReadUe16()
		sps.FrameCropBottomOffset = r.ReadUe16()
		crop := sps.CropInfo()
		if crop.Left+crop.Right >= sps.CodedWidth() || crop.Top+crop.Bottom >= sps.CodedHeight() {
			return codec.Malformedf("cropping window %+v", crop)
		}
	}

	sps.VuiParametersPresentFlag = r.ReadBit()
	if sps.VuiParametersPresentFlag == 1 {
		if err = sps.Vui.decode(r, sps); err != nil {
			return
		}
	} else {
		sps.Vui.parametersDefault(sps)
	}

	if r.BitsLeft() <= 0 {
		return codec.Malformedf("sps: rbsp_trailing_bits missing")
	}
	return
}

func clipBitDepth(v uint32) uint8 {
	if v > MaxBitDepthMinus8 {
		return MaxBitDepthMinus8
	}
	return uint8(v)
}

func (sps *RawSPS) decodeScalingLists(r *bits.Reader) error {
	n := 8
	if sps.ChromaFormatIdc == 3 {
		n = 12
	}
	for i := 0; i < n; i++ {
		sps.SeqScalingListPresentFlag[i] = r.ReadBit()
		if sps.SeqScalingListPresentFlag[i] != 0 {
			useDefault, err := sps.Scaling.decodeList(r, i)
			if err != nil {
				return err
			}
			if !useDefault {
				continue
			}
			sps.Scaling.setDefault(i)
		} else {
			// 回退规则 A
			sps.Scaling.fallbackA(i)
		}
	}
	if n == 8 {
		// 4:2:0 / 4:2:2 只有 Y 分量的 8x8 矩阵，Cb/Cr 继承
		for i := 8; i < 12; i++ {
			sps.Scaling.fallbackA(i)
		}
	}
	return nil
}

// MaxFrameNum returns 2^(log2_max_frame_num_minus4+4).
func (sps *RawSPS) MaxFrameNum() int {
	return 1 << (uint(sps.Log2MaxFrameNumMinus4) + 4)
}

// MaxPicOrderCntLsb returns 2^(log2_max_pic_order_cnt_lsb_minus4+4).
func (sps *RawSPS) MaxPicOrderCntLsb() int {
	return 1 << (uint(sps.Log2MaxPicOrderCntLsbMinus4) + 4)
}

// PicWidthInMbs .
func (sps *RawSPS) PicWidthInMbs() int {
	return int(sps.PicWidthInMbsMinus1) + 1
}

// FrameHeightInMbs .
func (sps *RawSPS) FrameHeightInMbs() int {
	return (2 - int(sps.FrameMbsOnlyFlag)) * (int(sps.PicHeightInMapUnitsMinus1) + 1)
}

// PicSizeInMbs .
func (sps *RawSPS) PicSizeInMbs() int {
	return sps.PicWidthInMbs() * sps.FrameHeightInMbs()
}

// CodedWidth width of the decoded picture before cropping.
func (sps *RawSPS) CodedWidth() int {
	return sps.PicWidthInMbs() * 16
}

// CodedHeight height of the decoded picture before cropping.
func (sps *RawSPS) CodedHeight() int {
	return sps.FrameHeightInMbs() * 16
}

// CropInfo returns the cropping rectangle in luma samples.
func (sps *RawSPS) CropInfo() codec.CropInfo {
	if sps.FrameCroppingFlag == 0 {
		return codec.CropInfo{}
	}
	unitX, unitY := 1, 2-int(sps.FrameMbsOnlyFlag)
	switch sps.ChromaFormatIdc {
	case 1:
		unitX, unitY = 2, 2*unitY
	case 2:
		unitX = 2
	}
	return codec.CropInfo{
		Cropping: true,
		Left:     int(sps.FrameCropLeftOffset) * unitX,
		Right:    int(sps.FrameCropRightOffset) * unitX,
		Top:      int(sps.FrameCropTopOffset) * unitY,
		Bottom:   int(sps.FrameCropBottomOffset) * unitY,
	}
}

// Width 裁剪后的宽度
func (sps *RawSPS) Width() int {
	crop := sps.CropInfo()
	return sps.CodedWidth() - crop.Left - crop.Right
}

// Height 裁剪后的高度
func (sps *RawSPS) Height() int {
	crop := sps.CropInfo()
	return sps.CodedHeight() - crop.Top - crop.Bottom
}

// FrameRate .
func (sps *RawSPS) FrameRate() float64 {
	if sps.Vui.NumUnitsInTick == 0 {
		return 0.0
	}
	return float64(sps.Vui.TimeScale) / float64(sps.Vui.NumUnitsInTick*2)
}

// IsFixedFrameRate .
func (sps *RawSPS) IsFixedFrameRate() bool {
	return sps.Vui.FixedFrameRateFlag == 1
}

// BitDepthLuma .
func (sps *RawSPS) BitDepthLuma() int {
	return int(sps.BitDepthLumaMinus8) + 8
}

// BitDepthChroma .
func (sps *RawSPS) BitDepthChroma() int {
	return int(sps.BitDepthChromaMinus8) + 8
}

// Level returns level_idc, constraint_set3 is treated as level 1b (9).
func (sps *RawSPS) Level() int {
	if sps.ConstraintSet3Flag != 0 {
		return 9
	}
	return int(sps.LevelIdc)
}

// MaxBitDepth bit depth the profile can reach.
func (sps *RawSPS) MaxBitDepth() int {
	switch sps.ProfileIdc {
	case 66, 77, 88, 100:
		return 8
	default:
		return 10
	}
}

// Requirements what the SPS demands from the channel.
func (sps *RawSPS) Requirements() codec.Requirements {
	return codec.Requirements{
		BitDepthLuma:   sps.BitDepthLuma(),
		BitDepthChroma: sps.BitDepthChroma(),
		MaxBitDepth:    sps.MaxBitDepth(),
		Level:          sps.Level(),
		Chroma:         codec.ChromaModeFromIdc(int(sps.ChromaFormatIdc)),
		Cropped:        codec.Dimension{Width: sps.Width(), Height: sps.Height()},
		Sequence:       codec.SequenceProgressive,
	}
}

func (vui *RawVUI) decode(r *bits.Reader, sps *RawSPS) (err error) {
	vui.AspectRatioInfoPresentFlag = r.ReadBit()
	if vui.AspectRatioInfoPresentFlag == 1 {
		vui.AspectRatioIdc = r.ReadUint8(8)
		if vui.AspectRatioIdc == 255 {
			vui.SarWidth = r.ReadUint16(16)
			vui.SarHeight = r.ReadUint16(16)
		}
	}

	vui.OverscanInfoPresentFlag = r.ReadBit()
	if vui.OverscanInfoPresentFlag == 1 {
		vui.OverscanAppropriateFlag = r.ReadBit()
	}

	vui.VideoSignalTypePresentFlag = r.ReadBit()
	if vui.VideoSignalTypePresentFlag == 1 {
		vui.VideoFormat = r.ReadUint8(3)
		vui.VideoFullRangeFlag = r.ReadBit()
		vui.ColourDescriptionPresentFlag = r.ReadBit()
		if vui.ColourDescriptionPresentFlag == 1 {
			vui.ColourPrimaries = r.ReadUint8(8)
			vui.TransferCharacteristics = r.ReadUint8(8)
			vui.MatrixCoefficients = r.ReadUint8(8)
		} else {
			vui.ColourPrimaries = 2
			vui.TransferCharacteristics = 2
			vui.MatrixCoefficients = 2
		}
	} else {
		vui.VideoFormat = 5
		vui.ColourPrimaries = 2
		vui.TransferCharacteristics = 2
		vui.MatrixCoefficients = 2
	}

	vui.ChromaLocInfoPresentFlag = r.ReadBit()
	if vui.ChromaLocInfoPresentFlag == 1 {
		vui.ChromaSampleLocTypeTopField = r.ReadUe8()
		vui.ChromaSampleLocTypeBottomField = r.ReadUe8()
	}

	vui.TimingInfoPresentFlag = r.ReadBit()
	if vui.TimingInfoPresentFlag == 1 {
		vui.NumUnitsInTick = r.ReadUint32(32)
		vui.TimeScale = r.ReadUint32(32)
		vui.FixedFrameRateFlag = r.ReadBit()
	}

	vui.NalHrdParametersPresentFlag = r.ReadBit()
	if vui.NalHrdParametersPresentFlag == 1 {
		if err = vui.NalHrdParameters.decode(r); err != nil {
			return
		}
	}

	vui.VclHrdParametersPresentFlag = r.ReadBit()
	if vui.VclHrdParametersPresentFlag == 1 {
		if err = vui.VclHrdParameters.decode(r); err != nil {
			return
		}
	}

	if vui.NalHrdParametersPresentFlag == 1 ||
		vui.VclHrdParametersPresentFlag == 1 {
		vui.LowDelayHrdFlag = r.ReadBit()
	} else {
		vui.LowDelayHrdFlag = 1 - vui.FixedFrameRateFlag
	}

	vui.PicStructPresentFlag = r.ReadBit()

	vui.BitstreamRestrictionFlag = r.ReadBit()
	if vui.BitstreamRestrictionFlag == 1 {
		vui.MotionVectorsOverPicBoundariesFlag = r.ReadBit()
		vui.MaxBytesPerPicDenom = r.ReadUe8()
		vui.MaxBitsPerMbDenom = r.ReadUe8()
		vui.Log2MaxMvLengthHorizontal = r.ReadUe8()
		vui.Log2MaxMvLengthVertical = r.ReadUe8()
		reorder, ok := r.ReadUeMax(MaxDpbFrames)
		if !ok {
			return codec.Malformedf("max_num_reorder_frames %d", reorder)
		}
		buffering, ok := r.ReadUeMax(MaxDpbFrames)
		if !ok {
			return codec.Malformedf("max_dec_frame_buffering %d", buffering)
		}
		vui.MaxNumReorderFrames = uint8(reorder)
		vui.MaxDecFrameBuffering = uint8(buffering)
	} else {
		vui.bitstreamRestrictionDefault(sps)
	}
	return
}

func (vui *RawVUI) parametersDefault(sps *RawSPS) {
	*vui = RawVUI{
		VideoFormat:             5,
		ColourPrimaries:         2,
		TransferCharacteristics: 2,
		MatrixCoefficients:      2,
		LowDelayHrdFlag:         1,
	}
	vui.bitstreamRestrictionDefault(sps)
}

func (vui *RawVUI) bitstreamRestrictionDefault(sps *RawSPS) {
	vui.MotionVectorsOverPicBoundariesFlag = 1
	vui.MaxBytesPerPicDenom = 2
	vui.MaxBitsPerMbDenom = 1
	vui.Log2MaxMvLengthHorizontal = 15
	vui.Log2MaxMvLengthVertical = 15

	if (sps.ProfileIdc == 44 || sps.ProfileIdc == 86 ||
		sps.ProfileIdc == 100 || sps.ProfileIdc == 110 ||
		sps.ProfileIdc == 122 || sps.ProfileIdc == 244) &&
		sps.ConstraintSet3Flag == 1 {
		vui.MaxNumReorderFrames = 0
		vui.MaxDecFrameBuffering = 0
	} else {
		vui.MaxNumReorderFrames = MaxDpbFrames
		vui.MaxDecFrameBuffering = MaxDpbFrames
	}
}

func (hrd *RawHRD) decode(r *bits.Reader) (err error) {
	cnt, ok := r.ReadUeMax(MaxCpbCnt - 1)
	if !ok {
		return codec.Malformedf("cpb_cnt_minus1 %d", cnt)
	}
	hrd.CpbCntMinus1 = uint8(cnt)
	hrd.BitRateScale = r.ReadUint8(4)
	hrd.CpbSizeScale = r.ReadUint8(4)

	for i := 0; i <= int(hrd.CpbCntMinus1); i++ {
		hrd.BitRateValueMinus1[i] = r.ReadUe()
		hrd.CpbSizeValueMinus1[i] = r.ReadUe()
		hrd.CbrFlag[i] = r.ReadBit()
	}

	hrd.InitialCpbRemovalDelayLengthMinus1 = r.ReadUint8(5)
	hrd.CpbRemovalDelayLengthMinus1 = r.ReadUint8(5)
	hrd.DpbOutputDelayLengthMinus1 = r.ReadUint8(5)
	hrd.TimeOffsetLength = r.ReadUint8(5)
	return
}
