// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
//
// Syntax from T-REC-H.265-201802 7.3.2.2, 7.3.7 and Annex E
//
package hevc

import (
	"encoding/base64"

	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/utils"
	"github.com/cnotch/vdec/utils/bits"
)

// RawVUI vui_parameters()
type RawVUI struct {
	AspectRatioInfoPresentFlag uint8
	AspectRatioIdc             uint8
	SarWidth                   uint16
	SarHeight                  uint16

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

	NeutralChromaIndicationFlag uint8
	FieldSeqFlag                uint8
	FrameFieldInfoPresentFlag   uint8

	DefaultDisplayWindowFlag uint8
	DefDispWinLeftOffset     uint16
	DefDispWinRightOffset    uint16
	DefDispWinTopOffset      uint16
	DefDispWinBottomOffset   uint16

	TimingInfoPresentFlag       uint8
	NumUnitsInTick              uint32
	TimeScale                   uint32
	PocProportionalToTimingFlag uint8
	NumTicksPocDiffOneMinus1    uint32
	HrdParametersPresentFlag    uint8
	HrdParameters               RawHRD

	BitstreamRestrictionFlag           uint8
	TilesFixedStructureFlag            uint8
	MotionVectorsOverPicBoundariesFlag uint8
	RestrictedRefPicListsFlag          uint8
	MinSpatialSegmentationIdc          uint16
	MaxBytesPerPicDenom                uint8
	MaxBitsPerMinCuDenom               uint8
	Log2MaxMvLengthHorizontal          uint8
	Log2MaxMvLengthVertical            uint8
}

func (vui *RawVUI) setDefault() {
	*vui = RawVUI{
		VideoFormat:                        5,
		ColourPrimaries:                    2,
		TransferCharacteristics:            2,
		MatrixCoefficients:                 2,
		MotionVectorsOverPicBoundariesFlag: 1,
		MaxBytesPerPicDenom:                2,
		MaxBitsPerMinCuDenom:               1,
		Log2MaxMvLengthHorizontal:          15,
		Log2MaxMvLengthVertical:            15,
	}
}

func (vui *RawVUI) decode(r *bits.Reader, sps *RawSPS) (err error) {
	vui.setDefault()

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
		}
	}

	vui.ChromaLocInfoPresentFlag = r.ReadBit()
	if vui.ChromaLocInfoPresentFlag == 1 {
		vui.ChromaSampleLocTypeTopField = r.ReadUe8()
		vui.ChromaSampleLocTypeBottomField = r.ReadUe8()
	}

	vui.NeutralChromaIndicationFlag = r.ReadBit()
	vui.FieldSeqFlag = r.ReadBit()
	vui.FrameFieldInfoPresentFlag = r.ReadBit()

	vui.DefaultDisplayWindowFlag = r.ReadBit()
	if vui.DefaultDisplayWindowFlag == 1 {
		vui.DefDispWinLeftOffset = r.ReadUe16()
		vui.DefDispWinRightOffset = r.ReadUe16()
		vui.DefDispWinTopOffset = r.ReadUe16()
		vui.DefDispWinBottomOffset = r.ReadUe16()
	}

	vui.TimingInfoPresentFlag = r.ReadBit()
	if vui.TimingInfoPresentFlag == 1 {
		vui.NumUnitsInTick = r.ReadUint32(32)
		vui.TimeScale = r.ReadUint32(32)
		vui.PocProportionalToTimingFlag = r.ReadBit()
		if vui.PocProportionalToTimingFlag == 1 {
			vui.NumTicksPocDiffOneMinus1 = r.ReadUe()
		}
		vui.HrdParametersPresentFlag = r.ReadBit()
		if vui.HrdParametersPresentFlag == 1 {
			if err = vui.HrdParameters.decode(r, true, int(sps.MaxSubLayersMinus1)); err != nil {
				return
			}
		}
	}

	vui.BitstreamRestrictionFlag = r.ReadBit()
	if vui.BitstreamRestrictionFlag == 1 {
		vui.TilesFixedStructureFlag = r.ReadBit()
		vui.MotionVectorsOverPicBoundariesFlag = r.ReadBit()
		vui.RestrictedRefPicListsFlag = r.ReadBit()
		v, ok := r.ReadUeMax(4095)
		if !ok {
			return codec.Malformedf("min_spatial_segmentation_idc %d", v)
		}
		vui.MinSpatialSegmentationIdc = uint16(v)
		vui.MaxBytesPerPicDenom = r.ReadUe8()
		vui.MaxBitsPerMinCuDenom = r.ReadUe8()
		vui.Log2MaxMvLengthHorizontal = r.ReadUe8()
		vui.Log2MaxMvLengthVertical = r.ReadUe8()
	}
	return
}

// StRefPicSet st_ref_pic_set()，以 delta POC 形式保存，
// 帧间预测的集合已经展开。
type StRefPicSet struct {
	InterRefPicSetPredictionFlag uint8

	NumNegativePics uint8
	NumPositivePics uint8
	// S0 递减(负值)，S1 递增(正值)
	DeltaPocS0      [MaxDpbSize]int32
	UsedByCurrPicS0 [MaxDpbSize]uint8
	DeltaPocS1      [MaxDpbSize]int32
	UsedByCurrPicS1 [MaxDpbSize]uint8
}

// NumDeltaPocs .
func (rps *StRefPicSet) NumDeltaPocs() int {
	return int(rps.NumNegativePics) + int(rps.NumPositivePics)
}

// NumUsedByCurr 当前图像使用的短期参考数
func (rps *StRefPicSet) NumUsedByCurr() int {
	n := 0
	for i := 0; i < int(rps.NumNegativePics); i++ {
		n += int(rps.UsedByCurrPicS0[i])
	}
	for i := 0; i < int(rps.NumPositivePics); i++ {
		n += int(rps.UsedByCurrPicS1[i])
	}
	return n
}

// decode st_ref_pic_set(idx). sets are all the SPS sets,
// idx == len(sets) when the set is carried by a slice header.
func (rps *StRefPicSet) decode(r *bits.Reader, idx int, sets []StRefPicSet, maxDecPicBufferingMinus1 int) error {
	*rps = StRefPicSet{}
	if idx != 0 {
		rps.InterRefPicSetPredictionFlag = r.ReadBit()
	}

	if rps.InterRefPicSetPredictionFlag == 1 {
		return rps.decodePredicted(r, idx, sets)
	}

	neg, ok := r.ReadUeMax(uint32(maxDecPicBufferingMinus1))
	if !ok {
		return codec.Malformedf("num_negative_pics %d", neg)
	}
	pos, ok := r.ReadUeMax(uint32(maxDecPicBufferingMinus1) - neg)
	if !ok {
		return codec.Malformedf("num_positive_pics %d", pos)
	}
	rps.NumNegativePics = uint8(neg)
	rps.NumPositivePics = uint8(pos)

	poc := int32(0)
	for i := 0; i < int(neg); i++ {
		d, ok := r.ReadUeMax(1<<15 - 1)
		if !ok {
			return codec.Malformedf("delta_poc_s0_minus1 %d", d)
		}
		poc -= int32(d) + 1
		rps.DeltaPocS0[i] = poc
		rps.UsedByCurrPicS0[i] = r.ReadBit()
	}

	poc = 0
	for i := 0; i < int(pos); i++ {
		d, ok := r.ReadUeMax(1<<15 - 1)
		if !ok {
			return codec.Malformedf("delta_poc_s1_minus1 %d", d)
		}
		poc += int32(d) + 1
		rps.DeltaPocS1[i] = poc
		rps.UsedByCurrPicS1[i] = r.ReadBit()
	}
	return nil
}

// decodePredicted inter RPS prediction, equations 7-61 and 7-62.
func (rps *StRefPicSet) decodePredicted(r *bits.Reader, idx int, sets []StRefPicSet) error {
	deltaIdxMinus1 := uint32(0)
	if idx == len(sets) {
		var ok bool
		if deltaIdxMinus1, ok = r.ReadUeMax(uint32(idx) - 1); !ok {
			return codec.Malformedf("delta_idx_minus1 %d", deltaIdxMinus1)
		}
	}
	ref := &sets[idx-int(deltaIdxMinus1)-1]

	sign := r.ReadBit()
	abs, ok := r.ReadUeMax(1<<15 - 1)
	if !ok {
		return codec.Malformedf("abs_delta_rps_minus1 %d", abs)
	}
	deltaRps := (1 - 2*int32(sign)) * (int32(abs) + 1)

	var usedByCurr, useDelta [MaxDpbSize + 1]uint8
	n := ref.NumDeltaPocs()
	for j := 0; j <= n; j++ {
		usedByCurr[j] = r.ReadBit()
		useDelta[j] = 1
		if usedByCurr[j] == 0 {
			useDelta[j] = r.ReadBit()
		}
	}

	refNeg := int(ref.NumNegativePics)
	i := 0
	add0 := func(dPoc int32, used uint8) error {
		if i >= MaxDpbSize {
			return codec.Malformedf("predicted rps has too many negative pictures")
		}
		rps.DeltaPocS0[i] = dPoc
		rps.UsedByCurrPicS0[i] = used
		i++
		return nil
	}
	for j := int(ref.NumPositivePics) - 1; j >= 0; j-- {
		dPoc := ref.DeltaPocS1[j] + deltaRps
		if dPoc < 0 && useDelta[refNeg+j] == 1 {
			if err := add0(dPoc, usedByCurr[refNeg+j]); err != nil {
				return err
			}
		}
	}
	if deltaRps < 0 && useDelta[n] == 1 {
		if err := add0(deltaRps, usedByCurr[n]); err != nil {
			return err
		}
	}
	for j := 0; j < refNeg; j++ {
		dPoc := ref.DeltaPocS0[j] + deltaRps
		if dPoc < 0 && useDelta[j] == 1 {
			if err := add0(dPoc, usedByCurr[j]); err != nil {
				return err
			}
		}
	}
	rps.NumNegativePics = uint8(i)

	i = 0
	add1 := func(dPoc int32, used uint8) error {
		if i+int(rps.NumNegativePics) >= MaxDpbSize {
			return codec.Malformedf("predicted rps has too many pictures")
		}
		rps.DeltaPocS1[i] = dPoc
		rps.UsedByCurrPicS1[i] = used
		i++
		return nil
	}
	for j := refNeg - 1; j >= 0; j-- {
		dPoc := ref.DeltaPocS0[j] + deltaRps
		if dPoc > 0 && useDelta[j] == 1 {
			if err := add1(dPoc, usedByCurr[j]); err != nil {
				return err
			}
		}
	}
	if deltaRps > 0 && useDelta[n] == 1 {
		if err := add1(deltaRps, usedByCurr[n]); err != nil {
			return err
		}
	}
	for j := 0; j < int(ref.NumPositivePics); j++ {
		dPoc := ref.DeltaPocS1[j] + deltaRps
		if dPoc > 0 && useDelta[refNeg+j] == 1 {
			if err := add1(dPoc, usedByCurr[refNeg+j]); err != nil {
				return err
			}
		}
	}
	rps.NumPositivePics = uint8(i)
	return nil
}

// RawSPS 序列参数集
type RawSPS struct {
	NalUnitHeader RawNALUnitHeader

	VideoParameterSetID   uint8
	MaxSubLayersMinus1    uint8
	TemporalIDNestingFlag uint8

	ProfileTierLevel RawProfileTierLevel

	SeqParameterSetID uint8

	ChromaFormatIdc         uint8
	SeparateColourPlaneFlag uint8

	PicWidthInLumaSamples  uint16
	PicHeightInLumaSamples uint16

	ConformanceWindowFlag uint8
	ConfWinLeftOffset     uint16
	ConfWinRightOffset    uint16
	ConfWinTopOffset      uint16
	ConfWinBottomOffset   uint16

	BitDepthLumaMinus8   uint8
	BitDepthChromaMinus8 uint8

	Log2MaxPicOrderCntLsbMinus4 uint8

	SubLayerOrderingInfoPresentFlag uint8
	MaxDecPicBufferingMinus1        [MaxSubLayers]uint8
	MaxNumReorderPics               [MaxSubLayers]uint8
	MaxLatencyIncreasePlus1         [MaxSubLayers]uint32

	Log2MinLumaCodingBlockSizeMinus3     uint8
	Log2DiffMaxMinLumaCodingBlockSize    uint8
	Log2MinLumaTransformBlockSizeMinus2  uint8
	Log2DiffMaxMinLumaTransformBlockSize uint8
	MaxTransformHierarchyDepthInter      uint8
	MaxTransformHierarchyDepthIntra      uint8

	ScalingListEnabledFlag     uint8
	ScalingListDataPresentFlag uint8
	// 有效量化矩阵，ScalingListEnabledFlag 为 0 时不使用
	Scaling ScalingList

	AmpEnabledFlag                  uint8
	SampleAdaptiveOffsetEnabledFlag uint8

	PcmEnabledFlag                       uint8
	PcmSampleBitDepthLumaMinus1          uint8
	PcmSampleBitDepthChromaMinus1        uint8
	Log2MinPcmLumaCodingBlockSizeMinus3  uint8
	Log2DiffMaxMinPcmLumaCodingBlockSize uint8
	PcmLoopFilterDisabledFlag            uint8

	NumShortTermRefPicSets uint8
	StRefPicSets           []StRefPicSet

	LongTermRefPicsPresentFlag uint8
	NumLongTermRefPicsSps      uint8
	LtRefPicPocLsbSps          [MaxLongTermRefPics]uint16
	UsedByCurrPicLtSpsFlag     [MaxLongTermRefPics]uint8

	TemporalMvpEnabledFlag          uint8
	StrongIntraSmoothingEnabledFlag uint8

	VuiParametersPresentFlag uint8
	Vui                      RawVUI

	ExtensionPresentFlag    uint8
	RangeExtensionFlag      uint8
	MultilayerExtensionFlag uint8
	Extension3dFlag         uint8
	SccExtensionFlag        uint8
	Extension4bits          uint8

	// sps_range_extension()
	TransformSkipRotationEnabledFlag    uint8
	TransformSkipContextEnabledFlag     uint8
	ImplicitRdpcmEnabledFlag            uint8
	ExplicitRdpcmEnabledFlag            uint8
	ExtendedPrecisionProcessingFlag     uint8
	IntraSmoothingDisabledFlag          uint8
	HighPrecisionOffsetsEnabledFlag     uint8
	PersistentRiceAdaptationEnabledFlag uint8
	CabacBypassAlignmentEnabledFlag     uint8
}

// DecodeString 从 base64 字串解码 sps NAL
func (sps *RawSPS) DecodeString(b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	return sps.Decode(data)
}

// Decode 从字节序列中解码 sps NAL
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

	sps.VideoParameterSetID = r.ReadUint8(4)
	sps.MaxSubLayersMinus1 = r.ReadUint8(3)
	if sps.MaxSubLayersMinus1 >= MaxSubLayers {
		return codec.Malformedf("sps_max_sub_layers_minus1 %d", sps.MaxSubLayersMinus1)
	}
	sps.TemporalIDNestingFlag = r.ReadBit()
	if err = sps.ProfileTierLevel.decode(r, true, int(sps.MaxSubLayersMinus1)); err != nil {
		return
	}

	v, ok := r.ReadUeMax(MaxSpsCount - 1)
	if !ok {
		return codec.Malformedf("sps_seq_parameter_set_id %d", v)
	}
	sps.SeqParameterSetID = uint8(v)

	if v, ok = r.ReadUeMax(3); !ok {
		return codec.Malformedf("chroma_format_idc %d", v)
	}
	sps.ChromaFormatIdc = uint8(v)
	if sps.ChromaFormatIdc == 3 {
		sps.SeparateColourPlaneFlag = r.ReadBit()
		if sps.SeparateColourPlaneFlag == 1 {
			return codec.Unsupportedf("separate_colour_plane_flag")
		}
	}

	w, ok := r.ReadUeMax(MaxWidth)
	if !ok || w == 0 {
		return codec.Malformedf("pic_width_in_luma_samples %d", w)
	}
	h, ok := r.ReadUeMax(MaxHeight)
	if !ok || h == 0 {
		return codec.Malformedf("pic_height_in_luma_samples %d", h)
	}
	sps.PicWidthInLumaSamples = uint16(w)
	sps.PicHeightInLumaSamples = uint16(h)

	sps.ConformanceWindowFlag = r.ReadBit()
	if sps.ConformanceWindowFlag == 1 {
		sps.ConfWinLeftOffset = r.ReadUe16()
		sps.ConfWinRightOffset = r.ReadUe16()
		sps.ConfWinTopOffset = r.ReadUe16()
		sps.ConfWinBottomOffset = r.ReadUe16()
		crop := sps.CropInfo()
		if crop.Left+crop.Right >= int(sps.PicWidthInLumaSamples) ||
			crop.Top+crop.Bottom >= int(sps.PicHeightInLumaSamples) {
			return codec.Malformedf("conformance window %+v", crop)
		}
	}

	if v, ok = r.ReadUeMax(8); !ok {
		return codec.Malformedf("bit_depth_luma_minus8 %d", v)
	}
	sps.BitDepthLumaMinus8 = uint8(v)
	if v, ok = r.ReadUeMax(8); !ok {
		return codec.Malformedf("bit_depth_chroma_minus8 %d", v)
	}
	sps.BitDepthChromaMinus8 = uint8(v)

	if v, ok = r.ReadUeMax(12); !ok {
		return codec.Malformedf("log2_max_pic_order_cnt_lsb_minus4 %d", v)
	}
	sps.Log2MaxPicOrderCntLsbMinus4 = uint8(v)

	sps.SubLayerOrderingInfoPresentFlag = r.ReadBit()
	if err = decodeOrderingInfo(r, sps.SubLayerOrderingInfoPresentFlag == 1, int(sps.MaxSubLayersMinus1),
		&sps.MaxDecPicBufferingMinus1, &sps.MaxNumReorderPics, &sps.MaxLatencyIncreasePlus1); err != nil {
		return
	}

	if err = sps.decodeBlockSizes(r); err != nil {
		return
	}

	sps.ScalingListEnabledFlag = r.ReadBit()
	sps.Scaling.setDefault()
	if sps.ScalingListEnabledFlag == 1 {
		sps.ScalingListDataPresentFlag = r.ReadBit()
		if sps.ScalingListDataPresentFlag == 1 {
			if err = sps.Scaling.decode(r); err != nil {
				return
			}
		}
	}

	sps.AmpEnabledFlag = r.ReadBit()
	sps.SampleAdaptiveOffsetEnabledFlag = r.ReadBit()

	sps.PcmEnabledFlag = r.ReadBit()
	if sps.PcmEnabledFlag == 1 {
		sps.PcmSampleBitDepthLumaMinus1 = r.ReadUint8(4)
		sps.PcmSampleBitDepthChromaMinus1 = r.ReadUint8(4)
		sps.Log2MinPcmLumaCodingBlockSizeMinus3 = r.ReadUe8()
		sps.Log2DiffMaxMinPcmLumaCodingBlockSize = r.ReadUe8()
		sps.PcmLoopFilterDisabledFlag = r.ReadBit()
		if int(sps.PcmSampleBitDepthLumaMinus1)+1 > sps.BitDepthLuma() ||
			int(sps.PcmSampleBitDepthChromaMinus1)+1 > sps.BitDepthChroma() {
			return codec.Malformedf("pcm bit depth above sample bit depth")
		}
	}

	if v, ok = r.ReadUeMax(MaxShortTermRefPicSets); !ok {
		return codec.Malformedf("num_short_term_ref_pic_sets %d", v)
	}
	sps.NumShortTermRefPicSets = uint8(v)
	sps.StRefPicSets = make([]StRefPicSet, sps.NumShortTermRefPicSets)
	for i := range sps.StRefPicSets {
		if err = sps.StRefPicSets[i].decode(r, i, sps.StRefPicSets, sps.MaxDecPicBuffering()-1); err != nil {
			return
		}
	}

	sps.LongTermRefPicsPresentFlag = r.ReadBit()
	if sps.LongTermRefPicsPresentFlag == 1 {
		if v, ok = r.ReadUeMax(MaxLongTermRefPics); !ok {
			return codec.Malformedf("num_long_term_ref_pics_sps %d", v)
		}
		sps.NumLongTermRefPicsSps = uint8(v)
		for i := 0; i < int(sps.NumLongTermRefPicsSps); i++ {
			sps.LtRefPicPocLsbSps[i] = r.ReadUint16(int(sps.Log2MaxPicOrderCntLsbMinus4) + 4)
			sps.UsedByCurrPicLtSpsFlag[i] = r.ReadBit()
		}
	}

	sps.TemporalMvpEnabledFlag = r.ReadBit()
	sps.StrongIntraSmoothingEnabledFlag = r.ReadBit()

	sps.VuiParametersPresentFlag = r.ReadBit()
	if sps.VuiParametersPresentFlag == 1 {
		if err = sps.Vui.decode(r, sps); err != nil {
			return
		}
	} else {
		sps.Vui.setDefault()
	}

	sps.ExtensionPresentFlag = r.ReadBit()
	if sps.ExtensionPresentFlag == 1 {
		sps.RangeExtensionFlag = r.ReadBit()
		sps.MultilayerExtensionFlag = r.ReadBit()
		sps.Extension3dFlag = r.ReadBit()
		sps.SccExtensionFlag = r.ReadBit()
		sps.Extension4bits = r.ReadUint8(4)

		if sps.RangeExtensionFlag == 1 {
			sps.TransformSkipRotationEnabledFlag = r.ReadBit()
			sps.TransformSkipContextEnabledFlag = r.ReadBit()
			sps.ImplicitRdpcmEnabledFlag = r.ReadBit()
			sps.ExplicitRdpcmEnabledFlag = r.ReadBit()
			sps.ExtendedPrecisionProcessingFlag = r.ReadBit()
			sps.IntraSmoothingDisabledFlag = r.ReadBit()
			sps.HighPrecisionOffsetsEnabledFlag = r.ReadBit()
			sps.PersistentRiceAdaptationEnabledFlag = r.ReadBit()
			sps.CabacBypassAlignmentEnabledFlag = r.ReadBit()
		}
		// 其他扩展解码器不使用，不再解析
	}
	return
}

func (sps *RawSPS) decodeBlockSizes(r *bits.Reader) error {
	v, ok := r.ReadUeMax(MaxLog2CtbSize - 3)
	if !ok {
		return codec.Malformedf("log2_min_luma_coding_block_size_minus3 %d", v)
	}
	sps.Log2MinLumaCodingBlockSizeMinus3 = uint8(v)
	if v, ok = r.ReadUeMax(MaxLog2CtbSize - 3); !ok {
		return codec.Malformedf("log2_diff_max_min_luma_coding_block_size %d", v)
	}
	sps.Log2DiffMaxMinLumaCodingBlockSize = uint8(v)

	ctbLog2 := sps.CtbLog2SizeY()
	if ctbLog2 < MinLog2CtbSize || ctbLog2 > MaxLog2CtbSize {
		return codec.Malformedf("CtbLog2SizeY %d", ctbLog2)
	}

	minCb := 1 << uint(sps.MinCbLog2SizeY())
	if int(sps.PicWidthInLumaSamples)%minCb != 0 || int(sps.PicHeightInLumaSamples)%minCb != 0 {
		return codec.Malformedf("dimensions %dx%d not divisible by MinCbSizeY %d",
			sps.PicWidthInLumaSamples, sps.PicHeightInLumaSamples, minCb)
	}

	if v, ok = r.ReadUeMax(3); !ok {
		return codec.Malformedf("log2_min_luma_transform_block_size_minus2 %d", v)
	}
	sps.Log2MinLumaTransformBlockSizeMinus2 = uint8(v)
	minTbLog2 := int(v) + 2
	if minTbLog2 >= sps.MinCbLog2SizeY() {
		return codec.Malformedf("MinTbLog2SizeY %d not below MinCbLog2SizeY", minTbLog2)
	}
	if v, ok = r.ReadUeMax(3); !ok {
		return codec.Malformedf("log2_diff_max_min_luma_transform_block_size %d", v)
	}
	sps.Log2DiffMaxMinLumaTransformBlockSize = uint8(v)
	maxTbLog2 := minTbLog2 + int(v)
	if maxTbLog2 > 5 || maxTbLog2 > ctbLog2 {
		return codec.Malformedf("MaxTbLog2SizeY %d", maxTbLog2)
	}

	if v, ok = r.ReadUeMax(uint32(ctbLog2 - minTbLog2)); !ok {
		return codec.Malformedf("max_transform_hierarchy_depth_inter %d", v)
	}
	sps.MaxTransformHierarchyDepthInter = uint8(v)
	if v, ok = r.ReadUeMax(uint32(ctbLog2 - minTbLog2)); !ok {
		return codec.Malformedf("max_transform_hierarchy_depth_intra %d", v)
	}
	sps.MaxTransformHierarchyDepthIntra = uint8(v)
	return nil
}

// MinCbLog2SizeY .
func (sps *RawSPS) MinCbLog2SizeY() int {
	return int(sps.Log2MinLumaCodingBlockSizeMinus3) + 3
}

// CtbLog2SizeY .
func (sps *RawSPS) CtbLog2SizeY() int {
	return sps.MinCbLog2SizeY() + int(sps.Log2DiffMaxMinLumaCodingBlockSize)
}

// PicWidthInCtbsY .
func (sps *RawSPS) PicWidthInCtbsY() int {
	ctb := 1 << uint(sps.CtbLog2SizeY())
	return (int(sps.PicWidthInLumaSamples) + ctb - 1) / ctb
}

// PicHeightInCtbsY .
func (sps *RawSPS) PicHeightInCtbsY() int {
	ctb := 1 << uint(sps.CtbLog2SizeY())
	return (int(sps.PicHeightInLumaSamples) + ctb - 1) / ctb
}

// PicSizeInCtbsY .
func (sps *RawSPS) PicSizeInCtbsY() int {
	return sps.PicWidthInCtbsY() * sps.PicHeightInCtbsY()
}

// PicSizeInSamplesY .
func (sps *RawSPS) PicSizeInSamplesY() int {
	return int(sps.PicWidthInLumaSamples) * int(sps.PicHeightInLumaSamples)
}

// MaxPicOrderCntLsb .
func (sps *RawSPS) MaxPicOrderCntLsb() int {
	return 1 << (uint(sps.Log2MaxPicOrderCntLsbMinus4) + 4)
}

// HighestTid 最高子层
func (sps *RawSPS) HighestTid() int {
	return int(sps.MaxSubLayersMinus1)
}

// MaxDecPicBuffering sps_max_dec_pic_buffering_minus1 + 1 of the highest sub-layer.
func (sps *RawSPS) MaxDecPicBuffering() int {
	return int(sps.MaxDecPicBufferingMinus1[sps.HighestTid()]) + 1
}

// MaxNumReorder sps_max_num_reorder_pics of the highest sub-layer.
func (sps *RawSPS) MaxNumReorder() int {
	return int(sps.MaxNumReorderPics[sps.HighestTid()])
}

// MaxLatencyPictures SpsMaxLatencyPictures, 0 means no limit.
func (sps *RawSPS) MaxLatencyPictures() int {
	plus1 := sps.MaxLatencyIncreasePlus1[sps.HighestTid()]
	if plus1 == 0 {
		return 0
	}
	return sps.MaxNumReorder() + int(plus1) - 1
}

// CropInfo conformance window in luma samples.
func (sps *RawSPS) CropInfo() codec.CropInfo {
	if sps.ConformanceWindowFlag == 0 {
		return codec.CropInfo{}
	}
	subWidth, subHeight := 1, 1
	switch sps.ChromaFormatIdc {
	case 1:
		subWidth, subHeight = 2, 2
	case 2:
		subWidth = 2
	}
	return codec.CropInfo{
		Cropping: true,
		Left:     int(sps.ConfWinLeftOffset) * subWidth,
		Right:    int(sps.ConfWinRightOffset) * subWidth,
		Top:      int(sps.ConfWinTopOffset) * subHeight,
		Bottom:   int(sps.ConfWinBottomOffset) * subHeight,
	}
}

// Width 裁剪后的宽度（像素）
func (sps *RawSPS) Width() int {
	crop := sps.CropInfo()
	return int(sps.PicWidthInLumaSamples) - crop.Left - crop.Right
}

// Height 裁剪后的高度（像素）
func (sps *RawSPS) Height() int {
	crop := sps.CropInfo()
	return int(sps.PicHeightInLumaSamples) - crop.Top - crop.Bottom
}

// FrameRate Video frame rate
func (sps *RawSPS) FrameRate() float64 {
	if sps.Vui.NumUnitsInTick == 0 {
		return 0.0
	}
	return float64(sps.Vui.TimeScale) / float64(sps.Vui.NumUnitsInTick)
}

// BitDepthLuma .
func (sps *RawSPS) BitDepthLuma() int {
	return int(sps.BitDepthLumaMinus8) + 8
}

// BitDepthChroma .
func (sps *RawSPS) BitDepthChroma() int {
	return int(sps.BitDepthChromaMinus8) + 8
}

// Level general_level_idc / 3, e.g. 4.1 is 41.
func (sps *RawSPS) Level() int {
	return int(sps.ProfileTierLevel.GeneralLevelIdc) / 3
}

// MaxBitDepth bit depth the profile can reach.
func (sps *RawSPS) MaxBitDepth() int {
	ptl := &sps.ProfileTierLevel
	switch {
	case ptl.Compatible(ProfileRext):
		switch {
		case ptl.GeneralMax8bitConstraintFlag == 1:
			return 8
		case ptl.GeneralMax10bitConstraintFlag == 1:
			return 10
		case ptl.GeneralMax12bitConstraintFlag == 1:
			return 12
		default:
			return 16
		}
	case ptl.Compatible(ProfileMain), ptl.Compatible(ProfileMainStillPicture):
		return 8
	default:
		return 10
	}
}

// SequenceMode 扫描方式
func (sps *RawSPS) SequenceMode() codec.SequenceMode {
	ptl := &sps.ProfileTierLevel
	switch {
	case sps.Vui.FieldSeqFlag == 1:
		return codec.SequenceInterlaced
	case ptl.GeneralFrameOnlyConstraintFlag == 1:
		return codec.SequenceProgressive
	}

	progressive := ptl.GeneralProgressiveSourceFlag == 1
	interlaced := ptl.GeneralInterlacedSourceFlag == 1
	switch {
	case progressive && interlaced:
		return codec.SequenceMixed
	case progressive:
		return codec.SequenceProgressive
	case interlaced:
		return codec.SequenceInterlaced
	}
	return codec.SequenceUnknown
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
		Sequence:       sps.SequenceMode(),
	}
}
