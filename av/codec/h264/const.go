// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

/*
 * Table 7-1 – NAL unit type codes, syntax element categories, and NAL unit type classes in
 * T-REC-H.264-201704
 */
// H264 NAL 单元类型
const (
	NalUnspecified     = 0
	NalSlice           = 1  // 不分区非IDR图像的片
	NalDpa             = 2  // 片分区A
	NalDpb             = 3  // 片分区B
	NalDpc             = 4  // 片分区C
	NalIdrSlice        = 5  // IDR图像中的片（I帧）
	NalSei             = 6  // 补充增强信息单元
	NalSps             = 7  // 序列参数集
	NalPps             = 8  // 图像参数集
	NalAud             = 9  // 分界符
	NalEndSequence     = 10 // 序列结束
	NalEndStream       = 11 // 码流结束
	NalFillerData      = 12 // 填充
	NalSpsExt          = 13
	NalPrefix          = 14
	NalSubSps          = 15
	NalDps             = 16
	NalAuxiliarySlice  = 19
	NalExtenSlice      = 20
	NalDepthExtenSlice = 21

	NalTypeBitmask = 0x1F
)

// 7.4.3: slice_type values, modulo 5.
const (
	SliceP  = 0
	SliceB  = 1
	SliceI  = 2
	SliceSP = 3
	SliceSI = 4
)

// 其他常量
const (
	// 7.4.2.1.1: seq_parameter_set_id is in [0, 31].
	MaxSpsCount = 32
	// 7.4.2.2: pic_parameter_set_id is in [0, 255].
	MaxPpsCount = 256

	// A.3: MaxDpbFrames is bounded above by 16.
	MaxDpbFrames = 16
	// 7.4.2.2: num_ref_idx_default_active_minus1 is in [0, 31].
	MaxRefIdx = 32

	// 7.4.3.1: modification_of_pic_nums_idc is not equal to 3 at most
	// num_ref_idx_lN_active_minus1 + 1 times, then equal to 3 once.
	MaxRplmCount = MaxRefIdx + 1

	// 7.4.3.3: worst case moves every short-term frame to long-term and
	// discards it, then sets the long-term list size, marks the current
	// picture long-term and terminates.
	MaxMmcoCount = MaxRefIdx*2 + 3

	// E.2.2: cpb_cnt_minus1 is in [0, 31].
	MaxCpbCnt = 32

	// 7.4.2.1.1: bit_depth_luma_minus8 is in [0, 6].
	MaxBitDepthMinus8 = 6

	// A.3.1, A.3.2: PicWidthInMbs and PicHeightInMbs are bounded by
	// sqrt(MaxFS * 8) = 1055 macroblocks.
	MaxMbWidth  = 1055
	MaxMbHeight = 1055

	// MaxSlices 硬件支持的每帧最大 slice 数，High 4:2:2 level 5.2 下 60Hz 时的上限
	MaxSlices = 1440
)
