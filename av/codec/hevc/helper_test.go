// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"github.com/cnotch/vdec/utils"
	"github.com/cnotch/vdec/utils/bits"
)

func writeNalHeader(w *bits.Writer, nut int) {
	w.WriteBit(0)
	w.Write(6, uint64(nut))
	w.Write(6, 0)
	w.Write(3, 1)
}

// testRPS st_ref_pic_set(), all pictures used by the current picture.
// A non-nil interUsed predicts the set from the previous one.
type testRPS struct {
	neg []int32
	pos []int32

	deltaIdxMinus1 uint32
	deltaRps       int32
	interUsed      []uint8
}

func (s testRPS) write(w *bits.Writer, idx, total int) {
	if idx != 0 {
		w.WriteBool(s.interUsed != nil)
	}
	if s.interUsed != nil {
		if idx == total {
			w.WriteUe(s.deltaIdxMinus1)
		}
		abs := s.deltaRps
		if abs < 0 {
			w.WriteBit(1)
			abs = -abs
		} else {
			w.WriteBit(0)
		}
		w.WriteUe(uint32(abs - 1))
		for _, u := range s.interUsed {
			w.WriteBit(u)
			if u == 0 {
				w.WriteBit(1) // use_delta_flag
			}
		}
		return
	}

	w.WriteUe(uint32(len(s.neg)))
	w.WriteUe(uint32(len(s.pos)))
	prev := int32(0)
	for _, d := range s.neg {
		w.WriteUe(uint32(prev - d - 1))
		w.WriteBit(1)
		prev = d
	}
	prev = 0
	for _, d := range s.pos {
		w.WriteUe(uint32(d - prev - 1))
		w.WriteBit(1)
		prev = d
	}
}

// testSPS Main profile 4:2:0 8bit SPS, CTB 16x16, without VUI.
type testSPS struct {
	id         uint32
	width      uint32 // 默认 64
	height     uint32 // 默认 64
	level      uint64
	log2PocLsb uint32 // minus4
	maxDecPic  uint32 // minus1
	rps        []testRPS
	longTerm   bool
}

func (s testSPS) bytes() []byte {
	w := bits.NewWriter()
	writeNalHeader(w, NalSps)
	w.Write(4, 0) // sps_video_parameter_set_id
	w.Write(3, 0) // sps_max_sub_layers_minus1
	w.WriteBit(1) // sps_temporal_id_nesting_flag

	// profile_tier_level
	w.Write(2, 0)
	w.WriteBit(0)
	w.Write(5, ProfileMain)
	w.Write(32, 0x60000000)
	w.WriteBit(1) // progressive
	w.WriteBit(0)
	w.WriteBit(0)
	w.WriteBit(1) // frame_only
	w.Write(43, 0)
	w.WriteBit(0)
	level := s.level
	if level == 0 {
		level = 93
	}
	w.Write(8, level)

	w.WriteUe(s.id)
	w.WriteUe(1) // chroma_format_idc
	width, height := s.width, s.height
	if width == 0 {
		width = 64
	}
	if height == 0 {
		height = 64
	}
	w.WriteUe(width)
	w.WriteUe(height)
	w.WriteBit(0) // conformance_window_flag
	w.WriteUe(0)
	w.WriteUe(0)
	w.WriteUe(s.log2PocLsb)

	w.WriteBit(1) // sps_sub_layer_ordering_info_present_flag
	maxDecPic := s.maxDecPic
	if maxDecPic == 0 {
		maxDecPic = 4
	}
	w.WriteUe(maxDecPic)
	w.WriteUe(0)
	w.WriteUe(0)

	w.WriteUe(0) // log2_min_luma_coding_block_size_minus3
	w.WriteUe(1)
	w.WriteUe(0) // log2_min_luma_transform_block_size_minus2
	w.WriteUe(1)
	w.WriteUe(0)
	w.WriteUe(0)

	w.WriteBit(0) // scaling_list_enabled_flag
	w.WriteBit(0) // amp_enabled_flag
	w.WriteBit(0) // sample_adaptive_offset_enabled_flag
	w.WriteBit(0) // pcm_enabled_flag

	w.WriteUe(uint32(len(s.rps)))
	for i, rps := range s.rps {
		rps.write(w, i, len(s.rps))
	}
	w.WriteBool(s.longTerm)
	if s.longTerm {
		w.WriteUe(0) // num_long_term_ref_pics_sps
	}
	w.WriteBit(0) // sps_temporal_mvp_enabled_flag
	w.WriteBit(0) // strong_intra_smoothing_enabled_flag
	w.WriteBit(0) // vui_parameters_present_flag
	w.WriteBit(0) // sps_extension_present_flag
	w.WriteTrailingBits()
	return utils.InsertH264or5EmulationBytes(w.Bytes())
}

type testPPS struct {
	id        uint32
	spsID     uint32
	dependent bool
	refsL0    uint32 // minus1
	listsMod  bool
}

func (p testPPS) bytes() []byte {
	w := bits.NewWriter()
	writeNalHeader(w, NalPps)
	w.WriteUe(p.id)
	w.WriteUe(p.spsID)
	w.WriteBool(p.dependent)
	w.WriteBit(0) // output_flag_present_flag
	w.Write(3, 0) // num_extra_slice_header_bits
	w.WriteBit(0) // sign_data_hiding_enabled_flag
	w.WriteBit(0) // cabac_init_present_flag
	w.WriteUe(p.refsL0)
	w.WriteUe(0)
	w.WriteSe(0)  // init_qp_minus26
	w.WriteBit(0) // constrained_intra_pred_flag
	w.WriteBit(0) // transform_skip_enabled_flag
	w.WriteBit(0) // cu_qp_delta_enabled_flag
	w.WriteSe(0)
	w.WriteSe(0)
	w.WriteBit(0) // pps_slice_chroma_qp_offsets_present_flag
	w.WriteBit(0) // weighted_pred_flag
	w.WriteBit(0) // weighted_bipred_flag
	w.WriteBit(0) // transquant_bypass_enabled_flag
	w.WriteBit(0) // tiles_enabled_flag
	w.WriteBit(0) // entropy_coding_sync_enabled_flag
	w.WriteBit(0) // pps_loop_filter_across_slices_enabled_flag
	w.WriteBit(0) // deblocking_filter_control_present_flag
	w.WriteBit(0) // pps_scaling_list_data_present_flag
	w.WriteBool(p.listsMod)
	w.WriteUe(0) // log2_parallel_merge_level_minus2
	w.WriteBit(0)
	w.WriteBit(0) // pps_extension_present_flag
	w.WriteTrailingBits()
	return utils.InsertH264or5EmulationBytes(w.Bytes())
}

// testSlice slice segment of a stream built from testSPS{log2PocLsb: 4}
// (8 bit lsb, 16 CTBs) and testPPS. A non-zero address requires
// testPPS{dependent: true}.
type testSlice struct {
	nut       int
	address   uint32 // 0 为首个分片
	dependent bool
	typ       uint32
	ppsID     uint32
	pocLsb    uint64
	rpsIdx    int // -1 在分片头中携带 rps
	rps       testRPS
	numSets   int
	listEntry []uint64
}

func (s testSlice) bytes() []byte {
	w := bits.NewWriter()
	writeNalHeader(w, s.nut)
	w.WriteBool(s.address == 0)
	if IsIRAP(s.nut) {
		w.WriteBit(0)
	}
	w.WriteUe(s.ppsID)
	if s.address != 0 {
		w.WriteBool(s.dependent)
		w.Write(4, uint64(s.address))
	}
	if !s.dependent {
		w.WriteUe(s.typ)
		if !IsIDR(s.nut) {
			w.Write(8, s.pocLsb)
			if s.rpsIdx < 0 {
				w.WriteBit(0)
				s.rps.write(w, s.numSets, s.numSets)
			} else {
				w.WriteBit(1)
				if s.numSets > 1 {
					w.Write(ceilLog2(s.numSets), uint64(s.rpsIdx))
				}
			}
		}
		if s.typ != SliceI {
			w.WriteBit(0) // num_ref_idx_active_override_flag
			// 非 nil 表示 PPS 开启了 lists_modification_present_flag
			if s.listEntry != nil {
				w.WriteBool(len(s.listEntry) > 0)
				for _, e := range s.listEntry {
					w.Write(1, e)
				}
			}
			if s.typ == SliceB {
				w.WriteBit(0) // mvd_l1_zero_flag
			}
			w.WriteUe(0) // five_minus_max_num_merge_cand
		}
		w.WriteSe(0) // slice_qp_delta
	}
	w.WriteTrailingBits() // byte_alignment()
	// slice_segment_data
	w.Write(8, 0xA5)
	w.WriteTrailingBits()
	return utils.InsertH264or5EmulationBytes(w.Bytes())
}
