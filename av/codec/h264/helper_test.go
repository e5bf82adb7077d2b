// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

import (
	"github.com/cnotch/vdec/utils"
	"github.com/cnotch/vdec/utils/bits"
)

// testSPS baseline profile SPS without VUI.
type testSPS struct {
	id           uint32
	level        uint64
	log2FrameNum uint32 // minus4
	pocType      uint32
	log2PocLsb   uint32 // minus4
	maxRefs      uint32
	gaps         bool
	widthMbs     uint32
	heightMbs    uint32
	fieldCoding  bool
}

func (s testSPS) bytes() []byte {
	w := bits.NewWriter()
	w.Write(8, 0x67)
	w.Write(8, 66)
	w.Write(8, 0)
	level := s.level
	if level == 0 {
		level = 30
	}
	w.Write(8, level)
	w.WriteUe(s.id)
	w.WriteUe(s.log2FrameNum)
	w.WriteUe(s.pocType)
	if s.pocType == 0 {
		w.WriteUe(s.log2PocLsb)
	}
	w.WriteUe(s.maxRefs)
	w.WriteBool(s.gaps)
	w.WriteUe(s.widthMbs - 1)
	w.WriteUe(s.heightMbs - 1)
	w.WriteBool(!s.fieldCoding)
	if s.fieldCoding {
		w.WriteBit(0)
	}
	w.WriteBit(1) // direct_8x8_inference_flag
	w.WriteBit(0) // frame_cropping_flag
	w.WriteBit(0) // vui_parameters_present_flag
	w.WriteTrailingBits()
	return utils.InsertH264or5EmulationBytes(w.Bytes())
}

type testPPS struct {
	id     uint32
	spsID  uint32
	refsL0 uint32 // minus1
	groups uint32
}

func (p testPPS) bytes() []byte {
	w := bits.NewWriter()
	w.Write(8, 0x68)
	w.WriteUe(p.id)
	w.WriteUe(p.spsID)
	w.WriteBit(0) // entropy_coding_mode_flag
	w.WriteBit(0) // bottom_field_pic_order_in_frame_present_flag
	w.WriteUe(p.groups)
	w.WriteUe(p.refsL0)
	w.WriteUe(0)
	w.WriteBit(0) // weighted_pred_flag
	w.Write(2, 0) // weighted_bipred_idc
	w.WriteSe(0)  // pic_init_qp_minus26
	w.WriteSe(0)  // pic_init_qs_minus26
	w.WriteSe(0)  // chroma_qp_index_offset
	w.WriteBit(1) // deblocking_filter_control_present_flag
	w.WriteBit(0) // constrained_intra_pred_flag
	w.WriteBit(0) // redundant_pic_cnt_present_flag
	w.WriteTrailingBits()
	return utils.InsertH264or5EmulationBytes(w.Bytes())
}

// testSlice slice of a stream built from testSPS{log2FrameNum: 0,
// log2PocLsb: 0} and testPPS.
type testSlice struct {
	idr      bool
	refIdc   uint64
	firstMb  uint32
	typ      uint32
	ppsID    uint32
	frameNum uint64
	pocLsb   uint64
	mmco     []MMCO
}

func (s testSlice) bytes() []byte {
	w := bits.NewWriter()
	nut := uint64(NalSlice)
	if s.idr {
		nut = NalIdrSlice
	}
	w.Write(1, 0)
	w.Write(2, s.refIdc)
	w.Write(5, nut)
	w.WriteUe(s.firstMb)
	w.WriteUe(s.typ)
	w.WriteUe(s.ppsID)
	w.Write(4, s.frameNum)
	if s.idr {
		w.WriteUe(0)
	}
	w.Write(4, s.pocLsb)
	t := s.typ % 5
	if t == SliceB {
		w.WriteBit(1)
	}
	if t == SliceP || t == SliceB {
		w.WriteBit(0) // num_ref_idx_active_override_flag
		w.WriteBit(0) // ref_pic_list_modification_flag_l0
		if t == SliceB {
			w.WriteBit(0)
		}
	}
	if s.refIdc != 0 {
		if s.idr {
			w.WriteBit(0)
			w.WriteBit(0)
		} else if len(s.mmco) == 0 {
			w.WriteBit(0)
		} else {
			w.WriteBit(1)
			for _, m := range s.mmco {
				w.WriteUe(uint32(m.Op))
				if m.Op == 1 || m.Op == 3 {
					w.WriteUe(m.DifferenceOfPicNumsMinus1)
				}
				if m.Op == 2 {
					w.WriteUe(m.LongTermPicNum)
				}
				if m.Op == 3 || m.Op == 6 {
					w.WriteUe(m.LongTermFrameIdx)
				}
				if m.Op == 4 {
					w.WriteUe(m.MaxLongTermFrameIdxPlus1)
				}
			}
			w.WriteUe(0)
		}
	}
	w.WriteSe(0) // slice_qp_delta
	w.WriteUe(1) // disable_deblocking_filter_idc
	// slice_data
	w.Write(8, 0xA5)
	w.WriteTrailingBits()
	return utils.InsertH264or5EmulationBytes(w.Bytes())
}
