// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"sync"
	"testing"

	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/av/codec/h264"
	"github.com/cnotch/vdec/av/codec/hevc"
	"github.com/cnotch/vdec/dpb"
	"github.com/cnotch/vdec/utils"
	"github.com/cnotch/vdec/utils/bits"
	"github.com/stretchr/testify/require"
)

// avcSPS baseline SPS, 4 bit frame_num, POC type 0 with 4 bit lsb
type avcSPS struct {
	id        uint32
	level     uint64
	maxRefs   uint32
	gaps      bool
	widthMbs  uint32
	heightMbs uint32
}

func (s avcSPS) bytes() []byte {
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
	w.WriteUe(0) // log2_max_frame_num_minus4
	w.WriteUe(0) // pic_order_cnt_type
	w.WriteUe(0) // log2_max_pic_order_cnt_lsb_minus4
	maxRefs := s.maxRefs
	if maxRefs == 0 {
		maxRefs = 4
	}
	w.WriteUe(maxRefs)
	w.WriteBool(s.gaps)
	wm, hm := s.widthMbs, s.heightMbs
	if wm == 0 {
		wm = 4
	}
	if hm == 0 {
		hm = 4
	}
	w.WriteUe(wm - 1)
	w.WriteUe(hm - 1)
	w.WriteBit(1) // frame_mbs_only_flag
	w.WriteBit(1) // direct_8x8_inference_flag
	w.WriteBit(0) // frame_cropping_flag
	w.WriteBit(0) // vui_parameters_present_flag
	w.WriteTrailingBits()
	return utils.InsertH264or5EmulationBytes(w.Bytes())
}

func (s avcSPS) raw(t *testing.T) *h264.RawSPS {
	sps := new(h264.RawSPS)
	require.NoError(t, sps.Decode(s.bytes()))
	return sps
}

func avcPPS(id, spsID uint32) []byte {
	w := bits.NewWriter()
	w.Write(8, 0x68)
	w.WriteUe(id)
	w.WriteUe(spsID)
	w.WriteBit(0) // entropy_coding_mode_flag
	w.WriteBit(0) // bottom_field_pic_order_in_frame_present_flag
	w.WriteUe(0)  // num_slice_groups_minus1
	w.WriteUe(0)  // num_ref_idx_l0_default_active_minus1
	w.WriteUe(0)
	w.WriteBit(0) // weighted_pred_flag
	w.Write(2, 0) // weighted_bipred_idc
	w.WriteSe(0)
	w.WriteSe(0)
	w.WriteSe(0)
	w.WriteBit(1) // deblocking_filter_control_present_flag
	w.WriteBit(0)
	w.WriteBit(0) // redundant_pic_cnt_present_flag
	w.WriteTrailingBits()
	return utils.InsertH264or5EmulationBytes(w.Bytes())
}

type avcSlice struct {
	idr      bool
	nonRef   bool
	firstMb  uint32
	typ      uint32
	ppsID    uint32
	frameNum uint64
	pocLsb   uint64
}

func (s avcSlice) bytes() []byte {
	w := bits.NewWriter()
	nut := uint64(h264.NalSlice)
	if s.idr {
		nut = h264.NalIdrSlice
	}
	refIdc := uint64(3)
	if s.nonRef {
		refIdc = 0
	}
	w.Write(1, 0)
	w.Write(2, refIdc)
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
	if t == h264.SliceB {
		w.WriteBit(1)
	}
	if t == h264.SliceP || t == h264.SliceB {
		w.WriteBit(0)
		w.WriteBit(0)
		if t == h264.SliceB {
			w.WriteBit(0)
		}
	}
	if refIdc != 0 {
		if s.idr {
			w.WriteBit(0)
			w.WriteBit(0)
		} else {
			w.WriteBit(0)
		}
	}
	w.WriteSe(0) // slice_qp_delta
	w.WriteUe(1) // disable_deblocking_filter_idc
	w.Write(8, 0xA5)
	w.WriteTrailingBits()
	return utils.InsertH264or5EmulationBytes(w.Bytes())
}

func avcIDR(firstMb uint32) avcSlice {
	return avcSlice{idr: true, firstMb: firstMb, typ: h264.SliceI}
}

func avcP(frameNum, pocLsb uint64) avcSlice {
	return avcSlice{typ: h264.SliceP, frameNum: frameNum, pocLsb: pocLsb}
}

// avcRecoveryPoint recovery point SEI with recovery_frame_cnt 0
func avcRecoveryPoint() []byte {
	return []byte{0x06, h264.SeiRecoveryPoint, 0x01, 0x84, 0x80}
}

func hevcNalHeader(w *bits.Writer, nut int) {
	w.WriteBit(0)
	w.Write(6, uint64(nut))
	w.Write(6, 0)
	w.Write(3, 1)
}

// hevcSPS Main 4:2:0 64x64, CTB 16x16, 8 bit POC lsb, no RPS in the SPS
func hevcSPS() []byte {
	w := bits.NewWriter()
	hevcNalHeader(w, hevc.NalSps)
	w.Write(4, 0)
	w.Write(3, 0)
	w.WriteBit(1)

	w.Write(2, 0)
	w.WriteBit(0)
	w.Write(5, hevc.ProfileMain)
	w.Write(32, 0x60000000)
	w.WriteBit(1)
	w.WriteBit(0)
	w.WriteBit(0)
	w.WriteBit(1)
	w.Write(43, 0)
	w.WriteBit(0)
	w.Write(8, 93)

	w.WriteUe(0) // sps_seq_parameter_set_id
	w.WriteUe(1) // chroma_format_idc
	w.WriteUe(64)
	w.WriteUe(64)
	w.WriteBit(0) // conformance_window_flag
	w.WriteUe(0)
	w.WriteUe(0)
	w.WriteUe(4) // log2_max_pic_order_cnt_lsb_minus4

	w.WriteBit(1)
	w.WriteUe(4) // sps_max_dec_pic_buffering_minus1
	w.WriteUe(0)
	w.WriteUe(0)

	w.WriteUe(0)
	w.WriteUe(1)
	w.WriteUe(0)
	w.WriteUe(1)
	w.WriteUe(0)
	w.WriteUe(0)

	w.WriteBit(0)
	w.WriteBit(0)
	w.WriteBit(0)
	w.WriteBit(0)

	w.WriteUe(0) // num_short_term_ref_pic_sets
	w.WriteBit(0)
	w.WriteBit(0)
	w.WriteBit(0)
	w.WriteBit(0)
	w.WriteBit(0)
	w.WriteTrailingBits()
	return utils.InsertH264or5EmulationBytes(w.Bytes())
}

func hevcPPS() []byte {
	return hevcPPSWithID(0)
}

func hevcPPSWithID(id uint32) []byte {
	w := bits.NewWriter()
	hevcNalHeader(w, hevc.NalPps)
	w.WriteUe(id)
	w.WriteUe(0)
	w.WriteBit(0) // dependent_slice_segments_enabled_flag
	w.WriteBit(0)
	w.Write(3, 0)
	w.WriteBit(0)
	w.WriteBit(0)
	w.WriteUe(0)
	w.WriteUe(0)
	w.WriteSe(0)
	w.WriteBit(0)
	w.WriteBit(0)
	w.WriteBit(0)
	w.WriteSe(0)
	w.WriteSe(0)
	for i := 0; i < 10; i++ {
		w.WriteBit(0)
	}
	w.WriteUe(0)
	w.WriteBit(0)
	w.WriteBit(0)
	w.WriteTrailingBits()
	return utils.InsertH264or5EmulationBytes(w.Bytes())
}

// hevcSlice 单片图像，neg 为参考图像的 POC 差（负数）
func hevcSlice(nut int, typ uint32, pocLsb uint64, neg ...int32) []byte {
	w := bits.NewWriter()
	hevcNalHeader(w, nut)
	w.WriteBit(1) // first_slice_segment_in_pic_flag
	if hevc.IsIRAP(nut) {
		w.WriteBit(0)
	}
	w.WriteUe(0)
	w.WriteUe(typ)
	if !hevc.IsIDR(nut) {
		w.Write(8, pocLsb)
		w.WriteBit(0) // short_term_ref_pic_set_sps_flag
		w.WriteUe(uint32(len(neg)))
		w.WriteUe(0)
		prev := int32(0)
		for _, d := range neg {
			w.WriteUe(uint32(prev - d - 1))
			w.WriteBit(1)
			prev = d
		}
	}
	if typ != hevc.SliceI {
		w.WriteBit(0) // num_ref_idx_active_override_flag
		if typ == hevc.SliceB {
			w.WriteBit(0)
		}
		w.WriteUe(0)
	}
	w.WriteSe(0)
	w.WriteTrailingBits()
	w.Write(8, 0xA5)
	w.WriteTrailingBits()
	return utils.InsertH264or5EmulationBytes(w.Bytes())
}

// hevcBrokenSlice 引用 ppsID 的首个片段，片头在 PPS id 之后截断
func hevcBrokenSlice(nut int, ppsID uint32) []byte {
	w := bits.NewWriter()
	hevcNalHeader(w, nut)
	w.WriteBit(1)
	if hevc.IsIRAP(nut) {
		w.WriteBit(0)
	}
	w.WriteUe(ppsID)
	w.WriteTrailingBits()
	return utils.InsertH264or5EmulationBytes(w.Bytes())
}

// fakeEngine 记录提交的帧，同步或异步完成
type fakeEngine struct {
	ctx    *Context
	async  bool
	status codec.Code
	fail   bool

	mu    sync.Mutex
	jobs  []Job
	busy  map[int]bool
	reuse bool
	wg    sync.WaitGroup
}

func (e *fakeEngine) Submit(job *Job) error {
	if e.fail {
		return codec.ErrEngine
	}
	e.mu.Lock()
	if e.busy[job.Slot] {
		e.reuse = true
	}
	e.busy[job.Slot] = true
	cp := *job
	cp.Slices = append([]SliceParam(nil), job.Slices...)
	e.jobs = append(e.jobs, cp)
	e.mu.Unlock()

	done := Completion{Slot: job.Slot, PicID: job.PicID, Status: e.status}
	if e.async {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.complete(done)
		}()
		return nil
	}
	e.complete(done)
	return nil
}

func (e *fakeEngine) complete(cp Completion) {
	e.mu.Lock()
	delete(e.busy, cp.Slot)
	e.mu.Unlock()
	e.ctx.EndFrameDecoding(cp)
}

func (e *fakeEngine) submitted() []Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Job(nil), e.jobs...)
}

// harness 一个通道和它的回调记录
type harness struct {
	t      *testing.T
	ctx    *Context
	engine *fakeEngine

	resolutions int
	bufferCount int
	bufferSize  int
	settings    codec.StreamSettings
	allocErr    error
	displayed   []int32
	codes       []codec.Code
}

func newHarness(t *testing.T, settings Settings, async bool) *harness {
	h := &harness{t: t, engine: &fakeEngine{async: async, busy: make(map[int]bool)}}
	ctx, err := NewContext(settings, h.engine, Callbacks{
		ResolutionFound: func(count, size int, s codec.StreamSettings, crop codec.CropInfo) error {
			h.resolutions++
			h.bufferCount, h.bufferSize, h.settings = count, size, s
			return h.allocErr
		},
		FrameDisplay: func(p *dpb.Picture) {
			h.displayed = append(h.displayed, p.POC)
		},
		Error: func(code codec.Code) {
			h.codes = append(h.codes, code)
		},
	})
	require.NoError(t, err)
	h.engine.ctx = ctx
	h.ctx = ctx
	return h
}

func (h *harness) feed(data []byte, last bool) {
	require.NoError(h.t, h.ctx.DecodeNAL(NAL{Data: data, Last: last}))
}

func (h *harness) flush() {
	require.NoError(h.t, h.ctx.Flush())
}

func (h *harness) reported(code codec.Code) bool {
	for _, c := range h.codes {
		if c == code {
			return true
		}
	}
	return false
}

func (h *harness) avcHeaders(sps avcSPS, ppsCount int) {
	h.feed(sps.bytes(), false)
	for i := 0; i < ppsCount; i++ {
		h.feed(avcPPS(uint32(i), sps.id), false)
	}
}
