// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/av/codec/hevc"
	"github.com/cnotch/vdec/dpb"
)

// hevcDecoder H.265 的 NAL 处理
type hevcDecoder struct {
	c   *Context
	ps  *hevc.ParamSets
	mgr *dpb.HEVC

	sps     *hevc.RawSPS
	lastPPS int
	cur     *hevc.SliceHeader // 当前图像的第一个片段
	prev    *hevc.SliceHeader // 最近的独立片段，依赖片段从它继承
	// skipping 正在跳过一个图像剩余的片段
	skipping bool
}

func newHEVCDecoder(c *Context) *hevcDecoder {
	return &hevcDecoder{
		c:   c,
		ps:  hevc.NewParamSets(),
		mgr: dpb.NewHEVC(c.dpb),
	}
}

func (d *hevcDecoder) maxSlices() int { return hevc.MaxSlices }
func (d *hevcDecoder) commit()        { d.mgr.Commit() }
func (d *hevcDecoder) rollback()      { d.mgr.Rollback() }

func hevcCapacity(sps *hevc.RawSPS) int {
	capacity := sps.MaxDecPicBuffering()
	if c := sps.DpbCapacity(); capacity > c {
		capacity = c
	}
	return capacity
}

func hevcGeometry(sps *hevc.RawSPS) *geometry {
	return &geometry{
		req: sps.Requirements(),
		coded: codec.Dimension{
			Width:  int(sps.PicWidthInLumaSamples),
			Height: int(sps.PicHeightInLumaSamples),
		},
		crop:     sps.CropInfo(),
		capacity: hevcCapacity(sps),
		profile:  int(sps.ProfileTierLevel.GeneralProfileIdc),
	}
}

func (d *hevcDecoder) poison(sps *hevc.RawSPS) func() {
	return func() { d.ps.PoisonSPS(int(sps.SeqParameterSetID)) }
}

// startsAccessUnit 7.4.2.4.4: 这些 NAL 在访问单元的第一个 VCL 之前
func startsAccessUnit(nt int) bool {
	switch {
	case nt == hevc.NalVps, nt == hevc.NalSps, nt == hevc.NalPps,
		nt == hevc.NalAud, nt == hevc.NalSeiPrefix:
		return true
	case nt >= 41 && nt <= 44, nt >= 48 && nt <= 55:
		return true
	}
	return false
}

func (d *hevcDecoder) route(nal []byte, last bool) error {
	c := d.c
	nt := hevc.NalType(nal)
	if startsAccessUnit(nt) {
		if err := c.endFrame(); err != nil {
			return err
		}
	}

	switch {
	case hevc.IsVCL(nt):
		c.stats.AddSlice()
		return d.decodeSlice(nal, last)
	case nt == hevc.NalVps:
		if _, err := d.ps.ParseVPS(nal); err != nil {
			c.lastErr = err
			c.logger.Warnf("vps parse failed: %v", err)
		}
	case nt == hevc.NalSps:
		id, err := d.ps.ParseSPS(nal)
		if err != nil {
			c.lastErr = err
			c.logger.Warnf("sps parse failed: %v", err)
			break
		}
		c.logger.Debugf("sps %d parsed", id)
	case nt == hevc.NalPps:
		id, err := d.ps.ParsePPS(nal)
		if err != nil {
			c.lastErr = err
			c.logger.Warnf("pps parse failed: %v", err)
			break
		}
		if id >= d.lastPPS {
			d.lastPPS = id
		}
		c.logger.Debugf("pps %d parsed", id)
	case hevc.IsSEI(nt):
		return d.parseSEI(nal)
	case hevc.IsEndOfSequence(nt):
		if err := c.endFrame(); err != nil {
			return err
		}
		d.mgr.EndOfSequence()
		d.cur, d.prev = nil, nil
	case nt == hevc.NalAud, nt == hevc.NalFdNut:
	default:
		c.logger.Debugf("nal type %d ignored", nt)
	}
	return nil
}

func (d *hevcDecoder) parseSEI(nal []byte) error {
	c := d.c
	sei, err := hevc.ParseSEI(nal)
	if err != nil {
		c.lastErr = err
		c.logger.Debugf("sei: %v", err)
	}
	if rp := sei.RecoveryPoint; rp != nil {
		n := int(rp.RecoveryPocCnt)
		if n < 0 {
			n = 0
		}
		c.recoveryCnt = n + 1
		c.logger.Debugf("recovery point, poc count %d", rp.RecoveryPocCnt)
	}
	if sei.BufferingPeriodSPS >= 0 {
		d.ps.SetActiveSPS(sei.BufferingPeriodSPS)
		if sps, ok := d.ps.ActiveSPS(); ok {
			if _, err := c.admit(hevcGeometry(sps), d.poison(sps)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *hevcDecoder) decodeSlice(nal []byte, last bool) error {
	c := d.c
	h, err := hevc.ParseSliceHeader(nal, d.ps, d.lastPPS, d.prev)
	if err == nil {
		ok, ferr := c.admit(hevcGeometry(h.SPS), d.poison(h.SPS))
		if ferr != nil {
			return ferr
		}
		if !ok {
			err = c.lastErr
		}
	}
	first := h.FirstSliceSegmentInPicFlag == 1
	if err != nil {
		c.logger.Debugf("hevc slice header: %v", err)
		if first {
			// 新图像的第一个片段无效
			if endErr := c.endFrame(); endErr != nil {
				return endErr
			}
			d.skipping = false
		}
		if d.skipping {
			c.drop(err, "segment of a skipped picture: %v", err)
			return nil
		}
		return c.concealInvalid(err, first, last, func() (bool, error) {
			return d.startConcealed(h)
		})
	}
	d.lastPPS = int(h.PicParameterSetID)
	if h.DependentSliceSegmentFlag == 0 {
		d.prev = h
	}

	f := &c.frame
	if f.state == accumulating && first {
		if err := c.endFrame(); err != nil {
			return err
		}
	}
	if f.state == noFrame {
		if first {
			d.skipping = false
			c.capped = false
		} else if d.skipping || c.capped {
			c.drop(nil, "segment at %d of a skipped picture", h.SliceSegmentAddress)
			return nil
		}
		ok, err := d.startPicture(h)
		if err != nil || !ok {
			return err
		}
	}

	lists, ok := d.mgr.RefLists(h)
	s := &slice{
		first:     first,
		firstUnit: int(h.SliceSegmentAddress),
		typ:       h.CodecType(),
		header:    h,
		data:      nal,
		lists:     lists,
	}
	return c.pushSlice(s, ok, last)
}

func (d *hevcDecoder) configure(sps *hevc.RawSPS) {
	if d.sps != sps {
		d.mgr.Configure(sps)
		d.sps = sps
	}
}

// startPicture RASL 跳过、同步点检查、POC、清空 DPB 和 RPS 标记
func (d *hevcDecoder) startPicture(h *hevc.SliceHeader) (bool, error) {
	c := d.c
	d.configure(h.SPS)
	d.mgr.Begin()

	if !d.mgr.StartPicture(h) {
		d.mgr.Rollback()
		d.skipping = true
		c.drop(nil, "rasl picture skipped")
		return false, nil
	}
	sync := h.IsIRAP() || c.firstValid || c.recoveryCnt > 0 ||
		(c.settings.UseIAsSync && h.SliceType == hevc.SliceI)
	if !sync {
		d.mgr.Rollback()
		d.skipping = true
		c.drop(nil, "waiting for a sync point, nal type %d", h.NalType())
		return false, nil
	}

	poc := d.mgr.ComputePOC(h)
	d.mgr.ClearDPB(h)
	if missing := d.mgr.ApplyRPS(h, poc); missing > 0 {
		c.logger.Debugf("picture %d misses %d reference pictures", poc, missing)
	}

	job, pic, err := c.openFrame()
	if err != nil {
		d.mgr.Rollback()
		return false, err
	}
	pic.POC = poc
	c.beginFrame(job, pic, hevcPicParam(h.SPS, h, poc))
	d.cur = h
	c.firstValid = true
	c.concealHead(int(h.SliceSegmentAddress))
	return true, nil
}

// startConcealed 用替代的参数集开始一个整帧隐藏的图像，DPB 的标记不变
func (d *hevcDecoder) startConcealed(h *hevc.SliceHeader) (bool, error) {
	c := d.c
	sps := h.SPS
	if h.PPS == nil || sps == nil || !c.resolved ||
		int(sps.PicWidthInLumaSamples) > c.coded.Width ||
		int(sps.PicHeightInLumaSamples) > c.coded.Height {
		return false, nil
	}
	if d.sps == nil {
		d.configure(sps)
	}

	d.mgr.Begin()
	job, pic, err := c.openFrame()
	if err != nil {
		d.mgr.Rollback()
		return false, err
	}
	pic.POC = d.mgr.ComputePOC(h)
	c.beginFrame(job, pic, hevcPicParam(sps, h, pic.POC))
	d.cur, d.prev = nil, nil
	return true, nil
}

func (d *hevcDecoder) mark(f *frame) bool {
	if f.whole || d.cur == nil {
		return d.mgr.EndConcealed(f.pic)
	}
	return d.mgr.EndFrame(f.pic, d.cur)
}

func hevcPicParam(sps *hevc.RawSPS, h *hevc.SliceHeader, poc int32) PicParam {
	nt := h.NalType()
	return PicParam{
		Codec: codec.HEVC,
		Dim: codec.Dimension{
			Width:  int(sps.PicWidthInLumaSamples),
			Height: int(sps.PicHeightInLumaSamples),
		},
		Crop:           sps.CropInfo(),
		UnitSize:       1 << uint(sps.CtbLog2SizeY()),
		WidthInUnits:   sps.PicWidthInCtbsY(),
		HeightInUnits:  sps.PicHeightInCtbsY(),
		BitDepthLuma:   sps.BitDepthLuma(),
		BitDepthChroma: sps.BitDepthChroma(),
		Chroma:         codec.ChromaModeFromIdc(int(sps.ChromaFormatIdc)),
		POC:            poc,
		IRAP:           hevc.IsIRAP(nt),
		Reference:      !hevc.IsSubLayerNonRef(nt),
	}
}
