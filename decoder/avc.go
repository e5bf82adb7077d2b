// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/av/codec/h264"
	"github.com/cnotch/vdec/dpb"
)

// avcDecoder H.264 的 NAL 处理
type avcDecoder struct {
	c   *Context
	ps  *h264.ParamSets
	mgr *dpb.AVC

	sps     *h264.RawSPS // 已配置到 DPB 的 SPS
	lastPPS int          // 最后一个有效片的 PPS id
	cur     *h264.SliceHeader
	// whole 整帧隐藏图像的片头，已清除参考帧标记
	whole *h264.SliceHeader
}

func newAVCDecoder(c *Context) *avcDecoder {
	return &avcDecoder{
		c:   c,
		ps:  h264.NewParamSets(),
		mgr: dpb.NewAVC(c.dpb),
	}
}

func (d *avcDecoder) maxSlices() int { return h264.MaxSlices }
func (d *avcDecoder) commit()        { d.mgr.Commit() }
func (d *avcDecoder) rollback()      { d.mgr.Rollback() }

func avcGeometry(sps *h264.RawSPS) *geometry {
	return &geometry{
		req:      sps.Requirements(),
		coded:    codec.Dimension{Width: sps.CodedWidth(), Height: sps.CodedHeight()},
		crop:     sps.CropInfo(),
		capacity: sps.DpbCapacity(),
		profile:  int(sps.ProfileIdc),
	}
}

func (d *avcDecoder) poison(sps *h264.RawSPS) func() {
	return func() { d.ps.PoisonSPS(int(sps.SeqParameterSetID)) }
}

func (d *avcDecoder) route(nal []byte, last bool) error {
	c := d.c
	nt := h264.NalType(nal)

	// 7.4.1.2.3: 这些 NAL 开始一个新的访问单元
	if nt == h264.NalSei || nt == h264.NalSps || nt == h264.NalPps || nt == h264.NalAud ||
		(nt >= h264.NalPrefix && nt <= 18) {
		if err := c.endFrame(); err != nil {
			return err
		}
	}

	switch {
	case h264.IsSlice(nt):
		c.stats.AddSlice()
		return d.decodeSlice(nal, last)
	case nt == h264.NalSps:
		id, err := d.ps.ParseSPS(nal)
		if err != nil {
			c.lastErr = err
			c.logger.Warnf("sps parse failed: %v", err)
			break
		}
		c.logger.Debugf("sps %d parsed", id)
	case nt == h264.NalPps:
		id, err := d.ps.ParsePPS(nal)
		if err != nil {
			c.lastErr = err
			c.logger.Warnf("pps parse failed: %v", err)
			break
		}
		c.logger.Debugf("pps %d parsed", id)
	case nt == h264.NalSei:
		return d.parseSEI(nal)
	case h264.IsEndOfSequence(nt):
		if err := c.endFrame(); err != nil {
			return err
		}
		// 下一帧必须是 IDR
		d.mgr.Reset()
		d.cur = nil
	case nt == h264.NalAud:
	default:
		c.logger.Debugf("nal type %d ignored", nt)
	}
	return nil
}

func (d *avcDecoder) parseSEI(nal []byte) error {
	c := d.c
	sei, err := h264.ParseSEI(nal)
	if err != nil {
		c.lastErr = err
		c.logger.Debugf("sei: %v", err)
	}
	if rp := sei.RecoveryPoint; rp != nil {
		// 包括当前帧在内
		c.recoveryCnt = int(rp.RecoveryFrameCnt) + 1
		c.logger.Debugf("recovery point, %d frames", rp.RecoveryFrameCnt)
	}
	if sei.BufferingPeriodSPS >= 0 {
		d.ps.SetActiveSPS(sei.BufferingPeriodSPS)
		if sps, ok := d.ps.ActiveSPS(); ok {
			if _, err := c.admit(avcGeometry(sps), d.poison(sps)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *avcDecoder) decodeSlice(nal []byte, last bool) error {
	c := d.c
	h, err := h264.ParseSliceHeader(nal, d.ps, d.lastPPS)
	if err == nil {
		ok, ferr := c.admit(avcGeometry(h.SPS), d.poison(h.SPS))
		if ferr != nil {
			return ferr
		}
		if !ok {
			err = c.lastErr
		}
	}
	if err != nil {
		c.logger.Debugf("avc slice header: %v", err)
		return c.concealInvalid(err, h.FirstMbInSlice == 0, last, func() (bool, error) {
			return d.startConcealed(h)
		})
	}
	if h.RedundantPicCnt > 0 {
		c.drop(nil, "redundant slice")
		return nil
	}
	d.lastPPS = int(h.PicParameterSetID)

	f := &c.frame
	if f.state == accumulating && d.isNewPicture(h) {
		if err := c.endFrame(); err != nil {
			return err
		}
	}
	if f.state == noFrame {
		if c.capped && !d.isNewPicture(h) {
			c.drop(nil, "slice at %d after the slice cap", h.FirstMbInSlice)
			return nil
		}
		c.capped = false
		ok, err := d.startPicture(h)
		if err != nil || !ok {
			return err
		}
	}

	lists, ok := d.mgr.RefLists(h)
	s := &slice{
		first:     h.FirstMbInSlice == 0,
		firstUnit: int(h.FirstMbInSlice),
		typ:       h.CodecType(),
		header:    h,
		data:      nal,
		lists:     lists,
	}
	return c.pushSlice(s, ok, last)
}

// isNewPicture 7.4.1.2.4 的第一个片检测；不支持任意片顺序
func (d *avcDecoder) isNewPicture(h *h264.SliceHeader) bool {
	p := d.cur
	if h.FirstMbInSlice == 0 {
		return true
	}
	if p == nil {
		// 整帧隐藏的图像没有可比较的片头
		return d.c.frame.state != accumulating
	}
	return h.FrameNum != p.FrameNum ||
		h.PicParameterSetID != p.PicParameterSetID ||
		h.IsReference() != p.IsReference() ||
		h.IsIDR() != p.IsIDR() ||
		(h.IsIDR() && h.IdrPicID != p.IdrPicID) ||
		h.PicOrderCntLsb != p.PicOrderCntLsb ||
		h.DeltaPicOrderCntBottom != p.DeltaPicOrderCntBottom ||
		h.DeltaPicOrderCnt != p.DeltaPicOrderCnt
}

func (d *avcDecoder) configure(sps *h264.RawSPS) {
	if d.sps != sps {
		d.mgr.Configure(sps)
		d.sps = sps
	}
}

// startPicture 同步点检查、帧号间隙、分配缓冲和计算 POC
func (d *avcDecoder) startPicture(h *h264.SliceHeader) (bool, error) {
	c := d.c
	d.configure(h.SPS)
	d.mgr.Begin()

	sync := h.IsIDR() || c.firstValid || c.recoveryCnt > 0 ||
		(c.settings.UseIAsSync && h.CodecType().IsIntra())
	if !sync {
		d.mgr.Rollback()
		c.drop(nil, "waiting for a sync point, frame_num %d", h.FrameNum)
		return false, nil
	}

	if c.firstValid && d.mgr.HasFrameNumGap(h) {
		if n := d.mgr.FillFrameNumGap(h); n > 0 {
			c.logger.Debugf("frame_num gap before %d, %d frames missing", h.FrameNum, n)
		} else {
			c.logger.Warnf("frame_num gap before %d, frames lost", h.FrameNum)
		}
	}

	job, pic, err := c.openFrame()
	if err != nil {
		d.mgr.Rollback()
		return false, err
	}
	pic.POC = d.mgr.ComputePOC(h)
	c.beginFrame(job, pic, avcPicParam(h.SPS, h, pic.POC))
	d.cur = h
	d.whole = nil
	c.firstValid = true
	c.concealHead(int(h.FirstMbInSlice))
	return true, nil
}

// startConcealed 用替代的参数集开始一个整帧隐藏的图像
func (d *avcDecoder) startConcealed(h *h264.SliceHeader) (bool, error) {
	c := d.c
	sps := h.SPS
	if h.PPS == nil || sps == nil || !c.resolved ||
		sps.CodedWidth() > c.coded.Width || sps.CodedHeight() > c.coded.Height {
		return false, nil
	}
	if d.sps == nil {
		d.configure(sps)
	}

	// 片头不可信，不做参考帧标记
	whole := *h
	whole.MMCOs = nil
	whole.AdaptiveRefPicMarkingModeFlag = 0
	whole.LongTermReferenceFlag = 0
	whole.NoOutputOfPriorPicsFlag = 0
	if whole.IsIDR() {
		whole.FrameNum = 0
		whole.PicOrderCntLsb = 0
		whole.DeltaPicOrderCntBottom = 0
	}

	d.mgr.Begin()
	job, pic, err := c.openFrame()
	if err != nil {
		d.mgr.Rollback()
		return false, err
	}
	pic.POC = d.mgr.ComputePOC(&whole)
	if whole.IsIDR() {
		pic.POC = 0
	}
	c.beginFrame(job, pic, avcPicParam(sps, &whole, pic.POC))
	d.cur = nil
	d.whole = &whole
	return true, nil
}

func (d *avcDecoder) mark(f *frame) bool {
	if !f.whole {
		return d.mgr.EndFrame(f.pic, d.cur)
	}
	if d.whole != nil && d.whole.IsIDR() {
		return d.mgr.EndFrame(f.pic, d.whole)
	}
	return d.mgr.EndConcealed(f.pic)
}

func avcPicParam(sps *h264.RawSPS, h *h264.SliceHeader, poc int32) PicParam {
	return PicParam{
		Codec:          codec.AVC,
		Dim:            codec.Dimension{Width: sps.CodedWidth(), Height: sps.CodedHeight()},
		Crop:           sps.CropInfo(),
		UnitSize:       16,
		WidthInUnits:   sps.PicWidthInMbs(),
		HeightInUnits:  sps.FrameHeightInMbs(),
		BitDepthLuma:   sps.BitDepthLuma(),
		BitDepthChroma: sps.BitDepthChroma(),
		Chroma:         codec.ChromaModeFromIdc(int(sps.ChromaFormatIdc)),
		POC:            poc,
		IRAP:           h.IsIDR(),
		Reference:      h.IsReference(),
	}
}
