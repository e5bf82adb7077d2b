// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/dpb"
	"github.com/pkg/errors"
)

type frameState int

// 帧组装状态
const (
	noFrame frameState = iota
	accumulating
	ending
)

// frame 正在组装的一帧
type frame struct {
	state frameState
	pic   *dpb.Picture
	job   *Job

	nextUnit  int  // 下一个片应该开始的地址
	concealed bool // 含隐藏片
	// whole 第一个片无效，整帧按隐藏图像存入 DPB
	whole bool
}

func (f *frame) numSlices() int {
	if f.job == nil {
		return 0
	}
	return len(f.job.Slices)
}

// activate 检查 SPS 与通道的兼容性，首个兼容的 SPS 确定缓冲几何并回调
// ResolutionFound。不兼容返回 codec.ErrIncompatible；缓冲分配失败和
// 分辨率变大是致命的。
func (c *Context) activate(g *geometry) error {
	count := dpb.PoolSize(g.capacity, c.settings.StackSize)
	if c.resolved {
		// 缓冲已按首个 SPS 分配，变大先于兼容检查报告
		if count > c.pool.Size() || g.coded.Width > c.coded.Width || g.coded.Height > c.coded.Height {
			return errors.Wrapf(codec.ErrResolutionChange, "%dx%d with %d buffers, allocated %dx%d with %d",
				g.coded.Width, g.coded.Height, count, c.coded.Width, c.coded.Height, c.pool.Size())
		}
		return codec.CheckCompatible(g.req, c.stream, c.settings.HWBitDepth)
	}
	if err := codec.CheckCompatible(g.req, c.stream, c.settings.HWBitDepth); err != nil {
		return err
	}

	settings := c.stream
	if settings.Dim.Width == 0 || settings.Dim.Height == 0 {
		settings.Dim = g.req.Cropped
	}
	if settings.Chroma == codec.ChromaUnset {
		settings.Chroma = g.req.Chroma
	}
	if settings.BitDepth == 0 {
		settings.BitDepth = maxInt(g.req.BitDepthLuma, g.req.BitDepthChroma)
	}
	if settings.Level == 0 {
		settings.Level = g.req.Level
	}
	if settings.Profile == 0 {
		settings.Profile = g.profile
	}
	if settings.Sequence == codec.SequenceUnknown {
		settings.Sequence = g.req.Sequence
	}

	size := bufferSize(g.coded, g.req.Chroma, maxInt(g.req.BitDepthLuma, g.req.BitDepthChroma))
	if c.cb.ResolutionFound != nil {
		if err := c.cb.ResolutionFound(count, size, settings, g.crop); err != nil {
			return errors.Wrapf(codec.ErrNoMemory, "allocate %d buffers of %d bytes: %v", count, size, err)
		}
	}
	c.pool = dpb.NewPool(count)
	c.dpb.SetPool(c.pool)
	c.resolved = true
	c.stream = settings
	c.coded = g.coded
	c.bufferSize = size
	c.logger.Infof("resolution found: %dx%d (coded %dx%d), %d buffers of %d bytes",
		settings.Dim.Width, settings.Dim.Height, g.coded.Width, g.coded.Height, count, size)
	return nil
}

// bufferSize 一帧图像缓冲的字节数
func bufferSize(dim codec.Dimension, chroma codec.ChromaMode, bitDepth int) int {
	luma := dim.Width * dim.Height
	size := luma
	switch chroma {
	case codec.Chroma420, codec.ChromaUnset:
		size += luma / 2
	case codec.Chroma422:
		size += luma
	case codec.Chroma444:
		size += 2 * luma
	}
	if bitDepth > 8 {
		size *= 2
	}
	return size
}

// acquireSlot 取一个空闲的任务槽，两个槽都在途时等待引擎完成一帧
func (c *Context) acquireSlot() (*Job, error) {
	for {
		if job, ok := c.arena.tryAcquire(); ok {
			return job, nil
		}
		v := c.completions.Pop()
		if v == nil {
			return nil, ErrClosed
		}
		c.complete(v.(*Completion))
	}
}

// openFrame 取任务槽并分配图像缓冲，失败时由调用者回滚 DPB 事务
func (c *Context) openFrame() (*Job, *dpb.Picture, error) {
	job, err := c.acquireSlot()
	if err != nil {
		return nil, nil, err
	}
	pic, err := c.dpb.NewPicture()
	if err != nil && c.arena.inUse() > 1 {
		// 缓冲可能还被另一帧占用
		if err = c.waitUntil(1); err == nil {
			pic, err = c.dpb.NewPicture()
		}
	}
	if err != nil {
		c.arena.release(job.Slot)
		if code, ok := errors.Cause(err).(codec.Code); ok {
			c.report(code)
		}
		return nil, nil, err
	}
	return job, pic, nil
}

// beginFrame 开始组装一帧
func (c *Context) beginFrame(job *Job, pic *dpb.Picture, pp PicParam) {
	job.PicID = pic.ID
	job.Buffer = pic.Buffer
	job.Pic = pp
	pic.Dim = pp.Dim
	pic.Crop = pp.Crop
	pic.SliceType = codec.SliceI
	c.frame = frame{state: accumulating, pic: pic, job: job}
}

// admit 检查片头或 SPS 激活时的参数集。不兼容的 SPS 由 poison 隔离并
// 返回 false；返回的错误都是致命的。
func (c *Context) admit(g *geometry, poison func()) (bool, error) {
	err := c.activate(g)
	if err == nil {
		return true, nil
	}
	switch cause := errors.Cause(err); cause {
	case codec.ErrIncompatible:
		poison()
		c.lastErr = err
		c.report(codec.WarnSPSNotCompatible)
		c.logger.Warnf("sps poisoned: %v", err)
		return false, nil
	default:
		if code, ok := cause.(codec.Code); ok {
			c.report(code)
		}
		return false, err
	}
}

// addSlice 追加一个片命令
func (c *Context) addSlice(sp SliceParam) {
	f := &c.frame
	if sp.Type == codec.SliceConceal {
		f.concealed = true
	}
	f.job.Slices = append(f.job.Slices, sp)
	if sp.NumUnits > 0 {
		f.nextUnit = sp.FirstUnit + sp.NumUnits
	} else {
		f.nextUnit = sp.FirstUnit + 1
	}
	// 图像类型取最复杂的片
	switch sp.Type {
	case codec.SliceB:
		f.pic.SliceType = codec.SliceB
	case codec.SliceP, codec.SliceSP:
		if f.pic.SliceType != codec.SliceB {
			f.pic.SliceType = codec.SliceP
		}
	}
}

// atCap 再加一个片就达到上限
func (c *Context) atCap() bool {
	return c.frame.numSlices()+1 >= c.v.maxSlices()
}

// endFrame 结束当前帧：最后一个片作为结束命令，标记参考帧，提交引擎
func (c *Context) endFrame() error {
	f := &c.frame
	if f.state != accumulating {
		return nil
	}
	f.state = ending
	job := f.job
	if n := len(job.Slices); n > 0 {
		job.Slices[n-1].Last = true
	} else {
		// 没有任何片，整帧隐藏
		job.Slices = append(job.Slices, SliceParam{Type: codec.SliceConceal, Last: true})
		f.concealed = true
	}
	if f.concealed {
		f.pic.Concealed = true
		job.Pic.Concealed = true
		c.stats.AddConcealed()
		c.report(codec.WarnConcealDetect)
	}

	if !c.v.mark(f) {
		c.logger.Warnf("dpb overflow, picture %d evicted a reference", f.pic.ID)
	}
	c.v.commit()
	if c.recoveryCnt > 0 {
		c.recoveryCnt--
	}
	c.stats.AddFrame()
	c.frame = frame{}

	if err := c.engine.Submit(job); err != nil {
		c.logger.Errorf("submit picture %d failed: %v", job.PicID, err)
		c.complete(&Completion{Slot: job.Slot, PicID: job.PicID, Status: codec.ErrEngine})
	}
	return nil
}

// cancelFrame 丢弃部分组装的帧，撤销它对 DPB 的所有修改并归还槽
func (c *Context) cancelFrame() {
	f := &c.frame
	if f.state == noFrame {
		return
	}
	c.v.rollback()
	c.dpb.Cancel(f.pic)
	if f.job != nil {
		c.arena.release(f.job.Slot)
	}
	c.frame = frame{}
}

// drop 丢弃一个 NAL
func (c *Context) drop(err error, format string, args ...interface{}) {
	c.stats.AddDropped()
	if err != nil {
		c.lastErr = err
	}
	c.logger.Warnf("nal dropped: "+format, args...)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
