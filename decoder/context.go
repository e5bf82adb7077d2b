// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"runtime/debug"
	"sync/atomic"

	"github.com/cnotch/queue"
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/dpb"
	"github.com/cnotch/vdec/stats"
	"github.com/cnotch/vdec/utils"
	"github.com/cnotch/xlog"
	"github.com/pkg/errors"
)

// ErrClosed 通道已关闭
var ErrClosed = errors.New("decoder: channel is closed")

// NAL 一个 NAL 单元，可以带起始码
type NAL struct {
	Data []byte
	// Last 访问单元的最后一个 NAL
	Last bool
}

// Context 一个解码通道的会话状态。
// DecodeNAL、Flush 和 Close 必须在同一个协程中调用；
// EndFrameDecoding 可以在任意协程调用。
type Context struct {
	settings Settings
	engine   Engine
	cb       Callbacks
	logger   *xlog.Logger

	v           variant
	dpb         *dpb.DPB
	pool        *dpb.Pool
	arena       *toggleArena
	completions *queue.SyncQueue

	frame frame

	resolved   bool
	stream     codec.StreamSettings // 生效的码流约束
	coded      codec.Dimension
	bufferSize int

	firstValid  bool // 已经开始解码有效图像
	capped      bool // 上一帧因片数上限提前结束
	recoveryCnt int
	lastErr     error // 最近一个可恢复的解析错误
	fatal       error
	closed      int32

	stats stats.Decoder
	flow  stats.Flow
}

// NewContext 创建解码通道
func NewContext(settings Settings, engine Engine, cb Callbacks) (*Context, error) {
	if engine == nil {
		return nil, errors.Wrap(codec.ErrChanCreation, "nil decode engine")
	}
	if err := settings.validate(); err != nil {
		return nil, err
	}

	c := &Context{
		settings:    settings,
		engine:      engine,
		cb:          cb,
		arena:       newToggleArena(),
		completions: queue.NewSyncQueue(),
		stream:      settings.Stream,
		stats:       stats.NewChildDecoder(stats.Decoding),
		flow:        stats.NewChildFlow(stats.TotalFlow),
	}
	c.logger = xlog.L().With(xlog.Fields(
		xlog.F("channel", settings.Name),
		xlog.F("codec", settings.Codec.String())))
	c.dpb = dpb.New(nil, c.display)
	c.v = newVariant(c)

	stats.Channels.Add()
	c.logger.Infof("channel created, stack size %d", settings.StackSize)
	return c, nil
}

// DecodeNAL 处理一个 NAL 单元。解析错误不会返回，它们变成隐藏或丢弃；
// 只有内存分配失败、分辨率变化和通道关闭会返回错误，之后通道拒绝新的 NAL。
func (c *Context) DecodeNAL(nal NAL) (err error) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClosed
	}
	if c.fatal != nil {
		return c.fatal
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("decode nal panic；r = %v \n %s", r, debug.Stack())
			c.cancelFrame()
			err = c.fail(errors.Errorf("decoder: panic %v", r))
		}
	}()

	c.drain()

	data := utils.RemoveNaluSeparator(nal.Data)
	if len(data) == 0 {
		return nil
	}
	c.stats.AddNAL()
	c.flow.AddIn(int64(len(data)))

	if err = c.v.route(data, nal.Last); err != nil {
		return c.fail(err)
	}
	if nal.Last && c.frame.state == accumulating {
		if err = c.endFrame(); err != nil {
			return c.fail(err)
		}
	}
	return nil
}

// EndFrameDecoding 引擎的完成通知，可在任意协程调用，只是入队
func (c *Context) EndFrameDecoding(cp Completion) {
	if atomic.LoadInt32(&c.closed) == 1 {
		return
	}
	c.completions.Push(&cp)
}

// Flush 结束正在组装的帧，等待在途的帧全部完成，然后输出 DPB 中所有待输出的图像
func (c *Context) Flush() error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClosed
	}
	if c.fatal == nil && c.frame.state == accumulating {
		if err := c.endFrame(); err != nil {
			return c.fail(err)
		}
	}
	c.cancelFrame()
	if err := c.waitIdle(); err != nil {
		return err
	}
	c.dpb.Flush()
	c.logger.Debugf("flushed, %d pictures resident", c.dpb.Len())
	return c.fatal
}

// Close 丢弃正在组装的帧，等待在途的帧完成后关闭通道
func (c *Context) Close() error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClosed
	}
	c.cancelFrame()
	err := c.waitIdle()
	if err == nil {
		c.dpb.Clear(false)
	}

	atomic.StoreInt32(&c.closed, 1)
	c.completions.Signal()
	c.completions.Reset()
	stats.Channels.Release()

	sample := c.stats.GetSample()
	c.logger.Infof("channel closed: nals %d, frames %d, concealed %d, dropped %d, displayed %d",
		sample.NALs, sample.Frames, sample.Concealed, sample.Dropped, sample.Displayed)
	return err
}

// Stats 通道的统计采样
func (c *Context) Stats() stats.DecoderSample {
	return c.stats.GetSample()
}

// Flow 通道的流量采样
func (c *Context) Flow() stats.FlowSample {
	return c.flow.GetSample()
}

// StreamSettings 生效的码流约束
func (c *Context) StreamSettings() codec.StreamSettings {
	return c.stream
}

// LastParseError 最近一个被隐藏或丢弃的解析错误
func (c *Context) LastParseError() error {
	return c.lastErr
}

// Pending 在途的帧数
func (c *Context) Pending() int {
	return c.arena.inUse()
}

// DPB 通道的解码图像缓冲，只能在解析协程中访问
func (c *Context) DPB() *dpb.DPB {
	return c.dpb
}

// drain 处理已经到达的完成通知
func (c *Context) drain() {
	for c.completions.Len() > 0 {
		v := c.completions.Pop()
		if v == nil {
			return
		}
		c.complete(v.(*Completion))
	}
}

// waitIdle 阻塞直到两个槽都已归还
func (c *Context) waitIdle() error {
	c.drain()
	if c.arena.idle() {
		return nil
	}
	return c.waitUntil(0)
}

// waitUntil 阻塞直到在途的帧不超过 n 个
func (c *Context) waitUntil(n int) error {
	for c.arena.inUse() > n {
		v := c.completions.Pop()
		if v == nil {
			return ErrClosed
		}
		c.complete(v.(*Completion))
	}
	return nil
}

func (c *Context) complete(cp *Completion) {
	job, ok := c.arena.job(cp.Slot)
	if !ok || job.PicID != cp.PicID {
		c.logger.Warnf("unexpected completion, slot %d picture %d", cp.Slot, cp.PicID)
		return
	}
	c.arena.release(cp.Slot)
	if cp.Status != codec.Success {
		c.report(cp.Status)
	}
	if _, ok := c.dpb.Completed(cp.PicID, cp.Status); !ok {
		c.logger.Warnf("completion of unknown picture %d", cp.PicID)
	}
}

// display DPB 的输出
func (c *Context) display(p *dpb.Picture) {
	c.stats.AddDisplayed()
	c.flow.AddOut(int64(c.bufferSize))
	if c.cb.FrameDisplay != nil {
		c.cb.FrameDisplay(p)
	}
}

// report 告警和错误码交给协作者
func (c *Context) report(code codec.Code) {
	if code.IsError() {
		c.stats.AddError()
		c.logger.Errorf("%v", code)
	} else {
		c.logger.Debugf("%v", code)
	}
	if c.cb.Error != nil {
		c.cb.Error(code)
	}
}

// fail 致命错误，通道不再接受 NAL
func (c *Context) fail(err error) error {
	if c.fatal == nil {
		c.fatal = err
		c.logger.Errorf("channel failed: %v", err)
	}
	return c.fatal
}
