// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"sync/atomic"
)

// 全局变量
var (
	Decoding = NewDecoder() // 所有通道的解码统计
)

// DecoderSample 解码统计采样
type DecoderSample struct {
	NALs      int64 `json:"nals"`      // 输入的 NAL 数
	Slices    int64 `json:"slices"`    // 片数
	Frames    int64 `json:"frames"`    // 提交引擎的帧数
	Concealed int64 `json:"concealed"` // 含隐藏片的帧数
	Dropped   int64 `json:"dropped"`   // 丢弃的片数
	Displayed int64 `json:"displayed"` // 输出的图像数
	Errors    int64 `json:"errors"`    // 引擎错误数
}

// Decoder 解码统计接口
type Decoder interface {
	AddNAL()
	AddSlice()
	AddFrame()
	AddConcealed()
	AddDropped()
	AddDisplayed()
	AddError()
	GetSample() DecoderSample
}

func (s *DecoderSample) clone() DecoderSample {
	return DecoderSample{
		NALs:      atomic.LoadInt64(&s.NALs),
		Slices:    atomic.LoadInt64(&s.Slices),
		Frames:    atomic.LoadInt64(&s.Frames),
		Concealed: atomic.LoadInt64(&s.Concealed),
		Dropped:   atomic.LoadInt64(&s.Dropped),
		Displayed: atomic.LoadInt64(&s.Displayed),
		Errors:    atomic.LoadInt64(&s.Errors),
	}
}

// Add 采样累加
func (s *DecoderSample) Add(o DecoderSample) {
	s.NALs += o.NALs
	s.Slices += o.Slices
	s.Frames += o.Frames
	s.Concealed += o.Concealed
	s.Dropped += o.Dropped
	s.Displayed += o.Displayed
	s.Errors += o.Errors
}

type decoder struct {
	parent Decoder
	sample DecoderSample
}

// NewDecoder 创建解码统计
func NewDecoder() Decoder {
	return &decoder{}
}

// NewChildDecoder 创建通道的解码统计，它会把自己的计数Add到parent上
func NewChildDecoder(parent Decoder) Decoder {
	return &decoder{parent: parent}
}

func (d *decoder) AddNAL() {
	atomic.AddInt64(&d.sample.NALs, 1)
	if d.parent != nil {
		d.parent.AddNAL()
	}
}

func (d *decoder) AddSlice() {
	atomic.AddInt64(&d.sample.Slices, 1)
	if d.parent != nil {
		d.parent.AddSlice()
	}
}

func (d *decoder) AddFrame() {
	atomic.AddInt64(&d.sample.Frames, 1)
	if d.parent != nil {
		d.parent.AddFrame()
	}
}

func (d *decoder) AddConcealed() {
	atomic.AddInt64(&d.sample.Concealed, 1)
	if d.parent != nil {
		d.parent.AddConcealed()
	}
}

func (d *decoder) AddDropped() {
	atomic.AddInt64(&d.sample.Dropped, 1)
	if d.parent != nil {
		d.parent.AddDropped()
	}
}

func (d *decoder) AddDisplayed() {
	atomic.AddInt64(&d.sample.Displayed, 1)
	if d.parent != nil {
		d.parent.AddDisplayed()
	}
}

func (d *decoder) AddError() {
	atomic.AddInt64(&d.sample.Errors, 1)
	if d.parent != nil {
		d.parent.AddError()
	}
}

func (d *decoder) GetSample() DecoderSample {
	return d.sample.clone()
}
