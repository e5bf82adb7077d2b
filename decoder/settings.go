// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/dpb"
	"github.com/pkg/errors"
)

// Settings 解码通道的创建参数
type Settings struct {
	Name  string     `json:"name"`
	Codec codec.Type `json:"codec"`
	// Stream 声明的码流约束，零值表示不限制，首个兼容的 SPS 会补齐未设置的项
	Stream     codec.StreamSettings `json:"stream"`
	HWBitDepth int                  `json:"hwbitdepth"`
	// StackSize 引擎流水线中可同时占用的额外缓冲数
	StackSize int `json:"stacksize"`
	// UseIAsSync 允许从非 IDR 的 I 片开始解码
	UseIAsSync bool `json:"useiassync"`
}

// Callbacks 通道的外部协作者，都在调用 DecodeNAL/Flush 的协程中执行
type Callbacks struct {
	// ResolutionFound 首个兼容的 SPS 确定了缓冲数量和大小，返回错误表示无法分配
	ResolutionFound func(bufferCount, bufferSize int, settings codec.StreamSettings, crop codec.CropInfo) error
	// FrameDisplay 图像按输出顺序交付
	FrameDisplay func(p *dpb.Picture)
	// Error 非致命的告警和引擎错误
	Error func(code codec.Code)
}

func (s *Settings) validate() error {
	if s.Codec != codec.AVC && s.Codec != codec.HEVC {
		return errors.Wrapf(codec.ErrChanCreation, "unknown codec %v", s.Codec)
	}
	if s.StackSize < 0 || s.StackSize > dpb.MaxCapacity {
		return errors.Wrapf(codec.ErrChanCreation, "stack size %d", s.StackSize)
	}
	if s.HWBitDepth < 0 || s.HWBitDepth > 16 {
		return errors.Wrapf(codec.ErrChanCreation, "hardware bit depth %d", s.HWBitDepth)
	}
	if s.HWBitDepth == 0 {
		s.HWBitDepth = codec.DefaultHWBitDepth
	}
	if s.Stream.Sequence == codec.SequenceMixed {
		return errors.Wrap(codec.ErrChanCreation, "mixed sequence mode is not a valid setting")
	}
	if s.Name == "" {
		s.Name = s.Codec.String()
	}
	return nil
}
