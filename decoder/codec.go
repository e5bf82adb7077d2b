// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/dpb"
)

// variant 编码相关的处理：NAL 分发、片头解析、POC 和参考帧标记。
// 公共的帧组装和隐藏逻辑在 Context 上。
type variant interface {
	// route 处理一个不带起始码的 NAL，返回的错误都是致命的
	route(nal []byte, last bool) error
	// mark 帧结束时标记并存入 DPB，返回 false 表示 DPB 溢出
	mark(f *frame) bool
	commit()
	rollback()
	// maxSlices 一帧最多的片数，包括隐藏片
	maxSlices() int
}

func newVariant(c *Context) variant {
	if c.settings.Codec == codec.HEVC {
		return newHEVCDecoder(c)
	}
	return newAVCDecoder(c)
}

// geometry SPS 决定的缓冲几何
type geometry struct {
	req      codec.Requirements
	coded    codec.Dimension
	crop     codec.CropInfo
	capacity int
	profile  int
}

// slice 片的编码无关视图
type slice struct {
	first     bool // 图像的第一个片
	firstUnit int
	typ       codec.SliceType
	header    interface{}
	data      []byte
	lists     dpb.RefLists
}

func (s *slice) param() SliceParam {
	return SliceParam{
		Type:      s.typ,
		FirstUnit: s.firstUnit,
		RefLists:  s.lists,
		Header:    s.header,
		Data:      append([]byte(nil), s.data...),
	}
}
