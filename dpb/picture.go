// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dpb

import (
	"fmt"

	"github.com/cnotch/vdec/av/codec"
)

// RefState 图像的参考标记
type RefState uint8

// 参考标记
const (
	Unused RefState = iota
	ShortTerm
	LongTerm
)

var refStateNames = [...]string{"unused", "short-term", "long-term"}

func (s RefState) String() string {
	if int(s) < len(refStateNames) {
		return refStateNames[s]
	}
	return "unknown"
}

// NoLongTermFrameIdx 没有长期参考帧索引
const NoLongTermFrameIdx = -1

// Picture DPB 中的一帧图像
type Picture struct {
	ID     int64 // 节点 id，通道内唯一
	Buffer int   // 缓冲句柄，非存在帧为 -1

	POC           int32
	Ref           RefState
	OutputPending bool // 等待输出
	NonExisting   bool // 帧号间隙补充的帧
	Concealed     bool
	Decoded       bool // 已收到引擎的完成通知

	// AVC
	FrameNum         int
	FrameNumWrap     int
	LongTermFrameIdx int
	// HEVC
	PocLsb int

	SliceType codec.SliceType
	Crop      codec.CropInfo
	Dim       codec.Dimension
	Status    codec.Code // 引擎返回的状态

	resident bool
	released bool
}

// IsReference .
func (p *Picture) IsReference() bool {
	return p.Ref != Unused
}

// PicNum AVC 帧的 PicNum（8-28）
func (p *Picture) PicNum() int {
	return p.FrameNumWrap
}

// LongTermPicNum AVC 帧的 LongTermPicNum（8-29）
func (p *Picture) LongTermPicNum() int {
	return p.LongTermFrameIdx
}

func (p *Picture) String() string {
	return fmt.Sprintf("pic#%d(poc=%d,%s,pending=%t)", p.ID, p.POC, p.Ref, p.OutputPending)
}
