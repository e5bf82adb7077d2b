// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/dpb"
)

// PicParam 一帧的图像参数
type PicParam struct {
	Codec codec.Type
	Dim   codec.Dimension // 编码尺寸
	Crop  codec.CropInfo

	UnitSize      int // 宏块或 CTB 的边长
	WidthInUnits  int
	HeightInUnits int

	BitDepthLuma   int
	BitDepthChroma int
	Chroma         codec.ChromaMode

	POC       int32
	IRAP      bool
	Reference bool
	Concealed bool
}

// NumUnits 一帧的宏块或 CTB 数
func (p *PicParam) NumUnits() int {
	return p.WidthInUnits * p.HeightInUnits
}

// SliceParam 一个片的命令。隐藏片的 Type 为 codec.SliceConceal，
// 由引擎用参考帧或灰色填充 [FirstUnit, FirstUnit+NumUnits)。
type SliceParam struct {
	Type      codec.SliceType
	FirstUnit int
	NumUnits  int // 0 表示到下一个片或帧尾
	RefLists  dpb.RefLists
	// Header *h264.SliceHeader 或 *hevc.SliceHeader，隐藏片为 nil
	Header interface{}
	Data   []byte
	// Last 帧的最后一个片，引擎在它之后完成该帧
	Last bool
}

// Job 提交给引擎的一帧
type Job struct {
	Slot   int
	PicID  int64
	Buffer int
	Pic    PicParam
	Slices []SliceParam
}

// Engine 硬件解码引擎。Submit 不能阻塞；完成后引擎必须以同样的 Slot 和
// PicID 调用 Context.EndFrameDecoding，之前不得再访问 Job。
type Engine interface {
	Submit(job *Job) error
}

// Completion 引擎的完成通知
type Completion struct {
	Slot   int
	PicID  int64
	Status codec.Code
}
