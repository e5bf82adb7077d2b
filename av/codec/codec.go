// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"
	"strings"
)

// Type 编码类型
type Type int

// 支持的视频编码
const (
	AVC Type = iota
	HEVC
)

func (t Type) String() string {
	switch t {
	case AVC:
		return "H264"
	case HEVC:
		return "H265"
	default:
		return fmt.Sprintf("Codec(%d)", int(t))
	}
}

// ParseType 解析编码名称，大小写无关
func ParseType(name string) (Type, error) {
	switch strings.ToUpper(name) {
	case "H264", "AVC":
		return AVC, nil
	case "H265", "HEVC":
		return HEVC, nil
	}
	return AVC, Unsupportedf("codec %q", name)
}

// SliceType is the codec-neutral slice type handed to the decode engine.
type SliceType uint8

// Slice types. SliceConceal is synthetic: no bitstream slice carries it.
const (
	SliceB SliceType = iota
	SliceP
	SliceI
	SliceSP
	SliceSI
	SliceConceal
)

var sliceTypeNames = [...]string{"B", "P", "I", "SP", "SI", "CONCEAL"}

func (t SliceType) String() string {
	if int(t) < len(sliceTypeNames) {
		return sliceTypeNames[t]
	}
	return fmt.Sprintf("SliceType(%d)", int(t))
}

// IsIntra reports whether the slice uses no reference picture.
func (t SliceType) IsIntra() bool {
	return t == SliceI || t == SliceSI
}

// ChromaMode 色度采样格式，零值表示未设置
type ChromaMode int

// Chroma modes, ordered by sampling density.
const (
	ChromaUnset ChromaMode = iota
	Chroma400
	Chroma420
	Chroma422
	Chroma444
)

// ChromaModeFromIdc converts a chroma_format_idc.
func ChromaModeFromIdc(idc int) ChromaMode {
	if idc < 0 || idc > 3 {
		return ChromaUnset
	}
	return ChromaMode(idc + 1)
}

// Idc returns the chroma_format_idc of the mode.
func (c ChromaMode) Idc() int {
	return int(c) - 1
}

// SequenceMode 扫描方式，零值表示未知/未设置
type SequenceMode int

// Sequence modes. SequenceMixed is what a stream that declares both
// progressive and interlaced sources reports; no setting accepts it.
const (
	SequenceUnknown SequenceMode = iota
	SequenceProgressive
	SequenceInterlaced
	SequenceMixed
)

// Dimension 图像尺寸
type Dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CropInfo cropping rectangle in luma samples.
type CropInfo struct {
	Cropping bool `json:"cropping"`
	Left     int  `json:"left"`
	Right    int  `json:"right"`
	Top      int  `json:"top"`
	Bottom   int  `json:"bottom"`
}

// StreamSettings declared decode constraints of a channel. Zero values are
// "unset" and accept any stream.
type StreamSettings struct {
	Dim      Dimension    `json:"dim"`
	Chroma   ChromaMode   `json:"chroma"`
	BitDepth int          `json:"bitdepth"`
	Level    int          `json:"level"`
	Profile  int          `json:"profile"`
	Sequence SequenceMode `json:"sequence"`
}
