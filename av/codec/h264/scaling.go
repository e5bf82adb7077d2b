// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/utils/bits"
)

// Table 7-3, 7-4: default scaling lists in zig-zag order.
var (
	default4x4Intra = [16]uint8{6, 13, 13, 20, 20, 20, 28, 28, 28, 28, 32, 32, 32, 37, 37, 42}
	default4x4Inter = [16]uint8{10, 14, 14, 20, 20, 20, 24, 24, 24, 24, 27, 27, 27, 30, 30, 34}
	default8x8Intra = [64]uint8{
		6, 10, 10, 13, 11, 13, 16, 16, 16, 16, 18, 18, 18, 18, 18, 23,
		23, 23, 23, 23, 23, 25, 25, 25, 25, 25, 25, 25, 27, 27, 27, 27,
		27, 27, 27, 27, 29, 29, 29, 29, 29, 29, 29, 31, 31, 31, 31, 31,
		31, 33, 33, 33, 33, 33, 36, 36, 36, 36, 38, 38, 38, 40, 40, 42,
	}
	default8x8Inter = [64]uint8{
		9, 13, 13, 15, 13, 15, 17, 17, 17, 17, 19, 19, 19, 19, 19, 21,
		21, 21, 21, 21, 21, 22, 22, 22, 22, 22, 22, 22, 24, 24, 24, 24,
		24, 24, 24, 24, 25, 25, 25, 25, 25, 25, 25, 27, 27, 27, 27, 27,
		27, 28, 28, 28, 28, 28, 30, 30, 30, 30, 32, 32, 32, 33, 33, 35,
	}
)

// ScalingMatrix 有效量化矩阵。
// List4x4: Y/Cb/Cr intra, Y/Cb/Cr inter;
// List8x8: Y intra, Y inter, Cb intra, Cb inter, Cr intra, Cr inter.
type ScalingMatrix struct {
	List4x4 [6][16]uint8
	List8x8 [6][64]uint8
}

func (m *ScalingMatrix) setFlat() {
	for i := range m.List4x4 {
		for j := range m.List4x4[i] {
			m.List4x4[i][j] = 16
		}
	}
	for i := range m.List8x8 {
		for j := range m.List8x8[i] {
			m.List8x8[i][j] = 16
		}
	}
}

func (m *ScalingMatrix) list(i int) []uint8 {
	if i < 6 {
		return m.List4x4[i][:]
	}
	return m.List8x8[i-6][:]
}

// setDefault Default_4x4/8x8 Intra/Inter for list i.
func (m *ScalingMatrix) setDefault(i int) {
	switch {
	case i < 3:
		m.List4x4[i] = default4x4Intra
	case i < 6:
		m.List4x4[i] = default4x4Inter
	case (i-6)%2 == 0:
		m.List8x8[i-6] = default8x8Intra
	default:
		m.List8x8[i-6] = default8x8Inter
	}
}

// fallbackA Table 7-2 fall-back rule set A.
func (m *ScalingMatrix) fallbackA(i int) {
	switch i {
	case 0, 3, 6, 7:
		m.setDefault(i)
	default:
		m.inheritPrevious(i)
	}
}

// fallbackB Table 7-2 fall-back rule set B, lists 0/3/6/7 come from the SPS.
func (m *ScalingMatrix) fallbackB(i int, sps *RawSPS) {
	if sps.SeqScalingMatrixPresentFlag == 0 {
		m.fallbackA(i)
		return
	}
	switch i {
	case 0, 3, 6, 7:
		copy(m.list(i), sps.Scaling.list(i))
	default:
		m.inheritPrevious(i)
	}
}

func (m *ScalingMatrix) inheritPrevious(i int) {
	if i < 6 {
		m.List4x4[i] = m.List4x4[i-1]
	} else {
		m.List8x8[i-6] = m.List8x8[i-8]
	}
}

// decodeList parses scaling_list() (7.3.2.1.1.1) into list i and reports
// useDefaultScalingMatrixFlag.
func (m *ScalingMatrix) decodeList(r *bits.Reader, i int) (useDefault bool, err error) {
	list := m.list(i)
	last, next := 8, 8
	for j := range list {
		if next != 0 {
			delta, ok := r.ReadSeRange(-128, 127)
			if !ok {
				return false, codec.Malformedf("delta_scale %d", delta)
			}
			next = (last + int(delta) + 256) % 256
			useDefault = j == 0 && next == 0
		}
		if next != 0 {
			list[j] = uint8(next)
		} else {
			list[j] = uint8(last)
		}
		last = int(list[j])
	}
	return
}
