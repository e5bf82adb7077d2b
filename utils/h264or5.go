// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package utils

import "bytes"

// RemoveH264or5EmulationBytes returns a copy of the NAL unit (H.264 or H.265)
// with the start code and the 'emulation_prevention_three_byte's removed.
func RemoveH264or5EmulationBytes(from []byte) []byte {
	from = RemoveNaluSeparator(from)
	to := make([]byte, 0, len(from))
	zeros := 0
	for i := 0; i < len(from); i++ {
		b := from[i]
		if zeros >= 2 && b == 3 {
			// 0x000003 -> 0x0000
			zeros = 0
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		to = append(to, b)
	}
	return to
}

// InsertH264or5EmulationBytes escapes a RBSP so that no start code can be
// emulated inside the NAL unit payload.
func InsertH264or5EmulationBytes(from []byte) []byte {
	to := make([]byte, 0, len(from)+len(from)/64+1)
	zeros := 0
	for _, b := range from {
		if zeros >= 2 && b <= 3 {
			to = append(to, 3)
			zeros = 0
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		to = append(to, b)
	}
	return to
}

// RemoveNaluSeparator 移除 NALU 分隔符 0x00000001 或 0x000001
func RemoveNaluSeparator(nalu []byte) []byte {
	if bytes.HasPrefix(nalu, []byte{0x0, 0x0, 0x0, 0x1}) {
		return nalu[4:]
	}
	if bytes.HasPrefix(nalu, []byte{0x0, 0x0, 0x1}) {
		return nalu[3:]
	}
	return nalu
}
