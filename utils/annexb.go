// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package utils

// SplitAnnexB splits an Annex-B byte stream into NAL units. The returned
// slices share memory with data and carry no start code; trailing zero bytes
// of each unit are dropped.
func SplitAnnexB(data []byte) [][]byte {
	var nalus [][]byte
	start := -1
	i := 0
	for i+2 < len(data) {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			if start >= 0 {
				nalus = appendNalu(nalus, data[start:i])
			}
			i += 3
			start = i
			continue
		}
		i++
	}
	if start >= 0 {
		nalus = appendNalu(nalus, data[start:])
	} else if len(data) > 0 {
		// 无起始码，整体视为一个 NALU
		nalus = appendNalu(nalus, data)
	}
	return nalus
}

func appendNalu(nalus [][]byte, nalu []byte) [][]byte {
	end := len(nalu)
	for end > 0 && nalu[end-1] == 0 {
		end--
	}
	if end == 0 {
		return nalus
	}
	return append(nalus, nalu[:end])
}
