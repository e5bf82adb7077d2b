// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import "github.com/cnotch/vdec/utils"

// NalType returns nal_unit_type of a NAL unit with or without start code,
// -1 when it is too short.
func NalType(nalu []byte) int {
	nalu = utils.RemoveNaluSeparator(nalu)
	if len(nalu) < 2 {
		return -1
	}
	return int((nalu[0] >> 1) & 0x3f)
}

// IsParamSet VPS, SPS or PPS.
func IsParamSet(nt int) bool {
	return nt == NalVps || nt == NalSps || nt == NalPps
}

// IsSEI prefix or suffix SEI.
func IsSEI(nt int) bool {
	return nt == NalSeiPrefix || nt == NalSeiSuffix
}

// IsEndOfSequence end of sequence or end of bitstream.
func IsEndOfSequence(nt int) bool {
	return nt == NalEosNut || nt == NalEobNut
}
