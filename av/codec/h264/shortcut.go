// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

import "github.com/cnotch/vdec/utils"

// NalType returns nal_unit_type of a NAL unit with or without start code,
// -1 when it is empty.
func NalType(nalu []byte) int {
	nalu = utils.RemoveNaluSeparator(nalu)
	if len(nalu) == 0 {
		return -1
	}
	return int(nalu[0] & NalTypeBitmask)
}

// IsSlice coded slice of an IDR or non-IDR picture.
func IsSlice(nt int) bool {
	return nt == NalSlice || nt == NalIdrSlice
}

// IsIdrSlice .
func IsIdrSlice(nt int) bool {
	return nt == NalIdrSlice
}

// IsParamSet SPS or PPS.
func IsParamSet(nt int) bool {
	return nt == NalSps || nt == NalPps
}

// IsEndOfSequence end of sequence or end of stream.
func IsEndOfSequence(nt int) bool {
	return nt == NalEndSequence || nt == NalEndStream
}
