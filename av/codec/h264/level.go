// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

// MaxDpbMbs Table A-1, indexed by level_idc (9 is level 1b).
func MaxDpbMbs(level int) int {
	switch level {
	case 9, 10:
		return 396
	case 11:
		return 900
	case 12, 13, 20:
		return 2376
	case 21:
		return 4752
	case 22, 30:
		return 8100
	case 31:
		return 18000
	case 32:
		return 20480
	case 40, 41:
		return 32768
	case 42:
		return 34816
	case 50:
		return 110400
	case 51, 52:
		return 184320
	default:
		return 184320
	}
}

// DpbCapacity number of frame buffers the DPB holds for the SPS:
// Min(MaxDpbMbs / PicSizeInMbs, 16), never below max_num_ref_frames.
func (sps *RawSPS) DpbCapacity() int {
	n := MaxDpbMbs(sps.Level()) / sps.PicSizeInMbs()
	if n > MaxDpbFrames {
		n = MaxDpbFrames
	}
	if n < int(sps.MaxNumRefFrames) {
		n = int(sps.MaxNumRefFrames)
	}
	if n < 1 {
		n = 1
	}
	return n
}

// MaxNumReorder number of pictures that may precede any picture in decoding
// order and follow it in output order.
func (sps *RawSPS) MaxNumReorder() int {
	n := int(sps.Vui.MaxNumReorderFrames)
	if c := sps.DpbCapacity(); n > c {
		n = c
	}
	return n
}
