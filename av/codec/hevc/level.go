// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

// MaxLumaPsOf Table A.6, level is general_level_idc (30 times the level).
func MaxLumaPsOf(levelIdc int) int {
	switch {
	case levelIdc <= 30:
		return 36864
	case levelIdc <= 60:
		return 122880
	case levelIdc <= 63:
		return 245760
	case levelIdc <= 90:
		return 552960
	case levelIdc <= 93:
		return 983040
	case levelIdc <= 123:
		return 2228224
	case levelIdc <= 156:
		return 8912896
	default:
		return MaxLumaPs
	}
}

// maxDpbPicBuf A.4.2
const maxDpbPicBuf = 6

// DpbCapacity number of picture buffers the DPB holds for the SPS, derived
// from MaxDpbSize of A.4.2 and never below sps_max_dec_pic_buffering.
func (sps *RawSPS) DpbCapacity() int {
	maxLumaPs := MaxLumaPsOf(int(sps.ProfileTierLevel.GeneralLevelIdc))
	size := sps.PicSizeInSamplesY()

	var n int
	switch {
	case size <= maxLumaPs>>2:
		n = 4 * maxDpbPicBuf
	case size <= maxLumaPs>>1:
		n = 2 * maxDpbPicBuf
	case size <= (3*maxLumaPs)>>2:
		n = 4 * maxDpbPicBuf / 3
	default:
		n = maxDpbPicBuf
	}
	if n > MaxDpbSize {
		n = MaxDpbSize
	}
	if b := sps.MaxDecPicBuffering(); n < b {
		n = b
	}
	return n
}
