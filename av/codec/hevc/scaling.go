// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/utils/bits"
)

// Table 7-6: default values of ScalingList[1..3][matrixId][i],
// up-right diagonal order.
var (
	defaultScalingIntra = [64]uint8{
		16, 16, 16, 16, 16, 16, 16, 16, 16, 16, 17, 16, 17, 16, 17, 18,
		17, 18, 18, 17, 18, 21, 19, 20, 21, 20, 19, 21, 24, 22, 22, 24,
		24, 22, 22, 24, 25, 25, 27, 30, 27, 25, 25, 29, 31, 35, 35, 31,
		29, 36, 41, 44, 41, 36, 47, 54, 54, 47, 65, 70, 65, 88, 88, 115,
	}
	defaultScalingInter = [64]uint8{
		16, 16, 16, 16, 16, 16, 16, 16, 16, 16, 17, 17, 17, 17, 17, 18,
		18, 18, 18, 18, 18, 20, 20, 20, 20, 20, 20, 20, 24, 24, 24, 24,
		24, 24, 24, 24, 25, 25, 25, 25, 25, 25, 25, 28, 28, 28, 28, 28,
		28, 33, 33, 33, 33, 33, 41, 41, 41, 41, 54, 54, 54, 71, 71, 91,
	}
)

// ScalingList 有效量化矩阵 [sizeId][matrixId]，4x4 只用前 16 项。
// matrixId 0..2 为 intra Y/Cb/Cr，3..5 为 inter。
type ScalingList struct {
	List [4][6][64]uint8
	// scaling_list_dc_coef_minus8 + 8, 只对 16x16 和 32x32 有效
	DC [4][6]uint8
}

func (sl *ScalingList) setDefault() {
	for matrixID := 0; matrixID < 6; matrixID++ {
		for i := 0; i < 16; i++ {
			sl.List[0][matrixID][i] = 16
		}
		for sizeID := 1; sizeID < 4; sizeID++ {
			sl.setDefaultList(sizeID, matrixID)
		}
	}
}

func (sl *ScalingList) setDefaultList(sizeID, matrixID int) {
	if sizeID == 0 {
		for i := 0; i < 16; i++ {
			sl.List[0][matrixID][i] = 16
		}
		return
	}
	if matrixID < 3 {
		sl.List[sizeID][matrixID] = defaultScalingIntra
	} else {
		sl.List[sizeID][matrixID] = defaultScalingInter
	}
	sl.DC[sizeID][matrixID] = 16
}

// decode scaling_list_data()
func (sl *ScalingList) decode(r *bits.Reader) error {
	for sizeID := 0; sizeID < 4; sizeID++ {
		step := 1
		if sizeID == 3 {
			step = 3
		}
		coefNum := 1 << (4 + uint(sizeID)<<1)
		if coefNum > 64 {
			coefNum = 64
		}

		for matrixID := 0; matrixID < 6; matrixID += step {
			predModeFlag := r.ReadBit()
			if predModeFlag == 0 {
				delta, ok := r.ReadUeMax(uint32(matrixID / step))
				if !ok {
					return codec.Malformedf("scaling_list_pred_matrix_id_delta %d", delta)
				}
				if delta == 0 {
					sl.setDefaultList(sizeID, matrixID)
				} else {
					ref := matrixID - int(delta)*step
					sl.List[sizeID][matrixID] = sl.List[sizeID][ref]
					sl.DC[sizeID][matrixID] = sl.DC[sizeID][ref]
				}
				continue
			}

			nextCoef := int32(8)
			if sizeID > 1 {
				dc, ok := r.ReadSeRange(-7, 247)
				if !ok {
					return codec.Malformedf("scaling_list_dc_coef_minus8 %d", dc)
				}
				nextCoef = dc + 8
				sl.DC[sizeID][matrixID] = uint8(nextCoef)
			}
			for i := 0; i < coefNum; i++ {
				delta, ok := r.ReadSeRange(-128, 127)
				if !ok {
					return codec.Malformedf("scaling_list_delta_coef %d", delta)
				}
				nextCoef = (nextCoef + delta + 256) % 256
				if nextCoef == 0 {
					return codec.Malformedf("scaling list %d/%d has a zero coefficient", sizeID, matrixID)
				}
				sl.List[sizeID][matrixID][i] = uint8(nextCoef)
			}
		}
	}

	// 32x32 的色度矩阵 (4:4:4) 沿用 16x16
	for _, m := range []int{1, 2, 4, 5} {
		sl.List[3][m] = sl.List[2][m]
		sl.DC[3][m] = sl.DC[2][m]
	}
	return nil
}
