// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
//
// Syntax from T-REC-H.265-201802 7.3.2.1
//
package hevc

import (
	"encoding/base64"

	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/utils"
	"github.com/cnotch/vdec/utils/bits"
)

// RawVPS 视频参数集
type RawVPS struct {
	NalUnitHeader RawNALUnitHeader

	VideoParameterSetID uint8

	BaseLayerInternalFlag  uint8
	BaseLayerAvailableFlag uint8
	MaxLayersMinus1        uint8
	MaxSubLayersMinus1     uint8
	TemporalIDNestingFlag  uint8

	ProfileTierLevel RawProfileTierLevel

	SubLayerOrderingInfoPresentFlag uint8
	MaxDecPicBufferingMinus1        [MaxSubLayers]uint8
	MaxNumReorderPics               [MaxSubLayers]uint8
	MaxLatencyIncreasePlus1         [MaxSubLayers]uint32

	MaxLayerID         uint8
	NumLayerSetsMinus1 uint16

	TimingInfoPresentFlag       uint8
	NumUnitsInTick              uint32
	TimeScale                   uint32
	PocProportionalToTimingFlag uint8
	NumTicksPocDiffOneMinus1    uint32
	NumHrdParameters            uint16
	HrdLayerSetIdx              []uint16
	CprmsPresentFlag            []uint8
	HrdParameters               []RawHRD

	ExtensionFlag uint8
}

// DecodeString 从 base64 字串解码 vps NAL
func (vps *RawVPS) DecodeString(b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return err
	}
	return vps.Decode(data)
}

// Decode 从字节序列中解码 vps NAL
func (vps *RawVPS) Decode(data []byte) (err error) {
	defer codec.RecoverMalformed(&err, "vps")

	rbsp := utils.RemoveH264or5EmulationBytes(data)
	if len(rbsp) < 4 {
		return codec.Malformedf("vps: %d bytes is not enough", len(rbsp))
	}

	r := bits.NewReader(rbsp)
	if err = vps.NalUnitHeader.decode(r); err != nil {
		return
	}
	if vps.NalUnitHeader.NalUnitType != NalVps {
		return codec.Malformedf("nal_unit_type %d is not vps", vps.NalUnitHeader.NalUnitType)
	}

	vps.VideoParameterSetID = r.ReadUint8(4)
	vps.BaseLayerInternalFlag = r.ReadBit()
	vps.BaseLayerAvailableFlag = r.ReadBit()
	vps.MaxLayersMinus1 = r.ReadUint8(6)
	vps.MaxSubLayersMinus1 = r.ReadUint8(3)
	vps.TemporalIDNestingFlag = r.ReadBit()

	if vps.MaxSubLayersMinus1 >= MaxSubLayers {
		return codec.Malformedf("vps_max_sub_layers_minus1 %d", vps.MaxSubLayersMinus1)
	}
	if vps.MaxSubLayersMinus1 == 0 && vps.TemporalIDNestingFlag != 1 {
		return codec.Malformedf("vps_temporal_id_nesting_flag must be 1 with a single sub-layer")
	}

	if r.ReadUint16(16) != 0xffff {
		return codec.Malformedf("vps_reserved_0xffff_16bits")
	}
	if err = vps.ProfileTierLevel.decode(r, true, int(vps.MaxSubLayersMinus1)); err != nil {
		return
	}

	vps.SubLayerOrderingInfoPresentFlag = r.ReadBit()
	if err = decodeOrderingInfo(r, vps.SubLayerOrderingInfoPresentFlag == 1, int(vps.MaxSubLayersMinus1),
		&vps.MaxDecPicBufferingMinus1, &vps.MaxNumReorderPics, &vps.MaxLatencyIncreasePlus1); err != nil {
		return
	}

	vps.MaxLayerID = r.ReadUint8(6)
	n, ok := r.ReadUeMax(MaxLayerSets - 1)
	if !ok {
		return codec.Malformedf("vps_num_layer_sets_minus1 %d", n)
	}
	vps.NumLayerSetsMinus1 = uint16(n)
	// layer_id_included_flag 只有多层扩展用到
	r.Skip(int(vps.NumLayerSetsMinus1) * (int(vps.MaxLayerID) + 1))

	vps.TimingInfoPresentFlag = r.ReadBit()
	if vps.TimingInfoPresentFlag == 1 {
		vps.NumUnitsInTick = r.ReadUint32(32)
		vps.TimeScale = r.ReadUint32(32)
		vps.PocProportionalToTimingFlag = r.ReadBit()
		if vps.PocProportionalToTimingFlag == 1 {
			vps.NumTicksPocDiffOneMinus1 = r.ReadUe()
		}

		if n, ok = r.ReadUeMax(uint32(vps.NumLayerSetsMinus1) + 1); !ok {
			return codec.Malformedf("vps_num_hrd_parameters %d", n)
		}
		vps.NumHrdParameters = uint16(n)
		if n > 0 {
			vps.HrdLayerSetIdx = make([]uint16, n)
			vps.CprmsPresentFlag = make([]uint8, n)
			vps.HrdParameters = make([]RawHRD, n)
		}
		for i := 0; i < int(n); i++ {
			vps.HrdLayerSetIdx[i] = r.ReadUe16()
			vps.CprmsPresentFlag[i] = 1
			if i > 0 {
				vps.CprmsPresentFlag[i] = r.ReadBit()
			}
			if err = vps.HrdParameters[i].decode(r,
				vps.CprmsPresentFlag[i] == 1, int(vps.MaxSubLayersMinus1)); err != nil {
				return
			}
		}
	}

	vps.ExtensionFlag = r.ReadBit()
	return
}

// decodeOrderingInfo sub-layer ordering info shared by VPS and SPS,
// absent entries are inferred from the highest sub-layer.
func decodeOrderingInfo(r *bits.Reader, present bool, maxSubLayersMinus1 int,
	buffering, reorder *[MaxSubLayers]uint8, latency *[MaxSubLayers]uint32) error {
	i := maxSubLayersMinus1
	if present {
		i = 0
	}
	for ; i <= maxSubLayersMinus1; i++ {
		b, ok := r.ReadUeMax(MaxDpbSize - 1)
		if !ok {
			return codec.Malformedf("max_dec_pic_buffering_minus1 %d", b)
		}
		n, ok := r.ReadUeMax(b)
		if !ok {
			return codec.Malformedf("max_num_reorder_pics %d above %d", n, b)
		}
		buffering[i] = uint8(b)
		reorder[i] = uint8(n)
		latency[i] = r.ReadUe()
	}
	if !present {
		for i := 0; i < maxSubLayersMinus1; i++ {
			buffering[i] = buffering[maxSubLayersMinus1]
			reorder[i] = reorder[maxSubLayersMinus1]
			latency[i] = latency[maxSubLayersMinus1]
		}
	}
	return nil
}
