// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/utils"
	"github.com/cnotch/vdec/utils/bits"
)

// SEI payload types used by the decoder, Annex D.
const (
	SeiBufferingPeriod = 0
	SeiRecoveryPoint   = 6
)

// RecoveryPoint recovery_point() payload.
type RecoveryPoint struct {
	RecoveryFrameCnt      uint32
	ExactMatchFlag        uint8
	BrokenLinkFlag        uint8
	ChangingSliceGroupIdc uint8
}

// SEI the payloads of one SEI NAL unit the decoder acts on.
type SEI struct {
	RecoveryPoint *RecoveryPoint
	// BufferingPeriodSPS seq_parameter_set_id of a buffering period, -1 if absent
	BufferingPeriodSPS int
}

// ParseSEI parses the sei_message() list of a SEI NAL unit. Unknown
// payloads are skipped.
func ParseSEI(data []byte) (sei SEI, err error) {
	sei.BufferingPeriodSPS = -1
	defer codec.RecoverMalformed(&err, "sei")

	rbsp := utils.RemoveH264or5EmulationBytes(data)
	if len(rbsp) < 2 {
		return sei, codec.Malformedf("sei: %d bytes is not enough", len(rbsp))
	}
	if rbsp[0]&NalTypeBitmask != NalSei {
		return sei, codec.Malformedf("nal_unit_type %d is not sei", rbsp[0]&NalTypeBitmask)
	}

	payload := rbsp[1:]
	for len(payload) > 0 && !(len(payload) == 1 && payload[0] == 0x80) {
		typ, size := 0, 0
		i := 0
		for ; i < len(payload) && payload[i] == 0xff; i++ {
			typ += 255
		}
		if i >= len(payload) {
			return sei, codec.Malformedf("sei payload type truncated")
		}
		typ += int(payload[i])
		i++
		for ; i < len(payload) && payload[i] == 0xff; i++ {
			size += 255
		}
		if i >= len(payload) {
			return sei, codec.Malformedf("sei payload size truncated")
		}
		size += int(payload[i])
		i++
		if i+size > len(payload) {
			return sei, codec.Malformedf("sei payload %d: size %d overflows", typ, size)
		}

		body := payload[i : i+size]
		switch typ {
		case SeiBufferingPeriod:
			r := bits.NewReader(body)
			id, ok := r.ReadUeMax(MaxSpsCount - 1)
			if !ok {
				return sei, codec.Malformedf("buffering period sps id %d", id)
			}
			sei.BufferingPeriodSPS = int(id)
		case SeiRecoveryPoint:
			r := bits.NewReader(body)
			rp := &RecoveryPoint{}
			rp.RecoveryFrameCnt = r.ReadUe()
			rp.ExactMatchFlag = r.ReadBit()
			rp.BrokenLinkFlag = r.ReadBit()
			rp.ChangingSliceGroupIdc = r.ReadUint8(2)
			sei.RecoveryPoint = rp
		}
		payload = payload[i+size:]
	}
	return
}
