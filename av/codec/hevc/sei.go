// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

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
	RecoveryPocCnt int32
	ExactMatchFlag uint8
	BrokenLinkFlag uint8
}

// SEI the payloads of one SEI NAL unit the decoder acts on.
type SEI struct {
	RecoveryPoint *RecoveryPoint
	// BufferingPeriodSPS bp_seq_parameter_set_id, -1 if absent
	BufferingPeriodSPS int
}

// ParseSEI parses the sei_message() list of a prefix or suffix SEI NAL unit.
// Unknown payloads are skipped.
func ParseSEI(data []byte) (sei SEI, err error) {
	sei.BufferingPeriodSPS = -1
	defer codec.RecoverMalformed(&err, "sei")

	rbsp := utils.RemoveH264or5EmulationBytes(data)
	if len(rbsp) < 3 {
		return sei, codec.Malformedf("sei: %d bytes is not enough", len(rbsp))
	}
	if nt := int(rbsp[0]>>1) & 0x3f; !IsSEI(nt) {
		return sei, codec.Malformedf("nal_unit_type %d is not sei", nt)
	}

	payload := rbsp[2:]
	for len(payload) > 0 && !(len(payload) == 1 && payload[0] == 0x80) {
		var typ, size int
		if typ, payload, err = readSEIValue(payload); err != nil {
			return
		}
		if size, payload, err = readSEIValue(payload); err != nil {
			return
		}
		if size > len(payload) {
			return sei, codec.Malformedf("sei payload %d: size %d overflows", typ, size)
		}

		r := bits.NewReader(payload[:size])
		switch typ {
		case SeiBufferingPeriod:
			id, ok := r.ReadUeMax(MaxSpsCount - 1)
			if !ok {
				return sei, codec.Malformedf("bp_seq_parameter_set_id %d", id)
			}
			sei.BufferingPeriodSPS = int(id)
		case SeiRecoveryPoint:
			rp := &RecoveryPoint{}
			rp.RecoveryPocCnt = r.ReadSe()
			rp.ExactMatchFlag = r.ReadBit()
			rp.BrokenLinkFlag = r.ReadBit()
			sei.RecoveryPoint = rp
		}
		payload = payload[size:]
	}
	return
}

// readSEIValue reads a ff-prefixed payload type or size.
func readSEIValue(b []byte) (int, []byte, error) {
	v := 0
	for len(b) > 0 && b[0] == 0xff {
		v += 255
		b = b[1:]
	}
	if len(b) == 0 {
		return 0, nil, codec.Malformedf("sei payload header truncated")
	}
	return v + int(b[0]), b[1:], nil
}
