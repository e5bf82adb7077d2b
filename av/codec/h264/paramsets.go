// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package h264

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/utils"
	"github.com/cnotch/vdec/utils/bits"
)

type spsEntry struct {
	state codec.ParamState
	sps   *RawSPS
}

type ppsEntry struct {
	state codec.ParamState
	pps   *RawPPS
}

// ParamSets 通道的 SPS/PPS 表
type ParamSets struct {
	sps [MaxSpsCount]spsEntry
	pps [MaxPpsCount]ppsEntry

	// 最近一个 buffering period SEI 指定的 SPS
	activeSPS int
}

// NewParamSets .
func NewParamSets() *ParamSets {
	return &ParamSets{activeSPS: -1}
}

// ParseSPS parses a SPS NAL unit into a scratch record, the table entry is
// replaced only on success. A failed parse at a known id turns a current
// entry stale.
func (ps *ParamSets) ParseSPS(data []byte) (int, error) {
	sps := new(RawSPS)
	if err := sps.Decode(data); err != nil {
		if id, ok := peekID(data, 3); ok && id < MaxSpsCount {
			ps.sps[id].state = ps.sps[id].state.Failed()
		}
		return -1, err
	}
	id := int(sps.SeqParameterSetID)
	ps.sps[id] = spsEntry{state: codec.Current, sps: sps}
	return id, nil
}

// ParsePPS parses a PPS NAL unit, the referenced SPS must be usable.
func (ps *ParamSets) ParsePPS(data []byte) (int, error) {
	pps := new(RawPPS)
	if err := pps.Decode(data, ps.SPS); err != nil {
		if id, ok := peekID(data, 0); ok && id < MaxPpsCount {
			ps.pps[id].state = ps.pps[id].state.Failed()
		}
		return -1, err
	}
	id := int(pps.PicParameterSetID)
	ps.pps[id] = ppsEntry{state: codec.Current, pps: pps}
	return id, nil
}

// SPS returns the usable SPS with the id.
func (ps *ParamSets) SPS(id int) (*RawSPS, bool) {
	if id < 0 || id >= MaxSpsCount || !ps.sps[id].state.Usable() {
		return nil, false
	}
	return ps.sps[id].sps, true
}

// PPS returns the usable PPS with the id.
func (ps *ParamSets) PPS(id int) (*RawPPS, bool) {
	if id < 0 || id >= MaxPpsCount || !ps.pps[id].state.Usable() {
		return nil, false
	}
	return ps.pps[id].pps, true
}

// Active returns the PPS with the id and the SPS it refers to, both usable.
func (ps *ParamSets) Active(ppsID int) (*RawPPS, *RawSPS, bool) {
	pps, ok := ps.PPS(ppsID)
	if !ok {
		return nil, nil, false
	}
	sps, ok := ps.SPS(int(pps.SeqParameterSetID))
	if !ok {
		return nil, nil, false
	}
	return pps, sps, true
}

// Fallback returns the last value stored at ppsID regardless of its state,
// nil when nothing was ever parsed there.
func (ps *ParamSets) Fallback(ppsID int) (*RawPPS, *RawSPS) {
	if ppsID < 0 || ppsID >= MaxPpsCount || ps.pps[ppsID].pps == nil {
		return nil, nil
	}
	pps := ps.pps[ppsID].pps
	return pps, ps.sps[pps.SeqParameterSetID].sps
}

// SPSState .
func (ps *ParamSets) SPSState(id int) codec.ParamState {
	if id < 0 || id >= MaxSpsCount {
		return codec.NeverParsed
	}
	return ps.sps[id].state
}

// PPSState .
func (ps *ParamSets) PPSState(id int) codec.ParamState {
	if id < 0 || id >= MaxPpsCount {
		return codec.NeverParsed
	}
	return ps.pps[id].state
}

// PoisonSPS marks the SPS unusable until it is parsed again.
func (ps *ParamSets) PoisonSPS(id int) {
	if id >= 0 && id < MaxSpsCount && ps.sps[id].sps != nil {
		ps.sps[id].state = codec.Poisoned
	}
}

// SetActiveSPS records the SPS selected by a buffering period SEI.
func (ps *ParamSets) SetActiveSPS(id int) {
	if id >= 0 && id < MaxSpsCount {
		ps.activeSPS = id
	}
}

// ActiveSPS returns the SPS selected by a buffering period SEI.
func (ps *ParamSets) ActiveSPS() (*RawSPS, bool) {
	return ps.SPS(ps.activeSPS)
}

// peekID reads the first ue(v) after the NAL header and skip bytes.
func peekID(data []byte, skip int) (id int, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	rbsp := utils.RemoveH264or5EmulationBytes(data)
	if len(rbsp) < 1+skip {
		return 0, false
	}
	r := bits.NewReader(rbsp[1+skip:])
	return int(r.ReadUe()), true
}
