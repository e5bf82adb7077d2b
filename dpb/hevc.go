// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dpb

import (
	"github.com/cnotch/vdec/av/codec/hevc"
)

// HEVC H.265 的 POC 计算、RPS 标记和参考列表 (8.3, C.5.2)
type HEVC struct {
	dpb *DPB

	st        hevcState
	saved     hevcState
	maxPocLsb int32

	// 当前图像的参考集，nil 表示 "no reference picture"
	stCurrBefore []*Picture
	stCurrAfter  []*Picture
	ltCurr       []*Picture
	missing      int
}

type hevcState struct {
	firstPicture bool
	lastEOS      bool
	noRaslOutput bool // 最近一个 IRAP 的 NoRaslOutputFlag
	prevTid0Poc  int32
}

// NewHEVC .
func NewHEVC(d *DPB) *HEVC {
	return &HEVC{dpb: d, st: hevcState{firstPicture: true}, maxPocLsb: 16}
}

// DPB .
func (m *HEVC) DPB() *DPB {
	return m.dpb
}

// Configure 激活一个 SPS
func (m *HEVC) Configure(sps *hevc.RawSPS) {
	m.maxPocLsb = int32(sps.MaxPicOrderCntLsb())
	capacity := sps.MaxDecPicBuffering()
	if c := sps.DpbCapacity(); capacity > c {
		capacity = c
	}
	m.dpb.SetLimits(capacity, sps.MaxNumReorder(), sps.MaxLatencyPictures())
}

// Begin 开始一帧
func (m *HEVC) Begin() {
	m.saved = m.st
	m.dpb.Begin()
}

// Commit .
func (m *HEVC) Commit() {
	m.dpb.Commit()
}

// Rollback 取消当前帧，DPB 和 POC 状态恢复到 Begin 之前
func (m *HEVC) Rollback() {
	m.st = m.saved
	m.dpb.Rollback()
}

// IsFirstPicture 还没有解码过图像，或者刚遇到 end of sequence
func (m *HEVC) IsFirstPicture() bool {
	return m.st.firstPicture
}

// SetFirstPicture .
func (m *HEVC) SetFirstPicture(first bool) {
	m.st.firstPicture = first
}

// EndOfSequence 之后的第一个 IRAP 的 NoRaslOutputFlag 为 1
func (m *HEVC) EndOfSequence() {
	m.st.lastEOS = true
}

// StartPicture 在图像的第一个片调用。返回 false 表示该图像是关联 IRAP
// 的 NoRaslOutputFlag 为 1 时的 RASL 图像，必须跳过。
func (m *HEVC) StartPicture(h *hevc.SliceHeader) bool {
	nt := h.NalType()
	if hevc.IsIRAP(nt) {
		m.st.noRaslOutput = hevc.IsIDR(nt) || hevc.IsBLA(nt) || m.st.firstPicture || m.st.lastEOS
		m.st.lastEOS = false
	}
	return !(hevc.IsRASL(nt) && m.st.noRaslOutput)
}

// OutputFlag PicOutputFlag (8.1.3)
func (m *HEVC) OutputFlag(h *hevc.SliceHeader) bool {
	if hevc.IsRASL(h.NalType()) && m.st.noRaslOutput {
		return false
	}
	return h.PicOutputFlag == 1
}

// ComputePOC 8.3.1
func (m *HEVC) ComputePOC(h *hevc.SliceHeader) int32 {
	nt := h.NalType()
	lsb := int32(h.SlicePicOrderCntLsb)
	if hevc.IsIRAP(nt) && m.st.noRaslOutput {
		return lsb
	}
	max := m.maxPocLsb
	prevLsb := m.st.prevTid0Poc & (max - 1)
	prevMsb := m.st.prevTid0Poc - prevLsb
	msb := prevMsb
	if lsb < prevLsb && prevLsb-lsb >= max/2 {
		msb = prevMsb + max
	} else if lsb > prevLsb && lsb-prevLsb > max/2 {
		msb = prevMsb - max
	}
	return msb + lsb
}

// ClearDPB C.5.2.2，IRAP 且 NoRaslOutputFlag 为 1 时清空 DPB
func (m *HEVC) ClearDPB(h *hevc.SliceHeader) {
	nt := h.NalType()
	if !(hevc.IsIRAP(nt) && m.st.noRaslOutput) || m.st.firstPicture {
		m.dpb.RemoveUnused()
		return
	}
	noOutput := hevc.IsCRA(nt) || h.NoOutputOfPriorPicsFlag == 1
	m.dpb.MarkAllUnused()
	m.dpb.Clear(!noOutput)
}

// ApplyRPS 8.3.2，按参考图像集标记 DPB 中的图像。
// 返回当前图像参考集中缺失的图像数。
func (m *HEVC) ApplyRPS(h *hevc.SliceHeader, poc int32) int {
	m.stCurrBefore = m.stCurrBefore[:0]
	m.stCurrAfter = m.stCurrAfter[:0]
	m.ltCurr = m.ltCurr[:0]
	m.missing = 0

	nt := h.NalType()
	if hevc.IsIDR(nt) || (hevc.IsIRAP(nt) && m.st.noRaslOutput) {
		m.dpb.MarkAllUnused()
	}
	if hevc.IsIDR(nt) {
		m.dpb.RemoveUnused()
		return 0
	}

	keep := make(map[*Picture]RefState)
	max := m.maxPocLsb

	// 长期参考
	for i := 0; i < h.NumLongTerm(); i++ {
		pocLt := int32(h.PocLsbLt[i])
		msbPresent := h.DeltaPocMsbPresentFlag[i] == 1
		if msbPresent {
			pocLt += poc - int32(h.DeltaPocMsbCycleLt[i])*max - (poc & (max - 1))
		}
		var found *Picture
		for _, p := range m.dpb.pics {
			if !p.IsReference() {
				continue
			}
			v := p.POC
			if !msbPresent {
				v &= max - 1
			}
			if v == pocLt {
				found = p
				break
			}
		}
		if found != nil {
			keep[found] = LongTerm
		}
		if h.UsedByCurrPicLt[i] == 1 {
			m.ltCurr = append(m.ltCurr, found)
			if found == nil {
				m.missing++
			}
		}
	}

	// 短期参考
	if rps := h.RPS(); rps != nil {
		for i := 0; i < int(rps.NumNegativePics); i++ {
			p := m.shortTerm(poc+rps.DeltaPocS0[i], keep)
			if rps.UsedByCurrPicS0[i] == 1 {
				m.stCurrBefore = append(m.stCurrBefore, p)
				if p == nil {
					m.missing++
				}
			}
		}
		for i := 0; i < int(rps.NumPositivePics); i++ {
			p := m.shortTerm(poc+rps.DeltaPocS1[i], keep)
			if rps.UsedByCurrPicS1[i] == 1 {
				m.stCurrAfter = append(m.stCurrAfter, p)
				if p == nil {
					m.missing++
				}
			}
		}
	}

	for _, p := range m.dpb.pics {
		st, ok := keep[p]
		if !ok {
			p.Ref = Unused
			continue
		}
		p.Ref = st
	}
	m.dpb.RemoveUnused()
	return m.missing
}

func (m *HEVC) shortTerm(poc int32, keep map[*Picture]RefState) *Picture {
	for _, p := range m.dpb.pics {
		if p.Ref == ShortTerm && p.POC == poc {
			if _, lt := keep[p]; !lt {
				keep[p] = ShortTerm
			}
			return p
		}
	}
	return nil
}

// HasPictures .
func (m *HEVC) HasPictures() bool {
	return m.dpb.Len() > 0
}

// Missing 当前图像参考集中缺失的图像数
func (m *HEVC) Missing() int {
	return m.missing
}

// RefLists 8.3.4，使用 ApplyRPS 得到的参考集构造当前片的参考列表。
// 可用项少于 num_ref_idx_active 时返回 false。
func (m *HEVC) RefLists(h *hevc.SliceHeader) (RefLists, bool) {
	var lists RefLists
	total := len(m.stCurrBefore) + len(m.stCurrAfter) + len(m.ltCurr)
	ok := true
	for l := 0; l < 2; l++ {
		n := h.NumRefIdxActive(l)
		if n == 0 {
			continue
		}
		if total == 0 {
			lists[l] = fit(nil, n)
			ok = false
			continue
		}

		groups := [][]*Picture{m.stCurrBefore, m.stCurrAfter, m.ltCurr}
		if l == 1 {
			groups[0], groups[1] = groups[1], groups[0]
		}
		numTemp := n
		if h.NumPicTotalCurr > numTemp {
			numTemp = h.NumPicTotalCurr
		}
		temp := make([]*Picture, 0, numTemp)
		for len(temp) < numTemp {
			for _, g := range groups {
				for _, p := range g {
					if len(temp) == numTemp {
						break
					}
					temp = append(temp, p)
				}
			}
		}

		list := make([]RefEntry, n)
		for i := range list {
			idx := i
			if h.RefPicListModificationFlag[l] == 1 {
				idx = int(h.ListEntry[l][i])
			}
			if idx < len(temp) && temp[idx] != nil {
				list[i] = Some(temp[idx])
			}
		}
		lists[l] = list
		if lists.Usable(l) < n {
			ok = false
		}
	}
	return lists, ok
}

// EndFrame 存入当前图像并按 C.5.2.3 输出
func (m *HEVC) EndFrame(p *Picture, h *hevc.SliceHeader) bool {
	nt := h.NalType()
	p.PocLsb = int(h.SlicePicOrderCntLsb)
	p.Ref = ShortTerm
	p.OutputPending = m.OutputFlag(h)

	if h.NalUnitHeader.TemporalID() == 0 &&
		!hevc.IsRASL(nt) && !hevc.IsRADL(nt) && !hevc.IsSubLayerNonRef(nt) {
		m.st.prevTid0Poc = p.POC
	}
	m.st.firstPicture = false

	ok := m.dpb.Insert(p)
	m.dpb.BumpExcess()
	return ok
}

// EndConcealed 存入整帧隐藏的图像。图像按短期参考保留，后续图像的 RPS
// 可以按 POC 引用它；prevTid0Pic 不变。
func (m *HEVC) EndConcealed(p *Picture) bool {
	p.Ref = ShortTerm
	p.OutputPending = true
	m.st.firstPicture = false
	ok := m.dpb.Insert(p)
	m.dpb.BumpExcess()
	return ok
}
