// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dpb

import (
	"sort"

	"github.com/cnotch/vdec/av/codec/h264"
)

// AVC H.264 的 POC 计算、参考列表和参考帧标记 (8.2.1, 8.2.4, 8.2.5)
type AVC struct {
	dpb *DPB

	maxFrameNum int
	maxNumRefs  int
	pocType     int
	gapsAllowed bool

	st    avcState
	saved avcState

	// 当前帧的中间结果，EndFrame 时更新到 prev*
	pocMsb         int32
	topPoc         int32
	bottomPoc      int32
	frameNumOffset int
}

// avcState 跨帧保存的状态，取消一帧时恢复
type avcState struct {
	maxLongTermID int // MaxLongTermFrameIdx，NoLongTermFrameIdx 表示没有

	prevPocMsb         int32
	prevPocLsb         int32
	prevFrameNum       int
	prevFrameNumOffset int
	prevRefFrameNum    int
}

// NewAVC .
func NewAVC(d *DPB) *AVC {
	return &AVC{
		dpb:         d,
		st:          avcState{maxLongTermID: NoLongTermFrameIdx},
		maxFrameNum: 16,
		maxNumRefs:  1,
	}
}

// DPB .
func (m *AVC) DPB() *DPB {
	return m.dpb
}

// Configure 激活一个 SPS
func (m *AVC) Configure(sps *h264.RawSPS) {
	m.maxFrameNum = sps.MaxFrameNum()
	m.maxNumRefs = int(sps.MaxNumRefFrames)
	if m.maxNumRefs < 1 {
		m.maxNumRefs = 1
	}
	m.pocType = int(sps.PicOrderCntType)
	m.gapsAllowed = sps.GapsInFrameNumAllowedFlag == 1

	reorder := sps.MaxNumReorder()
	if m.pocType == 2 {
		// 输出顺序与解码顺序相同
		reorder = 0
	}
	m.dpb.SetLimits(sps.DpbCapacity(), reorder, 0)
}

// Begin 开始一帧
func (m *AVC) Begin() {
	m.saved = m.st
	m.dpb.Begin()
}

// Commit .
func (m *AVC) Commit() {
	m.dpb.Commit()
}

// Rollback 取消当前帧，DPB 和 POC 状态恢复到 Begin 之前
func (m *AVC) Rollback() {
	m.st = m.saved
	m.dpb.Rollback()
}

// ComputePOC 8.2.1，计算当前帧的 POC
func (m *AVC) ComputePOC(h *h264.SliceHeader) int32 {
	sps := h.SPS
	fn := int(h.FrameNum)
	idr := h.IsIDR()

	switch sps.PicOrderCntType {
	case 0:
		prevMsb, prevLsb := m.st.prevPocMsb, m.st.prevPocLsb
		if idr {
			prevMsb, prevLsb = 0, 0
		}
		lsb := int32(h.PicOrderCntLsb)
		max := int32(sps.MaxPicOrderCntLsb())
		msb := prevMsb
		if lsb < prevLsb && prevLsb-lsb >= max/2 {
			msb = prevMsb + max
		} else if lsb > prevLsb && lsb-prevLsb > max/2 {
			msb = prevMsb - max
		}
		m.pocMsb = msb
		m.topPoc = msb + lsb
		m.bottomPoc = m.topPoc + h.DeltaPicOrderCntBottom
	case 1:
		m.frameNumOffset = m.nextFrameNumOffset(fn, idr)
		var absFrameNum int
		if sps.NumRefFramesInPicOrderCntCycle != 0 {
			absFrameNum = m.frameNumOffset + fn
		}
		if !h.IsReference() && absFrameNum > 0 {
			absFrameNum--
		}

		var expected int32
		if absFrameNum > 0 {
			n := int(sps.NumRefFramesInPicOrderCntCycle)
			var deltaPerCycle int32
			for i := 0; i < n; i++ {
				deltaPerCycle += sps.OffsetForRefFrame[i]
			}
			cycleCnt := (absFrameNum - 1) / n
			inCycle := (absFrameNum - 1) % n
			expected = int32(cycleCnt) * deltaPerCycle
			for i := 0; i <= inCycle; i++ {
				expected += sps.OffsetForRefFrame[i]
			}
		}
		if !h.IsReference() {
			expected += sps.OffsetForNonRefPic
		}
		m.topPoc = expected + h.DeltaPicOrderCnt[0]
		m.bottomPoc = m.topPoc + sps.OffsetForTopToBottomField + h.DeltaPicOrderCnt[1]
	default:
		m.frameNumOffset = m.nextFrameNumOffset(fn, idr)
		var poc int32
		if !idr {
			poc = 2 * int32(m.frameNumOffset+fn)
			if !h.IsReference() {
				poc--
			}
		}
		m.topPoc, m.bottomPoc = poc, poc
	}
	return min32(m.topPoc, m.bottomPoc)
}

func (m *AVC) nextFrameNumOffset(fn int, idr bool) int {
	switch {
	case idr:
		return 0
	case m.st.prevFrameNum > fn:
		return m.st.prevFrameNumOffset + m.maxFrameNum
	default:
		return m.st.prevFrameNumOffset
	}
}

// HasFrameNumGap 当前帧与上一参考帧的 frame_num 不连续
func (m *AVC) HasFrameNumGap(h *h264.SliceHeader) bool {
	if h.IsIDR() {
		return false
	}
	fn := int(h.FrameNum)
	return fn != m.st.prevRefFrameNum && fn != (m.st.prevRefFrameNum+1)%m.maxFrameNum
}

// FillFrameNumGap 8.2.5.2，为丢失的 frame_num 插入非存在帧。
// 返回丢失的 frame_num 数，不允许间隙时返回 0。只插入最后
// max_num_ref_frames 个，更早的会被滑动窗口移除。
func (m *AVC) FillFrameNumGap(h *h264.SliceHeader) int {
	if !m.gapsAllowed || !m.HasFrameNumGap(h) {
		return 0
	}
	fn := int(h.FrameNum)
	missing := (fn - m.st.prevRefFrameNum - 1 + m.maxFrameNum) % m.maxFrameNum
	first := (m.st.prevRefFrameNum + 1) % m.maxFrameNum
	count := missing
	if skip := count - m.maxNumRefs; skip > 0 {
		first = (first + skip) % m.maxFrameNum
		count = m.maxNumRefs
	}

	for i := 0; i < count; i++ {
		gfn := (first + i) % m.maxFrameNum
		m.updateFrameNumWrap(gfn)
		m.slidingWindow()

		p := m.dpb.newNonExisting()
		p.FrameNum = gfn
		p.FrameNumWrap = gfn
		p.Ref = ShortTerm
		if m.pocType != 0 {
			m.frameNumOffset = m.nextFrameNumOffset(gfn, false)
			p.POC = 2 * int32(m.frameNumOffset+gfn)
			m.st.prevFrameNumOffset = m.frameNumOffset
		}
		m.dpb.Insert(p)

		m.st.prevFrameNum = gfn
		m.st.prevRefFrameNum = gfn
	}
	return missing
}

// updateFrameNumWrap 8.2.4.1
func (m *AVC) updateFrameNumWrap(currFrameNum int) {
	for _, p := range m.dpb.pics {
		if p.Ref != ShortTerm {
			continue
		}
		p.FrameNumWrap = p.FrameNum
		if p.FrameNum > currFrameNum {
			p.FrameNumWrap = p.FrameNum - m.maxFrameNum
		}
	}
}

// RefLists 8.2.4，构造当前片的参考列表。
// 可用项少于 num_ref_idx_active 时返回 false，缺少的项为 None。
func (m *AVC) RefLists(h *h264.SliceHeader) (RefLists, bool) {
	var lists RefLists
	n0, n1 := h.NumRefIdxActive(0), h.NumRefIdxActive(1)
	if n0 == 0 {
		return lists, true
	}
	m.updateFrameNumWrap(int(h.FrameNum))

	var st, lt []*Picture
	for _, p := range m.dpb.pics {
		switch p.Ref {
		case ShortTerm:
			st = append(st, p)
		case LongTerm:
			lt = append(lt, p)
		}
	}
	sort.SliceStable(lt, func(i, j int) bool { return lt[i].LongTermPicNum() < lt[j].LongTermPicNum() })

	if h.Type() == h264.SliceB {
		poc := min32(m.topPoc, m.bottomPoc)
		var before, after []*Picture
		for _, p := range st {
			if p.NonExisting {
				continue
			}
			if p.POC < poc {
				before = append(before, p)
			} else {
				after = append(after, p)
			}
		}
		sort.SliceStable(before, func(i, j int) bool { return before[i].POC > before[j].POC })
		sort.SliceStable(after, func(i, j int) bool { return after[i].POC < after[j].POC })

		l0 := entries(before, after, lt)
		l1 := entries(after, before, lt)
		if len(l1) > 1 && sameEntries(l0, l1) {
			l1[0], l1[1] = l1[1], l1[0]
		}
		lists[0] = l0
		lists[1] = l1
	} else {
		sort.SliceStable(st, func(i, j int) bool { return st[i].PicNum() > st[j].PicNum() })
		lists[0] = entries(st, lt)
	}

	ok := true
	for l, n := range [2]int{n0, n1} {
		if n == 0 {
			lists[l] = nil
			continue
		}
		lists[l] = fit(lists[l], n)
		if h.RefPicListModificationFlag[l] == 1 {
			lists[l] = m.modify(lists[l], h.RefPicListModification[l], int(h.FrameNum))
		}
		if lists.Usable(l) < n {
			ok = false
		}
	}
	return lists, ok
}

// modify 8.2.4.3，帧编码时 CurrPicNum 等于 frame_num
func (m *AVC) modify(list []RefEntry, cmds []h264.RefPicListModification, currPicNum int) []RefEntry {
	n := len(list)
	list = append(list, None)
	picNumPred := currPicNum
	refIdx := 0
	for _, c := range cmds {
		if refIdx >= n {
			break
		}
		var (
			target *Picture
			match  func(e RefEntry) bool
		)
		switch c.Idc {
		case 0, 1:
			abs := int(c.AbsDiffPicNumMinus1) + 1
			noWrap := picNumPred + abs
			if c.Idc == 0 {
				noWrap = picNumPred - abs
				if noWrap < 0 {
					noWrap += m.maxFrameNum
				}
			} else if noWrap >= m.maxFrameNum {
				noWrap -= m.maxFrameNum
			}
			picNumPred = noWrap
			picNum := noWrap
			if picNum > currPicNum {
				picNum -= m.maxFrameNum
			}
			target = m.findShortTerm(picNum)
			match = func(e RefEntry) bool {
				p, ok := e.Get()
				return ok && p.Ref == ShortTerm && p.PicNum() == picNum
			}
		case 2:
			ltNum := int(c.LongTermPicNum)
			target = m.findLongTerm(ltNum)
			match = func(e RefEntry) bool {
				p, ok := e.Get()
				return ok && p.Ref == LongTerm && p.LongTermPicNum() == ltNum
			}
		default:
			continue
		}

		copy(list[refIdx+1:], list[refIdx:n])
		if target != nil {
			list[refIdx] = Some(target)
		} else {
			list[refIdx] = None
		}
		refIdx++
		nIdx := refIdx
		for cIdx := refIdx; cIdx <= n; cIdx++ {
			if target == nil || !match(list[cIdx]) {
				list[nIdx] = list[cIdx]
				nIdx++
			}
		}
	}
	return list[:n]
}

func (m *AVC) findShortTerm(picNum int) *Picture {
	for _, p := range m.dpb.pics {
		if p.Ref == ShortTerm && p.PicNum() == picNum {
			return p
		}
	}
	return nil
}

func (m *AVC) findLongTerm(ltPicNum int) *Picture {
	for _, p := range m.dpb.pics {
		if p.Ref == LongTerm && p.LongTermPicNum() == ltPicNum {
			return p
		}
	}
	return nil
}

// EndFrame 参考帧标记 (8.2.5)，存入 DPB 并按 C.4 输出。
// 返回 false 表示 DPB 溢出，丢弃了一帧参考帧。
func (m *AVC) EndFrame(p *Picture, h *h264.SliceHeader) bool {
	fn := int(h.FrameNum)
	mmco5 := false

	p.FrameNum = fn
	p.FrameNumWrap = fn
	p.LongTermFrameIdx = NoLongTermFrameIdx
	p.Ref = Unused
	p.OutputPending = true
	m.updateFrameNumWrap(fn)

	switch {
	case h.IsIDR():
		m.dpb.MarkAllUnused()
		if h.NoOutputOfPriorPicsFlag == 1 {
			m.dpb.Clear(false)
		} else {
			m.dpb.Flush()
		}
		if h.LongTermReferenceFlag == 1 {
			p.Ref = LongTerm
			p.LongTermFrameIdx = 0
			m.st.maxLongTermID = 0
		} else {
			p.Ref = ShortTerm
			m.st.maxLongTermID = NoLongTermFrameIdx
		}
	case h.IsReference():
		if h.AdaptiveRefPicMarkingModeFlag == 1 {
			mmco5 = m.applyMMCO(p, h.MMCOs, fn)
		} else {
			m.slidingWindow()
		}
		if p.Ref != LongTerm {
			p.Ref = ShortTerm
		}
	}

	if mmco5 {
		// 8.2.1: memory_management_control_operation 5 之后帧号和 POC 归零
		tmp := min32(m.topPoc, m.bottomPoc)
		m.topPoc -= tmp
		m.bottomPoc -= tmp
		p.POC = 0
		p.FrameNum = 0
		p.FrameNumWrap = 0
		m.dpb.Flush()
	}

	// 8.2.1 的 prev* 状态
	if mmco5 {
		m.st.prevFrameNum = 0
		m.st.prevFrameNumOffset = 0
	} else {
		m.st.prevFrameNum = fn
		m.st.prevFrameNumOffset = m.frameNumOffset
	}
	if h.IsReference() {
		m.st.prevRefFrameNum = p.FrameNum
		if mmco5 {
			m.st.prevPocMsb = 0
			m.st.prevPocLsb = m.topPoc
		} else {
			m.st.prevPocMsb = m.pocMsb
			m.st.prevPocLsb = int32(h.PicOrderCntLsb)
		}
	}

	// C.4.5.2: 非参考帧比所有待输出帧都早且 DPB 已满时直接输出
	if p.Ref == Unused && m.dpb.Full() {
		if min, ok := m.dpb.MinPendingPOC(); !ok || p.POC < min {
			m.dpb.Bypass(p)
			return true
		}
	}
	ok := m.dpb.Insert(p)
	m.dpb.BumpExcess()
	return ok
}

// EndConcealed 存入整帧隐藏的非 IDR 图像。图像不作参考，
// 也不改变帧号和 POC 的状态。
func (m *AVC) EndConcealed(p *Picture) bool {
	p.Ref = Unused
	p.LongTermFrameIdx = NoLongTermFrameIdx
	p.OutputPending = true
	if m.dpb.Full() {
		if min, ok := m.dpb.MinPendingPOC(); !ok || p.POC < min {
			m.dpb.Bypass(p)
			return true
		}
	}
	ok := m.dpb.Insert(p)
	m.dpb.BumpExcess()
	return ok
}

// slidingWindow 8.2.5.3
func (m *AVC) slidingWindow() {
	short, long := m.dpb.NumRefs()
	if short == 0 || short+long < m.maxNumRefs {
		return
	}
	for short > 0 && short+long >= m.maxNumRefs {
		p := m.dpb.oldestShortTerm()
		if p == nil {
			break
		}
		p.Ref = Unused
		short--
	}
}

// applyMMCO 8.2.5.4，返回是否出现 memory_management_control_operation 5
func (m *AVC) applyMMCO(cur *Picture, ops []h264.MMCO, currPicNum int) (mmco5 bool) {
	for _, op := range ops {
		switch op.Op {
		case 1:
			picNumX := currPicNum - (int(op.DifferenceOfPicNumsMinus1) + 1)
			if p := m.findShortTerm(picNumX); p != nil {
				p.Ref = Unused
			}
		case 2:
			if p := m.findLongTerm(int(op.LongTermPicNum)); p != nil {
				p.Ref = Unused
				p.LongTermFrameIdx = NoLongTermFrameIdx
			}
		case 3:
			idx := int(op.LongTermFrameIdx)
			if idx > m.st.maxLongTermID {
				continue
			}
			picNumX := currPicNum - (int(op.DifferenceOfPicNumsMinus1) + 1)
			p := m.findShortTerm(picNumX)
			if p == nil {
				continue
			}
			m.releaseLongTermIdx(idx, p)
			p.Ref = LongTerm
			p.LongTermFrameIdx = idx
		case 4:
			m.st.maxLongTermID = int(op.MaxLongTermFrameIdxPlus1) - 1
			for _, p := range m.dpb.pics {
				if p.Ref == LongTerm && p.LongTermFrameIdx > m.st.maxLongTermID {
					p.Ref = Unused
					p.LongTermFrameIdx = NoLongTermFrameIdx
				}
			}
		case 5:
			m.dpb.MarkAllUnused()
			m.st.maxLongTermID = NoLongTermFrameIdx
			mmco5 = true
		case 6:
			idx := int(op.LongTermFrameIdx)
			if idx > m.st.maxLongTermID {
				continue
			}
			m.releaseLongTermIdx(idx, cur)
			cur.Ref = LongTerm
			cur.LongTermFrameIdx = idx
		}
	}
	return
}

func (m *AVC) releaseLongTermIdx(idx int, except *Picture) {
	for _, p := range m.dpb.pics {
		if p != except && p.Ref == LongTerm && p.LongTermFrameIdx == idx {
			p.Ref = Unused
			p.LongTermFrameIdx = NoLongTermFrameIdx
		}
	}
}

// Reset 码流结束后重新开始，下一帧必须是 IDR
func (m *AVC) Reset() {
	m.st = avcState{maxLongTermID: NoLongTermFrameIdx}
}

func entries(groups ...[]*Picture) []RefEntry {
	var list []RefEntry
	for _, g := range groups {
		for _, p := range g {
			list = append(list, Some(p))
		}
	}
	return list
}

func sameEntries(a, b []RefEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
