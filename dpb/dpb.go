// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dpb

import (
	"sort"

	"github.com/cnotch/vdec/av/codec"
	"github.com/pkg/errors"
)

// MaxCapacity DPB 最多容纳的帧数
const MaxCapacity = 16

// Output 图像输出回调，在图像按输出顺序出列并且解码完成后调用
type Output func(p *Picture)

// DPB 解码图像缓冲区。只能由解析协程访问。
type DPB struct {
	pics       []*Picture // 驻留图像，解码顺序
	capacity   int
	maxReorder int
	maxLatency int

	pool     *Pool
	output   Output
	nextID   int64
	inflight map[int64]*Picture // 已提交引擎、尚未完成
	display  []*Picture         // 已出列，等待解码完成后输出

	overflows int
	tx        *txn
}

type picState struct {
	pic     *Picture
	ref     RefState
	ltIdx   int
	pending bool
}

// txn 一帧开始后对 DPB 的修改，取消时全部撤销
type txn struct {
	states  []picState
	created []*Picture
	removed []*Picture
	bumped  []*Picture
}

// New 创建 DPB
func New(pool *Pool, output Output) *DPB {
	return &DPB{
		capacity:   1,
		maxReorder: MaxCapacity,
		pool:       pool,
		output:     output,
		inflight:   make(map[int64]*Picture),
	}
}

// SetLimits 设置容量、最大重排序帧数和最大延迟帧数（0 表示不限制）
func (d *DPB) SetLimits(capacity, maxReorder, maxLatency int) {
	if capacity < 1 {
		capacity = 1
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	if maxReorder < 0 || maxReorder > capacity {
		maxReorder = capacity
	}
	d.capacity = capacity
	d.maxReorder = maxReorder
	d.maxLatency = maxLatency
}

// SetPool 安装缓冲池，通道在确定分辨率后才分配缓冲
func (d *DPB) SetPool(pool *Pool) {
	d.pool = pool
}

// Capacity .
func (d *DPB) Capacity() int {
	return d.capacity
}

// Len 驻留图像数
func (d *DPB) Len() int {
	return len(d.pics)
}

// Pictures 驻留图像的副本，解码顺序
func (d *DPB) Pictures() []*Picture {
	pics := make([]*Picture, len(d.pics))
	copy(pics, d.pics)
	return pics
}

// Overflows 因 DPB 满被迫丢弃参考帧的次数
func (d *DPB) Overflows() int {
	return d.overflows
}

// NumPending 等待输出的图像数
func (d *DPB) NumPending() int {
	n := 0
	for _, p := range d.pics {
		if p.OutputPending {
			n++
		}
	}
	return n
}

// NumRefs 参考帧数
func (d *DPB) NumRefs() (short, long int) {
	for _, p := range d.pics {
		switch p.Ref {
		case ShortTerm:
			short++
		case LongTerm:
			long++
		}
	}
	return
}

// Find 按节点 id 查找驻留图像
func (d *DPB) Find(id int64) (*Picture, bool) {
	for _, p := range d.pics {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// NewPicture 为当前帧分配缓冲，图像在 Insert 之前不驻留
func (d *DPB) NewPicture() (*Picture, error) {
	if d.pool == nil {
		return nil, errors.Wrap(codec.ErrNoMemory, "dpb has no buffer pool")
	}
	b, err := d.pool.Get()
	if err != nil {
		return nil, err
	}
	p := &Picture{
		ID:               d.nextID,
		Buffer:           b,
		LongTermFrameIdx: NoLongTermFrameIdx,
	}
	d.nextID++
	d.inflight[p.ID] = p
	if d.tx != nil {
		d.tx.created = append(d.tx.created, p)
	}
	return p, nil
}

// newNonExisting 帧号间隙中补充的帧，没有缓冲也不输出
func (d *DPB) newNonExisting() *Picture {
	p := &Picture{
		ID:               d.nextID,
		Buffer:           -1,
		NonExisting:      true,
		Decoded:          true,
		LongTermFrameIdx: NoLongTermFrameIdx,
	}
	d.nextID++
	if d.tx != nil {
		d.tx.created = append(d.tx.created, p)
	}
	return p
}

// Begin 开始一帧的修改
func (d *DPB) Begin() {
	if d.tx != nil {
		d.Commit()
	}
	tx := &txn{states: make([]picState, len(d.pics))}
	for i, p := range d.pics {
		tx.states[i] = picState{pic: p, ref: p.Ref, ltIdx: p.LongTermFrameIdx, pending: p.OutputPending}
	}
	d.tx = tx
}

// Commit 确认 Begin 之后的修改，延迟的输出和缓冲释放在此执行
func (d *DPB) Commit() {
	tx := d.tx
	if tx == nil {
		return
	}
	d.tx = nil
	for _, p := range tx.bumped {
		d.emit(p)
	}
	for _, p := range tx.removed {
		d.release(p)
	}
}

// Rollback 撤销 Begin 之后的所有修改，DPB 恢复到该帧开始前的状态
func (d *DPB) Rollback() {
	tx := d.tx
	if tx == nil {
		return
	}
	d.tx = nil

	d.pics = d.pics[:0]
	for _, s := range tx.states {
		s.pic.Ref = s.ref
		s.pic.LongTermFrameIdx = s.ltIdx
		s.pic.OutputPending = s.pending
		s.pic.resident = true
		d.pics = append(d.pics, s.pic)
	}
	for _, p := range tx.created {
		p.resident = false
		delete(d.inflight, p.ID)
		if p.Buffer >= 0 && !p.released {
			p.released = true
			d.pool.Put(p.Buffer)
		}
	}
}

// InTransaction .
func (d *DPB) InTransaction() bool {
	return d.tx != nil
}

// Insert 存入当前帧，必要时先出列或淘汰以腾出空间。
// 返回 false 表示不得不丢弃了一帧参考帧。
func (d *DPB) Insert(p *Picture) bool {
	ok := d.makeRoom()
	p.resident = true
	d.pics = append(d.pics, p)
	return ok
}

// makeRoom C.4.5.3 / C.5.2.2 的 bumping，直到有空闲位置
func (d *DPB) makeRoom() bool {
	d.removeUnused()
	ok := true
	for len(d.pics) >= d.capacity {
		if d.bump() {
			continue
		}
		// 全部是参考帧：流不符合规范，丢弃最早的短期参考帧
		victim := d.oldestShortTerm()
		if victim == nil {
			victim = d.pics[0]
		}
		victim.Ref = Unused
		victim.LongTermFrameIdx = NoLongTermFrameIdx
		victim.OutputPending = false
		d.overflows++
		ok = false
		d.removeUnused()
	}
	return ok
}

// BumpExcess C.5.2.3，等待输出的帧超过重排序或延迟限制时出列
func (d *DPB) BumpExcess() {
	for d.NumPending() > d.maxReorder || d.latencyExceeded() {
		if !d.bump() {
			break
		}
	}
}

func (d *DPB) latencyExceeded() bool {
	if d.maxLatency <= 0 {
		return false
	}
	for _, p := range d.pics {
		if p.OutputPending && d.latency(p) >= d.maxLatency {
			return true
		}
	}
	return false
}

// latency 在 p 之后解码的帧数
func (d *DPB) latency(p *Picture) int {
	for i, q := range d.pics {
		if q == p {
			return len(d.pics) - 1 - i
		}
	}
	return 0
}

// bump 输出 POC 最小的待输出帧
func (d *DPB) bump() bool {
	var next *Picture
	for _, p := range d.pics {
		if p.OutputPending && (next == nil || p.POC < next.POC) {
			next = p
		}
	}
	if next == nil {
		return false
	}
	next.OutputPending = false
	if d.tx != nil {
		d.tx.bumped = append(d.tx.bumped, next)
	} else {
		d.emit(next)
	}
	d.removeUnused()
	return true
}

// Full 移除可移除的帧后是否已满
func (d *DPB) Full() bool {
	d.removeUnused()
	return len(d.pics) >= d.capacity
}

// MinPendingPOC 待输出帧中最小的 POC
func (d *DPB) MinPendingPOC() (int32, bool) {
	var (
		min int32
		ok  bool
	)
	for _, p := range d.pics {
		if p.OutputPending && (!ok || p.POC < min) {
			min, ok = p.POC, true
		}
	}
	return min, ok
}

// Bypass 不存储当前帧，直接输出 (C.4.5.2)
func (d *DPB) Bypass(p *Picture) {
	p.OutputPending = false
	p.resident = false
	if d.tx != nil {
		d.tx.bumped = append(d.tx.bumped, p)
	} else {
		d.emit(p)
	}
}

// Flush 按输出顺序输出所有待输出帧
func (d *DPB) Flush() {
	for d.bump() {
	}
	d.removeUnused()
}

// Clear 所有帧标记为非参考；output 为 false 时待输出帧直接丢弃
func (d *DPB) Clear(output bool) {
	for _, p := range d.pics {
		p.Ref = Unused
		p.LongTermFrameIdx = NoLongTermFrameIdx
		if !output {
			p.OutputPending = false
		}
	}
	d.Flush()
}

// MarkAllUnused 8.2.5.1 / 8.3.2，清除所有参考标记
func (d *DPB) MarkAllUnused() {
	for _, p := range d.pics {
		p.Ref = Unused
		p.LongTermFrameIdx = NoLongTermFrameIdx
	}
}

// RemoveUnused 移除非参考且已输出的帧
func (d *DPB) RemoveUnused() {
	d.removeUnused()
}

func (d *DPB) removeUnused() {
	kept := d.pics[:0]
	for _, p := range d.pics {
		if p.Ref != Unused || p.OutputPending {
			kept = append(kept, p)
			continue
		}
		p.resident = false
		if d.tx != nil {
			d.tx.removed = append(d.tx.removed, p)
		} else {
			d.release(p)
		}
	}
	for i := len(kept); i < len(d.pics); i++ {
		d.pics[i] = nil
	}
	d.pics = kept
}

// RemoveHead 丢弃解码顺序最早的非参考帧，用于无法解码的帧
func (d *DPB) RemoveHead() {
	for _, p := range d.pics {
		if p.Ref == Unused {
			p.OutputPending = false
			break
		}
	}
	d.removeUnused()
}

func (d *DPB) oldestShortTerm() *Picture {
	var oldest *Picture
	for _, p := range d.pics {
		if p.Ref == ShortTerm && (oldest == nil || p.FrameNumWrap < oldest.FrameNumWrap) {
			oldest = p
		}
	}
	return oldest
}

// emit 输出或等待解码完成
func (d *DPB) emit(p *Picture) {
	if p.NonExisting {
		return
	}
	d.display = append(d.display, p)
	d.deliver()
}

// deliver 按出列顺序输出已解码的图像
func (d *DPB) deliver() {
	n := 0
	for ; n < len(d.display); n++ {
		p := d.display[n]
		if !p.Decoded {
			break
		}
		if d.output != nil {
			d.output(p)
		}
	}
	if n == 0 {
		return
	}
	done := make([]*Picture, n)
	copy(done, d.display[:n])
	copy(d.display, d.display[n:])
	for i := len(d.display) - n; i < len(d.display); i++ {
		d.display[i] = nil
	}
	d.display = d.display[:len(d.display)-n]
	for _, p := range done {
		d.release(p)
	}
}

// held 图像仍被显示队列或未提交的修改引用
func (d *DPB) held(p *Picture) bool {
	for _, q := range d.display {
		if q == p {
			return true
		}
	}
	if d.tx != nil {
		for _, q := range d.tx.bumped {
			if q == p {
				return true
			}
		}
		for _, q := range d.tx.removed {
			if q == p {
				return true
			}
		}
	}
	return false
}

// release 不驻留、已解码且不再被引用的图像归还缓冲
func (d *DPB) release(p *Picture) {
	if p.released || p.resident || !p.Decoded || p.Buffer < 0 || d.held(p) {
		return
	}
	p.released = true
	d.pool.Put(p.Buffer)
}

// Completed 引擎完成一帧的解码
func (d *DPB) Completed(id int64, status codec.Code) (*Picture, bool) {
	p, ok := d.inflight[id]
	if !ok {
		return nil, false
	}
	delete(d.inflight, id)
	p.Decoded = true
	p.Status = status
	d.deliver()
	d.release(p)
	return p, true
}

// Cancel 取消尚未提交的当前帧，归还其缓冲
func (d *DPB) Cancel(p *Picture) {
	if p == nil || p.resident {
		return
	}
	delete(d.inflight, p.ID)
	if p.Buffer >= 0 && !p.released {
		p.released = true
		d.pool.Put(p.Buffer)
	}
}

// InFlight 已提交而未完成的帧数
func (d *DPB) InFlight() int {
	return len(d.inflight)
}

// ByPOC 按 POC 升序排列
func ByPOC(pics []*Picture) {
	sort.SliceStable(pics, func(i, j int) bool { return pics[i].POC < pics[j].POC })
}
