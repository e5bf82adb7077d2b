// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

// toggleSlots 同时在途的帧数
const toggleSlots = 2

// toggleArena 两个交替使用的任务槽。空闲槽放在容量为 2 的通道里，
// 取出即占用，完成通知到达后放回。
type toggleArena struct {
	free chan int
	jobs [toggleSlots]Job
	busy [toggleSlots]bool
}

func newToggleArena() *toggleArena {
	a := &toggleArena{free: make(chan int, toggleSlots)}
	for i := 0; i < toggleSlots; i++ {
		a.free <- i
	}
	return a
}

// tryAcquire 不阻塞地取一个空闲槽
func (a *toggleArena) tryAcquire() (*Job, bool) {
	select {
	case slot := <-a.free:
		a.busy[slot] = true
		job := &a.jobs[slot]
		slices := job.Slices[:0]
		*job = Job{Slot: slot, Slices: slices}
		return job, true
	default:
		return nil, false
	}
}

// release 归还槽；重复归还或归还未占用的槽返回 false
func (a *toggleArena) release(slot int) bool {
	if slot < 0 || slot >= toggleSlots || !a.busy[slot] {
		return false
	}
	a.busy[slot] = false
	a.free <- slot
	return true
}

// idle 没有在途的帧
func (a *toggleArena) idle() bool {
	return len(a.free) == toggleSlots
}

func (a *toggleArena) inUse() int {
	return toggleSlots - len(a.free)
}

// job 在途槽的任务
func (a *toggleArena) job(slot int) (*Job, bool) {
	if slot < 0 || slot >= toggleSlots || !a.busy[slot] {
		return nil, false
	}
	return &a.jobs[slot], true
}
