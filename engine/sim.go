// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package engine 提供一个模拟的解码引擎：检查每个任务的片命令，
// 经过设定的耗时后在自己的协程里通知完成。
package engine

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/decoder"
	"github.com/cnotch/xlog"
	"github.com/pkg/errors"
)

// ErrStopped 引擎已停止
var ErrStopped = errors.New("engine: stopped")

// Sim 模拟引擎，同时在途的任务不超过两个
type Sim struct {
	delay  time.Duration
	logger *xlog.Logger

	mu      sync.Mutex
	jobs    chan decoder.Completion
	stopped bool
	wg      sync.WaitGroup

	decoded   int64
	malformed int64
}

// NewSim 创建模拟引擎，delay 为每帧的解码耗时
func NewSim(delay time.Duration, logger *xlog.Logger) *Sim {
	if logger == nil {
		logger = xlog.L()
	}
	return &Sim{
		delay:  delay,
		logger: logger,
		jobs:   make(chan decoder.Completion, 2),
	}
}

// Start 启动解码协程，done 接收完成通知
func (s *Sim) Start(done func(decoder.Completion)) {
	s.wg.Add(1)
	go s.run(done)
}

func (s *Sim) run(done func(decoder.Completion)) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("engine routine panic；r = %v \n %s", r, debug.Stack())
		}
	}()

	for cp := range s.jobs {
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		done(cp)
	}
}

// Submit 接收一帧。任务在返回后仍由调用者持有，这里只保留完成所需的标识
func (s *Sim) Submit(job *decoder.Job) error {
	status := Validate(job)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if status == codec.Success {
		s.decoded++
	} else {
		s.malformed++
		s.logger.Warnf("picture %d rejected: %v", job.PicID, status)
	}
	s.jobs <- decoder.Completion{Slot: job.Slot, PicID: job.PicID, Status: status}
	return nil
}

// Close 停止接收任务，等待已接收的任务完成
func (s *Sim) Close() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
}

// Counts 已解码和被拒绝的帧数
func (s *Sim) Counts() (decoded, malformed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decoded, s.malformed
}

// Validate 检查片命令：至少一个片，只有最后一个片带结束标记，
// 片地址递增且在图像范围内
func Validate(job *decoder.Job) codec.Code {
	n := len(job.Slices)
	if n == 0 || job.Pic.NumUnits() == 0 {
		return codec.ErrRequestMalformed
	}
	total := job.Pic.NumUnits()
	prev := -1
	for i, sp := range job.Slices {
		if sp.Last != (i == n-1) {
			return codec.ErrRequestMalformed
		}
		if sp.FirstUnit <= prev || sp.FirstUnit >= total {
			return codec.ErrRequestMalformed
		}
		if sp.FirstUnit+sp.NumUnits > total {
			return codec.ErrRequestMalformed
		}
		if sp.Type != codec.SliceConceal && len(sp.Data) == 0 {
			return codec.ErrRequestMalformed
		}
		prev = sp.FirstUnit
	}
	return codec.Success
}
