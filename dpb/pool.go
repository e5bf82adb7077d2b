// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dpb

import (
	"github.com/cnotch/vdec/av/codec"
	"github.com/pkg/errors"
)

// Pool 固定数量的图像缓冲句柄
type Pool struct {
	free  []int
	inUse []bool
}

// PoolSize 图像缓冲数：DPB 容量 + 引擎栈深 + 当前帧
func PoolSize(dpbCapacity, stack int) int {
	return dpbCapacity + stack + 1
}

// NewPool 创建 n 个缓冲的池
func NewPool(n int) *Pool {
	p := &Pool{
		free:  make([]int, n),
		inUse: make([]bool, n),
	}
	for i := range p.free {
		p.free[i] = n - 1 - i
	}
	return p
}

// Get 取一个空闲缓冲，池耗尽时返回 codec.ErrNoMemory
func (p *Pool) Get() (int, error) {
	n := len(p.free)
	if n == 0 {
		return -1, errors.Wrapf(codec.ErrNoMemory, "picture pool of %d buffers exhausted", len(p.inUse))
	}
	b := p.free[n-1]
	p.free = p.free[:n-1]
	p.inUse[b] = true
	return b, nil
}

// Put 归还缓冲，重复归还被忽略
func (p *Pool) Put(b int) {
	if b < 0 || b >= len(p.inUse) || !p.inUse[b] {
		return
	}
	p.inUse[b] = false
	p.free = append(p.free, b)
}

// Size .
func (p *Pool) Size() int {
	return len(p.inUse)
}

// Available 空闲缓冲数
func (p *Pool) Available() int {
	return len(p.free)
}
