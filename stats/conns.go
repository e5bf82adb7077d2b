// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package stats 解码器的运行统计：
// Channels 计数创建和活动的解码通道；TotalFlow 累计输入的 NAL 字节和
// 输出的图像缓冲字节，每个通道的 Flow 向它汇总；Decoding 汇总各通道的
// NAL、片、帧、隐藏和丢弃计数。Measure 采集以上计数和进程运行时信息。
package stats

import (
	"sync/atomic"
)

// 全局变量
var (
	Channels = NewConns() // 解码通道统计
)

// ConnsSample 通道计数采样
type ConnsSample struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

// Conns 通道统计，Add 在通道创建时调用，Release 在关闭时调用
type Conns interface {
	Add() int64
	Release() int64
	GetSample() ConnsSample
}

func (s *ConnsSample) clone() ConnsSample {
	return ConnsSample{
		Total:  atomic.LoadInt64(&s.Total),
		Active: atomic.LoadInt64(&s.Active),
	}
}

type conns struct {
	sample ConnsSample
}

// NewConns 新建通道计数
func NewConns() Conns {
	return &conns{}
}

func (c *conns) Add() int64 {
	atomic.AddInt64(&c.sample.Total, 1)
	return atomic.AddInt64(&c.sample.Active, 1)
}

func (c *conns) Release() int64 {
	return atomic.AddInt64(&c.sample.Active, -1)
}

func (c *conns) GetSample() ConnsSample {
	return c.sample.clone()
}
