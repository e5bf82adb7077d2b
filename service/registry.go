// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"sort"
	"sync"

	"github.com/cnotch/vdec/stats"
)

// Channel 可以在任意协程采样的解码通道
type Channel interface {
	Stats() stats.DecoderSample
	Flow() stats.FlowSample
	Pending() int
}

// ChannelInfo 通道采样
type ChannelInfo struct {
	Name     string              `json:"name"`
	Input    string              `json:"input"`
	Pending  int                 `json:"pending"`
	Decoding stats.DecoderSample `json:"decoding"`
	Flow     stats.FlowSample    `json:"flow"`
}

type entry struct {
	input string
	ch    Channel
}

// Registry 运行中的通道
type Registry struct {
	lock     sync.RWMutex
	channels map[string]entry
}

// NewRegistry .
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]entry)}
}

// Register 登记通道，同名的通道被替换
func (r *Registry) Register(name, input string, ch Channel) {
	r.lock.Lock()
	r.channels[name] = entry{input: input, ch: ch}
	r.lock.Unlock()
}

// Unregister .
func (r *Registry) Unregister(name string) {
	r.lock.Lock()
	delete(r.channels, name)
	r.lock.Unlock()
}

// Get 采样一个通道
func (r *Registry) Get(name string) (ChannelInfo, bool) {
	r.lock.RLock()
	e, ok := r.channels[name]
	r.lock.RUnlock()
	if !ok {
		return ChannelInfo{}, false
	}
	return sample(name, e), true
}

// List 按名称排序采样所有通道
func (r *Registry) List() []ChannelInfo {
	r.lock.RLock()
	list := make([]ChannelInfo, 0, len(r.channels))
	for name, e := range r.channels {
		list = append(list, sample(name, e))
	}
	r.lock.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

func sample(name string, e entry) ChannelInfo {
	return ChannelInfo{
		Name:     name,
		Input:    e.input,
		Pending:  e.ch.Pending(),
		Decoding: e.ch.Stats(),
		Flow:     e.ch.Flow(),
	}
}
