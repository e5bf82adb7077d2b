// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stats

import (
	"runtime"
	"time"

	"github.com/kelindar/process"
)

// 创建时间
var (
	StartingTime = time.Now()
)

// Proc 进程信息统计
type Proc struct {
	CPU    float64 `json:"cpu"`    // cpu使用情况
	Priv   int32   `json:"priv"`   // 私有内存 KB
	Virt   int32   `json:"virt"`   // 虚拟内存 KB
	Uptime int32   `json:"uptime"` // 运行时间 S
}

// Heap Go 堆，图像缓冲由协作者分配，不在这里
type Heap struct {
	Inuse      int32 `json:"inuse"` // KB
	Alloc      int32 `json:"alloc"` // KB
	Objects    int32 `json:"objects"`
	Goroutines int32 `json:"goroutines"`
}

// Report 一次完整的统计采样
type Report struct {
	Proc     Proc          `json:"proc"`
	Heap     Heap          `json:"heap"`
	Channels ConnsSample   `json:"channels"`
	Decoding DecoderSample `json:"decoding"`
	Flow     FlowSample    `json:"flow"`
}

// MeasureRuntime 获取进程信息。
func MeasureRuntime() Proc {
	defer recover()
	var memoryPriv, memoryVirtual int64
	var cpu float64
	process.ProcUsage(&cpu, &memoryPriv, &memoryVirtual)
	return Proc{
		CPU:    cpu,
		Priv:   toKB(uint64(memoryPriv)),
		Virt:   toKB(uint64(memoryVirtual)),
		Uptime: int32(time.Now().Sub(StartingTime).Seconds()),
	}
}

// MeasureHeap 获取 Go 堆信息。
func MeasureHeap() Heap {
	var memory runtime.MemStats
	runtime.ReadMemStats(&memory)
	return Heap{
		Inuse:      toKB(memory.HeapInuse),
		Alloc:      toKB(memory.HeapAlloc),
		Objects:    int32(memory.HeapObjects),
		Goroutines: int32(runtime.NumGoroutine()),
	}
}

// Measure 采样进程和所有通道的全局统计
func Measure() Report {
	return Report{
		Proc:     MeasureRuntime(),
		Heap:     MeasureHeap(),
		Channels: Channels.GetSample(),
		Decoding: Decoding.GetSample(),
		Flow:     TotalFlow.GetSample(),
	}
}

// Converts the memory in bytes to KBs, otherwise it would overflow our int32
func toKB(v uint64) int32 {
	return int32(v / 1024)
}
