// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"

	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/decoder"
	"github.com/pkg/errors"
)

// config 程序配置
type config struct {
	Listen        string        `json:"listen,omitempty"` // 状态接口侦听地址，空则不侦听
	LocalOnly     bool          `json:"local_only"`       // 状态接口只允许本机访问
	Profile       bool          `json:"profile"`          // 是否启动 Profile
	Decoder       DecoderConfig `json:"decoder"`          // 解码通道配置
	Inputs        []string      `json:"inputs,omitempty"` // Annex-B 输入文件，命令行参数追加在后面
	StatsInterval int           `json:"stats_interval"`   // 统计日志间隔（秒），0 不输出
	Report        string        `json:"report,omitempty"` // 结束时写入统计报告的 JSON 文件
	EngineDelay   int           `json:"engine_delay"`     // 模拟引擎每帧的解码耗时（毫秒）
	Log           LogConfig     `json:"log"`              // 日志配置
}

// DecoderConfig 解码通道的约束，0 值表示由码流决定
type DecoderConfig struct {
	Codec      string `json:"codec"`         // h264 或 h265
	StackSize  int    `json:"stack_size"`    // 显示端额外持有的缓冲数
	HWBitDepth int    `json:"hw_bit_depth"`  // 硬件支持的最大位深
	UseIAsSync bool   `json:"use_i_as_sync"` // 非 IDR 的 I 帧也可作为同步点
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Level      int    `json:"level,omitempty"`
	Profile    int    `json:"profile,omitempty"`
}

func (c *config) initFlags() {
	flag.StringVar(&c.Listen, "listen", "", "Set the status api listen address, empty disables it")
	flag.BoolVar(&c.LocalOnly, "local-only", true,
		"Determines if the status api only accepts local requests")
	flag.BoolVar(&c.Profile, "pprof", false,
		"Determines if profile enabled")
	flag.IntVar(&c.StatsInterval, "stats", 10,
		"Set the interval in seconds of the statistics log, 0 disables it")
	flag.StringVar(&c.Report, "report", "",
		"Set the JSON file to write the final statistics to")
	flag.IntVar(&c.EngineDelay, "engine-delay", 0,
		"Set the simulated decode time per picture in milliseconds")

	c.Decoder.initFlags()
	c.Log.initFlags()
}

func (c *DecoderConfig) initFlags() {
	flag.StringVar(&c.Codec, "codec", "h264", "Set the codec of the inputs, h264 or h265")
	flag.IntVar(&c.StackSize, "stack-size", 2,
		"Set the number of picture buffers held by the display side")
	flag.IntVar(&c.HWBitDepth, "hw-bitdepth", 10, "Set the maximum bit depth of the hardware")
	flag.BoolVar(&c.UseIAsSync, "i-as-sync", false,
		"Determines if a non-IDR I picture may start decoding")
	flag.IntVar(&c.Width, "width", 0, "Set the maximum picture width, 0 takes it from the stream")
	flag.IntVar(&c.Height, "height", 0, "Set the maximum picture height, 0 takes it from the stream")
	flag.IntVar(&c.Level, "level", 0, "Set the maximum level_idc, 0 takes it from the stream")
}

// Settings 转换成通道设置
func (c *DecoderConfig) Settings(name string) (decoder.Settings, error) {
	typ, err := codec.ParseType(c.Codec)
	if err != nil {
		return decoder.Settings{}, errors.Wrapf(err, "config decoder.codec")
	}
	return decoder.Settings{
		Name:  name,
		Codec: typ,
		Stream: codec.StreamSettings{
			Dim:     codec.Dimension{Width: c.Width, Height: c.Height},
			Level:   c.Level,
			Profile: c.Profile,
		},
		HWBitDepth: c.HWBitDepth,
		StackSize:  c.StackSize,
		UseIAsSync: c.UseIAsSync,
	}, nil
}
