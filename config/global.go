// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cnotch/vdec/decoder"
	cfg "github.com/cnotch/loader"
	"github.com/cnotch/xlog"
)

// 程序名
const (
	Vendor  = "CAOHONGJU"
	Name    = "vdec"
	Version = "V1.0.0"
)

var (
	globalC *config
)

// InitConfig 初始化 Config
func InitConfig() {
	exe, err := os.Executable()
	if err != nil {
		xlog.Panic(err.Error())
	}

	configPath := filepath.Join(filepath.Dir(exe), Name+".conf")

	globalC = new(config)
	globalC.initFlags()

	// 创建或加载配置文件
	if err := cfg.Load(globalC,
		&cfg.JSONLoader{Path: configPath, CreatedIfNonExsit: true},
		&cfg.EnvLoader{Prefix: strings.ToUpper(Name)},
		&cfg.FlagLoader{}); err != nil {
		// 异常，直接退出
		xlog.Panic(err.Error())
	}

	// 命令行剩余参数是输入文件
	globalC.Inputs = append(globalC.Inputs, flag.Args()...)

	// 初始化日志
	globalC.Log.initLogger()
}

// Inputs 输入文件
func Inputs() []string {
	if globalC == nil {
		return nil
	}
	return globalC.Inputs
}

// ChannelSettings 第 i 个输入的通道设置
func ChannelSettings(i int, input string) (decoder.Settings, error) {
	var c DecoderConfig
	if globalC != nil {
		c = globalC.Decoder
	}
	return c.Settings(channelName(i, input))
}

func channelName(i int, input string) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_" + strconv.Itoa(i)
}

// StatsInterval 统计日志间隔，0 表示不输出
func StatsInterval() time.Duration {
	if globalC == nil || globalC.StatsInterval <= 0 {
		return 0
	}
	return time.Duration(globalC.StatsInterval) * time.Second
}

// ReportPath 统计报告文件，空表示不写
func ReportPath() string {
	if globalC == nil {
		return ""
	}
	return globalC.Report
}

// EngineDelay 模拟引擎每帧的解码耗时
func EngineDelay() time.Duration {
	if globalC == nil || globalC.EngineDelay <= 0 {
		return 0
	}
	return time.Duration(globalC.EngineDelay) * time.Millisecond
}

// Listen 状态接口侦听地址
func Listen() string {
	if globalC == nil {
		return ""
	}
	return globalC.Listen
}

// LocalOnly 状态接口是否只允许本机访问
func LocalOnly() bool {
	if globalC == nil {
		return true
	}
	return globalC.LocalOnly
}

// Profile 是否启动 Http Profile
func Profile() bool {
	if globalC == nil {
		return false
	}
	return globalC.Profile
}
