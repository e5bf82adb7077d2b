// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"io/ioutil"
	"os"

	"github.com/cnotch/scheduler"
	"github.com/cnotch/vdec/av/codec"
	"github.com/cnotch/vdec/config"
	"github.com/cnotch/vdec/decoder"
	"github.com/cnotch/vdec/dpb"
	"github.com/cnotch/vdec/engine"
	"github.com/cnotch/vdec/service"
	"github.com/cnotch/vdec/stats"
	"github.com/cnotch/vdec/utils"
	"github.com/cnotch/xlog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 初始化配置
	config.InitConfig()
	// 初始化全局计划任务
	scheduler.SetPanicHandler(func(job *scheduler.ManagedJob, r interface{}) {
		xlog.Errorf("scheduler task panic. tag: %v, recover: %v", job.Tag, r)
	})

	inputs := config.Inputs()
	if len(inputs) == 0 {
		xlog.Errorf("no input, usage: %s [flags] file.264 ...", config.Name)
		os.Exit(2)
	}

	if interval := config.StatsInterval(); interval > 0 {
		scheduler.PeriodFunc(interval, interval, logStats,
			"The task of logging decoder statistics")
	}

	// 状态服务，退出信号取消解码
	svc, err := service.NewService(context.Background(), xlog.L())
	if err != nil {
		xlog.L().Panic(err.Error())
	}
	defer svc.Close()
	if err = svc.Listen(config.Listen()); err != nil {
		xlog.L().Panic(err.Error())
	}

	// 每个输入一个解码通道
	g, ctx := errgroup.WithContext(svc.Context())
	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			return decodeFile(ctx, svc.Channels(), i, input)
		})
	}
	err = g.Wait()

	logStats()
	if path := config.ReportPath(); path != "" {
		if werr := utils.EncodeJSONFile(path, stats.Measure()); werr != nil {
			xlog.Errorf("write report %s failed: %v", path, werr)
		}
	}
	if err != nil {
		xlog.Errorf("decode failed: %v", err)
		svc.Close()
		os.Exit(1)
	}
}

func logStats() {
	r := stats.Measure()
	d := r.Decoding
	xlog.Infof("channels %d/%d, nals %d, frames %d, concealed %d, dropped %d, displayed %d, errors %d, in %d bytes, cpu %.1f%%, heap %d KB",
		r.Channels.Active, r.Channels.Total, d.NALs, d.Frames, d.Concealed, d.Dropped, d.Displayed, d.Errors,
		r.Flow.InBytes, r.Proc.CPU, r.Heap.Inuse)
}

// decodeFile 把一个 Annex-B 文件送入一个解码通道
func decodeFile(ctx context.Context, reg *service.Registry, i int, input string) (err error) {
	settings, err := config.ChannelSettings(i, input)
	if err != nil {
		return err
	}
	data, err := ioutil.ReadFile(input)
	if err != nil {
		return errors.Wrapf(err, "read %s", input)
	}

	logger := xlog.L().With(xlog.Fields(xlog.F("input", input)))
	eng := engine.NewSim(config.EngineDelay(), logger)

	var displayed int
	dec, err := decoder.NewContext(settings, eng, decoder.Callbacks{
		ResolutionFound: func(count, size int, s codec.StreamSettings, crop codec.CropInfo) error {
			logger.Infof("allocate %d buffers of %d bytes for %dx%d, crop %+v",
				count, size, s.Dim.Width, s.Dim.Height, crop)
			return nil
		},
		FrameDisplay: func(p *dpb.Picture) {
			displayed++
		},
	})
	if err != nil {
		return err
	}
	eng.Start(dec.EndFrameDecoding)
	defer eng.Close()
	defer dec.Close()

	reg.Register(settings.Name, input, dec)
	defer reg.Unregister(settings.Name)

	nals := utils.SplitAnnexB(data)
	for _, nal := range nals {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err = dec.DecodeNAL(decoder.NAL{Data: nal}); err != nil {
			return errors.Wrapf(err, "decode %s", input)
		}
	}
	if err = dec.Flush(); err != nil {
		return errors.Wrapf(err, "flush %s", input)
	}

	decoded, malformed := eng.Counts()
	logger.Infof("done: %d nals, %d pictures decoded, %d rejected, %d displayed, last parse error: %v",
		len(nals), decoded, malformed, displayed, dec.LastParseError())
	return nil
}
