// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/cnotch/scheduler"
	"github.com/cnotch/vdec/config"
	"github.com/cnotch/xlog"
	"github.com/emitter-io/address"
)

// Service 状态服务：HTTP 查询接口和进程信号
type Service struct {
	context   context.Context
	cancel    context.CancelFunc
	logger    *xlog.Logger
	http      *http.Server
	channels  *Registry
	localOnly bool
}

// NewService 创建服务，收到退出信号或 Close 时取消返回的 Context
func NewService(ctx context.Context, l *xlog.Logger) (s *Service, err error) {
	ctx, cancel := context.WithCancel(ctx)
	s = &Service{
		context:   ctx,
		cancel:    cancel,
		logger:    l,
		http:      new(http.Server),
		channels:  NewRegistry(),
		localOnly: config.LocalOnly(),
	}

	mux := http.NewServeMux()
	if config.Profile() {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	s.initApis(mux)
	s.http.Handler = mux

	s.hookSignals()
	s.logger.Info("service configured")
	return s, nil
}

// Context 服务的生命周期
func (s *Service) Context() context.Context {
	return s.context
}

// Channels 运行中的通道
func (s *Service) Channels() *Registry {
	return s.channels
}

// Listen 在后台开始 HTTP 服务，listen 为空时不侦听
func (s *Service) Listen(listen string) error {
	if listen == "" {
		return nil
	}
	addr, err := address.Parse(listen, 8554)
	if err != nil {
		return err
	}

	s.logger.Infof("starting the listener, addr = %s.", addr.String())
	l, err := net.Listen("tcp", addr.String())
	if err != nil {
		return err
	}
	go func() {
		if err := s.http.Serve(l); err != nil && err != http.ErrServerClosed {
			s.logger.Warn(err.Error())
		}
	}()
	return nil
}

// Close closes gracefully the service.
func (s *Service) Close() {
	if s.cancel != nil {
		s.cancel()
	}

	// 停止计划任务
	jobs := scheduler.Jobs()
	for _, job := range jobs {
		job.Cancel()
	}
	s.http.Close()
}

// hookSignals 第一个退出信号取消解码，第二个直接退出
func (s *Service) hookSignals() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range c {
			s.onSignal(sig)
		}
	}()
}

// onSignal will be called when a OS-level signal is received.
func (s *Service) onSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGTERM:
		fallthrough
	case syscall.SIGINT:
		if s.context.Err() != nil {
			os.Exit(1)
		}
		s.logger.Warn(fmt.Sprintf("received signal %s, stopping...", sig.String()))
		s.cancel()
	}
}
