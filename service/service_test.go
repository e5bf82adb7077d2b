// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cnotch/vdec/stats"
	"github.com/cnotch/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	frames int64
}

func (c *fakeChannel) Stats() stats.DecoderSample {
	return stats.DecoderSample{Frames: c.frames}
}
func (c *fakeChannel) Flow() stats.FlowSample { return stats.FlowSample{InBytes: 10} }
func (c *fakeChannel) Pending() int           { return 1 }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("b_1", "b.265", &fakeChannel{frames: 2})
	r.Register("a_0", "a.264", &fakeChannel{frames: 5})

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a_0", list[0].Name)
	assert.Equal(t, "a.264", list[0].Input)
	assert.Equal(t, int64(5), list[0].Decoding.Frames)
	assert.Equal(t, int64(10), list[1].Flow.InBytes)

	r.Unregister("a_0")
	_, ok := r.Get("a_0")
	assert.False(t, ok)
	info, ok := r.Get("b_1")
	require.True(t, ok)
	assert.Equal(t, 1, info.Pending)
}

func TestIsLocalIP(t *testing.T) {
	assert.True(t, isLocalIP(net.ParseIP("127.0.0.1")))
	assert.True(t, isLocalIP(net.ParseIP("::1")))
	assert.False(t, isLocalIP(net.ParseIP("8.8.8.8")))
	assert.False(t, isLocalIP(nil))
}

func TestApis(t *testing.T) {
	s, err := NewService(context.Background(), xlog.L())
	require.NoError(t, err)
	defer s.Close()
	s.Channels().Register("cam_0", "cam.264", &fakeChannel{frames: 3})

	tests := []struct {
		name   string
		path   string
		remote string
		code   int
	}{
		{"channels", "/api/v1/channels", "127.0.0.1:4000", http.StatusOK},
		{"channel", "/api/v1/channels/cam_0", "127.0.0.1:4000", http.StatusOK},
		{"unknown channel", "/api/v1/channels/none", "127.0.0.1:4000", http.StatusNotFound},
		{"runtime", "/api/v1/runtime", "[::1]:4000", http.StatusOK},
		{"remote rejected", "/api/v1/server", "8.8.8.8:4000", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.RemoteAddr = tt.remote
			w := httptest.NewRecorder()
			s.http.Handler.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/channels/cam_0", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	w := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(w, req)
	var info ChannelInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, int64(3), info.Decoding.Frames)
	assert.Equal(t, "cam.264", info.Input)
}
