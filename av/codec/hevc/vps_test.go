// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package hevc

import (
	"encoding/base64"
	"testing"

	"github.com/cnotch/vdec/av/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawVPS_DecodeString(t *testing.T) {
	tests := []struct {
		name      string
		b64       string
		profile   uint8
		level     uint8
		buffering uint8
		wantErr   bool
	}{
		{"base64_1", "QAEMAf//BAgAAAMAnQgAAAMAAF2VmAk=", ProfileRext, 93, 4, false},
		{"base64_2", "QAEMAf//AWAAAAMAkAAAAwAAAwBdlZgJ", ProfileMain, 93, 4, false},
		{"tpl500-265", "AAAAAUABDAH//wFgAAADAAADAAADAAADAJasCQ==", ProfileMain, 150, 1, false},
		{"reserved bits", "QAEMAf/+AWAAAAMAkAAAAwAAAwBdlZgJ", 0, 0, 0, true},
		{"truncated", "QAEMAf//AWAA", 0, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vps := &RawVPS{}
			err := vps.DecodeString(tt.b64)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, codec.ErrMalformed, codec.Outcome(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint8(0), vps.VideoParameterSetID)
			assert.Equal(t, tt.profile, vps.ProfileTierLevel.GeneralProfileIdc)
			assert.Equal(t, tt.level, vps.ProfileTierLevel.GeneralLevelIdc)
			assert.Equal(t, tt.buffering, vps.MaxDecPicBufferingMinus1[0])
		})
	}
}

func TestParamSets_ParseVPS(t *testing.T) {
	ps := NewParamSets()
	vps := &RawVPS{}
	require.NoError(t, vps.DecodeString("QAEMAf//AWAAAAMAkAAAAwAAAwBdlZgJ"))

	data, err := base64.StdEncoding.DecodeString("QAEMAf//AWAAAAMAkAAAAwAAAwBdlZgJ")
	require.NoError(t, err)
	id, err := ps.ParseVPS(data)
	require.NoError(t, err)
	assert.Equal(t, 0, id)
	got, ok := ps.VPS(0)
	require.True(t, ok)
	assert.Equal(t, vps.ProfileTierLevel, got.ProfileTierLevel)

	_, ok = ps.VPS(1)
	assert.False(t, ok)
}

func Benchmark_VPSDecode(b *testing.B) {
	vpsstr := "QAEMAf//AWAAAAMAkAAAAwAAAwBdlZgJ"

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			vps := &RawVPS{}
			_ = vps.DecodeString(vpsstr)
		}
	})
}
