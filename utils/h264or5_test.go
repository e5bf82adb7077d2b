// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveH264or5EmulationBytes(t *testing.T) {
	tests := []struct {
		name string
		from []byte
		want []byte
	}{
		{"none", []byte{0x67, 0x01, 0x02}, []byte{0x67, 0x01, 0x02}},
		{"start code", []byte{0, 0, 0, 1, 0x67, 0x01}, []byte{0x67, 0x01}},
		{"escaped", []byte{0x65, 0, 0, 3, 1, 0, 0, 3, 0}, []byte{0x65, 0, 0, 1, 0, 0, 0}},
		{"trailing three", []byte{0x65, 0, 0, 3}, []byte{0x65, 0, 0}},
		{"three not escaped", []byte{0x65, 0, 3, 0}, []byte{0x65, 0, 3, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RemoveH264or5EmulationBytes(tt.from))
		})
	}
}

func TestInsertH264or5EmulationBytes(t *testing.T) {
	rbsp := []byte{0x65, 0, 0, 1, 0, 0, 0, 0, 0, 3, 0x80}
	escaped := InsertH264or5EmulationBytes(rbsp)
	assert.Equal(t, []byte{0x65, 0, 0, 3, 1, 0, 0, 3, 0, 0, 3, 0, 3, 0x80}, escaped)
	assert.Equal(t, rbsp, RemoveH264or5EmulationBytes(escaped))
}

func TestSplitAnnexB(t *testing.T) {
	stream := []byte{
		0, 0, 0, 1, 0x67, 0x42, 0x00,
		0, 0, 1, 0x68, 0xce,
		0, 0, 0, 1, 0x65, 0x88, 0x84, 0, 0,
	}
	nalus := SplitAnnexB(stream)
	assert.Equal(t, [][]byte{
		{0x67, 0x42},
		{0x68, 0xce},
		{0x65, 0x88, 0x84},
	}, nalus)

	assert.Equal(t, [][]byte{{0x09, 0xf0}}, SplitAnnexB([]byte{0x09, 0xf0}))
	assert.Nil(t, SplitAnnexB(nil))
}
