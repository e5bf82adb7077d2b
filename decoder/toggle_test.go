// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleArena(t *testing.T) {
	a := newToggleArena()
	assert.True(t, a.idle())

	j0, ok := a.tryAcquire()
	require.True(t, ok)
	j0.Slices = append(j0.Slices, SliceParam{FirstUnit: 3})
	j1, ok := a.tryAcquire()
	require.True(t, ok)
	assert.NotEqual(t, j0.Slot, j1.Slot)
	assert.Equal(t, 2, a.inUse())

	_, ok = a.tryAcquire()
	assert.False(t, ok, "both slots in flight")

	job, ok := a.job(j0.Slot)
	require.True(t, ok)
	assert.Len(t, job.Slices, 1)

	assert.True(t, a.release(j0.Slot))
	assert.False(t, a.release(j0.Slot), "double release")
	assert.False(t, a.release(5))
	_, ok = a.job(j0.Slot)
	assert.False(t, ok)

	again, ok := a.tryAcquire()
	require.True(t, ok)
	assert.Equal(t, j0.Slot, again.Slot)
	assert.Empty(t, again.Slices)

	assert.True(t, a.release(j1.Slot))
	assert.True(t, a.release(again.Slot))
	assert.True(t, a.idle())
}
