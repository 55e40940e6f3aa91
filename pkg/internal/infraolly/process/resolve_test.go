package process

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	src := newFakeSource(&Counters{PID: 123}, &Counters{PID: 456})

	h, err := Resolve(src, 456)
	require.NoError(t, err)
	assert.Equal(t, int32(456), h.PID())
	assert.True(t, h.Resolved())
	// resolution is done from a full snapshot
	require.Len(t, src.refreshes, 1)
	assert.True(t, src.refreshes[0].All())
}

func TestResolve_NotFound(t *testing.T) {
	src := newFakeSource(&Counters{PID: 123})

	for _, pid := range []uint32{789, math.MaxInt32 + 1, math.MaxUint32} {
		h, err := Resolve(src, pid)
		require.ErrorIs(t, err, ErrProcessNotFound, "pid %d", pid)
		assert.False(t, h.Resolved())
	}
}

func TestResolve_RefreshError(t *testing.T) {
	src := newFakeSource(&Counters{PID: 123})
	src.refreshErr = errFakeRefresh

	_, err := Resolve(src, 123)
	require.ErrorIs(t, err, ErrProcessNotFound)
	require.ErrorIs(t, err, errFakeRefresh)
}

func TestResolveCurrent(t *testing.T) {
	defer func(prev func() int) { currentPID = prev }(currentPID)

	src := newFakeSource(&Counters{PID: 321})
	currentPID = func() int { return 321 }
	h, err := ResolveCurrent(src)
	require.NoError(t, err)
	assert.Equal(t, int32(321), h.PID())

	currentPID = func() int { return -1 }
	_, err = ResolveCurrent(src)
	require.ErrorIs(t, err, ErrProcessNotFound)
}
