package process

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mariomac/guara/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGopsutilSource_CurrentProcess(t *testing.T) {
	src, err := newGopsutilSource(&SourceConfig{})
	require.NoError(t, err)

	pid := int32(os.Getpid())
	require.NoError(t, src.Refresh(AllProcesses()))
	c, ok := src.Read(pid)
	require.True(t, ok)
	assert.Equal(t, pid, c.PID)
	assert.NotEmpty(t, c.ExecutableName)
	assert.NotEmpty(t, c.CommandArgs)
	assert.NotZero(t, c.ResidentMemoryBytes)
	assert.NotZero(t, c.VirtualMemoryBytes)

	// burn some CPU so the next refresh reports a non-zero CPU percent
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		runtime.Gosched()
	}
	require.NoError(t, src.Refresh(OnlyPID(pid)))
	c, ok = src.Read(pid)
	require.True(t, ok)
	assert.Positive(t, c.CPUPercent)
}

func TestGopsutilSource_VanishedProcess(t *testing.T) {
	cmd := exec.Command("sleep", "1m")
	require.NoError(t, cmd.Start())
	pid := int32(cmd.Process.Pid)

	src, err := newGopsutilSource(&SourceConfig{})
	require.NoError(t, err)
	require.NoError(t, src.Refresh(OnlyPID(pid)))
	c, ok := src.Read(pid)
	require.True(t, ok)
	assert.Equal(t, "sleep", c.ExecutableName)
	assert.Equal(t, []string{"sleep", "1m"}, c.CommandArgs)
	if filepath.IsAbs(c.ExecutablePath) {
		assert.Equal(t, "sleep", filepath.Base(c.ExecutablePath))
	}

	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()

	test.Eventually(t, 5*time.Second, func(t require.TestingT) {
		require.NoError(t, src.Refresh(OnlyPID(pid)))
		_, ok := src.Read(pid)
		require.False(t, ok)
	})
	assert.False(t, src.handles.Contains(pid))
}

func TestGopsutilSource_ForgetsVanishedHandles(t *testing.T) {
	src, err := newGopsutilSource(&SourceConfig{})
	require.NoError(t, err)
	self := int32(os.Getpid())
	src.listPids = func() ([]int32, error) { return []int32{self}, nil }

	require.NoError(t, src.Refresh(AllProcesses()))
	assert.Equal(t, []int32{self}, src.handles.Keys())

	src.listPids = func() ([]int32, error) { return nil, nil }
	require.NoError(t, src.Refresh(AllProcesses()))
	assert.Empty(t, src.handles.Keys())
	_, ok := src.Read(self)
	assert.False(t, ok)

	src.listPids = func() ([]int32, error) { return nil, errors.New("boom") }
	require.Error(t, src.Refresh(AllProcesses()))
}

func TestGopsutilSource_PhysicalCoreCount(t *testing.T) {
	src, err := newGopsutilSource(&SourceConfig{})
	require.NoError(t, err)

	src.coreCounts = func(logical bool) (int, error) {
		assert.False(t, logical)
		return 8, nil
	}
	n, ok := src.PhysicalCoreCount()
	assert.True(t, ok)
	assert.Equal(t, 8, n)

	src.coreCounts = func(bool) (int, error) { return 0, nil }
	_, ok = src.PhysicalCoreCount()
	assert.False(t, ok)

	src.coreCounts = func(bool) (int, error) { return 0, errors.New("unsupported") }
	_, ok = src.PhysicalCoreCount()
	assert.False(t, ok)
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(&SourceConfig{})
	require.NoError(t, err)
	assert.IsType(t, &gopsutilSource{}, src)

	_, err = NewSource(&SourceConfig{Kind: "wmi"})
	require.Error(t, err)

	_, err = NewSource(&SourceConfig{HandleCacheSize: -3})
	require.Error(t, err)
}
