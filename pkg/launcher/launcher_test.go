package launcher

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-rmq-launcher/pkg/errors"
	"github.com/core-tools/hsu-rmq-launcher/pkg/instance"
	"github.com/core-tools/hsu-rmq-launcher/pkg/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMetrics records collector calls
type fakeMetrics struct {
	mutex        sync.Mutex
	starts       int
	failures     []string
	exits        []string
	terminations []string
}

func (m *fakeMetrics) InstanceStarted() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.starts++
}

func (m *fakeMetrics) StartFailed(errorType string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failures = append(m.failures, errorType)
}

func (m *fakeMetrics) InstanceExited(outcome string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.exits = append(m.exits, outcome)
}

func (m *fakeMetrics) TerminationDuration(mode string, duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.terminations = append(m.terminations, mode)
}

type metricsSnapshot struct {
	starts       int
	failures     []string
	exits        []string
	terminations []string
}

func (m *fakeMetrics) snapshot() metricsSnapshot {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return metricsSnapshot{
		starts:       m.starts,
		failures:     append([]string(nil), m.failures...),
		exits:        append([]string(nil), m.exits...),
		terminations: append([]string(nil), m.terminations...),
	}
}

func TestNew_Defaults(t *testing.T) {
	spec := testSpec()
	spec.ListenAddress = ""
	spec.Plugins = nil

	l, err := New(spec, Options{})
	require.NoError(t, err)

	assert.Equal(t, StateUnstarted, l.State())
	assert.Equal(t, "test-rmq-1230@localhost", l.NodeName())
	assert.True(t, filepath.IsAbs(l.Directory()))
	assert.Equal(t, "test-rmq-1230", filepath.Base(l.Directory()))
	assert.NotEmpty(t, l.RunID())
	assert.Zero(t, l.PID())
	assert.Empty(t, l.CommandLine())
	assert.Empty(t, l.Environment())

	got := l.Spec()
	assert.Equal(t, instance.DefaultListenAddress, got.ListenAddress)
	assert.Equal(t, []string{instance.ManagementPlugin}, got.Plugins)

	assert.Equal(t, DefaultStopTimeout, l.options.StopTimeout)
	assert.Equal(t, DefaultKillTimeout, l.options.KillTimeout)
}

func TestNew_RunIDsDiffer(t *testing.T) {
	a, err := New(testSpec(), Options{})
	require.NoError(t, err)
	b, err := New(testSpec(), Options{})
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID(), b.RunID())
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(testSpec(), Options{StopTimeout: -time.Second})
	assert.True(t, errors.IsValidationError(err))

	_, err = New(testSpec(), Options{KillTimeout: -time.Second})
	assert.True(t, errors.IsValidationError(err))
}

func TestLauncher_StopAndCloseBeforeStart(t *testing.T) {
	l, err := New(testSpec(), Options{})
	require.NoError(t, err)

	assert.NoError(t, l.Stop(context.Background()))
	assert.Equal(t, StateUnstarted, l.State())

	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
	assert.Equal(t, StateUnstarted, l.State())
}

func TestLauncher_WaitBeforeStart(t *testing.T) {
	l, err := New(testSpec(), Options{})
	require.NoError(t, err)

	_, err = l.Wait(context.Background())
	assert.True(t, errors.IsPreconditionError(err))
}

func TestLauncher_InvalidSpecFailsStart(t *testing.T) {
	metrics := &fakeMetrics{}
	spec := testSpec()
	spec.Ports.Management = spec.Ports.Client

	l, err := New(spec, Options{Metrics: metrics})
	require.NoError(t, err)

	err = l.Start(context.Background())
	assert.True(t, errors.IsValidationError(err))
	assert.Equal(t, StateFailedStart, l.State())
	assert.Equal(t, []string{"validation"}, metrics.snapshot().failures)

	err = l.Start(context.Background())
	assert.True(t, errors.IsValidationError(err), "a launcher is single use")
}

func TestLauncher_CancelledContextFailsStart(t *testing.T) {
	root := t.TempDir()
	spec := testSpec()
	spec.BaseDir = root

	l, err := New(spec, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = l.Start(ctx)
	assert.True(t, errors.IsCancelledError(err))
	assert.Equal(t, StateFailedStart, l.State())
	assert.NoDirExists(t, l.Directory())
}

func TestLauncher_NilContext(t *testing.T) {
	l, err := New(testSpec(), Options{})
	require.NoError(t, err)

	assert.True(t, errors.IsValidationError(l.Start(nil)))
	assert.True(t, errors.IsValidationError(l.Stop(nil)))
}

func TestLauncher_CloseReleasesPorts(t *testing.T) {
	allocator := ports.NewFixedAllocator(0)
	allocated, err := allocator.Allocate()
	require.NoError(t, err)

	spec := testSpec()
	spec.Ports = allocated

	l, err := New(spec, Options{PortAllocator: allocator})
	require.NoError(t, err)

	next, err := allocator.Allocate()
	require.NoError(t, err)
	assert.NotEqual(t, allocated, next)
	allocator.Release(next)

	require.NoError(t, l.Close())

	again, err := allocator.Allocate()
	require.NoError(t, err)
	assert.Equal(t, allocated, again)
}

func TestLauncher_StartAfterClose(t *testing.T) {
	l, err := New(testSpec(), Options{})
	require.NoError(t, err)

	require.NoError(t, l.Close())

	err = l.Start(context.Background())
	assert.True(t, errors.IsPreconditionError(err))
	assert.Equal(t, StateUnstarted, l.State())
	assert.NoDirExists(t, l.Directory())
}

func TestState_IsTerminal(t *testing.T) {
	terminal := map[State]bool{
		StateUnstarted:   false,
		StateStarting:    false,
		StateRunning:     false,
		StateStopping:    false,
		StateExited:      true,
		StateKilled:      true,
		StateFailedStart: true,
	}
	for state, want := range terminal {
		assert.Equal(t, want, state.IsTerminal(), string(state))
	}
}

func TestExitStatus_String(t *testing.T) {
	assert.Equal(t, "exit code 3", ExitStatus{Code: 3}.String())
	assert.Equal(t, "terminated by signal killed (code 137)", ExitStatus{Code: 137, Signaled: true, Signal: "killed"}.String())
	assert.Equal(t, ExitStatus{Code: -1}, exitStatusOf(nil))
}
