package adapter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/srediag/dscore/pkg/audit"
	"github.com/srediag/dscore/pkg/lifecycle"
)

func TestZapAudit(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	a := NewZapAudit(zap.New(core))

	ring := audit.NewRing(8)
	defer ring.Close()
	ring.LogEvent(audit.Event{Kind: audit.HookAbsent, Component: "clock", Method: "activate"})
	ring.LogEvent(audit.Event{Kind: audit.InstanceRolledBack, Component: "clock", Instance: 3, Detail: "bind: boom"})

	assert.Equal(t, 2, a.Forward(ring))
	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.DebugLevel, entries[0].Level)
	assert.Equal(t, "activate", entries[0].ContextMap()["method"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, uint64(3), entries[1].ContextMap()["instance"])
	assert.Equal(t, 0, a.Forward(ring))
}

type states map[string]lifecycle.ComponentState

func (s states) Components() []string {
	return []string{"clock", "ghost"}
}

func (s states) ComponentState(name string) (lifecycle.ComponentState, error) {
	st, ok := s[name]
	if !ok {
		return "", errors.New("unknown")
	}
	return st, nil
}

func TestStateCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewStateCollector(states{"clock": lifecycle.Active}))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	got := map[string]float64{}
	for _, m := range families[0].GetMetric() {
		labels := map[string]string{}
		for _, l := range m.GetLabel() {
			labels[l.GetName()] = l.GetValue()
		}
		assert.Equal(t, "clock", labels["component"])
		got[labels["state"]] = m.GetGauge().GetValue()
	}
	assert.Equal(t, map[string]float64{"registered": 0, "active": 1, "failed": 0, "stopped": 0}, got)
}

type reloads struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (r *reloads) ReloadComponent(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return r.err
}

func (r *reloads) reloaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.names)
}

func newWatcher(t *testing.T, r Reloader, debounce time.Duration) *LibraryWatcher {
	t.Helper()
	w, err := NewLibraryWatcher(r, debounce, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestLibraryWatcher(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	lib := filepath.Join(dir, "libclock.so")
	require.NoError(t, os.WriteFile(lib, []byte("v1"), 0o600))

	r := &reloads{}
	w := newWatcher(t, r, time.Hour)
	require.NoError(t, w.Watch("clock", lib))
	assert.Error(t, w.Watch("ghost", filepath.Join(dir, "libghost.so")))

	changed, err := w.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, changed)

	require.NoError(t, os.WriteFile(lib, []byte("version 2"), 0o600))
	changed, err = w.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"clock"}, changed)
	assert.Equal(t, []string{"clock"}, r.reloaded())

	changed, err = w.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, changed)

	require.NoError(t, os.Remove(lib))
	changed, _ = w.Check(ctx)
	assert.Empty(t, changed)

	r.err = errors.New("load failed")
	require.NoError(t, os.WriteFile(lib, []byte("version three"), 0o600))
	_, err = w.Check(ctx)
	assert.ErrorContains(t, err, "load failed")
}

func TestLibraryWatcherReloadsOnEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	lib := filepath.Join(dir, "libclock.so")
	require.NoError(t, os.WriteFile(lib, []byte("v1"), 0o600))

	r := &reloads{}
	w := newWatcher(t, r, 20*time.Millisecond)
	require.NoError(t, w.Watch("clock", lib))
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("unrelated"), 0o600))
	assert.Never(t, func() bool { return len(r.reloaded()) > 0 }, 200*time.Millisecond, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(lib, []byte("version 2"), 0o600))
	assert.Eventually(t, func() bool { return slices.Equal(r.reloaded(), []string{"clock"}) },
		2*time.Second, 10*time.Millisecond)

	// Replace by rename, the way libraries are usually deployed.
	tmp := filepath.Join(dir, "libclock.so.new")
	require.NoError(t, os.WriteFile(tmp, []byte("version three"), 0o600))
	require.NoError(t, os.Rename(tmp, lib))
	assert.Eventually(t, func() bool { return slices.Equal(r.reloaded(), []string{"clock", "clock"}) },
		2*time.Second, 10*time.Millisecond)
}
