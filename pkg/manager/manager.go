/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package manager owns the components of one module and drives them through
// their lifecycle: start, stop, reload, instance creation and shutdown.
//
// Components are independent of each other, so the manager serializes calls into
// each Component with a per-component mutex and starts different components
// concurrently on a worker pool. Library loads may be retried; nothing else is.
package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/srediag/dscore/api"
	"github.com/srediag/dscore/internal/logging"
	"github.com/srediag/dscore/pkg/audit"
	"github.com/srediag/dscore/pkg/component"
	"github.com/srediag/dscore/pkg/lifecycle"
	"github.com/srediag/dscore/pkg/native"
	"github.com/srediag/dscore/pkg/registry"
	"github.com/srediag/dscore/pkg/telemetry"
)

var (
	ErrUnknownComponent   = errors.New("unknown component")
	ErrDuplicateComponent = errors.New("component already added")
	ErrClosed             = errors.New("manager is shut down")
)

var _ lifecycle.Manager = (*Manager)(nil)
var _ api.Module = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry replaces the in-memory service registry.
func WithRegistry(r api.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithLoader replaces the operating system loader for every component.
func WithLoader(l native.Loader) Option {
	return func(m *Manager) { m.loader = l }
}

// WithLogger replaces the process logger for the manager and its components.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records into mt instead of unregistered collectors.
func WithMetrics(mt *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithTracing replaces the no-op tracing instruments.
func WithTracing(t *telemetry.Tracing) Option {
	return func(m *Manager) { m.tracing = t }
}

// WithAudit sends lifecycle events to l instead of the manager's own ring.
func WithAudit(l audit.Logger) Option {
	return func(m *Manager) { m.audit = l }
}

// Manager is the owning module of a set of components.
type Manager struct {
	name    string
	config  Config
	entries cmap.ConcurrentMap[string, *entry]
	pool    *ants.Pool
	closed  atomic.Bool

	registry api.Registry
	loader   native.Loader
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	tracing  *telemetry.Tracing
	audit    audit.Logger
	ring     *audit.Ring
}

type entry struct {
	mu     sync.Mutex
	comp   *component.Component
	status atomic.Pointer[status]
}

type status struct {
	state  lifecycle.ComponentState
	loaded bool
	err    error
}

// update records the component status. Callers hold e.mu.
func (e *entry) update(state lifecycle.ComponentState, err error) {
	e.status.Store(&status{state: state, loaded: e.comp.Handle().IsLoaded(), err: err})
}

// New returns a manager for the module called name. A nil cfg means DefaultConfig.
func New(name string, cfg *Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, fmt.Errorf("manager %s: %w", name, err)
	}
	m := &Manager{
		name:    name,
		config:  *cfg,
		entries: cmap.New[*entry](),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.Logger().Named("manager")
	}
	m.logger = m.logger.With(zap.String("module", name))
	if m.registry == nil {
		m.registry = registry.New()
	}
	if m.metrics == nil {
		m.metrics = telemetry.NewMetrics(nil)
	}
	if m.tracing == nil {
		m.tracing = telemetry.NopTracing()
	}
	if m.audit == nil {
		m.ring = audit.NewRing(cfg.AuditCapacity)
		m.audit = m.ring
	}

	logger := m.logger
	pool, err := ants.NewPool(cfg.Workers,
		ants.WithLogger(zap.NewStdLog(logger)),
		ants.WithPanicHandler(func(p any) {
			logger.Error("component task panicked", zap.Any("panic", p))
		}))
	if err != nil {
		return nil, fmt.Errorf("manager %s: worker pool: %w", name, err)
	}
	m.pool = pool
	return m, nil
}

// Name implements api.Module.
func (m *Manager) Name() string { return m.name }

// Registry implements api.Module.
func (m *Manager) Registry() api.Registry { return m.registry }

// Config returns a copy of the configuration.
func (m *Manager) Config() Config { return m.config }

// AuditRing returns the manager's event ring, or nil when WithAudit was used.
func (m *Manager) AuditRing() *audit.Ring { return m.ring }

// Add creates the runtime of desc. The component stays Registered until started.
func (m *Manager) Add(desc component.Descriptor) (*component.Component, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	opts := []component.Option{
		component.WithLogger(m.logger),
		component.WithMetrics(m.metrics),
		component.WithTracing(m.tracing),
		component.WithAudit(m.audit),
	}
	if m.loader != nil {
		opts = append(opts, component.WithLoader(m.loader))
	}
	e := &entry{comp: component.New(m, desc, opts...)}
	e.status.Store(&status{state: lifecycle.Registered})
	if !m.entries.SetIfAbsent(desc.Name, e) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateComponent, desc.Name)
	}
	m.logger.Debug("component added", zap.String("component", desc.Name), zap.String("library", desc.Library))
	return e.comp, nil
}

// Components returns the names of all components, sorted.
func (m *Manager) Components() []string {
	names := m.entries.Keys()
	slices.Sort(names)
	return names
}

// Component returns the runtime of the named component.
func (m *Manager) Component(name string) (*component.Component, bool) {
	e, ok := m.entries.Get(name)
	if !ok {
		return nil, false
	}
	return e.comp, true
}

func (m *Manager) entry(name string) (*entry, error) {
	e, ok := m.entries.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	return e, nil
}

// StartComponent implements lifecycle.Manager.
func (m *Manager) StartComponent(ctx context.Context, name string) error {
	e, err := m.entry(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := m.start(ctx, e); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	return nil
}

func (m *Manager) start(ctx context.Context, e *entry) error {
	err := m.load(ctx, e.comp)
	if err == nil && e.comp.Descriptor().Immediate && e.comp.NumInstances() == 0 {
		_, err = e.comp.NewInstance(ctx, nil)
	}
	if err != nil {
		e.update(lifecycle.Failed, err)
		m.logger.Error("component start failed", zap.String("component", e.comp.Name()), zap.Error(err))
		return err
	}
	e.update(lifecycle.Active, nil)
	m.logger.Info("component started", zap.String("component", e.comp.Name()))
	return nil
}

// load maps the component's library, retrying load failures when configured.
// Checksum mismatches and other errors are not retried.
func (m *Manager) load(ctx context.Context, c *component.Component) error {
	var b backoff.BackOff = &backoff.StopBackOff{}
	if m.config.LoadRetries > 0 {
		b = backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(m.config.LoadRetryInterval),
			backoff.WithMaxInterval(m.config.LoadRetryMaxInterval),
			backoff.WithMaxElapsedTime(0),
		), m.config.LoadRetries)
	}
	op := func() error {
		err := c.Load()
		var lerr *native.LoadError
		if err != nil && !errors.As(err, &lerr) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		m.logger.Warn("library load failed, retrying",
			zap.String("component", c.Name()),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}

// StopComponent implements lifecycle.Manager.
func (m *Manager) StopComponent(ctx context.Context, name string) error {
	e, err := m.entry(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := m.stop(ctx, e); err != nil {
		return fmt.Errorf("stop %s: %w", name, err)
	}
	return nil
}

func (m *Manager) stop(ctx context.Context, e *entry) error {
	err := e.comp.Close(ctx)
	e.update(lifecycle.Stopped, err)
	m.logger.Info("component stopped", zap.String("component", e.comp.Name()))
	return err
}

// ReloadComponent implements lifecycle.Manager. Every instance is deactivated and
// the library is unloaded and mapped again.
func (m *Manager) ReloadComponent(ctx context.Context, name string) error {
	e, err := m.entry(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := m.stop(ctx, e); err != nil {
		return fmt.Errorf("reload %s: %w", name, err)
	}
	if err := m.start(ctx, e); err != nil {
		return fmt.Errorf("reload %s: %w", name, err)
	}
	return nil
}

// ComponentState implements lifecycle.Manager.
func (m *Manager) ComponentState(name string) (lifecycle.ComponentState, error) {
	e, err := m.entry(name)
	if err != nil {
		return "", err
	}
	return e.status.Load().state, nil
}

// NewInstance creates an instance of the named component, loading its library
// first when the component is not active.
func (m *Manager) NewInstance(ctx context.Context, name string, overrides api.Properties) (*component.Instance, error) {
	e, err := m.entry(name)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Load().state != lifecycle.Active {
		if err := m.load(ctx, e.comp); err != nil {
			e.update(lifecycle.Failed, err)
			return nil, err
		}
		e.update(lifecycle.Active, nil)
	}
	return e.comp.NewInstance(ctx, overrides)
}

// Deactivate deactivates one instance created through the manager.
func (m *Manager) Deactivate(ctx context.Context, inst *component.Instance) error {
	e, err := m.entry(inst.Component().Name())
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.comp.Deactivate(ctx, inst)
}

// StartAll starts every component on the worker pool, one wave at a time. A
// component starts in a later wave than every component providing an interface
// it references, so services are published before dependents bind. Components
// caught in a reference cycle start together in the last wave.
func (m *Manager) StartAll(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	var errs []error
	for _, wave := range m.startWaves() {
		errs = append(errs, m.startAll(ctx, wave))
	}
	return errors.Join(errs...)
}

func (m *Manager) startWaves() [][]string {
	names := m.Components()
	providers := make(map[string][]string)
	for _, name := range names {
		if c, ok := m.Component(name); ok {
			for _, iface := range c.Descriptor().Provides {
				providers[iface] = append(providers[iface], name)
			}
		}
	}
	deps := make(map[string][]string, len(names))
	for _, name := range names {
		c, ok := m.Component(name)
		if !ok {
			continue
		}
		for _, ref := range c.Descriptor().References {
			for _, p := range providers[ref.Interface] {
				if p != name {
					deps[name] = append(deps[name], p)
				}
			}
		}
	}

	var waves [][]string
	started := make(map[string]bool, len(names))
	for len(started) < len(names) {
		var wave []string
		for _, name := range names {
			if !started[name] && !slices.ContainsFunc(deps[name], func(p string) bool { return !started[p] }) {
				wave = append(wave, name)
			}
		}
		if len(wave) == 0 {
			for _, name := range names {
				if !started[name] {
					wave = append(wave, name)
				}
			}
		}
		for _, name := range wave {
			started[name] = true
		}
		waves = append(waves, wave)
	}
	return waves
}

func (m *Manager) startAll(ctx context.Context, names []string) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	for _, name := range names {
		wg.Add(1)
		err := m.pool.Submit(func() {
			defer wg.Done()
			if err := m.StartComponent(ctx, name); err != nil {
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("start %s: %w", name, err))
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Ready reports an error while any component failed to start or lost its library.
func (m *Manager) Ready() error {
	var errs []error
	for _, name := range m.Components() {
		e, ok := m.entries.Get(name)
		if !ok {
			continue
		}
		st := e.status.Load()
		switch {
		case st.state == lifecycle.Failed:
			errs = append(errs, fmt.Errorf("component %s failed: %w", name, st.err))
		case st.state == lifecycle.Active && !st.loaded:
			errs = append(errs, fmt.Errorf("component %s: %w", name, native.ErrNotLoaded))
		}
	}
	return errors.Join(errs...)
}

// Shutdown stops every component in reverse name order and releases the worker
// pool. The manager cannot be used afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	names := m.Components()
	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		if err := m.StopComponent(ctx, names[i]); err != nil {
			errs = append(errs, err)
		}
	}
	m.pool.Release()
	if m.ring != nil {
		m.ring.Close()
	}
	m.logger.Info("manager shut down", zap.Int("components", len(names)))
	return errors.Join(errs...)
}
