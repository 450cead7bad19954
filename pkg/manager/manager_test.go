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

package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/srediag/dscore/api"
	"github.com/srediag/dscore/internal/nativetest"
	"github.com/srediag/dscore/pkg/audit"
	"github.com/srediag/dscore/pkg/component"
	"github.com/srediag/dscore/pkg/lifecycle"
	"github.com/srediag/dscore/pkg/native"
	"github.com/srediag/dscore/pkg/security"
)

type ConfigTestSuite struct {
	suite.Suite
}

func (s *ConfigTestSuite) TestVerifyConfig() {
	config := DefaultConfig()
	s.Require().NoError(VerifyConfig(config))

	s.Require().Error(VerifyConfig(nil))

	config.Workers = 0
	s.Require().Error(VerifyConfig(config))
	config.Workers = 2

	config.AuditCapacity = 0
	s.Require().Error(VerifyConfig(config))
	config.AuditCapacity = 16

	config.LoadRetries = 3
	config.LoadRetryInterval = 0
	s.Require().Error(VerifyConfig(config))

	config.LoadRetryInterval = time.Second
	config.LoadRetryMaxInterval = time.Millisecond
	s.Require().Error(VerifyConfig(config))

	config.LoadRetryMaxInterval = time.Second
	s.Require().NoError(VerifyConfig(config))
}

func (s *ConfigTestSuite) TestNewRejectsWrongConfig() {
	config := DefaultConfig()
	config.Workers = -1
	m, err := New("bad", config)
	s.Require().Error(err)
	s.Nil(m)
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

type ManagerTestSuite struct {
	suite.Suite
	ctx     context.Context
	loader  *nativetest.Loader
	clock   *nativetest.Library
	report  *nativetest.Library
	manager *Manager
}

func (s *ManagerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.loader = nativetest.NewLoader()
	s.clock = s.loader.Add(nativetest.NewLibrary("libclock.so"))
	s.clock.ExportConstructor("create")
	s.clock.ExportNop("deactivate")
	s.report = s.loader.Add(nativetest.NewLibrary("libreport.so"))
	s.report.ExportConstructor("create")
	s.report.ExportNop("setClock")
	s.manager = s.newManager(nil)
}

func (s *ManagerTestSuite) TearDownTest() {
	s.NoError(s.manager.Shutdown(s.ctx))
}

func (s *ManagerTestSuite) newManager(cfg *Config) *Manager {
	m, err := New("test", cfg, WithLoader(s.loader), WithLogger(zap.NewNop()))
	s.Require().NoError(err)
	return m
}

func (s *ManagerTestSuite) addClock(m *Manager) {
	_, err := m.Add(component.Descriptor{
		Name:      "clock",
		Library:   "libclock.so",
		Immediate: true,
		Provides:  []string{"Clock"},
	})
	s.Require().NoError(err)
}

func (s *ManagerTestSuite) addReport(m *Manager) {
	_, err := m.Add(component.Descriptor{
		Name:       "report",
		Library:    "libreport.so",
		Immediate:  true,
		References: []component.Reference{{Name: "clock", Interface: "Clock", Bind: "setClock"}},
	})
	s.Require().NoError(err)
}

func (s *ManagerTestSuite) state(name string) lifecycle.ComponentState {
	st, err := s.manager.ComponentState(name)
	s.Require().NoError(err)
	return st
}

func (s *ManagerTestSuite) TestAddDuplicate() {
	s.addClock(s.manager)
	_, err := s.manager.Add(component.Descriptor{Name: "clock", Library: "libclock.so"})
	s.ErrorIs(err, ErrDuplicateComponent)
	s.Equal([]string{"clock"}, s.manager.Components())
	s.Equal(lifecycle.Registered, s.state("clock"))
}

func (s *ManagerTestSuite) TestUnknownComponent() {
	s.ErrorIs(s.manager.StartComponent(s.ctx, "nope"), ErrUnknownComponent)
	s.ErrorIs(s.manager.StopComponent(s.ctx, "nope"), ErrUnknownComponent)
	s.ErrorIs(s.manager.ReloadComponent(s.ctx, "nope"), ErrUnknownComponent)
	_, err := s.manager.ComponentState("nope")
	s.ErrorIs(err, ErrUnknownComponent)
	_, err = s.manager.NewInstance(s.ctx, "nope", nil)
	s.ErrorIs(err, ErrUnknownComponent)
}

func (s *ManagerTestSuite) TestStartImmediate() {
	s.addClock(s.manager)
	s.Require().NoError(s.manager.StartComponent(s.ctx, "clock"))

	c, ok := s.manager.Component("clock")
	s.Require().True(ok)
	s.Equal(1, c.NumInstances())
	s.Equal(lifecycle.Active, s.state("clock"))
	s.NoError(s.manager.Ready())
	s.Len(s.manager.Registry().ServiceReferences("Clock", nil), 1)

	s.Require().NoError(s.manager.StartComponent(s.ctx, "clock"))
	s.Equal(1, c.NumInstances())
}

func (s *ManagerTestSuite) TestStartDelayedLoadsOnly() {
	_, err := s.manager.Add(component.Descriptor{Name: "clock", Library: "libclock.so"})
	s.Require().NoError(err)
	s.Require().NoError(s.manager.StartComponent(s.ctx, "clock"))

	c, _ := s.manager.Component("clock")
	s.Equal(0, c.NumInstances())
	s.True(c.Handle().IsLoaded())
	s.Empty(s.clock.Trace())
}

func (s *ManagerTestSuite) TestLoadFailureWithoutRetry() {
	s.addClock(s.manager)
	s.loader.FailNext("libclock.so", errors.New("transient"))

	err := s.manager.StartComponent(s.ctx, "clock")
	var lerr *native.LoadError
	s.Require().ErrorAs(err, &lerr)
	s.Equal(lifecycle.Failed, s.state("clock"))
	s.Error(s.manager.Ready())

	s.Require().NoError(s.manager.StartComponent(s.ctx, "clock"))
	s.Equal(lifecycle.Active, s.state("clock"))
	s.NoError(s.manager.Ready())
}

func (s *ManagerTestSuite) TestLoadRetried() {
	cfg := DefaultConfig()
	cfg.LoadRetries = 3
	cfg.LoadRetryInterval = time.Millisecond
	cfg.LoadRetryMaxInterval = 2 * time.Millisecond
	m := s.newManager(cfg)
	defer m.Shutdown(s.ctx)
	s.addClock(m)
	s.loader.FailNext("libclock.so", errors.New("busy"), errors.New("busy"))

	s.Require().NoError(m.StartComponent(s.ctx, "clock"))
	s.Equal(1, s.loader.Opens("libclock.so"))
	c, _ := m.Component("clock")
	s.Equal(1, c.NumInstances())
}

func (s *ManagerTestSuite) TestRetriesExhausted() {
	cfg := DefaultConfig()
	cfg.LoadRetries = 1
	cfg.LoadRetryInterval = time.Millisecond
	cfg.LoadRetryMaxInterval = time.Millisecond
	m := s.newManager(cfg)
	defer m.Shutdown(s.ctx)
	s.addClock(m)
	s.loader.FailNext("libclock.so", errors.New("a"), errors.New("b"), errors.New("c"))

	err := m.StartComponent(s.ctx, "clock")
	var lerr *native.LoadError
	s.Require().ErrorAs(err, &lerr)
	s.Equal("b", lerr.Diagnostic)
	s.Equal(0, s.loader.Opens("libclock.so"))
}

func (s *ManagerTestSuite) TestChecksumMismatchNotRetried() {
	path := filepath.Join(s.T().TempDir(), "libsigned.so")
	s.Require().NoError(os.WriteFile(path, []byte("signed"), 0o600))
	s.loader.Add(nativetest.NewLibrary(path)).ExportConstructor("create")
	cfg := DefaultConfig()
	cfg.LoadRetries = 5
	cfg.LoadRetryInterval = time.Hour
	cfg.LoadRetryMaxInterval = time.Hour
	m := s.newManager(cfg)
	defer m.Shutdown(s.ctx)
	_, err := m.Add(component.Descriptor{Name: "signed", Library: path, Checksum: "00"})
	s.Require().NoError(err)

	s.ErrorIs(m.StartComponent(s.ctx, "signed"), security.ErrChecksumMismatch)
	s.Equal(0, s.loader.Opens(path))
}

func (s *ManagerTestSuite) TestStartAllResolvesDependencies() {
	s.addReport(s.manager)
	s.addClock(s.manager)

	s.Require().NoError(s.manager.StartAll(s.ctx))
	s.Equal(lifecycle.Active, s.state("clock"))
	s.Equal(lifecycle.Active, s.state("report"))

	calls := s.report.Calls("setClock")
	s.Require().Len(calls, 1)
	clock := s.manager.Registry().ServiceReferences("Clock", nil)
	s.Require().Len(clock, 1)
	s.Equal(clock[0].Service(), calls[0].Args[1])
}

func (s *ManagerTestSuite) TestStartAllJoinsErrors() {
	s.addClock(s.manager)
	_, err := s.manager.Add(component.Descriptor{Name: "ghost", Library: "libghost.so"})
	s.Require().NoError(err)

	err = s.manager.StartAll(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "start ghost")
	s.Equal(lifecycle.Active, s.state("clock"))
	s.Equal(lifecycle.Failed, s.state("ghost"))
	s.ErrorContains(s.manager.Ready(), "ghost")
}

func (s *ManagerTestSuite) TestStartAllOrdersDependencyChain() {
	consumer := s.loader.Add(nativetest.NewLibrary("libconsumer.so"))
	consumer.ExportConstructor("create")
	consumer.ExportNop("setFormatter")
	middle := s.loader.Add(nativetest.NewLibrary("libformatter.so"))
	middle.ExportConstructor("create")
	middle.ExportNop("setClock")

	cfg := DefaultConfig()
	cfg.Workers = 1
	m := s.newManager(cfg)
	defer func() { s.NoError(m.Shutdown(s.ctx)) }()

	for _, d := range []component.Descriptor{
		{
			Name:       "a-consumer",
			Library:    "libconsumer.so",
			Immediate:  true,
			References: []component.Reference{{Name: "formatter", Interface: "Formatter", Bind: "setFormatter"}},
		},
		{
			Name:       "b-formatter",
			Library:    "libformatter.so",
			Immediate:  true,
			Provides:   []string{"Formatter"},
			References: []component.Reference{{Name: "clock", Interface: "Clock", Bind: "setClock"}},
		},
		{Name: "c-clock", Library: "libclock.so", Immediate: true, Provides: []string{"Clock"}},
	} {
		_, err := m.Add(d)
		s.Require().NoError(err)
	}

	s.Equal([][]string{{"c-clock"}, {"b-formatter"}, {"a-consumer"}}, m.startWaves())
	s.Require().NoError(m.StartAll(s.ctx))
	s.NoError(m.Ready())
	s.Len(middle.Calls("setClock"), 1)
	s.Len(consumer.Calls("setFormatter"), 1)
}

func (s *ManagerTestSuite) TestStartAllReferenceCycle() {
	ping := s.loader.Add(nativetest.NewLibrary("libping.so"))
	ping.ExportConstructor("create")
	ping.ExportNop("setPong")
	pong := s.loader.Add(nativetest.NewLibrary("libpong.so"))
	pong.ExportConstructor("create")
	pong.ExportNop("setPing")

	s.addClock(s.manager)
	for _, d := range []component.Descriptor{
		{
			Name:       "ping",
			Library:    "libping.so",
			Immediate:  true,
			Provides:   []string{"Ping"},
			References: []component.Reference{{Name: "pong", Interface: "Pong", Bind: "setPong"}},
		},
		{
			Name:       "pong",
			Library:    "libpong.so",
			Immediate:  true,
			Provides:   []string{"Pong"},
			References: []component.Reference{{Name: "ping", Interface: "Ping", Bind: "setPing"}},
		},
	} {
		_, err := s.manager.Add(d)
		s.Require().NoError(err)
	}

	s.Equal([][]string{{"clock"}, {"ping", "pong"}}, s.manager.startWaves())
	s.Error(s.manager.StartAll(s.ctx))
	s.Equal(lifecycle.Active, s.state("clock"))
	s.Equal(lifecycle.Failed, s.state("ping"))
	s.Equal(lifecycle.Failed, s.state("pong"))
}

func (s *ManagerTestSuite) TestStopAndReload() {
	s.addClock(s.manager)
	s.Require().NoError(s.manager.StartComponent(s.ctx, "clock"))

	s.Require().NoError(s.manager.StopComponent(s.ctx, "clock"))
	s.Equal(lifecycle.Stopped, s.state("clock"))
	s.False(s.clock.IsOpen())
	s.Empty(s.manager.Registry().ServiceReferences("Clock", nil))
	s.Equal([]string{"create", "deactivate"}, s.clock.Trace())

	s.Require().NoError(s.manager.ReloadComponent(s.ctx, "clock"))
	s.Equal(lifecycle.Active, s.state("clock"))
	s.Equal(2, s.loader.Opens("libclock.so"))
	s.Equal(1, s.clock.Closes())
	c, _ := s.manager.Component("clock")
	s.Equal(1, c.NumInstances())
}

func (s *ManagerTestSuite) TestNewInstanceAndDeactivate() {
	_, err := s.manager.Add(component.Descriptor{Name: "clock", Library: "libclock.so", Factory: true})
	s.Require().NoError(err)

	first, err := s.manager.NewInstance(s.ctx, "clock", api.Properties{"tz": "UTC"})
	s.Require().NoError(err)
	_, err = s.manager.NewInstance(s.ctx, "clock", nil)
	s.Require().NoError(err)
	s.Equal(lifecycle.Active, s.state("clock"))
	s.Equal("UTC", first.Properties()["tz"])

	s.Require().NoError(s.manager.Deactivate(s.ctx, first))
	c, _ := s.manager.Component("clock")
	s.Equal(1, c.NumInstances())
	s.ErrorIs(s.manager.Deactivate(s.ctx, first), component.ErrDeactivated)
}

func (s *ManagerTestSuite) TestAuditEvents() {
	s.addClock(s.manager)
	s.Require().NoError(s.manager.StartComponent(s.ctx, "clock"))

	var kinds []audit.Kind
	for _, e := range s.manager.AuditRing().Drain() {
		s.Equal("clock", e.Component)
		kinds = append(kinds, e.Kind)
	}
	s.Contains(kinds, audit.LibraryLoaded)
	s.Contains(kinds, audit.HookAbsent)
	s.Contains(kinds, audit.InstanceCreated)
}

func (s *ManagerTestSuite) TestShutdown() {
	m := s.newManager(nil)
	s.addClock(m)
	s.Require().NoError(m.StartAll(s.ctx))

	s.Require().NoError(m.Shutdown(s.ctx))
	st, err := m.ComponentState("clock")
	s.Require().NoError(err)
	s.Equal(lifecycle.Stopped, st)
	s.False(s.clock.IsOpen())

	s.NoError(m.Shutdown(s.ctx))
	_, err = m.Add(component.Descriptor{Name: "late"})
	s.ErrorIs(err, ErrClosed)
	s.ErrorIs(m.StartAll(s.ctx), ErrClosed)
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
