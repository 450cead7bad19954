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

package native

import (
	"errors"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/srediag/dscore/api"
	"github.com/srediag/dscore/internal/nativetest"
)

const libPath = "libgreeter.so"

type recordingObserver struct {
	loaded, failed, unloaded int
	absent                   []Resolution
}

func (o *recordingObserver) Loaded(string)            { o.loaded++ }
func (o *recordingObserver) LoadFailed(string, error) { o.failed++ }
func (o *recordingObserver) Unloaded(string)          { o.unloaded++ }
func (o *recordingObserver) HookAbsent(_ string, res Resolution) {
	o.absent = append(o.absent, res)
}

type HandleTestSuite struct {
	suite.Suite
	loader   *nativetest.Loader
	lib      *nativetest.Library
	observer *recordingObserver
	handle   *Handle
}

func (s *HandleTestSuite) SetupTest() {
	s.loader = nativetest.NewLoader()
	s.lib = s.loader.Add(nativetest.NewLibrary(libPath))
	s.observer = &recordingObserver{}
	s.handle = NewHandle(libPath,
		WithLoader(s.loader),
		WithObserver(s.observer),
		WithLogger(zap.NewNop()))
}

func (s *HandleTestSuite) load() {
	h, err := s.handle.Load()
	s.Require().NoError(err)
	s.Require().Same(s.handle, h)
}

func (s *HandleTestSuite) TestLoadIsIdempotent() {
	s.False(s.handle.IsLoaded())
	s.load()
	s.load()
	s.True(s.handle.IsLoaded())
	s.Equal(1, s.loader.Opens(libPath))
	s.Equal(1, s.observer.loaded)
}

func (s *HandleTestSuite) TestUnloadWhenNotLoadedIsNoop() {
	s.False(s.handle.IsLoaded())
	s.NoError(s.handle.Unload())
	s.False(s.handle.IsLoaded())
	s.Equal(0, s.lib.Closes())
	s.Equal(0, s.observer.unloaded)
}

func (s *HandleTestSuite) TestUnloadReleasesLibrary() {
	s.load()
	s.NoError(s.handle.Unload())
	s.False(s.handle.IsLoaded())
	s.False(s.lib.IsOpen())
	s.NoError(s.handle.Unload())
	s.Equal(1, s.lib.Closes())

	s.load()
	s.Equal(2, s.loader.Opens(libPath))
}

func (s *HandleTestSuite) TestLoadFailureLeavesHandleUnloaded() {
	h := NewHandle("libabsent.so", WithLoader(s.loader), WithObserver(s.observer), WithLogger(zap.NewNop()))
	got, err := h.Load()
	s.Nil(got)

	var lerr *LoadError
	s.Require().ErrorAs(err, &lerr)
	s.Equal("libabsent.so", lerr.Library)
	s.Contains(lerr.Diagnostic, "cannot open shared object file")
	s.False(h.IsLoaded())
	s.Equal(1, s.observer.failed)

	s.loader.Add(nativetest.NewLibrary("libabsent.so"))
	_, err = h.Load()
	s.NoError(err)
	s.True(h.IsLoaded())
}

func (s *HandleTestSuite) TestConstructRequiresLoad() {
	_, err := s.handle.ConstructInstance("create", nil)
	s.ErrorIs(err, ErrNotLoaded)
}

func (s *HandleTestSuite) TestConstructPrefersParamVariant() {
	var seen api.Properties
	s.lib.ExportConstructor("create")
	s.lib.Export("create_param", func(args ...uintptr) uintptr {
		s.Require().Len(args, 1)
		s.Require().NoError(sonic.UnmarshalString(nativetest.GoString(args[0]), &seen))
		return 0xbeef
	})
	s.load()

	id, err := s.handle.ConstructInstance("create", api.Properties{"greeting": "hi"})
	s.Require().NoError(err)
	s.Len(s.lib.Calls("create_param"), 1)
	s.Empty(s.lib.Calls("create"))
	s.Equal(api.Properties{"greeting": "hi"}, seen)

	ptr, ok := s.handle.Pointer(id)
	s.True(ok)
	s.Equal(uintptr(0xbeef), ptr)
}

func (s *HandleTestSuite) TestConstructFallsBackToPlainVariant() {
	s.lib.ExportConstructor("create")
	s.load()

	id, err := s.handle.ConstructInstance("create", api.Properties{"ignored": true})
	s.Require().NoError(err)
	s.NotZero(id)
	calls := s.lib.Calls("create")
	s.Require().Len(calls, 1)
	s.Empty(calls[0].Args)
	s.Equal(1, s.handle.Instances())
}

func (s *HandleTestSuite) TestConstructWithoutSymbolsFails() {
	s.load()

	id, err := s.handle.ConstructInstance("create", nil)
	s.Zero(id)
	var serr *SymbolNotFoundError
	s.Require().ErrorAs(err, &serr)
	s.Equal([]string{"create_param", "create"}, serr.Candidates)
	s.Len(serr.Diagnostics, 2)
	s.Contains(serr.Error(), "undefined symbol: create")
	s.Equal(0, s.handle.Instances())
	s.Empty(s.lib.Trace())
}

func (s *HandleTestSuite) TestConstructNullInstance() {
	s.lib.ExportNop("create")
	s.load()

	_, err := s.handle.ConstructInstance("create", nil)
	s.ErrorIs(err, ErrNullInstance)
	s.Equal(0, s.handle.Instances())
}

func (s *HandleTestSuite) TestOptionalHookAbsent() {
	s.lib.ExportConstructor("create")
	s.load()
	id, err := s.handle.ConstructInstance("create", nil)
	s.Require().NoError(err)

	res, err := s.handle.InvokeLifecycleMethod(Invocation{
		Method:   "activate",
		Instance: id,
		Payload:  api.Properties{},
	}, Optional)
	s.NoError(err)
	s.False(res.Found())
	s.Equal(VariantNone, res.Variant)
	s.Len(res.Diagnostics, 2)
	s.Require().Len(s.observer.absent, 1)
	s.Equal("activate", s.observer.absent[0].Method)
}

func (s *HandleTestSuite) TestMandatoryHookAbsent() {
	s.lib.ExportConstructor("create")
	s.load()
	id, err := s.handle.ConstructInstance("create", nil)
	s.Require().NoError(err)

	res, err := s.handle.InvokeLifecycleMethod(Invocation{Method: "setLogger", Instance: id, Args: []uintptr{7}}, Mandatory)
	s.False(res.Found())
	var serr *SymbolNotFoundError
	s.Require().ErrorAs(err, &serr)
	s.Equal([]string{"setLogger"}, serr.Candidates)
	s.Empty(s.observer.absent)
}

func (s *HandleTestSuite) TestInvokePassesInstanceArgsAndPayload() {
	var payload string
	s.lib.Export("create", func(...uintptr) uintptr { return 0x42 })
	s.lib.ExportNop("bind")
	s.lib.Export("bind_param", func(args ...uintptr) uintptr {
		payload = nativetest.GoString(args[2])
		return 0
	})
	s.load()
	id, err := s.handle.ConstructInstance("create", nil)
	s.Require().NoError(err)

	res, err := s.handle.InvokeLifecycleMethod(Invocation{
		Method:   "bind",
		Instance: id,
		Args:     []uintptr{0x99},
		Payload:  map[string]string{"interface": "Logger"},
	}, Mandatory)
	s.Require().NoError(err)
	s.Equal(VariantParam, res.Variant)
	s.Equal("bind_param", res.Symbol)

	calls := s.lib.Calls("bind_param")
	s.Require().Len(calls, 1)
	s.Equal(uintptr(0x42), calls[0].Args[0])
	s.Equal(uintptr(0x99), calls[0].Args[1])
	s.JSONEq(`{"interface":"Logger"}`, payload)
	s.Empty(s.lib.Calls("bind"))
}

func (s *HandleTestSuite) TestInvokeWithoutPayloadUsesPlainOnly() {
	s.lib.ExportConstructor("create")
	s.lib.ExportNop("deactivate")
	s.lib.ExportNop("deactivate_param")
	s.load()
	id, err := s.handle.ConstructInstance("create", nil)
	s.Require().NoError(err)

	res, err := s.handle.InvokeLifecycleMethod(Invocation{Method: "deactivate", Instance: id}, Optional)
	s.Require().NoError(err)
	s.Equal(VariantPlain, res.Variant)
	s.Len(s.lib.Calls("deactivate"), 1)
	s.Empty(s.lib.Calls("deactivate_param"))
}

func (s *HandleTestSuite) TestInvokeUnknownInstance() {
	s.lib.ExportNop("activate")
	s.load()

	_, err := s.handle.InvokeLifecycleMethod(Invocation{Method: "activate", Instance: 12}, Optional)
	s.ErrorIs(err, ErrUnknownInstance)
	s.Empty(s.lib.Trace())
}

func (s *HandleTestSuite) TestReleaseForgetsInstance() {
	s.lib.ExportConstructor("create")
	s.lib.ExportNop("activate")
	s.load()
	id, err := s.handle.ConstructInstance("create", nil)
	s.Require().NoError(err)

	s.True(s.handle.Release(id))
	s.False(s.handle.Release(id))
	_, err = s.handle.InvokeLifecycleMethod(Invocation{Method: "activate", Instance: id}, Optional)
	s.True(errors.Is(err, ErrUnknownInstance))
}

func (s *HandleTestSuite) TestProbe() {
	s.lib.ExportNop("activate_param")
	_, err := s.handle.Probe("activate")
	s.ErrorIs(err, ErrNotLoaded)

	s.load()
	res, err := s.handle.Probe("activate")
	s.NoError(err)
	s.Equal(VariantParam, res.Variant)
	s.Empty(s.lib.Trace())
}

func TestHandleTestSuite(t *testing.T) {
	suite.Run(t, new(HandleTestSuite))
}
