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

// Package native owns one dynamically loaded component library: it maps the
// library, probes it for lifecycle symbols and invokes them.
//
// Every lifecycle method may be exported in two shapes, a parameterized one named
// "<method>_param" and a plain one named "<method>". The parameterized shape always
// wins when both exist. Constructors are mandatory; whether a missing lifecycle
// method is an error is chosen by the caller through Mode.
//
// A Handle has no internal locking. The owner must serialize Load, Unload and
// invocations.
package native

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/srediag/dscore/api"
	"github.com/srediag/dscore/internal/logging"
	internalnative "github.com/srediag/dscore/internal/native"
)

type (
	// Loader maps libraries into the process.
	Loader = internalnative.Loader
	// Library is a mapped library.
	Library = internalnative.Library
	// Symbol is a resolved function pointer.
	Symbol = internalnative.Symbol
)

// Observer is notified of handle events. HookAbsent is the only channel through
// which an optional miss becomes visible.
type Observer interface {
	Loaded(library string)
	LoadFailed(library string, err error)
	Unloaded(library string)
	HookAbsent(library string, res Resolution)
}

type nopObserver struct{}

func (nopObserver) Loaded(string)                 {}
func (nopObserver) LoadFailed(string, error)      {}
func (nopObserver) Unloaded(string)               {}
func (nopObserver) HookAbsent(string, Resolution) {}

// Option configures a Handle.
type Option func(*Handle)

// WithLoader replaces the operating system loader.
func WithLoader(l Loader) Option {
	return func(h *Handle) { h.loader = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handle) { h.logger = l }
}

// WithObserver registers o for handle events.
func WithObserver(o Observer) Option {
	return func(h *Handle) { h.observer = o }
}

// Handle is a named native library and the instances constructed from it.
type Handle struct {
	name      string
	loader    Loader
	lib       Library
	instances *instanceTable
	observer  Observer
	logger    *zap.Logger
}

// NewHandle returns an unloaded handle for the library at name.
func NewHandle(name string, opts ...Option) *Handle {
	h := &Handle{
		name:      name,
		loader:    internalnative.System,
		instances: newInstanceTable(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logging.Logger().Named("native")
	}
	h.logger = h.logger.With(zap.String("library", name))
	return h
}

// Name returns the library path given at construction.
func (h *Handle) Name() string { return h.name }

// IsLoaded reports whether the library is mapped.
func (h *Handle) IsLoaded() bool { return h.lib != nil }

// Load maps the library. It is a no-op on a loaded handle. On failure the handle
// stays unloaded and a *LoadError is returned.
func (h *Handle) Load() (*Handle, error) {
	if h.lib != nil {
		return h, nil
	}
	lib, err := h.loader.Open(h.name)
	if err != nil {
		lerr := &LoadError{Library: h.name, Diagnostic: err.Error(), Err: err}
		h.logger.Warn("load failed", zap.Error(err))
		h.observer.LoadFailed(h.name, lerr)
		return nil, lerr
	}
	h.lib = lib
	h.logger.Debug("loaded")
	h.observer.Loaded(h.name)
	return h, nil
}

// Unload releases the mapping. It is a no-op on an unloaded handle. Instances
// constructed from the library must be deactivated first; their InstanceIDs stay
// in the side table until released.
func (h *Handle) Unload() error {
	if h.lib == nil {
		return nil
	}
	lib := h.lib
	h.lib = nil
	h.observer.Unloaded(h.name)
	if err := lib.Close(); err != nil {
		return fmt.Errorf("unload %s: %w", h.name, err)
	}
	h.logger.Debug("unloaded")
	return nil
}

// ConstructInstance resolves createName_param and createName and invokes the first
// that exists, the parameterized one with props. The new object is tracked under
// the returned InstanceID.
func (h *Handle) ConstructInstance(createName string, props api.Properties) (InstanceID, error) {
	if h.lib == nil {
		return 0, fmt.Errorf("construct %s: %w", createName, ErrNotLoaded)
	}
	res, sym := h.probe(createName, dualSignature)
	if !res.Found() {
		return 0, h.notFound(res, dualSignature)
	}

	var ptr uintptr
	if res.Variant == VariantParam {
		payload, err := internalnative.EncodePayload(props)
		if err != nil {
			return 0, fmt.Errorf("construct %s: %w", res.Symbol, err)
		}
		ptr = sym.Call(payload.Ptr())
		payload.Release()
	} else {
		ptr = sym.Call()
	}
	if ptr == 0 {
		return 0, fmt.Errorf("construct %s: %w", res.Symbol, ErrNullInstance)
	}
	id := h.instances.put(ptr)
	h.logger.Debug("instance constructed", zap.String("symbol", res.Symbol), zap.Stringer("instance", id))
	return id, nil
}

// Invocation describes one lifecycle call. The instance pointer is always the
// first argument, followed by Args. When Payload is non-nil the parameterized
// variant is probed first and receives Payload, encoded, as its last argument;
// when it is nil only the plain symbol is considered.
type Invocation struct {
	Method   string
	Instance InstanceID
	Args     []uintptr
	Payload  any
}

// InvokeLifecycleMethod resolves and calls inv.Method for an instance. In Optional
// mode an absent method yields a Resolution with VariantNone and a nil error; in
// Mandatory mode it yields a *SymbolNotFoundError.
func (h *Handle) InvokeLifecycleMethod(inv Invocation, mode Mode) (Resolution, error) {
	if h.lib == nil {
		return Resolution{Method: inv.Method}, fmt.Errorf("invoke %s: %w", inv.Method, ErrNotLoaded)
	}
	ptr, ok := h.instances.get(inv.Instance)
	if !ok {
		return Resolution{Method: inv.Method}, fmt.Errorf("invoke %s on %s: %w", inv.Method, inv.Instance, ErrUnknownInstance)
	}

	cands := plainSignature
	if inv.Payload != nil {
		cands = dualSignature
	}
	res, sym := h.probe(inv.Method, cands)
	if !res.Found() {
		if mode == Mandatory {
			return res, h.notFound(res, cands)
		}
		h.logger.Debug("lifecycle method absent",
			zap.String("method", inv.Method),
			zap.Strings("diagnostics", res.Diagnostics))
		h.observer.HookAbsent(h.name, res)
		return res, nil
	}

	args := make([]uintptr, 0, len(inv.Args)+2)
	args = append(args, ptr)
	args = append(args, inv.Args...)
	if res.Variant == VariantParam {
		payload, err := internalnative.EncodePayload(inv.Payload)
		if err != nil {
			return res, fmt.Errorf("invoke %s: %w", res.Symbol, err)
		}
		defer payload.Release()
		args = append(args, payload.Ptr())
	}
	sym.Call(args...)
	return res, nil
}

// Pointer returns the native pointer behind id.
func (h *Handle) Pointer(id InstanceID) (uintptr, bool) {
	return h.instances.get(id)
}

// Release forgets id. It reports whether id was tracked.
func (h *Handle) Release(id InstanceID) bool {
	return h.instances.remove(id)
}

// Instances returns the number of tracked instances.
func (h *Handle) Instances() int {
	return h.instances.count()
}

// Probe resolves method without invoking it. Both variants are considered.
func (h *Handle) Probe(method string) (Resolution, error) {
	if h.lib == nil {
		return Resolution{Method: method}, fmt.Errorf("probe %s: %w", method, ErrNotLoaded)
	}
	res, _ := h.probe(method, dualSignature)
	return res, nil
}

// probe tries every candidate in order and returns the first that resolves.
func (h *Handle) probe(method string, cands []candidate) (Resolution, Symbol) {
	res := Resolution{Method: method}
	for _, c := range cands {
		name := method + c.suffix
		sym, err := h.lib.Lookup(name)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, err.Error())
			continue
		}
		res.Symbol = name
		res.Variant = c.variant
		return res, sym
	}
	return res, nil
}

func (h *Handle) notFound(res Resolution, cands []candidate) error {
	return &SymbolNotFoundError{
		Library:     h.name,
		Method:      res.Method,
		Candidates:  candidateNames(res.Method, cands),
		Diagnostics: res.Diagnostics,
	}
}
