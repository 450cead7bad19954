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

// Package nativetest provides an in-memory Loader whose libraries export Go
// functions as symbols. Calls are recorded so tests can assert on the exact
// symbols a handle invoked.
package nativetest

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/srediag/dscore/internal/native"
)

// Func is the Go body of a fake exported symbol.
type Func func(args ...uintptr) uintptr

// Call is one recorded symbol invocation.
type Call struct {
	Symbol string
	Args   []uintptr
}

// Loader serves registered libraries by path.
type Loader struct {
	mu    sync.Mutex
	libs  map[string]*Library
	fails map[string][]error
	opens map[string]int
}

// NewLoader returns an empty loader.
func NewLoader() *Loader {
	return &Loader{
		libs:  make(map[string]*Library),
		fails: make(map[string][]error),
		opens: make(map[string]int),
	}
}

// Add registers lib under its name and returns it.
func (l *Loader) Add(lib *Library) *Library {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.libs[lib.name] = lib
	return lib
}

// FailNext makes the next len(errs) opens of path fail with errs in order.
func (l *Loader) FailNext(path string, errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fails[path] = append(l.fails[path], errs...)
}

// Opens reports how many successful opens were served for path.
func (l *Loader) Opens(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens[path]
}

// Open implements native.Loader.
func (l *Loader) Open(path string) (native.Library, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if errs := l.fails[path]; len(errs) > 0 {
		l.fails[path] = errs[1:]
		return nil, errs[0]
	}
	lib, ok := l.libs[path]
	if !ok {
		return nil, fmt.Errorf("%s: cannot open shared object file: No such file or directory", path)
	}
	l.opens[path]++
	lib.setOpen(true)
	return lib, nil
}

// Library is a fake shared object.
type Library struct {
	name string

	mu      sync.Mutex
	symbols map[string]Func
	calls   []Call
	open    bool
	closes  int
	failErr error
	next    uintptr
}

// NewLibrary returns a library with no exports.
func NewLibrary(name string) *Library {
	return &Library{
		name:    name,
		symbols: make(map[string]Func),
		next:    0x1000,
	}
}

// Name returns the path the library is registered under.
func (l *Library) Name() string { return l.name }

// Export adds a symbol.
func (l *Library) Export(symbol string, fn Func) *Library {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.symbols[symbol] = fn
	return l
}

// ExportConstructor adds a symbol that returns a fresh non-null pointer per call.
func (l *Library) ExportConstructor(symbol string) *Library {
	return l.Export(symbol, func(...uintptr) uintptr {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.next += 0x10
		return l.next
	})
}

// ExportNop adds a symbol that does nothing.
func (l *Library) ExportNop(symbol string) *Library {
	return l.Export(symbol, func(...uintptr) uintptr { return 0 })
}

// Calls returns the recorded invocations of symbol.
func (l *Library) Calls(symbol string) []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Call
	for _, c := range l.calls {
		if c.Symbol == symbol {
			out = append(out, c)
		}
	}
	return out
}

// Trace returns the names of all invoked symbols in call order.
func (l *Library) Trace() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.calls))
	for _, c := range l.calls {
		out = append(out, c.Symbol)
	}
	return out
}

// IsOpen reports whether the library is currently mapped.
func (l *Library) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open
}

// Closes reports how many times Close was called.
func (l *Library) Closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

func (l *Library) setOpen(v bool) {
	l.mu.Lock()
	l.open = v
	l.mu.Unlock()
}

// FailClose makes every later Close return err.
func (l *Library) FailClose(err error) {
	l.mu.Lock()
	l.failErr = err
	l.mu.Unlock()
}

// Lookup implements native.Library.
func (l *Library) Lookup(symbol string) (native.Symbol, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return nil, fmt.Errorf("%s: library is not open", l.name)
	}
	fn, ok := l.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: undefined symbol: %s", l.name, symbol)
	}
	return &exportedSymbol{lib: l, name: symbol, fn: fn}, nil
}

// Close implements native.Library.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = false
	l.closes++
	return l.failErr
}

type exportedSymbol struct {
	lib  *Library
	name string
	fn   Func
}

func (s *exportedSymbol) Call(args ...uintptr) uintptr {
	s.lib.mu.Lock()
	s.lib.calls = append(s.lib.calls, Call{Symbol: s.name, Args: append([]uintptr(nil), args...)})
	s.lib.mu.Unlock()
	return s.fn(args...)
}

// GoString copies the NUL-terminated string at p. It is only valid while the
// payload that p points into has not been released, i.e. inside a Func body.
func GoString(p uintptr) string {
	if p == 0 {
		return ""
	}
	start := unsafe.Pointer(p)
	n := 0
	for *(*byte)(unsafe.Add(start, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(start), n))
}
