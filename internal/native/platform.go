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

// Package native contains the platform specific dynamic loader used by pkg/native.
//
// A Loader maps a shared library into the process and hands back a Library that
// resolves exported symbols. The concrete loader is chosen at build time: purego on
// darwin, freebsd and linux, the Win32 loader on windows, and an unsupported stub on
// every other target.
package native

import "errors"

// ErrUnsupportedPlatform is returned by System on targets without a dynamic loader.
var ErrUnsupportedPlatform = errors.New("dynamic loading is not supported on this platform")

// Loader maps named libraries into the process.
type Loader interface {
	// Open loads the library at path. The returned error text is the platform
	// diagnostic (dlerror output or the formatted last-error code).
	Open(path string) (Library, error)
}

// Library is a library mapped into the process.
type Library interface {
	// Lookup resolves an exported symbol by its exact, case sensitive name.
	Lookup(name string) (Symbol, error)
	// Close releases the mapping. Symbols obtained from the library must not be
	// called afterwards.
	Close() error
}

// Symbol is a resolved function pointer. Call passes every argument as a machine
// word and returns the first result register.
type Symbol interface {
	Call(args ...uintptr) uintptr
}

// System is the loader of the host operating system.
var System Loader = systemLoader{}
