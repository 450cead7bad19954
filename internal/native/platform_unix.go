//go:build darwin || freebsd || linux

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

import "github.com/ebitengine/purego"

type systemLoader struct{}

// Open maps the library with RTLD_LAZY|RTLD_GLOBAL so that symbols exported by one
// component library are visible to the libraries it pulls in.
func (systemLoader) Open(path string) (Library, error) {
	h, err := purego.Dlopen(path, purego.RTLD_LAZY|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, err
	}
	return &sharedLibrary{handle: h}, nil
}

type sharedLibrary struct {
	handle uintptr
}

func (so *sharedLibrary) Lookup(name string) (Symbol, error) {
	addr, err := purego.Dlsym(so.handle, name)
	if err != nil {
		return nil, err
	}
	return procSymbol(addr), nil
}

func (so *sharedLibrary) Close() error {
	return purego.Dlclose(so.handle)
}

type procSymbol uintptr

func (p procSymbol) Call(args ...uintptr) uintptr {
	r1, _, _ := purego.SyscallN(uintptr(p), args...)
	return r1
}
