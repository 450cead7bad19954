//go:build windows

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
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

type systemLoader struct{}

func (systemLoader) Open(path string) (Library, error) {
	h, err := windows.LoadLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s failed with error: %d", path, lastErrorCode(err))
	}
	return &dllLibrary{handle: h}, nil
}

type dllLibrary struct {
	handle windows.Handle
}

func (d *dllLibrary) Lookup(name string) (Symbol, error) {
	addr, err := windows.GetProcAddress(d.handle, name)
	if err != nil {
		return nil, fmt.Errorf("resolving %s failed with error: %d", name, lastErrorCode(err))
	}
	return procSymbol(addr), nil
}

func (d *dllLibrary) Close() error {
	return windows.FreeLibrary(d.handle)
}

type procSymbol uintptr

func (p procSymbol) Call(args ...uintptr) uintptr {
	r1, _, _ := syscall.SyscallN(uintptr(p), args...)
	return r1
}

func lastErrorCode(err error) uint32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	return 0
}
