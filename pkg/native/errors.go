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
	"strings"
)

var (
	// ErrNotLoaded is returned by symbol operations on an unloaded handle.
	ErrNotLoaded = errors.New("library is not loaded")
	// ErrUnknownInstance is returned for an InstanceID the handle does not track.
	ErrUnknownInstance = errors.New("unknown instance")
	// ErrNullInstance is returned when a constructor yields a null pointer.
	ErrNullInstance = errors.New("constructor returned a null instance")
)

// LoadError reports a library that could not be mapped into the process.
type LoadError struct {
	Library string
	// Diagnostic is the platform text: dlerror output on POSIX targets, the
	// formatted last-error code on windows.
	Diagnostic string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s", e.Library, e.Diagnostic)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SymbolNotFoundError reports a mandatory symbol missing from a library.
type SymbolNotFoundError struct {
	Library     string
	Method      string
	Candidates  []string
	Diagnostics []string
}

func (e *SymbolNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: none of [%s] found", e.Library, strings.Join(e.Candidates, " "))
	if len(e.Diagnostics) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Diagnostics, "; "))
	}
	return b.String()
}
