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

package component

import (
	"errors"
	"fmt"
)

var (
	// ErrDeactivated is returned when deactivating an instance twice.
	ErrDeactivated = errors.New("instance is deactivated")
	// ErrForeignInstance is returned for an instance created by another component.
	ErrForeignInstance = errors.New("instance belongs to another component")
)

// CardinalityError is returned when a non-factory component is asked for a
// second instance.
type CardinalityError struct {
	Component string
	Live      int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("component %s is not a factory and already has %d instance(s)", e.Component, e.Live)
}

// UnsatisfiedDependencyError is returned when a mandatory reference has no
// matching service.
type UnsatisfiedDependencyError struct {
	Component   string
	Reference   string
	Interface   string
	Cardinality Cardinality
}

func (e *UnsatisfiedDependencyError) Error() string {
	return fmt.Sprintf("component %s: reference %s (%s, %s) has no matching service",
		e.Component, e.Reference, e.Interface, e.Cardinality)
}

// BindError is returned when a declared reference cannot be bound, typically
// because the library does not export its bind method.
type BindError struct {
	Component string
	Reference string
	Err       error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("component %s: bind %s: %v", e.Component, e.Reference, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}
