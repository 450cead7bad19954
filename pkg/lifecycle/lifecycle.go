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

// Package lifecycle provides the instance state machine and the contract implemented
// by component managers.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

// State is the lifecycle state of one component instance.
type State int

const (
	Constructed State = iota + 1
	Activated
	Bound
	Published
	// Deactivated is terminal. A new instance must be constructed instead.
	Deactivated
)

var stateNames = map[State]string{
	Constructed: "constructed",
	Activated:   "activated",
	Bound:       "bound",
	Published:   "published",
	Deactivated: "deactivated",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrInvalidTransition is returned by Transition for a move the machine forbids.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// CanTransition reports whether an instance in s may move to next. States only move
// forward one step at a time, and every live state may move to Deactivated.
func (s State) CanTransition(next State) bool {
	switch {
	case s == Deactivated:
		return false
	case next == Deactivated:
		return true
	default:
		return next == s+1
	}
}

// Transition moves *s to next or reports ErrInvalidTransition.
func Transition(s *State, next State) error {
	if !s.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, *s, next)
	}
	*s = next
	return nil
}

// ComponentState summarizes a component as seen by its manager.
type ComponentState string

const (
	// Registered components have a descriptor but were never started.
	Registered ComponentState = "registered"
	// Active components have their library loaded.
	Active ComponentState = "active"
	// Failed components hit an error on their last start.
	Failed ComponentState = "failed"
	// Stopped components had every instance deactivated and their library unloaded.
	Stopped ComponentState = "stopped"
)

// Manager drives components through their lifecycle.
type Manager interface {
	// StartComponent loads the component and creates its first instance if it is
	// immediate.
	StartComponent(ctx context.Context, name string) error
	// StopComponent deactivates every instance and unloads the library.
	StopComponent(ctx context.Context, name string) error
	// ReloadComponent stops then starts the component.
	ReloadComponent(ctx context.Context, name string) error
	// ComponentState returns the current state of a component.
	ComponentState(name string) (ComponentState, error)
}
