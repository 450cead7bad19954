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

// Package audit records structured lifecycle events: library loads, instance
// creation and teardown, rollbacks, and lifecycle hooks a component does not export.
package audit

import (
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
)

// Kind names an event.
type Kind string

const (
	LibraryLoaded       Kind = "library_loaded"
	LoadFailed          Kind = "load_failed"
	LibraryUnloaded     Kind = "library_unloaded"
	HookAbsent          Kind = "hook_absent"
	InstanceCreated     Kind = "instance_created"
	InstanceDeactivated Kind = "instance_deactivated"
	InstanceRolledBack  Kind = "instance_rolled_back"
)

// Event is one audit record.
type Event struct {
	Time      time.Time
	Kind      Kind
	Component string
	Library   string
	Instance  uint64
	Method    string
	Detail    string
}

// Logger receives audit events. Implementations must not block.
type Logger interface {
	LogEvent(e Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) LogEvent(Event) {}

// Ring keeps the most recent events in a bounded lock-free ring. Events offered
// while the ring is full are dropped and counted.
type Ring struct {
	rb      *queue.RingBuffer
	dropped atomic.Uint64
}

// NewRing returns a ring holding at least size events.
func NewRing(size uint64) *Ring {
	return &Ring{rb: queue.NewRingBuffer(size)}
}

// LogEvent implements Logger.
func (r *Ring) LogEvent(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	ok, err := r.rb.Offer(e)
	if err != nil || !ok {
		r.dropped.Add(1)
	}
}

// Drain removes and returns the buffered events, oldest first.
func (r *Ring) Drain() []Event {
	n := r.rb.Len()
	out := make([]Event, 0, n)
	for i := uint64(0); i < n; i++ {
		item, err := r.rb.Poll(time.Millisecond)
		if err != nil {
			break
		}
		out = append(out, item.(Event))
	}
	return out
}

// Len returns the number of buffered events.
func (r *Ring) Len() int {
	return int(r.rb.Len())
}

// Dropped returns how many events were lost to a full ring.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// Close disposes the ring; later events are dropped.
func (r *Ring) Close() {
	r.rb.Dispose()
}
