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

// Package registry is an in-memory service registry implementing api.Registry.
package registry

import (
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/spf13/cast"

	"github.com/srediag/dscore/api"
)

var (
	ErrNoInterfaces  = errors.New("service must be registered under at least one interface")
	ErrNullService   = errors.New("service pointer is null")
	ErrNotRegistered = errors.New("service is not registered")
)

// Registry holds published services.
type Registry struct {
	mu       sync.RWMutex
	next     uint64
	services map[uint64]*reference
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{services: make(map[uint64]*reference)}
}

type reference struct {
	id      uint64
	ifaces  []string
	props   api.Properties
	service uintptr
}

func (r *reference) ID() uint64                 { return r.id }
func (r *reference) Interfaces() []string       { return slices.Clone(r.ifaces) }
func (r *reference) Properties() api.Properties { return r.props.Clone() }
func (r *reference) Service() uintptr           { return r.service }

// ranking reads service.ranking as any integer, float or numeric string.
// Anything else ranks 0.
func (r *reference) ranking() int64 {
	n, err := cast.ToInt64E(r.props[api.ServiceRanking])
	if err != nil {
		return 0
	}
	return n
}

type registration struct {
	registry *Registry
	ref      *reference
}

func (g *registration) Reference() api.ServiceReference { return g.ref }

func (g *registration) Unregister() error {
	g.registry.mu.Lock()
	defer g.registry.mu.Unlock()
	if _, ok := g.registry.services[g.ref.id]; !ok {
		return ErrNotRegistered
	}
	delete(g.registry.services, g.ref.id)
	return nil
}

// RegisterService implements api.Registry. The service id is stored in the
// properties under api.ServiceID.
func (r *Registry) RegisterService(ifaces []string, service uintptr, props api.Properties) (api.Registration, error) {
	if len(ifaces) == 0 {
		return nil, ErrNoInterfaces
	}
	if service == 0 {
		return nil, ErrNullService
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	ref := &reference{
		id:      r.next,
		ifaces:  slices.Clone(ifaces),
		props:   props.Clone(),
		service: service,
	}
	ref.props[api.ServiceID] = ref.id
	r.services[ref.id] = ref
	return &registration{registry: r, ref: ref}, nil
}

// ServiceReferences implements api.Registry.
func (r *Registry) ServiceReferences(iface string, target api.Properties) []api.ServiceReference {
	r.mu.RLock()
	var found []*reference
	for _, ref := range r.services {
		if slices.Contains(ref.ifaces, iface) && ref.props.Matches(target) {
			found = append(found, ref)
		}
	}
	r.mu.RUnlock()

	sort.Slice(found, func(i, j int) bool {
		ri, rj := found[i].ranking(), found[j].ranking()
		if ri != rj {
			return ri > rj
		}
		return found[i].id < found[j].id
	})
	out := make([]api.ServiceReference, len(found))
	for i, ref := range found {
		out[i] = ref
	}
	return out
}

// Len returns the number of published services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}
