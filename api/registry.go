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

package api

// Well known service properties.
const (
	ServiceID      = "service.id"
	ServiceRanking = "service.ranking"
	ComponentName  = "component.name"
	ComponentID    = "component.id"
)

// ServiceReference points at a published service.
type ServiceReference interface {
	ID() uint64
	Interfaces() []string
	Properties() Properties
	// Service is the native pointer of the service object handed to bind symbols.
	Service() uintptr
}

// Registration is returned when a service is published.
type Registration interface {
	Reference() ServiceReference
	Unregister() error
}

// Registry is the service registry of the hosting framework.
type Registry interface {
	// ServiceReferences returns the services published under iface whose properties
	// match target, best ranked first.
	ServiceReferences(iface string, target Properties) []ServiceReference
	// RegisterService publishes service under ifaces.
	RegisterService(ifaces []string, service uintptr, props Properties) (Registration, error)
}

// Module is the unit of deployment that owns a set of components.
type Module interface {
	Name() string
	Registry() Registry
}
