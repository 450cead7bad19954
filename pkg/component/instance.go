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
	"github.com/srediag/dscore/api"
	"github.com/srediag/dscore/pkg/lifecycle"
	"github.com/srediag/dscore/pkg/native"
)

// Instance is one live object created by a Component.
type Instance struct {
	id           native.InstanceID
	component    *Component
	properties   api.Properties
	state        lifecycle.State
	bindings     []binding
	registration api.Registration
}

type binding struct {
	ref     Reference
	service api.ServiceReference
}

// ID returns the tagged handle of the native object.
func (i *Instance) ID() native.InstanceID { return i.id }

// Component returns the component that created the instance.
func (i *Instance) Component() *Component { return i.component }

// State returns the lifecycle state.
func (i *Instance) State() lifecycle.State { return i.state }

// Properties returns a copy of the merged properties the instance was created with.
func (i *Instance) Properties() api.Properties { return i.properties.Clone() }

// Registration returns the service registration, nil when nothing was published.
func (i *Instance) Registration() api.Registration { return i.registration }

// Bound returns the services bound for the named reference, in bind order.
func (i *Instance) Bound(reference string) []api.ServiceReference {
	var out []api.ServiceReference
	for _, b := range i.bindings {
		if b.ref.Name == reference {
			out = append(out, b.service)
		}
	}
	return out
}

// bindMetadata is the payload of the parameterized bind and unbind variants.
type bindMetadata struct {
	Name        string         `json:"name"`
	Interface   string         `json:"interface"`
	Cardinality string         `json:"cardinality"`
	ServiceID   uint64         `json:"service.id"`
	Properties  api.Properties `json:"properties"`
}

func newBindMetadata(ref Reference, sref api.ServiceReference) bindMetadata {
	return bindMetadata{
		Name:        ref.Name,
		Interface:   ref.Interface,
		Cardinality: ref.Cardinality.String(),
		ServiceID:   sref.ID(),
		Properties:  sref.Properties(),
	}
}
