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
	"fmt"
	"strings"

	"github.com/srediag/dscore/api"
)

// Default lifecycle symbol names used when a descriptor leaves them empty.
const (
	DefaultCreate     = "create"
	DefaultActivate   = "activate"
	DefaultDeactivate = "deactivate"
)

// Cardinality constrains how many services a reference binds.
type Cardinality int

const (
	ExactlyOne Cardinality = iota
	ZeroOrOne
	ZeroOrMany
	OneOrMany
)

var cardinalityText = [...]string{
	ExactlyOne: "1..1",
	ZeroOrOne:  "0..1",
	ZeroOrMany: "0..n",
	OneOrMany:  "1..n",
}

// Mandatory reports whether at least one service must be bound.
func (c Cardinality) Mandatory() bool {
	return c == ExactlyOne || c == OneOrMany
}

// Multiple reports whether more than one service may be bound.
func (c Cardinality) Multiple() bool {
	return c == ZeroOrMany || c == OneOrMany
}

func (c Cardinality) String() string {
	if c < 0 || int(c) >= len(cardinalityText) {
		return fmt.Sprintf("cardinality(%d)", int(c))
	}
	return cardinalityText[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c Cardinality) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(cardinalityText) {
		return nil, fmt.Errorf("invalid cardinality %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText accepts the interval form ("0..n") and the spelled out form
// ("zero-or-many").
func (c *Cardinality) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "1..1", "exactly-one", "":
		*c = ExactlyOne
	case "0..1", "zero-or-one":
		*c = ZeroOrOne
	case "0..n", "zero-or-many":
		*c = ZeroOrMany
	case "1..n", "one-or-many":
		*c = OneOrMany
	default:
		return fmt.Errorf("unknown cardinality %q", text)
	}
	return nil
}

// Reference declares a service dependency of a component.
type Reference struct {
	Name        string         `json:"name" mapstructure:"name"`
	Interface   string         `json:"interface" mapstructure:"interface"`
	Cardinality Cardinality    `json:"cardinality" mapstructure:"cardinality"`
	Bind        string         `json:"bind" mapstructure:"bind"`
	Unbind      string         `json:"unbind" mapstructure:"unbind"`
	Target      api.Properties `json:"target" mapstructure:"target"`
}

// BindSymbol returns the bind method, "bind<Name>" by default.
func (r Reference) BindSymbol() string {
	if r.Bind != "" {
		return r.Bind
	}
	return "bind" + r.Name
}

// UnbindSymbol returns the unbind method, "unbind<Name>" by default.
func (r Reference) UnbindSymbol() string {
	if r.Unbind != "" {
		return r.Unbind
	}
	return "unbind" + r.Name
}

// Descriptor is the parsed declaration of a component. Factory components may have
// any number of live instances, others at most one. Immediate components get an
// instance as soon as their manager starts them. Checksum is the hex sha256 of
// Library, verified before the first load.
type Descriptor struct {
	Name       string `json:"name" mapstructure:"name"`
	Library    string `json:"library" mapstructure:"library"`
	Create     string `json:"create" mapstructure:"create"`
	Activate   string `json:"activate" mapstructure:"activate"`
	Deactivate string `json:"deactivate" mapstructure:"deactivate"`

	Factory   bool `json:"factory" mapstructure:"factory"`
	Immediate bool `json:"immediate" mapstructure:"immediate"`

	Properties api.Properties `json:"properties" mapstructure:"properties"`
	Provides   []string       `json:"provides" mapstructure:"provides"`
	References []Reference    `json:"references" mapstructure:"references"`
	Checksum   string         `json:"checksum" mapstructure:"checksum"`
}

func (d Descriptor) CreateSymbol() string {
	return orDefault(d.Create, DefaultCreate)
}

func (d Descriptor) ActivateSymbol() string {
	return orDefault(d.Activate, DefaultActivate)
}

func (d Descriptor) DeactivateSymbol() string {
	return orDefault(d.Deactivate, DefaultDeactivate)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
