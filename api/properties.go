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

// Package api defines the contracts shared between the component runtime and the
// module system that hosts it.
package api

import "maps"

// Properties is an opaque key/value payload. The runtime merges and forwards it
// without interpreting the values.
type Properties map[string]any

// Clone returns a shallow copy. Cloning nil yields an empty map.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	maps.Copy(out, p)
	return out
}

// Merge returns a new map holding p overlaid with overrides, key by key.
func (p Properties) Merge(overrides Properties) Properties {
	out := p.Clone()
	maps.Copy(out, overrides)
	return out
}

// Matches reports whether every key of filter is present in p with an equal value.
// Only comparable values can match.
func (p Properties) Matches(filter Properties) bool {
	for k, want := range filter {
		got, ok := p[k]
		if !ok || !equal(got, want) {
			return false
		}
	}
	return true
}

func equal(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
