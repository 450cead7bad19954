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

// ParamSuffix distinguishes the parameterized variant of a lifecycle symbol.
const ParamSuffix = "_param"

// Mode selects how a missing lifecycle symbol is reported.
type Mode int

const (
	// Optional treats a missing symbol as the component declining the hook.
	Optional Mode = iota
	// Mandatory fails with a SymbolNotFoundError when no candidate resolves.
	Mandatory
)

func (m Mode) String() string {
	if m == Mandatory {
		return "mandatory"
	}
	return "optional"
}

// Variant identifies which candidate signature a lookup settled on.
type Variant int

const (
	VariantNone Variant = iota
	VariantParam
	VariantPlain
)

func (v Variant) String() string {
	switch v {
	case VariantParam:
		return "param"
	case VariantPlain:
		return "plain"
	default:
		return "none"
	}
}

// Resolution is the outcome of probing a library for one lifecycle method.
// Variant is VariantNone when the method is absent.
type Resolution struct {
	Method  string
	Symbol  string
	Variant Variant
	// Diagnostics holds the loader text of every failed lookup, in probe order.
	Diagnostics []string
}

// Found reports whether any candidate resolved.
func (r Resolution) Found() bool {
	return r.Variant != VariantNone
}

// candidate is one signature tried while probing, in priority order.
type candidate struct {
	variant Variant
	suffix  string
}

var (
	dualSignature  = []candidate{{VariantParam, ParamSuffix}, {VariantPlain, ""}}
	plainSignature = []candidate{{VariantPlain, ""}}
)

func candidateNames(method string, cands []candidate) []string {
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = method + c.suffix
	}
	return names
}
