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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardinality(t *testing.T) {
	cases := []struct {
		text      string
		want      Cardinality
		mandatory bool
		multiple  bool
	}{
		{"1..1", ExactlyOne, true, false},
		{"0..1", ZeroOrOne, false, false},
		{"0..n", ZeroOrMany, false, true},
		{"1..n", OneOrMany, true, true},
		{"zero-or-many", ZeroOrMany, false, true},
		{"", ExactlyOne, true, false},
	}
	for _, tc := range cases {
		var c Cardinality
		require.NoError(t, c.UnmarshalText([]byte(tc.text)), tc.text)
		assert.Equal(t, tc.want, c, tc.text)
		assert.Equal(t, tc.mandatory, c.Mandatory(), tc.text)
		assert.Equal(t, tc.multiple, c.Multiple(), tc.text)
	}

	var c Cardinality
	assert.Error(t, c.UnmarshalText([]byte("2..3")))
	_, err := Cardinality(9).MarshalText()
	assert.Error(t, err)
	text, err := OneOrMany.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1..n", string(text))
}

func TestDescriptorDefaults(t *testing.T) {
	d := Descriptor{}
	assert.Equal(t, "create", d.CreateSymbol())
	assert.Equal(t, "activate", d.ActivateSymbol())
	assert.Equal(t, "deactivate", d.DeactivateSymbol())

	d = Descriptor{Create: "make", Activate: "start", Deactivate: "stop"}
	assert.Equal(t, "make", d.CreateSymbol())
	assert.Equal(t, "start", d.ActivateSymbol())
	assert.Equal(t, "stop", d.DeactivateSymbol())

	r := Reference{Name: "Log"}
	assert.Equal(t, "bindLog", r.BindSymbol())
	assert.Equal(t, "unbindLog", r.UnbindSymbol())
}
