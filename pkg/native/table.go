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

import (
	"strconv"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// InstanceID is the tagged handle of a native object constructed through a Handle.
// The native pointer itself never leaves the handle's side table.
type InstanceID uint64

func (id InstanceID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

type instanceTable struct {
	next atomic.Uint64
	ptrs cmap.ConcurrentMap[string, uintptr]
}

func newInstanceTable() *instanceTable {
	return &instanceTable{ptrs: cmap.New[uintptr]()}
}

func (t *instanceTable) put(ptr uintptr) InstanceID {
	id := InstanceID(t.next.Add(1))
	t.ptrs.Set(id.String(), ptr)
	return id
}

func (t *instanceTable) get(id InstanceID) (uintptr, bool) {
	return t.ptrs.Get(id.String())
}

func (t *instanceTable) remove(id InstanceID) bool {
	_, ok := t.ptrs.Pop(id.String())
	return ok
}

func (t *instanceTable) count() int {
	return t.ptrs.Count()
}
