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
	"fmt"
	"unsafe"

	"github.com/bytedance/sonic"
	"github.com/valyala/bytebufferpool"
)

// Payload is a NUL-terminated UTF-8 JSON document passed to the parameterized
// lifecycle symbols. The pointer returned by Ptr stays valid until Release.
type Payload struct {
	buf *bytebufferpool.ByteBuffer
}

// EncodePayload marshals v with sorted map keys into a pooled buffer.
func EncodePayload(v any) (*Payload, error) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	buf := bytebufferpool.Get()
	_, _ = buf.Write(data)
	_ = buf.WriteByte(0)
	return &Payload{buf: buf}, nil
}

// Ptr returns the address of the first byte of the document.
func (p *Payload) Ptr() uintptr {
	return uintptr(unsafe.Pointer(&p.buf.B[0]))
}

// JSON returns the document without the trailing NUL.
func (p *Payload) JSON() []byte {
	return p.buf.B[:len(p.buf.B)-1]
}

// Release returns the buffer to the pool. The native side must not retain Ptr.
func (p *Payload) Release() {
	if p.buf == nil {
		return
	}
	bytebufferpool.Put(p.buf)
	p.buf = nil
}
