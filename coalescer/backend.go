// Copyright 2015 The etcd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package coalescer

// Buf is the destination handed back by Backend.NewBuffer: a byte-addressable
// region the core fills with the accumulated batch before it is valid-range
// truncated and handed to FlushBuffer.
type Buf interface {
	// Bytes returns the full backing slice; len(Bytes()) >= the capacity
	// requested from NewBuffer.
	Bytes() []byte
	// SetValid truncates the buffer's logical valid range to n bytes.
	SetValid(n int)
}

// Backend is the external collaborator that owns the underlying file and
// performs the actual I/O and durability. The core never mutates backend
// state except through this interface, and never blocks on I/O completion:
// FlushBuffer must enqueue the write and return promptly.
type Backend interface {
	// RemainingBytes reports how many more bytes fit in the currently open
	// underlying file. Called under the core's monitor; must be cheap and
	// non-blocking.
	RemainingBytes() int

	// NewBuffer supplies a destination buffer (possibly pooled) whose
	// capacity is at least minCapacity. The caller sets its valid range to
	// requestedLength after filling it.
	NewBuffer(minCapacity, requestedLength int) Buf

	// FlushBuffer accepts a filled buffer for I/O. It takes ownership of
	// callbacks and must notify each handle on completion or failure. It
	// must return promptly and must never call back into the core
	// synchronously.
	FlushBuffer(buf Buf, syncRequested bool, callbacks []Callback)
}

// Callback is the opaque per-record completion handle a producer supplies to
// AddBytes. The core never invokes it directly; only the backend does, after
// FlushBuffer has taken ownership of the callback slice.
type Callback interface {
	Done()
	OnError(code ErrorCode, message string)
}

// Encoder is the zero-copy admission path counterpart to a pre-encoded byte
// slice: it writes exactly the pre-declared number of bytes at the
// destination's write cursor, avoiding a staging copy.
type Encoder interface {
	Encode(dest []byte) error
}
