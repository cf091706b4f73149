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

// region is the fixed-capacity staging area described in spec §3/§4.1. All
// mutations happen under the owning Buffer's monitor. bytes[0:pos] is the
// bytes accumulated since the previous flush; callbacks is the parallel,
// ordered queue of completion handles, one per record written into bytes.
//
// The region is allocated once at construction and reused for the life of
// the Buffer; reset() never reallocates bytes, only rewinds pos and swaps in
// a fresh callbacks slice (the old one is now owned by the backend).
type region struct {
	bytes     []byte
	pos       int
	callbacks []Callback
}

func newRegion(capacity int) *region {
	return &region{bytes: make([]byte, capacity)}
}

func (r *region) remaining(limit int) int {
	return limit - r.pos
}

func (r *region) append(payload []byte) {
	n := copy(r.bytes[r.pos:], payload)
	r.pos += n
}

// appendEncoded invokes enc against the region's write cursor directly,
// avoiding the staging copy append() requires. n is the pre-declared exact
// size the encoder must write.
func (r *region) appendEncoded(enc Encoder, n int) error {
	if err := enc.Encode(r.bytes[r.pos : r.pos+n]); err != nil {
		return err
	}
	r.pos += n
	return nil
}

func (r *region) pushCallback(cb Callback) {
	r.callbacks = append(r.callbacks, cb)
}

// takeCallbacks hands ownership of the current callback queue to the caller
// (the flush engine, on its way to the backend) and installs a fresh, empty
// queue in its place.
func (r *region) takeCallbacks() []Callback {
	taken := r.callbacks
	r.callbacks = nil
	return taken
}

func (r *region) reset() {
	r.pos = 0
	r.callbacks = nil
}
