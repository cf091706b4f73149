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

// Named critical paths the core brackets every public operation with. These
// drive an external liveness watchdog; if no PathObserver is attached, the
// hooks are no-ops.
const (
	PathFlush       = "FLUSH"
	PathStart       = "START"
	PathStop        = "STOP"
	PathCheckSize   = "CHECK_SIZE"
	PathAddBytes    = "ADD_BYTES"
	PathSetObserver = "SET_OBSERVER"
)

// PathObserver receives enter/leave notifications for the named paths above.
// It is consumed by an external critical-path liveness analyzer and is
// otherwise inert.
type PathObserver interface {
	Enter(path string)
	Leave(path string)
}

type noopPathObserver struct{}

func (noopPathObserver) Enter(string) {}
func (noopPathObserver) Leave(string) {}

func newPathObserver(o PathObserver) PathObserver {
	if o == nil {
		return noopPathObserver{}
	}
	return o
}
