// Copyright 2016 The etcd Authors
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

// spinGate is a single-permit parking primitive, not a counting semaphore
// (spec §9 is explicit about that distinction). Closed means the permit is
// held by the core, so the timer thread's acquire blocks and it idles.
// Open means the permit has been released, so the timer thread's acquire is
// a cheap non-blocking drain, keeping it hot for a timed flush.
//
// Built from a size-1 buffered channel, mirroring the single-slot
// producer/consumer handoff in file_pipeline.go's filec/donec channels,
// generalized from "hand off a fresh file" to "hand off a permit".
type spinGate struct {
	permit chan struct{}
	// spinning tracks whether the gate is currently open, so startSpin and
	// stopSpin are idempotent and never double-release or double-acquire
	// the channel.
	spinning bool
}

func newSpinGate() *spinGate {
	return &spinGate{permit: make(chan struct{}, 1)}
}

// close acquires the permit, parking the timer thread's next acquire.
// Called once at Start() and again by stopSpin after each flush.
func (g *spinGate) close() {
	select {
	case g.permit <- struct{}{}:
	default:
	}
}

// startSpin opens the gate if it is not already open.
func (g *spinGate) startSpin() {
	if g.spinning {
		return
	}
	g.spinning = true
	select {
	case <-g.permit:
	default:
	}
}

// stopSpin closes the gate if it is not already closed.
func (g *spinGate) stopSpin() {
	if !g.spinning {
		return
	}
	g.spinning = false
	g.close()
}

// acquireYieldRelease is the timer thread's per-iteration step: block until
// the permit is available (gate closed = park; gate open = immediate), then
// put it straight back so a concurrent stopSpin/close observes a consistent
// single-permit gate.
func (g *spinGate) acquireYieldRelease() {
	g.permit <- struct{}{}
	<-g.permit
}

// release is used by stop() to ensure the timer thread is not parked
// forever once shutdown has been signalled.
func (g *spinGate) release() {
	select {
	case <-g.permit:
	default:
	}
}
