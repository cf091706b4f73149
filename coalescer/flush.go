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

import "time"

// Flush publishes the current region to the backend and resets it, following
// the publish-then-reset sequencing: the region's contents and callback
// queue are handed to the backend before pos and the pending-sync watermark
// are cleared, so a failure inside FlushBuffer can never silently drop a
// record CheckSize/AddBytes believed was already durable.
//
// force=true is used by Stop and by the public Flush call; it bypasses the
// delay-flush skip (there is no concurrent reservation in flight once the
// caller holds the sole right to force a flush) but never bypasses the
// started check, per design: an unstarted buffer rejects every operation
// uniformly, forced or not.
func (b *Buffer) Flush(force bool) error {
	b.pathObserver.Enter(PathFlush)
	defer b.pathObserver.Leave(PathFlush)

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(force)
}

// flushLocked must be called with b.mu held.
func (b *Buffer) flushLocked(force bool) error {
	if !b.started {
		return ErrNotStarted
	}
	if b.region.pos == 0 {
		// Nothing accumulated; unconditional no-op regardless of force, per
		// design: a forced flush on an idle buffer must not turn into a
		// zero-byte write to the backend.
		return nil
	}
	if b.delayFlush && !force {
		// A producer is mid-reservation; the timer thread must not publish
		// a region with a half-written slot.
		return nil
	}

	start := time.Now()

	n := b.region.pos
	buf := b.backend.NewBuffer(n, n)
	copy(buf.Bytes(), b.region.bytes[:n])
	buf.SetValid(n)

	callbacks := b.region.takeCallbacks()
	syncRequested := b.pendingSync

	b.backend.FlushBuffer(buf, syncRequested, callbacks)

	b.region.reset()
	b.pendingSync = false
	b.gate.stopSpin()
	b.refreshBufferLimitLocked()

	flushBytes.Observe(float64(n))
	flushDurationSeconds.Observe(time.Since(start).Seconds())
	if b.rate != nil {
		b.rate.recordFlush(n)
	}

	return nil
}
