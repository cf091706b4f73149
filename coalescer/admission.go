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

// CheckSize is phase one of the two-phase admission protocol. A producer
// calls it with the exact encoded length of the record it intends to write,
// before it has done any of the (possibly expensive) encoding work. A nil
// return means the region has room reserved for n bytes and the producer
// must follow up with AddBytes (or AddEncoded) for this record before any
// other admission call; the monitor is released between the two calls. On
// error, no reservation was made and the producer must not call AddBytes
// for this record.
//
// The admission ceiling for the current batch cycle, bufferLimit, is
// measured once against the backend when the cycle begins, not on every
// call: a flush triggered here to make room re-measures it for the cycle
// that follows, but a CheckSize that doesn't need to flush trusts the
// cached ceiling rather than re-querying the backend.
//
// Between a successful CheckSize and its matching AddBytes the buffer raises
// its delay-flush flag so the timer thread will not flush out from under a
// half-reserved slot.
func (b *Buffer) CheckSize(n int) error {
	b.pathObserver.Enter(PathCheckSize)
	defer b.pathObserver.Leave(PathCheckSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return ErrNotStarted
	}
	if n > b.cfg.BufferSize {
		return ErrRecordTooLarge
	}

	if b.region.remaining(b.bufferLimit) < n {
		if err := b.flushLocked(false); err != nil {
			return err
		}
		if b.backend != nil {
			b.refreshBufferLimitLocked()
		}
	}

	if n > b.bufferLimit {
		backendFullTotal.Inc()
		return ErrBackendFull
	}

	b.delayFlush = true
	return nil
}

// AddBytes is phase two of the admission protocol: it commits a record whose
// size was already reserved by CheckSize. payload is copied into the region
// at the current write cursor; callback is queued and will be notified once
// the backend completes (or fails) the flush that eventually carries this
// record. sync marks the batch as durability-sensitive: once any record in
// the current region carries sync=true, the whole batch is flushed with
// syncRequested set, per the pending-sync watermark described in the design
// notes. Setting the watermark also opens the spin gate, so the timer
// thread notices there is now a sync-pending record waiting on the latency
// bound instead of idling past it.
//
// AddBytes always clears the delay-flush flag raised by the preceding
// CheckSize, whether or not the region happens to be full afterward.
func (b *Buffer) AddBytes(payload []byte, sync bool, callback Callback) error {
	b.pathObserver.Enter(PathAddBytes)
	defer b.pathObserver.Leave(PathAddBytes)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return ErrNotStarted
	}

	b.region.append(payload)
	b.region.pushCallback(callback)
	if sync {
		b.pendingSync = true
		b.gate.startSpin()
	}
	b.delayFlush = false

	if b.region.remaining(b.bufferLimit) == 0 {
		return b.flushLocked(false)
	}
	return nil
}

// AddEncoded is the zero-copy counterpart to AddBytes: instead of handing a
// pre-built payload to be copied, enc is invoked against the region's
// destination directly at the reserved write cursor. n must equal the exact
// length reserved by the preceding CheckSize call. Otherwise it has the same
// contract as AddBytes, including the pending-sync watermark and spin-gate
// handling.
func (b *Buffer) AddEncoded(n int, enc Encoder, sync bool, callback Callback) error {
	b.pathObserver.Enter(PathAddBytes)
	defer b.pathObserver.Leave(PathAddBytes)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return ErrNotStarted
	}

	if err := b.region.appendEncoded(enc, n); err != nil {
		return err
	}
	b.region.pushCallback(callback)
	if sync {
		b.pendingSync = true
		b.gate.startSpin()
	}
	b.delayFlush = false

	if b.region.remaining(b.bufferLimit) == 0 {
		return b.flushLocked(false)
	}
	return nil
}
