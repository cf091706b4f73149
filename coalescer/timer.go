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

import (
	"runtime"
	"time"
)

// maxChecksOnSleep is the sample window the timer thread uses to decide
// whether time.Sleep/time.Timer is meeting the configured latency bound
// closely enough to keep using it.
const maxChecksOnSleep = 20

// failureThreshold is 0.5 * maxChecksOnSleep: once half of a sample window
// overshot, the timer thread stops trusting the OS sleep primitive and
// polls elapsed time itself instead, trading CPU for latency.
const failureThreshold = maxChecksOnSleep / 2

// runTimer is the buffer's background flush-on-timeout thread, modeled on
// the backend's run loop: a periodic wait that, on every fire, asks the core
// to flush whatever sync-pending data has accumulated since the last one.
//
// Two independent pieces of adaptation are at work here, and they must stay
// independent: useSleep tracks whether the OS's time.Timer is meeting the
// configured timeout closely enough to trust (a local sampling heuristic,
// unrelated to what's pending in the region), while the spin gate tracks
// whether a sync-pending record is actually waiting on the latency bound
// right now (raised by AddBytes/AddEncoded, lowered by flushLocked). The
// pending-sync flag decides whether a tick flushes; the gate decides whether
// the thread parks between ticks.
func (b *Buffer) runTimer() {
	defer close(b.timerDone)

	timeout := b.cfg.Timeout
	checks := 0
	failures := 0
	useSleep := true

	for {
		elapsed, stopped := b.waitForTick(timeout, useSleep)
		if stopped {
			return
		}

		checks++
		if elapsed > (timeout*3)/2 {
			failures++
			sleepOvershootTotal.Inc()
		}
		if checks >= maxChecksOnSleep {
			useSleep = failures < failureThreshold
			checks = 0
			failures = 0
		}

		b.mu.Lock()
		if b.pendingSync {
			b.flushLocked(false)
		}
		b.mu.Unlock()

		b.gate.acquireYieldRelease()
	}
}

// waitForTick blocks for roughly timeout, or until shutdown. When useSleep
// is true it trusts an ordinary time.Timer; when recent samples show that
// oversleeping past 1.5x the timeout, it instead polls elapsed time itself
// in a tight loop, yielding between checks, to track the bound more
// precisely than the OS scheduler is currently managing.
func (b *Buffer) waitForTick(timeout time.Duration, useSleep bool) (elapsed time.Duration, stopped bool) {
	start := time.Now()

	if useSleep {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-b.stopc:
			return time.Since(start), true
		case <-t.C:
			return time.Since(start), false
		}
	}

	for {
		select {
		case <-b.stopc:
			return time.Since(start), true
		default:
		}
		if time.Since(start) >= timeout {
			return time.Since(start), false
		}
		runtime.Gosched()
	}
}
