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

// Package coalescer implements a latency-bounded write-coalescing buffer
// sitting between journal producers and a block-oriented storage backend.
// Producers admit records through a two-phase CheckSize/AddBytes protocol;
// a background timer thread guarantees every record admitted with sync=true
// is flushed to the backend within a configured bound even if the region
// never fills. Records admitted without sync wait for the region to fill, an
// explicit Flush, a backend swap, or Stop.
package coalescer

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds the construction-time parameters of a Buffer.
type Config struct {
	// BufferSize is the region's fixed capacity in bytes. It must be at
	// least as large as the largest record CheckSize will ever be asked to
	// admit.
	BufferSize int

	// Timeout bounds how long a record admitted with sync=true can wait
	// before the timer thread flushes it. The timer does not flush a region
	// that holds no sync-pending record.
	Timeout time.Duration

	// LogRates enables the periodic throughput logger.
	LogRates bool

	// Logger receives structured logs. A nil Logger falls back to
	// zap.NewNop(), mirroring the backend's nil-logger handling.
	Logger *zap.Logger

	// PathObserver receives critical-path enter/leave notifications. Nil is
	// equivalent to a no-op observer. This is unrelated to the backend
	// observer installed by SetObserver.
	PathObserver PathObserver
}

// DefaultConfig mirrors the shape of DefaultBackendConfig: sane defaults a
// caller can start from and override selectively.
func DefaultConfig() Config {
	return Config{
		BufferSize: 1 << 20, // 1MiB
		Timeout:    100 * time.Millisecond,
		LogRates:   true,
	}
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Buffer is the write-coalescing core. All exported methods are safe for
// concurrent use; a single monitor serializes every public operation,
// including the timer thread's own periodic flush calls.
type Buffer struct {
	mu sync.Mutex

	cfg     Config
	backend Backend
	region  *region
	gate    *spinGate
	rate    *rateMeter

	// bufferLimit is min(cfg.BufferSize, backend.RemainingBytes()) as
	// measured once at the start of the current batch cycle (Start, the
	// cycle following a flush, or a backend swap). It is the ceiling
	// CheckSize admits records against; within a cycle the backend is not
	// queried again unless CheckSize has to flush to make room.
	bufferLimit int

	pathObserver PathObserver

	started     bool
	pendingSync bool // S flag
	delayFlush  bool // D flag

	stopc     chan struct{}
	timerDone chan struct{}

	lg *zap.Logger
}

// New constructs a Buffer bound to backend. The buffer is not usable until
// Start is called.
func New(cfg Config, backend Backend) *Buffer {
	return &Buffer{
		cfg:          cfg,
		backend:      backend,
		region:       newRegion(cfg.BufferSize),
		gate:         newSpinGate(),
		pathObserver: newPathObserver(cfg.PathObserver),
		lg:           cfg.logger(),
	}
}

// refreshBufferLimitLocked re-measures bufferLimit against the current
// backend. Called once per batch cycle: at Start, after a flush resets the
// region, and after a backend swap.
func (b *Buffer) refreshBufferLimitLocked() {
	limit := b.cfg.BufferSize
	if r := b.backend.RemainingBytes(); r < limit {
		limit = r
	}
	b.bufferLimit = limit
}

// Start brings the buffer's background threads up: the timer thread that
// enforces the latency bound, and, if configured, the throughput logger.
// Start is idempotent; calling it on an already-started buffer is a no-op.
func (b *Buffer) Start() error {
	b.pathObserver.Enter(PathStart)
	defer b.pathObserver.Leave(PathStart)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return nil
	}

	b.stopc = make(chan struct{})
	b.timerDone = make(chan struct{})
	b.gate.close()
	b.started = true
	b.refreshBufferLimitLocked()

	go b.runTimer()

	if b.cfg.LogRates {
		b.rate = newRateMeter(b.lg)
		go b.rate.run()
	}

	return nil
}

// Stop forces a final flush of whatever remains in the region, then tears
// down the timer thread and throughput logger. Stop is idempotent.
func (b *Buffer) Stop() error {
	b.pathObserver.Enter(PathStop)
	defer b.pathObserver.Leave(PathStop)

	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	err := b.flushLocked(true)
	b.started = false
	stopc := b.stopc
	b.mu.Unlock()

	close(stopc)
	b.gate.release()
	<-b.timerDone

	if b.rate != nil {
		b.rate.stop()
		b.rate = nil
	}

	return err
}

// SetObserver replaces the backend collaborator: any unflushed region
// contents are flushed to the outgoing backend first, so it never misses a
// FLUSH this call's caller is responsible for, and only then is the new
// backend installed and the buffer's view of available backend space
// re-measured against it. Passing nil installs a backend that is never
// usable again until a further SetObserver call; per the documented
// behavior, any pending data is flushed before the reference is replaced,
// not after.
func (b *Buffer) SetObserver(backend Backend) error {
	b.pathObserver.Enter(PathSetObserver)
	defer b.pathObserver.Leave(PathSetObserver)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return ErrNotStarted
	}
	if err := b.flushLocked(true); err != nil {
		return err
	}
	b.backend = backend
	if backend != nil {
		b.refreshBufferLimitLocked()
	}
	return nil
}

// SetPathObserver installs a new PathObserver for critical-path enter/leave
// notifications. Passing nil installs a no-op observer. This has no effect
// on the backend collaborator installed by SetObserver.
func (b *Buffer) SetPathObserver(o PathObserver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pathObserver = newPathObserver(o)
}
