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

package filejournal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/flowlog/jwcb/coalescer"
)

// warnSyncDuration mirrors wal.go's threshold for logging a slow fsync.
const warnSyncDuration = time.Second

// Backend is a segmented, CRC32C-framed append-only journal satisfying
// coalescer.Backend. Each flushed batch is written as one frame; producers
// that need sub-record boundaries within a batch are responsible for their
// own self-delimiting encoding, the same way wal.go's Save writes a
// contiguous run of frames without the WAL itself knowing about entry
// semantics.
type Backend struct {
	lg *zap.Logger

	dir         string
	segmentSize int64

	pipeline *segmentPipeline

	mu     sync.Mutex
	f      *os.File
	seq    uint64
	offset int64
}

// Open opens dir, continuing the segment sequence after whatever is already
// present, and always starts a fresh segment. segmentSize bounds how large a
// single segment file is allowed to grow before rotation.
func Open(lg *zap.Logger, dir string, segmentSize int64) (*Backend, error) {
	if lg == nil {
		lg = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("filejournal: mkdir: %w", err)
	}

	seqs, err := existingSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("filejournal: list segments: %w", err)
	}

	b := &Backend{lg: lg, dir: dir, segmentSize: segmentSize}

	// Segments are sealed on rotation; resuming mid-segment would require
	// scanning the tail for the last valid frame the way decoder.go does.
	// This reference backend always starts a fresh segment instead, the
	// simpler choice for a demo-grade implementation.
	var nextSeq uint64
	if len(seqs) > 0 {
		nextSeq = seqs[len(seqs)-1] + 1
	}

	b.pipeline = newSegmentPipeline(lg, dir, segmentSize, nextSeq)

	if err := b.rotate(); err != nil {
		return nil, err
	}

	return b, nil
}

// RemainingBytes reports how many more bytes fit in the currently open
// segment before rotation is needed.
func (b *Backend) RemainingBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.segmentSize - b.offset
	if r < 0 {
		return 0
	}
	if r > int64(int(^uint(0)>>1)) {
		return int(^uint(0) >> 1)
	}
	return int(r)
}

// fileBuf reserves the frame header and CRC trailer around the payload
// region the core copies raw batch bytes into, so FlushBuffer can complete
// the frame without a second copy.
type fileBuf struct {
	frame   []byte
	payload []byte
	valid   int
}

func (fb *fileBuf) Bytes() []byte  { return fb.payload }
func (fb *fileBuf) SetValid(n int) { fb.valid = n }

// NewBuffer allocates a frame-sized buffer whose payload window has room for
// minCapacity bytes.
func (b *Backend) NewBuffer(minCapacity, requestedLength int) coalescer.Buf {
	total := frameSize(minCapacity)
	frame := make([]byte, total)
	return &fileBuf{frame: frame, payload: frame[8 : 8+minCapacity]}
}

// FlushBuffer completes the frame around buf's valid payload, rotating to a
// fresh segment first if it would not fit, writes it, optionally fsyncs, and
// notifies every callback.
func (b *Backend) FlushBuffer(buf coalescer.Buf, syncRequested bool, callbacks []coalescer.Callback) {
	fb, ok := buf.(*fileBuf)
	if !ok {
		notifyAll(callbacks, fmt.Errorf("filejournal: foreign buffer type %T", buf))
		return
	}

	n := fb.valid
	padBytes := (frameAlignment - (n % frameAlignment)) % frameAlignment
	total := 8 + n + padBytes + 4
	frame := fb.frame[:total]

	lenField, _ := encodeFrameSize(n)
	binary.LittleEndian.PutUint64(frame[0:8], lenField)
	for i := 0; i < padBytes; i++ {
		frame[8+n+i] = 0
	}
	crc := crc32.Checksum(frame[8:8+n+padBytes], crcTable)
	binary.LittleEndian.PutUint32(frame[8+n+padBytes:total], crc)

	b.mu.Lock()
	if b.offset+int64(total) > b.segmentSize {
		if err := b.rotateLocked(); err != nil {
			b.mu.Unlock()
			notifyAll(callbacks, err)
			return
		}
	}

	_, err := b.f.Write(frame)
	if err == nil {
		b.offset += int64(total)
		if syncRequested {
			start := time.Now()
			err = b.f.Sync()
			if d := time.Since(start); d > warnSyncDuration {
				b.lg.Warn("slow fsync", zap.Duration("took", d))
			}
		}
	}
	b.mu.Unlock()

	if err != nil {
		notifyAll(callbacks, err)
		return
	}
	b.lg.Debug("flushed batch", zap.String("size", humanize.Bytes(uint64(total))))
	notifyAll(callbacks, nil)
}

func notifyAll(callbacks []coalescer.Callback, err error) {
	for _, cb := range callbacks {
		if err != nil {
			cb.OnError(coalescer.ErrCodeIO, err.Error())
			continue
		}
		cb.Done()
	}
}

// rotateLocked must be called with b.mu held.
func (b *Backend) rotateLocked() error {
	if b.f != nil {
		if err := b.f.Close(); err != nil {
			return fmt.Errorf("filejournal: close segment: %w", err)
		}
	}
	f, seq, err := b.pipeline.Open()
	if err != nil {
		return fmt.Errorf("filejournal: open next segment: %w", err)
	}
	finalPath := segmentPath(b.dir, seq)
	if err := os.Rename(f.Name(), finalPath); err != nil {
		f.Close()
		return fmt.Errorf("filejournal: rename segment: %w", err)
	}
	b.f = f
	b.seq = seq
	b.offset = 0
	return nil
}

func (b *Backend) rotate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rotateLocked()
}

// Close releases the background segment pipeline and the currently open
// segment file.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f != nil {
		if err := b.f.Close(); err != nil {
			return err
		}
	}
	return b.pipeline.Close()
}
