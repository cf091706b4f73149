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
	"sync/atomic"
	"time"

	humanize "github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// rateMeterPeriod is how often the rate meter logs a throughput line.
const rateMeterPeriod = 2 * time.Second

// rateMeter accumulates bytes and flush counts between periodic reports and
// logs a human-readable rate line, the way the backend logs slow fsync/defrag
// durations: quiet unless there's something worth telling an operator.
type rateMeter struct {
	lg *zap.Logger

	bytes   int64
	flushes int64

	stopc chan struct{}
	donec chan struct{}
}

func newRateMeter(lg *zap.Logger) *rateMeter {
	return &rateMeter{
		lg:    lg,
		stopc: make(chan struct{}),
		donec: make(chan struct{}),
	}
}

func (m *rateMeter) recordFlush(n int) {
	atomic.AddInt64(&m.bytes, int64(n))
	atomic.AddInt64(&m.flushes, 1)
}

func (m *rateMeter) run() {
	defer close(m.donec)

	t := time.NewTicker(rateMeterPeriod)
	defer t.Stop()

	for {
		select {
		case <-m.stopc:
			return
		case <-t.C:
			bytes := atomic.SwapInt64(&m.bytes, 0)
			flushes := atomic.SwapInt64(&m.flushes, 0)
			if flushes == 0 {
				continue
			}
			secs := rateMeterPeriod.Seconds()
			m.lg.Info(
				"coalescer throughput",
				zap.String("bytes-per-sec", humanize.Bytes(uint64(float64(bytes)/secs))),
				zap.Float64("flushes-per-sec", float64(flushes)/secs),
			)
		}
	}
}

func (m *rateMeter) stop() {
	close(m.stopc)
	<-m.donec
}
