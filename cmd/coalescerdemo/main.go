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

// Command coalescerdemo drives a filejournal-backed coalescer.Buffer from a
// handful of concurrent producers so the flush cadence and rate-meter output
// can be observed directly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/flowlog/jwcb/coalescer"
	"github.com/flowlog/jwcb/filejournal"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	lg, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		return 1
	}
	defer lg.Sync()

	cfg := loadConfig()

	backend, err := filejournal.Open(lg, cfg.dir, cfg.segmentSize)
	if err != nil {
		lg.Error("open journal", zap.Error(err))
		return 1
	}
	defer backend.Close()

	buf := coalescer.New(coalescer.Config{
		BufferSize: cfg.bufferSize,
		Timeout:    cfg.timeout,
		LogRates:   true,
		Logger:     lg,
	}, backend)

	if err := buf.Start(); err != nil {
		lg.Error("start buffer", zap.Error(err))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < cfg.producers; i++ {
		wg.Add(1)
		go produce(ctx, &wg, buf, i)
	}

	<-ctx.Done()
	lg.Info("shutting down")
	wg.Wait()

	if err := buf.Stop(); err != nil {
		lg.Error("stop buffer", zap.Error(err))
		return 1
	}
	return 0
}

type demoConfig struct {
	dir         string
	bufferSize  int
	segmentSize int64
	timeout     time.Duration
	producers   int
}

func loadConfig() demoConfig {
	c := demoConfig{
		dir:         "./journal-data",
		bufferSize:  64 * 1024,
		segmentSize: 64 * 1024 * 1024,
		timeout:     50 * time.Millisecond,
		producers:   4,
	}
	if v := os.Getenv("COALESCER_DIR"); v != "" {
		c.dir = v
	}
	if v, err := strconv.Atoi(os.Getenv("COALESCER_BUFFER_SIZE")); err == nil && v > 0 {
		c.bufferSize = v
	}
	if v, err := strconv.ParseInt(os.Getenv("COALESCER_SEGMENT_SIZE"), 10, 64); err == nil && v > 0 {
		c.segmentSize = v
	}
	if v, err := time.ParseDuration(os.Getenv("COALESCER_TIMEOUT")); err == nil && v > 0 {
		c.timeout = v
	}
	if v, err := strconv.Atoi(os.Getenv("COALESCER_PRODUCERS")); err == nil && v > 0 {
		c.producers = v
	}
	return c
}

type noopCallback struct{}

func (noopCallback) Done()                         {}
func (noopCallback) OnError(coalescer.ErrorCode, string) {}

func produce(ctx context.Context, wg *sync.WaitGroup, buf *coalescer.Buffer, id int) {
	defer wg.Done()

	payload := []byte(fmt.Sprintf("producer-%d:hello\n", id))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := buf.CheckSize(len(payload)); err != nil {
			time.Sleep(time.Millisecond)
			continue
		}
		_ = buf.AddBytes(payload, id%8 == 0, noopCallback{})
		time.Sleep(time.Millisecond)
	}
}
