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

package filejournal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// segmentPipeline keeps one preallocated, unclaimed segment file ready in
// the background so segment rotation never blocks a flush on a fresh file's
// allocation, the same handoff file_pipeline.go performs for WAL segments.
type segmentPipeline struct {
	lg *zap.Logger

	dir      string
	fileSize int64
	seq      uint64

	filec chan *os.File
	errc  chan error
	donec chan struct{}
}

func newSegmentPipeline(lg *zap.Logger, dir string, fileSize int64, startSeq uint64) *segmentPipeline {
	p := &segmentPipeline{
		lg:       lg,
		dir:      dir,
		fileSize: fileSize,
		seq:      startSeq,
		filec:    make(chan *os.File),
		errc:     make(chan error, 1),
		donec:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Open returns a ready-to-use preallocated segment file and its sequence
// number, or the error that occurred trying to prepare one.
func (p *segmentPipeline) Open() (*os.File, uint64, error) {
	select {
	case f := <-p.filec:
		// run may already be advancing p.seq for the next file, so the
		// sequence number is read back from this file's own name.
		seq, ok := parseSegmentName(strings.TrimSuffix(filepath.Base(f.Name()), ".tmp"))
		if !ok {
			f.Close()
			return nil, 0, fmt.Errorf("filejournal: unexpected segment file name %q", f.Name())
		}
		return f, seq, nil
	case err := <-p.errc:
		return nil, 0, err
	}
}

func (p *segmentPipeline) Close() error {
	close(p.donec)
	return <-p.errc
}

func (p *segmentPipeline) alloc() (*os.File, error) {
	path := segmentPath(p.dir, p.seq)
	tmpPath := path + ".tmp"
	p.seq++

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("filejournal: create temp segment: %w", err)
	}
	if err = fileutilPreallocate(f, p.fileSize); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("filejournal: preallocate segment: %w", err)
	}
	return f, nil
}

func (p *segmentPipeline) run() {
	defer close(p.errc)

	for {
		f, err := p.alloc()
		if err != nil {
			p.errc <- err
			return
		}
		select {
		case p.filec <- f:
		case <-p.donec:
			f.Close()
			os.Remove(f.Name())
			return
		}
	}
}
