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

// Package filejournal is a reference coalescer.Backend: a segmented,
// CRC-framed append-only journal on the local filesystem, built the way
// server/wal lays out its own segment files.
package filejournal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const segmentSuffix = ".jrnl"

// segmentName formats a segment's on-disk file name from its sequence
// number, mirroring wal.go's zero-padded hex segment naming.
func segmentName(seq uint64) string {
	return fmt.Sprintf("%016x%s", seq, segmentSuffix)
}

// parseSegmentName recovers the sequence number encoded in a segment's file
// name, or ok=false if name is not a segment file.
func parseSegmentName(name string) (seq uint64, ok bool) {
	if !strings.HasSuffix(name, segmentSuffix) {
		return 0, false
	}
	base := strings.TrimSuffix(name, segmentSuffix)
	n, err := strconv.ParseUint(base, 16, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// existingSegments lists segment sequence numbers already present in dir, in
// ascending order.
func existingSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var seqs []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if seq, ok := parseSegmentName(e.Name()); ok {
			seqs = append(seqs, seq)
		}
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

func segmentPath(dir string, seq uint64) string {
	return filepath.Join(dir, segmentName(seq))
}
