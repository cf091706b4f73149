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
)

// frameAlignment is the byte boundary every frame is padded out to, matching
// encoder.go's 8-byte aligned frame sizing so torn-write detection can rely
// on sector-boundary zero runs.
const frameAlignment = 8

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// encodeFrameSize packs a payload length and its padding count into the
// 8-byte length prefix written ahead of every frame: the low 56 bits hold the
// unpadded payload length, and, when padding is present, the top byte holds
// 0x80 plus how many padding bytes were appended, mirroring wal's
// encodeFrameSize/decodeFrameSize pair.
func encodeFrameSize(dataBytes int) (lenField uint64, padBytes int) {
	padBytes = (frameAlignment - (dataBytes % frameAlignment)) % frameAlignment
	lenField = uint64(dataBytes)
	if padBytes != 0 {
		lenField |= uint64(0x80|padBytes) << 56
	}
	return lenField, padBytes
}

func decodeFrameSize(lenField int64) (dataBytes, padBytes int) {
	if lenField < 0 {
		dataBytes = int(lenField & 0xff_ffff_ffff_ffff)
		padBytes = int((lenField >> 56) & 0x7f)
		return dataBytes, padBytes
	}
	return int(lenField), 0
}

// frameSize returns the total on-disk size, including the 8-byte length
// prefix, CRC, and alignment padding, of a record payload of n bytes.
func frameSize(n int) int {
	_, pad := encodeFrameSize(n)
	return 8 + n + pad + 4
}

// encodeFrame writes a complete length-prefixed, CRC-checked, 8-byte-aligned
// frame for payload into dest, returning the number of bytes written.
// len(dest) must be at least frameSize(len(payload)).
func encodeFrame(dest []byte, payload []byte) (int, error) {
	n := len(payload)
	want := frameSize(n)
	if len(dest) < want {
		return 0, fmt.Errorf("filejournal: destination too small: have %d want %d", len(dest), want)
	}

	lenField, padBytes := encodeFrameSize(n)
	binary.LittleEndian.PutUint64(dest[0:8], lenField)

	off := 8
	off += copy(dest[off:], payload)
	for i := 0; i < padBytes; i++ {
		dest[off+i] = 0
	}
	off += padBytes

	crc := crc32.Checksum(dest[8:off], crcTable)
	binary.LittleEndian.PutUint32(dest[off:off+4], crc)
	off += 4

	return off, nil
}
