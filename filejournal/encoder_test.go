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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrameSizeRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 7, 8, 9, 15, 16, 4095} {
		lenField, pad := encodeFrameSize(n)
		gotN, gotPad := decodeFrameSize(int64(lenField))
		assert.Equalf(t, n, gotN, "n=%d", n)
		assert.Equalf(t, pad, gotPad, "n=%d", n)
		assert.Zerof(t, (n+pad)%frameAlignment, "n=%d pad=%d not 8-byte aligned", n, pad)
	}
}

func TestEncodeFrameProducesParsableFrame(t *testing.T) {
	payload := []byte("hello world")
	dest := make([]byte, frameSize(len(payload)))

	n, err := encodeFrame(dest, payload)
	require.NoError(t, err)
	assert.Equal(t, len(dest), n)

	lenField := int64(leUint64(dest[0:8]))
	dataLen, pad := decodeFrameSize(lenField)
	assert.Equal(t, len(payload), dataLen)
	assert.Equal(t, payload, dest[8:8+dataLen])
	assert.Zero(t, (dataLen+pad)%frameAlignment)
}

func TestEncodeFrameRejectsUndersizedDestination(t *testing.T) {
	payload := []byte("too big for this buffer")
	dest := make([]byte, 4)
	_, err := encodeFrame(dest, payload)
	assert.Error(t, err)
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
