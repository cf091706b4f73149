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

import "errors"

// ErrorCode classifies a backend-reported failure handed to a Callback's
// OnError. The core never produces these itself; it only forwards what the
// backend gives it.
type ErrorCode int

const (
	// ErrCodeUnknown is used when the backend does not classify the failure.
	ErrCodeUnknown ErrorCode = iota
	ErrCodeIO
	ErrCodeClosed
)

var (
	// ErrNotStarted is returned by every public operation other than Start
	// and Stop when invoked before Start or after Stop.
	ErrNotStarted = errors.New("coalescer: not started")

	// ErrRecordTooLarge is returned by CheckSize when n exceeds the
	// configured buffer capacity. The caller must not retry.
	ErrRecordTooLarge = errors.New("coalescer: record larger than buffer capacity")

	// ErrBackendFull is returned by CheckSize when the backend cannot fit
	// n more bytes in its currently open file. The caller must roll the
	// backend to a new file and retry.
	ErrBackendFull = errors.New("coalescer: backend has insufficient remaining space")

	// ErrInterrupted is reserved for an interruption observed while
	// acquiring the spin gate or joining the timer thread. No operation in
	// this package returns it: both waits run to completion.
	ErrInterrupted = errors.New("coalescer: interrupted waiting on timer shutdown")
)
