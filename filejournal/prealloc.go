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

import "os"

// fileutilPreallocate reserves size bytes for f. The real fileutil package
// this mirrors dispatches to fallocate/posix_fallocate on platforms that
// support it; this is the portable fallback it also falls back to, a plain
// truncate, kept dependency-free since no vendored fileutil package is
// available to this module.
func fileutilPreallocate(f *os.File, size int64) error {
	return f.Truncate(size)
}
