// Copyright 2025 The Burrow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sessionpool

import (
	"fmt"
	"log/slog"
)

// invariant aborts on a violated precondition. The pool's failure
// policy is abort: a caller that hands back a busy session, or a
// counter gone negative, indicates corruption with no safe local
// recovery.
func invariant(cond bool, format string, args ...any) {
	if cond {
		return
	}
	msg := fmt.Sprintf(format, args...)
	slog.Error("session pool invariant violated", "detail", msg)
	panic("sessionpool: " + msg)
}

// fatalOnErr aborts on an engine call that must not fail. A failing
// cursor reset or session close implies engine-wide corruption.
func fatalOnErr(op string, err error) {
	if err == nil {
		return
	}
	slog.Error("storage engine call failed", "op", op, "err", err)
	panic(fmt.Sprintf("sessionpool: engine %s failed: %v", op, err))
}
