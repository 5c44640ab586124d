/*
 * Copyright 2022 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ir

import (
    `github.com/cockroachdb/errors`
)

// Assertf builds the error an internal invariant violation panics with.
func Assertf(format string, args ...interface{}) error {
    return errors.AssertionFailedf(format, args...)
}

// Assert panics when cond is false. It only checks in debug builds.
func Assert(cond bool, format string, args ...interface{}) {
    if Checked && !cond {
        panic(Assertf(format, args...))
    }
}
