/*
 * Copyright 2021 ByteDance Inc.
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

package loopopt

import (
    `fmt`

    `github.com/cockroachdb/errors`
)

// ErrInvariant marks errors caused by a broken internal invariant. The
// method being optimized is abandoned when this happens.
var ErrInvariant = errors.New("loopopt: internal invariant violated")

// FixtureError occures when a fixture cannot be read or does not
// describe a valid method.
type FixtureError struct {
    Path   string
    Reason string
}

func (self FixtureError) Error() string {
    if self.Path != "" {
        return fmt.Sprintf("FixtureError(%s): %s", self.Path, self.Reason)
    } else {
        return fmt.Sprintf("FixtureError: %s", self.Reason)
    }
}

// ConfigError occures when an option is set to a value out of range.
type ConfigError struct {
    Key   string
    Value string
}

func (self ConfigError) Error() string {
    return fmt.Sprintf("ConfigError: invalid value for %s: %s", self.Key, self.Value)
}

// invariantError converts a recovered assertion failure. Other panics
// are not ours and keep unwinding.
func invariantError(v interface{}) error {
    if err, ok := v.(error); ok && errors.HasAssertionFailure(err) {
        return errors.Mark(err, ErrInvariant)
    } else {
        panic(v)
    }
}
