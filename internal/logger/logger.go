/*
 * Copyright 2022 CloudWeGo Authors
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

package logger

import (
    `go.uber.org/zap`
)

// Logger is a sugared zap logger tagged with the module it belongs to.
type Logger struct {
    *zap.SugaredLogger
    module string
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
    return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Module returns the module name of the logger.
func (self *Logger) Module() string {
    return self.module
}

// Named returns a child logger for a module. Its entries carry the
// module name.
func (self *Logger) Named(module string) *Logger {
    return &Logger {
        module        : module,
        SugaredLogger : self.SugaredLogger.Named(module),
    }
}

// Enabled reports whether debug entries are written, so callers can
// skip building expensive fields.
func (self *Logger) Enabled() bool {
    return self.Desugar().Core().Enabled(zap.DebugLevel)
}
