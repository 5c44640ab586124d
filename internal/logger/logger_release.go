//go:build !loopopt_debug
// +build !loopopt_debug

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
    `log`

    `go.uber.org/zap`
)

// New returns a production logger. Debug entries are only written when
// trace is set.
func New(trace bool) *Logger {
    return NewFile(trace)
}

// NewFile returns a production logger that also writes to files.
func NewFile(trace bool, files ...string) *Logger {
    cfg := zap.NewProductionConfig()
    cfg.OutputPaths = append(cfg.OutputPaths, files...)

    /* tracing needs the debug level */
    if trace {
        cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
    }

    /* build the logger */
    l, err := cfg.Build()
    if err != nil {
        log.Fatal("loopopt: cannot create logger: ", err)
    }
    return &Logger{SugaredLogger: l.Sugar()}
}
