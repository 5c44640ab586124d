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

package opts

import (
	"os"
	"strconv"
)

const (
	_DefaultMaxLoops        = 16  // size of the loop table
	_DefaultUnrollIterLimit = 10  // iterations for fully unrolled loops
	_DefaultUnrollSizeLimit = 30  // code growth allowed by full unrolling
	_DefaultInvertDupBudget = 32  // size of a loop test worth duplicating
	_DefaultAlignWeight     = 400 // 4 times the weight of a block run once
	_DefaultScevMaxDepth    = 64
	_DefaultScevCacheSize   = 4096
)

var (
	MaxLoops        = parseOrDefault("LOOPOPT_MAX_LOOPS", _DefaultMaxLoops, 0)
	UnrollIterLimit = parseOrDefault("LOOPOPT_UNROLL_ITER_LIMIT", _DefaultUnrollIterLimit, 0)
	UnrollSizeLimit = parseOrDefault("LOOPOPT_UNROLL_SIZE_LIMIT", _DefaultUnrollSizeLimit, 0)
	InvertDupBudget = parseOrDefault("LOOPOPT_INVERT_DUP_BUDGET", _DefaultInvertDupBudget, 0)
	AlignWeight     = parseOrDefault("LOOPOPT_ALIGN_WEIGHT", _DefaultAlignWeight, 0)
	ScevMaxDepth    = parseOrDefault("LOOPOPT_SCEV_MAX_DEPTH", _DefaultScevMaxDepth, 1)
	ScevCacheSize   = parseOrDefault("LOOPOPT_SCEV_CACHE_SIZE", _DefaultScevCacheSize, 1)
)

var (
	Stress = parseOrDefault("LOOPOPT_STRESS", 0, -1) != 0
	Trace  = parseOrDefault("LOOPOPT_TRACE", 0, -1) != 0
)

func parseOrDefault(key string, def int, min int) int {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
		panic("loopopt: invalid value for " + key)
	} else if ret := int(val); ret <= min {
		panic("loopopt: value too small for " + key)
	} else {
		return ret
	}
}
