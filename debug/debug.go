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

package debug

import (
	"sync/atomic"

	"github.com/cloudwego/loopopt/internal/loops"
	"github.com/cloudwego/loopopt/internal/scev"
)

// A Stats records statistics about the loop optimizer.
type Stats struct {
	Loops LoopStats
	Scev  CacheStats
}

// A LoopStats records what the loop passes did.
type LoopStats struct {
	Found    int
	Removed  int
	Hoisted  int
	Inverted int
	Unrolled int
}

// A CacheStats records statistics about the scalar evolution cache.
type CacheStats struct {
	Hit  int
	Miss int
}

// GetStats returns statistics of the loop optimizer.
func GetStats() Stats {
	return Stats{
		Loops: LoopStats{
			Found:    int(atomic.LoadUint64(&loops.FoundCount)),
			Removed:  int(atomic.LoadUint64(&loops.RemovedCount)),
			Hoisted:  int(atomic.LoadUint64(&loops.HoistedCount)),
			Inverted: int(atomic.LoadUint64(&loops.InvertedCount)),
			Unrolled: int(atomic.LoadUint64(&loops.UnrolledCount)),
		},
		Scev: CacheStats{
			Hit:  int(atomic.LoadUint64(&scev.CacheHits)),
			Miss: int(atomic.LoadUint64(&scev.CacheMisses)),
		},
	}
}
