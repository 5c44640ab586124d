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

package bitset

import (
    `math/bits`
)

// Iter yields the members of a set in ascending order. It is one-shot:
// once NextElem reports false the iterator stays exhausted.
//
// Clearing a bit that was already yielded is the only mutation of the
// underlying set allowed while iterating.
type Iter struct {
    words []uint64
    index int
    cur   uint64
}

func newIter(words []uint64) *Iter {
    it := &Iter{words: words}
    if len(words) != 0 {
        it.cur = words[0]
    }
    return it
}

func (self *Iter) NextElem() (int, bool) {
    for self.index < len(self.words) {
        if self.cur != 0 {
            tz := bits.TrailingZeros64(self.cur)
            self.cur &= self.cur - 1
            return self.index * WordBits + tz, true
        }

        /* advance to the next word */
        if self.index++; self.index < len(self.words) {
            self.cur = self.words[self.index]
        }
    }
    return 0, false
}

// ForEach drains the iterator.
func (self *Iter) ForEach(fn func(elem int)) {
    for e, ok := self.NextElem(); ok; e, ok = self.NextElem() {
        fn(e)
    }
}
