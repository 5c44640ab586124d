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
    `github.com/cockroachdb/errors`
)

const (
    WordBits = 64
)

// Traits describes the universe a family of sets is drawn from. Every
// operation takes the traits object so the representation can size
// itself and validate its operands.
type Traits interface {
    Size() int
    ArrayWordCount() int
    Epoch() int
    Alloc(words int) []uint64
}

// Universe is the standard Traits implementation. Changing the size
// starts a new epoch, which invalidates every set built before.
type Universe struct {
    size  int
    epoch int
}

func NewUniverse(size int) *Universe {
    if size < 0 {
        panic(errors.AssertionFailedf("bitset: negative universe size %d", size))
    }
    return &Universe {
        size  : size,
        epoch : 1,
    }
}

func (self *Universe) Size() int {
    return self.size
}

func (self *Universe) ArrayWordCount() int {
    return wordsFor(self.size)
}

func (self *Universe) Epoch() int {
    return self.epoch
}

func (self *Universe) Alloc(words int) []uint64 {
    return make([]uint64, words)
}

// Resize changes the size of the universe and bumps the epoch.
func (self *Universe) Resize(size int) {
    self.size = size
    self.epoch++
}

func wordsFor(n int) int {
    if n <= 0 {
        return 1
    } else {
        return (n + WordBits - 1) / WordBits
    }
}

func isShort(env Traits) bool {
    return env.ArrayWordCount() <= 1
}

func lastWordMask(size int) uint64 {
    if r := size % WordBits; r == 0 {
        return ^uint64(0)
    } else {
        return (uint64(1) << r) - 1
    }
}

func checkElem(env Traits, e int) {
    if checked && (e < 0 || e >= env.Size()) {
        panic(errors.AssertionFailedf("bitset: element %d outside universe [0, %d)", e, env.Size()))
    }
}
