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
    `fmt`

    `github.com/cockroachdb/errors`
)

// ShortOps stores a set directly in one machine word. The universe must
// not exceed WordBits elements.
type ShortOps struct{}

var Short Ops[uint64] = ShortOps{}

func (ShortOps) check(env Traits) {
    if checked && env.Size() > WordBits {
        panic(errors.AssertionFailedf("bitset: universe of %d does not fit a word", env.Size()))
    }
}

func (ShortOps) UninitVal() uint64            { return 0 }
func (ShortOps) MayBeUninit(s uint64) bool    { return s == 0 }
func (ShortOps) MakeEmpty(env Traits) uint64  { return 0 }

func (self ShortOps) MakeFull(env Traits) uint64 {
    self.check(env)
    if env.Size() == 0 {
        return 0
    } else {
        return lastWordMask(env.Size())
    }
}

func (self ShortOps) MakeSingleton(env Traits, elem int) uint64 {
    self.check(env)
    checkElem(env, elem)
    return uint64(1) << uint(elem)
}

func (ShortOps) MakeCopy(env Traits, s uint64) uint64 {
    return s
}

func (ShortOps) Assign(env Traits, lhs *uint64, rhs uint64) {
    *lhs = rhs
}

func (ShortOps) AssignNoCopy(env Traits, lhs *uint64, rhs uint64) {
    *lhs = rhs
}

func (ShortOps) ClearD(env Traits, s *uint64) {
    *s = 0
}

func (ShortOps) AddElemD(env Traits, s *uint64, elem int) {
    checkElem(env, elem)
    *s |= uint64(1) << uint(elem)
}

func (ShortOps) AddElem(env Traits, s uint64, elem int) uint64 {
    checkElem(env, elem)
    return s | uint64(1) << uint(elem)
}

func (ShortOps) RemoveElemD(env Traits, s *uint64, elem int) {
    checkElem(env, elem)
    *s &^= uint64(1) << uint(elem)
}

func (ShortOps) RemoveElem(env Traits, s uint64, elem int) uint64 {
    checkElem(env, elem)
    return s &^ (uint64(1) << uint(elem))
}

func (ShortOps) IsMember(env Traits, s uint64, elem int) bool {
    checkElem(env, elem)
    return s & (uint64(1) << uint(elem)) != 0
}

func (ShortOps) IsEmpty(env Traits, s uint64) bool {
    return s == 0
}

func (ShortOps) Count(env Traits, s uint64) int {
    return countWord(env, s)
}

func (ShortOps) UnionD(env Traits, a *uint64, b uint64)                { *a |= b }
func (ShortOps) Union(env Traits, a uint64, b uint64) uint64           { return a | b }
func (ShortOps) IntersectionD(env Traits, a *uint64, b uint64)         { *a &= b }
func (ShortOps) Intersection(env Traits, a uint64, b uint64) uint64    { return a & b }
func (ShortOps) DiffD(env Traits, a *uint64, b uint64)                 { *a &^= b }
func (ShortOps) Diff(env Traits, a uint64, b uint64) uint64            { return a &^ b }
func (ShortOps) IsSubset(env Traits, a uint64, b uint64) bool          { return a & b == a }
func (ShortOps) Equal(env Traits, a uint64, b uint64) bool             { return a == b }
func (ShortOps) IsEmptyIntersection(env Traits, a uint64, b uint64) bool { return a & b == 0 }

func (ShortOps) LivenessD(env Traits, in *uint64, def uint64, use uint64, out uint64) {
    *in = use | (out &^ def)
}

func (ShortOps) DataFlowD(env Traits, out *uint64, gen uint64, in uint64) {
    *out &= gen | in
}

func (ShortOps) Iter(env Traits, s uint64) *Iter {
    return newIter([]uint64{s})
}

func (ShortOps) ToString(env Traits, s uint64) string {
    return fmt.Sprintf("%016X", s)
}
