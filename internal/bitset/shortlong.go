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
    `strings`

    `github.com/cockroachdb/errors`
)

// ShortLong holds either a single inline word, when the universe fits
// in one, or a heap-allocated word array. The zero value of the long
// form is the uninitialized sentinel.
type ShortLong struct {
    word [1]uint64
    long []uint64
}

// ShortLongOps picks the inline or array form from the universe size.
type ShortLongOps struct{}

var Sets Ops[ShortLong] = ShortLongOps{}

func (ShortLongOps) words(env Traits, s *ShortLong) []uint64 {
    if isShort(env) {
        return s.word[:]
    }

    /* long form, must be materialized */
    if checked && len(s.long) != env.ArrayWordCount() {
        panic(errors.AssertionFailedf("bitset: long set has %d words, universe needs %d", len(s.long), env.ArrayWordCount()))
    }
    return s.long
}

func (ShortLongOps) UninitVal() ShortLong {
    return ShortLong{}
}

func (ShortLongOps) MayBeUninit(s ShortLong) bool {
    return s.long == nil && s.word[0] == 0
}

func (ShortLongOps) MakeEmpty(env Traits) ShortLong {
    if isShort(env) {
        return ShortLong{}
    } else {
        return ShortLong{long: env.Alloc(env.ArrayWordCount())}
    }
}

func (self ShortLongOps) MakeFull(env Traits) ShortLong {
    s := self.MakeEmpty(env)
    w := self.words(env, &s)

    /* no elements at all */
    if env.Size() == 0 {
        return s
    }

    /* fill every word, then trim the last one */
    for i := range w {
        w[i] = ^uint64(0)
    }
    w[len(w) - 1] = lastWordMask(env.Size())
    return s
}

func (self ShortLongOps) MakeSingleton(env Traits, elem int) ShortLong {
    s := self.MakeEmpty(env)
    self.AddElemD(env, &s, elem)
    return s
}

func (self ShortLongOps) MakeCopy(env Traits, s ShortLong) ShortLong {
    var r ShortLong
    self.Assign(env, &r, s)
    return r
}

func (self ShortLongOps) Assign(env Traits, lhs *ShortLong, rhs ShortLong) {
    if isShort(env) || rhs.long == nil {
        *lhs = rhs
        return
    }

    /* lhs may not own any storage yet */
    if len(lhs.long) != len(rhs.long) {
        lhs.long = env.Alloc(len(rhs.long))
    }
    copy(lhs.long, rhs.long)
}

func (ShortLongOps) AssignNoCopy(env Traits, lhs *ShortLong, rhs ShortLong) {
    *lhs = rhs
}

func (self ShortLongOps) ClearD(env Traits, s *ShortLong) {
    if isShort(env) {
        s.word[0] = 0
    } else if s.long == nil {
        s.long = env.Alloc(env.ArrayWordCount())
    } else {
        for i := range s.long {
            s.long[i] = 0
        }
    }
}

func (self ShortLongOps) AddElemD(env Traits, s *ShortLong, elem int) {
    checkElem(env, elem)
    w := self.words(env, s)
    w[elem / WordBits] |= uint64(1) << uint(elem % WordBits)
}

func (self ShortLongOps) AddElem(env Traits, s ShortLong, elem int) ShortLong {
    r := self.MakeCopy(env, s)
    self.AddElemD(env, &r, elem)
    return r
}

func (self ShortLongOps) RemoveElemD(env Traits, s *ShortLong, elem int) {
    checkElem(env, elem)
    w := self.words(env, s)
    w[elem / WordBits] &^= uint64(1) << uint(elem % WordBits)
}

func (self ShortLongOps) RemoveElem(env Traits, s ShortLong, elem int) ShortLong {
    r := self.MakeCopy(env, s)
    self.RemoveElemD(env, &r, elem)
    return r
}

func (self ShortLongOps) IsMember(env Traits, s ShortLong, elem int) bool {
    checkElem(env, elem)
    w := self.words(env, &s)
    return w[elem / WordBits] & (uint64(1) << uint(elem % WordBits)) != 0
}

func (self ShortLongOps) IsEmpty(env Traits, s ShortLong) bool {
    for _, w := range self.words(env, &s) {
        if w != 0 {
            return false
        }
    }
    return true
}

func (self ShortLongOps) Count(env Traits, s ShortLong) int {
    n := 0
    for _, w := range self.words(env, &s) {
        n += countWord(env, w)
    }
    return n
}

func (self ShortLongOps) UnionD(env Traits, a *ShortLong, b ShortLong) {
    x, y := self.words(env, a), self.words(env, &b)
    for i := range x {
        x[i] |= y[i]
    }
}

func (self ShortLongOps) Union(env Traits, a ShortLong, b ShortLong) ShortLong {
    r := self.MakeCopy(env, a)
    self.UnionD(env, &r, b)
    return r
}

func (self ShortLongOps) IntersectionD(env Traits, a *ShortLong, b ShortLong) {
    x, y := self.words(env, a), self.words(env, &b)
    for i := range x {
        x[i] &= y[i]
    }
}

func (self ShortLongOps) Intersection(env Traits, a ShortLong, b ShortLong) ShortLong {
    r := self.MakeCopy(env, a)
    self.IntersectionD(env, &r, b)
    return r
}

func (self ShortLongOps) DiffD(env Traits, a *ShortLong, b ShortLong) {
    x, y := self.words(env, a), self.words(env, &b)
    for i := range x {
        x[i] &^= y[i]
    }
}

func (self ShortLongOps) Diff(env Traits, a ShortLong, b ShortLong) ShortLong {
    r := self.MakeCopy(env, a)
    self.DiffD(env, &r, b)
    return r
}

func (self ShortLongOps) IsSubset(env Traits, a ShortLong, b ShortLong) bool {
    x, y := self.words(env, &a), self.words(env, &b)
    for i := range x {
        if x[i] & y[i] != x[i] {
            return false
        }
    }
    return true
}

func (self ShortLongOps) Equal(env Traits, a ShortLong, b ShortLong) bool {
    x, y := self.words(env, &a), self.words(env, &b)
    for i := range x {
        if x[i] != y[i] {
            return false
        }
    }
    return true
}

func (self ShortLongOps) IsEmptyIntersection(env Traits, a ShortLong, b ShortLong) bool {
    x, y := self.words(env, &a), self.words(env, &b)
    for i := range x {
        if x[i] & y[i] != 0 {
            return false
        }
    }
    return true
}

func (self ShortLongOps) LivenessD(env Traits, in *ShortLong, def ShortLong, use ShortLong, out ShortLong) {
    r := self.words(env, in)
    d := self.words(env, &def)
    u := self.words(env, &use)
    o := self.words(env, &out)

    /* in = use | (out & ~def) */
    for i := range r {
        r[i] = u[i] | (o[i] &^ d[i])
    }
}

func (self ShortLongOps) DataFlowD(env Traits, out *ShortLong, gen ShortLong, in ShortLong) {
    o := self.words(env, out)
    g := self.words(env, &gen)
    n := self.words(env, &in)

    /* out &= gen | in */
    for i := range o {
        o[i] &= g[i] | n[i]
    }
}

func (self ShortLongOps) Iter(env Traits, s ShortLong) *Iter {
    if isShort(env) {
        return newIter([]uint64{s.word[0]})
    } else {
        return newIter(self.words(env, &s))
    }
}

func (self ShortLongOps) ToString(env Traits, s ShortLong) string {
    w := self.words(env, &s)
    b := make([]string, 0, len(w))

    /* most significant word first */
    for i := len(w) - 1; i >= 0; i-- {
        b = append(b, fmt.Sprintf("%016X", w[i]))
    }
    return strings.Join(b, "_")
}
