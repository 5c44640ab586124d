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
    _UninitEpoch = -1
)

// Epoched wraps a ShortLong together with the epoch of the universe it
// was built for. Every operation validates the epoch, in all builds.
type Epoched struct {
    bits  ShortLong
    epoch int
}

// Epoch returns the epoch the set was created in.
func (self Epoched) Epoch() int {
    return self.epoch
}

type EpochOps struct{}

var Checked Ops[Epoched] = EpochOps{}

func (EpochOps) validate(env Traits, sets ...Epoched) {
    for _, s := range sets {
        if s.epoch != env.Epoch() {
            panic(errors.AssertionFailedf("bitset: stale set from epoch %d used in epoch %d", s.epoch, env.Epoch()))
        }
    }
}

func (self EpochOps) wrap(env Traits, s ShortLong) Epoched {
    return Epoched {
        bits  : s,
        epoch : env.Epoch(),
    }
}

func (EpochOps) UninitVal() Epoched {
    return Epoched{epoch: _UninitEpoch}
}

func (EpochOps) MayBeUninit(s Epoched) bool {
    return s.epoch == _UninitEpoch
}

func (self EpochOps) MakeEmpty(env Traits) Epoched {
    return self.wrap(env, Sets.MakeEmpty(env))
}

func (self EpochOps) MakeFull(env Traits) Epoched {
    return self.wrap(env, Sets.MakeFull(env))
}

func (self EpochOps) MakeSingleton(env Traits, elem int) Epoched {
    return self.wrap(env, Sets.MakeSingleton(env, elem))
}

func (self EpochOps) MakeCopy(env Traits, s Epoched) Epoched {
    self.validate(env, s)
    return self.wrap(env, Sets.MakeCopy(env, s.bits))
}

func (self EpochOps) Assign(env Traits, lhs *Epoched, rhs Epoched) {
    if self.MayBeUninit(rhs) {
        *lhs = rhs
        return
    }

    /* an uninitialized lhs has nothing to reuse */
    self.validate(env, rhs)
    if self.MayBeUninit(*lhs) || lhs.epoch != rhs.epoch {
        *lhs = self.wrap(env, ShortLong{})
    }
    Sets.Assign(env, &lhs.bits, rhs.bits)
}

func (self EpochOps) AssignNoCopy(env Traits, lhs *Epoched, rhs Epoched) {
    if !self.MayBeUninit(rhs) {
        self.validate(env, rhs)
    }
    *lhs = rhs
}

func (self EpochOps) ClearD(env Traits, s *Epoched) {
    self.validate(env, *s)
    Sets.ClearD(env, &s.bits)
}

func (self EpochOps) AddElemD(env Traits, s *Epoched, elem int) {
    self.validate(env, *s)
    Sets.AddElemD(env, &s.bits, elem)
}

func (self EpochOps) AddElem(env Traits, s Epoched, elem int) Epoched {
    self.validate(env, s)
    return self.wrap(env, Sets.AddElem(env, s.bits, elem))
}

func (self EpochOps) RemoveElemD(env Traits, s *Epoched, elem int) {
    self.validate(env, *s)
    Sets.RemoveElemD(env, &s.bits, elem)
}

func (self EpochOps) RemoveElem(env Traits, s Epoched, elem int) Epoched {
    self.validate(env, s)
    return self.wrap(env, Sets.RemoveElem(env, s.bits, elem))
}

func (self EpochOps) IsMember(env Traits, s Epoched, elem int) bool {
    self.validate(env, s)
    return Sets.IsMember(env, s.bits, elem)
}

func (self EpochOps) IsEmpty(env Traits, s Epoched) bool {
    self.validate(env, s)
    return Sets.IsEmpty(env, s.bits)
}

func (self EpochOps) Count(env Traits, s Epoched) int {
    self.validate(env, s)
    return Sets.Count(env, s.bits)
}

func (self EpochOps) UnionD(env Traits, a *Epoched, b Epoched) {
    self.validate(env, *a, b)
    Sets.UnionD(env, &a.bits, b.bits)
}

func (self EpochOps) Union(env Traits, a Epoched, b Epoched) Epoched {
    self.validate(env, a, b)
    return self.wrap(env, Sets.Union(env, a.bits, b.bits))
}

func (self EpochOps) IntersectionD(env Traits, a *Epoched, b Epoched) {
    self.validate(env, *a, b)
    Sets.IntersectionD(env, &a.bits, b.bits)
}

func (self EpochOps) Intersection(env Traits, a Epoched, b Epoched) Epoched {
    self.validate(env, a, b)
    return self.wrap(env, Sets.Intersection(env, a.bits, b.bits))
}

func (self EpochOps) DiffD(env Traits, a *Epoched, b Epoched) {
    self.validate(env, *a, b)
    Sets.DiffD(env, &a.bits, b.bits)
}

func (self EpochOps) Diff(env Traits, a Epoched, b Epoched) Epoched {
    self.validate(env, a, b)
    return self.wrap(env, Sets.Diff(env, a.bits, b.bits))
}

func (self EpochOps) IsSubset(env Traits, a Epoched, b Epoched) bool {
    self.validate(env, a, b)
    return Sets.IsSubset(env, a.bits, b.bits)
}

func (self EpochOps) Equal(env Traits, a Epoched, b Epoched) bool {
    self.validate(env, a, b)
    return Sets.Equal(env, a.bits, b.bits)
}

func (self EpochOps) IsEmptyIntersection(env Traits, a Epoched, b Epoched) bool {
    self.validate(env, a, b)
    return Sets.IsEmptyIntersection(env, a.bits, b.bits)
}

func (self EpochOps) LivenessD(env Traits, in *Epoched, def Epoched, use Epoched, out Epoched) {
    self.validate(env, *in, def, use, out)
    Sets.LivenessD(env, &in.bits, def.bits, use.bits, out.bits)
}

func (self EpochOps) DataFlowD(env Traits, out *Epoched, gen Epoched, in Epoched) {
    self.validate(env, *out, gen, in)
    Sets.DataFlowD(env, &out.bits, gen.bits, in.bits)
}

func (self EpochOps) Iter(env Traits, s Epoched) *Iter {
    self.validate(env, s)
    return Sets.Iter(env, s.bits)
}

func (self EpochOps) ToString(env Traits, s Epoched) string {
    self.validate(env, s)
    return Sets.ToString(env, s.bits)
}
