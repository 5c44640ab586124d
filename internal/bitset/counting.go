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
    `io`
    `strings`

    `gopkg.in/natefinch/lumberjack.v2`
)

const (
    DumpInterval = 1000000
)

// Counting decorates a representation and counts how often each
// operation kind is invoked. Every DumpInterval operations the tallies
// are appended to the output.
type Counting[S any] struct {
    ops    Ops[S]
    out    io.Writer
    total  uint64
    counts [_OpKindCount]uint64
}

// NewCounting writes its tallies to a size-rotated file at path.
func NewCounting[S any](ops Ops[S], path string) *Counting[S] {
    return NewCountingTo(ops, &lumberjack.Logger {
        Filename   : path,
        MaxSize    : 16,
        MaxBackups : 2,
    })
}

func NewCountingTo[S any](ops Ops[S], out io.Writer) *Counting[S] {
    return &Counting[S] {
        ops : ops,
        out : out,
    }
}

// Counts returns the number of invocations of the given operation.
func (self *Counting[S]) Counts(op OpKind) uint64 {
    return self.counts[op]
}

func (self *Counting[S]) Total() uint64 {
    return self.total
}

func (self *Counting[S]) record(op OpKind) {
    self.total++
    self.counts[op]++

    /* periodic dump */
    if self.total % DumpInterval == 0 {
        self.Dump()
    }
}

// Dump appends the current tallies to the output.
func (self *Counting[S]) Dump() {
    var sb strings.Builder
    fmt.Fprintf(&sb, "=== bitset ops after %d calls ===\n", self.total)

    /* one line per non-zero kind */
    for op, n := range self.counts {
        if n != 0 {
            fmt.Fprintf(&sb, "%-24s %d\n", OpKind(op).String(), n)
        }
    }
    _, _ = io.WriteString(self.out, sb.String())
}

func (self *Counting[S]) UninitVal() S {
    self.record(OpUninitVal)
    return self.ops.UninitVal()
}

func (self *Counting[S]) MayBeUninit(s S) bool {
    self.record(OpMayBeUninit)
    return self.ops.MayBeUninit(s)
}

func (self *Counting[S]) MakeEmpty(env Traits) S {
    self.record(OpMakeEmpty)
    return self.ops.MakeEmpty(env)
}

func (self *Counting[S]) MakeFull(env Traits) S {
    self.record(OpMakeFull)
    return self.ops.MakeFull(env)
}

func (self *Counting[S]) MakeSingleton(env Traits, elem int) S {
    self.record(OpMakeSingleton)
    return self.ops.MakeSingleton(env, elem)
}

func (self *Counting[S]) MakeCopy(env Traits, s S) S {
    self.record(OpMakeCopy)
    return self.ops.MakeCopy(env, s)
}

func (self *Counting[S]) Assign(env Traits, lhs *S, rhs S) {
    self.record(OpAssign)
    self.ops.Assign(env, lhs, rhs)
}

func (self *Counting[S]) AssignNoCopy(env Traits, lhs *S, rhs S) {
    self.record(OpAssignNoCopy)
    self.ops.AssignNoCopy(env, lhs, rhs)
}

func (self *Counting[S]) ClearD(env Traits, s *S) {
    self.record(OpClearD)
    self.ops.ClearD(env, s)
}

func (self *Counting[S]) AddElemD(env Traits, s *S, elem int) {
    self.record(OpAddElemD)
    self.ops.AddElemD(env, s, elem)
}

func (self *Counting[S]) AddElem(env Traits, s S, elem int) S {
    self.record(OpAddElem)
    return self.ops.AddElem(env, s, elem)
}

func (self *Counting[S]) RemoveElemD(env Traits, s *S, elem int) {
    self.record(OpRemoveElemD)
    self.ops.RemoveElemD(env, s, elem)
}

func (self *Counting[S]) RemoveElem(env Traits, s S, elem int) S {
    self.record(OpRemoveElem)
    return self.ops.RemoveElem(env, s, elem)
}

func (self *Counting[S]) IsMember(env Traits, s S, elem int) bool {
    self.record(OpIsMember)
    return self.ops.IsMember(env, s, elem)
}

func (self *Counting[S]) IsEmpty(env Traits, s S) bool {
    self.record(OpIsEmpty)
    return self.ops.IsEmpty(env, s)
}

func (self *Counting[S]) Count(env Traits, s S) int {
    self.record(OpCount)
    return self.ops.Count(env, s)
}

func (self *Counting[S]) UnionD(env Traits, a *S, b S) {
    self.record(OpUnionD)
    self.ops.UnionD(env, a, b)
}

func (self *Counting[S]) Union(env Traits, a S, b S) S {
    self.record(OpUnion)
    return self.ops.Union(env, a, b)
}

func (self *Counting[S]) IntersectionD(env Traits, a *S, b S) {
    self.record(OpIntersectionD)
    self.ops.IntersectionD(env, a, b)
}

func (self *Counting[S]) Intersection(env Traits, a S, b S) S {
    self.record(OpIntersection)
    return self.ops.Intersection(env, a, b)
}

func (self *Counting[S]) DiffD(env Traits, a *S, b S) {
    self.record(OpDiffD)
    self.ops.DiffD(env, a, b)
}

func (self *Counting[S]) Diff(env Traits, a S, b S) S {
    self.record(OpDiff)
    return self.ops.Diff(env, a, b)
}

func (self *Counting[S]) IsSubset(env Traits, a S, b S) bool {
    self.record(OpIsSubset)
    return self.ops.IsSubset(env, a, b)
}

func (self *Counting[S]) Equal(env Traits, a S, b S) bool {
    self.record(OpEqual)
    return self.ops.Equal(env, a, b)
}

func (self *Counting[S]) IsEmptyIntersection(env Traits, a S, b S) bool {
    self.record(OpIsEmptyIntersection)
    return self.ops.IsEmptyIntersection(env, a, b)
}

func (self *Counting[S]) LivenessD(env Traits, in *S, def S, use S, out S) {
    self.record(OpLivenessD)
    self.ops.LivenessD(env, in, def, use, out)
}

func (self *Counting[S]) DataFlowD(env Traits, out *S, gen S, in S) {
    self.record(OpDataFlowD)
    self.ops.DataFlowD(env, out, gen, in)
}

func (self *Counting[S]) Iter(env Traits, s S) *Iter {
    self.record(OpIter)
    return self.ops.Iter(env, s)
}

func (self *Counting[S]) ToString(env Traits, s S) string {
    self.record(OpToString)
    return self.ops.ToString(env, s)
}
