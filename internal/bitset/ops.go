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

// Ops is the operation contract shared by every set representation S.
//
// Operations whose name ends in D are destructive: they update their
// first operand in place. The others return a fresh value and leave
// their operands alone. All operands of a binary operation must come
// from the same universe and epoch.
type Ops[S any] interface {
    UninitVal() S
    MayBeUninit(s S) bool

    MakeEmpty(env Traits) S
    MakeFull(env Traits) S
    MakeSingleton(env Traits, elem int) S
    MakeCopy(env Traits, s S) S

    // Assign gives lhs the value of rhs. For indirect representations the
    // storage is copied, so lhs and rhs stay independent.
    Assign(env Traits, lhs *S, rhs S)

    // AssignNoCopy makes lhs share storage with rhs. The caller promises
    // rhs is not modified through any other handle afterwards.
    AssignNoCopy(env Traits, lhs *S, rhs S)

    ClearD(env Traits, s *S)
    AddElemD(env Traits, s *S, elem int)
    AddElem(env Traits, s S, elem int) S
    RemoveElemD(env Traits, s *S, elem int)
    RemoveElem(env Traits, s S, elem int) S
    IsMember(env Traits, s S, elem int) bool

    IsEmpty(env Traits, s S) bool
    Count(env Traits, s S) int

    UnionD(env Traits, a *S, b S)
    Union(env Traits, a S, b S) S
    IntersectionD(env Traits, a *S, b S)
    Intersection(env Traits, a S, b S) S
    DiffD(env Traits, a *S, b S)
    Diff(env Traits, a S, b S) S

    // IsSubset reports a ⊆ b.
    IsSubset(env Traits, a S, b S) bool
    Equal(env Traits, a S, b S) bool
    IsEmptyIntersection(env Traits, a S, b S) bool

    // LivenessD computes in = use | (out & ~def).
    LivenessD(env Traits, in *S, def S, use S, out S)

    // DataFlowD computes out &= gen | in.
    DataFlowD(env Traits, out *S, gen S, in S)

    Iter(env Traits, s S) *Iter
    ToString(env Traits, s S) string
}

// OpKind enumerates the operations for the counting decorator.
type OpKind int

const (
    OpUninitVal OpKind = iota
    OpMayBeUninit
    OpMakeEmpty
    OpMakeFull
    OpMakeSingleton
    OpMakeCopy
    OpAssign
    OpAssignNoCopy
    OpClearD
    OpAddElemD
    OpAddElem
    OpRemoveElemD
    OpRemoveElem
    OpIsMember
    OpIsEmpty
    OpCount
    OpUnionD
    OpUnion
    OpIntersectionD
    OpIntersection
    OpDiffD
    OpDiff
    OpIsSubset
    OpEqual
    OpIsEmptyIntersection
    OpLivenessD
    OpDataFlowD
    OpIter
    OpToString
    _OpKindCount
)

var _OpNames = [...]string {
    OpUninitVal           : "UninitVal",
    OpMayBeUninit         : "MayBeUninit",
    OpMakeEmpty           : "MakeEmpty",
    OpMakeFull            : "MakeFull",
    OpMakeSingleton       : "MakeSingleton",
    OpMakeCopy            : "MakeCopy",
    OpAssign              : "Assign",
    OpAssignNoCopy        : "AssignNoCopy",
    OpClearD              : "ClearD",
    OpAddElemD            : "AddElemD",
    OpAddElem             : "AddElem",
    OpRemoveElemD         : "RemoveElemD",
    OpRemoveElem          : "RemoveElem",
    OpIsMember            : "IsMember",
    OpIsEmpty             : "IsEmpty",
    OpCount               : "Count",
    OpUnionD              : "UnionD",
    OpUnion               : "Union",
    OpIntersectionD       : "IntersectionD",
    OpIntersection        : "Intersection",
    OpDiffD               : "DiffD",
    OpDiff                : "Diff",
    OpIsSubset            : "IsSubset",
    OpEqual               : "Equal",
    OpIsEmptyIntersection : "IsEmptyIntersection",
    OpLivenessD           : "LivenessD",
    OpDataFlowD           : "DataFlowD",
    OpIter                : "Iter",
    OpToString            : "ToString",
}

func (self OpKind) String() string {
    if self >= 0 && int(self) < len(_OpNames) {
        return _OpNames[self]
    } else {
        return "OpKind(?)"
    }
}
