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

package ir

import (
    `fmt`

    `github.com/cloudwego/loopopt/internal/bitset`
)

type JumpKind uint8

const (
    JumpNone JumpKind = iota
    JumpAlways
    JumpCond
    JumpSwitch
    JumpReturn
    JumpThrow
    JumpEHFinallyRet
    JumpEHFilterRet
    JumpEHCatchRet
    JumpCallFinally
)

var _JumpNames = [...]string {
    JumpNone         : "none",
    JumpAlways       : "always",
    JumpCond         : "cond",
    JumpSwitch       : "switch",
    JumpReturn       : "return",
    JumpThrow        : "throw",
    JumpEHFinallyRet : "finally_ret",
    JumpEHFilterRet  : "filter_ret",
    JumpEHCatchRet   : "catch_ret",
    JumpCallFinally  : "call_finally",
}

func (self JumpKind) String() string {
    return _JumpNames[self]
}

// ParseJumpKind looks a jump kind up by its printed name.
func ParseJumpKind(name string) (JumpKind, bool) {
    for i, v := range _JumpNames {
        if v == name {
            return JumpKind(i), true
        }
    }
    return JumpNone, false
}

type BlockFlags uint32

const (
    BlockLoopHead BlockFlags = 1 << iota
    BlockDontRemove
    BlockRunRarely
    BlockInternal
    BlockHasCall
    BlockProfWeight
    BlockLoopAlign
    BlockLoopPreheader
    BlockGCSafePoint
    BlockCloned
)

const (
    NotInLoop = -1
)

const (
    UnityWeight = 100.0
)

// Edge is a predecessor edge. DupCount counts parallel edges from the
// same block, such as switch cases sharing a target.
type Edge struct {
    From      *Block
    DupCount  int
    WeightMin float64
    WeightMax float64
}

type Block struct {
    ID         int
    Num        int
    Next       *Block
    Prev       *Block
    Kind       JumpKind
    Target     *Block
    Switch     []*Block
    Preds      []*Edge
    Stmts      []*Node
    Weight     float64
    Flags      BlockFlags
    TryIndex   int
    HndIndex   int
    CatchEntry bool
    LoopNum    int
    IDom       *Block
    DomPre     int
    DomPost    int
    VarUse     bitset.ShortLong
    VarDef     bitset.ShortLong
    LiveIn     bitset.ShortLong
    LiveOut    bitset.ShortLong
    MemoryIn   Memory
    reach      bitset.ShortLong
}

func (self *Block) String() string {
    if self == nil {
        return "BB--"
    } else {
        return fmt.Sprintf("BB%02d", self.Num)
    }
}

func (self *Block) Has(f BlockFlags) bool {
    return self.Flags & f != 0
}

func (self *Block) IsEmpty() bool {
    return len(self.Stmts) == 0
}

func (self *Block) LastStmt() *Node {
    if len(self.Stmts) == 0 {
        return nil
    } else {
        return self.Stmts[len(self.Stmts) - 1]
    }
}

// FirstNonPhi returns the index of the first statement that is not a
// phi definition.
func (self *Block) FirstNonPhi() int {
    for i, s := range self.Stmts {
        if !s.IsPhiStore() {
            return i
        }
    }
    return len(self.Stmts)
}

// RemoveStmt removes the statement at index i.
func (self *Block) RemoveStmt(i int) {
    self.Stmts = append(self.Stmts[:i], self.Stmts[i + 1:]...)
}

func (self *Block) HasTryIndex() bool {
    return self.TryIndex != 0
}

func (self *Block) HasHndIndex() bool {
    return self.HndIndex != 0
}

func (self *Block) IsRunRarely() bool {
    return self.Has(BlockRunRarely)
}

func (self *Block) HasProfileWeight() bool {
    return self.Has(BlockProfWeight)
}

// SetWeight updates the weight, keeping the rarely-run flag in sync.
func (self *Block) SetWeight(w float64) {
    self.Weight = w
    if w == 0 {
        self.Flags |= BlockRunRarely
    } else {
        self.Flags &^= BlockRunRarely
    }
}

// ScaleWeight multiplies the weight unless it is a profile weight.
func (self *Block) ScaleWeight(scale float64) {
    if !self.HasProfileWeight() && self.Weight != 0 {
        self.SetWeight(self.Weight * scale)
    }
}

// FindPred returns the edge from the given block, or nil.
func (self *Block) FindPred(from *Block) *Edge {
    for _, e := range self.Preds {
        if e.From == from {
            return e
        }
    }
    return nil
}

// RefCount is the number of incoming edges, counting duplicates.
func (self *Block) RefCount() int {
    n := 0
    for _, e := range self.Preds {
        n += e.DupCount
    }
    return n
}

// IsJumpTo reports whether the block transfers control to dst explicitly.
func (self *Block) IsJumpTo(dst *Block) bool {
    switch self.Kind {
        case JumpAlways, JumpCond, JumpCallFinally, JumpEHCatchRet: {
            return self.Target == dst
        }
        case JumpSwitch: {
            for _, t := range self.Switch {
                if t == dst {
                    return true
                }
            }
            return false
        }
        default: {
            return false
        }
    }
}
