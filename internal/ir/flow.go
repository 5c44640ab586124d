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
    `github.com/cloudwego/loopopt/internal/bitset`
)

// Flow is the flow graph of one method: a lexically ordered chain of
// blocks plus the tables the optimizer consults.
type Flow struct {
    First                *Block
    Last                 *Block
    EH                   []*EHRegion
    Lcls                 []*LclVar
    Helpers              HelperTable
    VNs                  *VNStore
    BlockUniverse        *bitset.Universe
    VarUniverse          *bitset.Universe
    ReturnCount          int
    HaveProfileWeights   bool
    HaveValidEdgeWeights bool
    nextID               int
    domsValid            bool
    reachValid           bool
}

func NewFlow() *Flow {
    return &Flow {
        Helpers       : DefaultHelpers(),
        VNs           : NewVNStore(),
        BlockUniverse : bitset.NewUniverse(0),
        VarUniverse   : bitset.NewUniverse(0),
    }
}

// Invalidate discards dominators and reachability after the graph
// changed shape.
func (self *Flow) Invalidate() {
    self.domsValid = false
    self.reachValid = false
}

func (self *Flow) newBlock(kind JumpKind) *Block {
    bb := &Block {
        ID      : self.nextID,
        Kind    : kind,
        Weight  : UnityWeight,
        LoopNum : NotInLoop,
    }

    /* grow the block universe, which starts a new epoch */
    self.nextID++
    self.BlockUniverse.Resize(self.nextID)
    self.Invalidate()

    /* returns are counted for the GC encoder */
    if kind == JumpReturn {
        self.ReturnCount++
    }
    return bb
}

// AppendBlock adds a block at the end of the chain.
func (self *Flow) AppendBlock(kind JumpKind) *Block {
    bb := self.newBlock(kind)
    bb.Prev = self.Last

    /* link into the chain */
    if self.Last == nil {
        self.First = bb
    } else {
        self.Last.Next = bb
    }

    /* update the chain tail */
    self.Last = bb
    self.Renumber()
    return bb
}

// NewBlockAfter inserts a block after `after`. With extendRegion the
// block joins the regions of `after`, extending them when `after` was
// their last block. Otherwise it only joins regions that continue past
// it.
func (self *Flow) NewBlockAfter(kind JumpKind, after *Block, extendRegion bool) *Block {
    bb := self.newBlock(kind)
    self.linkAfter(bb, bb, after)

    /* inherit the EH regions */
    if extendRegion {
        bb.TryIndex, bb.HndIndex = after.TryIndex, after.HndIndex
        self.ExtendRegionsAfter(after, bb)
    } else if bb.Next != nil && SameEHRegion(after, bb.Next) {
        bb.TryIndex, bb.HndIndex = after.TryIndex, after.HndIndex
    }

    /* keep the lexical numbering */
    self.Renumber()
    return bb
}

// NewBlockBefore inserts a block before `before`. With extendRegion the
// block joins the regions of `before`, becoming the new region start.
func (self *Flow) NewBlockBefore(kind JumpKind, before *Block, extendRegion bool) *Block {
    bb := self.newBlock(kind)

    /* link into the chain */
    if before.Prev == nil {
        bb.Next = before
        before.Prev = bb
        self.First = bb
    } else {
        self.linkAfter(bb, bb, before.Prev)
    }

    /* inherit the EH regions */
    if extendRegion {
        bb.TryIndex, bb.HndIndex = before.TryIndex, before.HndIndex
        self.extendRegionsBefore(before, bb)
    } else if bb.Prev != nil && SameEHRegion(bb.Prev, before) {
        bb.TryIndex, bb.HndIndex = before.TryIndex, before.HndIndex
    }

    /* keep the lexical numbering */
    self.Renumber()
    return bb
}

func (self *Flow) linkAfter(first *Block, last *Block, after *Block) {
    first.Prev = after
    last.Next = after.Next

    /* fix the successor */
    if after.Next == nil {
        self.Last = last
    } else {
        after.Next.Prev = last
    }

    /* fix the predecessor */
    after.Next = first
    self.Invalidate()
}

func (self *Flow) unlinkRange(first *Block, last *Block) {
    if first.Prev == nil {
        self.First = last.Next
    } else {
        first.Prev.Next = last.Next
    }

    /* fix the tail */
    if last.Next == nil {
        self.Last = first.Prev
    } else {
        last.Next.Prev = first.Prev
    }

    /* detach the range */
    first.Prev = nil
    last.Next = nil
    self.Invalidate()
}

// Unlink removes a block from the lexical chain. Edges are untouched.
func (self *Flow) Unlink(bb *Block) {
    if bb.Kind == JumpReturn {
        self.ReturnCount--
    }
    self.unlinkRange(bb, bb)
    self.Renumber()
}

// MoveRangeAfter moves the run [first, last] after `after`, extending
// the regions that ended at `after`.
func (self *Flow) MoveRangeAfter(first *Block, last *Block, after *Block) {
    self.unlinkRange(first, last)
    self.linkAfter(first, last, after)
    self.ExtendRegionsAfter(after, last)
    self.Renumber()
}

// Renumber assigns lexical numbers starting from 1.
func (self *Flow) Renumber() {
    n := 1
    for bb := self.First; bb != nil; bb = bb.Next {
        bb.Num = n
        n++
    }
}

// Blocks returns the blocks in lexical order.
func (self *Flow) Blocks() []*Block {
    var ret []*Block
    for bb := self.First; bb != nil; bb = bb.Next {
        ret = append(ret, bb)
    }
    return ret
}

// BlockByNum returns the block with the given lexical number.
func (self *Flow) BlockByNum(num int) *Block {
    for bb := self.First; bb != nil; bb = bb.Next {
        if bb.Num == num {
            return bb
        }
    }
    return nil
}

// ReturnBlocks lists the blocks ending in a return.
func (self *Flow) ReturnBlocks() []*Block {
    var ret []*Block
    for bb := self.First; bb != nil; bb = bb.Next {
        if bb.Kind == JumpReturn {
            ret = append(ret, bb)
        }
    }
    return ret
}

// FallsThrough reports whether control may continue into the lexically
// next block.
func FallsThrough(bb *Block) bool {
    return bb.Kind == JumpNone || bb.Kind == JumpCond
}

// Succs lists the distinct successors of a block.
func Succs(bb *Block) []*Block {
    switch bb.Kind {
        case JumpNone: {
            if bb.Next == nil {
                return nil
            } else {
                return []*Block { bb.Next }
            }
        }
        case JumpAlways, JumpCallFinally, JumpEHCatchRet: {
            return []*Block { bb.Target }
        }
        case JumpCond: {
            if bb.Next == bb.Target {
                return []*Block { bb.Next }
            } else {
                return []*Block { bb.Next, bb.Target }
            }
        }
        case JumpSwitch: {
            var ret []*Block
            for _, t := range bb.Switch {
                if !containsBlock(ret, t) {
                    ret = append(ret, t)
                }
            }
            return ret
        }
        default: {
            return nil
        }
    }
}

func containsBlock(list []*Block, bb *Block) bool {
    for _, v := range list {
        if v == bb {
            return true
        }
    }
    return false
}

// edgeCount is the number of edges from `from` to `to`.
func edgeCount(from *Block, to *Block) int {
    n := 0
    switch from.Kind {
        case JumpNone: {
            if from.Next == to { n++ }
        }
        case JumpAlways, JumpCallFinally, JumpEHCatchRet: {
            if from.Target == to { n++ }
        }
        case JumpCond: {
            if from.Next == to { n++ }
            if from.Target == to { n++ }
        }
        case JumpSwitch: {
            for _, t := range from.Switch {
                if t == to { n++ }
            }
        }
    }
    return n
}

// AddRefPred adds one edge from `from` to `to`.
func (self *Flow) AddRefPred(to *Block, from *Block) *Edge {
    self.Invalidate()

    /* existing edge, bump the duplicate count */
    if e := to.FindPred(from); e != nil {
        e.DupCount++
        return e
    }

    /* a new edge */
    e := &Edge {
        From      : from,
        DupCount  : 1,
        WeightMax : from.Weight,
    }

    /* add to predecessor list */
    to.Preds = append(to.Preds, e)
    return e
}

// RemoveRefPred removes one edge from `from` to `to`, and reports
// whether the last one is gone.
func (self *Flow) RemoveRefPred(to *Block, from *Block) bool {
    self.Invalidate()
    for i, e := range to.Preds {
        if e.From == from {
            if e.DupCount--; e.DupCount > 0 {
                return false
            }
            to.Preds = append(to.Preds[:i], to.Preds[i + 1:]...)
            return true
        }
    }
    panic(Assertf("ir: %s is not a predecessor of %s", from, to))
}

// RemoveAllPreds removes every edge from `from` to `to`.
func (self *Flow) RemoveAllPreds(to *Block, from *Block) {
    self.Invalidate()
    for i, e := range to.Preds {
        if e.From == from {
            to.Preds = append(to.Preds[:i], to.Preds[i + 1:]...)
            return
        }
    }
}

// ReplacePred makes the edges into bb from oldPred come from newPred.
func (self *Flow) ReplacePred(bb *Block, oldPred *Block, newPred *Block) {
    self.Invalidate()
    for _, e := range bb.Preds {
        if e.From == oldPred {
            e.From = newPred
            return
        }
    }
}

// ReplaceJumpTarget retargets every explicit jump of bb from oldTarget
// to newTarget, updating the predecessor lists.
func (self *Flow) ReplaceJumpTarget(bb *Block, newTarget *Block, oldTarget *Block) {
    switch bb.Kind {
        case JumpAlways, JumpCond, JumpCallFinally, JumpEHCatchRet: {
            if bb.Target == oldTarget {
                bb.Target = newTarget
                self.RemoveRefPred(oldTarget, bb)
                self.AddRefPred(newTarget, bb)
            }
        }
        case JumpSwitch: {
            for i, t := range bb.Switch {
                if t == oldTarget {
                    bb.Switch[i] = newTarget
                    self.RemoveRefPred(oldTarget, bb)
                    self.AddRefPred(newTarget, bb)
                }
            }
        }
    }
}

// ComputePreds rebuilds every predecessor list from the successors.
// Edge weights of surviving edges are kept.
func (self *Flow) ComputePreds() {
    old := make(map[[2]*Block]*Edge)

    /* save the old edges and reset */
    for bb := self.First; bb != nil; bb = bb.Next {
        for _, e := range bb.Preds {
            old[[2]*Block { e.From, bb }] = e
        }
        bb.Preds = nil
    }

    /* rebuild from the successors */
    for bb := self.First; bb != nil; bb = bb.Next {
        for _, s := range Succs(bb) {
            e := &Edge {
                From      : bb,
                DupCount  : edgeCount(bb, s),
                WeightMax : bb.Weight,
            }

            /* keep the old weights */
            if p, ok := old[[2]*Block { bb, s }]; ok {
                e.WeightMin, e.WeightMax = p.WeightMin, p.WeightMax
            }

            /* add to predecessor list */
            s.Preds = append(s.Preds, e)
        }
    }

    /* invalidate the analysis */
    self.Invalidate()
}

// FixupFallThrough restores the implicit edge from bb to oldNext after
// a layout change separated them. A falling-through block becomes an
// unconditional jump. A conditional block gets a new jump block after
// it, which is returned.
func (self *Flow) FixupFallThrough(bb *Block, oldNext *Block) *Block {
    if !FallsThrough(bb) || bb.Next == oldNext {
        return nil
    }

    /* simple fall-through becomes a jump */
    if bb.Kind == JumpNone {
        bb.Kind = JumpAlways
        bb.Target = oldNext
        return nil
    }

    /* conditional blocks need a new jump block */
    jmp := self.NewBlockAfter(JumpAlways, bb, true)
    jmp.Target = oldNext
    jmp.Weight = bb.Weight
    jmp.Flags |= BlockInternal

    /* the old edge now comes from the jump block */
    if bb.Target == oldNext {
        self.RemoveRefPred(oldNext, bb)
        self.AddRefPred(oldNext, jmp)
    } else {
        self.ReplacePred(oldNext, bb, jmp)
    }

    /* link the jump block */
    self.AddRefPred(jmp, bb)
    return jmp
}

// Reachable reports whether control can flow from `from` to `to`.
func (self *Flow) Reachable(from *Block, to *Block) bool {
    if !self.reachValid {
        self.ComputeReachability()
    }
    return bitset.Sets.IsMember(self.BlockUniverse, to.reach, from.ID)
}

// Dominates reports whether every path from the method entry to b
// passes through a. Unreachable blocks are dominated by nothing but
// themselves.
func (self *Flow) Dominates(a *Block, b *Block) bool {
    if a == b {
        return true
    }

    /* dominators are computed lazily */
    if !self.domsValid {
        self.ComputeDoms()
    }

    /* compare the dominator tree numbers */
    if a.DomPre == 0 || b.DomPre == 0 {
        return false
    } else {
        return a.DomPre <= b.DomPre && b.DomPost <= a.DomPost
    }
}

// IsReachableFromEntry reports whether the dominator DFS visited bb.
func (self *Flow) IsReachableFromEntry(bb *Block) bool {
    if !self.domsValid {
        self.ComputeDoms()
    }
    return bb.DomPre != 0
}
