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

package loops

import (
    `github.com/cloudwego/loopopt/internal/ir`
)

const (
    BBLoopWeight   = 8.0
    MaxMarkedLoops = 255
)

// SetBlockWeights lowers the weights of blocks that are unlikely to
// run: unreachable blocks become rarely run, and blocks not on every
// path to a return get half weight.
func SetBlockWeights(fn *ir.Flow) {
    rets := fn.ReturnBlocks()
    firstDomsRets := false

    /* check every block */
    for bb := fn.First; bb != nil; bb = bb.Next {
        if !fn.Reachable(fn.First, bb) {
            bb.SetWeight(0)
            continue
        }

        /* rarely run blocks stay that way */
        if bb.Weight == 0 {
            continue
        }

        /* does it dominate every return */
        domsRets := true
        for _, r := range rets {
            if !fn.Dominates(bb, r) {
                domsRets = false
                break
            }
        }

        /* the first block tells whether the returns are all dominated */
        if bb == fn.First {
            firstDomsRets = domsRets
        } else if firstDomsRets && !fn.HaveProfileWeights && !domsRets {
            bb.ScaleWeight(0.5)
        }
    }
}

func backEdges(beg *ir.Block, end *ir.Block) []*ir.Block {
    var ret []*ir.Block
    for _, e := range beg.Preds {
        if e.From.Num >= beg.Num && e.From.Num <= end.Num {
            ret = append(ret, e.From)
        }
    }
    return ret
}

// MarkLoopBlocks scales up the weights of the blocks of the lexical loop
// [beg, end]. Blocks on every path to a back edge run 8 times as often,
// the others 4 times.
func (self *Table) MarkLoopBlocks(beg *ir.Block, end *ir.Block) {
    fn := self.Flow
    bes := backEdges(beg, end)

    /* scan the lexical range */
    for cur := beg; cur != nil; cur = cur.Next {
        if !cur.IsRunRarely() && fn.Reachable(cur, beg) && fn.Reachable(beg, cur) {
            reach, doms := false, false
            for _, b := range bes {
                if fn.Reachable(cur, b) {
                    reach = true
                    doms = doms || fn.Dominates(cur, b)
                }
            }

            /* scale the weight */
            if reach && !cur.HasProfileWeight() {
                if doms {
                    cur.ScaleWeight(BBLoopWeight)
                } else {
                    cur.ScaleWeight(BBLoopWeight / 2)
                }
            }
        }

        /* until the last back edge */
        if cur == end {
            break
        }
    }
}

// UnmarkLoopBlocks undoes MarkLoopBlocks after the back edge `end` has
// gone. Nothing is done while [beg, end] still has other back edges.
func (self *Table) UnmarkLoopBlocks(beg *ir.Block, end *ir.Block) {
    fn := self.Flow
    bes := 0

    /* count the remaining back edges */
    for _, e := range beg.Preds {
        if b := e.From; b.Num >= beg.Num && (b.Kind == ir.JumpCond || b.Kind == ir.JumpAlways) && fn.Reachable(beg, b) {
            bes++
        }
    }

    /* still a loop */
    if bes != 1 {
        return
    }

    /* scale the weights back down */
    for cur := beg; cur != nil; cur = cur.Next {
        if !cur.IsRunRarely() && fn.Reachable(cur, beg) && fn.Reachable(beg, cur) && !cur.HasProfileWeight() {
            if fn.Dominates(cur, end) {
                cur.ScaleWeight(1 / BBLoopWeight)
            } else {
                cur.ScaleWeight(2 / BBLoopWeight)
            }
        }
        if cur == end {
            break
        }
    }
}

// OptimizeLoops marks the targets of back edges as loop heads and scales
// the weights of the lexical loops they start.
func (self *Table) OptimizeLoops() {
    fn := self.Flow
    marked := 0

    /* forget the old marks */
    for bb := fn.First; bb != nil; bb = bb.Next {
        bb.Flags &^= ir.BlockLoopHead
    }

    /* look for back edges */
    for top := fn.First; top != nil && marked < MaxMarkedLoops; top = top.Next {
        var bottom *ir.Block
        for _, e := range top.Preds {
            b := e.From
            if b.Num < top.Num || (b.Kind != ir.JumpCond && b.Kind != ir.JumpAlways) || !fn.Reachable(top, b) {
                continue
            }

            /* the last back edge ends the lexical loop */
            top.Flags |= ir.BlockLoopHead
            if bottom == nil || b.Num > bottom.Num {
                bottom = b
            }
        }

        /* scale the weights */
        if bottom != nil {
            self.MarkLoopBlocks(top, bottom)
            marked++
        }
    }

    self.Marked = true
    self.log.Debugw("marked lexical loops", "count", marked)
}

// ReachWithoutCall reports whether bottom may be reached from top
// without passing a GC safe point.
func (self *Table) ReachWithoutCall(top *ir.Block, bottom *ir.Block) bool {
    fn := self.Flow
    ir.Assert(top.Num <= bottom.Num, "loops: %s is after %s", top, bottom)

    /* check the ends first */
    if top.Has(ir.BlockGCSafePoint) || bottom.Has(ir.BlockGCSafePoint) {
        return false
    }

    /* a safe point on every path makes it unreachable without one */
    for cur := top; cur != nil; cur = cur.Next {
        if cur.Has(ir.BlockGCSafePoint) {
            if fn.Dominates(cur, bottom) && fn.Reachable(top, cur) {
                return false
            }
        } else if cur == bottom {
            break
        }
    }
    return true
}

func flowsTo(bb *ir.Block, dst *ir.Block) bool {
    switch bb.Kind {
        case ir.JumpNone   : return bb.Next == dst
        case ir.JumpCond   : return bb.Next == dst || bb.Target == dst
        case ir.JumpAlways : return bb.Target == dst
        case ir.JumpSwitch : return bb.IsJumpTo(dst)
        default            : return false
    }
}

// UpdateLoopsBeforeRemoveBlock keeps the loop table valid when block is
// about to be deleted. Loops that can no longer be entered are marked
// removed.
func (self *Table) UpdateLoopsBeforeRemoveBlock(block *ir.Block, skipUnmark bool) {
    for i, l := range self.Loops {
        if l.IsRemoved() {
            continue
        }

        /* the loop cannot survive losing these */
        if block == l.Entry || block == l.Bottom {
            l.Flags |= LoopRemoved
            self.log.Debugw("loop removed with block", "loop", i, "block", block.String())
            continue
        }

        /* the exit is gone */
        if l.Exit == block {
            l.Exit = nil
            l.Flags &^= LoopOneExit
        }

        /* removing the way in may make the loop unreachable */
        if flowsTo(block, l.Entry) {
            removed := true
            for _, e := range l.Entry.Preds {
                if p := e.From; p != block && (p.Num <= l.Head.Num || p.Num > l.Bottom.Num) {
                    removed = false
                    break
                }
            }
            if removed {
                l.Flags |= LoopRemoved
                self.log.Debugw("loop unreachable without block", "loop", i, "block", block.String())
            }
        } else if l.Head == block {
            l.Head = block.Prev
        }
    }

    /* a back edge is going away */
    if skipUnmark || (block.Kind != ir.JumpAlways && block.Kind != ir.JumpCond) {
        return
    }

    /* undo the loop weights */
    if dst := block.Target; dst != nil && dst.Has(ir.BlockLoopHead) && dst.Num <= block.Num && self.Flow.Reachable(dst, block) {
        self.UnmarkLoopBlocks(dst, block)
    }
}
