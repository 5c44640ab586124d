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

// CanonicalizeLoops gives every loop a top block no other loop starts
// with. It reports whether new blocks were created.
func (self *Table) CanonicalizeLoops() bool {
    modified := false
    for i, l := range self.Loops {
        if l.Parent == ir.NotInLoop && !l.IsRemoved() {
            modified = self.CanonicalizeLoopNest(i) || modified
        }
    }
    return modified
}

// CanonicalizeLoopNest canonicalizes a loop and then all of its children.
func (self *Table) CanonicalizeLoopNest(lnum int) bool {
    modified := self.CanonicalizeLoop(lnum)
    for c := self.Loops[lnum].Child; c != ir.NotInLoop; c = self.Loops[c].Sibling {
        modified = self.CanonicalizeLoopNest(c) || modified
    }
    return modified
}

// CanonicalizeLoop creates a new top for the loop when its top also
// belongs to a nested loop. The bottom and the entries from outside are
// redirected to the new top.
func (self *Table) CanonicalizeLoop(lnum int) bool {
    fn := self.Flow
    loop := self.Loops[lnum]

    /* already has its own top */
    t := loop.Top
    if t.LoopNum == lnum {
        return false
    }

    /* the new top is in the same try region as the bottom */
    f, b := loop.First, loop.Bottom
    h, origE := loop.Head, loop.Entry
    extend := ir.SameTryRegion(f, b)
    newT := fn.NewBlockBefore(ir.JumpNone, f, extend)

    /* otherwise it takes the regions of the bottom */
    if !extend {
        newT.TryIndex = b.TryIndex
        newT.HndIndex = b.HndIndex
    }

    /* same frequency as the old top */
    newT.Weight = t.Weight
    newT.Flags |= t.Flags & (ir.BlockProfWeight | ir.BlockRunRarely)
    newT.Flags |= ir.BlockInternal | ir.BlockLoopHead

    /* the back edge and the outside entries go to the new top */
    self.redirectBlock(b, t, newT)
    for _, e := range t.Preds {
        if p := e.From; p != b && (p.Num < t.Num || p.Num > b.Num) {
            self.redirectBlock(p, t, newT)
        }
    }

    /* the new top reaches the old one */
    if f != t {
        newT.Kind = ir.JumpAlways
        newT.Target = t
    }

    /* update the loop */
    if loop.Top == loop.Entry {
        loop.Entry = newT
    }
    loop.Top = newT
    loop.First = newT
    newT.LoopNum = lnum

    /* the head must still get into the loop */
    if h.Kind == ir.JumpNone && h.Next != loop.Entry {
        h.Kind = ir.JumpAlways
        h.Target = loop.Entry
    } else if h.Kind == ir.JumpCond && h.Next == newT && newT != loop.Entry {
        h2 := fn.NewBlockAfter(ir.JumpAlways, h, true)
        h2.Target = loop.Entry
        h2.Weight = h.Weight
        h2.Flags |= ir.BlockInternal
        loop.Head = h2
    }

    /* nested loops that were entered from our head now start after us */
    if newT.Kind == ir.JumpNone && newT.Next == origE {
        for c := loop.Child; c != ir.NotInLoop; c = self.Loops[c].Sibling {
            if cl := self.Loops[c]; cl.Entry == origE && cl.Head == h {
                self.UpdateLoopHead(c, h, newT)
            }
        }
    }

    self.log.Debugw("canonicalized loop", "loop", lnum, "top", newT.String(), "old", t.String())
    return true
}

// redirectBlock retargets the jumps of blk from oldT to newT. The
// predecessor lists are rebuilt afterwards.
func (self *Table) redirectBlock(blk *ir.Block, oldT *ir.Block, newT *ir.Block) {
    switch blk.Kind {
        case ir.JumpAlways, ir.JumpCond, ir.JumpCallFinally, ir.JumpEHCatchRet: {
            if blk.Target == oldT {
                blk.Target = newT
            }
        }
        case ir.JumpSwitch: {
            for i, t := range blk.Switch {
                if t == oldT {
                    blk.Switch[i] = newT
                }
            }
        }
    }
}

// UpdateLoopHead replaces the head of a loop and of the loops nested in
// it that share the head.
func (self *Table) UpdateLoopHead(lnum int, from *ir.Block, to *ir.Block) {
    loop := self.Loops[lnum]
    if loop.Head != from {
        return
    }

    /* replace the head */
    loop.Head = to
    for c := loop.Child; c != ir.NotInLoop; c = self.Loops[c].Sibling {
        self.UpdateLoopHead(c, from, to)
    }
}
