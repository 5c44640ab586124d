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
    `github.com/deckarep/golang-set/v2`
    `github.com/oleiade/lane`
    `golang.org/x/exp/slices`
)

// _LoopSearch looks for one natural loop given its top and bottom.
type _LoopSearch struct {
    tab      *Table
    fn       *ir.Flow
    head     *ir.Block
    first    *ir.Block
    top      *ir.Block
    entry    *ir.Block
    bottom   *ir.Block
    exit     *ir.Block
    exitCnt  int
    body     mapset.Set[*ir.Block]
    modified bool
}

func (self *_LoopSearch) reject(reason string) bool {
    self.tab.log.Debugw("loop rejected", "top", self.top.String(), "bottom", self.bottom.String(), "reason", reason)
    return false
}

func (self *_LoopSearch) inRange(bb *ir.Block) bool {
    return self.top.Num <= bb.Num && bb.Num <= self.bottom.Num
}

func (self *_LoopSearch) find() bool {
    if self.top.FindPred(self.bottom) == nil || self.bottom.Num < self.top.Num {
        return self.reject("back edge lost")
    }

    /* these never form structured loops */
    switch self.bottom.Kind {
        case ir.JumpEHFinallyRet : return self.reject("finally return")
        case ir.JumpEHFilterRet  : return self.reject("filter return")
        case ir.JumpEHCatchRet   : return self.reject("catch return")
        case ir.JumpCallFinally  : return self.reject("call finally")
        case ir.JumpSwitch       : return self.reject("switch back edge")
    }

    /* the head either falls into the top, or jumps into the loop */
    switch self.head.Kind {
        case ir.JumpNone, ir.JumpCond: {
            self.entry = self.top
        }
        case ir.JumpAlways: {
            if self.head.Target == nil || !self.inRange(self.head.Target) {
                return self.reject("head jumps elsewhere")
            }
            self.entry = self.head.Target
        }
        default: {
            return self.reject("unsupported head")
        }
    }

    /* cannot jump into the middle of a try region */
    self.first = self.top
    if self.bottom.HasTryIndex() && !self.fn.InTryRegions(self.bottom.TryIndex, self.first) {
        return self.reject("first outside bottom try region")
    }

    /* find the cycle and make it contiguous */
    if !self.hasSingleEntryCycle() {
        return false
    } else if !self.makeCompact() {
        return false
    }

    /* then count the exits */
    self.findExits()
    return true
}

// hasSingleEntryCycle walks backwards from the entry, collecting the
// loop body. Every block must be dominated by the entry, and the only
// way in from outside the range is from the head.
func (self *_LoopSearch) hasSingleEntryCycle() bool {
    st := lane.NewStack()
    seen := false
    self.body = mapset.NewThreadUnsafeSet[*ir.Block]()

    /* start from the bottom, which is known to reach the entry */
    self.body.Add(self.entry)
    st.Push(self.entry)

    /* walk the predecessors */
    for !st.Empty() {
        bb := st.Pop().(*ir.Block)
        if !self.fn.Dominates(self.entry, bb) {
            return self.reject("block not dominated by entry")
        }

        /* check every predecessor */
        for _, e := range bb.Preds {
            pred := e.From
            if !self.inRange(pred) {
                if bb != self.entry || (pred != self.head && !self.fn.Dominates(self.entry, pred)) {
                    return self.reject("side entry")
                }
                continue
            }

            /* reached the entry again, so there is a cycle */
            if pred == self.entry {
                seen = true
                continue
            }

            /* visit it if not done yet */
            if self.body.Add(pred) {
                st.Push(pred)
            }
        }
    }

    /* the cycle must go through both ends */
    if !seen {
        return self.reject("no cycle")
    } else if !self.body.Contains(self.bottom) || !self.body.Contains(self.top) {
        return self.reject("ends not in cycle")
    } else {
        return true
    }
}

func (self *_LoopSearch) isBackEdgeTarget(bb *ir.Block) bool {
    for _, e := range bb.Preds {
        if e.From.Num >= bb.Num {
            return true
        }
    }
    return false
}

func (self *_LoopSearch) isRecordedEnd(bb *ir.Block) bool {
    for _, l := range self.tab.Loops {
        if l.Bottom == bb || l.Entry == bb {
            return true
        }
    }
    return false
}

// insertionPoint picks the block non-loop blocks are moved after. It
// starts at the bottom and skips fall-through chains, so that fewer
// fixup jumps are needed.
func (self *_LoopSearch) insertionPoint() *ir.Block {
    ip := self.bottom
    for ip.Next != nil && ir.FallsThrough(ip) && self.tryAdvance(ip) {
        ip = ip.Next
    }
    return ip
}

func (self *_LoopSearch) tryAdvance(ip *ir.Block) bool {
    next := ip.Next
    switch {
        case !ir.SameEHRegion(ip, next)  : return false
        case self.isRecordedEnd(ip)   : return false
        case self.isRecordedEnd(next) : return false
        case self.isBackEdgeTarget(next) : return false
        default                          : return true
    }
}

// canTreatAsLoopBlocks reports whether every block of a run is only
// entered from the loop body or from the run itself.
func (self *_LoopSearch) canTreatAsLoopBlocks(beg *ir.Block, end *ir.Block) bool {
    for bb := beg; ; bb = bb.Next {
        for _, e := range bb.Preds {
            if !self.body.Contains(e.From) && (e.From.Num < beg.Num || e.From.Num > end.Num) {
                return false
            }
        }
        if bb == end {
            return true
        }
    }
}

func (self *_LoopSearch) overlapsRecorded(beg *ir.Block, end *ir.Block) bool {
    for _, l := range self.tab.Loops {
        if !l.IsRemoved() && !l.Disjoint(beg, end) {
            return true
        }
    }
    return false
}

func (self *_LoopSearch) canMoveRun(beg *ir.Block, end *ir.Block, after *ir.Block) bool {
    for bb := beg; ; bb = bb.Next {
        if !ir.SameEHRegion(bb, after) || self.fn.IsTryEntry(bb) || self.fn.IsHandlerEntry(bb) {
            return false
        }
        if bb == end {
            return true
        }
    }
}

// makeCompact moves the blocks in [top, bottom] that are not part of
// the loop body past the bottom, so that the loop becomes a lexically
// contiguous range.
func (self *_LoopSearch) makeCompact() bool {
    var moveAfter *ir.Block
    var previous = self.top

    /* look for runs of blocks not in the loop */
    for previous != self.bottom {
        runStart := previous.Next
        if self.body.Contains(runStart) {
            previous = runStart
            continue
        }

        /* find the end of the run */
        runEnd := runStart
        for !self.body.Contains(runEnd.Next) {
            runEnd = runEnd.Next
        }

        /* pick the insertion point lazily */
        next := runEnd.Next
        if moveAfter == nil {
            moveAfter = self.insertionPoint()
        }

        /* crossing EH regions, the run has to become part of the loop */
        if !ir.SameEHRegion(previous, next) || !self.canMoveRun(runStart, runEnd, moveAfter) {
            if !self.canTreatAsLoopBlocks(runStart, runEnd) {
                return self.reject("cannot move blocks across EH regions")
            }
            for bb := runStart; bb != next; bb = bb.Next {
                self.body.Add(bb)
            }
            previous = runEnd
            continue
        }

        /* never tear another loop apart */
        if self.overlapsRecorded(runStart, runEnd) {
            return self.reject("non-loop blocks overlap another loop")
        }

        /* move the run after the insertion point */
        moveBefore := moveAfter.Next
        self.fn.MoveRangeAfter(runStart, runEnd, moveAfter)
        self.modified = true
        self.tab.log.Debugw("moved blocks out of loop", "first", runStart.String(), "last", runEnd.String(), "after", moveAfter.String())

        /* restore the broken fall-through edges */
        if moveBefore != nil {
            self.fn.FixupFallThrough(moveAfter, moveBefore)
        }
        if jmp := self.fn.FixupFallThrough(runEnd, next); jmp != nil {
            moveAfter = jmp
        } else {
            moveAfter = runEnd
        }
        if jmp := self.fn.FixupFallThrough(previous, runStart); jmp != nil {
            self.body.Add(jmp)
            previous = jmp
        }
    }
    return true
}

// findExits counts the edges leaving [top, bottom]. Blocks leaving the
// method count as exits too.
func (self *_LoopSearch) findExits() {
    self.exit = nil
    self.exitCnt = 0

    /* scan every block of the now compact loop */
    for bb := self.top; ; bb = bb.Next {
        switch bb.Kind {
            case ir.JumpReturn, ir.JumpThrow: {
                self.exitCnt++
                self.exit = bb
            }
            default: {
                seen := make([]*ir.Block, 0, 2)
                for _, s := range ir.Succs(bb) {
                    if !self.inRange(s) && !slices.Contains(seen, s) {
                        seen = append(seen, s)
                        self.exitCnt++
                        self.exit = bb
                    }
                }
            }
        }
        if bb == self.bottom {
            break
        }
    }

    /* the exit is only kept when unique */
    if self.exitCnt != 1 {
        self.exit = nil
    }
}

func (self *_LoopSearch) record() bool {
    _, ok := self.tab.Record(self.head, self.first, self.top, self.entry, self.bottom, self.exit, self.exitCnt)
    return ok
}

// backEdgeSources lists the blocks jumping back to top, ordered by their
// lexical number so that inner loops sharing the top come first.
func backEdgeSources(top *ir.Block) []*ir.Block {
    var ret []*ir.Block
    for _, e := range top.Preds {
        if e.From.Num >= top.Num && !slices.Contains(ret, e.From) {
            ret = append(ret, e.From)
        }
    }
    slices.SortFunc(ret, func(a, b *ir.Block) int { return a.Num - b.Num })
    return ret
}

// FindNaturalLoops rebuilds the loop table. Blocks may be moved to make
// every loop contiguous, and loops sharing a top get a new one. It
// reports whether the flow graph was changed.
func (self *Table) FindNaturalLoops() bool {
    fn := self.Flow
    modified := false

    /* start from scratch */
    self.Reset()
    fn.Invalidate()

    /* every marked block is a candidate top */
    search: for head := fn.First; head != nil && head.Next != nil; head = head.Next {
        top := head.Next
        if !top.Has(ir.BlockLoopHead) {
            continue
        }

        /* try every back edge into it */
        for _, bottom := range backEdgeSources(top) {
            if !self.Opts.CanRecord(len(self.Loops)) {
                self.log.Debugw("loop table full, stop searching", "loops", len(self.Loops))
                break search
            }

            /* look for a loop */
            s := &_LoopSearch {
                tab    : self,
                fn     : fn,
                head   : head,
                top    : top,
                bottom : bottom,
            }

            /* record it if found */
            if s.find() {
                s.record()
            }
            modified = modified || s.modified
        }
    }

    /* link the loops and label the blocks */
    self.buildNesting()
    self.labelBlocks()

    /* give every loop its own top */
    if self.CanonicalizeLoops() {
        modified = true
    }

    /* the layout may have changed */
    if modified {
        fn.ComputePreds()
        fn.Invalidate()
    }

    /* iterators are recognized on the final layout */
    self.refreshIterators()

    /* alignment is decided last */
    self.MarkLoopAlignment()
    return modified
}

// buildNesting links every loop to the nearest loop containing it.
func (self *Table) buildNesting() {
    for _, l := range self.Loops {
        l.Parent, l.Child, l.Sibling = ir.NotInLoop, ir.NotInLoop, ir.NotInLoop
    }

    /* parents always come before children */
    for i := range self.Loops {
        for p := i - 1; p >= 0; p-- {
            if pl := self.Loops[p]; pl.ContainsLoop(self.Loops[i]) {
                self.Loops[i].Parent = p
                self.Loops[i].Sibling = pl.Child
                pl.Child = i
                break
            }
        }
    }
}

// labelBlocks sets the innermost loop of every block.
func (self *Table) labelBlocks() {
    for bb := self.Flow.First; bb != nil; bb = bb.Next {
        bb.LoopNum = ir.NotInLoop
    }

    /* children come later in the table, so they win */
    for i, l := range self.Loops {
        if !l.IsRemoved() {
            for bb := l.First; bb != nil && bb.Num <= l.Bottom.Num; bb = bb.Next {
                bb.LoopNum = i
            }
        }
    }
}

// MarkLoopAlignment flags the tops of hot innermost loops.
func (self *Table) MarkLoopAlignment() {
    for i, l := range self.Loops {
        if l.IsRemoved() || l.Child != ir.NotInLoop {
            continue
        }
        if l.Top.Weight >= self.Opts.AlignWeight {
            l.Top.Flags |= ir.BlockLoopAlign
            self.log.Debugw("marked loop for alignment", "loop", i, "top", l.Top.String(), "weight", l.Top.Weight)
        }
    }
}
