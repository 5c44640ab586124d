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
    _UnrollFixedCost = 8
)

func iterSmallOverflow(v int64, t ir.VarType) bool {
    switch t {
        case ir.TypeByte   : return v > 127
        case ir.TypeUByte  : return v > 255
        case ir.TypeShort  : return v > 32767
        case ir.TypeUShort : return v > 65535
        default            : return false
    }
}

func iterSmallUnderflow(v int64, t ir.VarType) bool {
    switch t {
        case ir.TypeByte   : return v < -128
        case ir.TypeShort  : return v < -32768
        case ir.TypeUByte  : return v < 0
        case ir.TypeUShort : return v < 0
        default            : return false
    }
}

// ComputeLoopRep computes how many times the body of a counted loop
// runs. With dupCond the loop is guarded by a copy of its test and may
// run zero times, otherwise the body runs once before the first test.
// It reports false when the count is not a constant, or when the
// iterator would wrap around before the test fails.
func ComputeLoopRep(
    init     int64,
    limit    int64,
    iterInc  int64,
    iterOper ir.Op,
    iterType ir.VarType,
    testOper ir.Op,
    unsTest  bool,
    dupCond  bool,
) (uint32, bool) {
    var cnt uint32
    var initX int64
    var limitX int64

    /* 32-bit limits widen according to the signedness of the test */
    if unsTest {
        limitX = int64(uint32(limit))
    } else {
        limitX = int64(int32(limit))
    }

    /* small iterators narrow their operands */
    switch iterType {
        case ir.TypeByte   : initX, iterInc = int64(int8(init)), int64(int8(iterInc))
        case ir.TypeUByte  : initX, iterInc = int64(uint8(init)), int64(uint8(iterInc))
        case ir.TypeShort  : initX, iterInc = int64(int16(init)), int64(int16(iterInc))
        case ir.TypeUShort : initX, iterInc = int64(uint16(init)), int64(uint16(iterInc))
        case ir.TypeInt, ir.TypeUInt: {
            iterInc = int64(int32(iterInc))
            if unsTest {
                initX = int64(uint32(init))
            } else {
                initX = int64(int32(init))
            }
        }
        default: {
            return 0, false
        }
    }

    /* normalize the operator, subtraction is a negated addition */
    switch iterOper {
        case ir.OpAdd : break
        case ir.OpSub : iterInc = -iterInc
        default       : return 0, false
    }

    /* a zero step never terminates */
    if iterInc == 0 {
        return 0, false
    }

    /* the direction of the step */
    sign := int64(1)
    if iterInc < 0 {
        sign = -1
    }

    /* a real do-while loop runs once before testing */
    if !dupCond {
        cnt = 1
        initX += iterInc
    }

    /* bail out if the count relies on wrap around */
    if iterInc > 0 && limitX < initX {
        return 0, false
    }
    if iterInc < 0 && limitX > initX {
        return 0, false
    }

    /* count the repetitions */
    switch testOper {
        case ir.OpNE: {
            if iterInc > 0 && iterInc != 1 && (limitX - initX) % iterInc != 0 {
                return 0, false
            }
            if iterInc < 0 && iterInc != -1 && (initX - limitX) % (-iterInc) != 0 {
                return 0, false
            }
            if initX != limitX {
                cnt += uint32((limitX - initX - sign) / iterInc) + 1
            }
        }
        case ir.OpLT: {
            if initX < limitX {
                cnt += uint32((limitX - initX - sign) / iterInc) + 1
            }
        }
        case ir.OpLE: {
            if initX <= limitX {
                cnt += uint32((limitX - initX) / iterInc) + 1
            }
        }
        case ir.OpGT: {
            if initX > limitX {
                cnt += uint32((limitX - initX - sign) / iterInc) + 1
            }
        }
        case ir.OpGE: {
            if initX >= limitX {
                cnt += uint32((limitX - initX) / iterInc) + 1
            }
        }
        default: {
            return 0, false
        }
    }

    /* the iterator value once the loop exits */
    atExit := int64(int32(initX + iterInc * int64(int32(cnt))))
    if unsTest {
        atExit = int64(uint32(atExit))
    }

    /* the exit value must be past the limit without wrapping */
    switch testOper {
        case ir.OpNE: {
            if iterInc > 0 && (iterSmallOverflow(atExit, iterType) || atExit < limitX) {
                return 0, false
            }
            if iterInc < 0 && (iterSmallUnderflow(atExit, iterType) || atExit > limitX) {
                return 0, false
            }
        }
        case ir.OpLT: {
            if iterSmallOverflow(atExit, iterType) || atExit < limitX {
                return 0, false
            }
        }
        case ir.OpLE: {
            if iterSmallOverflow(atExit, iterType) || atExit <= limitX {
                return 0, false
            }
        }
        case ir.OpGT: {
            if iterSmallUnderflow(atExit, iterType) || atExit > limitX {
                return 0, false
            }
        }
        case ir.OpGE: {
            if iterSmallUnderflow(atExit, iterType) || atExit >= limitX {
                return 0, false
            }
        }
    }
    return cnt, true
}

// UnrollLoops fully unrolls the innermost counted loops whose trip
// count is small enough, and returns how many loops were removed.
func (self *Table) UnrollLoops() int {
    n := 0
    for lnum := len(self.Loops) - 1; lnum >= 0; lnum-- {
        if self.unrollLoop(lnum) {
            n++
        }
    }

    /* rebuild the predecessor lists of the new blocks */
    if n != 0 {
        self.Flow.ComputePreds()
    }
    return n
}

// UpdateAfterUnroll unlinks the removed loops from the nest and labels
// the blocks again. The tombstones keep their slots, so loop numbers
// stay valid.
func (self *Table) UpdateAfterUnroll() {
    for i, l := range self.Loops {
        if !l.IsRemoved() || l.Parent == ir.NotInLoop {
            continue
        }

        /* drop it from the children of its parent */
        p := self.Loops[l.Parent]
        if p.Child == i {
            p.Child = l.Sibling
        } else {
            for c := p.Child; c != ir.NotInLoop; c = self.Loops[c].Sibling {
                if self.Loops[c].Sibling == i {
                    self.Loops[c].Sibling = l.Sibling
                    break
                }
            }
        }
        l.Sibling = ir.NotInLoop
    }

    /* the parents may be innermost now */
    self.labelBlocks()
    self.MarkLoopAlignment()
}

func (self *Table) canUnroll(lnum int) bool {
    loop := self.Loops[lnum]
    need := LoopDoWhile | LoopOneExit | LoopConst | LoopIter

    /* shape checks */
    switch {
        case loop.IsRemoved()                 : return false
        case loop.Has(LoopDontUnroll)         : return false
        case loop.Flags & need != need        : return false
        case loop.Child != ir.NotInLoop       : return false
        case loop.Exit != loop.Bottom         : return false
        case loop.Entry != loop.Top           : return false
        case loop.First != loop.Top           : return false
        case loop.Bottom.Kind != ir.JumpCond  : return false
        case loop.Bottom.Target != loop.Top   : return false
    }

    /* the bottom must be the only back edge */
    for _, e := range loop.Top.Preds {
        if e.From != loop.Bottom && loop.Contains(e.From) {
            return false
        }
    }
    return true
}

func (self *Table) unrollLoop(lnum int) bool {
    loop := self.Loops[lnum]
    fn := self.Flow

    /* check the loop shape */
    if !self.canUnroll(lnum) {
        return false
    }

    /* iteration parameters */
    iv := loop.IterVar
    ivt := fn.Lcls[iv].Type
    beg := loop.IterConstInit()
    lim := loop.ConstLimitValue()

    /* count the iterations */
    total, ok := ComputeLoopRep(beg, lim, loop.IterConst, loop.IterOper, ivt, loop.TestOper(), loop.TestTree.Unsigned, false)
    if !ok {
        self.log.Debugw("not unrolling, unknown trip count", "loop", lnum)
        return false
    }

    /* not too many iterations */
    if int(total) > self.Opts.IterLimit() {
        self.log.Debugw("not unrolling, too many iterations", "loop", lnum, "iterations", total)
        return false
    }

    /* estimate the code growth */
    size := 0
    for bb := loop.Top; bb != loop.Bottom.Next; bb = bb.Next {
        for _, stmt := range bb.Stmts {
            size += ir.SetCosts(stmt)
        }
    }

    /* single iterations always shrink the code */
    if total > 1 {
        if int64(size) * int64(total) - int64(size + _UnrollFixedCost) > int64(self.Opts.SizeLimit()) {
            self.log.Debugw("not unrolling, too much code", "loop", lnum, "size", size, "iterations", total)
            return false
        }
        if !loop.Has(LoopSIMDLimit) && !self.Opts.Stress {
            self.log.Debugw("not unrolling, limit is not a vector count", "loop", lnum)
            return false
        }
    }

    /* clone the body once per iteration */
    if !self.cloneIterations(loop, iv, ivt, beg, int(total)) {
        loop.Flags |= LoopDontUnroll
        self.log.Debugw("failed to unroll loop", "loop", lnum)
        return false
    }

    /* gut the original body */
    for bb := loop.Top; bb != loop.Bottom.Next; bb = bb.Next {
        if bb.Kind == ir.JumpReturn {
            fn.ReturnCount--
        }
        bb.Stmts = nil
        bb.Kind = ir.JumpNone
        bb.Target = nil
        bb.Switch = nil
        bb.Flags &^= ir.BlockLoopHead | ir.BlockLoopAlign
        bb.LoopNum = loop.Parent
    }

    /* the guard in the head is decided by the initial value */
    self.foldHeadTest(loop, iv, beg)
    self.log.Debugw("unrolled loop", "loop", lnum, "iterations", total)

    /* tombstone the loop */
    loop.Flags |= LoopRemoved
    loop.Head = nil
    loop.Bottom = nil
    fn.Invalidate()
    return true
}

func (self *Table) cloneIterations(loop *LoopDsc, iv int, ivt ir.VarType, beg int64, total int) bool {
    var added []*ir.Block
    fn := self.Flow
    val := beg
    after := loop.Bottom
    bmap := make(map[*ir.Block]*ir.Block)

    /* undo everything on failure */
    abort := func() bool {
        for _, bb := range added {
            fn.Unlink(bb)
        }
        return false
    }

    /* one copy of the body per iteration */
    for i := 0; i < total; i++ {
        for bb := loop.Top; bb != loop.Bottom.Next; bb = bb.Next {
            nb := fn.NewBlockAfter(bb.Kind, after, true)
            nb.Flags = bb.Flags &^ (ir.BlockLoopHead | ir.BlockLoopAlign)
            nb.LoopNum = loop.Parent
            nb.Weight = bb.Weight
            nb.ScaleWeight(1.0 / BBLoopWeight)
            added = append(added, nb)
            bmap[bb] = nb
            after = nb

            /* copy the statements with the iterator replaced */
            for _, stmt := range bb.Stmts {
                if stmt.IsPhiStore() {
                    continue
                }
                if cs := ir.CloneSubst(stmt, iv, val); cs == nil {
                    return abort()
                } else {
                    nb.Stmts = append(nb.Stmts, ir.Fold(cs))
                }
            }

            /* the copy of the bottom drops its test */
            if bb == loop.Bottom {
                test := nb.Stmts[len(nb.Stmts) - 1]
                nb.Stmts = append(nb.Stmts[:len(nb.Stmts) - 1], ir.ExtractSideEffects(test)...)
                nb.Kind = ir.JumpNone
            }
        }

        /* redirect the jumps inside this iteration */
        for bb := loop.Top; bb != loop.Bottom; bb = bb.Next {
            nb := bmap[bb]
            nb.Target = redirect(bb.Target, bmap)
            if bb.Switch != nil {
                nb.Switch = make([]*ir.Block, len(bb.Switch))
                for j, t := range bb.Switch {
                    nb.Switch[j] = redirect(t, bmap)
                }
            }
        }

        /* step the iterator */
        switch loop.IterOper {
            case ir.OpAdd : val = ivt.Wrap(val + loop.IterConst)
            case ir.OpSub : val = ivt.Wrap(val - loop.IterConst)
            default       : return abort()
        }
    }
    return true
}

func redirect(bb *ir.Block, bmap map[*ir.Block]*ir.Block) *ir.Block {
    if nb, ok := bmap[bb]; ok {
        return nb
    } else {
        return bb
    }
}

// foldHeadTest resolves a conditional head with the iterator bound to
// its initial value. A test that does not fold stays.
func (self *Table) foldHeadTest(loop *LoopDsc, iv int, beg int64) {
    head := loop.Head
    if head.Kind != ir.JumpCond {
        return
    }

    /* evaluate the guard */
    test := head.LastStmt()
    if test == nil || test.Op != ir.OpJTrue || len(ir.ExtractSideEffects(test)) != 0 {
        return
    }
    cond := ir.Fold(ir.CloneSubst(test.Op1, iv, beg))
    if cond == nil || !cond.IsIntCns() {
        return
    }

    /* replace it with an unconditional flow */
    head.RemoveStmt(len(head.Stmts) - 1)
    if cond.Val != 0 {
        head.Kind = ir.JumpAlways
    } else {
        head.Kind = ir.JumpNone
        head.Target = nil
    }
}
