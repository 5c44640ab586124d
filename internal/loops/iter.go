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

// isLoopIncr matches `v = v op c` and returns v.
func isLoopIncr(stmt *ir.Node) (int, bool) {
    if stmt == nil || stmt.Op != ir.OpStoreLcl {
        return -1, false
    }

    /* the value must be an update of the local itself */
    val := stmt.Op1
    switch val.Op {
        case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpRsh, ir.OpLsh: break
        default: return -1, false
    }

    /* by a constant */
    if val.Op1.Op != ir.OpLclVar || val.Op1.Lcl != stmt.Lcl || !val.Op2.IsIntCns() {
        return -1, false
    } else {
        return stmt.Lcl, true
    }
}

// testOf returns the comparison a bottom block exits on, looking
// through a compare spilled into a temporary.
func testOf(bottom *ir.Block) (*ir.Node, int) {
    n := len(bottom.Stmts)
    if bottom.Kind != ir.JumpCond || n == 0 {
        return nil, -1
    }

    /* the block must end with a conditional jump */
    jt := bottom.Stmts[n - 1]
    if jt.Op != ir.OpJTrue || !jt.Op1.Op.IsCompare() {
        return nil, -1
    }

    /* JTrue(NE(tmp, 0)) after tmp = compare */
    cond := jt.Op1
    if n >= 2 && cond.Op == ir.OpNE && cond.Op1.Op == ir.OpLclVar && cond.Op2.IsIntCns() && cond.Op2.Val == 0 {
        if prev := bottom.Stmts[n - 2]; prev.IsLclStoreOf(cond.Op1.Lcl) && prev.Op1.Op.IsCompare() {
            return prev.Op1, n - 2
        }
    }
    return cond, n - 1
}

// isVarAssigned reports whether lcl may be written by any statement in
// [beg, end] other than skip.
func (self *Table) isVarAssigned(beg *ir.Block, end *ir.Block, skip *ir.Node, lcl int) bool {
    if self.Flow.Lcls[lcl].AddrExposed {
        return true
    }

    /* look for any store to the local */
    for bb := beg; bb != nil; bb = bb.Next {
        for _, s := range bb.Stmts {
            if s != skip && !s.IsPhiStore() && ir.Any(s, func(n *ir.Node) bool { return n != skip && n.IsLclStoreOf(lcl) }) {
                return true
            }
        }
        if bb == end {
            break
        }
    }
    return false
}

// extractInitTestIncr finds the init, test and increment statements of
// a loop shaped like a counted do-while loop.
func (self *Table) extractInitTestIncr(head, top, bottom *ir.Block) (init *ir.Node, test *ir.Node, incr *ir.Node, ok bool) {
    var idx int
    if test, idx = testOf(bottom); test == nil {
        return nil, nil, nil, false
    }

    /* the increment immediately precedes the test, or ends the top block */
    if idx > 0 {
        incr = bottom.Stmts[idx - 1]
    } else if top != bottom && len(top.Stmts) != 0 {
        incr = top.LastStmt()
    }
    if _, ok = isLoopIncr(incr); !ok {
        return nil, nil, nil, false
    }

    /* the init ends the head, possibly followed by a duplicated condition */
    stmts := head.Stmts
    if n := len(stmts); n != 0 && stmts[n - 1].Op == ir.OpJTrue {
        stmts = stmts[:n - 1]
    }

    /* empty jump blocks take the init from their only predecessor */
    if len(stmts) != 0 {
        init = stmts[len(stmts) - 1]
    } else if len(head.Preds) == 1 && head.Preds[0].DupCount == 1 && len(head.Preds[0].From.Stmts) != 0 {
        init = head.Preds[0].From.LastStmt()
    } else {
        return nil, nil, nil, false
    }
    return init, test, incr, true
}

const _IterFlags = LoopConstInit | LoopVarInit | LoopConstLimit | LoopVarLimit | LoopArrLenLimit | LoopSIMDLimit | LoopIter | LoopConst

// refreshIterators recognizes the iterators again, once canonicalization
// has settled the heads and tops.
func (self *Table) refreshIterators() {
    for _, l := range self.Loops {
        if l.IsRemoved() {
            continue
        }

        /* forget what was found while recording */
        l.Flags &^= _IterFlags
        l.IterVar = -1
        l.ConstInitVal = 0
        l.VarInitLcl = 0
        l.TestTree = nil
        l.IterTree = nil
        l.IterOper = 0
        l.IterType = 0
        l.IterConst = 0
        self.findIterator(l)
    }
}

// findIterator fills in the iterator metadata of a freshly recorded
// loop. Nothing is set unless the whole shape is recognized.
func (self *Table) findIterator(loop *LoopDsc) {
    init, test, incr, ok := self.extractInitTestIncr(loop.Head, loop.Top, loop.Bottom)
    if !ok {
        return
    }

    /* the iterator is only written by its increment */
    iv, _ := isLoopIncr(incr)
    if self.isVarAssigned(loop.Top, loop.Bottom, incr, iv) {
        self.log.Debugw("iterator assigned in loop", "lcl", iv)
        return
    }

    /* the init must run whenever the loop is entered */
    if !self.Flow.Dominates(loop.Head, loop.Entry) {
        return
    }
    for _, e := range loop.Entry.Preds {
        if e.From != loop.Head && !loop.Contains(e.From) {
            self.log.Debugw("loop entered around its head", "entry", loop.Entry.String(), "from", e.From.String())
            return
        }
    }

    /* initialized to a constant or another local */
    var flags LoopFlags
    var initVal int64
    var initLcl = -1

    /* classify the init */
    if !init.IsLclStoreOf(iv) || init.IsPhiStore() {
        return
    } else if init.Op1.IsIntCns() {
        flags, initVal = LoopConstInit, init.Op1.Val
    } else if init.Op1.Op == ir.OpLclVar {
        flags, initLcl = LoopVarInit, init.Op1.Lcl
    } else {
        return
    }

    /* the test compares the iterator itself */
    var limit *ir.Node
    if x := test.Op1; x.Op == ir.OpLclVar && x.Lcl == iv {
        limit = test.Op2
    } else if y := test.Op2; y.Op == ir.OpLclVar && y.Lcl == iv {
        limit = test.Op1
    } else {
        return
    }

    /* only int iterators are counted */
    if self.Flow.Lcls[iv].Type.Actual() != ir.TypeInt {
        return
    }

    /* classify the limit */
    switch {
        case limit.IsIntCns(): {
            flags |= LoopConstLimit
            if self.isSIMDCount(limit) {
                flags |= LoopSIMDLimit
            }
        }
        case limit.Op == ir.OpLclVar: {
            if self.isVarAssigned(loop.Top, loop.Bottom, nil, limit.Lcl) {
                return
            }
            flags |= LoopVarLimit
        }
        case limit.Op == ir.OpArrLen: {
            if limit.Op1.Op != ir.OpLclVar || self.isVarAssigned(loop.Top, loop.Bottom, nil, limit.Op1.Lcl) {
                return
            }
            flags |= LoopArrLenLimit
        }
        default: {
            return
        }
    }

    /* everything matched */
    loop.Flags |= flags | LoopIter
    loop.IterVar = iv
    loop.ConstInitVal = initVal
    loop.VarInitLcl = initLcl
    loop.TestTree = test
    loop.IterTree = incr
    loop.IterOper = incr.Op1.Op
    loop.IterConst = incr.Op1.Op2.Val
    loop.IterType = self.Flow.Lcls[iv].Type

    /* counted with constant bounds */
    if loop.Has(LoopConstInit) && loop.Has(LoopConstLimit) {
        loop.Flags |= LoopConst
    }
}

// isSIMDCount reports whether a constant is the element count of a
// target vector, as produced by folding Vector<T>.Count.
func (self *Table) isSIMDCount(cns *ir.Node) bool {
    if cns.ElemType == "" {
        return false
    } else if et, ok := ir.ParseType(cns.ElemType); !ok {
        return false
    } else {
        return int64(self.Target.VectorCount(et.Size())) == cns.Val
    }
}
