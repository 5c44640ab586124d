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
    `github.com/cloudwego/loopopt/internal/bitset`
    `github.com/cloudwego/loopopt/internal/ir`
    `github.com/deckarep/golang-set/v2`
    `github.com/oleiade/lane`
)

type _HoistContext struct {
    inParents  mapset.Set[ir.VN]
    inCurLoop  mapset.Set[ir.VN]
    hoisted    int
}

// HoistLoopCode moves loop invariant expressions of do-while loops into
// their pre-headers. It returns the number of hoisted expressions.
func (self *Table) HoistLoopCode() int {
    ctx := &_HoistContext {
        inParents: mapset.NewThreadUnsafeSet[ir.VN](),
    }

    /* process every nest from its root */
    for i, l := range self.Loops {
        if l.Parent == ir.NotInLoop {
            self.hoistLoopNest(i, ctx)
        }
    }

    /* the layout may have changed */
    if ctx.hoisted != 0 {
        self.Flow.Invalidate()
    }
    return ctx.hoisted
}

func (self *Table) hoistLoopNest(lnum int, ctx *_HoistContext) {
    loop := self.Loops[lnum]
    if loop.IsRemoved() {
        return
    }

    /* hoist from this loop first */
    loop.vnInvariant = nil
    ctx.inCurLoop = mapset.NewThreadUnsafeSet[ir.VN]()
    self.hoistThisLoop(lnum, ctx)

    /* nothing nested */
    if loop.Child == ir.NotInLoop {
        return
    }

    /* children must not hoist what we hoisted */
    added := ctx.inCurLoop.Difference(ctx.inParents)
    added.Each(func(vn ir.VN) bool {
        ctx.inParents.Add(vn)
        return false
    })

    /* then the children */
    for c := loop.Child; c != ir.NotInLoop; c = self.Loops[c].Sibling {
        self.hoistLoopNest(c, ctx)
    }

    /* only visible inside this nest */
    added.Each(func(vn ir.VN) bool {
        ctx.inParents.Remove(vn)
        return false
    })
}

func (self *Table) hoistThisLoop(lnum int, ctx *_HoistContext) {
    fn := self.Flow
    loop := self.Loops[lnum]

    /* only do-while loops whose head always runs first */
    if !loop.Has(LoopDoWhile) {
        self.log.Debugw("not hoisting, not a do-while loop", "loop", lnum)
        return
    }
    if !fn.IsReachableFromEntry(loop.Entry) || !fn.Dominates(loop.Head, loop.Entry) {
        self.log.Debugw("not hoisting, head does not dominate entry", "loop", lnum)
        return
    }
    if !ir.SameTryRegion(loop.Head, loop.Entry) {
        self.log.Debugw("not hoisting, entry in another try region", "loop", lnum)
        return
    }
    if loop.Entry.CatchEntry {
        self.log.Debugw("not hoisting, entry is a handler", "loop", lnum)
        return
    }

    /* register pressure estimates */
    loop.Flags |= LoopHoistable
    self.countLoopVars(loop)

    /* hoist from the blocks that always run */
    for _, bb := range self.definitelyExecuted(loop) {
        self.hoistBlock(lnum, bb, ctx, bb == loop.Entry)
    }
}

// countLoopVars counts the locals live across and used in the loop, per
// register class. Longs take two registers on 32-bit targets.
func (self *Table) countLoopVars(loop *LoopDsc) {
    fn := self.Flow
    env := fn.VarUniverse
    loopVars := bitset.Sets.Intersection(env, loop.VarInOut, loop.VarUseDef)

    /* reset the counters */
    loop.LoopVarCount, loop.VarInOutCount = 0, 0
    loop.LoopVarFPCount, loop.VarInOutFPCount = 0, 0
    loop.HoistedExprCount, loop.HoistedFPExprCount = 0, 0

    /* count the registers each local takes */
    for _, v := range fn.Lcls {
        if !v.Tracked {
            continue
        }

        /* register cost of the local */
        regs := 1
        if v.Type.IsLong() {
            regs = self.Target.LongRegs()
        }

        /* loop locals and live locals */
        if v.Type.IsFloating() {
            if bitset.Sets.IsMember(env, loopVars, v.TrackedIndex) {
                loop.LoopVarFPCount++
            }
            if bitset.Sets.IsMember(env, loop.VarInOut, v.TrackedIndex) {
                loop.VarInOutFPCount++
            }
        } else {
            if bitset.Sets.IsMember(env, loopVars, v.TrackedIndex) {
                loop.LoopVarCount += regs
            }
            if bitset.Sets.IsMember(env, loop.VarInOut, v.TrackedIndex) {
                loop.VarInOutCount += regs
            }
        }
    }
}

// definitelyExecuted lists the blocks run on every iteration, entry
// first. With one exit, these are the dominators of the exit within the
// loop, otherwise just the entry.
func (self *Table) definitelyExecuted(loop *LoopDsc) []*ir.Block {
    if loop.ExitCount != 1 || loop.Exit == nil {
        return []*ir.Block { loop.Entry }
    }

    /* walk up the dominator tree from the exit */
    var ret []*ir.Block
    for bb := loop.Exit; bb != nil && loop.Contains(bb); bb = bb.IDom {
        ret = append(ret, bb)
        if bb == loop.Entry {
            for i, j := 0, len(ret) - 1; i < j; i, j = i + 1, j - 1 {
                ret[i], ret[j] = ret[j], ret[i]
            }
            return ret
        }
    }

    /* did not reach the entry */
    return []*ir.Block { loop.Entry }
}

type _HoistValue struct {
    node        *ir.Node
    hoistable   bool
    invariant   bool
    cctorDep    bool
}

type _HoistFrame struct {
    node *ir.Node
    post bool
}

// _HoistVisitor classifies the trees of the blocks of one loop and
// hoists what it can, in execution order.
type _HoistVisitor struct {
    tab              *Table
    ctx              *_HoistContext
    lnum             int
    block            *ir.Block
    values           []_HoistValue
    beforeSideEffect bool
}

func (self *Table) hoistBlock(lnum int, bb *ir.Block, ctx *_HoistContext, first bool) {
    hv := &_HoistVisitor {
        tab              : self,
        ctx              : ctx,
        lnum             : lnum,
        block            : bb,
        beforeSideEffect : first,
    }

    /* visit every statement, the list may grow while hoisting */
    stmts := append([]*ir.Node(nil), bb.Stmts...)
    for _, s := range stmts {
        if s.IsPhiStore() {
            continue
        }

        /* classify the tree */
        ir.SetCosts(s)
        hv.walk(s)

        /* the whole statement */
        if top := hv.values[0]; top.hoistable {
            self.hoistCandidate(top.node, bb, lnum, ctx)
        }
        hv.values = hv.values[:0]
    }
}

// walk visits the tree in post order on an explicit stack.
func (self *_HoistVisitor) walk(root *ir.Node) {
    st := lane.NewStack()
    st.Push(_HoistFrame { node: root })

    /* depth first */
    for !st.Empty() {
        fr := st.Pop().(_HoistFrame)
        if fr.post {
            self.postOrder(fr.node)
            continue
        }

        /* pre-order, come back after the operands */
        self.values = append(self.values, _HoistValue { node: fr.node })
        st.Push(_HoistFrame { node: fr.node, post: true })

        /* operands in evaluation order */
        kids := fr.node.Children()
        for i := len(kids) - 1; i >= 0; i-- {
            st.Push(_HoistFrame { node: kids[i] })
        }
    }
}

func (self *_HoistVisitor) top() *_HoistValue {
    return &self.values[len(self.values) - 1]
}

func (self *_HoistVisitor) isNodeHoistable(node *ir.Node) bool {
    if node.Type == ir.TypeStruct {
        return false
    } else {
        return ir.IsCSECandidate(node)
    }
}

func (self *_HoistVisitor) isTreeInvariant(node *ir.Node) bool {
    return self.tab.TreeIsVNInvariant(node, self.lnum)
}

func (self *_HoistVisitor) visitLocal(node *ir.Node) {
    fn := self.tab.Flow
    top := self.top()
    v := fn.Lcls[node.Lcl]

    /* an SSA use defined outside of the loop */
    if !v.InSsa() {
        return
    }
    def := v.SsaDef(node.Ssa)
    if def == nil || (def.Block != nil && self.tab.Loops[self.lnum].Contains(def.Block)) {
        return
    }

    /* with an invariant value */
    if self.isTreeInvariant(node) {
        top.invariant = true
        top.hoistable = self.isNodeHoistable(node)
    }
}

func isCctorBase(node *ir.Node) bool {
    return node.Op == ir.OpClsVar && node.Has(ir.FlagInitClass)
}

func (self *_HoistVisitor) callHoistable(call *ir.Node) bool {
    info, ok := self.tab.Flow.Helpers.Info(call.Helper)
    switch {
        case !ok || call.Has(ir.FlagCallUser)                  : return false
        case !info.Pure                                        : return false
        case info.MayRunCctor                                  : return call.Has(ir.FlagCallHoistable)
        default                                                : return true
    }
}

func (self *_HoistVisitor) postOrder(node *ir.Node) {
    if node.Op == ir.OpLclVar {
        self.visitLocal(node)
        return
    }

    /* find the values of the operands */
    n := len(self.values) - 1
    for self.values[n].node != node {
        n--
    }

    /* combine the operands */
    cctorDep := isCctorBase(node)
    invariant := !node.Op.IsStore()
    hasHoistableKids := false
    for _, c := range self.values[n + 1:] {
        hasHoistableKids = hasHoistableKids || c.hoistable
        invariant = invariant && c.invariant

        /* a comma with the init call in front absorbs the dependence */
        if c.cctorDep {
            cctorDep = true
            if node.Op == ir.OpComma && c.node == node.Op2 && node.Op1.Op == ir.OpCall {
                if info, ok := self.tab.Flow.Helpers.Info(node.Op1.Helper); ok && info.MayRunCctor {
                    ir.Assert(!c.hoistable, "loops: cctor dependent tree marked hoistable")
                    cctorDep = false
                }
            }
        }
    }

    /* what else prevents hoisting */
    hoistable := invariant && !cctorDep
    if invariant {
        if hoistable {
            hoistable = self.isNodeHoistable(node)
        }
        if hoistable && node.Op == ir.OpCall {
            hoistable = self.callHoistable(node)
        }
        if hoistable && !self.beforeSideEffect && node.Has(ir.FlagExcept) {
            hoistable = false
        }

        /* the value of the whole tree */
        if invariant = self.isTreeInvariant(node); !invariant {
            hoistable = false
        }
    }

    /* anything after a side effect stays */
    if self.beforeSideEffect {
        hoistable = self.checkSideEffect(node, invariant, hoistable)
    }

    /* hoist the hoistable trees so far, in execution order */
    if !hoistable && hasHoistableKids {
        for i := range self.values {
            if v := &self.values[i]; v.hoistable {
                ir.Assert(v.node != node, "loops: hoisting a non-hoistable tree")
                v.hoistable = false
                v.invariant = false
                self.tab.hoistCandidate(v.node, self.block, self.lnum, self.ctx)
            }
        }
    }

    /* replace the operands with the result */
    self.values = self.values[:n + 1]
    self.values[n].hoistable = hoistable
    self.values[n].invariant = invariant
    self.values[n].cctorDep = cctorDep
}

// checkSideEffect clears beforeSideEffect after the first tree that may
// throw or write memory.
func (self *_HoistVisitor) checkSideEffect(node *ir.Node, invariant bool, hoistable bool) bool {
    if !invariant && node.Has(ir.FlagExcept) && node.Op != ir.OpCall {
        self.beforeSideEffect = false
    }

    /* memory side effects */
    switch node.Op {
        case ir.OpCall: {
            info, ok := self.tab.Flow.Helpers.Info(node.Helper)
            if !ok || node.Has(ir.FlagCallUser) || info.MutatesHeap {
                self.beforeSideEffect = false
            } else if info.MayRunCctor && !node.Has(ir.FlagCallHoistable) {
                self.beforeSideEffect = false
            } else if !invariant && !info.NoThrow {
                self.beforeSideEffect = false
            }
        }
        case ir.OpStoreInd, ir.OpStoreClsVar: {
            self.beforeSideEffect = false
        }
        case ir.OpStoreLcl: {
            if self.tab.Flow.Lcls[node.Lcl].AddrExposed {
                self.beforeSideEffect = false
            }
        }
        case ir.OpMemoryBarrier, ir.OpXAdd, ir.OpXChg, ir.OpCmpXchg: {
            self.beforeSideEffect = false
            hoistable = false
        }
    }
    return hoistable
}

// isProfitableToHoist estimates whether a register is left to hold the
// hoisted value. Cheap trees are only hoisted when one surely is.
func (self *Table) isProfitableToHoist(tree *ir.Node, loop *LoopDsc) bool {
    var avail int
    var hoisted int
    var loopVars int
    var inOut int

    /* budgets of the register class */
    tgt := self.Target
    if tree.Type.IsFloating() {
        hoisted, loopVars, inOut = loop.HoistedFPExprCount, loop.LoopVarFPCount, loop.VarInOutFPCount
        avail = tgt.CalleeSavedFloat
        if !loop.ContainsCall {
            avail += tgt.CalleeTrashFloat - 1
        }
    } else {
        hoisted, loopVars, inOut = loop.HoistedExprCount, loop.LoopVarCount, loop.VarInOutCount
        avail = tgt.CalleeSaved - 1
        if !loop.ContainsCall {
            avail += tgt.CalleeTrash - 1
        }
        if tree.Type.IsLong() && !tgt.Is64Bit() {
            avail = (avail + 1) / 2
        }
    }

    /* already hoisted values occupy registers */
    avail -= hoisted
    if loopVars >= avail && tree.CostEx < 2 * ir.IndCostEx {
        return false
    }
    if inOut > avail && tree.CostEx <= ir.MinCSECost + 1 {
        return false
    }
    return true
}

func (self *Table) hoistCandidate(tree *ir.Node, bb *ir.Block, lnum int, ctx *_HoistContext) {
    loop := self.Loops[lnum]
    if !self.isProfitableToHoist(tree, loop) {
        self.log.Debugw("not hoisting, not profitable", "loop", lnum, "tree", tree.String(), "cost", tree.CostEx)
        return
    }

    /* never hoist the same value twice */
    if ctx.inParents.Contains(tree.VN) {
        self.log.Debugw("not hoisting, hoisted in a parent loop", "loop", lnum, "tree", tree.String())
        return
    }
    if ctx.inCurLoop.Contains(tree.VN) {
        self.log.Debugw("not hoisting, hoisted in this loop", "loop", lnum, "tree", tree.String())
        return
    }

    /* the pre-header must be in the same try region */
    self.CreateLoopPreHeader(lnum)
    if !ir.SameTryRegion(loop.Head, bb) {
        return
    }

    /* move it */
    self.PerformHoist(tree, lnum)
    ctx.hoisted++
    ctx.inCurLoop.Add(tree.VN)

    /* the value now lives in a register */
    if tree.Type.IsFloating() {
        loop.HoistedFPExprCount++
    } else {
        loop.HoistedExprCount++
        if tree.Type.IsLong() && !self.Target.Is64Bit() {
            loop.HoistedExprCount++
        }
    }
}

// PerformHoist appends a copy of tree to the pre-header of the loop.
// Both the copy and the original become CSE candidates.
func (self *Table) PerformHoist(tree *ir.Node, lnum int) {
    loop := self.Loops[lnum]
    ir.Assert(loop.Has(LoopHasPreheader), "loops: hoisting into L%02d without a pre-header", lnum)

    /* copy along with the memory dependence */
    deps := self.Flow.VNs.MemDep
    clone := ir.CloneVisit(tree, func(orig *ir.Node, copy *ir.Node) {
        if bb, ok := deps[orig]; ok {
            deps[copy] = bb
        }
    })

    /* cloning a hoistable tree never fails */
    if clone == nil {
        panic(ir.Assertf("loops: cannot clone hoisted tree %s", tree))
    }

    /* both may now be CSE'd */
    clone.Flags |= ir.FlagMakeCSE
    tree.Flags |= ir.FlagMakeCSE
    loop.Head.Stmts = append(loop.Head.Stmts, clone)
    self.log.Debugw("hoisted", "loop", lnum, "tree", tree.String(), "preheader", loop.Head.String())
}

// CreateLoopPreHeader inserts an empty block before the top of a loop
// that becomes the head of every loop sharing the old head.
func (self *Table) CreateLoopPreHeader(lnum int) {
    fn := self.Flow
    loop := self.Loops[lnum]
    if loop.Has(LoopHasPreheader) {
        return
    }

    /* the head must run before the loop */
    head, top := loop.Head, loop.Top
    ir.Assert(fn.Dominates(head, loop.Entry), "loops: head %s does not dominate entry %s", head, loop.Entry)

    /* the pre-header sits right before the top */
    pre := fn.NewBlockBefore(ir.JumpNone, top, false)
    pre.TryIndex, pre.HndIndex = head.TryIndex, head.HndIndex
    pre.Flags |= ir.BlockInternal | ir.BlockLoopPreheader
    pre.LoopNum = loop.Parent
    pre.Weight = self.preHeaderWeight(head, loop.Entry)

    /* the way in goes through the pre-header */
    for _, e := range append([]*ir.Edge(nil), top.Preds...) {
        if p := e.From; p != pre && !loop.Contains(p) {
            self.redirectBlock(p, top, pre)
        }
    }

    /* phis now merge the pre-header instead of the head */
    for _, s := range top.Stmts {
        if s.IsPhiStore() {
            for _, a := range s.Op1.Args {
                if a.Pred == head {
                    a.Pred = pre
                }
            }
        }
    }

    /* every loop with the same head shares the pre-header */
    for _, l := range self.Loops {
        if l.Head == head && !l.IsRemoved() && (l == loop || l.Entry == loop.Entry || l.Top == top) {
            l.Head = pre
        }
    }

    /* done */
    loop.Flags |= LoopHasPreheader
    fn.ComputePreds()
    self.log.Debugw("created pre-header", "loop", lnum, "block", pre.String())
}

// preHeaderWeight scales the head weight by the likelihood of entering
// the loop, when the edge weights are trusted.
func (self *Table) preHeaderWeight(head *ir.Block, entry *ir.Block) float64 {
    fn := self.Flow
    if head.Kind != ir.JumpCond || !fn.HaveValidEdgeWeights {
        return head.Weight
    }

    /* the other successor of the head */
    skip := head.Target
    if skip == entry {
        skip = head.Next
    }

    /* average weights of both edges */
    in, out := entry.FindPred(head), skip.FindPred(head)
    if in == nil || out == nil {
        return head.Weight
    }

    /* split by likelihood */
    entered := (in.WeightMin + in.WeightMax) / 2
    skipped := (out.WeightMin + out.WeightMax) / 2
    if entered + skipped == 0 {
        return head.Weight
    } else {
        return head.Weight * entered / (entered + skipped)
    }
}
