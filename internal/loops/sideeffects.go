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
)

func (self *Table) resetSideEffects(loop *LoopDsc) {
    env := self.Flow.VarUniverse
    loop.ContainsCall = false
    loop.Havoc = [MemoryKindCount]bool{}
    loop.FieldsModified = mapset.NewThreadUnsafeSet[string]()
    loop.ArrElemTypesModified = mapset.NewThreadUnsafeSet[string]()
    loop.VarInOut = bitset.Sets.MakeEmpty(env)
    loop.VarUseDef = bitset.Sets.MakeEmpty(env)
    loop.AsgVars = bitset.Sets.MakeEmpty(env)
    loop.AsgInds = 0
    loop.Flags &^= LoopAsgVarsYes
}

// ComputeLoopSideEffects summarizes, for every loop, the memory it may
// write, the locals it assigns and whether it calls anything. The
// summary of a loop includes its nested loops.
func (self *Table) ComputeLoopSideEffects() {
    for _, l := range self.Loops {
        self.resetSideEffects(l)
    }

    /* every nest is visited once from its root */
    for i, l := range self.Loops {
        if l.Parent == ir.NotInLoop && !l.IsRemoved() {
            self.computeNestSideEffects(i)
        }
    }

    /* the assigned locals are known now */
    for _, l := range self.Loops {
        if !l.IsRemoved() {
            l.Flags |= LoopAsgVarsYes
        }
    }
}

func (self *Table) computeNestSideEffects(lnum int) {
    loop := self.Loops[lnum]
    for bb := loop.First; bb != nil && bb.Num <= loop.Bottom.Num; bb = bb.Next {
        if bb.LoopNum == ir.NotInLoop {
            self.log.Debugw("unlabeled block in loop", "loop", lnum, "block", bb.String())
            self.addHavocAllContainingLoops(lnum, GCHeap, ByrefExposed)
        } else {
            self.computeBlockSideEffects(bb)
        }
    }
}

func (self *Table) computeBlockSideEffects(bb *ir.Block) {
    lnum := bb.LoopNum
    self.addVariableLivenessAllContainingLoops(lnum, bb)

    /* scan every tree */
    for _, s := range bb.Stmts {
        if !s.IsPhiStore() {
            ir.Walk(s, nil, func(n *ir.Node) { self.nodeSideEffects(lnum, n) })
        }
    }
}

func (self *Table) nodeSideEffects(lnum int, n *ir.Node) {
    fn := self.Flow
    switch n.Op {
        case ir.OpStoreLcl: {
            if v := fn.Lcls[n.Lcl]; v.AddrExposed {
                self.addHavocAllContainingLoops(lnum, ByrefExposed)
            } else if v.Tracked {
                self.addAsgVarAllContainingLoops(lnum, v.TrackedIndex)
            }
        }
        case ir.OpStoreInd: {
            addr := n.Op1
            if n.Op2.Type.IsGC() {
                self.addAsgIndsAllContainingLoops(lnum, RefIndRef)
            } else {
                self.addAsgIndsAllContainingLoops(lnum, RefIndScl)
            }

            /* try to find out what is being written */
            if f, ok := ir.AddrField(addr); ok {
                self.addFieldAllContainingLoops(lnum, ir.FieldLoc(f))
            } else if addr.Op == ir.OpIndexAddr {
                self.addArrElemAllContainingLoops(lnum, addr.ElemType)
            } else {
                self.addHavocAllContainingLoops(lnum, GCHeap, ByrefExposed)
            }
        }
        case ir.OpStoreClsVar: {
            self.addAsgIndsAllContainingLoops(lnum, RefGlobal)
            self.addFieldAllContainingLoops(lnum, ir.StaticLoc(n.Class, n.Field))
        }
        case ir.OpCall: {
            self.addContainsCallAllContainingLoops(lnum)
            if self.callHavocs(n) {
                self.addHavocAllContainingLoops(lnum, GCHeap, ByrefExposed)
            }
        }
        case ir.OpMemoryBarrier, ir.OpXAdd, ir.OpXChg, ir.OpCmpXchg: {
            self.addHavocAllContainingLoops(lnum, GCHeap, ByrefExposed)
        }
    }
}

// callHavocs decides whether a call may write any memory.
func (self *Table) callHavocs(call *ir.Node) bool {
    info, ok := self.Flow.Helpers.Info(call.Helper)
    switch {
        case !ok || call.Has(ir.FlagCallUser)             : return true
        case info.MutatesHeap                             : return true
        case info.MayRunCctor                             : return !call.Has(ir.FlagCallHoistable)
        default                                           : return false
    }
}

func (self *Table) addVariableLivenessAllContainingLoops(lnum int, bb *ir.Block) {
    env := self.Flow.VarUniverse
    for ; lnum != ir.NotInLoop; lnum = self.Loops[lnum].Parent {
        l := self.Loops[lnum]
        unionLive(env, &l.VarInOut, bb.LiveIn)
        unionLive(env, &l.VarInOut, bb.LiveOut)
        unionLive(env, &l.VarUseDef, bb.VarUse)
        unionLive(env, &l.VarUseDef, bb.VarDef)
    }
}

// unionLive skips sets liveness never computed.
func unionLive(env bitset.Traits, dst *bitset.ShortLong, src bitset.ShortLong) {
    if !bitset.Sets.MayBeUninit(src) {
        bitset.Sets.UnionD(env, dst, src)
    }
}

func (self *Table) addHavocAllContainingLoops(lnum int, kinds ...MemoryKind) {
    for ; lnum != ir.NotInLoop; lnum = self.Loops[lnum].Parent {
        self.Loops[lnum].addHavoc(kinds...)
    }
}

func (self *Table) addContainsCallAllContainingLoops(lnum int) {
    for ; lnum != ir.NotInLoop; lnum = self.Loops[lnum].Parent {
        self.Loops[lnum].ContainsCall = true
    }
}

func (self *Table) addFieldAllContainingLoops(lnum int, loc string) {
    for ; lnum != ir.NotInLoop; lnum = self.Loops[lnum].Parent {
        self.Loops[lnum].FieldsModified.Add(loc)
    }
}

func (self *Table) addArrElemAllContainingLoops(lnum int, elem string) {
    for ; lnum != ir.NotInLoop; lnum = self.Loops[lnum].Parent {
        self.Loops[lnum].ArrElemTypesModified.Add(elem)
    }
}

func (self *Table) addAsgVarAllContainingLoops(lnum int, idx int) {
    env := self.Flow.VarUniverse
    for ; lnum != ir.NotInLoop; lnum = self.Loops[lnum].Parent {
        bitset.Sets.AddElemD(env, &self.Loops[lnum].AsgVars, idx)
    }
}

func (self *Table) addAsgIndsAllContainingLoops(lnum int, kind RefKinds) {
    for ; lnum != ir.NotInLoop; lnum = self.Loops[lnum].Parent {
        self.Loops[lnum].AsgInds |= kind
    }
}

// IsVarAssignedInLoop reports whether the loop assigns the local, using
// the summary when it is available.
func (self *Table) IsVarAssignedInLoop(lnum int, lcl int) bool {
    loop := self.Loops[lnum]
    v := self.Flow.Lcls[lcl]

    /* exposed locals may be written anywhere */
    if v.AddrExposed {
        return true
    } else if !loop.Has(LoopAsgVarsYes) || !v.Tracked {
        return self.isVarAssigned(loop.First, loop.Bottom, nil, lcl)
    } else {
        return bitset.Sets.IsMember(self.Flow.VarUniverse, loop.AsgVars, v.TrackedIndex)
    }
}

// HavocsAny reports whether the loop may write arbitrary memory.
func (self *LoopDsc) HavocsAny() bool {
    return self.Havoc[GCHeap] || self.Havoc[ByrefExposed]
}
