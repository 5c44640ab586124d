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

// MemState is one memory value number together with the block that
// produced it.
type MemState struct {
    VN  VN
    Def *Block
}

// Memory is the memory state at a program point: the heap as a whole,
// plus locations (fields, array element types, statics) whose state
// differs from it.
type Memory struct {
    Heap MemState
    Locs map[string]MemState
}

func (self Memory) Clone() Memory {
    ret := Memory{Heap: self.Heap}
    if len(self.Locs) != 0 {
        ret.Locs = make(map[string]MemState, len(self.Locs))
        for k, v := range self.Locs {
            ret.Locs[k] = v
        }
    }
    return ret
}

// At returns the memory state a load of loc observes.
func (self Memory) At(loc string) MemState {
    if v, ok := self.Locs[loc]; ok && loc != "" {
        return v
    } else {
        return self.Heap
    }
}

// Clobber replaces the whole heap.
func (self *Memory) Clobber(vn VN, def *Block) {
    self.Heap = MemState{VN: vn, Def: def}
    self.Locs = nil
}

// Update replaces the state of one location, or of the heap when loc
// is empty.
func (self *Memory) Update(loc string, vn VN, def *Block) {
    if loc == "" {
        self.Clobber(vn, def)
        return
    }

    /* copy on write */
    locs := make(map[string]MemState, len(self.Locs) + 1)
    for k, v := range self.Locs {
        locs[k] = v
    }

    /* set the new state */
    locs[loc] = MemState{VN: vn, Def: def}
    self.Locs = locs
}

func (self Memory) Equal(other Memory) bool {
    if self.Heap != other.Heap || len(self.Locs) != len(other.Locs) {
        return false
    }
    for k, v := range self.Locs {
        if w, ok := other.Locs[k]; !ok || w != v {
            return false
        }
    }
    return true
}

func FieldLoc(field string) string              { return "field:" + field }
func ElemLoc(elem string) string                { return "elem:" + elem }
func StaticLoc(class string, field string) string { return "static:" + class + "::" + field }

// AddrField recovers the field an address refers to, accepting a field
// address optionally offset by a constant.
func AddrField(addr *Node) (string, bool) {
    switch {
        case addr.Op == OpFieldAddr: {
            return addr.Field, true
        }
        case addr.Op == OpAdd && addr.Op1.Op == OpFieldAddr && addr.Op2.IsIntCns(): {
            return addr.Op1.Field, true
        }
        case addr.Op == OpAdd && addr.Op2.Op == OpFieldAddr && addr.Op1.IsIntCns(): {
            return addr.Op2.Field, true
        }
        default: {
            return "", false
        }
    }
}

// MemoryLoc returns the location an address refers to, or "" when it
// may be anywhere in the heap.
func MemoryLoc(addr *Node) string {
    if f, ok := AddrField(addr); ok {
        return FieldLoc(f)
    } else if addr.Op == OpIndexAddr {
        return ElemLoc(addr.ElemType)
    } else {
        return ""
    }
}

type _Numberer struct {
    fn  *Flow
    bb  *Block
    mem Memory
}

// NumberBlock assigns value numbers to every tree of blk, starting from
// the memory state `in`, and returns the memory state at its end.
func (self *Flow) NumberBlock(blk *Block, in Memory) Memory {
    nb := &_Numberer {
        fn  : self,
        bb  : blk,
        mem : in.Clone(),
    }

    /* number every statement */
    blk.MemoryIn = in
    for _, s := range blk.Stmts {
        nb.number(s)
    }
    return nb.mem
}

// NumberTree assigns value numbers to one tree evaluated in blk with
// memory state mem, which is updated by the stores the tree performs.
func (self *Flow) NumberTree(blk *Block, node *Node, mem *Memory) VN {
    nb := &_Numberer {
        fn  : self,
        bb  : blk,
        mem : mem.Clone(),
    }

    /* number the tree */
    vn := nb.number(node)
    *mem = nb.mem
    return vn
}

// NumberAll numbers the whole method without loop knowledge. Blocks
// whose predecessors disagree, or come later, start from a memory phi.
func (self *Flow) NumberAll() {
    out := make(map[*Block]Memory)
    for bb := self.First; bb != nil; bb = bb.Next {
        out[bb] = self.NumberBlock(bb, self.MergeMemory(bb, out))
    }
}

// MergeMemory returns the memory state at the start of bb given the
// states at the end of the blocks numbered so far.
func (self *Flow) MergeMemory(bb *Block, out map[*Block]Memory) Memory {
    var ok bool
    var ret Memory
    var mem Memory

    /* all the predecessors must be numbered already and agree */
    for i, e := range bb.Preds {
        if mem, ok = out[e.From]; !ok {
            break
        } else if i == 0 {
            ret = mem
        } else if !mem.Equal(ret) {
            ok = false
            break
        }
    }

    /* merge with a memory phi */
    if !ok {
        return Memory{Heap: MemState{VN: self.VNs.MemPhi(bb), Def: bb}}
    } else {
        return ret
    }
}

func (self *_Numberer) unique(t VarType) VN {
    return self.fn.VNs.UniqueIn(t, self.bb.LoopNum)
}

func (self *_Numberer) lclVN(t VarType, lcl int, ssa int) VN {
    v := self.fn.Lcls[lcl]
    if !v.InSsa() {
        return self.unique(t)
    }

    /* definitions not numbered yet are named by their site */
    if def := v.SsaDef(ssa); def == nil {
        return self.unique(t)
    } else if def.VN != NoVN {
        return def.VN
    } else {
        return self.fn.VNs.PhiDef(t, lcl, ssa, def.Block)
    }
}

func (self *_Numberer) load(node *Node, loc string, args ...VN) VN {
    st := self.mem.At(loc)
    self.fn.VNs.MemDep[node] = st.Def
    return self.fn.VNs.Func(node.Op, loc, node.Type, append(args, st.VN)...)
}

func (self *_Numberer) number(node *Node) VN {
    var vn VN
    var args []VN
    vs := self.fn.VNs

    /* operands first, in evaluation order */
    if node.Op != OpPhi {
        for _, c := range node.Children() {
            args = append(args, self.number(c))
        }
    }

    /* then the node itself */
    switch node.Op {
        case OpConst: {
            vn = vs.Const(node.Type, node.Val)
        }
        case OpLclVar, OpPhiArg: {
            vn = self.lclVN(node.Type, node.Lcl, node.Ssa)
        }
        case OpNeg, OpAdd, OpSub, OpMul, OpLsh, OpRsh, OpRsz, OpAnd, OpOr, OpXor: {
            vn = vs.Func(node.Op, "", node.Type, args...)
        }
        case OpEQ, OpNE, OpLT, OpLE, OpGT, OpGE, OpCast: {
            if node.Unsigned {
                vn = vs.Func(node.Op, "un", node.Type, args...)
            } else {
                vn = vs.Func(node.Op, "", node.Type, args...)
            }
        }
        case OpFieldAddr: {
            vn = vs.Func(node.Op, node.Field, node.Type, args...)
        }
        case OpIndexAddr: {
            vn = vs.Func(node.Op, node.ElemType, node.Type, args...)
        }
        case OpArrLen: {
            vn = vs.Func(node.Op, "", node.Type, args...)
        }
        case OpInd: {
            vn = self.load(node, MemoryLoc(node.Op1), args...)
        }
        case OpClsVar: {
            vn = self.load(node, StaticLoc(node.Class, node.Field))
        }
        case OpComma: {
            vn = args[1]
        }
        case OpStoreLcl: {
            vn = self.storeLcl(node, args)
        }
        case OpStoreInd: {
            vn = args[1]
            self.mem.Update(MemoryLoc(node.Op1), self.unique(TypeVoid), self.bb)
        }
        case OpStoreClsVar: {
            vn = args[0]
            self.mem.Update(StaticLoc(node.Class, node.Field), self.unique(TypeVoid), self.bb)
        }
        case OpCall: {
            vn = self.call(node, args)
        }
        case OpMemoryBarrier, OpXAdd, OpXChg, OpCmpXchg: {
            vn = self.unique(node.Type)
            self.mem.Clobber(self.unique(TypeVoid), self.bb)
        }
    }

    /* save the value number */
    node.VN = vn
    return vn
}

func (self *_Numberer) storeLcl(node *Node, args []VN) VN {
    vn := NoVN
    v := self.fn.Lcls[node.Lcl]

    /* phis are named by their definition */
    if node.Op1.Op == OpPhi {
        vn = self.fn.VNs.PhiDef(node.Type, node.Lcl, node.Ssa, self.bb)
    } else {
        vn = args[0]
    }

    /* record on the SSA definition */
    if def := v.SsaDef(node.Ssa); def != nil && v.InSsa() {
        def.VN = vn
    }
    return vn
}

func (self *_Numberer) call(node *Node, args []VN) VN {
    vs := self.fn.VNs
    info, ok := self.fn.Helpers.Info(node.Helper)

    /* pure helpers are functions of their arguments */
    if ok && info.Pure && !node.Has(FlagCallUser) {
        return vs.Func(OpCall, node.Helper, node.Type, args...)
    }

    /* anything else may write the heap */
    if self.fn.Helpers.IsHeapMutating(node) {
        self.mem.Clobber(self.unique(TypeVoid), self.bb)
    }
    return self.unique(node.Type)
}
