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
    `strings`
)

type Op uint8

const (
    OpNop Op = iota
    OpConst
    OpLclVar
    OpNeg
    OpCast
    OpAdd
    OpSub
    OpMul
    OpLsh
    OpRsh
    OpRsz
    OpAnd
    OpOr
    OpXor
    OpEQ
    OpNE
    OpLT
    OpLE
    OpGT
    OpGE
    OpJTrue
    OpReturn
    OpInd
    OpClsVar
    OpFieldAddr
    OpIndexAddr
    OpArrLen
    OpStoreLcl
    OpPhi
    OpPhiArg
    OpStoreInd
    OpStoreClsVar
    OpCall
    OpComma
    OpMemoryBarrier
    OpXAdd
    OpXChg
    OpCmpXchg
    OpNoOp
    _OpCount
)

var _OpNames = [_OpCount]string {
    OpNop           : "nop",
    OpConst         : "const",
    OpLclVar        : "lcl",
    OpNeg           : "neg",
    OpCast          : "cast",
    OpAdd           : "add",
    OpSub           : "sub",
    OpMul           : "mul",
    OpLsh           : "lsh",
    OpRsh           : "rsh",
    OpRsz           : "rsz",
    OpAnd           : "and",
    OpOr            : "or",
    OpXor           : "xor",
    OpEQ            : "eq",
    OpNE            : "ne",
    OpLT            : "lt",
    OpLE            : "le",
    OpGT            : "gt",
    OpGE            : "ge",
    OpJTrue         : "jtrue",
    OpReturn        : "return",
    OpInd           : "ind",
    OpClsVar        : "clsvar",
    OpFieldAddr     : "field_addr",
    OpIndexAddr     : "index_addr",
    OpArrLen        : "arrlen",
    OpStoreLcl      : "store_lcl",
    OpPhi           : "phi",
    OpPhiArg        : "phi_arg",
    OpStoreInd      : "store_ind",
    OpStoreClsVar   : "store_clsvar",
    OpCall          : "call",
    OpComma         : "comma",
    OpMemoryBarrier : "memory_barrier",
    OpXAdd          : "xadd",
    OpXChg          : "xchg",
    OpCmpXchg       : "cmpxchg",
    OpNoOp          : "no_op",
}

func (self Op) String() string {
    if self < _OpCount {
        return _OpNames[self]
    } else {
        return fmt.Sprintf("op(%d)", self)
    }
}

// ParseOp looks an operator up by its printed name.
func ParseOp(name string) (Op, bool) {
    for i, v := range _OpNames {
        if v == name {
            return Op(i), true
        }
    }
    return OpNop, false
}

func (self Op) IsCompare() bool { return self >= OpEQ && self <= OpGE }
func (self Op) IsArith() bool   { return self >= OpAdd && self <= OpXor }
func (self Op) IsAtomic() bool  { return self >= OpXAdd && self <= OpCmpXchg }

// IsStore reports operators that write a location.
func (self Op) IsStore() bool {
    return self == OpStoreLcl || self == OpStoreInd || self == OpStoreClsVar
}

// IsLeaf reports operators without operands.
func (self Op) IsLeaf() bool {
    switch self {
        case OpNop, OpConst, OpLclVar, OpClsVar, OpPhiArg, OpMemoryBarrier, OpNoOp : return true
        default                                                                  : return false
    }
}

type NodeFlags uint32

const (
    FlagExcept NodeFlags = 1 << iota
    FlagCall
    FlagAsg
    FlagGlobRef
    FlagOrderSideEff
    FlagMakeCSE
    FlagDontCSE
    FlagInitClass
    FlagCallUser
    FlagCallHoistable
    FlagNonFaulting
    FlagReverse
    FlagNoClone
)

const (
    FlagsSideEffect = FlagExcept | FlagCall | FlagAsg
    FlagsGlobEffect = FlagsSideEffect | FlagGlobRef | FlagOrderSideEff
)

// Node is one tree node. Operands are evaluated Op1, Op2 and then Args,
// unless FlagReverse swaps the first two.
type Node struct {
    Op       Op
    Type     VarType
    Op1      *Node
    Op2      *Node
    Args     []*Node
    Val      int64
    Lcl      int
    Ssa      int
    Field    string
    Class    string
    ElemType string
    Helper   string
    Pred     *Block
    Unsigned bool
    Flags    NodeFlags
    VN       VN
    CostEx   int
    CostSz   int
}

func (self *Node) Has(f NodeFlags) bool {
    return self.Flags & f != 0
}

// Children returns the operands in evaluation order.
func (self *Node) Children() []*Node {
    ret := make([]*Node, 0, 2 + len(self.Args))
    x, y := self.Op1, self.Op2

    /* reversed operand order */
    if self.Has(FlagReverse) {
        x, y = y, x
    }

    /* fixed operands first */
    if x != nil { ret = append(ret, x) }
    if y != nil { ret = append(ret, y) }
    return append(ret, self.Args...)
}

// IsIntCns reports an integral constant.
func (self *Node) IsIntCns() bool {
    return self.Op == OpConst && self.Type.IsIntegral()
}

// IsPhiStore reports a store of a phi to an SSA local.
func (self *Node) IsPhiStore() bool {
    return self.Op == OpStoreLcl && self.Op1 != nil && self.Op1.Op == OpPhi
}

// IsLclStoreOf reports a store to the given local.
func (self *Node) IsLclStoreOf(lcl int) bool {
    return self.Op == OpStoreLcl && self.Lcl == lcl
}

func (self *Node) gather() *Node {
    f := self.Flags &^ FlagsGlobEffect

    /* inherit from the operands */
    for _, c := range self.Children() {
        f |= c.Flags & FlagsGlobEffect
    }

    /* add the effects of the operator itself */
    switch self.Op {
        case OpInd          : f |= FlagGlobRef ; if !self.Has(FlagNonFaulting) { f |= FlagExcept }
        case OpClsVar       : f |= FlagGlobRef
        case OpArrLen       : f |= FlagExcept
        case OpIndexAddr    : f |= FlagExcept
        case OpStoreLcl     : f |= FlagAsg
        case OpStoreInd     : f |= FlagAsg | FlagGlobRef | FlagExcept
        case OpStoreClsVar  : f |= FlagAsg | FlagGlobRef
        case OpMemoryBarrier: f |= FlagOrderSideEff | FlagGlobRef
        case OpCall         : f |= FlagCall | self.Flags & FlagExcept
    }

    /* atomics do everything */
    if self.Op.IsAtomic() {
        f |= FlagAsg | FlagGlobRef | FlagExcept | FlagOrderSideEff
    }

    /* update the flags */
    self.Flags = f
    return self
}

// RecomputeFlags re-derives the effect flags of the whole tree.
func RecomputeFlags(node *Node) {
    Walk(node, nil, func(n *Node) { n.gather() })
}

func NewConst(t VarType, v int64) *Node {
    return &Node{Op: OpConst, Type: t, Val: t.Wrap(v)}
}

func NewLclVar(t VarType, lcl int, ssa int) *Node {
    return &Node{Op: OpLclVar, Type: t, Lcl: lcl, Ssa: ssa}
}

func NewUnary(op Op, t VarType, x *Node) *Node {
    return (&Node{Op: op, Type: t, Op1: x}).gather()
}

func NewBinary(op Op, t VarType, x *Node, y *Node) *Node {
    return (&Node{Op: op, Type: t, Op1: x, Op2: y}).gather()
}

// NewCompare builds a relational node. unsigned selects the unsigned
// comparison.
func NewCompare(op Op, x *Node, y *Node, unsigned bool) *Node {
    n := NewBinary(op, TypeInt, x, y)
    n.Unsigned = unsigned
    return n
}

// NewCast converts x to t. unsigned marks the source as unsigned.
func NewCast(t VarType, x *Node, unsigned bool) *Node {
    n := NewUnary(OpCast, t, x)
    n.Unsigned = unsigned
    return n
}

func NewJTrue(cond *Node) *Node {
    return NewUnary(OpJTrue, TypeVoid, cond)
}

func NewReturn(x *Node) *Node {
    if x == nil {
        return (&Node{Op: OpReturn, Type: TypeVoid}).gather()
    } else {
        return NewUnary(OpReturn, x.Type, x)
    }
}

func NewInd(t VarType, addr *Node) *Node {
    return NewUnary(OpInd, t, addr)
}

func NewClsVar(t VarType, class string, field string) *Node {
    return (&Node{Op: OpClsVar, Type: t, Class: class, Field: field}).gather()
}

func NewFieldAddr(obj *Node, field string) *Node {
    n := NewUnary(OpFieldAddr, TypeByref, obj)
    n.Field = field
    return n
}

func NewIndexAddr(arr *Node, idx *Node, elem string) *Node {
    n := NewBinary(OpIndexAddr, TypeByref, arr, idx)
    n.ElemType = elem
    return n
}

func NewArrLen(arr *Node) *Node {
    return NewUnary(OpArrLen, TypeInt, arr)
}

func NewStoreLcl(t VarType, lcl int, ssa int, val *Node) *Node {
    return (&Node{Op: OpStoreLcl, Type: t, Lcl: lcl, Ssa: ssa, Op1: val}).gather()
}

func NewStoreInd(t VarType, addr *Node, val *Node) *Node {
    return NewBinary(OpStoreInd, t, addr, val)
}

func NewStoreClsVar(t VarType, class string, field string, val *Node) *Node {
    return (&Node{Op: OpStoreClsVar, Type: t, Class: class, Field: field, Op1: val}).gather()
}

func NewPhi(t VarType, args ...*Node) *Node {
    return (&Node{Op: OpPhi, Type: t, Args: args}).gather()
}

func NewPhiArg(t VarType, lcl int, ssa int, pred *Block) *Node {
    return &Node{Op: OpPhiArg, Type: t, Lcl: lcl, Ssa: ssa, Pred: pred}
}

// NewUserCall builds a call to a non-helper method, which is assumed to
// do anything.
func NewUserCall(t VarType, args ...*Node) *Node {
    return (&Node{Op: OpCall, Type: t, Args: args, Flags: FlagCallUser | FlagExcept}).gather()
}

func NewComma(x *Node, y *Node) *Node {
    return NewBinary(OpComma, y.Type, x, y)
}

func NewBarrier() *Node {
    return (&Node{Op: OpMemoryBarrier, Type: TypeVoid}).gather()
}

func NewAtomic(op Op, t VarType, addr *Node, val *Node, cmp ...*Node) *Node {
    return (&Node{Op: op, Type: t, Op1: addr, Op2: val, Args: cmp}).gather()
}

func NewNop() *Node {
    return &Node{Op: OpNop, Type: TypeVoid}
}

func (self *Node) String() string {
    var sb strings.Builder
    self.format(&sb)
    return sb.String()
}

func (self *Node) format(sb *strings.Builder) {
    sb.WriteByte('(')
    sb.WriteString(self.Op.String())

    /* the type, unless it tells nothing */
    if self.Type != TypeVoid {
        sb.WriteByte('.')
        sb.WriteString(self.Type.String())
    }

    /* unsigned compares and casts */
    if self.Unsigned {
        sb.WriteString(".un")
    }

    /* operator specific payload */
    switch self.Op {
        case OpConst       : fmt.Fprintf(sb, " %d", self.Val)
        case OpLclVar      : fmt.Fprintf(sb, " V%02d#%d", self.Lcl, self.Ssa)
        case OpStoreLcl    : fmt.Fprintf(sb, " V%02d#%d", self.Lcl, self.Ssa)
        case OpPhiArg      : fmt.Fprintf(sb, " V%02d#%d %s", self.Lcl, self.Ssa, self.Pred)
        case OpClsVar      : fmt.Fprintf(sb, " %s::%s", self.Class, self.Field)
        case OpStoreClsVar : fmt.Fprintf(sb, " %s::%s", self.Class, self.Field)
        case OpFieldAddr   : fmt.Fprintf(sb, " %s", self.Field)
        case OpIndexAddr   : fmt.Fprintf(sb, " %s[]", self.ElemType)
        case OpCall        : if self.Helper != "" { fmt.Fprintf(sb, " %s", self.Helper) } else { sb.WriteString(" user") }
    }

    /* the operands */
    for _, c := range self.Children() {
        sb.WriteByte(' ')
        c.format(sb)
    }
    sb.WriteByte(')')
}
