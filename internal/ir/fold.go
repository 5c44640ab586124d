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

// Fold folds constant operators bottom-up and returns the new root.
// Operands are rewritten in place.
func Fold(node *Node) *Node {
    if node == nil {
        return nil
    }

    /* fold the operands first */
    node.Op1 = Fold(node.Op1)
    node.Op2 = Fold(node.Op2)
    for i, a := range node.Args {
        node.Args[i] = Fold(a)
    }

    /* then the node itself */
    switch {
        case node.Op == OpNeg && node.Op1.IsIntCns()                         : return NewConst(node.Type, -node.Op1.Val)
        case node.Op == OpCast && node.Op1.IsIntCns()                        : return NewConst(node.Type, castValue(node.Op1, node.Unsigned))
        case node.Op.IsArith() && node.Op1.IsIntCns() && node.Op2.IsIntCns()   : return foldArith(node)
        case node.Op.IsCompare() && node.Op1.IsIntCns() && node.Op2.IsIntCns() : return foldCompare(node)
        case node.Op == OpComma && node.Op1.Flags & FlagsSideEffect == 0      : return node.Op2
        default                                                              : return node
    }
}

func castValue(x *Node, unsigned bool) int64 {
    if unsigned {
        return int64(unsignedValue(x.Type, x.Val))
    } else {
        return x.Val
    }
}

func unsignedValue(t VarType, v int64) uint64 {
    switch t.Size() {
        case 1  : return uint64(uint8(v))
        case 2  : return uint64(uint16(v))
        case 4  : return uint64(uint32(v))
        default : return uint64(v)
    }
}

func shiftMask(t VarType) int64 {
    if t.Size() > 4 {
        return 63
    } else {
        return 31
    }
}

func foldArith(node *Node) *Node {
    var v int64
    x, y := node.Op1.Val, node.Op2.Val

    /* compute the result at full width */
    switch node.Op {
        case OpAdd : v = x + y
        case OpSub : v = x - y
        case OpMul : v = x * y
        case OpAnd : v = x & y
        case OpOr  : v = x | y
        case OpXor : v = x ^ y
        case OpLsh : v = x << uint(y & shiftMask(node.Type))
        case OpRsh : v = x >> uint(y & shiftMask(node.Type))
        case OpRsz : v = int64(unsignedValue(node.Type, x) >> uint(y & shiftMask(node.Type)))
    }

    /* the constant wraps to the node type */
    return NewConst(node.Type, v)
}

func foldCompare(node *Node) *Node {
    var r bool
    t := node.Op1.Type

    /* unsigned compares see the raw bits */
    if node.Unsigned {
        r = compareOp(node.Op, unsignedValue(t, node.Op1.Val), unsignedValue(t, node.Op2.Val))
    } else {
        r = compareOp(node.Op, node.Op1.Val, node.Op2.Val)
    }

    /* relational results are 0 or 1 */
    if r {
        return NewConst(node.Type, 1)
    } else {
        return NewConst(node.Type, 0)
    }
}

func compareOp[T int64 | uint64](op Op, x T, y T) bool {
    switch op {
        case OpEQ : return x == y
        case OpNE : return x != y
        case OpLT : return x < y
        case OpLE : return x <= y
        case OpGT : return x > y
        case OpGE : return x >= y
        default   : panic(Assertf("ir: not a relational operator: %s", op))
    }
}

// ReverseOp returns the relational operator that yields the opposite
// result.
func ReverseOp(op Op) Op {
    switch op {
        case OpEQ : return OpNE
        case OpNE : return OpEQ
        case OpLT : return OpGE
        case OpLE : return OpGT
        case OpGT : return OpLE
        case OpGE : return OpLT
        default   : panic(Assertf("ir: not a relational operator: %s", op))
    }
}

// SwapOp returns the relational operator to use once the operands are
// swapped.
func SwapOp(op Op) Op {
    switch op {
        case OpLT : return OpGT
        case OpLE : return OpGE
        case OpGT : return OpLT
        case OpGE : return OpLE
        default   : return op
    }
}

// ReverseCond negates a condition in place. A JTrue has its condition
// reversed.
func ReverseCond(node *Node) {
    if node.Op == OpJTrue {
        node = node.Op1
    }

    /* reverse the relation, or wrap an arbitrary value in a compare */
    if node.Op.IsCompare() {
        node.Op = ReverseOp(node.Op)
    } else {
        cp := *node
        *node = Node {
            Op    : OpEQ,
            Type  : TypeInt,
            Op1   : &cp,
            Op2   : NewConst(cp.Type, 0),
            Flags : cp.Flags & FlagsGlobEffect,
        }
    }
}

// Eval evaluates a tree whose leaves are constants or locals bound in
// env. It reports false for anything else.
func Eval(node *Node, env map[int]int64) (int64, bool) {
    switch {
        case node.Op == OpConst: {
            return node.Val, true
        }
        case node.Op == OpLclVar: {
            v, ok := env[node.Lcl]
            return node.Type.Wrap(v), ok
        }
        case node.Op == OpComma: {
            return Eval(node.Op2, env)
        }
        case node.Op == OpNeg || node.Op == OpCast: {
            x, ok := Eval(node.Op1, env)
            if !ok {
                return 0, false
            }
            return Fold(&Node{Op: node.Op, Type: node.Type, Unsigned: node.Unsigned, Op1: NewConst(node.Op1.Type, x)}).Val, true
        }
        case node.Op.IsArith() || node.Op.IsCompare(): {
            x, ok1 := Eval(node.Op1, env)
            y, ok2 := Eval(node.Op2, env)
            if !ok1 || !ok2 {
                return 0, false
            }
            v := Fold(&Node {
                Op       : node.Op,
                Type     : node.Type,
                Unsigned : node.Unsigned,
                Op1      : NewConst(node.Op1.Type, x),
                Op2      : NewConst(node.Op2.Type, y),
            })
            return v.Val, true
        }
        default: {
            return 0, false
        }
    }
}
