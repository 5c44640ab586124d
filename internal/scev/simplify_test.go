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

package scev

import (
    `testing`

    `github.com/cloudwego/loopopt/internal/ir`
    `github.com/stretchr/testify/require`
)

func rec(start Scev, step Scev) *AddRec {
    return &AddRec{T: ir.TypeInt, Start: start, Step: step}
}

func ic(v int64) *Constant {
    return NewConstant(ir.TypeInt, v)
}

func TestSimplify(t *testing.T) {
    x := &Local{T: ir.TypeInt, Lcl: 1, Ssa: 1}
    tests := []struct {
        name string
        in   Scev
        want string
    } {
        { "fold"         , &Binop{Op: OperAdd, T: ir.TypeInt, X: ic(2), Y: ic(3)}                      , "5" },
        { "wrap"         , &Binop{Op: OperAdd, T: ir.TypeInt, X: ic(0x7fffffff), Y: ic(1)}             , "-2147483648" },
        { "wrap long"    , &Binop{Op: OperAdd, T: ir.TypeLong, X: ic(0x7fffffff), Y: ic(1)}            , "2147483648" },
        { "wrap ubyte"   , &Binop{Op: OperAdd, T: ir.TypeUByte, X: ic(255), Y: ic(1)}                  , "0" },
        { "shift"        , &Binop{Op: OperLsh, T: ir.TypeInt, X: ic(1), Y: ic(33)}                     , "2" },
        { "constant right", &Binop{Op: OperAdd, T: ir.TypeInt, X: ic(3), Y: x}                          , "(V01.1 + 3)" },
        { "add zero"     , &Binop{Op: OperAdd, T: ir.TypeInt, X: x, Y: ic(0)}                          , "V01.1" },
        { "mul one"      , &Binop{Op: OperMul, T: ir.TypeInt, X: ic(1), Y: x}                          , "V01.1" },
        { "reassociate"  , &Binop{Op: OperAdd, T: ir.TypeInt, X: &Binop{Op: OperAdd, T: ir.TypeInt, X: x, Y: ic(1)}, Y: ic(2)}, "(V01.1 + 3)" },
        { "rec left"     , &Binop{Op: OperAdd, T: ir.TypeInt, X: x, Y: rec(ic(0), ic(1))}              , "<L00, V01.1, 1>" },
        { "rec add"      , &Binop{Op: OperAdd, T: ir.TypeInt, X: rec(ic(1), ic(2)), Y: ic(5)}          , "<L00, 6, 2>" },
        { "rec mul"      , &Binop{Op: OperMul, T: ir.TypeInt, X: rec(ic(1), ic(2)), Y: ic(3)}          , "<L00, 3, 6>" },
        { "rec lsh"      , &Binop{Op: OperLsh, T: ir.TypeInt, X: rec(ic(1), ic(1)), Y: ic(2)}          , "<L00, 4, 4>" },
        { "rec rec"      , &Binop{Op: OperAdd, T: ir.TypeInt, X: rec(ic(1), ic(2)), Y: rec(ic(3), ic(4))}, "<L00, 4, 6>" },
        { "rec symbolic" , &Binop{Op: OperMul, T: ir.TypeInt, X: rec(ic(0), ic(1)), Y: x}              , "<L00, 0, V01.1>" },
        { "nested"       , rec(&Binop{Op: OperAdd, T: ir.TypeInt, X: ic(1), Y: ic(1)}, ic(1))          , "<L00, 2, 1>" },
        { "same width"   , &Extend{Op: OperSignExtend, T: ir.TypeInt, V: x}                             , "V01.1" },
        { "sext"         , &Extend{Op: OperSignExtend, T: ir.TypeLong, V: ic(-1)}                       , "-1" },
        { "zext"         , &Extend{Op: OperZeroExtend, T: ir.TypeLong, V: ic(-1)}                       , "4294967295" },
        { "kept"         , &Extend{Op: OperZeroExtend, T: ir.TypeLong, V: x}                            , "ZExt<64>(V01.1)" },
    }
    for _, tc := range tests {
        t.Run(tc.name, func(t *testing.T) {
            require.Equal(t, tc.want, Simplify(tc.in).String())
        })
    }
}

func TestSimplify_Idempotent(t *testing.T) {
    v := &Binop {
        Op : OperMul,
        T  : ir.TypeInt,
        X  : &Binop{Op: OperAdd, T: ir.TypeInt, X: ic(1), Y: rec(ic(2), ic(3))},
        Y  : ic(2),
    }
    once := Simplify(v)
    require.Equal(t, "<L00, 6, 6>", once.String())
    require.Equal(t, once.String(), Simplify(once).String())
}

func TestSimplify_VariantOperand(t *testing.T) {
    r1 := rec(ic(0), ic(1))
    r2 := &AddRec{T: ir.TypeInt, Loop: 1, Start: ic(0), Step: ic(1)}
    v := Simplify(&Binop{Op: OperMul, T: ir.TypeInt, X: r1, Y: r2})
    require.Equal(t, OperMul, v.Oper())
    require.Equal(t, "(<L00, 0, 1> * <L01, 0, 1>)", v.String())
}

func TestIsInvariant(t *testing.T) {
    x := &Local{T: ir.TypeInt}
    require.True(t, IsInvariant(ic(1)))
    require.True(t, IsInvariant(&Binop{Op: OperAdd, T: ir.TypeInt, X: x, Y: ic(1)}))
    require.True(t, IsInvariant(&Extend{Op: OperSignExtend, T: ir.TypeLong, V: x}))
    require.False(t, IsInvariant(rec(ic(0), ic(1))))
    require.False(t, IsInvariant(&Binop{Op: OperAdd, T: ir.TypeInt, X: x, Y: rec(ic(0), ic(1))}))
}
