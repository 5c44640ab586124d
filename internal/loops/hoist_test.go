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
    `testing`

    `github.com/cloudwego/loopopt/internal/ir`
    `github.com/stretchr/testify/require`
)

// fieldLoop builds
//
//     BB01: s = 0; i = 0
//     BB02: s = s + obj.len; [obj.len = s]; i = i + 1; if i < 10 goto BB02
//     BB03: return s
func fieldLoop(writes bool) *ir.Flow {
    fn := ir.NewFlow()
    s := fn.NewLcl("s", ir.TypeInt, false)
    i := fn.NewLcl("i", ir.TypeInt, false)
    obj := fn.NewLcl("obj", ir.TypeRef, false)
    b1 := fn.AppendBlock(ir.JumpNone)
    b2 := fn.AppendBlock(ir.JumpCond)
    b3 := fn.AppendBlock(ir.JumpReturn)
    b2.Target = b2

    /* obj is only defined on entry */
    load := func() *ir.Node {
        return ir.NewInd(ir.TypeInt, ir.NewFieldAddr(ir.NewLclVar(ir.TypeRef, obj, ir.SsaFirst), "len"))
    }

    /* the body */
    b1.Stmts = []*ir.Node { set(s, cns(0)), set(i, cns(0)) }
    b2.Stmts = []*ir.Node { set(s, add(ld(s), load())) }
    if writes {
        b2.Stmts = append(b2.Stmts, ir.NewStoreInd(ir.TypeInt, load().Op1, ld(s)))
    }
    b2.Stmts = append(b2.Stmts, set(i, add(ld(i), cns(1))), jtrue(ir.OpLT, ld(i), cns(10)))
    b3.Stmts = []*ir.Node { ir.NewReturn(ld(s)) }
    fn.ComputePreds()
    return fn
}

func TestHoist_InvariantLoad(t *testing.T) {
    fn := fieldLoop(false)
    ctx := Optimize(fn, testOptions(), testTarget)
    require.Equal(t, 1, ctx.Hoisted, "%s", fn)

    /* the load went into a new pre-header */
    l := ctx.Table.Loop(0)
    require.True(t, l.Has(LoopHasPreheader))
    require.True(t, l.Has(LoopHoistable))
    pre := l.Head
    require.True(t, pre.Has(ir.BlockLoopPreheader))
    require.Equal(t, l.Top, pre.Next)
    require.Len(t, pre.Stmts, 1)
    require.Equal(t, ir.OpInd, pre.Stmts[0].Op)
    require.True(t, pre.Stmts[0].Has(ir.FlagMakeCSE))

    /* the original stays, marked for CSE */
    orig := l.Top.Stmts[0].Op1.Op2
    require.Equal(t, ir.OpInd, orig.Op)
    require.True(t, orig.Has(ir.FlagMakeCSE))
    require.NotSame(t, orig, pre.Stmts[0])
}

func TestHoist_ModifiedField(t *testing.T) {
    fn := fieldLoop(true)
    ctx := Optimize(fn, testOptions(), testTarget)
    l := ctx.Table.Loop(0)
    require.True(t, l.FieldsModified.Contains(ir.FieldLoc("len")))

    /* the load is not invariant, only its address is */
    require.Equal(t, 1, ctx.Hoisted, "%s", fn)
    require.Len(t, l.Head.Stmts, 1)
    require.Equal(t, ir.OpFieldAddr, l.Head.Stmts[0].Op)
}

func TestHoist_NotDoWhile(t *testing.T) {
    fn := fieldLoop(false)
    tab := findLoops(fn)
    fn.ComputeLiveness()
    tab.ComputeLoopSideEffects()
    tab.NumberValues()

    /* pretend the head does not fall into the loop */
    tab.Loop(0).Flags &^= LoopDoWhile
    require.Equal(t, 0, tab.HoistLoopCode())
    require.False(t, tab.Loop(0).Has(LoopHasPreheader))
}

func TestHoist_VNInvariance(t *testing.T) {
    fn := fieldLoop(false)
    tab := findLoops(fn)
    fn.ComputeLiveness()
    tab.ComputeLoopSideEffects()
    tab.NumberValues()

    /* constants are invariant, the accumulator is not */
    body := tab.Loop(0).Top.Stmts
    require.True(t, tab.VNIsLoopInvariant(body[0].Op1.Op2.VN, 0))
    require.False(t, tab.VNIsLoopInvariant(body[0].Op1.VN, 0))
    require.True(t, tab.TreeIsValidAtLoopHead(body[0].Op1.Op2, 0))
    require.False(t, tab.TreeIsValidAtLoopHead(body[0].Op1, 0))
}

// staticLoop builds
//
//     BB01: s = 0; i = 0
//     BB02: [before]; s = s + value(n); i = i + 1; if i < 10 goto BB02
//     BB03: return s
func staticLoop(value func(fn *ir.Flow, n int) *ir.Node, before func(fn *ir.Flow, n int) *ir.Node) *ir.Flow {
    fn := ir.NewFlow()
    s := fn.NewLcl("s", ir.TypeInt, false)
    i := fn.NewLcl("i", ir.TypeInt, false)
    n := fn.NewLcl("n", ir.TypeInt, false)
    b1 := fn.AppendBlock(ir.JumpNone)
    b2 := fn.AppendBlock(ir.JumpCond)
    b3 := fn.AppendBlock(ir.JumpReturn)
    b2.Target = b2

    /* the body */
    b1.Stmts = []*ir.Node { set(s, cns(0)), set(i, cns(0)) }
    if before != nil {
        b2.Stmts = append(b2.Stmts, before(fn, n))
    }
    b2.Stmts = append(b2.Stmts, set(s, add(ld(s), value(fn, n))), set(i, add(ld(i), cns(1))), jtrue(ir.OpLT, ld(i), cns(10)))
    b3.Stmts = []*ir.Node { ir.NewReturn(ld(s)) }
    fn.ComputePreds()
    return fn
}

func initStatic(fn *ir.Flow, _ int) *ir.Node {
    return fn.Helpers.NewStaticRead(ir.HelperGetSharedNonGCStaticBase, ir.TypeInt, "C", "f")
}

func divide(fn *ir.Flow, n int) *ir.Node {
    return fn.Helpers.NewCall(ir.HelperDiv, ir.TypeInt, ir.NewLclVar(ir.TypeInt, n, ir.SsaFirst), cns(7))
}

func TestHoist_StaticWithInitCheck(t *testing.T) {
    fn := staticLoop(initStatic, nil)
    ctx := Optimize(fn, testOptions(), testTarget)
    require.Equal(t, 1, ctx.Hoisted, "%s", fn)

    /* the init call goes along with the read */
    pre := ctx.Table.Loop(0).Head
    require.Len(t, pre.Stmts, 1)
    require.Equal(t, ir.OpComma, pre.Stmts[0].Op)
    require.Equal(t, ir.OpCall, pre.Stmts[0].Op1.Op)
    require.Equal(t, ir.OpClsVar, pre.Stmts[0].Op2.Op)
}

func TestHoist_StaticNeedsInitCheck(t *testing.T) {
    fn := staticLoop(func(fn *ir.Flow, _ int) *ir.Node {
        cls := ir.NewClsVar(ir.TypeInt, "C", "f")
        cls.Flags |= ir.FlagInitClass
        return cls
    }, nil)

    /* the read alone may run before the class is initialized */
    ctx := Optimize(fn, testOptions(), testTarget)
    require.Equal(t, 0, ctx.Hoisted, "%s", fn)
    require.False(t, ctx.Table.Loop(0).Has(LoopHasPreheader))
}

func TestHoist_AfterHeapWrite(t *testing.T) {
    fn := staticLoop(divide, nil)
    ctx := Optimize(fn, testOptions(), testTarget)
    require.Equal(t, 1, ctx.Hoisted, "%s", fn)

    /* a throwing call after a heap write stays in the loop */
    fn = staticLoop(divide, func(fn *ir.Flow, n int) *ir.Node {
        return fn.Helpers.NewCall(ir.HelperAssignRef, ir.TypeVoid, ir.NewLclVar(ir.TypeInt, n, ir.SsaFirst), cns(0))
    })
    ctx = Optimize(fn, testOptions(), testTarget)
    require.Equal(t, 0, ctx.Hoisted, "%s", fn)
}
