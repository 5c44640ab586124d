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
    `sync/atomic`
    `testing`

    `github.com/cloudwego/loopopt/internal/ir`
    `github.com/cloudwego/loopopt/internal/loops`
    `github.com/cloudwego/loopopt/internal/opts`
    `github.com/cloudwego/loopopt/internal/target`
    `github.com/stretchr/testify/require`
)

func testOptions() *opts.Options {
    o := opts.GetDefaultOptions()
    return &o
}

type counterFlow struct {
    fn   *ir.Flow
    body *ir.Block
    exit *ir.Block
    phi  *ir.Node
    incr *ir.Node
    i    int
    n    int
}

func lcl(v int, ssa int) *ir.Node {
    return ir.NewLclVar(ir.TypeInt, v, ssa)
}

// counterLoop builds
//
//     BB01: i#2 = 0
//     BB02: i#3 = phi(i#2, i#4); i#4 = next(i#3, n#1); if i#4 < n#1 goto BB02
//     BB03: return i#4
func counterLoop(next func(i *ir.Node, n *ir.Node) *ir.Node) *counterFlow {
    fn := ir.NewFlow()
    i := fn.NewLcl("i", ir.TypeInt, false)
    n := fn.NewLcl("n", ir.TypeInt, false)
    b1 := fn.AppendBlock(ir.JumpNone)
    b2 := fn.AppendBlock(ir.JumpCond)
    b3 := fn.AppendBlock(ir.JumpReturn)
    b2.Target = b2

    /* i#2, i#3 and i#4 in this order */
    init := ir.NewStoreLcl(ir.TypeInt, i, 0, ir.NewConst(ir.TypeInt, 0))
    fn.NewSsaDef(i, b1, init)
    phi := ir.NewStoreLcl(ir.TypeInt, i, 0, ir.NewPhi(ir.TypeInt, ir.NewPhiArg(ir.TypeInt, i, 2, b1), ir.NewPhiArg(ir.TypeInt, i, 4, b2)))
    fn.NewSsaDef(i, b2, phi)
    incr := ir.NewStoreLcl(ir.TypeInt, i, 0, next(lcl(i, 3), lcl(n, ir.SsaFirst)))
    fn.NewSsaDef(i, b2, incr)

    /* the statements */
    b1.Stmts = []*ir.Node { init }
    b2.Stmts = []*ir.Node { phi, incr, ir.NewJTrue(ir.NewCompare(ir.OpLT, lcl(i, 4), lcl(n, ir.SsaFirst), false)) }
    b3.Stmts = []*ir.Node { ir.NewReturn(lcl(i, 4)) }
    fn.ComputePreds()

    /* construct the flow */
    return &counterFlow {
        fn   : fn,
        body : b2,
        exit : b3,
        phi  : phi,
        incr : incr,
        i    : i,
        n    : n,
    }
}

func newContext(t *testing.T, fn *ir.Flow, o *opts.Options) *Context {
    tgt, err := target.Lookup("amd64")
    require.NoError(t, err)

    /* find the loop */
    tab := loops.NewTable(fn, o, tgt)
    fn.ComputeDoms()
    fn.ComputeReachability()
    tab.OptimizeLoops()
    tab.FindNaturalLoops()
    require.Equal(t, 1, tab.Len(), "%s", fn)

    /* analyze it */
    ctx := NewContext(fn, tab, o)
    ctx.ResetForLoop(0)
    return ctx
}

func addBy(step int64) func(*ir.Node, *ir.Node) *ir.Node {
    return func(i *ir.Node, _ *ir.Node) *ir.Node {
        return ir.NewBinary(ir.OpAdd, ir.TypeInt, i, ir.NewConst(ir.TypeInt, step))
    }
}

func TestAnalyze_Counter(t *testing.T) {
    cf := counterLoop(addBy(1))
    ctx := newContext(t, cf.fn, testOptions())

    /* the phi is the recurrence */
    rec := ctx.Analyze(cf.body, cf.phi)
    require.NotNil(t, rec)
    require.Equal(t, OperAddRec, rec.Oper())
    require.Equal(t, "<L00, 0, 1>", rec.String())

    /* the increment is one step ahead */
    next := ctx.Analyze(cf.body, cf.incr)
    require.NotNil(t, next)
    require.Equal(t, "(<L00, 0, 1> + 1)", next.String())
    require.Equal(t, "<L00, 1, 1>", Simplify(next).String())

    /* uses go through the definitions */
    require.Equal(t, "<L00, 1, 1>", Simplify(ctx.Analyze(cf.body, lcl(cf.i, 4))).String())
    require.Equal(t, "V01.1", ctx.Analyze(cf.body, lcl(cf.n, ir.SsaFirst)).String())
}

func TestAnalyze_InvariantStep(t *testing.T) {
    cf := counterLoop(func(i *ir.Node, n *ir.Node) *ir.Node {
        return ir.NewBinary(ir.OpAdd, ir.TypeInt, ir.NewBinary(ir.OpAdd, ir.TypeInt, n, i), ir.NewConst(ir.TypeInt, 2))
    })

    /* every addend but the phi is the step */
    ctx := newContext(t, cf.fn, testOptions())
    rec := ctx.Analyze(cf.body, cf.phi)
    require.NotNil(t, rec)
    require.Equal(t, "<L00, 0, (V01.1 + 2)>", rec.String())
    require.True(t, IsInvariant(rec.(*AddRec).Step))
}

func TestAnalyze_NotLinear(t *testing.T) {
    tests := []struct {
        name string
        next func(*ir.Node, *ir.Node) *ir.Node
    } {
        {
            name: "multiplied",
            next: func(i *ir.Node, _ *ir.Node) *ir.Node {
                return ir.NewBinary(ir.OpMul, ir.TypeInt, i, ir.NewConst(ir.TypeInt, 2))
            },
        },
        {
            name: "doubled",
            next: func(i *ir.Node, _ *ir.Node) *ir.Node {
                return ir.NewBinary(ir.OpAdd, ir.TypeInt, i, ir.Clone(i))
            },
        },
        {
            name: "unrelated",
            next: func(_ *ir.Node, n *ir.Node) *ir.Node {
                return ir.NewBinary(ir.OpAdd, ir.TypeInt, n, ir.NewConst(ir.TypeInt, 1))
            },
        },
        {
            name: "unsupported",
            next: func(i *ir.Node, _ *ir.Node) *ir.Node {
                return ir.NewBinary(ir.OpXor, ir.TypeInt, i, ir.NewConst(ir.TypeInt, 1))
            },
        },
    }
    for _, tc := range tests {
        t.Run(tc.name, func(t *testing.T) {
            cf := counterLoop(tc.next)
            ctx := newContext(t, cf.fn, testOptions())
            require.Nil(t, ctx.Analyze(cf.body, cf.phi))
        })
    }
}

func TestAnalyze_PhiOutsideHeader(t *testing.T) {
    cf := counterLoop(addBy(1))
    ctx := newContext(t, cf.fn, testOptions())
    require.Nil(t, ctx.Analyze(cf.exit, cf.phi))
}

func TestAnalyze_DepthLimit(t *testing.T) {
    o := testOptions()
    o.ScevMaxDepth = 1
    cf := counterLoop(addBy(1))
    ctx := newContext(t, cf.fn, o)
    require.Nil(t, ctx.Analyze(cf.body, cf.phi))
    require.Equal(t, "0", ctx.Analyze(cf.body, ir.NewConst(ir.TypeInt, 0)).String())
}

func TestAnalyze_DepthLimitIsNotCached(t *testing.T) {
    o := testOptions()
    o.ScevMaxDepth = 5
    cf := counterLoop(addBy(1))
    ctx := newContext(t, cf.fn, o)

    /* reaching the phi through a use runs out of depth */
    require.Nil(t, ctx.Analyze(cf.body, lcl(cf.i, 3)))

    /* asking for the phi directly still works */
    rec := ctx.Analyze(cf.body, cf.phi)
    require.NotNil(t, rec)
    require.Equal(t, "<L00, 0, 1>", rec.String())
}

func TestAnalyze_Casts(t *testing.T) {
    cf := counterLoop(addBy(1))
    ctx := newContext(t, cf.fn, testOptions())

    /* widening */
    wide := ctx.Analyze(cf.body, ir.NewCast(ir.TypeLong, lcl(cf.i, 3), false))
    require.NotNil(t, wide)
    require.Equal(t, "SExt<64>(<L00, 0, 1>)", wide.String())
    require.Equal(t, ir.TypeLong, wide.Type())

    /* unsigned sources are zero extended */
    zext := ctx.Analyze(cf.body, ir.NewCast(ir.TypeLong, lcl(cf.i, 3), true))
    require.Equal(t, OperZeroExtend, zext.Oper())

    /* narrowing loses bits */
    require.Nil(t, ctx.Analyze(cf.body, ir.NewCast(ir.TypeByte, lcl(cf.i, 3), false)))

    /* same width extensions disappear */
    same := ctx.Analyze(cf.body, ir.NewCast(ir.TypeInt, lcl(cf.i, 3), false))
    require.Equal(t, "<L00, 0, 1>", Simplify(same).String())
}

func TestAnalyze_Shapes(t *testing.T) {
    cf := counterLoop(addBy(1))
    ctx := newContext(t, cf.fn, testOptions())

    /* commas yield their value */
    comma := ir.NewComma(ir.NewNop(), lcl(cf.i, 3))
    require.Equal(t, "<L00, 0, 1>", ctx.Analyze(cf.body, comma).String())

    /* element addresses follow the index */
    addr := ir.NewIndexAddr(ir.NewLclVar(ir.TypeRef, cf.n, ir.SsaFirst), lcl(cf.i, 3), "int")
    require.Equal(t, "<L00, 0, 1>", ctx.Analyze(cf.body, addr).String())

    /* scaled and shifted */
    mul := ir.NewBinary(ir.OpMul, ir.TypeInt, lcl(cf.i, 3), ir.NewConst(ir.TypeInt, 4))
    require.Equal(t, "<L00, 0, 4>", Simplify(ctx.Analyze(cf.body, mul)).String())
    lsh := ir.NewBinary(ir.OpLsh, ir.TypeInt, lcl(cf.i, 4), ir.NewConst(ir.TypeInt, 3))
    require.Equal(t, "<L00, 8, 8>", Simplify(ctx.Analyze(cf.body, lsh)).String())

    /* loads are not analyzable */
    require.Nil(t, ctx.Analyze(cf.body, ir.NewInd(ir.TypeInt, ir.NewFieldAddr(ir.NewLclVar(ir.TypeRef, cf.n, ir.SsaFirst), "f"))))
}

func TestAnalyze_NestedRecursivePhi(t *testing.T) {
    fn := ir.NewFlow()
    i := fn.NewLcl("i", ir.TypeInt, false)
    j := fn.NewLcl("j", ir.TypeInt, false)
    b1 := fn.AppendBlock(ir.JumpNone)
    b2 := fn.AppendBlock(ir.JumpCond)
    b3 := fn.AppendBlock(ir.JumpReturn)
    b2.Target = b2

    /* i#2 j#2 */
    i0 := ir.NewStoreLcl(ir.TypeInt, i, 0, ir.NewConst(ir.TypeInt, 0))
    j0 := ir.NewStoreLcl(ir.TypeInt, j, 0, ir.NewConst(ir.TypeInt, 0))
    fn.NewSsaDef(i, b1, i0)
    fn.NewSsaDef(j, b1, j0)

    /* i#3 j#3 */
    iphi := ir.NewStoreLcl(ir.TypeInt, i, 0, ir.NewPhi(ir.TypeInt, ir.NewPhiArg(ir.TypeInt, i, 2, b1), ir.NewPhiArg(ir.TypeInt, i, 4, b2)))
    jphi := ir.NewStoreLcl(ir.TypeInt, j, 0, ir.NewPhi(ir.TypeInt, ir.NewPhiArg(ir.TypeInt, j, 2, b1), ir.NewPhiArg(ir.TypeInt, j, 4, b2)))
    fn.NewSsaDef(i, b2, iphi)
    fn.NewSsaDef(j, b2, jphi)

    /* j#4 = j#3 + 1; i#4 = i#3 + j#3 */
    jinc := ir.NewStoreLcl(ir.TypeInt, j, 0, ir.NewBinary(ir.OpAdd, ir.TypeInt, lcl(j, 3), ir.NewConst(ir.TypeInt, 1)))
    iinc := ir.NewStoreLcl(ir.TypeInt, i, 0, ir.NewBinary(ir.OpAdd, ir.TypeInt, lcl(i, 3), lcl(j, 3)))
    fn.NewSsaDef(j, b2, jinc)
    fn.NewSsaDef(i, b2, iinc)

    /* the blocks */
    b1.Stmts = []*ir.Node { i0, j0 }
    b2.Stmts = []*ir.Node { iphi, jphi, jinc, iinc, ir.NewJTrue(ir.NewCompare(ir.OpLT, lcl(j, 4), ir.NewConst(ir.TypeInt, 10), false)) }
    b3.Stmts = []*ir.Node { ir.NewReturn(lcl(i, 4)) }
    fn.ComputePreds()

    /* the step of i is itself a recurrence */
    ctx := newContext(t, fn, testOptions())
    require.Nil(t, ctx.Analyze(b2, iphi))

    /* the failure did not leak into the cache */
    rec := ctx.Analyze(b2, jphi)
    require.NotNil(t, rec)
    require.Equal(t, "<L00, 0, 1>", rec.String())

    /* the other order gives the same answers */
    ctx.ResetForLoop(0)
    rec = ctx.Analyze(b2, jphi)
    require.Equal(t, "<L00, 0, 1>", rec.String())
    require.Nil(t, ctx.Analyze(b2, iphi))
    require.Nil(t, ctx.Analyze(b2, iinc))
    require.Same(t, rec, ctx.Analyze(b2, jphi))
}

func TestAnalyze_Cache(t *testing.T) {
    cf := counterLoop(addBy(1))
    ctx := newContext(t, cf.fn, testOptions())
    first := ctx.Analyze(cf.body, cf.phi)

    /* the second lookup is a hit, and yields the same node */
    hits := atomic.LoadUint64(&CacheHits)
    require.Same(t, first, ctx.Analyze(cf.body, cf.phi))
    require.Greater(t, atomic.LoadUint64(&CacheHits), hits)

    /* resetting drops the results */
    ctx.ResetForLoop(0)
    require.NotSame(t, first, ctx.Analyze(cf.body, cf.phi))
    require.Equal(t, 0, ctx.Loop())
}

func TestAnalyze_NoLoop(t *testing.T) {
    cf := counterLoop(addBy(1))
    tab := loops.NewTable(cf.fn, testOptions(), target.Target{})
    ctx := NewContext(cf.fn, tab, testOptions())
    require.Panics(t, func() { ctx.Analyze(cf.body, cf.phi) })
}

func TestEvaluateAtIteration_BruteForce(t *testing.T) {
    for _, step := range []int64 { 1, -3, 7, 0x40000000 } {
        cf := counterLoop(addBy(step))
        ctx := newContext(t, cf.fn, testOptions())
        rec := ctx.Analyze(cf.body, cf.incr)
        require.NotNil(t, rec)

        /* i#4 after k + 1 increments */
        v := int64(0)
        for k := int64(0); k < 16; k++ {
            v = ir.TypeInt.Wrap(v + step)
            got, ok := EvaluateAtIteration(rec, k)
            require.True(t, ok)
            require.Equal(t, v, got, "step %d iteration %d", step, k)
        }
    }
}

func TestEvaluateAtIteration_Symbolic(t *testing.T) {
    rec := &AddRec{T: ir.TypeInt, Start: &Local{T: ir.TypeInt}, Step: NewConstant(ir.TypeInt, 1)}
    _, ok := EvaluateAtIteration(rec, 3)
    require.False(t, ok)
    _, ok = EvaluateAtIteration(NewConstant(ir.TypeInt, 1), 3)
    require.False(t, ok)
}
