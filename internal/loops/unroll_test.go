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
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

// bruteTrip runs `do { i op= inc } while (i test limit)` on int32 and
// counts the iterations.
func bruteTrip(init int64, limit int64, inc int64, test ir.Op) uint32 {
    n := uint32(0)
    for i := int32(init); n < 1000; {
        n++
        i += int32(inc)
        v := ir.Fold(ir.NewCompare(test, cns(int64(i)), cns(limit), false))
        if v.Val == 0 {
            break
        }
    }
    return n
}

func TestUnroll_ComputeLoopRep(t *testing.T) {
    tests := []struct {
        name  string
        init  int64
        limit int64
        inc   int64
        oper  ir.Op
        test  ir.Op
        count uint32
    } {
        { "lt"           , 0  , 10 ,  1 , ir.OpAdd , ir.OpLT , 10 },
        { "le by two"    , 0  , 10 ,  2 , ir.OpAdd , ir.OpLE , 6  },
        { "gt negative"  , 10 , 0  , -2 , ir.OpAdd , ir.OpGT , 5  },
        { "gt sub"       , 10 , 0  ,  2 , ir.OpSub , ir.OpGT , 5  },
        { "ge sub"       , 9  , 0  ,  3 , ir.OpSub , ir.OpGE , 4  },
        { "ne divisible" , 0  , 20 ,  4 , ir.OpAdd , ir.OpNE , 5  },
        { "ne downwards" , 10 , 0  , -2 , ir.OpAdd , ir.OpNE , 5  },
    }
    for _, tc := range tests {
        t.Run(tc.name, func(t *testing.T) {
            n, ok := ComputeLoopRep(tc.init, tc.limit, tc.inc, tc.oper, ir.TypeInt, tc.test, false, false)
            require.True(t, ok)
            require.Equal(t, tc.count, n)

            /* the same as running it */
            inc := tc.inc
            if tc.oper == ir.OpSub {
                inc = -inc
            }
            require.Equal(t, bruteTrip(tc.init, tc.limit, inc, tc.test), n)
        })
    }
}

func TestUnroll_ComputeLoopRepGuarded(t *testing.T) {
    n, ok := ComputeLoopRep(0, 10, 1, ir.OpAdd, ir.TypeInt, ir.OpLT, false, true)
    require.True(t, ok)
    require.Equal(t, uint32(10), n)
}

func TestUnroll_ComputeLoopRepFailures(t *testing.T) {
    _, ok := ComputeLoopRep(0, 10, 4, ir.OpAdd, ir.TypeInt, ir.OpNE, false, false)
    assert.False(t, ok, "not divisible")
    _, ok = ComputeLoopRep(100, 200, 10, ir.OpAdd, ir.TypeByte, ir.OpLT, false, false)
    assert.False(t, ok, "byte overflow")
    _, ok = ComputeLoopRep(0, 10, 0, ir.OpAdd, ir.TypeInt, ir.OpLT, false, false)
    assert.False(t, ok, "zero step")
    _, ok = ComputeLoopRep(0, 10, 1, ir.OpAdd, ir.TypeInt, ir.OpEQ, false, false)
    assert.False(t, ok, "equality test")
    _, ok = ComputeLoopRep(1, 64, 2, ir.OpMul, ir.TypeInt, ir.OpLT, false, false)
    assert.False(t, ok, "multiplication")
    _, ok = ComputeLoopRep(10, 0, 1, ir.OpAdd, ir.TypeInt, ir.OpGT, false, false)
    assert.False(t, ok, "wraps around")
    _, ok = ComputeLoopRep(0x7ffffff0, 0x7fffffff, 0x10, ir.OpAdd, ir.TypeInt, ir.OpLT, false, false)
    assert.False(t, ok, "int overflow")
}

// simdLoop builds
//
//     BB01: s = 0; i = 0
//     BB02: s = s + i; i = i + 1; if i < Vector<int>.Count goto BB02
//     BB03: return s
func simdLoop(count int64, elem string) *ir.Flow {
    fn := ir.NewFlow()
    s := fn.NewLcl("s", ir.TypeInt, false)
    i := fn.NewLcl("i", ir.TypeInt, false)
    b1 := fn.AppendBlock(ir.JumpNone)
    b2 := fn.AppendBlock(ir.JumpCond)
    b3 := fn.AppendBlock(ir.JumpReturn)
    b2.Target = b2

    /* the limit is a folded vector count */
    lim := cns(count)
    lim.ElemType = elem
    b1.Stmts = []*ir.Node { set(s, cns(0)), set(i, cns(0)) }
    b2.Stmts = []*ir.Node { set(s, add(ld(s), ld(i))), set(i, add(ld(i), cns(1))), jtrue(ir.OpLT, ld(i), lim) }
    b3.Stmts = []*ir.Node { ir.NewReturn(ld(s)) }
    fn.ComputePreds()
    return fn
}

func TestUnroll_VectorCountLoop(t *testing.T) {
    fn := simdLoop(4, "int")
    require.Equal(t, int64(6), run(t, fn, map[int]int64{}))

    /* the whole pipeline removes the loop */
    ctx := Optimize(fn, testOptions(), testTarget)
    require.Equal(t, 1, ctx.Unrolled, "%s", fn)
    require.Equal(t, 0, ctx.Table.Len())
    for bb := fn.First; bb != nil; bb = bb.Next {
        if bb.Kind == ir.JumpCond {
            require.Greater(t, bb.Target.Num, bb.Num, "backward jump left in %s", fn)
        }
    }

    /* and computes the same */
    require.Equal(t, int64(6), run(t, fn, map[int]int64{}))
}

func TestUnroll_NeedsVectorLimit(t *testing.T) {
    fn := simdLoop(4, "")
    tab := findLoops(fn)
    require.Equal(t, 1, tab.Len())
    require.True(t, tab.Loop(0).Has(LoopConst))
    require.False(t, tab.Loop(0).Has(LoopSIMDLimit))

    /* several iterations without a vector limit stay */
    require.Equal(t, 0, tab.UnrollLoops())
    require.False(t, tab.Loop(0).IsRemoved())

    /* unless under stress */
    tab.Opts.Stress = true
    require.Equal(t, 1, tab.UnrollLoops())
    require.True(t, tab.Loop(0).IsRemoved())
    require.Nil(t, tab.Loop(0).Head)
    require.Equal(t, int64(6), run(t, fn, map[int]int64{}))
}

func TestUnroll_SingleIteration(t *testing.T) {
    fn := simdLoop(1, "")
    tab := findLoops(fn)
    require.Equal(t, 1, tab.Len())
    require.Equal(t, 1, tab.UnrollLoops())
    require.Equal(t, int64(0), run(t, fn, map[int]int64{}))
}

func TestUnroll_KeepsOuterLoops(t *testing.T) {
    fn := nestedFlow()
    tab := findLoops(fn)
    tab.Opts.Stress = true

    /* only the inner loop goes */
    require.Equal(t, 1, tab.UnrollLoops())
    require.False(t, tab.Loop(0).IsRemoved())
    require.True(t, tab.Loop(1).IsRemoved())
    require.Equal(t, int64(15), run(t, fn, map[int]int64{}))
}

func TestUnroll_SharedTopIsNotUnrolled(t *testing.T) {
    o := testOptions()
    o.Stress = true
    fn := sharedTopFlow()
    ctx := Optimize(fn, o, testTarget)
    require.Equal(t, 0, ctx.Unrolled)
    require.Equal(t, 2, ctx.Table.Len())
    require.Equal(t, int64(10), run(t, fn, map[int]int64{}))
}

func TestUnroll_PipelineKeepsTombstones(t *testing.T) {
    o := testOptions()
    o.Stress = true
    fn := nestedFlow()
    ctx := Optimize(fn, o, testTarget)
    require.Equal(t, 1, ctx.Unrolled)

    /* the unrolled loop keeps its slot */
    tab := ctx.Table
    require.Equal(t, 2, tab.Len())
    require.True(t, tab.Loop(1).IsRemoved())
    require.False(t, tab.Loop(0).IsRemoved())
    require.Equal(t, ir.NotInLoop, tab.Loop(0).Child)

    /* its blocks now belong to the outer loop */
    for bb := fn.First; bb != nil; bb = bb.Next {
        require.NotEqual(t, 1, bb.LoopNum, "%s", bb)
    }
    require.Equal(t, int64(15), run(t, fn, map[int]int64{}))
}
