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
    `bytes`
    `testing`

    `github.com/cloudwego/loopopt/internal/bitset`
    `github.com/davecgh/go-spew/spew`
    `github.com/stretchr/testify/require`
)

// loopFlow builds
//
//     BB01: x = 0
//     BB02: if !(x < 10) goto BB04
//     BB03: x = x + 1; goto BB02
//     BB04: return x
//     BB05: return 0          (unreachable)
func loopFlow() (*Flow, int) {
    fn := NewFlow()
    x := fn.NewLcl("x", TypeInt, false)
    b1 := fn.AppendBlock(JumpNone)
    b2 := fn.AppendBlock(JumpCond)
    b3 := fn.AppendBlock(JumpAlways)
    b4 := fn.AppendBlock(JumpReturn)
    b5 := fn.AppendBlock(JumpReturn)

    /* control flow */
    b2.Target = b4
    b3.Target = b2

    /* statements */
    b1.Stmts = []*Node { NewStoreLcl(TypeInt, x, 0, NewConst(TypeInt, 0)) }
    b2.Stmts = []*Node { NewJTrue(NewCompare(OpGE, NewLclVar(TypeInt, x, 0), NewConst(TypeInt, 10), false)) }
    b3.Stmts = []*Node { NewStoreLcl(TypeInt, x, 0, NewBinary(OpAdd, TypeInt, NewLclVar(TypeInt, x, 0), NewConst(TypeInt, 1))) }
    b4.Stmts = []*Node { NewReturn(NewLclVar(TypeInt, x, 0)) }
    b5.Stmts = []*Node { NewReturn(NewConst(TypeInt, 0)) }
    fn.ComputePreds()
    return fn, x
}

func TestFlow_Layout(t *testing.T) {
    fn, _ := loopFlow()
    require.Equal(t, 2, fn.ReturnCount)
    require.Equal(t, []int{1, 2, 3, 4, 5}, blockNums(fn))
    b2 := fn.BlockByNum(2)
    require.Equal(t, "BB01,BB03", b2.predList())

    /* inserting renumbers */
    nb := fn.NewBlockAfter(JumpNone, b2, false)
    require.Equal(t, 3, nb.Num)
    require.Equal(t, 4, fn.BlockByNum(4).Num)
    require.Equal(t, nb, b2.Next)

    /* removing a missing edge is an invariant violation */
    require.Panics(t, func() { fn.RemoveRefPred(b2, fn.Last) })
}

func blockNums(fn *Flow) []int {
    var ret []int
    for _, bb := range fn.Blocks() {
        ret = append(ret, bb.Num)
    }
    return ret
}

func TestFlow_Dominators(t *testing.T) {
    fn, _ := loopFlow()
    fn.ComputeDoms()
    b := fn.Blocks()

    /* immediate dominators */
    require.Nil(t, b[0].IDom)
    require.Equal(t, b[0], b[1].IDom)
    require.Equal(t, b[1], b[2].IDom)
    require.Equal(t, b[1], b[3].IDom)
    require.False(t, fn.IsReachableFromEntry(b[4]))
    require.Equal(t, []*Block { b[2], b[3] }, fn.DomChildren(b[1]))

    /* agree with the iterative dominator sets on reachable blocks */
    sets := fn.ComputeDomSets()
    for _, x := range b[:4] {
        for _, y := range b[:4] {
            exp := bitset.Sets.IsMember(fn.BlockUniverse, sets[y], x.ID)
            require.Equal(t, exp, fn.Dominates(x, y), "%s dom %s\n%s", x, y, spew.Sdump(sets[y]))
        }
    }

    /* unreachable blocks are dominated by nothing else */
    require.False(t, fn.Dominates(b[0], b[4]))
    require.True(t, fn.Dominates(b[4], b[4]))
}

func TestFlow_DominatorsWithHandler(t *testing.T) {
    fn := NewFlow()
    b1 := fn.AppendBlock(JumpNone)
    b2 := fn.AppendBlock(JumpReturn)
    h1 := fn.AppendBlock(JumpNone)
    h2 := fn.AppendBlock(JumpEHCatchRet)
    h2.Target = b2
    b1.TryIndex = 1
    h1.HndIndex = 1
    h2.HndIndex = 1
    fn.AddRegion(&EHRegion { Kind: EHCatch, TryBeg: b1, TryLast: b1, HndBeg: h1, HndLast: h2 })
    fn.ComputePreds()

    /* the handler is its own root, the join has the virtual root as idom */
    fn.ComputeDoms()
    require.True(t, fn.Dominates(h1, h2))
    require.False(t, fn.Dominates(b1, h1))
    require.False(t, fn.Dominates(b1, b2))
    require.Nil(t, b2.IDom)
}

func TestFlow_Reachability(t *testing.T) {
    fn, _ := loopFlow()
    b := fn.Blocks()
    require.True(t, fn.Reachable(b[2], b[1]))
    require.True(t, fn.Reachable(b[2], b[2]))
    require.True(t, fn.Reachable(b[0], b[3]))
    require.False(t, fn.Reachable(b[3], b[1]))
    require.False(t, fn.Reachable(b[0], b[4]))

    /* a new edge invalidates the sets */
    b[3].Kind = JumpAlways
    b[3].Target = b[1]
    fn.AddRefPred(b[1], b[3])
    require.True(t, fn.Reachable(b[3], b[2]))
}

func TestFlow_Liveness(t *testing.T) {
    fn, x := loopFlow()
    fn.ComputeLiveness()
    env := fn.VarUniverse
    i := fn.Lcls[x].TrackedIndex
    b := fn.Blocks()
    require.False(t, bitset.Sets.IsMember(env, b[0].LiveIn, i))
    require.True(t, bitset.Sets.IsMember(env, b[0].LiveOut, i))
    require.True(t, bitset.Sets.IsMember(env, b[1].LiveIn, i))
    require.True(t, bitset.Sets.IsMember(env, b[2].LiveOut, i))
    require.True(t, bitset.Sets.IsMember(env, b[2].VarDef, i))
    require.True(t, bitset.Sets.IsMember(env, b[2].VarUse, i))
    require.False(t, bitset.Sets.IsMember(env, b[3].LiveOut, i))
}

func TestFlow_RegionExtension(t *testing.T) {
    fn, _ := loopFlow()
    b := fn.Blocks()
    b[1].TryIndex = 1
    b[2].TryIndex = 1
    fn.AddRegion(&EHRegion { Kind: EHFinally, TryBeg: b[1], TryLast: b[2] })

    /* a block inserted after the region end joins the region */
    nb := fn.NewBlockAfter(JumpNone, b[2], true)
    require.Equal(t, nb, fn.Region(1).TryLast)
    require.Equal(t, 1, nb.TryIndex)
    require.True(t, fn.InTryRegions(1, nb))
    require.Equal(t, 1, fn.TryDepth(nb))

    /* without extension it stays outside */
    ob := fn.NewBlockAfter(JumpNone, nb, false)
    require.Equal(t, 0, ob.TryIndex)
    require.Equal(t, nb, fn.Region(1).TryLast)
}

func TestTree_Fold(t *testing.T) {
    v := Fold(NewBinary(OpAdd, TypeByte, NewConst(TypeByte, 127), NewConst(TypeByte, 1)))
    require.Equal(t, int64(-128), v.Val)
    v = Fold(NewCompare(OpLT, NewConst(TypeInt, -1), NewConst(TypeInt, 1), true))
    require.Equal(t, int64(0), v.Val)
    v = Fold(NewCompare(OpLT, NewConst(TypeInt, -1), NewConst(TypeInt, 1), false))
    require.Equal(t, int64(1), v.Val)
    v = Fold(NewBinary(OpRsz, TypeInt, NewConst(TypeInt, -1), NewConst(TypeInt, 28)))
    require.Equal(t, int64(15), v.Val)
    v = Fold(NewCast(TypeUByte, NewConst(TypeInt, 300), false))
    require.Equal(t, int64(44), v.Val)

    /* non-constant operands are left alone */
    x := NewBinary(OpAdd, TypeInt, NewLclVar(TypeInt, 0, 1), NewConst(TypeInt, 1))
    require.Equal(t, x, Fold(x))
}

func TestTree_ReverseCond(t *testing.T) {
    for _, op := range []Op { OpEQ, OpNE, OpLT, OpLE, OpGT, OpGE } {
        require.Equal(t, op, ReverseOp(ReverseOp(op)))
        for a := int64(-2); a <= 2; a++ {
            x := Fold(NewCompare(op, NewConst(TypeInt, a), NewConst(TypeInt, 0), false)).Val
            y := Fold(NewCompare(ReverseOp(op), NewConst(TypeInt, a), NewConst(TypeInt, 0), false)).Val
            require.Equal(t, int64(1), x ^ y)
        }
    }
    j := NewJTrue(NewCompare(OpLT, NewLclVar(TypeInt, 0, 1), NewConst(TypeInt, 4), false))
    ReverseCond(j)
    require.Equal(t, OpGE, j.Op1.Op)
}

func TestTree_Clone(t *testing.T) {
    x := NewBinary(OpMul, TypeInt, NewLclVar(TypeInt, 3, 1), NewBinary(OpAdd, TypeInt, NewLclVar(TypeInt, 3, 1), NewConst(TypeInt, 2)))
    c := CloneSubst(x, 3, 5)
    require.Equal(t, int64(35), Fold(c).Val)
    require.Equal(t, OpLclVar, x.Op1.Op)

    /* phis do not clone */
    phi := NewStoreLcl(TypeInt, 3, 2, NewPhi(TypeInt, NewPhiArg(TypeInt, 3, 1, nil)))
    require.Nil(t, Clone(phi))

    /* nor do pinned nodes */
    y := NewBinary(OpAdd, TypeInt, NewConst(TypeInt, 1), NewConst(TypeInt, 1))
    y.Op2.Flags |= FlagNoClone
    require.Nil(t, Clone(y))

    /* the visitor sees every pair */
    n := 0
    CloneVisit(x, func(o *Node, c *Node) {
        require.Equal(t, o.Op, c.Op)
        require.NotSame(t, o, c)
        n++
    })
    require.Equal(t, 5, n)
}

func TestTree_SideEffects(t *testing.T) {
    fn := NewFlow()
    st := NewStoreInd(TypeInt, NewFieldAddr(NewLclVar(TypeRef, 0, 1), "f"), NewConst(TypeInt, 1))
    call := NewUserCall(TypeInt)
    tree := NewComma(st, NewBinary(OpAdd, TypeInt, NewLclVar(TypeInt, 1, 1), call))
    require.Equal(t, []*Node { st, call }, ExtractSideEffects(tree))
    require.True(t, tree.Has(FlagAsg | FlagCall))

    /* a helper call to a pure helper only throws */
    div := fn.Helpers.NewCall(HelperDiv, TypeInt, NewConst(TypeInt, 1), NewConst(TypeInt, 2))
    require.True(t, div.Has(FlagExcept))
    require.False(t, fn.Helpers.IsHeapMutating(div))
    require.True(t, fn.Helpers.IsHeapMutating(fn.Helpers.NewCall("unknown", TypeVoid)))

    /* cse shapes */
    SetCosts(tree)
    require.False(t, IsCSECandidate(NewLclVar(TypeInt, 1, 1)))
    require.True(t, IsCSECandidate(tree.Op2))
    require.False(t, IsCSECandidate(st))
}

func TestTree_ValueNumbers(t *testing.T) {
    fn := NewFlow()
    o := fn.NewLcl("o", TypeRef, false)
    load := func(f string) *Node { return NewInd(TypeInt, NewFieldAddr(NewLclVar(TypeRef, o, SsaFirst), f)) }
    bb := fn.AppendBlock(JumpReturn)
    l1, l2, l3, l4 := load("f"), load("f"), load("f"), load("f")
    bb.Stmts = []*Node {
        NewReturn(l1),
        NewReturn(l2),
        NewStoreInd(TypeInt, NewFieldAddr(NewLclVar(TypeRef, o, SsaFirst), "g"), NewConst(TypeInt, 1)),
        NewReturn(l3),
        NewStoreInd(TypeInt, NewFieldAddr(NewLclVar(TypeRef, o, SsaFirst), "f"), NewConst(TypeInt, 1)),
        NewReturn(l4),
    }
    fn.NumberAll()
    require.Equal(t, l1.VN, l2.VN)
    require.Equal(t, l1.VN, l3.VN)
    require.NotEqual(t, l1.VN, l4.VN)
    require.Equal(t, VNFunc, fn.VNs.Kind(l1.VN))
    require.Equal(t, bb, fn.VNs.MemDep[l1])
    require.Equal(t, bb, fn.VNs.MemDep[l4])
}

func TestFlow_Dump(t *testing.T) {
    var buf bytes.Buffer
    fn, _ := loopFlow()
    fn.Dump(&buf)
    require.Contains(t, buf.String(), "BB02 [id=1 w=100] preds={BB01,BB03} cond -> BB04")
    require.Contains(t, buf.String(), "(store_lcl.int V00#0 (add.int (lcl.int V00#0) (const.int 1)))")
    buf.Reset()
    DumpVerbose(&buf, fn.First)
    require.Contains(t, buf.String(), "Weight")
}
