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

package fixture

import (
    `testing`

    `github.com/cloudwego/loopopt/internal/ir`
    `github.com/davecgh/go-spew/spew`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func TestFixture_Counter(t *testing.T) {
    f, err := Load("../../testdata/counter.yaml")
    require.NoError(t, err)
    m, err := f.Build()
    require.NoError(t, err, "%s", spew.Sdump(f))
    fn := m.Flow

    /* the block chain */
    bbs := fn.Blocks()
    require.Len(t, bbs, 3)
    assert.Equal(t, ir.JumpNone, bbs[0].Kind)
    assert.Equal(t, ir.JumpCond, bbs[1].Kind)
    assert.Equal(t, bbs[1], bbs[1].Target)
    assert.Equal(t, ir.JumpReturn, bbs[2].Kind)
    assert.Equal(t, "loop", m.Label(bbs[1]))
    assert.Equal(t, 2, len(bbs[1].Preds))

    /* trees print the way they were written */
    assert.Equal(t, "(store_lcl.int V00#4 (add.int (lcl.int V00#3) (const.int 1)))", bbs[1].Stmts[3].String())
    assert.Equal(t, "(jtrue (lt.int (lcl.int V00#4) (lcl.int V02#1)))", bbs[1].Stmts[4].String())

    /* SSA definitions point at their stores */
    i := 0
    def := fn.SsaDefOf(i, 3)
    require.NotNil(t, def)
    assert.Equal(t, bbs[1], def.Block)
    assert.True(t, def.Store.IsPhiStore())
    assert.Equal(t, 3, def.Store.Ssa)
    assert.Equal(t, bbs[0], fn.SsaDefOf(i, 2).Block)
    assert.Nil(t, fn.SsaDefOf(i, 5))

    /* the queries */
    require.Len(t, m.Queries, 3)
    assert.Equal(t, bbs[1], m.Queries[2].Block)
    assert.Same(t, bbs[1].Stmts[3], m.Queries[2].Node)
}

func TestFixture_Defaults(t *testing.T) {
    f, err := Load("../../testdata/nested.yaml")
    require.NoError(t, err)
    m, err := f.Build()
    require.NoError(t, err)

    /* labels are generated, types come from the locals */
    require.Len(t, m.Labels, 5)
    bb := m.Labels["BB03"]
    require.NotNil(t, bb)
    assert.Equal(t, m.Labels["BB03"], bb.Target)
    assert.Equal(t, ir.TypeInt, bb.Stmts[0].Type)
    assert.Equal(t, ir.UnityWeight, bb.Weight)
    assert.False(t, m.Flow.HaveProfileWeights)

    /* the load may fault */
    ind := bb.Stmts[0].Op1.Op2
    require.Equal(t, ir.OpInd, ind.Op)
    assert.True(t, ind.Has(ir.FlagExcept))
}

func TestFixture_Weights(t *testing.T) {
    f, err := Load("../../testdata/while.yaml")
    require.NoError(t, err)
    m, err := f.Build()
    require.NoError(t, err)
    fn := m.Flow

    /* profile data */
    assert.True(t, fn.HaveProfileWeights)
    assert.True(t, fn.HaveValidEdgeWeights)
    b2, b3, b4 := m.Labels["BB02"], m.Labels["BB03"], m.Labels["BB04"]
    assert.Equal(t, 110.0, b3.Weight)
    assert.True(t, b3.HasProfileWeight())
    assert.Equal(t, 100.0, b2.FindPred(b3).WeightMax)
    assert.Equal(t, 10.0, b4.FindPred(b3).WeightMin)
}

func TestFixture_Flags(t *testing.T) {
    src := `
locals:
  - { name: p, type: ref }
  - { name: x, type: int }
blocks:
  - kind: return
    flags: [dont_remove, has_call]
    stmts:
      - [store_lcl, x, [ind, int, +nonfaulting, [field_addr, [lcl, p#1], f]]]
      - [call, byref, CORINFO_HELP_GETSHARED_NONGCSTATIC_BASE, +hoistable]
      - [store_lcl, x, [comma, [call, byref, CORINFO_HELP_GETSHARED_NONGCSTATIC_BASE], [clsvar, int, C::f, +initclass]]]
      - [return, [cast.un, long, [lcl, x]]]
`
    f, err := Parse([]byte(src))
    require.NoError(t, err)
    m, err := f.Build()
    require.NoError(t, err)

    /* block flags */
    bb := m.Flow.First
    assert.True(t, bb.Has(ir.BlockDontRemove))
    assert.True(t, bb.Has(ir.BlockHasCall))

    /* node flags survive the effect recomputation */
    ind := bb.Stmts[0].Op1
    assert.True(t, ind.Has(ir.FlagNonFaulting))
    assert.False(t, ind.Has(ir.FlagExcept))
    call := bb.Stmts[1]
    assert.True(t, call.Has(ir.FlagCallHoistable))
    assert.Equal(t, ir.HelperGetSharedNonGCStaticBase, call.Helper)
    assert.False(t, call.Has(ir.FlagCallUser))
    assert.Equal(t, ir.TypeByref, call.Type)

    /* unsigned casts */
    cast := bb.Stmts[3].Op1
    assert.Equal(t, ir.OpCast, cast.Op)
    assert.True(t, cast.Unsigned)
    assert.Equal(t, ir.TypeLong, cast.Type)

    /* statics read after a class init check */
    cls := bb.Stmts[2].Op1.Op2
    assert.Equal(t, ir.OpClsVar, cls.Op)
    assert.True(t, cls.Has(ir.FlagInitClass))
    assert.True(t, cls.Has(ir.FlagGlobRef))
}

func TestFixture_Regions(t *testing.T) {
    src := `
blocks:
  - { label: a, kind: none }
  - { label: b, kind: none }
  - { label: c, kind: always, target: e }
  - { label: h, kind: catch_ret, target: e }
  - { label: e, kind: return, stmts: [[return]] }
regions:
  - { kind: catch, try: [b, b], handler: [h, h] }
  - { kind: finally, try: [a, c], handler: [h, h] }
`
    f, err := Parse([]byte(src))
    require.NoError(t, err)
    m, err := f.Build()
    require.NoError(t, err)
    fn := m.Flow

    /* the inner region keeps its block */
    assert.Equal(t, 2, m.Labels["a"].TryIndex)
    assert.Equal(t, 1, m.Labels["b"].TryIndex)
    assert.Equal(t, 2, m.Labels["c"].TryIndex)
    assert.Equal(t, 2, fn.Region(1).EnclosingTry)
    assert.Equal(t, 2, fn.TryDepth(m.Labels["b"]))
    assert.Equal(t, 1, m.Labels["h"].HndIndex)
    assert.True(t, m.Labels["h"].CatchEntry)
    assert.Equal(t, 0, m.Labels["e"].TryIndex)
}

func TestFixture_Errors(t *testing.T) {
    tests := []struct {
        name string
        src  string
        want string
    }{
        {"empty", `name: x`, "no blocks"},
        {"unknown field", "blocks: [{kind: none, color: red}]", "color"},
        {"jump kind", "blocks: [{kind: sideways}]", "unknown jump kind"},
        {"duplicated label", "blocks: [{label: a, kind: none}, {label: a, kind: return}]", "duplicated block label"},
        {"target", "blocks: [{kind: always, target: nowhere}]", "unknown target"},
        {"target on return", "blocks: [{kind: return, target: BB01}]", "have no target"},
        {"block flag", "blocks: [{kind: return, flags: [shiny]}]", "unknown flag"},
        {"local type", "locals: [{name: x, type: quad}]\nblocks: [{kind: return}]", "unknown type"},
        {"local name", "locals: [{name: int, type: int}]\nblocks: [{kind: return}]", "invalid local name"},
        {"operator", "blocks: [{kind: return, stmts: [[frob]]}]", "unknown operator"},
        {"not a tree", "blocks: [{kind: return, stmts: [7]}]", "a tree is a sequence"},
        {"local", "blocks: [{kind: return, stmts: [[return, [lcl, int, y]]]}]", "unknown local"},
        {"arity", "locals: [{name: x, type: int}]\nblocks: [{kind: return, stmts: [[store_lcl, x, [const, 1], [const, 2]]]}]", "expected 1 operands"},
        {"constant", "blocks: [{kind: return, stmts: [[return, [const, int, ten]]]}]", "invalid constant"},
        {"node flag", "blocks: [{kind: return, stmts: [[return, [const, int, 1, +fast]]]}]", "unknown flag"},
        {"jtrue", "blocks: [{kind: return, stmts: [[jtrue, [const, int, 1]]]}]", "expected a comparison"},
        {"ssa gap", "locals: [{name: x, type: int}]\nblocks: [{kind: return, stmts: [[store_lcl, x#3, [const, 1]]]}]", "expected SSA definition #2"},
        {"incoming", "locals: [{name: x, type: int}]\nblocks: [{kind: return, stmts: [[store_lcl, x#1, [const, 1]]]}]", "incoming value"},
        {"undefined use", "locals: [{name: x, type: int}]\nblocks: [{kind: return, stmts: [[return, [lcl, x#2]]]}]", "undefined SSA value"},
        {"query", "blocks: [{kind: return}]\nscev: [{block: BB01, stmt: 0}]", "has no statement"},
        {"edge", "blocks: [{kind: none}, {kind: return, edges: {BB02: 1}}]", "no edge from"},
        {"region", "blocks: [{kind: return}]\nregions: [{kind: catch, try: [BB01, BB02], handler: [BB01, BB01]}]", "invalid block range"},
    }
    for _, tc := range tests {
        t.Run(tc.name, func(t *testing.T) {
            f, err := Parse([]byte(tc.src))
            if err == nil {
                _, err = f.Build()
            }
            require.Error(t, err)
            require.Contains(t, err.Error(), tc.want)
        })
    }
}
