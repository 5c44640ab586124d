/*
 * Copyright 2022 CloudWeGo Authors
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

package loopopt

import (
	"errors"
	"os"
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/loopopt/debug"
	"github.com/cloudwego/loopopt/internal/ir"
	"github.com/cloudwego/loopopt/internal/opts"
)

const nestedNoLoads = `
name: nested
locals:
  - { name: s, type: int }
  - { name: i, type: int }
  - { name: j, type: int }
blocks:
  - kind: none
    stmts:
      - [store_lcl, s, [const, 0]]
      - [store_lcl, i, [const, 0]]
  - kind: none
    stmts:
      - [store_lcl, j, [const, 0]]
  - kind: cond
    target: BB03
    stmts:
      - [store_lcl, s, [add, [lcl, s], [lcl, j]]]
      - [store_lcl, j, [add, [lcl, j], [const, 1]]]
      - [jtrue, [lt, [lcl, j], [const, 3]]]
  - kind: cond
    target: BB02
    stmts:
      - [store_lcl, i, [add, [lcl, i], [const, 1]]]
      - [jtrue, [lt, [lcl, i], [const, 5]]]
  - kind: return
    stmts:
      - [return, [lcl, s]]
`

func TestOptimize_Counter(t *testing.T) {
	rep, err := OptimizeFile("testdata/counter.yaml")
	require.NoError(t, err)
	require.Equal(t, "counter", rep.Name)
	require.Len(t, rep.Loops, 1)
	require.Equal(t, "loop", rep.Loops[0].Top)
	require.Equal(t, "loop", rep.Loops[0].Bottom)
	require.Equal(t, ir.NotInLoop, rep.Loops[0].Parent)
	require.Zero(t, rep.Inverted)
	require.Zero(t, rep.Unrolled)

	/* the three queries, in order */
	require.Len(t, rep.Scev, 3)
	require.Equal(t, "<L00, 0, 1>", rep.Scev[0].Value)
	require.Equal(t, 0, rep.Scev[0].Loop)
	require.False(t, rep.Scev[1].Analyzable())
	require.Equal(t, "(<L00, 0, 1> + 1)", rep.Scev[2].Value)
	require.Equal(t, "<L00, 1, 1>", rep.Scev[2].Simplified)
	require.Len(t, rep.Phis, 2)
	require.Equal(t, rep.Scev[0], rep.Phis[0])
	require.False(t, rep.Phis[1].Analyzable())
	require.Len(t, rep.Cyclic, 1)
	require.True(t, rep.Cyclic[0].Natural)
	require.Equal(t, []string{"loop"}, rep.Cyclic[0].Blocks)
}

func TestOptimize_While(t *testing.T) {
	rep, err := OptimizeFile("testdata/while.yaml")
	require.NoError(t, err)
	require.Equal(t, 1, rep.Inverted)
	require.Len(t, rep.Loops, 1)
	require.Contains(t, rep.Loops[0].Flags, "do-while")
	require.Contains(t, rep.Loops[0].Flags, "iter")
	require.Equal(t, "i = add(i, 1)", rep.Loops[0].Iterator)
	require.Equal(t, "BB02", rep.Loops[0].Top)
	require.NotEmpty(t, rep.Listing)
}

func TestOptimize_Nested(t *testing.T) {
	rep, err := OptimizeFile("testdata/nested.yaml")
	require.NoError(t, err)
	require.Len(t, rep.Loops, 2)
	require.Equal(t, 0, rep.Loops[0].Depth)
	require.Equal(t, 0, rep.Loops[1].Parent)
	require.Equal(t, 1, rep.Loops[1].Depth)
	require.False(t, rep.Loops[1].Removed)
	require.False(t, rep.Loops[1].Calls)
	require.False(t, rep.Loops[1].Havoc)
}

func TestOptimize_StressUnrolls(t *testing.T) {
	rep, err := Optimize([]byte(nestedNoLoads), WithStress(true))
	require.NoError(t, err)
	require.Equal(t, 1, rep.Unrolled)
	require.Len(t, rep.Loops, 2)
	require.False(t, rep.Loops[0].Removed)
	require.True(t, rep.Loops[1].Removed)
	require.Empty(t, rep.Loops[1].Top)

	/* the default thresholds keep the loop */
	rep, err = Optimize([]byte(nestedNoLoads))
	require.NoError(t, err)
	require.Zero(t, rep.Unrolled)
}

func TestOptimize_FixtureError(t *testing.T) {
	_, err := OptimizeFile("testdata/missing.yaml")
	var fe FixtureError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, "testdata/missing.yaml", fe.Path)
	require.Contains(t, err.Error(), "FixtureError(testdata/missing.yaml)")

	/* the method itself is broken */
	_, err = Optimize([]byte("name: empty\nblocks: []\n"))
	require.True(t, errors.As(err, &fe))
	require.Empty(t, fe.Path)
	_, err = Optimize([]byte("blocks:\n  - kind: always\n    target: nowhere\n"))
	require.True(t, errors.As(err, &fe))
}

func TestOptimize_ConfigError(t *testing.T) {
	o := opts.GetDefaultOptions()
	o.MaxLoops = 0
	_, err := OptimizeFile("testdata/counter.yaml", WithOptions(o))
	require.Equal(t, ConfigError{Key: "max_loops", Value: "0"}, err)

	/* unknown architecture */
	o = opts.GetDefaultOptions()
	o.Arch = "pdp11"
	_, err = OptimizeFile("testdata/counter.yaml", WithOptions(o))
	require.Equal(t, ConfigError{Key: "arch", Value: "pdp11"}, err)
}

func TestOptions_PanicOnInvalid(t *testing.T) {
	require.Panics(t, func() { WithMaxLoops(0) })
	require.Panics(t, func() { WithUnrollIterLimit(-1) })
	require.Panics(t, func() { WithScevMaxDepth(0) })
	require.Panics(t, func() { WithArch("pdp11") })
	require.Panics(t, func() { WithLogger(nil) })
	require.NotPanics(t, func() { WithArch("amd64") })
}

func TestOptions_SetGlobals(t *testing.T) {
	old := SetMaxLoops(3)
	defer SetMaxLoops(old)
	require.Equal(t, 3, opts.GetDefaultOptions().MaxLoops)
	require.Equal(t, 3, SetMaxLoops(3))
}

func TestInvariantError(t *testing.T) {
	err := invariantError(ir.Assertf("loop %d has no head", 2))
	require.True(t, cerrors.Is(err, ErrInvariant))
	require.Contains(t, err.Error(), "loop 2 has no head")

	/* foreign panics keep unwinding */
	require.PanicsWithValue(t, "boom", func() { _ = invariantError("boom") })
	require.Panics(t, func() { _ = invariantError(os.ErrNotExist) })
}

func TestBuild(t *testing.T) {
	src, err := os.ReadFile("testdata/counter.yaml")
	require.NoError(t, err)
	m, err := Build(src)
	require.NoError(t, err)
	require.Len(t, m.Queries, 3)
	require.Equal(t, "loop", m.Label(m.Queries[0].Block))
}

func TestStats(t *testing.T) {
	old := debug.GetStats()
	_, err := OptimizeFile("testdata/while.yaml")
	require.NoError(t, err)
	now := debug.GetStats()
	require.Greater(t, now.Loops.Found, old.Loops.Found)
	require.Greater(t, now.Loops.Inverted, old.Loops.Inverted)
}
