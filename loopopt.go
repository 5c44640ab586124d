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
	"fmt"

	"github.com/cloudwego/loopopt/internal/fixture"
	"github.com/cloudwego/loopopt/internal/ir"
	"github.com/cloudwego/loopopt/internal/loops"
	"github.com/cloudwego/loopopt/internal/opts"
	"github.com/cloudwego/loopopt/internal/scev"
	"github.com/cloudwego/loopopt/internal/target"
)

// Report describes what the loop optimizer found and did in one method.
type Report struct {
	Name     string
	Loops    []Loop
	Cyclic   []Region
	Scev     []Evolution
	Phis     []Evolution
	Inverted int
	Hoisted  int
	Unrolled int
	Listing  string
}

// Loop is one entry of the loop table. Blocks are named by their
// fixture labels.
type Loop struct {
	Num       int
	Parent    int
	Depth     int
	Removed   bool
	Head      string
	First     string
	Top       string
	Entry     string
	Bottom    string
	Exit      string
	ExitCount int
	Flags     string
	Iterator  string
	Calls     bool
	Havoc     bool
}

// Region is a strongly connected part of the flow graph. It is not
// Natural when no loop of the table covers it.
type Region struct {
	Blocks  []string
	Natural bool
}

// Evolution answers one scalar evolution query of the fixture.
type Evolution struct {
	Block      string
	Stmt       int
	Tree       string
	Loop       int
	Value      string
	Simplified string
}

// Analyzable reports whether the statement has a known evolution.
func (self Evolution) Analyzable() bool {
	return self.Value != ""
}

// Optimize builds the method described by a YAML fixture, runs the loop
// optimizations over it and answers its scalar evolution queries.
func Optimize(src []byte, options ...Option) (*Report, error) {
	f, err := fixture.Parse(src)
	if err != nil {
		return nil, FixtureError{Reason: err.Error()}
	}
	return optimize(f, "", options)
}

// OptimizeFile is like Optimize, with the fixture read from path.
func OptimizeFile(path string, options ...Option) (*Report, error) {
	f, err := fixture.Load(path)
	if err != nil {
		return nil, FixtureError{Path: path, Reason: err.Error()}
	}
	return optimize(f, path, options)
}

// Build parses a fixture into a method without optimizing it.
func Build(src []byte) (*fixture.Method, error) {
	f, err := fixture.Parse(src)
	if err != nil {
		return nil, FixtureError{Reason: err.Error()}
	}

	/* build the flow graph */
	m, err := f.Build()
	if err != nil {
		return nil, FixtureError{Reason: err.Error()}
	}
	return m, nil
}

func makeOptions(options []Option) (opts.Options, target.Target, error) {
	o := opts.GetDefaultOptions()
	for _, fn := range options {
		fn(&o)
	}

	/* check the values */
	if key, val, ok := o.Check(); !ok {
		return o, target.Target{}, ConfigError{Key: key, Value: fmt.Sprint(val)}
	}

	/* the host, unless told otherwise */
	if o.Arch == "" {
		return o, target.Host(), nil
	} else if tgt, err := target.Lookup(o.Arch); err != nil {
		return o, tgt, ConfigError{Key: "arch", Value: o.Arch}
	} else {
		return o, tgt, nil
	}
}

func optimize(f *fixture.Fixture, path string, options []Option) (*Report, error) {
	m, err := f.Build()
	if err != nil {
		return nil, FixtureError{Path: path, Reason: err.Error()}
	}
	return Run(m, options...)
}

// Run optimizes a method that was already built. A broken invariant is
// returned as an error marked with ErrInvariant.
func Run(m *fixture.Method, options ...Option) (ret *Report, err error) {
	o, tgt, err := makeOptions(options)
	if err != nil {
		return nil, err
	}

	/* assertion failures abandon the method */
	defer func() {
		if v := recover(); v != nil {
			ret, err = nil, invariantError(v)
		}
	}()

	/* run the passes */
	log := o.Log().Named("loopopt")
	ctx := loops.Optimize(m.Flow, &o, tgt)
	log.Debugw("optimized", "method", m.Name, "loops", ctx.Table.Len(), "hoisted", ctx.Hoisted, "unrolled", ctx.Unrolled)

	/* summarize the loop table */
	ret = &Report{
		Name:     m.Name,
		Inverted: ctx.Inverted,
		Hoisted:  ctx.Hoisted,
		Unrolled: ctx.Unrolled,
		Listing:  m.Flow.String(),
	}
	for i, l := range ctx.Table.Loops {
		ret.Loops = append(ret.Loops, makeLoop(m, ctx.Table, i, l))
	}

	/* cyclic regions */
	for _, r := range ctx.Table.CyclicRegions() {
		v := Region{Natural: r.Natural}
		for _, bb := range r.Blocks {
			v.Blocks = append(v.Blocks, m.Label(bb))
		}
		ret.Cyclic = append(ret.Cyclic, v)
	}

	/* answer the queries */
	ret.Scev, ret.Phis = evolutions(m, ctx.Table, &o)
	return ret, nil
}

func makeLoop(m *fixture.Method, tab *loops.Table, lnum int, l *loops.LoopDsc) Loop {
	ret := Loop{
		Num:     lnum,
		Parent:  l.Parent,
		Removed: l.IsRemoved(),
		Flags:   l.Flags.String(),
	}

	/* removed loops keep nothing else */
	if ret.Removed {
		return ret
	}

	/* the shape */
	ret.Head = m.Label(l.Head)
	ret.First = m.Label(l.First)
	ret.Top = m.Label(l.Top)
	ret.Entry = m.Label(l.Entry)
	ret.Bottom = m.Label(l.Bottom)
	ret.ExitCount = l.ExitCount
	ret.Calls = l.ContainsCall
	ret.Havoc = l.HavocsAny()

	/* single exits are named */
	if l.ExitCount == 1 {
		ret.Exit = m.Label(l.Exit)
	}

	/* nesting depth */
	for p := l.Parent; p != ir.NotInLoop; p = tab.Loop(p).Parent {
		ret.Depth++
	}

	/* counted loops */
	if l.Has(loops.LoopIter) {
		name := m.Flow.Lcls[l.IterVar].Name
		ret.Iterator = fmt.Sprintf("%s = %s(%s, %d)", name, l.IterOper, name, l.IterConst)
	}
	return ret
}

type _Evolver struct {
	m   *fixture.Method
	tab *loops.Table
	o   *opts.Options
	ctx *scev.Context
}

func (self *_Evolver) evolve(label string, idx int, bb *ir.Block, node *ir.Node) Evolution {
	ret := Evolution{
		Block: label,
		Stmt:  idx,
		Tree:  node.String(),
		Loop:  bb.LoopNum,
	}

	/* only statements inside a loop evolve */
	if ret.Loop == ir.NotInLoop {
		return ret
	}

	/* the context is reset whenever the loop changes */
	if self.ctx == nil {
		self.ctx = scev.NewContext(self.m.Flow, self.tab, self.o)
	}
	if self.ctx.Loop() != ret.Loop {
		self.ctx.ResetForLoop(ret.Loop)
	}

	/* analyze and simplify */
	if v := self.ctx.Analyze(bb, node); v != nil {
		ret.Value = v.String()
		ret.Simplified = scev.Simplify(v).String()
	}
	return ret
}

func evolutions(m *fixture.Method, tab *loops.Table, o *opts.Options) ([]Evolution, []Evolution) {
	var qs []Evolution
	var phis []Evolution
	ev := &_Evolver{m: m, tab: tab, o: o}

	/* the queries of the fixture */
	for _, q := range m.Queries {
		qs = append(qs, ev.evolve(q.Label, q.Index, q.Block, q.Node))
	}

	/* every phi store at the top of a live loop */
	for _, l := range tab.Loops {
		if l.IsRemoved() || l.Top.LoopNum == ir.NotInLoop {
			continue
		}
		for i, stmt := range l.Top.Stmts {
			if stmt.IsPhiStore() {
				phis = append(phis, ev.evolve(m.Label(l.Top), i, l.Top, stmt))
			}
		}
	}
	return qs, phis
}
