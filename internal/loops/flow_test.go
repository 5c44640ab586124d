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
    `github.com/cloudwego/loopopt/internal/opts`
    `github.com/cloudwego/loopopt/internal/target`
    `github.com/stretchr/testify/require`
)

var testTarget, _ = target.Lookup("amd64")

func testOptions() *opts.Options {
    o := opts.GetDefaultOptions()
    o.Stress = false
    o.FastCode = false
    return &o
}

func ld(v int) *ir.Node {
    return ir.NewLclVar(ir.TypeInt, v, 0)
}

func cns(v int64) *ir.Node {
    return ir.NewConst(ir.TypeInt, v)
}

func set(v int, x *ir.Node) *ir.Node {
    return ir.NewStoreLcl(ir.TypeInt, v, 0, x)
}

func add(x *ir.Node, y *ir.Node) *ir.Node {
    return ir.NewBinary(ir.OpAdd, ir.TypeInt, x, y)
}

func jtrue(op ir.Op, x *ir.Node, y *ir.Node) *ir.Node {
    return ir.NewJTrue(ir.NewCompare(op, x, y, false))
}

func findLoops(fn *ir.Flow) *Table {
    tab := NewTable(fn, testOptions(), testTarget)
    fn.ComputeDoms()
    fn.ComputeReachability()
    tab.OptimizeLoops()
    tab.FindNaturalLoops()
    return tab
}

// run interprets a flow graph made of local stores, conditional jumps
// and returns.
func run(t *testing.T, fn *ir.Flow, env map[int]int64) int64 {
    bb := fn.First
    for steps := 0; steps < 10000 && bb != nil; steps++ {
        cond := int64(0)
        for _, s := range bb.Stmts {
            switch s.Op {
                case ir.OpStoreLcl: {
                    v, ok := ir.Eval(s.Op1, env)
                    require.True(t, ok, "cannot evaluate %s", s)
                    env[s.Lcl] = fn.Lcls[s.Lcl].Type.Wrap(v)
                }
                case ir.OpJTrue: {
                    v, ok := ir.Eval(s.Op1, env)
                    require.True(t, ok, "cannot evaluate %s", s)
                    cond = v
                }
                case ir.OpReturn: {
                    v, ok := ir.Eval(s.Op1, env)
                    require.True(t, ok, "cannot evaluate %s", s)
                    return v
                }
            }
        }

        /* follow the jump */
        switch bb.Kind {
            case ir.JumpNone   : bb = bb.Next
            case ir.JumpAlways : bb = bb.Target
            case ir.JumpCond   : if cond != 0 { bb = bb.Target } else { bb = bb.Next }
            default            : t.Fatalf("unexpected jump kind %s in %s", bb.Kind, bb)
        }
    }
    t.Fatal("the method does not return")
    return 0
}

// nestedFlow builds
//
//     BB01: s = 0; i = 0
//     BB02: j = 0
//     BB03: s = s + j; j = j + 1; if j < 3 goto BB03
//     BB04: i = i + 1; if i < 5 goto BB02
//     BB05: return s
func nestedFlow() *ir.Flow {
    fn := ir.NewFlow()
    s := fn.NewLcl("s", ir.TypeInt, false)
    i := fn.NewLcl("i", ir.TypeInt, false)
    j := fn.NewLcl("j", ir.TypeInt, false)
    b1 := fn.AppendBlock(ir.JumpNone)
    b2 := fn.AppendBlock(ir.JumpNone)
    b3 := fn.AppendBlock(ir.JumpCond)
    b4 := fn.AppendBlock(ir.JumpCond)
    b5 := fn.AppendBlock(ir.JumpReturn)
    b3.Target = b3
    b4.Target = b2
    b1.Stmts = []*ir.Node { set(s, cns(0)), set(i, cns(0)) }
    b2.Stmts = []*ir.Node { set(j, cns(0)) }
    b3.Stmts = []*ir.Node { set(s, add(ld(s), ld(j))), set(j, add(ld(j), cns(1))), jtrue(ir.OpLT, ld(j), cns(3)) }
    b4.Stmts = []*ir.Node { set(i, add(ld(i), cns(1))), jtrue(ir.OpLT, ld(i), cns(5)) }
    b5.Stmts = []*ir.Node { ir.NewReturn(ld(s)) }
    fn.ComputePreds()
    return fn
}

// irreducibleFlow builds a cycle with two entries
//
//     BB01: if x < 0 goto BB03
//     BB02: x = x + 1
//     BB03: if x < 10 goto BB02
//     BB04: return x
func irreducibleFlow() *ir.Flow {
    fn := ir.NewFlow()
    x := fn.NewLcl("x", ir.TypeInt, false)
    b1 := fn.AppendBlock(ir.JumpCond)
    b2 := fn.AppendBlock(ir.JumpNone)
    b3 := fn.AppendBlock(ir.JumpCond)
    b4 := fn.AppendBlock(ir.JumpReturn)
    b1.Target = b3
    b3.Target = b2
    b1.Stmts = []*ir.Node { jtrue(ir.OpLT, ld(x), cns(0)) }
    b2.Stmts = []*ir.Node { set(x, add(ld(x), cns(1))) }
    b3.Stmts = []*ir.Node { jtrue(ir.OpLT, ld(x), cns(10)) }
    b4.Stmts = []*ir.Node { ir.NewReturn(ld(x)) }
    fn.ComputePreds()
    return fn
}

// sharedTopFlow builds two loops closing on the same top
//
//     BB01: x = 0
//     BB02: x = x + 1; if x < 5 goto BB02
//     BB03: if x < 10 goto BB02
//     BB04: return x
func sharedTopFlow() *ir.Flow {
    fn := ir.NewFlow()
    x := fn.NewLcl("x", ir.TypeInt, false)
    b1 := fn.AppendBlock(ir.JumpNone)
    b2 := fn.AppendBlock(ir.JumpCond)
    b3 := fn.AppendBlock(ir.JumpCond)
    b4 := fn.AppendBlock(ir.JumpReturn)
    b2.Target = b2
    b3.Target = b2
    b1.Stmts = []*ir.Node { set(x, cns(0)) }
    b2.Stmts = []*ir.Node { set(x, add(ld(x), cns(1))), jtrue(ir.OpLT, ld(x), cns(5)) }
    b3.Stmts = []*ir.Node { jtrue(ir.OpLT, ld(x), cns(10)) }
    b4.Stmts = []*ir.Node { ir.NewReturn(ld(x)) }
    fn.ComputePreds()
    return fn
}
