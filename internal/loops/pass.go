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
    `sync/atomic`

    `github.com/cloudwego/loopopt/internal/ir`
    `github.com/cloudwego/loopopt/internal/logger`
    `github.com/cloudwego/loopopt/internal/opts`
    `github.com/cloudwego/loopopt/internal/target`
)

var (
    FoundCount    uint64 = 0
    RemovedCount  uint64 = 0
    HoistedCount  uint64 = 0
    InvertedCount uint64 = 0
    UnrolledCount uint64 = 0
)

// Context carries the state shared by the passes of one method.
type Context struct {
    Flow     *ir.Flow
    Table    *Table
    Opts     *opts.Options
    Inverted int
    Hoisted  int
    Unrolled int
    log      *logger.Logger
}

func NewContext(fn *ir.Flow, o *opts.Options, tgt target.Target) *Context {
    return &Context {
        Flow  : fn,
        Opts  : o,
        Table : NewTable(fn, o, tgt),
        log   : o.Log().Named("pass"),
    }
}

type Pass interface {
    Apply(*Context)
}

type _PassDescriptor struct {
    pass Pass
    desc string
}

var _passes = [...]_PassDescriptor {
    { desc: "Block Weights"                , pass: new(BlockWeights) },
    { desc: "Loop Inversion"               , pass: new(Inversion) },
    { desc: "Dominators and Reachability"  , pass: new(Dominators) },
    { desc: "Lexical Loop Marking"         , pass: new(LoopMarking) },
    { desc: "Natural Loop Recognition"     , pass: new(LoopFinder) },
    { desc: "Liveness"                     , pass: new(Liveness) },
    { desc: "Loop Side Effects"            , pass: new(SideEffects) },
    { desc: "Loop Invariant Code Hoisting" , pass: new(Hoisting) },
    { desc: "Loop Unrolling"               , pass: new(Unrolling) },
}

// Optimize runs the loop optimization pipeline over one method.
func Optimize(fn *ir.Flow, o *opts.Options, tgt target.Target) *Context {
    ctx := NewContext(fn, o, tgt)
    for _, p := range _passes {
        ctx.log.Debugw("running pass", "pass", p.desc)
        p.pass.Apply(ctx)
    }
    return ctx
}

type BlockWeights struct{}

func (BlockWeights) Apply(ctx *Context) {
    SetBlockWeights(ctx.Flow)
}

type Inversion struct{}

func (Inversion) Apply(ctx *Context) {
    ctx.Inverted = NewInverter(ctx.Flow, ctx.Opts).OptimizeLayout()
    atomic.AddUint64(&InvertedCount, uint64(ctx.Inverted))
}

type Dominators struct{}

func (Dominators) Apply(ctx *Context) {
    ctx.Flow.ComputeDoms()
    ctx.Flow.ComputeReachability()
}

type LoopMarking struct{}

func (LoopMarking) Apply(ctx *Context) {
    ctx.Table.OptimizeLoops()
}

type LoopFinder struct{}

func (LoopFinder) Apply(ctx *Context) {
    ctx.Table.FindNaturalLoops()
    atomic.AddUint64(&FoundCount, uint64(ctx.Table.Len()))
}

type Liveness struct{}

func (Liveness) Apply(ctx *Context) {
    ctx.Flow.ComputeLiveness()
}

type SideEffects struct{}

func (SideEffects) Apply(ctx *Context) {
    ctx.Table.ComputeLoopSideEffects()
}

type Hoisting struct{}

func (Hoisting) Apply(ctx *Context) {
    ctx.Table.NumberValues()
    ctx.Hoisted = ctx.Table.HoistLoopCode()
    atomic.AddUint64(&HoistedCount, uint64(ctx.Hoisted))
}

type Unrolling struct{}

func (Unrolling) Apply(ctx *Context) {
    if ctx.Unrolled = ctx.Table.UnrollLoops(); ctx.Unrolled == 0 {
        return
    }

    /* the unrolled loops leave stale analyses behind */
    atomic.AddUint64(&UnrolledCount, uint64(ctx.Unrolled))
    atomic.AddUint64(&RemovedCount, uint64(ctx.Unrolled))
    ctx.Flow.ComputeDoms()
    ctx.Flow.ComputeReachability()
    ctx.Table.UpdateAfterUnroll()
}
