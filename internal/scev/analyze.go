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

    `github.com/cloudwego/loopopt/internal/ir`
    `github.com/cloudwego/loopopt/internal/logger`
    `github.com/cloudwego/loopopt/internal/loops`
    `github.com/cloudwego/loopopt/internal/opts`
    `github.com/hashicorp/golang-lru/v2`
)

var (
    CacheHits   uint64 = 0
    CacheMisses uint64 = 0
)

// placeholderValue is never observed, the placeholder is matched by
// identity.
const placeholderValue = 0xdeadbeef

// Context analyzes the trees of one loop. It is not safe for concurrent
// use, and only one recursive phi may be resolved at a time.
type Context struct {
    Flow      *ir.Flow
    Table     *loops.Table
    loop      *loops.LoopDsc
    lnum      int
    depth     int
    cache     *lru.Cache[*ir.Node, Scev]
    ephemeral map[*ir.Node]Scev
    usingEph  bool
    limited   bool
    log       *logger.Logger
}

func NewContext(fn *ir.Flow, tab *loops.Table, o *opts.Options) *Context {
    cache, err := lru.New[*ir.Node, Scev](o.ScevCacheSize)
    if err != nil {
        panic(ir.Assertf("scev: %v", err))
    }

    /* construct the context */
    return &Context {
        Flow      : fn,
        Table     : tab,
        lnum      : ir.NotInLoop,
        depth     : o.ScevMaxDepth,
        cache     : cache,
        ephemeral : make(map[*ir.Node]Scev),
        log       : o.Log().Named("scev"),
    }
}

// Loop returns the number of the loop being analyzed.
func (self *Context) Loop() int {
    return self.lnum
}

// ResetForLoop prepares the context for analyzing the trees of loop
// lnum. Results cached for the previous loop are dropped.
func (self *Context) ResetForLoop(lnum int) {
    self.lnum = lnum
    self.loop = self.Table.Loop(lnum)
    self.cache.Purge()
    clear(self.ephemeral)
    self.usingEph = false
    self.limited = false
}

// Analyze returns the evolution of tree, which appears in block, across
// the iterations of the current loop. A nil result means the tree is
// not analyzable and must not be read as zero.
func (self *Context) Analyze(block *ir.Block, tree *ir.Node) Scev {
    if self.loop == nil {
        panic(ir.Assertf("scev: no loop selected"))
    }
    self.limited = false
    return self.analyze(block, tree, 0)
}

func (self *Context) analyze(block *ir.Block, tree *ir.Node, depth int) Scev {
    if depth >= self.depth {
        self.limited = true
        self.log.Debugw("depth limit reached", "loop", self.lnum, "tree", tree.String())
        return nil
    }

    /* check the caches first */
    if ret, ok := self.lookup(tree); ok {
        atomic.AddUint64(&CacheHits, 1)
        return ret
    }

    /* analyze the tree */
    outer := self.limited
    self.limited = false
    atomic.AddUint64(&CacheMisses, 1)
    ret := self.analyzeNew(block, tree, depth)

    /* results cut short by the depth limit are not remembered */
    if !self.limited {
        self.remember(tree, ret)
    }

    /* propagate the cut to the callers */
    self.limited = self.limited || outer
    return ret
}

// lookup does not consult the durable cache while a phi is being
// resolved, so a recurrence found earlier cannot stand in for a nested
// recursive phi.
func (self *Context) lookup(tree *ir.Node) (Scev, bool) {
    if !self.usingEph {
        return self.cache.Get(tree)
    }
    ret, ok := self.ephemeral[tree]
    return ret, ok
}

// remember puts results that may depend on a phi placeholder into the
// ephemeral cache only.
func (self *Context) remember(tree *ir.Node, ret Scev) {
    if self.usingEph {
        self.ephemeral[tree] = ret
    } else {
        self.cache.Add(tree, ret)
    }
}

func (self *Context) analyzeNew(block *ir.Block, tree *ir.Node, depth int) Scev {
    switch tree.Op {
        case ir.OpConst: {
            if tree.Type.IsIntegral() {
                return NewConstant(tree.Type.Actual(), tree.Val)
            } else {
                return nil
            }
        }

        /* uses and definitions of SSA locals */
        case ir.OpLclVar: {
            return self.analyzeUse(tree.Type, tree.Lcl, tree.Ssa, depth)
        }

        /* phi stores at the header start the recurrences */
        case ir.OpStoreLcl: {
            if !tree.IsPhiStore() {
                return self.analyze(block, tree.Op1, depth + 1)
            } else if block != self.loop.Top {
                return nil
            } else {
                return self.analyzePhi(block, tree, depth)
            }
        }

        /* casts that do not lose bits */
        case ir.OpCast: {
            return self.analyzeCast(block, tree, depth)
        }

        /* binary operations */
        case ir.OpAdd, ir.OpMul, ir.OpLsh: {
            x := self.analyze(block, tree.Op1, depth + 1)
            if x == nil {
                return nil
            }

            /* the second operand */
            y := self.analyze(block, tree.Op2, depth + 1)
            if y == nil {
                return nil
            }

            /* build the binary node */
            switch tree.Op {
                case ir.OpAdd : return &Binop { Op: OperAdd, T: widerOf(x.Type(), y.Type()), X: x, Y: y }
                case ir.OpMul : return &Binop { Op: OperMul, T: widerOf(x.Type(), y.Type()), X: x, Y: y }
                default       : return &Binop { Op: OperLsh, T: x.Type(), X: x, Y: y }
            }
        }

        /* the value is the last operand */
        case ir.OpComma: {
            return self.analyze(block, tree.Op2, depth + 1)
        }

        /* the element address moves with the index */
        case ir.OpIndexAddr: {
            return self.analyze(block, tree.Op2, depth + 1)
        }

        /* everything else */
        default: {
            return nil
        }
    }
}

func (self *Context) analyzeUse(t ir.VarType, lcl int, ssa int, depth int) Scev {
    if lcl < 0 || lcl >= len(self.Flow.Lcls) || !self.Flow.Lcls[lcl].InSsa() {
        return nil
    }

    /* find the definition */
    def := self.Flow.SsaDefOf(lcl, ssa)
    if def == nil {
        return nil
    }

    /* defined outside the loop, so the value is fixed */
    if def.Block == nil || !self.loop.Contains(def.Block) {
        if def.Store != nil && def.Store.Op1 != nil && def.Store.Op1.IsIntCns() {
            return NewConstant(t.Actual(), def.Store.Op1.Val)
        } else {
            return &Local{T: t.Actual(), Lcl: lcl, Ssa: ssa}
        }
    }

    /* follow the definition inside the loop */
    if def.Store == nil {
        return nil
    } else {
        return self.analyze(def.Block, def.Store, depth + 1)
    }
}

func (self *Context) analyzeCast(block *ir.Block, tree *ir.Node, depth int) Scev {
    src := tree.Op1.Type.Actual()
    dst := tree.Type.Actual()

    /* only integers that do not narrow */
    if !src.IsIntegral() || !dst.IsIntegral() || tree.Type.Size() < src.Size() {
        return nil
    }

    /* the operand */
    v := self.analyze(block, tree.Op1, depth + 1)
    if v == nil {
        return nil
    }

    /* the source signedness picks the extension */
    if tree.Unsigned || tree.Op1.Type.IsUnsigned() {
        return &Extend{Op: OperZeroExtend, T: dst, V: v}
    } else {
        return &Extend{Op: OperSignExtend, T: dst, V: v}
    }
}

func (self *Context) analyzePhi(block *ir.Block, store *ir.Node, depth int) Scev {
    enter := (*ir.Node)(nil)
    backedge := (*ir.Node)(nil)

    /* split the incoming values, each side must agree on one value */
    for _, arg := range store.Op1.Args {
        if arg.Op != ir.OpPhiArg {
            return nil
        }

        /* which side of the loop the value comes from */
        side := &enter
        if self.loop.Contains(arg.Pred) {
            side = &backedge
        }

        /* check for conflicts */
        if *side == nil {
            *side = arg
        } else if (*side).Ssa != arg.Ssa {
            return nil
        }
    }

    /* both sides are required */
    if enter == nil || backedge == nil {
        return nil
    }

    /* the start value */
    start := self.analyzeUse(enter.Type, enter.Lcl, enter.Ssa, depth + 1)
    if start == nil {
        return nil
    }

    /* the value fed back must come from inside the loop */
    def := self.Flow.SsaDefOf(backedge.Lcl, backedge.Ssa)
    if def == nil || def.Block == nil || def.Store == nil || !self.loop.Contains(def.Block) {
        return nil
    }

    /* only one recursive phi at a time */
    if self.usingEph {
        self.log.Debugw("nested recursive phi", "loop", self.lnum, "tree", store.String())
        return nil
    }

    /* bind the phi to a placeholder while the back edge is analyzed */
    t := store.Type.Actual()
    sym := NewConstant(t, placeholderValue)
    self.usingEph = true
    self.ephemeral[store] = sym
    next := self.analyze(def.Block, def.Store, depth + 1)
    clear(self.ephemeral)
    self.usingEph = false

    /* build the recurrence */
    if next == nil {
        return nil
    } else {
        return self.makeAddRec(t, start, next, sym)
    }
}

// makeAddRec turns "next = phi + step" into <L, start, step>. The
// placeholder must appear exactly once as an addend.
func (self *Context) makeAddRec(t ir.VarType, start Scev, next Scev, sym *Constant) Scev {
    var found int
    var step Scev

    /* flatten the additions */
    for _, v := range addends(next, nil) {
        if v == Scev(sym) {
            found++
        } else if contains(v, sym) {
            return nil
        } else if step == nil {
            step = v
        } else {
            step = &Binop{Op: OperAdd, T: widerOf(step.Type(), v.Type()), X: step, Y: v}
        }
    }

    /* not a linear recurrence */
    if found != 1 {
        self.log.Debugw("not a linear recurrence", "loop", self.lnum, "next", next.String(), "count", found)
        return nil
    }

    /* a phi that never changes */
    if step == nil {
        step = NewConstant(t, 0)
    }

    /* construct the recurrence */
    return &AddRec {
        T     : t,
        Loop  : self.lnum,
        Start : start,
        Step  : step,
    }
}

func addends(v Scev, buf []Scev) []Scev {
    if p, ok := v.(*Binop); !ok || p.Op != OperAdd {
        return append(buf, v)
    } else {
        return addends(p.Y, addends(p.X, buf))
    }
}
