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
    `math`

    `github.com/cloudwego/loopopt/internal/ir`
    `github.com/cloudwego/loopopt/internal/logger`
    `github.com/cloudwego/loopopt/internal/opts`
)

const (
    _InvertHelperCost = 24
)

// Inverter turns while loops, which jump to a test at the bottom
// before the first iteration, into do-while loops guarded by a copy of
// the test.
type Inverter struct {
    Flow *ir.Flow
    Opts *opts.Options
    log  *logger.Logger
}

func NewInverter(fn *ir.Flow, o *opts.Options) *Inverter {
    return &Inverter {
        Flow : fn,
        Opts : o,
        log  : o.Log().Named("invert"),
    }
}

// OptimizeLayout inverts every while loop it can, and returns how many.
func (self *Inverter) OptimizeLayout() int {
    n := 0
    for bb := self.Flow.First; bb != nil; bb = bb.Next {
        if self.OptWhileLoop(bb) {
            n++
        }
    }
    return n
}

// countSharedStaticHelpers counts the calls to shared static base
// helpers and the array length reads of a tree, which get cheap after
// duplication.
func (self *Inverter) countSharedStaticHelpers(tree *ir.Node) int {
    n := 0
    ir.Walk(tree, nil, func(node *ir.Node) {
        if node.Op == ir.OpArrLen {
            n++
        } else if node.Op == ir.OpCall {
            if info, ok := self.Flow.Helpers.Info(node.Helper); ok && info.SharedStatic {
                n++
            }
        }
    })
    return n
}

func weightsConsistent(a float64, b float64) bool {
    return math.Abs(a - b) <= 0.01 * math.Max(math.Abs(a), math.Abs(b))
}

func (self *Inverter) reject(block *ir.Block, reason string) bool {
    self.log.Debugw("not inverting", "block", block.String(), "reason", reason)
    return false
}

// OptWhileLoop inverts the loop block jumps into, when block is an
// unconditional jump to a test that jumps back to the block following
// it.
func (self *Inverter) OptWhileLoop(block *ir.Block) bool {
    fn := self.Flow
    if block.Kind != ir.JumpAlways || block.Has(ir.BlockDontRemove) {
        return false
    }

    /* the test must jump back to the block after us */
    test := block.Target
    if test == nil || test.Kind != ir.JumpCond || test.Target != block.Next || test.Next == nil {
        return false
    }

    /* both tests must be in the same try region */
    if !ir.SameTryRegion(block, test) {
        return self.reject(block, "test in another try region")
    }
    if after := test.Next; after.HasTryIndex() && !ir.SameTryRegion(block, after) {
        return self.reject(block, "loop exit in another try region")
    }

    /* only forward jumps */
    if test.Num <= block.Num {
        return self.reject(block, "backward jump")
    }

    /* the test block ends with a comparison */
    cond := test.LastStmt()
    if cond == nil || cond.Op != ir.OpJTrue || !cond.Op1.Op.IsCompare() {
        return self.reject(block, "no compare")
    }

    /* cost of duplicating the test */
    dupCost := 0
    for _, s := range test.Stmts {
        dupCost += ir.SetCosts(s)
    }

    /* average iterations, when the profile can be trusted */
    iters := BBLoopWeight
    valid := false
    wBlock, wTest, wNext := block.Weight, test.Weight, block.Next.Weight
    if fn.HaveProfileWeights && block.HasProfileWeight() && test.HasProfileWeight() && block.Next.HasProfileWeight() {
        if wNext == 0 {
            return self.reject(block, "loop never iterates")
        }
        if weightsConsistent(wBlock + wNext, wTest) && wBlock > 0 {
            valid = true
            iters = wNext / wBlock
        }
    }

    /* hot loops are worth more code */
    budget := self.Opts.DupBudget()
    if iters >= 12 {
        budget *= 2
        if iters >= 96 {
            budget *= 2
        }
    }

    /* helpers and array lengths are cheap after duplication */
    if dupCost > budget {
        helpers := 0
        for _, s := range test.Stmts {
            helpers += self.countSharedStaticHelpers(s)
        }
        if helpers > 0 {
            budget += _InvertHelperCost * int(math.Min(float64(helpers), iters + 1.5))
        }
    }

    /* still too big */
    if dupCost > budget {
        self.log.Debugw("not inverting, too costly", "block", block.String(), "cost", dupCost, "budget", budget)
        return false
    }

    /* copy the test first, it may not be clonable */
    stmts := make([]*ir.Node, 0, len(test.Stmts))
    for _, s := range test.Stmts {
        if c := ir.Clone(s); c == nil {
            return self.reject(block, "test cannot be cloned")
        } else {
            stmts = append(stmts, c)
        }
    }

    /* the copy skips the loop when the test would have left it */
    ir.ReverseCond(stmts[len(stmts) - 1])
    top := block.Next
    after := test.Next

    /* the guard falls into the loop */
    fn.RemoveRefPred(test, block)
    block.Kind = ir.JumpNone
    block.Target = nil
    guard := fn.NewBlockAfter(ir.JumpCond, block, true)
    guard.Stmts = stmts
    guard.Target = after
    guard.Weight = wBlock
    guard.Flags |= ir.BlockInternal | block.Flags & ir.BlockProfWeight

    /* link the guard */
    fn.AddRefPred(guard, block)
    toTop := fn.AddRefPred(top, guard)
    toAfter := fn.AddRefPred(after, guard)

    /* other ways into the loop go through the guard too */
    for _, e := range append([]*ir.Edge(nil), test.Preds...) {
        if p := e.From; p.Num < top.Num || p.Num > test.Num {
            fn.ReplaceJumpTarget(p, guard, test)
        }
    }

    /* split the profile between both tests */
    if valid && fn.HaveValidEdgeWeights {
        self.splitWeights(test, guard, top, after, toTop, toAfter)
    } else if valid {
        test.SetWeight(math.Max(wTest - wBlock, 0))
    }

    self.log.Debugw("inverted loop", "block", block.String(), "test", test.String(), "guard", guard.String(), "cost", dupCost, "budget", budget)
    return true
}

// splitWeights gives the guard its share of the edge weights leaving
// the test, in proportion to the old likelihoods.
func (self *Inverter) splitWeights(test, guard, top, after *ir.Block, toTop, toAfter *ir.Edge) {
    wTest, wGuard := test.Weight, guard.Weight
    testToTop, testToAfter := top.FindPred(test), after.FindPred(test)
    if testToTop == nil || testToAfter == nil || wTest <= 0 {
        return
    }

    /* likelihoods before the transform */
    pTop := testToTop.WeightMin / wTest
    pAfter := testToAfter.WeightMin / wTest

    /* the guard takes its share */
    guardToTop := wGuard * pTop
    guardToAfter := wGuard * pAfter
    toTop.WeightMin, toTop.WeightMax = guardToTop, guardToTop
    toAfter.WeightMin, toAfter.WeightMax = guardToAfter, guardToAfter

    /* the test keeps the rest */
    restTop := math.Max(testToTop.WeightMin - guardToTop, 0)
    restAfter := math.Max(testToAfter.WeightMin - guardToAfter, 0)
    testToTop.WeightMin, testToTop.WeightMax = restTop, restTop
    testToAfter.WeightMin, testToAfter.WeightMax = restAfter, restAfter
    test.SetWeight(math.Max(wTest - wGuard, 0))
}
