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
    `github.com/cloudwego/loopopt/internal/ir`
)

// VNIsLoopInvariant reports whether a value number denotes the same
// value on every iteration of the loop. Answers are cached per loop.
func (self *Table) VNIsLoopInvariant(vn ir.VN, lnum int) bool {
    loop := self.Loops[lnum]
    if loop.vnInvariant == nil {
        loop.vnInvariant = make(map[ir.VN]bool)
    }

    /* check the cache first */
    if r, ok := loop.vnInvariant[vn]; ok {
        return r
    }

    /* cycles through phis are variant */
    loop.vnInvariant[vn] = false
    ret := self.vnIsLoopInvariant(vn, lnum)
    loop.vnInvariant[vn] = ret
    return ret
}

func (self *Table) vnIsLoopInvariant(vn ir.VN, lnum int) bool {
    vs := self.Flow.VNs
    loop := self.Loops[lnum]

    /* nothing is known about it */
    if vn == ir.NoVN {
        return false
    }

    /* check by kind */
    switch vs.Kind(vn) {
        case ir.VNConst: {
            return true
        }
        case ir.VNPhiDef, ir.VNMemPhi: {
            bb := vs.DefBlock(vn)
            return bb == nil || !loop.Contains(bb)
        }
        case ir.VNMemOpaque, ir.VNUnique: {
            return self.loopOutside(vs.Loop(vn), lnum)
        }
        case ir.VNFunc: {
            for _, a := range vs.Args(vn) {
                if !self.VNIsLoopInvariant(a, lnum) {
                    return false
                }
            }
            return true
        }
        default: {
            return false
        }
    }
}

// loopOutside reports whether values created in loop `l` are fixed
// while lnum runs.
func (self *Table) loopOutside(l int, lnum int) bool {
    switch {
        case l == ir.LoopUnknown : return false
        case l == ir.NotInLoop   : return true
        case l >= len(self.Loops): return false
        default                  : return !self.ContainsLoop(lnum, l)
    }
}

// TreeIsLoopMemoryInvariant reports whether the memory a tree reads was
// defined outside the loop.
func (self *Table) TreeIsLoopMemoryInvariant(tree *ir.Node, lnum int) bool {
    if bb, ok := self.Flow.VNs.MemDep[tree]; !ok || bb == nil {
        return true
    } else {
        return !self.Loops[lnum].Contains(bb)
    }
}

// TreeIsVNInvariant combines the value number and the memory checks.
func (self *Table) TreeIsVNInvariant(tree *ir.Node, lnum int) bool {
    return self.VNIsLoopInvariant(tree.VN, lnum) && self.TreeIsLoopMemoryInvariant(tree, lnum)
}

// TreeIsValidAtLoopHead reports whether every local the tree reads is
// defined before the loop, so that it may be evaluated in the head.
func (self *Table) TreeIsValidAtLoopHead(tree *ir.Node, lnum int) bool {
    loop := self.Loops[lnum]
    return !ir.Any(tree, func(n *ir.Node) bool {
        if n.Op != ir.OpLclVar {
            return false
        }

        /* must be in SSA */
        v := self.Flow.Lcls[n.Lcl]
        if !v.InSsa() {
            return true
        }

        /* and defined outside */
        if def := v.SsaDef(n.Ssa); def == nil {
            return true
        } else {
            return def.Block != nil && loop.Contains(def.Block)
        }
    })
}
