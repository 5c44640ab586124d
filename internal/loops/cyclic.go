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
    `golang.org/x/exp/slices`
    `gonum.org/v1/gonum/graph`
    `gonum.org/v1/gonum/graph/simple`
    `gonum.org/v1/gonum/graph/topo`
)

// CyclicRegion is a strongly connected set of blocks, in lexical
// order. Natural is set when a recorded loop covers all of them.
type CyclicRegion struct {
    Blocks  []*ir.Block
    Natural bool
}

func flowGraph(fn *ir.Flow) (graph.Directed, map[int64]*ir.Block, map[*ir.Block]bool) {
    g := simple.NewDirectedGraph()
    ids := make(map[int64]*ir.Block)
    loops := make(map[*ir.Block]bool)

    /* one node per block */
    for bb := fn.First; bb != nil; bb = bb.Next {
        ids[int64(bb.ID)] = bb
        g.AddNode(simple.Node(bb.ID))
    }

    /* self edges are not allowed in simple graphs */
    for bb := fn.First; bb != nil; bb = bb.Next {
        for _, s := range ir.Succs(bb) {
            if s == bb {
                loops[bb] = true
            } else if !g.HasEdgeFromTo(int64(bb.ID), int64(s.ID)) {
                g.SetEdge(g.NewEdge(simple.Node(bb.ID), simple.Node(s.ID)))
            }
        }
    }
    return g, ids, loops
}

// CyclicRegions returns every cycle of the flow graph, reporting which
// of them the loop table failed to recognize.
func (self *Table) CyclicRegions() []CyclicRegion {
    var ret []CyclicRegion
    g, ids, selfLoops := flowGraph(self.Flow)

    /* keep the components that actually cycle */
    for _, scc := range topo.TarjanSCC(g) {
        if len(scc) == 1 && !selfLoops[ids[scc[0].ID()]] {
            continue
        }

        /* lexical order */
        blks := make([]*ir.Block, 0, len(scc))
        for _, n := range scc {
            blks = append(blks, ids[n.ID()])
        }
        slices.SortFunc(blks, func(a *ir.Block, b *ir.Block) int {
            return a.Num - b.Num
        })

        /* look for a loop covering it */
        ret = append(ret, CyclicRegion {
            Blocks  : blks,
            Natural : self.covers(blks),
        })
    }

    /* stable output */
    slices.SortFunc(ret, func(a CyclicRegion, b CyclicRegion) int {
        return a.Blocks[0].Num - b.Blocks[0].Num
    })
    return ret
}

func (self *Table) covers(blks []*ir.Block) bool {
    for _, l := range self.Loops {
        if l.IsRemoved() {
            continue
        }
        all := true
        for _, bb := range blks {
            if !l.Contains(bb) {
                all = false
                break
            }
        }
        if all {
            return true
        }
    }
    return false
}

// Irreducible returns the cyclic regions no loop covers.
func (self *Table) Irreducible() []CyclicRegion {
    var ret []CyclicRegion
    for _, r := range self.CyclicRegions() {
        if !r.Natural {
            ret = append(ret, r)
        }
    }
    return ret
}
