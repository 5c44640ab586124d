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

package main

import (
	"fmt"
	"strings"

	"github.com/oleiade/lane"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/cloudwego/loopopt/internal/fixture"
	"github.com/cloudwego/loopopt/internal/ir"
)

type _Edge struct {
	from *ir.Block
	to   *ir.Block
}

func dotNode(m *fixture.Method, bb *ir.Block) string {
	label := fmt.Sprintf("%s\\n%s", m.Label(bb), bb.Kind)
	if bb.HasProfileWeight() {
		label += fmt.Sprintf("\\nweight %g", bb.Weight)
	}
	return fmt.Sprintf(`bb_%d [ label = "%s" ]`, bb.Num, label)
}

// dot renders the blocks reachable from the entry. Blocks of the same
// innermost loop are grouped in a cluster.
func dot(m *fixture.Method) string {
	q := lane.NewQueue()
	seen := make(map[*ir.Block]bool)
	loops := make(map[int][]*ir.Block)
	edges := make(map[_Edge]bool)
	buf := []string{
		"digraph CFG {",
		`    graph [ fontname = "monospace" ]`,
		`    node [ fontname = "monospace", shape = "box" ]`,
		`    edge [ fontname = "monospace" ]`,
		`    START [ shape = "circle" ]`,
	}

	/* the entry block */
	if m.Flow.First == nil {
		return strings.Join(append(buf, "}"), "\n")
	}
	buf = append(buf, fmt.Sprintf(`    START -> bb_%d`, m.Flow.First.Num))

	/* breadth first over the flow graph */
	for q.Enqueue(m.Flow.First); !q.Empty(); {
		p := q.Dequeue().(*ir.Block)
		if seen[p] {
			continue
		}

		/* place the block */
		seen[p] = true
		if p.LoopNum == ir.NotInLoop {
			buf = append(buf, "    "+dotNode(m, p))
		} else {
			loops[p.LoopNum] = append(loops[p.LoopNum], p)
		}

		/* the jump target is drawn in blue */
		for _, s := range ir.Succs(p) {
			e := _Edge{from: p, to: s}
			if edges[e] {
				continue
			}
			tag := ""
			if p.Kind == ir.JumpCond && s == p.Target {
				tag = ` [ color = "blue" ]`
			}
			edges[e] = true
			buf = append(buf, fmt.Sprintf(`    bb_%d -> bb_%d%s`, p.Num, s.Num, tag))
			q.Enqueue(s)
		}
	}

	/* one cluster per loop */
	nums := maps.Keys(loops)
	slices.Sort(nums)
	for _, l := range nums {
		buf = append(buf, fmt.Sprintf(`    subgraph cluster_L%02d {`, l), fmt.Sprintf(`        label = "L%02d"`, l))
		for _, bb := range loops[l] {
			buf = append(buf, "        "+dotNode(m, bb))
		}
		buf = append(buf, "    }")
	}
	return strings.Join(append(buf, "}"), "\n")
}
