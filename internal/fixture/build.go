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
    `fmt`
    `strings`

    `github.com/cloudwego/loopopt/internal/ir`
    `github.com/cockroachdb/errors`
    `golang.org/x/exp/maps`
    `golang.org/x/exp/slices`
)

var _BlockFlags = map[string]ir.BlockFlags{
    "dont_remove":   ir.BlockDontRemove,
    "run_rarely":    ir.BlockRunRarely,
    "internal":      ir.BlockInternal,
    "has_call":      ir.BlockHasCall,
    "gc_safe_point": ir.BlockGCSafePoint,
}

var _RegionKinds = map[string]ir.EHKind{
    "catch":   ir.EHCatch,
    "finally": ir.EHFinally,
    "fault":   ir.EHFault,
    "filter":  ir.EHFilter,
}

// Method is a fixture built into a flow graph.
type Method struct {
    Name    string
    Flow    *ir.Flow
    Labels  map[string]*ir.Block
    Queries []Stmt
}

// Stmt is one statement picked by a query.
type Stmt struct {
    Label string
    Index int
    Block *ir.Block
    Node  *ir.Node
}

// Label returns the label a block was declared with.
func (self *Method) Label(bb *ir.Block) string {
    for k, v := range self.Labels {
        if v == bb {
            return k
        }
    }
    return bb.String()
}

type _SsaStore struct {
    ssa  int
    bb   *ir.Block
    node *ir.Node
}

type _Builder struct {
    fn     *ir.Flow
    lcls   map[string]int
    labels map[string]*ir.Block
    stores map[int][]_SsaStore
    uses   []*ir.Node
}

// Build turns the fixture into a flow graph with predecessors computed.
func (self *Fixture) Build() (*Method, error) {
    b := &_Builder{
        fn:     ir.NewFlow(),
        lcls:   make(map[string]int),
        labels: make(map[string]*ir.Block),
        stores: make(map[int][]_SsaStore),
    }

    /* locals first, trees refer to them */
    if err := b.locals(self.Locals); err != nil {
        return nil, err
    }

    /* then the block chain */
    bbs, err := b.blocks(self)
    if err != nil {
        return nil, err
    }

    /* exception regions */
    if err = b.regions(self.Regions); err != nil {
        return nil, err
    }

    /* the statements */
    for i, v := range self.Blocks {
        for _, s := range v.Stmts {
            n, err := b.tree(bbs[i], &s)
            if err != nil {
                return nil, errors.Wrapf(err, "block %s", b.label(v, i))
            }
            bbs[i].Stmts = append(bbs[i].Stmts, n)
        }
    }

    /* SSA definitions are registered in order */
    if err = b.defineSsa(); err != nil {
        return nil, err
    }

    /* predecessors and edge weights */
    b.fn.ComputePreds()
    if err = b.edges(self, bbs); err != nil {
        return nil, err
    }

    /* resolve the queries */
    ret := &Method{Name: self.Name, Flow: b.fn, Labels: b.labels}
    for _, q := range self.Queries {
        bb, ok := b.labels[q.Block]
        if !ok {
            return nil, errors.Newf("query: unknown block %q", q.Block)
        }
        if q.Stmt < 0 || q.Stmt >= len(bb.Stmts) {
            return nil, errors.Newf("query: block %s has no statement %d", q.Block, q.Stmt)
        }
        ret.Queries = append(ret.Queries, Stmt{Label: q.Block, Index: q.Stmt, Block: bb, Node: bb.Stmts[q.Stmt]})
    }
    return ret, nil
}

func (self *_Builder) label(v Block, i int) string {
    if v.Label != "" {
        return v.Label
    } else {
        return fmt.Sprintf("BB%02d", i+1)
    }
}

func (self *_Builder) locals(lcls []Local) error {
    for _, v := range lcls {
        t, ok := ir.ParseType(v.Type)
        if !ok {
            return errors.Newf("local %q: unknown type %q", v.Name, v.Type)
        }

        /* names are used in trees, so they must be unambiguous */
        if _, ok = ir.ParseType(v.Name); ok || v.Name == "" || strings.ContainsRune(v.Name, '#') {
            return errors.Newf("invalid local name %q", v.Name)
        }
        if _, ok = self.lcls[v.Name]; ok {
            return errors.Newf("duplicated local %q", v.Name)
        }

        /* declare the local */
        self.lcls[v.Name] = self.fn.NewLcl(v.Name, t, v.Exposed)
    }
    return nil
}

func (self *_Builder) blocks(f *Fixture) ([]*ir.Block, error) {
    bbs := make([]*ir.Block, len(f.Blocks))
    self.fn.HaveProfileWeights = f.Profile

    /* create every block, jumps may go forward */
    for i, v := range f.Blocks {
        kind, ok := ir.ParseJumpKind(v.Kind)
        if !ok {
            return nil, errors.Newf("block %s: unknown jump kind %q", self.label(v, i), v.Kind)
        }

        /* labels are unique */
        name := self.label(v, i)
        if _, ok = self.labels[name]; ok {
            return nil, errors.Newf("duplicated block label %q", name)
        }

        /* add the block */
        bbs[i] = self.fn.AppendBlock(kind)
        self.labels[name] = bbs[i]
    }

    /* jump targets, weights and flags */
    for i, v := range f.Blocks {
        bb := bbs[i]
        name := self.label(v, i)

        /* the jump */
        switch bb.Kind {
            case ir.JumpAlways, ir.JumpCond, ir.JumpCallFinally, ir.JumpEHCatchRet:
                if bb.Target = self.labels[v.Target]; bb.Target == nil {
                    return nil, errors.Newf("block %s: unknown target %q", name, v.Target)
                }
            case ir.JumpSwitch:
                if len(v.Switch) == 0 {
                    return nil, errors.Newf("block %s: switch without cases", name)
                }
                for _, c := range v.Switch {
                    if t := self.labels[c]; t == nil {
                        return nil, errors.Newf("block %s: unknown case %q", name, c)
                    } else {
                        bb.Switch = append(bb.Switch, t)
                    }
                }
            default:
                if v.Target != "" {
                    return nil, errors.Newf("block %s: %s blocks have no target", name, bb.Kind)
                }
        }

        /* the weight */
        if v.Weight != nil {
            bb.SetWeight(*v.Weight)
            if f.Profile {
                bb.Flags |= ir.BlockProfWeight
            }
        }

        /* the flags */
        for _, fv := range v.Flags {
            if m, ok := _BlockFlags[fv]; !ok {
                return nil, errors.Newf("block %s: unknown flag %q, expected one of %s", name, fv, knownFlags())
            } else {
                bb.Flags |= m
            }
        }
    }
    return bbs, nil
}

func knownFlags() string {
    keys := maps.Keys(_BlockFlags)
    slices.Sort(keys)
    return strings.Join(keys, ", ")
}

func (self *_Builder) span(r [2]string) (*ir.Block, *ir.Block, error) {
    beg, end := self.labels[r[0]], self.labels[r[1]]
    if beg == nil || end == nil || beg.Num > end.Num {
        return nil, nil, errors.Newf("invalid block range [%s, %s]", r[0], r[1])
    } else {
        return beg, end, nil
    }
}

// regions declares the EH table. Nested regions come before the ones
// enclosing them.
func (self *_Builder) regions(rs []Region) error {
    for _, r := range rs {
        kind, ok := _RegionKinds[r.Kind]
        if !ok {
            return errors.Newf("unknown region kind %q", r.Kind)
        }

        /* both ranges */
        tbeg, tend, err := self.span(r.Try)
        if err != nil {
            return errors.Wrap(err, "try region")
        }
        hbeg, hend, err := self.span(r.Handler)
        if err != nil {
            return errors.Wrap(err, "handler region")
        }

        /* add the region */
        idx := self.fn.AddRegion(&ir.EHRegion{
            Kind:    kind,
            TryBeg:  tbeg,
            TryLast: tend,
            HndBeg:  hbeg,
            HndLast: hend,
        })

        /* the try body, inner regions keep their blocks */
        for bb := tbeg; bb != tend.Next; bb = bb.Next {
            if bb.TryIndex == 0 {
                bb.TryIndex = idx
            } else if inner := self.fn.Region(bb.TryIndex); inner.EnclosingTry == 0 && bb.TryIndex != idx {
                inner.EnclosingTry = idx
            }
        }

        /* the handler body */
        for bb := hbeg; bb != hend.Next; bb = bb.Next {
            if bb.HndIndex == 0 {
                bb.HndIndex = idx
            }
        }
        if kind == ir.EHCatch || kind == ir.EHFilter {
            hbeg.CatchEntry = true
        }
    }
    return nil
}

func (self *_Builder) defineSsa() error {
    lcls := maps.Keys(self.stores)
    slices.Sort(lcls)

    /* definitions of each local are numbered without gaps */
    for _, lcl := range lcls {
        defs := self.stores[lcl]
        slices.SortFunc(defs, func(a _SsaStore, b _SsaStore) int { return a.ssa - b.ssa })
        for i, d := range defs {
            if d.ssa != ir.SsaFirst+i+1 {
                return errors.Newf("local %s: expected SSA definition #%d, got #%d", self.fn.Lcls[lcl].Name, ir.SsaFirst+i+1, d.ssa)
            }
            self.fn.NewSsaDef(lcl, d.bb, d.node)
        }
    }

    /* every use must have a definition */
    for _, n := range self.uses {
        if self.fn.SsaDefOf(n.Lcl, n.Ssa) == nil {
            return errors.Newf("use of undefined SSA value %s#%d", self.fn.Lcls[n.Lcl].Name, n.Ssa)
        }
    }
    return nil
}

func (self *_Builder) edges(f *Fixture, bbs []*ir.Block) error {
    for i, v := range f.Blocks {
        for from, w := range v.Edges {
            src := self.labels[from]
            if src == nil {
                return errors.Newf("block %s: unknown edge source %q", self.label(v, i), from)
            }

            /* the edge must exist */
            e := bbs[i].FindPred(src)
            if e == nil {
                return errors.Newf("block %s: no edge from %s", self.label(v, i), from)
            }

            /* exact weight */
            e.WeightMin = w
            e.WeightMax = w
            self.fn.HaveValidEdgeWeights = true
        }
    }
    return nil
}
