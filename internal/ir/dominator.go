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

/** This is an implementation of the Lengauer-Tarjan algorithm described in
 *  https://doi.org/10.1145%2F357062.357071
 *
 *  The method entry and every handler entry hang off a virtual root, so
 *  handlers get dominator trees of their own.
 */

package ir

import (
    `github.com/oleiade/lane`
)

type _LtNode struct {
    semi     int
    node     *Block
    dom      *_LtNode
    label    *_LtNode
    parent   *_LtNode
    ancestor *_LtNode
    pred     []*_LtNode
    bucket   map[*_LtNode]struct{}
}

type _LtFrame struct {
    bb     *Block
    parent *_LtNode
}

type _LengauerTarjan struct {
    nodes  []*_LtNode
    vertex map[*Block]*_LtNode
}

func newLengauerTarjan() *_LengauerTarjan {
    return &_LengauerTarjan {
        vertex: make(map[*Block]*_LtNode),
    }
}

func (self *_LengauerTarjan) newNode(bb *Block, parent *_LtNode) *_LtNode {
    p := &_LtNode {
        semi   : len(self.nodes),
        node   : bb,
        parent : parent,
        bucket : make(map[*_LtNode]struct{}),
    }

    /* add to node list */
    p.label = p
    self.nodes = append(self.nodes, p)
    return p
}

func (self *_LengauerTarjan) dfs(roots []*Block) {
    st := lane.NewStack()
    root := self.newNode(nil, nil)

    /* roots are pushed in reverse so the first one is numbered first */
    for i := len(roots) - 1; i >= 0; i-- {
        st.Push(_LtFrame { roots[i], root })
    }

    /* number the blocks in depth-first pre-order */
    for !st.Empty() {
        fr := st.Pop().(_LtFrame)
        if _, ok := self.vertex[fr.bb]; ok {
            continue
        }

        /* create a new node */
        p := self.newNode(fr.bb, fr.parent)
        self.vertex[fr.bb] = p

        /* traverse the successors */
        succ := Succs(fr.bb)
        for i := len(succ) - 1; i >= 0; i-- {
            if _, ok := self.vertex[succ[i]]; !ok {
                st.Push(_LtFrame { succ[i], p })
            }
        }
    }

    /* the virtual root is the predecessor of every root */
    for _, bb := range roots {
        q := self.vertex[bb]
        q.pred = append(q.pred, root)
    }

    /* add predecessors */
    for _, p := range self.nodes[1:] {
        for _, s := range Succs(p.node) {
            q := self.vertex[s]
            q.pred = append(q.pred, p)
        }
    }
}

func (self *_LengauerTarjan) eval(p *_LtNode) *_LtNode {
    if p.ancestor == nil {
        return p
    } else {
        self.compress(p)
        return p.label
    }
}

func (self *_LengauerTarjan) link(p *_LtNode, q *_LtNode) {
    q.ancestor = p
}

func (self *_LengauerTarjan) compress(p *_LtNode) {
    if p.ancestor.ancestor != nil {
        self.compress(p.ancestor)
        if p.label.semi > p.ancestor.label.semi { p.label = p.ancestor.label }
        p.ancestor = p.ancestor.ancestor
    }
}

func minInt(a int, b int) int {
    if a < b {
        return a
    } else {
        return b
    }
}

// DomRoots returns the blocks control can start from: the method entry
// and every handler entry.
func (self *Flow) DomRoots() []*Block {
    var ret []*Block
    if self.First != nil {
        ret = append(ret, self.First)
    }

    /* handlers are entered by the runtime */
    for _, r := range self.EH {
        if r.HndBeg != nil && !containsBlock(ret, r.HndBeg) {
            ret = append(ret, r.HndBeg)
        }
    }
    return ret
}

// ComputeDoms computes immediate dominators and numbers the dominator
// tree so that Dominates is constant time.
func (self *Flow) ComputeDoms() {
    for bb := self.First; bb != nil; bb = bb.Next {
        bb.IDom = nil
        bb.DomPre = 0
        bb.DomPost = 0
    }

    /* Step 1: Carry out a depth-first search of the problem graph. Number the vertices
     * from 1 to n as they are reached during the search. Initialize the variables used
     * in succeeding steps. */
    lt := newLengauerTarjan()
    lt.dfs(self.DomRoots())

    /* perform Step 2 and Step 3 simultaneously */
    for i := len(lt.nodes) - 1; i > 0; i-- {
        p := lt.nodes[i]
        q := (*_LtNode)(nil)

        /* Step 2: Compute the semidominators of all vertices by applying Theorem 4.
         * Carry out the computation vertex by vertex in decreasing order by number. */
        for _, v := range p.pred {
            q = lt.eval(v)
            p.semi = minInt(p.semi, q.semi)
        }

        /* link the ancestor */
        lt.link(p.parent, p)
        lt.nodes[p.semi].bucket[p] = struct{}{}

        /* Step 3: Implicitly define the immediate dominator of each vertex by applying Corollary 1 */
        for v := range p.parent.bucket {
            if q = lt.eval(v); q.semi < v.semi {
                v.dom = q
            } else {
                v.dom = p.parent
            }
        }

        /* clear the bucket */
        for v := range p.parent.bucket {
            delete(p.parent.bucket, v)
        }
    }

    /* Step 4: Explicitly define the immediate dominator of each vertex, carrying out the
     * computation vertex by vertex in increasing order by number. */
    for _, p := range lt.nodes[1:] {
        if p.dom != lt.nodes[p.semi] {
            p.dom = p.dom.dom
        }
    }

    /* map the dominator relations, the virtual root maps to nil */
    kids := make(map[*Block][]*Block)
    for _, p := range lt.nodes[1:] {
        p.node.IDom = p.dom.node
        kids[p.dom.node] = append(kids[p.dom.node], p.node)
    }

    /* number the dominator tree */
    self.numberDomTree(kids)
    self.domsValid = true
}

func (self *Flow) numberDomTree(kids map[*Block][]*Block) {
    pre, post := 1, 1
    st := lane.NewStack()
    done := make(map[*Block]bool)

    /* the virtual root's children go first to last */
    roots := kids[nil]
    for i := len(roots) - 1; i >= 0; i-- {
        st.Push(roots[i])
    }

    /* iterative depth-first walk, numbering on entry and on exit */
    for !st.Empty() {
        bb := st.Head().(*Block)
        if bb.DomPre == 0 {
            bb.DomPre = pre
            pre++
            ch := kids[bb]
            for i := len(ch) - 1; i >= 0; i-- {
                st.Push(ch[i])
            }
        } else {
            st.Pop()
            if !done[bb] {
                done[bb] = true
                bb.DomPost = post
                post++
            }
        }
    }
}

// DomChildren lists the blocks bb immediately dominates.
func (self *Flow) DomChildren(bb *Block) []*Block {
    var ret []*Block
    if !self.domsValid {
        self.ComputeDoms()
    }

    /* scan the immediate dominators */
    for p := self.First; p != nil; p = p.Next {
        if p.IDom == bb && p.DomPre != 0 {
            ret = append(ret, p)
        }
    }
    return ret
}
