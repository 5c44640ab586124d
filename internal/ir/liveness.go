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

package ir

import (
    `github.com/cloudwego/loopopt/internal/bitset`
    `github.com/oleiade/lane`
)

func (self *Flow) trackedIndex(lcl int) (int, bool) {
    if lcl < 0 || lcl >= len(self.Lcls) || !self.Lcls[lcl].Tracked {
        return 0, false
    } else {
        return self.Lcls[lcl].TrackedIndex, true
    }
}

// ComputeUseDef fills VarUse (read before written) and VarDef of every
// block. Phi definitions and phi arguments are not real accesses.
func (self *Flow) ComputeUseDef() {
    env := self.VarUniverse
    for bb := self.First; bb != nil; bb = bb.Next {
        bb.VarUse = bitset.Sets.MakeEmpty(env)
        bb.VarDef = bitset.Sets.MakeEmpty(env)

        /* scan the statements in order */
        for _, s := range bb.Stmts {
            if !s.IsPhiStore() {
                self.useDef(bb, s)
            }
        }
    }
}

func (self *Flow) useDef(bb *Block, stmt *Node) {
    env := self.VarUniverse
    Walk(stmt, nil, func(n *Node) {
        switch n.Op {
            case OpLclVar: {
                if i, ok := self.trackedIndex(n.Lcl); ok && !bitset.Sets.IsMember(env, bb.VarDef, i) {
                    bitset.Sets.AddElemD(env, &bb.VarUse, i)
                }
            }
            case OpStoreLcl: {
                if i, ok := self.trackedIndex(n.Lcl); ok {
                    bitset.Sets.AddElemD(env, &bb.VarDef, i)
                }
            }
        }
    })
}

// ComputeLiveness runs backward liveness over the tracked locals. Locals
// live into a handler are live out of every block its try protects.
func (self *Flow) ComputeLiveness() {
    q := lane.NewQueue()
    env := self.VarUniverse
    inq := make(map[*Block]bool)

    /* local use and def sets */
    self.ComputeUseDef()
    for bb := self.Last; bb != nil; bb = bb.Prev {
        bb.LiveIn = bitset.Sets.MakeEmpty(env)
        bb.LiveOut = bitset.Sets.MakeEmpty(env)
        inq[bb] = true
        q.Enqueue(bb)
    }

    /* iterate to a fixed point */
    for !q.Empty() {
        bb := q.Dequeue().(*Block)
        inq[bb] = false

        /* out = union of the successors' ins */
        bitset.Sets.ClearD(env, &bb.LiveOut)
        for _, s := range self.liveSuccs(bb) {
            bitset.Sets.UnionD(env, &bb.LiveOut, s.LiveIn)
        }

        /* in = use | (out & ~def) */
        old := bitset.Sets.MakeCopy(env, bb.LiveIn)
        bitset.Sets.LivenessD(env, &bb.LiveIn, bb.VarDef, bb.VarUse, bb.LiveOut)

        /* nothing changed */
        if bitset.Sets.Equal(env, old, bb.LiveIn) {
            continue
        }

        /* revisit everything that flows into this block */
        for _, p := range self.livePreds(bb) {
            if !inq[p] {
                inq[p] = true
                q.Enqueue(p)
            }
        }
    }
}

func (self *Flow) liveSuccs(bb *Block) []*Block {
    ret := Succs(bb)
    for i := bb.TryIndex; i != 0; i = self.EH[i - 1].EnclosingTry {
        if h := self.EH[i - 1].HndBeg; h != nil && !containsBlock(ret, h) {
            ret = append(ret, h)
        }
    }
    return ret
}

func (self *Flow) livePreds(bb *Block) []*Block {
    var ret []*Block
    for _, e := range bb.Preds {
        ret = append(ret, e.From)
    }

    /* a handler entry is a successor of every block in its try */
    for i, r := range self.EH {
        if r.HndBeg == bb {
            for p := self.First; p != nil; p = p.Next {
                if self.InTryRegions(i + 1, p) && !containsBlock(ret, p) {
                    ret = append(ret, p)
                }
            }
        }
    }
    return ret
}
