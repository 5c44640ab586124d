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

// ComputeReachability computes, for every block, the set of blocks that
// can reach it. A block always reaches itself.
func (self *Flow) ComputeReachability() {
    q := lane.NewQueue()
    env := self.BlockUniverse
    inq := make(map[*Block]bool)

    /* every block starts with itself */
    for bb := self.First; bb != nil; bb = bb.Next {
        bb.reach = bitset.Sets.MakeSingleton(env, bb.ID)
        inq[bb] = true
        q.Enqueue(bb)
    }

    /* propagate along the edges until stable */
    for !q.Empty() {
        bb := q.Dequeue().(*Block)
        inq[bb] = false

        /* union of the predecessors */
        for _, e := range bb.Preds {
            if !bitset.Sets.MayBeUninit(e.From.reach) {
                bitset.Sets.UnionD(env, &bb.reach, e.From.reach)
            }
        }

        /* successors may reach further now */
        for _, s := range Succs(bb) {
            if !inq[s] && !bitset.Sets.IsSubset(env, bb.reach, s.reach) {
                inq[s] = true
                q.Enqueue(s)
            }
        }
    }

    /* mark as valid */
    self.reachValid = true
}

// ReachSet returns the set of blocks that can reach bb.
func (self *Flow) ReachSet(bb *Block) bitset.ShortLong {
    if !self.reachValid {
        self.ComputeReachability()
    }
    return bb.reach
}
