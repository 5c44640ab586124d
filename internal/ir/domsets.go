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
)

// ComputeDomSets computes the full dominator set of every block by
// iterating dom(b) &= {b} | meet(dom(p)) to a fixed point. Sets are
// indexed by block ID. Blocks unreachable from every root keep the full
// set.
func (self *Flow) ComputeDomSets() map[*Block]bitset.ShortLong {
    env := self.BlockUniverse
    ret := make(map[*Block]bitset.ShortLong)
    roots := self.DomRoots()

    /* roots dominate themselves only, everything else starts full */
    for bb := self.First; bb != nil; bb = bb.Next {
        if containsBlock(roots, bb) {
            ret[bb] = bitset.Sets.MakeSingleton(env, bb.ID)
        } else {
            ret[bb] = bitset.Sets.MakeFull(env)
        }
    }

    /* iterate in lexical order until nothing changes */
    for changed := true; changed; {
        changed = false
        for bb := self.First; bb != nil; bb = bb.Next {
            if containsBlock(roots, bb) {
                continue
            }

            /* meet over the predecessors */
            out := ret[bb]
            old := bitset.Sets.MakeCopy(env, out)
            meet := bitset.Sets.MakeFull(env)
            for _, e := range bb.Preds {
                bitset.Sets.IntersectionD(env, &meet, ret[e.From])
            }

            /* out &= {bb} | meet */
            bitset.Sets.DataFlowD(env, &out, bitset.Sets.MakeSingleton(env, bb.ID), meet)
            ret[bb] = out

            /* check for changes */
            if !bitset.Sets.Equal(env, old, out) {
                changed = true
            }
        }
    }
    return ret
}
