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

// entryLoop returns the outermost loop entered at bb, or NotInLoop.
func (self *Table) entryLoop(bb *ir.Block) int {
    for i, l := range self.Loops {
        if !l.IsRemoved() && l.Entry == bb {
            return i
        }
    }
    return ir.NotInLoop
}

// loopEntryMemory is the memory state at the entry of a loop: whatever
// flows in from the head, except for the locations the loop writes,
// which get a state private to the loop.
func (self *Table) loopEntryMemory(lnum int, out map[*ir.Block]ir.Memory) ir.Memory {
    vs := self.Flow.VNs
    loop := self.Loops[lnum]

    /* the head must be numbered already */
    mem, ok := out[loop.Head]
    if !ok {
        return ir.Memory{Heap: ir.MemState{VN: vs.MemPhi(loop.Entry), Def: loop.Entry}}
    }

    /* the whole heap changes */
    mem = mem.Clone()
    if loop.HavocsAny() {
        mem.Clobber(vs.MemOpaque(lnum, ""), loop.Entry)
        return mem
    }

    /* only what the loop writes changes */
    loop.FieldsModified.Each(func(loc string) bool {
        mem.Update(loc, vs.MemOpaque(lnum, loc), loop.Entry)
        return false
    })
    loop.ArrElemTypesModified.Each(func(elem string) bool {
        loc := ir.ElemLoc(elem)
        mem.Update(loc, vs.MemOpaque(lnum, loc), loop.Entry)
        return false
    })
    return mem
}

// NumberValues numbers the whole method, using the side effect summary
// of every loop for the memory state at its entry. Side effects must be
// computed first.
func (self *Table) NumberValues() {
    fn := self.Flow
    out := make(map[*ir.Block]ir.Memory)

    /* forget the old numbers */
    for _, l := range self.Loops {
        l.vnInvariant = nil
    }

    /* number the blocks in lexical order */
    for bb := fn.First; bb != nil; bb = bb.Next {
        if lnum := self.entryLoop(bb); lnum != ir.NotInLoop {
            out[bb] = fn.NumberBlock(bb, self.loopEntryMemory(lnum, out))
        } else {
            out[bb] = fn.NumberBlock(bb, fn.MergeMemory(bb, out))
        }
    }
}
