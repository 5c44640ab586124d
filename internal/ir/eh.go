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

type EHKind uint8

const (
    EHCatch EHKind = iota
    EHFinally
    EHFault
    EHFilter
)

// EHRegion describes one protected region and its handler. Indices
// stored in blocks are 1-based, zero means "not in any region".
type EHRegion struct {
    Kind         EHKind
    TryBeg       *Block
    TryLast      *Block
    HndBeg       *Block
    HndLast      *Block
    EnclosingTry int
}

// AddRegion appends a region and returns its 1-based index.
func (self *Flow) AddRegion(r *EHRegion) int {
    self.EH = append(self.EH, r)
    return len(self.EH)
}

func (self *Flow) Region(idx int) *EHRegion {
    if idx <= 0 || idx > len(self.EH) {
        return nil
    } else {
        return self.EH[idx - 1]
    }
}

// SameTryRegion reports whether both blocks are protected by the same
// innermost try.
func SameTryRegion(a *Block, b *Block) bool {
    return a.TryIndex == b.TryIndex
}

// SameHndRegion reports whether both blocks are in the same handler.
func SameHndRegion(a *Block, b *Block) bool {
    return a.HndIndex == b.HndIndex
}

// SameEHRegion reports whether both blocks are in the same try and
// handler regions.
func SameEHRegion(a *Block, b *Block) bool {
    return SameTryRegion(a, b) && SameHndRegion(a, b)
}

// InTryRegions reports whether blk lies in try region idx, directly or
// through a nested region.
func (self *Flow) InTryRegions(idx int, blk *Block) bool {
    for i := blk.TryIndex; i != 0; i = self.EH[i - 1].EnclosingTry {
        if i == idx {
            return true
        }
    }
    return false
}

// TryDepth is the number of try regions protecting blk.
func (self *Flow) TryDepth(blk *Block) int {
    n := 0
    for i := blk.TryIndex; i != 0; i = self.EH[i - 1].EnclosingTry {
        n++
    }
    return n
}

func (self *Flow) IsTryEntry(blk *Block) bool {
    for _, r := range self.EH {
        if r.TryBeg == blk {
            return true
        }
    }
    return false
}

func (self *Flow) IsHandlerEntry(blk *Block) bool {
    for _, r := range self.EH {
        if r.HndBeg == blk {
            return true
        }
    }
    return false
}

// ExtendRegionsAfter makes newLast the last block of every region whose
// last block was oldLast, provided newLast belongs to that region.
func (self *Flow) ExtendRegionsAfter(oldLast *Block, newLast *Block) {
    for i, r := range self.EH {
        if r.TryLast == oldLast && self.InTryRegions(i + 1, newLast) {
            r.TryLast = newLast
        }
        if r.HndLast == oldLast && newLast.HndIndex == i + 1 {
            r.HndLast = newLast
        }
    }
}

func (self *Flow) extendRegionsBefore(oldBeg *Block, newBeg *Block) {
    for i, r := range self.EH {
        if r.TryBeg == oldBeg && self.InTryRegions(i + 1, newBeg) {
            r.TryBeg = newBeg
        }
    }
}
