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

const (
    SsaNone  = 0
    SsaFirst = 1
)

// SsaDef is the definition site of one SSA version. The implicit
// incoming value has no block.
type SsaDef struct {
    Block *Block
    Store *Node
    VN    VN
}

type LclVar struct {
    Name         string
    Type         VarType
    AddrExposed  bool
    Tracked      bool
    TrackedIndex int
    Ssa          []*SsaDef
}

// SsaDef returns definition n, or nil when n is out of range.
func (self *LclVar) SsaDef(n int) *SsaDef {
    if n < SsaFirst || n > len(self.Ssa) {
        return nil
    } else {
        return self.Ssa[n - 1]
    }
}

// InSsa reports whether uses of the local carry SSA numbers.
func (self *LclVar) InSsa() bool {
    return self.Tracked && !self.AddrExposed
}

// NewLcl declares a local. Locals that are not address exposed are
// tracked by liveness and get the implicit SSA definition SsaFirst.
func (self *Flow) NewLcl(name string, t VarType, exposed bool) int {
    lcl := &LclVar {
        Name        : name,
        Type        : t,
        AddrExposed : exposed,
        Ssa         : []*SsaDef { {} },
    }

    /* tracked locals join the liveness universe */
    if !exposed {
        lcl.Tracked = true
        lcl.TrackedIndex = self.VarUniverse.Size()
        self.VarUniverse.Resize(lcl.TrackedIndex + 1)
    }

    /* add to the local table */
    self.Lcls = append(self.Lcls, lcl)
    return len(self.Lcls) - 1
}

// NewSsaDef records a new definition of lcl made by store in blk, and
// stamps the SSA number on the store.
func (self *Flow) NewSsaDef(lcl int, blk *Block, store *Node) int {
    v := self.Lcls[lcl]
    v.Ssa = append(v.Ssa, &SsaDef{Block: blk, Store: store})

    /* stamp the store */
    if store != nil {
        store.Ssa = len(v.Ssa)
    }
    return len(v.Ssa)
}

// SsaDefOf returns the definition of lcl#ssa, or nil.
func (self *Flow) SsaDefOf(lcl int, ssa int) *SsaDef {
    if lcl < 0 || lcl >= len(self.Lcls) {
        return nil
    } else {
        return self.Lcls[lcl].SsaDef(ssa)
    }
}

// TrackedLcl returns the local with the given tracked index.
func (self *Flow) TrackedLcl(idx int) *LclVar {
    for _, v := range self.Lcls {
        if v.Tracked && v.TrackedIndex == idx {
            return v
        }
    }
    return nil
}
