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
    `fmt`
    `strings`
)

// VN is a value number. Equal value numbers denote equal values.
type VN int32

const (
    NoVN VN = 0
)

const (
    LoopUnknown = -2
)

type VNKind uint8

const (
    VNInvalid VNKind = iota
    VNConst
    VNFunc
    VNPhiDef
    VNMemPhi
    VNMemOpaque
    VNUnique
)

type _VNEntry struct {
    kind  VNKind
    typ   VarType
    val   int64
    op    Op
    name  string
    args  []VN
    lcl   int
    ssa   int
    block *Block
    loop  int
}

// VNStore hash-conses value numbers. MemDep maps every memory load to
// the block that defined the memory state it observed.
type VNStore struct {
    tab    []_VNEntry
    index  map[string]VN
    MemDep map[*Node]*Block
}

func NewVNStore() *VNStore {
    return &VNStore {
        tab    : make([]_VNEntry, 1),
        index  : make(map[string]VN),
        MemDep : make(map[*Node]*Block),
    }
}

func (self *VNStore) add(e _VNEntry) VN {
    self.tab = append(self.tab, e)
    return VN(len(self.tab) - 1)
}

func (self *VNStore) intern(key string, e _VNEntry) VN {
    if vn, ok := self.index[key]; ok {
        return vn
    }
    vn := self.add(e)
    self.index[key] = vn
    return vn
}

func (self *VNStore) entry(vn VN) *_VNEntry {
    if vn <= NoVN || int(vn) >= len(self.tab) {
        return &self.tab[0]
    } else {
        return &self.tab[vn]
    }
}

func (self *VNStore) Const(t VarType, v int64) VN {
    v = t.Wrap(v)
    return self.intern(fmt.Sprintf("c|%d|%d", t, v), _VNEntry{kind: VNConst, typ: t, val: v})
}

// Func numbers the application of op to args. name carries the static
// payload of the operator, such as a field or helper name.
func (self *VNStore) Func(op Op, name string, t VarType, args ...VN) VN {
    key := fmt.Sprintf("f|%d|%s|%d|%v", op, name, t, args)
    return self.intern(key, _VNEntry{kind: VNFunc, typ: t, op: op, name: name, args: args})
}

// PhiDef numbers the value of lcl#ssa merged by a phi in blk.
func (self *VNStore) PhiDef(t VarType, lcl int, ssa int, blk *Block) VN {
    key := fmt.Sprintf("p|%d|%d", lcl, ssa)
    return self.intern(key, _VNEntry{kind: VNPhiDef, typ: t, lcl: lcl, ssa: ssa, block: blk})
}

// MemPhi numbers the memory state merged at the start of blk.
func (self *VNStore) MemPhi(blk *Block) VN {
    key := fmt.Sprintf("m|%d", blk.ID)
    return self.intern(key, _VNEntry{kind: VNMemPhi, block: blk})
}

// MemOpaque numbers the memory state at the entry of a loop that
// modifies loc. An empty loc stands for the whole heap.
func (self *VNStore) MemOpaque(loop int, loc string) VN {
    key := fmt.Sprintf("o|%d|%s", loop, loc)
    return self.intern(key, _VNEntry{kind: VNMemOpaque, loop: loop, name: loc})
}

// Unique returns a value number equal to no other, defined in an
// unknown loop.
func (self *VNStore) Unique(t VarType) VN {
    return self.add(_VNEntry{kind: VNUnique, typ: t, loop: LoopUnknown})
}

// UniqueIn returns a value number equal to no other, defined in the
// given loop.
func (self *VNStore) UniqueIn(t VarType, loop int) VN {
    return self.add(_VNEntry{kind: VNUnique, typ: t, loop: loop})
}

func (self *VNStore) Kind(vn VN) VNKind     { return self.entry(vn).kind }
func (self *VNStore) Type(vn VN) VarType    { return self.entry(vn).typ }
func (self *VNStore) IsConst(vn VN) bool    { return self.entry(vn).kind == VNConst }
func (self *VNStore) ConstValue(vn VN) int64 { return self.entry(vn).val }
func (self *VNStore) Args(vn VN) []VN       { return self.entry(vn).args }
func (self *VNStore) FuncOp(vn VN) Op       { return self.entry(vn).op }
func (self *VNStore) DefBlock(vn VN) *Block { return self.entry(vn).block }
func (self *VNStore) Loop(vn VN) int        { return self.entry(vn).loop }

func (self *VNStore) String(vn VN) string {
    e := self.entry(vn)
    switch e.kind {
        case VNConst     : return fmt.Sprintf("%d", e.val)
        case VNPhiDef    : return fmt.Sprintf("phidef(V%02d#%d)", e.lcl, e.ssa)
        case VNMemPhi    : return fmt.Sprintf("memphi(%s)", e.block)
        case VNMemOpaque : return fmt.Sprintf("memopaque(L%02d%s)", e.loop, e.name)
        case VNUnique    : return fmt.Sprintf("$%d", vn)
        case VNInvalid   : return "novn"
    }

    /* function applications */
    args := make([]string, len(e.args))
    for i, a := range e.args {
        args[i] = self.String(a)
    }
    return fmt.Sprintf("%s%s(%s)", e.op, e.name, strings.Join(args, ", "))
}
