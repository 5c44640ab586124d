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
    `fmt`
    `io`
    `strings`

    `github.com/cloudwego/loopopt/internal/bitset`
    `github.com/cloudwego/loopopt/internal/ir`
    `github.com/cloudwego/loopopt/internal/logger`
    `github.com/cloudwego/loopopt/internal/opts`
    `github.com/cloudwego/loopopt/internal/target`
    `github.com/davecgh/go-spew/spew`
    `github.com/deckarep/golang-set/v2`
)

type LoopFlags uint32

const (
    LoopDoWhile LoopFlags = 1 << iota
    LoopOneExit
    LoopHasPreheader
    LoopRemoved
    LoopConstInit
    LoopVarInit
    LoopConstLimit
    LoopVarLimit
    LoopArrLenLimit
    LoopSIMDLimit
    LoopDontUnroll
    LoopIter
    LoopConst
    LoopHoistable
    LoopAsgVarsYes
)

var _FlagNames = [...]string {
    "do-while",
    "one-exit",
    "preheader",
    "removed",
    "const-init",
    "var-init",
    "const-limit",
    "var-limit",
    "arrlen-limit",
    "simd-limit",
    "dont-unroll",
    "iter",
    "const",
    "hoistable",
    "asg-vars",
}

func (self LoopFlags) String() string {
    var sb []string
    for i, v := range _FlagNames {
        if self & (1 << i) != 0 {
            sb = append(sb, v)
        }
    }
    return strings.Join(sb, " ")
}

type MemoryKind uint8

const (
    GCHeap MemoryKind = iota
    ByrefExposed
    MemoryKindCount
)

func (self MemoryKind) String() string {
    switch self {
        case GCHeap       : return "GcHeap"
        case ByrefExposed : return "ByrefExposed"
        default           : return fmt.Sprintf("MemoryKind(%d)", self)
    }
}

// RefKinds classifies the indirect and global stores of a loop.
type RefKinds uint8

const (
    RefIndRef RefKinds = 1 << iota
    RefIndScl
    RefGlobal
)

// LoopDsc describes one natural loop. Removed loops keep their slot so
// that loop numbers stay valid.
type LoopDsc struct {
    Head      *ir.Block
    First     *ir.Block
    Top       *ir.Block
    Entry     *ir.Block
    Bottom    *ir.Block
    Exit      *ir.Block
    ExitCount int
    Parent    int
    Child     int
    Sibling   int
    Flags     LoopFlags

    /* iterator of counted loops */
    IterVar      int
    ConstInitVal int64
    VarInitLcl   int
    TestTree     *ir.Node
    IterTree     *ir.Node
    IterOper     ir.Op
    IterType     ir.VarType
    IterConst    int64

    /* side effects */
    ContainsCall         bool
    Havoc                [MemoryKindCount]bool
    FieldsModified       mapset.Set[string]
    ArrElemTypesModified mapset.Set[string]
    VarInOut             bitset.ShortLong
    VarUseDef            bitset.ShortLong
    AsgVars              bitset.ShortLong
    AsgInds              RefKinds
    vnInvariant          map[ir.VN]bool

    /* hoisting counters */
    HoistedExprCount     int
    LoopVarCount         int
    VarInOutCount        int
    HoistedFPExprCount   int
    LoopVarFPCount       int
    VarInOutFPCount      int
}

func (self *LoopDsc) Has(f LoopFlags) bool {
    return self.Flags & f != 0
}

func (self *LoopDsc) IsRemoved() bool {
    return self.Has(LoopRemoved)
}

// Contains reports whether blk lies in the lexical range of the loop.
func (self *LoopDsc) Contains(blk *ir.Block) bool {
    return self.First.Num <= blk.Num && blk.Num <= self.Bottom.Num
}

// ContainsRange reports whether [first, bottom] lies within the loop.
func (self *LoopDsc) ContainsRange(first *ir.Block, bottom *ir.Block) bool {
    return self.First.Num <= first.Num && bottom.Num <= self.Bottom.Num
}

// ContainedBy reports whether the loop lies within [first, bottom].
func (self *LoopDsc) ContainedBy(first *ir.Block, bottom *ir.Block) bool {
    return first.Num <= self.First.Num && self.Bottom.Num <= bottom.Num
}

// Disjoint reports whether the loop and [first, bottom] do not overlap.
func (self *LoopDsc) Disjoint(first *ir.Block, bottom *ir.Block) bool {
    return bottom.Num < self.First.Num || self.Bottom.Num < first.Num
}

// ContainsLoop reports whether other lies within the loop.
func (self *LoopDsc) ContainsLoop(other *LoopDsc) bool {
    return self.ContainsRange(other.First, other.Bottom)
}

// WellFormed checks the ordering of the loop blocks.
func (self *LoopDsc) WellFormed() bool {
    return self.First.Num <= self.Top.Num &&
           self.Top.Num <= self.Entry.Num &&
           self.Entry.Num <= self.Bottom.Num &&
           (self.Head.Num < self.Top.Num || self.Head.Num > self.Bottom.Num)
}

// Limit returns the operand the iterator is compared against.
func (self *LoopDsc) Limit() *ir.Node {
    if self.iterIsOp1() {
        return self.TestTree.Op2
    } else {
        return self.TestTree.Op1
    }
}

func (self *LoopDsc) iterIsOp1() bool {
    x := self.TestTree.Op1
    return x.Op == ir.OpLclVar && x.Lcl == self.IterVar
}

// TestOper is the relation the loop continues under, written with the
// iterator on the left.
func (self *LoopDsc) TestOper() ir.Op {
    if self.iterIsOp1() {
        return self.TestTree.Op
    } else {
        return ir.SwapOp(self.TestTree.Op)
    }
}

func (self *LoopDsc) IterConstInit() int64 {
    ir.Assert(self.Has(LoopConstInit), "loops: no constant init")
    return self.ConstInitVal
}

func (self *LoopDsc) ConstLimitValue() int64 {
    ir.Assert(self.Has(LoopConstLimit), "loops: no constant limit")
    return self.Limit().Val
}

func (self *LoopDsc) VarLimitLcl() int {
    ir.Assert(self.Has(LoopVarLimit), "loops: no variable limit")
    return self.Limit().Lcl
}

func (self *LoopDsc) addHavoc(kinds ...MemoryKind) {
    for _, k := range kinds {
        self.Havoc[k] = true
    }
}

// Table is the loop table of one method. Parents are stored before
// their children.
type Table struct {
    Loops  []*LoopDsc
    Flow   *ir.Flow
    Opts   *opts.Options
    Target target.Target
    Marked bool
    log    *logger.Logger
}

func NewTable(fn *ir.Flow, o *opts.Options, tgt target.Target) *Table {
    return &Table {
        Flow   : fn,
        Opts   : o,
        Target : tgt,
        log    : o.Log().Named("loops"),
    }
}

func (self *Table) Len() int {
    return len(self.Loops)
}

func (self *Table) Loop(lnum int) *LoopDsc {
    return self.Loops[lnum]
}

// Reset empties the table and clears the block labels.
func (self *Table) Reset() {
    self.Loops = self.Loops[:0]
    for bb := self.Flow.First; bb != nil; bb = bb.Next {
        bb.LoopNum = ir.NotInLoop
    }
}

// ContainsLoop reports whether loop l2 is l1 or nested in it.
func (self *Table) ContainsLoop(l1 int, l2 int) bool {
    ir.Assert(l1 != ir.NotInLoop, "loops: containment query on no loop")
    for l2 != ir.NotInLoop {
        if l1 == l2 {
            return true
        }
        l2 = self.Loops[l2].Parent
    }
    return false
}

// BlockLoop returns the innermost loop of blk, or NotInLoop.
func (self *Table) BlockLoop(blk *ir.Block) int {
    return blk.LoopNum
}

// FindLoopNumberFromBeginBlock returns the loop whose head falls into
// begBlk.
func (self *Table) FindLoopNumberFromBeginBlock(begBlk *ir.Block) int {
    for i, l := range self.Loops {
        if l.Head != nil && l.Head.Next == begBlk {
            return i
        }
    }
    panic(ir.Assertf("loops: no loop begins at %s", begBlk))
}

// Record adds a loop, keeping loops that contain others before them.
// A full table silently drops the loop.
func (self *Table) Record(head, first, top, entry, bottom, exit *ir.Block, exitCount int) (int, bool) {
    if !self.Opts.CanRecord(len(self.Loops)) {
        self.log.Debugw("loop table full", "top", top.String(), "bottom", bottom.String())
        return ir.NotInLoop, false
    }

    /* assumed preconditions */
    ir.Assert(first.Num <= top.Num && top.Num <= entry.Num && entry.Num <= bottom.Num, "loops: malformed loop %s..%s", top, bottom)
    ir.Assert(head.Num < top.Num || head.Num > bottom.Num, "loops: head %s inside loop %s..%s", head, top, bottom)

    /* find the first loop the new one contains */
    idx := len(self.Loops)
    for i := len(self.Loops) - 1; i >= 0; i-- {
        if self.Loops[i].ContainedBy(first, bottom) {
            idx = i
        }
    }

    /* no partial overlaps with the loops after it */
    for _, l := range self.Loops[idx:] {
        if !l.Disjoint(first, bottom) && !l.ContainedBy(first, bottom) {
            panic(ir.Assertf("loops: %s..%s partially overlaps %s..%s", first, bottom, l.First, l.Bottom))
        }
    }

    /* build the descriptor */
    loop := &LoopDsc {
        Head      : head,
        First     : first,
        Top       : top,
        Entry     : entry,
        Bottom    : bottom,
        ExitCount : exitCount,
        Parent    : ir.NotInLoop,
        Child     : ir.NotInLoop,
        Sibling   : ir.NotInLoop,
        IterVar   : -1,
    }

    /* shape flags */
    if head.Next == entry {
        loop.Flags |= LoopDoWhile
    }
    if exitCount == 1 {
        ir.Assert(exit != nil, "loops: single exit loop without exit block")
        loop.Exit = exit
        loop.Flags |= LoopOneExit
    }

    /* insert into the table */
    self.Loops = append(self.Loops, nil)
    copy(self.Loops[idx + 1:], self.Loops[idx:])
    self.Loops[idx] = loop

    /* look for a counted loop */
    self.findIterator(loop)
    self.log.Debugw("recorded loop", "loop", idx, "top", top.String(), "bottom", bottom.String(), "flags", loop.Flags.String())
    return idx, true
}

// LoopShape is a position independent summary of a loop, using block
// numbers instead of blocks.
type LoopShape struct {
    Head      int
    First     int
    Top       int
    Entry     int
    Bottom    int
    Exit      int
    ExitCount int
    Parent    int
    Child     int
    Sibling   int
    Flags     string
}

func blockNum(bb *ir.Block) int {
    if bb == nil {
        return 0
    } else {
        return bb.Num
    }
}

// Snapshot summarizes every loop of the table.
func (self *Table) Snapshot() []LoopShape {
    ret := make([]LoopShape, 0, len(self.Loops))
    for _, l := range self.Loops {
        ret = append(ret, LoopShape {
            Head      : blockNum(l.Head),
            First     : blockNum(l.First),
            Top       : blockNum(l.Top),
            Entry     : blockNum(l.Entry),
            Bottom    : blockNum(l.Bottom),
            Exit      : blockNum(l.Exit),
            ExitCount : l.ExitCount,
            Parent    : l.Parent,
            Child     : l.Child,
            Sibling   : l.Sibling,
            Flags     : l.Flags.String(),
        })
    }
    return ret
}

func loopName(lnum int) string {
    if lnum == ir.NotInLoop {
        return "--"
    } else {
        return fmt.Sprintf("L%02d", lnum)
    }
}

// Dump prints the loop table.
func (self *Table) Dump(w io.Writer) {
    for i, l := range self.Loops {
        if l.IsRemoved() {
            fmt.Fprintf(w, "%s removed\n", loopName(i))
            continue
        }

        /* shape of the loop */
        fmt.Fprintf(w, "%s, from %s", loopName(i), l.First)
        if l.Top != l.First {
            fmt.Fprintf(w, " (loop top is %s)", l.Top)
        }
        fmt.Fprintf(w, " to %s (Head=%s, Entry=%s", l.Bottom, l.Head, l.Entry)
        if l.ExitCount == 1 {
            fmt.Fprintf(w, ", Exit=%s", l.Exit)
        } else {
            fmt.Fprintf(w, ", ExitCount=%d", l.ExitCount)
        }
        fmt.Fprintf(w, "), parent=%s, child=%s, sibling=%s", loopName(l.Parent), loopName(l.Child), loopName(l.Sibling))
        if l.Flags != 0 {
            fmt.Fprintf(w, " [%s]", l.Flags)
        }
        fmt.Fprintln(w)

        /* counted loops */
        if l.Has(LoopIter) {
            fmt.Fprintf(w, "    iterator V%02d %s= %d, test %s\n", l.IterVar, l.IterOper, l.IterConst, l.TestTree)
        }
    }
}

var _SpewConfig = spew.ConfigState {
    Indent                  : "    ",
    MaxDepth                : 2,
    DisablePointerAddresses : true,
    DisableCapacities       : true,
    SortKeys                : true,
}

// DumpVerbose prints every field of every loop.
func (self *Table) DumpVerbose(w io.Writer) {
    for i, l := range self.Loops {
        fmt.Fprintf(w, "%s: ", loopName(i))
        _SpewConfig.Fdump(w, self.Snapshot()[i])
        fmt.Fprintf(w, "    havoc=%v call=%v asg-inds=%d\n", l.Havoc, l.ContainsCall, l.AsgInds)
    }
}
