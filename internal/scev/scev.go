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

package scev

import (
    `fmt`

    `github.com/cloudwego/loopopt/internal/ir`
)

type Oper uint8

const (
    OperConstant Oper = iota
    OperLocal
    OperZeroExtend
    OperSignExtend
    OperAdd
    OperMul
    OperLsh
    OperAddRec
)

func (self Oper) String() string {
    switch self {
        case OperConstant   : return "const"
        case OperLocal      : return "local"
        case OperZeroExtend : return "zext"
        case OperSignExtend : return "sext"
        case OperAdd        : return "+"
        case OperMul        : return "*"
        case OperLsh        : return "<<"
        case OperAddRec     : return "addrec"
        default             : return fmt.Sprintf("oper(%d)", self)
    }
}

// Scev describes how a value evolves across the iterations of a loop.
type Scev interface {
    fmt.Stringer
    Oper() Oper
    Type() ir.VarType
    scev()
}

func (*Constant) scev() {}
func (*Local)    scev() {}
func (*Extend)   scev() {}
func (*Binop)    scev() {}
func (*AddRec)   scev() {}

type Constant struct {
    T     ir.VarType
    Value int64
}

func NewConstant(t ir.VarType, v int64) *Constant {
    return &Constant{T: t, Value: t.Wrap(v)}
}

func (self *Constant) Oper() Oper       { return OperConstant }
func (self *Constant) Type() ir.VarType { return self.T }

func (self *Constant) String() string {
    return fmt.Sprintf("%d", self.Value)
}

// Local is an SSA use of a local defined outside the loop.
type Local struct {
    T   ir.VarType
    Lcl int
    Ssa int
}

func (self *Local) Oper() Oper       { return OperLocal }
func (self *Local) Type() ir.VarType { return self.T }

func (self *Local) String() string {
    return fmt.Sprintf("V%02d.%d", self.Lcl, self.Ssa)
}

// Extend widens V to T, with zero or sign extension.
type Extend struct {
    Op Oper
    T  ir.VarType
    V  Scev
}

func (self *Extend) Oper() Oper       { return self.Op }
func (self *Extend) Type() ir.VarType { return self.T }

func (self *Extend) String() string {
    if self.Op == OperZeroExtend {
        return fmt.Sprintf("ZExt<%d>(%s)", self.T.Size() * 8, self.V)
    } else {
        return fmt.Sprintf("SExt<%d>(%s)", self.T.Size() * 8, self.V)
    }
}

type Binop struct {
    Op Oper
    T  ir.VarType
    X  Scev
    Y  Scev
}

func (self *Binop) Oper() Oper       { return self.Op }
func (self *Binop) Type() ir.VarType { return self.T }

func (self *Binop) String() string {
    return fmt.Sprintf("(%s %s %s)", self.X, self.Op, self.Y)
}

// AddRec is the recurrence <L, Start, Step>: Start on the first
// iteration of loop L, plus Step on every following one.
type AddRec struct {
    T     ir.VarType
    Loop  int
    Start Scev
    Step  Scev
}

func (self *AddRec) Oper() Oper       { return OperAddRec }
func (self *AddRec) Type() ir.VarType { return self.T }

func (self *AddRec) String() string {
    return fmt.Sprintf("<L%02d, %s, %s>", self.Loop, self.Start, self.Step)
}

// IsInvariant reports whether the value is the same on every iteration.
func IsInvariant(v Scev) bool {
    switch p := v.(type) {
        case *Constant : return true
        case *Local    : return true
        case *Extend   : return IsInvariant(p.V)
        case *Binop    : return IsInvariant(p.X) && IsInvariant(p.Y)
        default        : return false
    }
}

// IntConst returns the value of a constant node.
func IntConst(v Scev) (int64, bool) {
    if c, ok := v.(*Constant); ok {
        return c.Value, true
    } else {
        return 0, false
    }
}

func contains(v Scev, x Scev) bool {
    if v == x {
        return true
    }

    /* search the operands */
    switch p := v.(type) {
        case *Extend : return contains(p.V, x)
        case *Binop  : return contains(p.X, x) || contains(p.Y, x)
        case *AddRec : return contains(p.Start, x) || contains(p.Step, x)
        default      : return false
    }
}

func widerOf(x ir.VarType, y ir.VarType) ir.VarType {
    if y.Size() > x.Size() {
        return y
    } else {
        return x
    }
}
