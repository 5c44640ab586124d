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
    `github.com/cloudwego/loopopt/internal/ir`
    `golang.org/x/exp/constraints`
)

// Simplify rewrites v into the canonical form: recurrences on the left,
// constants on the right, constant operations folded, and operations
// on recurrences distributed into their start and step.
func Simplify(v Scev) Scev {
    switch p := v.(type) {
        case *Extend : return simplifyExtend(p)
        case *Binop  : return simplifyBinop(p.Op, p.T, Simplify(p.X), Simplify(p.Y))
        case *AddRec : return &AddRec{T: p.T, Loop: p.Loop, Start: Simplify(p.Start), Step: Simplify(p.Step)}
        default      : return v
    }
}

func simplifyExtend(p *Extend) Scev {
    v := Simplify(p.V)

    /* extending to the same width does nothing */
    if v.Type().Size() == p.T.Size() {
        return v
    }

    /* fold constants */
    if c, ok := v.(*Constant); ok {
        if p.Op == OperZeroExtend {
            return NewConstant(p.T, int64(zeroExtend(uint64(c.Value), c.T.Size())))
        } else {
            return NewConstant(p.T, c.Value)
        }
    }

    /* keep the extension */
    return &Extend {
        Op : p.Op,
        T  : p.T,
        V  : v,
    }
}

func simplifyBinop(op Oper, t ir.VarType, x Scev, y Scev) Scev {
    commutative := op == OperAdd || op == OperMul

    /* recurrences go left */
    if _, ok := y.(*AddRec); ok && commutative {
        if _, ok = x.(*AddRec); !ok {
            x, y = y, x
        }
    }

    /* constants go right */
    if _, ok := x.(*Constant); ok && commutative {
        if _, ok = y.(*Constant); !ok {
            x, y = y, x
        }
    }

    /* fold constant operations */
    cx, okx := IntConst(x)
    cy, oky := IntConst(y)
    if okx && oky {
        return NewConstant(t, foldConst(op, t, cx, cy))
    }

    /* distribute over recurrences */
    if rx, ok := x.(*AddRec); ok {
        if ret := distribute(op, t, rx, y); ret != nil {
            return ret
        }
    }

    /* identities with constants on the right */
    if oky {
        switch {
            case op == OperAdd && cy == 0 : return x
            case op == OperMul && cy == 1 : return x
            case op == OperMul && cy == 0 : return NewConstant(t, 0)
            case op == OperLsh && cy == 0 : return x
        }
    }

    /* (x + c1) + c2 becomes x + (c1 + c2) */
    if bx, ok := x.(*Binop); ok && oky && op == OperAdd && bx.Op == OperAdd {
        if c1, ok := IntConst(bx.Y); ok {
            return simplifyBinop(OperAdd, t, bx.X, NewConstant(t, foldConst(OperAdd, t, c1, cy)))
        }
    }

    /* nothing to simplify */
    return &Binop {
        Op : op,
        T  : t,
        X  : x,
        Y  : y,
    }
}

// distribute applies op to both halves of a recurrence:
//
//     <L, s, t> + x  => <L, s + x, t>
//     <L, s, t> * x  => <L, s * x, t * x>
//     <L, s, t> << x => <L, s << x, t << x>
//
// Two recurrences of the same loop add up element wise.
func distribute(op Oper, t ir.VarType, rx *AddRec, y Scev) Scev {
    if ry, ok := y.(*AddRec); ok {
        if op != OperAdd || ry.Loop != rx.Loop {
            return nil
        }

        /* add start and step */
        return &AddRec {
            T     : t,
            Loop  : rx.Loop,
            Start : simplifyBinop(OperAdd, t, rx.Start, ry.Start),
            Step  : simplifyBinop(OperAdd, t, rx.Step, ry.Step),
        }
    }

    /* the other operand must not change */
    if !IsInvariant(y) {
        return nil
    }

    /* scale or shift the step as well */
    step := rx.Step
    if op != OperAdd {
        step = simplifyBinop(op, t, step, y)
    }

    /* construct the new recurrence */
    return &AddRec {
        T     : t,
        Loop  : rx.Loop,
        Start : simplifyBinop(op, t, rx.Start, y),
        Step  : step,
    }
}

func foldConst(op Oper, t ir.VarType, x int64, y int64) int64 {
    switch op {
        case OperAdd : return t.Wrap(x + y)
        case OperMul : return t.Wrap(x * y)
        case OperLsh : return t.Wrap(x << uint(y & int64(t.Size() * 8 - 1)))
        default      : panic(ir.Assertf("scev: cannot fold %s", op))
    }
}

func zeroExtend[T constraints.Unsigned](v T, size int) T {
    if size >= 8 {
        return v
    } else {
        return v & (T(1) << (size * 8) - 1)
    }
}

// EvaluateAtIteration returns the value a recurrence with constant
// start and step has on iteration n, counting from zero.
func EvaluateAtIteration(v Scev, n int64) (int64, bool) {
    rec, ok := Simplify(v).(*AddRec)
    if !ok {
        return 0, false
    }

    /* both halves must be known */
    start, ok1 := IntConst(rec.Start)
    step, ok2 := IntConst(rec.Step)
    if !ok1 || !ok2 {
        return 0, false
    }

    /* evaluate with the width of the recurrence */
    return rec.T.Wrap(start + step * n), true
}
