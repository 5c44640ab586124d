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

package fixture

import (
    `fmt`
    `strconv`
    `strings`

    `github.com/cloudwego/loopopt/internal/ir`
    `github.com/cockroachdb/errors`
    `gopkg.in/yaml.v3`
)

var _NodeFlags = map[string]ir.NodeFlags{
    "+nonfaulting": ir.FlagNonFaulting,
    "+hoistable":   ir.FlagCallHoistable,
    "+noclone":     ir.FlagNoClone,
    "+dontcse":     ir.FlagDontCSE,
    "+initclass":   ir.FlagInitClass,
}

// _Tree is a tree as written in a fixture: a YAML sequence holding the
// operator, an optional type, scalar payload and operand sequences.
//
//    [store_lcl, int, i#4, [add, int, [lcl, int, i#3], [const, int, 1]]]
type _Tree struct {
    line     int
    op       ir.Op
    unsigned bool
    typed    bool
    typ      ir.VarType
    flags    ir.NodeFlags
    payload  []string
    kids     []*ir.Node
}

func (self *_Tree) errorf(format string, args ...interface{}) error {
    return errors.Newf("line %d: %s: %s", self.line, self.op, fmt.Sprintf(format, args...))
}

func (self *_Tree) arity(n int) error {
    if len(self.kids) != n {
        return self.errorf("expected %d operands, got %d", n, len(self.kids))
    } else {
        return nil
    }
}

func (self *_Tree) scalar(i int) (string, error) {
    if i >= len(self.payload) {
        return "", self.errorf("missing operand #%d", i)
    } else {
        return self.payload[i], nil
    }
}

// typeOr returns the written type, or def when there is none.
func (self *_Tree) typeOr(def ir.VarType) ir.VarType {
    if self.typed {
        return self.typ
    } else {
        return def
    }
}

func (self *_Builder) tree(bb *ir.Block, y *yaml.Node) (*ir.Node, error) {
    ret, err := self.node(bb, y)
    if err != nil {
        return nil, err
    }

    /* flags may have changed what the operators do */
    ir.RecomputeFlags(ret)
    return ret, nil
}

func (self *_Builder) parse(bb *ir.Block, y *yaml.Node) (*_Tree, error) {
    if y.Kind != yaml.SequenceNode || len(y.Content) == 0 || y.Content[0].Kind != yaml.ScalarNode {
        return nil, errors.Newf("line %d: a tree is a sequence starting with an operator", y.Line)
    }

    /* the operator, possibly unsigned */
    name, uns := strings.CutSuffix(y.Content[0].Value, ".un")
    op, ok := ir.ParseOp(name)
    if !ok {
        return nil, errors.Newf("line %d: unknown operator %q", y.Line, name)
    }

    /* the rest of the sequence */
    ret := &_Tree{line: y.Line, op: op, unsigned: uns}
    for i, v := range y.Content[1:] {
        switch v.Kind {
            case yaml.SequenceNode:
                kid, err := self.node(bb, v)
                if err != nil {
                    return nil, err
                }
                ret.kids = append(ret.kids, kid)
            case yaml.ScalarNode:
                if t, ok := ir.ParseType(v.Value); ok && i == 0 {
                    ret.typ, ret.typed = t, true
                } else if f, ok := _NodeFlags[v.Value]; ok {
                    ret.flags |= f
                } else if strings.HasPrefix(v.Value, "+") {
                    return nil, ret.errorf("unknown flag %q", v.Value)
                } else {
                    ret.payload = append(ret.payload, v.Value)
                }
            default:
                return nil, ret.errorf("unexpected YAML node")
        }
    }
    return ret, nil
}

func (self *_Builder) node(bb *ir.Block, y *yaml.Node) (*ir.Node, error) {
    t, err := self.parse(bb, y)
    if err != nil {
        return nil, err
    }

    /* build the node */
    ret, err := self.build(bb, t)
    if err != nil {
        return nil, err
    }

    /* apply the flags */
    ret.Flags |= t.flags
    return ret, nil
}

func (self *_Builder) build(bb *ir.Block, t *_Tree) (*ir.Node, error) {
    switch t.op {
        case ir.OpConst:
            return self.constant(t)
        case ir.OpLclVar, ir.OpStoreLcl, ir.OpPhiArg:
            return self.local(bb, t)
        case ir.OpClsVar, ir.OpStoreClsVar:
            return self.static(t)
        case ir.OpCall:
            return self.call(t)
        case ir.OpPhi:
            return ir.NewPhi(t.typeOr(ir.TypeInt), t.kids...), nil
        case ir.OpNop:
            return ir.NewNop(), nil
        case ir.OpMemoryBarrier:
            return ir.NewBarrier(), nil
        case ir.OpReturn:
            if len(t.kids) == 0 {
                return ir.NewReturn(nil), nil
            }
    }

    /* the atomics take two or three operands */
    if t.op.IsAtomic() {
        if len(t.kids) < 2 || len(t.kids) > 3 {
            return nil, t.errorf("expected 2 or 3 operands, got %d", len(t.kids))
        }
        return ir.NewAtomic(t.op, t.typeOr(ir.TypeInt), t.kids[0], t.kids[1], t.kids[2:]...), nil
    }

    /* unary operators */
    switch t.op {
        case ir.OpNeg, ir.OpCast, ir.OpJTrue, ir.OpReturn, ir.OpInd, ir.OpFieldAddr, ir.OpArrLen:
            if err := t.arity(1); err != nil {
                return nil, err
            }
            return self.unary(t, t.kids[0])
    }

    /* everything else is binary */
    if err := t.arity(2); err != nil {
        return nil, err
    }

    /* binary operators */
    x, y := t.kids[0], t.kids[1]
    switch {
        case t.op.IsCompare():
            return ir.NewCompare(t.op, x, y, t.unsigned), nil
        case t.op.IsArith():
            return ir.NewBinary(t.op, t.typeOr(x.Type), x, y), nil
        case t.op == ir.OpComma:
            return ir.NewComma(x, y), nil
        case t.op == ir.OpStoreInd:
            return ir.NewStoreInd(t.typeOr(y.Type), x, y), nil
        case t.op == ir.OpIndexAddr:
            elem, err := t.scalar(0)
            if err != nil {
                return nil, err
            }
            return ir.NewIndexAddr(x, y, elem), nil
        default:
            return nil, t.errorf("operator is not supported in fixtures")
    }
}

func (self *_Builder) unary(t *_Tree, x *ir.Node) (*ir.Node, error) {
    switch t.op {
        case ir.OpCast:
            if !t.typed {
                return nil, t.errorf("casts need a type")
            }
            return ir.NewCast(t.typ, x, t.unsigned), nil
        case ir.OpJTrue:
            if !x.Op.IsCompare() {
                return nil, t.errorf("expected a comparison, got %s", x.Op)
            }
            return ir.NewJTrue(x), nil
        case ir.OpReturn:
            return ir.NewReturn(x), nil
        case ir.OpInd:
            return ir.NewInd(t.typeOr(ir.TypeInt), x), nil
        case ir.OpArrLen:
            return ir.NewArrLen(x), nil
        case ir.OpFieldAddr:
            field, err := t.scalar(0)
            if err != nil {
                return nil, err
            }
            return ir.NewFieldAddr(x, field), nil
        default:
            return ir.NewUnary(t.op, t.typeOr(x.Type), x), nil
    }
}

func (self *_Builder) constant(t *_Tree) (*ir.Node, error) {
    s, err := t.scalar(0)
    if err != nil {
        return nil, err
    }

    /* decimal or prefixed integers */
    v, err := strconv.ParseInt(s, 0, 64)
    if err != nil {
        return nil, t.errorf("invalid constant %q", s)
    }
    return ir.NewConst(t.typeOr(ir.TypeInt), v), nil
}

// ref parses "name" or "name#ssa".
func (self *_Builder) ref(t *_Tree, s string) (int, int, error) {
    name, num, hasSsa := strings.Cut(s, "#")
    lcl, ok := self.lcls[name]
    if !ok {
        return 0, 0, t.errorf("unknown local %q", name)
    }

    /* no SSA number */
    if !hasSsa {
        return lcl, ir.SsaNone, nil
    }

    /* SSA numbers start with the implicit definition */
    ssa, err := strconv.Atoi(num)
    if err != nil || ssa < ir.SsaFirst {
        return 0, 0, t.errorf("invalid SSA number in %q", s)
    }
    return lcl, ssa, nil
}

func (self *_Builder) local(bb *ir.Block, t *_Tree) (*ir.Node, error) {
    s, err := t.scalar(0)
    if err != nil {
        return nil, err
    }

    /* find the local */
    lcl, ssa, err := self.ref(t, s)
    if err != nil {
        return nil, err
    }

    /* the type defaults to the declared one */
    typ := t.typeOr(self.fn.Lcls[lcl].Type)
    switch t.op {
        case ir.OpLclVar:
            ret := ir.NewLclVar(typ, lcl, ssa)
            if ssa != ir.SsaNone {
                self.uses = append(self.uses, ret)
            }
            return ret, nil
        case ir.OpPhiArg:
            return self.phiArg(t, typ, lcl, ssa)
    }

    /* stores */
    if err = t.arity(1); err != nil {
        return nil, err
    }

    /* the implicit definition cannot be written */
    ret := ir.NewStoreLcl(typ, lcl, ir.SsaNone, t.kids[0])
    if ssa == ir.SsaFirst {
        return nil, t.errorf("%s#%d is the incoming value", self.fn.Lcls[lcl].Name, ssa)
    } else if ssa != ir.SsaNone {
        self.stores[lcl] = append(self.stores[lcl], _SsaStore{ssa: ssa, bb: bb, node: ret})
    }
    return ret, nil
}

func (self *_Builder) phiArg(t *_Tree, typ ir.VarType, lcl int, ssa int) (*ir.Node, error) {
    pred, err := t.scalar(1)
    if err != nil {
        return nil, err
    }

    /* the predecessor the value flows from */
    bb := self.labels[pred]
    if bb == nil {
        return nil, t.errorf("unknown block %q", pred)
    } else if ssa == ir.SsaNone {
        return nil, t.errorf("phi arguments need an SSA number")
    }

    /* check the use later */
    ret := ir.NewPhiArg(typ, lcl, ssa, bb)
    self.uses = append(self.uses, ret)
    return ret, nil
}

func (self *_Builder) static(t *_Tree) (*ir.Node, error) {
    s, err := t.scalar(0)
    if err != nil {
        return nil, err
    }

    /* Class::Field */
    class, field, ok := strings.Cut(s, "::")
    if !ok {
        return nil, t.errorf("expected Class::Field, got %q", s)
    }

    /* load or store */
    if t.op == ir.OpClsVar {
        return ir.NewClsVar(t.typeOr(ir.TypeInt), class, field), nil
    } else if err = t.arity(1); err != nil {
        return nil, err
    } else {
        return ir.NewStoreClsVar(t.typeOr(t.kids[0].Type), class, field, t.kids[0]), nil
    }
}

func (self *_Builder) call(t *_Tree) (*ir.Node, error) {
    name, err := t.scalar(0)
    if err != nil {
        return nil, err
    }

    /* user calls or helpers */
    if typ := t.typeOr(ir.TypeVoid); name == "user" {
        return ir.NewUserCall(typ, t.kids...), nil
    } else {
        return self.fn.Helpers.NewCall(name, typ, t.kids...), nil
    }
}
