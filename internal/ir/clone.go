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

// Clone copies a tree. It returns nil for shapes that cannot be cloned:
// phis and nodes marked FlagNoClone.
func Clone(node *Node) *Node {
    return cloneTree(node, nil, nil)
}

// CloneSubst copies a tree, replacing every read of lcl with the
// constant val.
func CloneSubst(node *Node, lcl int, val int64) *Node {
    return cloneTree(node, func(n *Node) *Node {
        if n.Op == OpLclVar && n.Lcl == lcl {
            return NewConst(n.Type, val)
        } else {
            return nil
        }
    }, nil)
}

// CloneVisit copies a tree and reports every original and copy pair.
func CloneVisit(node *Node, fn func(orig *Node, copy *Node)) *Node {
    return cloneTree(node, nil, fn)
}

func cloneTree(node *Node, subst func(*Node) *Node, visit func(*Node, *Node)) *Node {
    if node == nil {
        return nil
    }

    /* not clonable */
    if node.Op == OpPhi || node.Op == OpPhiArg || node.Has(FlagNoClone) {
        return nil
    }

    /* substitution takes over */
    if subst != nil {
        if r := subst(node); r != nil {
            return r
        }
    }

    /* copy the node */
    ret := new(Node)
    *ret = *node

    /* copy the fixed operands */
    if node.Op1 != nil {
        if ret.Op1 = cloneTree(node.Op1, subst, visit); ret.Op1 == nil {
            return nil
        }
    }
    if node.Op2 != nil {
        if ret.Op2 = cloneTree(node.Op2, subst, visit); ret.Op2 == nil {
            return nil
        }
    }

    /* copy the argument list */
    if node.Args != nil {
        ret.Args = make([]*Node, len(node.Args))
        for i, a := range node.Args {
            if ret.Args[i] = cloneTree(a, subst, visit); ret.Args[i] == nil {
                return nil
            }
        }
    }

    /* report the pair */
    if visit != nil {
        visit(node, ret)
    }
    return ret
}
