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

// Walk visits a tree in evaluation order. pre runs before the operands
// and may return false to skip them, post runs after them. Either
// callback may be nil.
func Walk(node *Node, pre func(*Node) bool, post func(*Node)) {
    if node == nil {
        return
    }

    /* pre-order callback */
    if pre != nil && !pre(node) {
        return
    }

    /* visit the operands */
    for _, c := range node.Children() {
        Walk(c, pre, post)
    }

    /* post-order callback */
    if post != nil {
        post(node)
    }
}

// Any reports whether some node of the tree satisfies fn.
func Any(node *Node, fn func(*Node) bool) bool {
    found := false
    Walk(node, func(n *Node) bool {
        if !found && fn(n) {
            found = true
        }
        return !found
    }, nil)
    return found
}

// UsesLcl reports whether the tree reads lcl.
func UsesLcl(node *Node, lcl int) bool {
    return Any(node, func(n *Node) bool {
        return n.Op == OpLclVar && n.Lcl == lcl
    })
}

func ownEffects(node *Node) bool {
    switch node.Op {
        case OpStoreLcl, OpStoreInd, OpStoreClsVar, OpCall, OpMemoryBarrier : return true
        case OpInd, OpArrLen, OpIndexAddr                                    : return node.Has(FlagExcept)
        default                                                              : return node.Op.IsAtomic()
    }
}

// ExtractSideEffects returns, in evaluation order, the subtrees whose
// evaluation has effects beyond producing a value.
func ExtractSideEffects(node *Node) []*Node {
    var ret []*Node
    Walk(node, func(n *Node) bool {
        if n.Flags & FlagsSideEffect == 0 {
            return false
        } else if ownEffects(n) {
            ret = append(ret, n)
            return false
        } else {
            return true
        }
    }, nil)
    return ret
}

// IsCSECandidate reports whether the value of a tree can be computed
// once into a temporary and reused.
func IsCSECandidate(node *Node) bool {
    if node.Has(FlagDontCSE) || node.Type == TypeVoid {
        return false
    }

    /* struct values need a class handle to be materialized */
    if node.Type == TypeStruct && node.Class == "" {
        return false
    }

    /* too cheap to be worth it */
    if node.CostEx < MinCSECost {
        return false
    }

    /* check the operator */
    switch node.Op {
        case OpConst, OpLclVar, OpPhi, OpPhiArg, OpJTrue, OpReturn, OpNop, OpNoOp : return false
        case OpStoreLcl, OpStoreInd, OpStoreClsVar, OpMemoryBarrier              : return false
        default                                                                  : return !node.Op.IsAtomic()
    }
}
