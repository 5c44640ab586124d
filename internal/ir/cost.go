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
    IndCostEx  = 3
    IndCostSz  = 2
    MinCSECost = 2
    CallCostEx = 5
    CallCostSz = 5
)

// SetCosts computes the execution and size cost estimates of the whole
// tree bottom-up and returns the size cost of the root.
func SetCosts(node *Node) int {
    Walk(node, nil, setCost)
    return node.CostSz
}

func setCost(node *Node) {
    ex, sz := 0, 0
    for _, c := range node.Children() {
        ex += c.CostEx
        sz += c.CostSz
    }

    /* the cost of the operator itself */
    switch node.Op {
        case OpConst: {
            ex, sz = 1, constSize(node.Val)
        }
        case OpLclVar, OpPhiArg: {
            ex, sz = 1, 1
        }
        case OpInd, OpArrLen: {
            ex, sz = ex + IndCostEx, sz + IndCostSz
        }
        case OpClsVar: {
            ex, sz = IndCostEx, IndCostSz + 4
        }
        case OpMul: {
            ex, sz = ex + 3, sz + 2
        }
        case OpFieldAddr: {
            ex, sz = ex + 1, sz + 1
        }
        case OpIndexAddr: {
            ex, sz = ex + 2 + IndCostEx, sz + 4 + IndCostSz
        }
        case OpStoreInd, OpStoreClsVar: {
            ex, sz = ex + IndCostEx, sz + IndCostSz
        }
        case OpCall: {
            ex, sz = ex + CallCostEx, sz + CallCostSz
        }
        case OpComma, OpPhi, OpNop, OpNoOp: {
            break
        }
        case OpMemoryBarrier, OpXAdd, OpXChg, OpCmpXchg: {
            ex, sz = ex + 10, sz + 4
        }
        default: {
            ex, sz = ex + 1, sz + 1
        }
    }

    node.CostEx = ex
    node.CostSz = sz
}

func constSize(v int64) int {
    switch {
        case v >= -128 && v <= 127     : return 1
        case v >= -1 << 31 && v < 1 << 31 : return 4
        default                          : return 8
    }
}
