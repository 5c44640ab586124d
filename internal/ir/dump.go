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
    `io`
    `strings`

    `github.com/davecgh/go-spew/spew`
)

func (self *Block) predList() string {
    p := make([]string, 0, len(self.Preds))
    for _, e := range self.Preds {
        if e.DupCount > 1 {
            p = append(p, fmt.Sprintf("%s*%d", e.From, e.DupCount))
        } else {
            p = append(p, e.From.String())
        }
    }
    return strings.Join(p, ",")
}

func (self *Block) jumpDesc() string {
    switch self.Kind {
        case JumpAlways, JumpCond, JumpCallFinally, JumpEHCatchRet: {
            return fmt.Sprintf("%s -> %s", self.Kind, self.Target)
        }
        case JumpSwitch: {
            t := make([]string, len(self.Switch))
            for i, v := range self.Switch {
                t[i] = v.String()
            }
            return fmt.Sprintf("switch -> [%s]", strings.Join(t, ","))
        }
        default: {
            return self.Kind.String()
        }
    }
}

// Dump writes a human-readable listing of the method.
func (self *Flow) Dump(w io.Writer) {
    for bb := self.First; bb != nil; bb = bb.Next {
        fmt.Fprintf(w, "%s [id=%d w=%g] preds={%s} %s", bb, bb.ID, bb.Weight, bb.predList(), bb.jumpDesc())

        /* region and loop membership */
        if bb.TryIndex != 0 || bb.HndIndex != 0 {
            fmt.Fprintf(w, " try=%d hnd=%d", bb.TryIndex, bb.HndIndex)
        }
        if bb.LoopNum != NotInLoop {
            fmt.Fprintf(w, " L%02d", bb.LoopNum)
        }

        /* the statements */
        fmt.Fprintln(w)
        for _, s := range bb.Stmts {
            fmt.Fprintf(w, "    %s\n", s)
        }
    }
}

// String returns the listing produced by Dump.
func (self *Flow) String() string {
    var sb strings.Builder
    self.Dump(&sb)
    return sb.String()
}

var _DumpConfig = spew.ConfigState {
    Indent                  : "    ",
    MaxDepth                : 4,
    DisablePointerAddresses : true,
    DisableCapacities       : true,
    DisableMethods          : true,
    SortKeys                : true,
}

// DumpVerbose dumps one block with all of its fields.
func DumpVerbose(w io.Writer, bb *Block) {
    _DumpConfig.Fdump(w, bb)
}
