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

// HelperInfo classifies a runtime helper for the optimizer.
type HelperInfo struct {
    Pure         bool
    MutatesHeap  bool
    MayRunCctor  bool
    NoThrow      bool
    SharedStatic bool
}

// HelperTable maps helper names to their properties. Unknown helpers
// are treated like user calls.
type HelperTable map[string]HelperInfo

const (
    HelperGetSharedGCStaticBase         = "CORINFO_HELP_GETSHARED_GCSTATIC_BASE"
    HelperGetSharedNonGCStaticBase      = "CORINFO_HELP_GETSHARED_NONGCSTATIC_BASE"
    HelperGetSharedGCStaticBaseNoCtor   = "CORINFO_HELP_GETSHARED_GCSTATIC_BASE_NOCTOR"
    HelperClassInitSharedDynamicClass   = "CORINFO_HELP_CLASSINIT_SHARED_DYNAMICCLASS"
    HelperNewSFast                      = "CORINFO_HELP_NEWSFAST"
    HelperNewArr                        = "CORINFO_HELP_NEWARR_1_VC"
    HelperDiv                           = "CORINFO_HELP_DIV"
    HelperMod                           = "CORINFO_HELP_MOD"
    HelperLDiv                          = "CORINFO_HELP_LDIV"
    HelperIsInstanceOfClass             = "CORINFO_HELP_ISINSTANCEOFCLASS"
    HelperChkCastClass                  = "CORINFO_HELP_CHKCASTCLASS"
    HelperArrAddrSt                     = "CORINFO_HELP_ARRADDR_ST"
    HelperAssignRef                     = "CORINFO_HELP_ASSIGN_REF"
    HelperMonEnter                      = "CORINFO_HELP_MON_ENTER"
)

// DefaultHelpers returns a fresh copy of the builtin helper table.
func DefaultHelpers() HelperTable {
    return HelperTable {
        HelperGetSharedGCStaticBase       : { Pure: true, MayRunCctor: true, SharedStatic: true },
        HelperGetSharedNonGCStaticBase    : { Pure: true, MayRunCctor: true, SharedStatic: true },
        HelperGetSharedGCStaticBaseNoCtor : { Pure: true, NoThrow: true, SharedStatic: true },
        HelperClassInitSharedDynamicClass : { MayRunCctor: true, MutatesHeap: true, SharedStatic: true },
        HelperNewSFast                    : { },
        HelperNewArr                      : { },
        HelperDiv                         : { Pure: true },
        HelperMod                         : { Pure: true },
        HelperLDiv                        : { Pure: true },
        HelperIsInstanceOfClass           : { Pure: true, NoThrow: true },
        HelperChkCastClass                : { Pure: true },
        HelperArrAddrSt                   : { MutatesHeap: true },
        HelperAssignRef                   : { MutatesHeap: true, NoThrow: true },
        HelperMonEnter                    : { MutatesHeap: true },
    }
}

// Info returns the properties of a helper, and whether it is known.
func (self HelperTable) Info(name string) (HelperInfo, bool) {
    v, ok := self[name]
    return v, ok
}

// NewCall builds a helper call. Unknown helpers become user calls.
func (self HelperTable) NewCall(name string, t VarType, args ...*Node) *Node {
    info, ok := self[name]
    node := &Node {
        Op     : OpCall,
        Type   : t,
        Args   : args,
        Helper : name,
    }

    /* helper properties decide the flags */
    if !ok {
        node.Flags |= FlagCallUser | FlagExcept
    } else if !info.NoThrow {
        node.Flags |= FlagExcept
    }

    /* class initialization helpers */
    if ok && info.MayRunCctor {
        node.Flags |= FlagInitClass
    }
    return node.gather()
}

// NewStaticRead builds the read of a static field guarded by the class
// init helper, as a comma of the helper call and the field. The call may
// be hoisted with the read, and the read depends on the call.
func (self HelperTable) NewStaticRead(helper string, t VarType, class string, field string) *Node {
    call := self.NewCall(helper, TypeByref)
    call.Flags |= FlagCallHoistable
    cls := NewClsVar(t, class, field)
    cls.Flags |= FlagInitClass
    return NewComma(call, cls)
}

// IsHeapMutating reports calls that may write the heap.
func (self HelperTable) IsHeapMutating(call *Node) bool {
    if call.Has(FlagCallUser) {
        return true
    } else if info, ok := self[call.Helper]; !ok {
        return true
    } else {
        return info.MutatesHeap
    }
}
