/*
 * Copyright 2022 CloudWeGo Authors
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

package target

import (
    `fmt`
    `runtime`

    `github.com/klauspost/cpuid/v2`
)

// Target describes the register file the loop optimizer budgets for.
type Target struct {
    Arch             string
    PtrSize          int
    CalleeSaved      int
    CalleeTrash      int
    CalleeSavedFloat int
    CalleeTrashFloat int
    VectorBytes      int
}

var _Targets = map[string]Target {
    "amd64": {
        Arch             : "amd64",
        PtrSize          : 8,
        CalleeSaved      : 6,
        CalleeTrash      : 9,
        CalleeSavedFloat : 0,
        CalleeTrashFloat : 16,
        VectorBytes      : 16,
    },
    "386": {
        Arch             : "386",
        PtrSize          : 4,
        CalleeSaved      : 4,
        CalleeTrash      : 3,
        CalleeSavedFloat : 0,
        CalleeTrashFloat : 8,
        VectorBytes      : 16,
    },
    "arm64": {
        Arch             : "arm64",
        PtrSize          : 8,
        CalleeSaved      : 11,
        CalleeTrash      : 17,
        CalleeSavedFloat : 8,
        CalleeTrashFloat : 24,
        VectorBytes      : 16,
    },
}

// Lookup returns the description of a named architecture.
func Lookup(arch string) (Target, error) {
    if t, ok := _Targets[arch]; !ok {
        return Target{}, fmt.Errorf("target: unsupported architecture: %s", arch)
    } else {
        return t, nil
    }
}

// Host returns the description of the machine we are running on, with
// the vector width the CPU supports.
func Host() Target {
    t, ok := _Targets[runtime.GOARCH]
    if !ok {
        t = _Targets["amd64"]
    }

    /* pick the widest vector the CPU has */
    switch {
        case cpuid.CPU.Supports(cpuid.AVX512F) : t.VectorBytes = 64
        case cpuid.CPU.Supports(cpuid.AVX2)    : t.VectorBytes = 32
        case cpuid.CPU.Supports(cpuid.SSE2)    : t.VectorBytes = 16
        case cpuid.CPU.Supports(cpuid.ASIMD)   : t.VectorBytes = 16
    }
    return t
}

// Is64Bit reports whether longs fit in one register.
func (self Target) Is64Bit() bool {
    return self.PtrSize == 8
}

// LongRegs is the number of registers a 64-bit integer occupies.
func (self Target) LongRegs() int {
    if self.Is64Bit() {
        return 1
    } else {
        return 2
    }
}

// VectorCount is the number of elements of the given size in one vector.
func (self Target) VectorCount(elemSize int) int {
    if elemSize <= 0 {
        return 0
    } else {
        return self.VectorBytes / elemSize
    }
}

func (self Target) String() string {
    return fmt.Sprintf("%s/v%d", self.Arch, self.VectorBytes * 8)
}
