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

package bitset

var _NibbleBits = [16]uint8 {
    0, 1, 1, 2, 1, 2, 2, 3,
    1, 2, 2, 3, 2, 3, 3, 4,
}

// CountBits counts the set bits of w one nibble at a time.
func CountBits(w uint64) int {
    n := 0
    for ; w != 0; w >>= 4 {
        n += int(_NibbleBits[w & 0xf])
    }
    return n
}

// CountBits32 is the branch-free population count for 32-bit words.
func CountBits32(w uint32) int {
    w = w - ((w >> 1) & 0x55555555)
    w = (w & 0x33333333) + ((w >> 2) & 0x33333333)
    w = (w + (w >> 4)) & 0x0f0f0f0f
    return int((w * 0x01010101) >> 24)
}

func countWord(env Traits, w uint64) int {
    if env.Size() <= 32 {
        return CountBits32(uint32(w))
    } else {
        return CountBits(w)
    }
}
