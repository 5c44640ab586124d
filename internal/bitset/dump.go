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

import (
    `fmt`
    `strings`
)

// Members collects the elements of s in ascending order.
func Members[S any](ops Ops[S], env Traits, s S) []int {
    var ret []int
    ops.Iter(env, s).ForEach(func(e int) { ret = append(ret, e) })
    return ret
}

// Dump formats s as "{a, b, c} hex" for tracing.
func Dump[S any](ops Ops[S], env Traits, s S) string {
    if e, ok := any(s).(Epoched); ok && e.epoch == _UninitEpoch {
        return "<uninit>"
    } else if ops.MayBeUninit(s) && env.ArrayWordCount() > 1 {
        return "<uninit>"
    }

    /* element list followed by the raw words */
    el := Members(ops, env, s)
    sv := make([]string, len(el))
    for i, e := range el {
        sv[i] = fmt.Sprint(e)
    }
    return "{" + strings.Join(sv, ", ") + "} " + ops.ToString(env, s)
}
