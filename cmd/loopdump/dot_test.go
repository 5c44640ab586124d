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

package main

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudwego/loopopt"
)

func TestDot_Nested(t *testing.T) {
	src, err := os.ReadFile("../../testdata/nested.yaml")
	require.NoError(t, err)
	m, err := loopopt.Build(src)
	require.NoError(t, err)
	_, err = loopopt.Run(m)
	require.NoError(t, err)

	/* both loops get a cluster */
	out := dot(m)
	require.True(t, strings.HasPrefix(out, "digraph CFG {"))
	require.True(t, strings.HasSuffix(out, "}"))
	require.Contains(t, out, "subgraph cluster_L00 {")
	require.Contains(t, out, "subgraph cluster_L01 {")
	require.Contains(t, out, `color = "blue"`)
	require.Equal(t, 1, strings.Count(out, "START ->"))
}

func TestLoopRows(t *testing.T) {
	rep := &loopopt.Report{
		Loops: []loopopt.Loop{
			{Num: 0, Parent: -1, Head: "BB02", Top: "BB02", Entry: "BB02", Bottom: "BB04", Exit: "BB04", ExitCount: 1, Flags: "do-while"},
			{Num: 1, Parent: 0, Top: "BB03", ExitCount: 2},
		},
	}
	rows := loopRows(rep)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"L00", "-", "BB02", "BB02", "BB02", "BB04", "BB04", "do-while", ""}, rows[0])
	require.Equal(t, "L00", rows[1][1])
	require.Equal(t, "2", rows[1][6])
}
