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

package opts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptions_Limits(t *testing.T) {
	o := GetDefaultOptions()
	o.UnrollIterLimit = 10
	o.UnrollSizeLimit = 30
	o.InvertDupBudget = 32
	o.Stress = false
	require.Equal(t, 10, o.IterLimit())
	require.Equal(t, 30, o.SizeLimit())
	require.Equal(t, 32, o.DupBudget())
	o.FastCode = true
	require.Equal(t, 20, o.IterLimit())
	require.Equal(t, 60, o.SizeLimit())
	require.Equal(t, 128, o.DupBudget())
	o.FastCode = false
	o.Stress = true
	require.Equal(t, 100, o.IterLimit())
	require.Equal(t, 300, o.SizeLimit())
	require.Equal(t, 128, o.DupBudget())
}

func TestOptions_Load(t *testing.T) {
	o, err := Load([]byte("max_loops: 4\nstress: true\narch: arm64\n"))
	require.NoError(t, err)
	require.Equal(t, 4, o.MaxLoops)
	require.True(t, o.Stress)
	require.Equal(t, "arm64", o.Arch)
	require.True(t, o.CanRecord(3))
	require.False(t, o.CanRecord(4))
	require.NotNil(t, o.Log())

	/* invalid values are reported */
	_, err = Load([]byte("max_loops: 0\n"))
	require.ErrorContains(t, err, "invalid value for max_loops: 0")
	_, err = Load([]byte("max_loops: [\n"))
	require.Error(t, err)
}

func TestOptions_Check(t *testing.T) {
	o := GetDefaultOptions()
	_, _, ok := o.Check()
	require.True(t, ok)
	o.ScevCacheSize = -1
	key, val, ok := o.Check()
	require.False(t, ok)
	require.Equal(t, "scev_cache_size", key)
	require.Equal(t, -1, val)
}

func TestOptions_LoadFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "opts.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("unroll_iter_limit: 3\n"), 0644))
	o, err := LoadFile(fn)
	require.NoError(t, err)
	require.Equal(t, 3, o.UnrollIterLimit)
	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestOptions_ParseOrDefault(t *testing.T) {
	t.Setenv("LOOPOPT_TEST_KNOB", "")
	require.Equal(t, 7, parseOrDefault("LOOPOPT_TEST_KNOB", 7, 0))
	t.Setenv("LOOPOPT_TEST_KNOB", "0x20")
	require.Equal(t, 32, parseOrDefault("LOOPOPT_TEST_KNOB", 7, 0))
	t.Setenv("LOOPOPT_TEST_KNOB", "bad")
	require.PanicsWithValue(t, "loopopt: invalid value for LOOPOPT_TEST_KNOB", func() { parseOrDefault("LOOPOPT_TEST_KNOB", 7, 0) })
	t.Setenv("LOOPOPT_TEST_KNOB", "1")
	require.PanicsWithValue(t, "loopopt: value too small for LOOPOPT_TEST_KNOB", func() { parseOrDefault("LOOPOPT_TEST_KNOB", 7, 1) })
}
