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

package loopopt

import (
	"fmt"

	"github.com/cloudwego/loopopt/internal/logger"
	"github.com/cloudwego/loopopt/internal/opts"
	"github.com/cloudwego/loopopt/internal/target"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithMaxLoops sets the capacity of the loop table. Loops found after the
// table is full are not optimized.
//
// The default value of this option is "16".
func WithMaxLoops(n int) Option {
	if n <= 0 {
		panic(fmt.Sprintf("loopopt: invalid loop table size: %d", n))
	} else {
		return func(o *opts.Options) { o.MaxLoops = n }
	}
}

// WithUnrollIterLimit sets the largest trip count of a fully unrolled
// loop. Set this option to "0" disables unrolling.
//
// The default value of this option is "10".
func WithUnrollIterLimit(n int) Option {
	if n < 0 {
		panic(fmt.Sprintf("loopopt: invalid unroll iteration limit: %d", n))
	} else {
		return func(o *opts.Options) { o.UnrollIterLimit = n }
	}
}

// WithUnrollSizeLimit sets how much code full unrolling may add.
//
// The default value of this option is "30".
func WithUnrollSizeLimit(n int) Option {
	if n < 0 {
		panic(fmt.Sprintf("loopopt: invalid unroll size limit: %d", n))
	} else {
		return func(o *opts.Options) { o.UnrollSizeLimit = n }
	}
}

// WithInvertDupBudget sets the size of a loop test that loop inversion
// may duplicate. Set this option to "0" disables inversion of all but
// the cheapest tests.
//
// The default value of this option is "32".
func WithInvertDupBudget(n int) Option {
	if n < 0 {
		panic(fmt.Sprintf("loopopt: invalid inversion budget: %d", n))
	} else {
		return func(o *opts.Options) { o.InvertDupBudget = n }
	}
}

// WithScevMaxDepth bounds the recursion of scalar evolution analysis.
//
// The default value of this option is "64".
func WithScevMaxDepth(n int) Option {
	if n <= 0 {
		panic(fmt.Sprintf("loopopt: invalid scev depth: %d", n))
	} else {
		return func(o *opts.Options) { o.ScevMaxDepth = n }
	}
}

// WithStress turns on stress mode, which widens every threshold so that
// the transformations fire as often as possible.
func WithStress(v bool) Option {
	return func(o *opts.Options) { o.Stress = v }
}

// WithFastCode optimizes for speed rather than size, which doubles the
// unrolling limits and the inversion budget.
func WithFastCode(v bool) Option {
	return func(o *opts.Options) { o.FastCode = v }
}

// WithArch selects the target architecture. The default is the host.
func WithArch(arch string) Option {
	if _, err := target.Lookup(arch); err != nil {
		panic(fmt.Sprintf("loopopt: %v", err))
	} else {
		return func(o *opts.Options) { o.Arch = arch }
	}
}

// WithLogger installs the logger the passes trace their decisions to.
func WithLogger(l *logger.Logger) Option {
	if l == nil {
		panic("loopopt: nil logger")
	} else {
		return func(o *opts.Options) { o.Logger = l }
	}
}

// WithOptions replaces all the options at once, such as the ones loaded
// with opts.LoadFile.
func WithOptions(v opts.Options) Option {
	return func(o *opts.Options) { *o = v }
}

// SetMaxLoops sets the default capacity of the loop table from now on.
//
// This value can also be configured with the `LOOPOPT_MAX_LOOPS`
// environment variable.
//
// Returns the old opts.MaxLoops value.
func SetMaxLoops(n int) int {
	n, opts.MaxLoops = opts.MaxLoops, n
	return n
}

// SetStress sets the default stress mode from now on.
//
// This value can also be configured with the `LOOPOPT_STRESS` environment
// variable.
//
// Returns the old opts.Stress value.
func SetStress(v bool) bool {
	v, opts.Stress = opts.Stress, v
	return v
}
