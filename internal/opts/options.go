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

	"github.com/cloudwego/loopopt/internal/logger"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

type Options struct {
	MaxLoops        int            `yaml:"max_loops"`
	UnrollIterLimit int            `yaml:"unroll_iter_limit"`
	UnrollSizeLimit int            `yaml:"unroll_size_limit"`
	InvertDupBudget int            `yaml:"invert_dup_budget"`
	AlignWeight     float64        `yaml:"align_weight"`
	ScevMaxDepth    int            `yaml:"scev_max_depth"`
	ScevCacheSize   int            `yaml:"scev_cache_size"`
	Stress          bool           `yaml:"stress"`
	FastCode        bool           `yaml:"fast_code"`
	Arch            string         `yaml:"arch"`
	Trace           bool           `yaml:"trace"`
	Logger          *logger.Logger `yaml:"-"`
}

// IterLimit is the largest trip count a loop may have to be fully
// unrolled. Stress mode widens it tenfold.
func (self *Options) IterLimit() int {
	ret := self.UnrollIterLimit
	if self.FastCode {
		ret *= 2
	}
	if self.Stress {
		ret *= 10
	}
	return ret
}

// SizeLimit is the code growth full unrolling may cause.
func (self *Options) SizeLimit() int {
	ret := self.UnrollSizeLimit
	if self.FastCode {
		ret *= 2
	}
	if self.Stress {
		ret *= 10
	}
	return ret
}

// DupBudget is the base size of a loop test that inversion may clone.
func (self *Options) DupBudget() int {
	if self.FastCode || self.Stress {
		return self.InvertDupBudget * 4
	} else {
		return self.InvertDupBudget
	}
}

// CanRecord reports whether a loop table holding n loops may grow.
func (self *Options) CanRecord(n int) bool {
	return self.MaxLoops > n
}

// Log returns the installed logger, or one that discards everything.
func (self *Options) Log() *logger.Logger {
	if self.Logger == nil {
		self.Logger = logger.Nop()
	}
	return self.Logger
}

// Check finds the first value out of range, and returns its YAML key.
func (self *Options) Check() (string, interface{}, bool) {
	switch {
	case self.MaxLoops <= 0:
		return "max_loops", self.MaxLoops, false
	case self.UnrollIterLimit < 0:
		return "unroll_iter_limit", self.UnrollIterLimit, false
	case self.UnrollSizeLimit < 0:
		return "unroll_size_limit", self.UnrollSizeLimit, false
	case self.InvertDupBudget < 0:
		return "invert_dup_budget", self.InvertDupBudget, false
	case self.AlignWeight < 0:
		return "align_weight", self.AlignWeight, false
	case self.ScevMaxDepth <= 0:
		return "scev_max_depth", self.ScevMaxDepth, false
	case self.ScevCacheSize <= 0:
		return "scev_cache_size", self.ScevCacheSize, false
	default:
		return "", nil, true
	}
}

// Validate checks the values a configuration file may have set.
func (self *Options) Validate() error {
	if key, val, ok := self.Check(); !ok {
		return errors.Newf("invalid value for %s: %v", key, val)
	} else {
		return nil
	}
}

func GetDefaultOptions() Options {
	ret := Options{
		MaxLoops:        MaxLoops,
		UnrollIterLimit: UnrollIterLimit,
		UnrollSizeLimit: UnrollSizeLimit,
		InvertDupBudget: InvertDupBudget,
		AlignWeight:     float64(AlignWeight),
		ScevMaxDepth:    ScevMaxDepth,
		ScevCacheSize:   ScevCacheSize,
		Stress:          Stress,
		Trace:           Trace,
	}

	/* tracing installs a real logger */
	if Trace {
		ret.Logger = logger.New(true)
	} else {
		ret.Logger = logger.Nop()
	}
	return ret
}

// Load applies YAML overrides on top of the defaults.
func Load(data []byte) (Options, error) {
	ret := GetDefaultOptions()
	if err := yaml.Unmarshal(data, &ret); err != nil {
		return ret, errors.Wrap(err, "cannot decode options")
	}

	/* the file may turn tracing on */
	if ret.Trace && !Trace {
		ret.Logger = logger.New(true)
	}
	return ret, ret.Validate()
}

// LoadFile reads YAML overrides from path.
func LoadFile(path string) (Options, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return GetDefaultOptions(), errors.Wrapf(err, "cannot read options file %s", path)
	}
	ret, err := Load(buf)
	if err != nil {
		return ret, errors.Wrapf(err, "invalid options file %s", path)
	}
	return ret, nil
}
