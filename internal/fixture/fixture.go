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

package fixture

import (
    `bytes`
    `os`

    `github.com/cockroachdb/errors`
    `gopkg.in/yaml.v3`
)

// Fixture is the YAML description of one method.
type Fixture struct {
    Name    string   `yaml:"name"`
    Profile bool     `yaml:"profile"`
    Locals  []Local  `yaml:"locals"`
    Regions []Region `yaml:"regions"`
    Blocks  []Block  `yaml:"blocks"`
    Queries []Query  `yaml:"scev"`
}

type Local struct {
    Name    string `yaml:"name"`
    Type    string `yaml:"type"`
    Exposed bool   `yaml:"exposed"`
}

// Region is a protected region and its handler, both given as the
// labels of their first and last blocks.
type Region struct {
    Kind    string    `yaml:"kind"`
    Try     [2]string `yaml:"try"`
    Handler [2]string `yaml:"handler"`
}

type Block struct {
    Label  string             `yaml:"label"`
    Kind   string             `yaml:"kind"`
    Target string             `yaml:"target"`
    Switch []string           `yaml:"switch"`
    Weight *float64           `yaml:"weight"`
    Flags  []string           `yaml:"flags"`
    Edges  map[string]float64 `yaml:"edges"`
    Stmts  []yaml.Node        `yaml:"stmts"`
}

// Query asks for the evolution of one statement of a block.
type Query struct {
    Block string `yaml:"block"`
    Stmt  int    `yaml:"stmt"`
}

// Parse decodes a fixture document.
func Parse(data []byte) (*Fixture, error) {
    ret := new(Fixture)
    dec := yaml.NewDecoder(bytes.NewReader(data))
    dec.KnownFields(true)

    /* decode the document */
    if err := dec.Decode(ret); err != nil {
        return nil, errors.Wrap(err, "cannot decode fixture")
    }

    /* a method needs at least one block */
    if len(ret.Blocks) == 0 {
        return nil, errors.New("fixture has no blocks")
    }
    return ret, nil
}

// Load reads and decodes a fixture file.
func Load(path string) (*Fixture, error) {
    buf, err := os.ReadFile(path)
    if err != nil {
        return nil, errors.Wrapf(err, "cannot read fixture %s", path)
    }

    /* decode the file */
    ret, err := Parse(buf)
    if err != nil {
        return nil, errors.Wrapf(err, "fixture %s", path)
    }
    return ret, nil
}
