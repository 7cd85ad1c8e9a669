// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ir

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// dumpFile is the on-disk format of a CFG dump emitted by the host frontend: one document holding
// a list of function bodies.
type dumpFile struct {
	Functions []*Function `yaml:"functions"`
}

// LoadProgram reads CFG dump files and assembles them into a single program. A file that is not
// valid YAML is an error; a function body inside a file that fails validation is skipped and
// reported through the skipped callback (may be nil), matching the containment policy that one bad
// body never aborts the run.
func LoadProgram(paths []string, skipped func(name string, err error)) (*Program, error) {
	var functions []*Function
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("could not read CFG dump %s: %w", p, err)
		}
		var dump dumpFile
		if err := yaml.Unmarshal(b, &dump); err != nil {
			return nil, fmt.Errorf("could not unmarshal CFG dump %s: %w", p, err)
		}
		for _, f := range dump.Functions {
			if err := Validate(f); err != nil {
				if skipped != nil {
					name := "?"
					if f != nil {
						name = f.Name
					}
					skipped(name, err)
				}
				continue
			}
			functions = append(functions, f)
		}
	}
	// Dump files may arrive in any order; sort by name so function ids are stable across runs.
	sort.Slice(functions, func(i, j int) bool { return functions[i].Name < functions[j].Name })
	return NewProgram(functions), nil
}
