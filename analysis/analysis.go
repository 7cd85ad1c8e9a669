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

// Package analysis contains helper functions for running analysis passes.
package analysis

import (
	"fmt"

	"github.com/dropguard/dropguard/analysis/config"
	"github.com/dropguard/dropguard/analysis/ir"
)

// Version is the version of the tool, reported by the command line binaries.
const Version = "v0.3.1"

// LoadProgram reads the CFG dump files produced by the host frontend and assembles them into one
// program. Function bodies that fail validation are skipped with a warning; a file that cannot be
// read or parsed is an error.
func LoadProgram(logger *config.LogGroup, paths []string) (*ir.Program, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no CFG dump files provided")
	}
	prog, err := ir.LoadProgram(paths, func(name string, err error) {
		logger.Warnf("Skipping function %s: unsupported input: %v", name, err)
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("Loaded %d function bodies", len(prog.Functions))
	return prog, nil
}
