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

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewFlags(t *testing.T) {
	flags, err := NewFlags([]string{"-config", "c.yaml", "-v", "-visit-budget", "42", "a.yaml", "b.yaml"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if flags.configPath != "c.yaml" || !flags.verbose || flags.visitBudget != 42 {
		t.Errorf("flags not parsed: %+v", flags)
	}
	if len(flags.dumps) != 2 || flags.dumps[0] != "a.yaml" {
		t.Errorf("positional arguments not parsed: %v", flags.dumps)
	}
}

func TestNewFlagsRejectsUnknown(t *testing.T) {
	if _, err := NewFlags([]string{"-frobnicate"}); err == nil {
		t.Errorf("expected an error for an unknown flag")
	}
}

const cleanDump = `
functions:
  - name: ok
    num-args: 0
    locals:
      - type: {kind: scalar}
      - name: v
        type: {kind: box, elem: {kind: scalar}}
    blocks:
      - index: 0
        instrs:
          - {op: call, callee: alloc, dst: {local: 1}, span: {file: m.ob, line: 2, col: 1}}
          - {op: drop, src: {local: 1}, span: {file: m.ob, line: 3, col: 1}}
          - {op: return}
`

const buggyDump = `
functions:
  - name: bad
    num-args: 0
    locals:
      - type: {kind: scalar}
      - name: v
        type: {kind: box, elem: {kind: scalar}}
    blocks:
      - index: 0
        instrs:
          - {op: call, callee: alloc, dst: {local: 1}, span: {file: m.ob, line: 2, col: 1}}
          - {op: drop, src: {local: 1}, span: {file: m.ob, line: 3, col: 1}}
          - {op: drop, src: {local: 1}, span: {file: m.ob, line: 4, col: 1}}
          - {op: return}
`

func writeDump(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dump.yaml")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunCleanProgram(t *testing.T) {
	flags, err := NewFlags([]string{writeDump(t, cleanDump)})
	if err != nil {
		t.Fatal(err)
	}
	if err := Run(flags); err != nil {
		t.Errorf("expected a clean run, got %v", err)
	}
}

func TestRunReportsFindings(t *testing.T) {
	flags, err := NewFlags([]string{writeDump(t, buggyDump)})
	if err != nil {
		t.Fatal(err)
	}
	if err := Run(flags); err == nil {
		t.Errorf("expected a nonzero finding count to surface as an error")
	}
}
