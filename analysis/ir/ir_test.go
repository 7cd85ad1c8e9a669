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
	"testing"
)

func validFunc() *Function {
	return &Function{
		Name:    "f",
		NumArgs: 1,
		Locals: []Local{
			{Type: Type{Kind: Scalar}},
			{Name: "a", Type: Type{Kind: Box, Elem: &Type{Kind: Scalar}}},
		},
		Blocks: []*Block{
			{Index: 0, Succs: []int{1}, Instrs: []Instr{
				{Op: Drop, Src: &Place{Local: 1}},
				{Op: Goto},
			}},
			{Index: 1, Instrs: []Instr{{Op: Return}}},
		},
	}
}

func TestValidateAcceptsWellFormedBody(t *testing.T) {
	if err := Validate(validFunc()); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *Function)
	}{
		{"successor out of range", func(f *Function) { f.Blocks[0].Succs = []int{7} }},
		{"block index mismatch", func(f *Function) { f.Blocks[1].Index = 5 }},
		{"local out of range", func(f *Function) { f.Blocks[0].Instrs[0].Src = &Place{Local: 9} }},
		{"missing operand", func(f *Function) { f.Blocks[0].Instrs[0].Src = nil }},
		{"too many args", func(f *Function) { f.NumArgs = 2 }},
		{"goto with two successors", func(f *Function) { f.Blocks[0].Succs = []int{1, 1} }},
		{"branch with one successor", func(f *Function) {
			f.Blocks[0].Instrs[1] = Instr{Op: Branch, Cond: &Place{Local: 0}}
		}},
		{"const without value", func(f *Function) {
			f.Blocks[0].Instrs[0] = Instr{Op: Const, Dst: &Place{Local: 0}}
		}},
		{"call without callee", func(f *Function) {
			f.Blocks[0].Instrs[0] = Instr{Op: Call}
		}},
		{"unknown op", func(f *Function) { f.Blocks[0].Instrs[0].Op = Op("frobnicate") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFunc()
			tt.mutate(f)
			if Validate(f) == nil {
				t.Errorf("expected a validation error")
			}
		})
	}
}

func TestTypeOwned(t *testing.T) {
	box := Type{Kind: Box, Elem: &Type{Kind: Scalar}}
	tests := []struct {
		name string
		typ  Type
		want bool
	}{
		{"scalar", Type{Kind: Scalar}, false},
		{"ref", Type{Kind: Ref, Elem: &box}, false},
		{"rawptr", Type{Kind: RawPtr, Elem: &box}, false},
		{"box", box, true},
		{"aggregate with box field", Type{Kind: Aggregate, Fields: []Field{
			{Name: "len", Type: Type{Kind: Scalar}},
			{Name: "data", Type: box},
		}}, true},
		{"aggregate of scalars", Type{Kind: Aggregate, Fields: []Field{
			{Name: "x", Type: Type{Kind: Scalar}},
		}}, false},
		{"nested aggregate", Type{Kind: Aggregate, Fields: []Field{
			{Name: "inner", Type: Type{Kind: Aggregate, Fields: []Field{{Name: "p", Type: box}}}},
		}}, true},
	}
	for _, tt := range tests {
		if got := tt.typ.Owned(); got != tt.want {
			t.Errorf("%s: Owned() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestProgramLookup(t *testing.T) {
	f := validFunc()
	g := &Function{Name: "g"}
	p := NewProgram([]*Function{f, g})
	if p.Func(f.ID) != f {
		t.Errorf("Func did not return the function for its id")
	}
	if p.Func(FuncID(99)) != nil {
		t.Errorf("expected nil for an out-of-range id")
	}
	if id := p.FuncByName("f"); id.IsNone() || id.Value() != f.ID {
		t.Errorf("FuncByName(f) = %v", id)
	}
	if !p.FuncByName("missing").IsNone() {
		t.Errorf("expected none for an unknown name")
	}
	if !p.HasBody(f.ID) {
		t.Errorf("f has a body")
	}
	if p.HasBody(g.ID) {
		t.Errorf("g has no body")
	}
}

func TestComputePreds(t *testing.T) {
	f := validFunc()
	NewProgram([]*Function{f})
	if len(f.Blocks[1].Preds) != 1 || f.Blocks[1].Preds[0] != 0 {
		t.Errorf("expected block 1 to have predecessor 0, got %v", f.Blocks[1].Preds)
	}
}

func TestPlaceAndSpanString(t *testing.T) {
	if got := (Place{Local: 3, Path: []int{0, 2}}).String(); got != "_3.0.2" {
		t.Errorf("unexpected place string %q", got)
	}
	if got := (Span{File: "a.ob", Line: 4, Col: 7}).String(); got != "a.ob:4:7" {
		t.Errorf("unexpected span string %q", got)
	}
	if got := (Span{}).String(); got != "-" {
		t.Errorf("expected '-' for an empty span, got %q", got)
	}
}
