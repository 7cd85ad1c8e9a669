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

// Package ir defines the control-flow-graph representation consumed by the deallocation-safety
// analysis. The representation is produced by a host compiler frontend and carries just enough
// per-instruction information to distinguish moves, borrows, drops, uses and calls.
//
// Conventions, following the host frontend's mid-level representation:
//   - Locals[0] is the return slot of the function.
//   - Locals[1] through Locals[NumArgs] are the function parameters.
//   - Block 0 is the entry block.
package ir

import (
	"fmt"

	"github.com/dropguard/dropguard/internal/funcutil"
)

// FuncID identifies a function within a Program.
type FuncID uint32

// Span is a source location attached to functions and instructions.
type Span struct {
	File string `yaml:"file,omitempty"`
	Line int    `yaml:"line,omitempty"`
	Col  int    `yaml:"col,omitempty"`
}

func (s Span) String() string {
	if s.File == "" {
		return "-"
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Col)
}

// IsValid returns true if the span carries a file position
func (s Span) IsValid() bool { return s.File != "" }

// TypeKind discriminates the shapes of tracked types.
type TypeKind string

const (
	// Scalar is a type with no ownership content (integers, booleans, ...)
	Scalar TypeKind = "scalar"
	// Ref is a borrowed reference, an alias that never owns its pointee
	Ref TypeKind = "ref"
	// RawPtr is a raw pointer, an unchecked alias that never owns its pointee
	RawPtr TypeKind = "rawptr"
	// Box is an owning heap allocation; dropping it deallocates
	Box TypeKind = "box"
	// Aggregate is a structure with named fields, flattened by the node table
	Aggregate TypeKind = "aggregate"
)

// Type is the (recursive) type of a local or field.
type Type struct {
	Kind   TypeKind `yaml:"kind"`
	Name   string   `yaml:"name,omitempty"`
	Elem   *Type    `yaml:"elem,omitempty"`
	Fields []Field  `yaml:"fields,omitempty"`
}

// Field is a named field of an aggregate type.
type Field struct {
	Name string `yaml:"name"`
	Type Type   `yaml:"type"`
}

// Owned returns true if dropping a value of this type deallocates heap memory, directly or through
// one of its fields.
func (t Type) Owned() bool {
	switch t.Kind {
	case Box:
		return true
	case Aggregate:
		return funcutil.Exists(t.Fields, func(f Field) bool { return f.Type.Owned() })
	default:
		return false
	}
}

// Op is an instruction kind.
type Op string

const (
	// Move is `dst = move src`: ownership and alias-set membership transfer from src to dst
	Move Op = "move"
	// Copy is `dst = copy src`: a bitwise copy that leaves src intact (scalar types only)
	Copy Op = "copy"
	// Borrow is `dst = &src` (shared or mutable): an alias edge without ownership transfer
	Borrow Op = "borrow"
	// RawCast is `dst = src as rawptr`: an alias edge through a raw pointer, escaping the borrow
	// checker of the host language
	RawCast Op = "rawcast"
	// Drop forces deallocation of the place now, outside end-of-scope cleanup
	Drop Op = "drop"
	// Forget releases ownership of the place without deallocating it
	Forget Op = "forget"
	// FromRaw is `dst = owned(src)`: re-synthesizes an owned value from an alias, exactly once
	FromRaw Op = "fromraw"
	// Use reads or dereferences the place
	Use Op = "use"
	// Const is `dst = <bool literal>`, tracked for constant branch pruning
	Const Op = "const"
	// Call is `dst = callee(args...)`
	Call Op = "call"
	// Branch is a conditional branch on Cond; by convention Succs[0] is the true target and
	// Succs[1] the false target
	Branch Op = "branch"
	// Goto is an unconditional jump to Succs[0]
	Goto Op = "goto"
	// Return leaves the function; the returned value is whatever was moved into Locals[0]
	Return Op = "return"
	// Nop has no effect
	Nop Op = "nop"
)

// Place denotes a local, or a field of a local reached through a path of field indices.
type Place struct {
	Local int   `yaml:"local"`
	Path  []int `yaml:"path,omitempty"`
}

func (p Place) String() string {
	s := fmt.Sprintf("_%d", p.Local)
	for _, f := range p.Path {
		s += fmt.Sprintf(".%d", f)
	}
	return s
}

// Instr is one instruction of a basic block. Which fields are meaningful depends on Op.
type Instr struct {
	Op     Op      `yaml:"op"`
	Dst    *Place  `yaml:"dst,omitempty"`
	Src    *Place  `yaml:"src,omitempty"`
	Cond   *Place  `yaml:"cond,omitempty"`
	Val    *bool   `yaml:"val,omitempty"`
	Callee string  `yaml:"callee,omitempty"`
	Args   []Place `yaml:"args,omitempty"`
	Span   Span    `yaml:"span,omitempty"`
}

// Block is one basic block: an ordered instruction sequence and its CFG edges.
type Block struct {
	Index  int     `yaml:"index"`
	Instrs []Instr `yaml:"instrs"`
	Succs  []int   `yaml:"succs,omitempty"`
	Preds  []int   `yaml:"-"`
}

// Local is a declared local variable, parameter or temporary.
type Local struct {
	Name string `yaml:"name,omitempty"`
	Type Type   `yaml:"type"`
}

// Function is one function body as exposed by the host frontend.
type Function struct {
	ID      FuncID   `yaml:"-"`
	Name    string   `yaml:"name"`
	Span    Span     `yaml:"span,omitempty"`
	NumArgs int      `yaml:"num-args"`
	Locals  []Local  `yaml:"locals"`
	Blocks  []*Block `yaml:"blocks"`
}

func (f *Function) String() string {
	return f.Name
}

// Program is the set of function bodies made available by the host frontend.
type Program struct {
	Functions []*Function

	byName map[string]FuncID
}

// NewProgram builds a program from the functions, assigning ids in order. Call targets are
// resolved by name through FuncByName; calls to a name that is not part of the program are
// treated conservatively by the analysis.
func NewProgram(functions []*Function) *Program {
	p := &Program{Functions: functions, byName: make(map[string]FuncID, len(functions))}
	for i, f := range functions {
		f.ID = FuncID(i)
		p.byName[f.Name] = f.ID
	}
	p.computePreds()
	return p
}

// Func returns the function with the given id, or nil if the id is out of range.
func (p *Program) Func(id FuncID) *Function {
	if int(id) >= len(p.Functions) {
		return nil
	}
	return p.Functions[id]
}

// FuncByName returns the id of the function with the given name.
func (p *Program) FuncByName(name string) funcutil.Optional[FuncID] {
	if id, ok := p.byName[name]; ok {
		return funcutil.Some(id)
	}
	return funcutil.None[FuncID]()
}

// HasBody returns true when the function carries an executable body.
func (p *Program) HasBody(id FuncID) bool {
	f := p.Func(id)
	return f != nil && len(f.Blocks) > 0
}

// computePreds fills in the predecessor lists from the successor lists.
func (p *Program) computePreds() {
	for _, f := range p.Functions {
		for _, b := range f.Blocks {
			b.Preds = nil
		}
		for _, b := range f.Blocks {
			for _, s := range b.Succs {
				if s >= 0 && s < len(f.Blocks) {
					f.Blocks[s].Preds = append(f.Blocks[s].Preds, b.Index)
				}
			}
		}
	}
}

// Validate checks the structural invariants of a function body: block indices are consistent with
// positions, edges point at existing blocks, and instruction operands refer to declared locals.
// A function that fails validation is "unsupported input" for the analysis.
func Validate(f *Function) error {
	if f == nil {
		return fmt.Errorf("nil function")
	}
	if f.NumArgs < 0 || f.NumArgs >= len(f.Locals) && len(f.Locals) > 0 {
		return fmt.Errorf("%s: %d arguments declared but only %d locals", f.Name, f.NumArgs, len(f.Locals))
	}
	if len(f.Blocks) > 0 && len(f.Locals) == 0 {
		return fmt.Errorf("%s: body without locals (missing return slot)", f.Name)
	}
	for pos, b := range f.Blocks {
		if b.Index != pos {
			return fmt.Errorf("%s: block at position %d carries index %d", f.Name, pos, b.Index)
		}
		for _, s := range b.Succs {
			if s < 0 || s >= len(f.Blocks) {
				return fmt.Errorf("%s: block %d has successor %d out of range", f.Name, b.Index, s)
			}
		}
		for i := range b.Instrs {
			if err := validateInstr(f, &b.Instrs[i], b); err != nil {
				return fmt.Errorf("%s: block %d instr %d: %w", f.Name, b.Index, i, err)
			}
		}
	}
	return nil
}

func validateInstr(f *Function, instr *Instr, b *Block) error {
	checkPlace := func(p *Place) error {
		if p == nil {
			return fmt.Errorf("%s: missing operand", instr.Op)
		}
		if p.Local < 0 || p.Local >= len(f.Locals) {
			return fmt.Errorf("local _%d out of range", p.Local)
		}
		return nil
	}
	switch instr.Op {
	case Move, Copy, Borrow, RawCast, FromRaw:
		if err := checkPlace(instr.Dst); err != nil {
			return err
		}
		return checkPlace(instr.Src)
	case Drop, Forget, Use:
		return checkPlace(instr.Src)
	case Const:
		if instr.Val == nil {
			return fmt.Errorf("const without value")
		}
		return checkPlace(instr.Dst)
	case Call:
		if instr.Callee == "" {
			return fmt.Errorf("call without callee")
		}
		for i := range instr.Args {
			if err := checkPlace(&instr.Args[i]); err != nil {
				return err
			}
		}
		if instr.Dst != nil {
			return checkPlace(instr.Dst)
		}
		return nil
	case Branch:
		if len(b.Succs) != 2 {
			return fmt.Errorf("branch in block with %d successors", len(b.Succs))
		}
		return checkPlace(instr.Cond)
	case Goto:
		if len(b.Succs) != 1 {
			return fmt.Errorf("goto in block with %d successors", len(b.Succs))
		}
		return nil
	case Return, Nop:
		return nil
	default:
		return fmt.Errorf("unknown instruction kind %q", instr.Op)
	}
}
