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

package dropflow

import (
	"hash/fnv"
	"strconv"

	"github.com/dropguard/dropguard/analysis/ir"
	"github.com/dropguard/dropguard/internal/funcutil"
)

// ArgEffect is the externally observable effect of a callee on one of its arguments, as seen at
// the callee's return points. Arg follows the local indexing convention: 1..NumArgs.
// All effects are may-effects: they hold on at least one path through the callee.
type ArgEffect struct {
	Arg int
	// MayDrop means the callee may deallocate the argument's allocation
	MayDrop bool
	// Consumed means the callee may take ownership of the argument (moved into the callee or
	// forgotten there); the caller is no longer responsible for it
	Consumed bool
	// AliasesRet means the return value may alias this argument
	AliasesRet bool
	// AliasedArgs lists other argument indices this argument may alias after the call
	AliasedArgs []int
}

// ReturnResults is the alias/ownership summary of a function: what a caller must apply to its own
// argument nodes as if the callee's body had been inlined. Immutable once cached.
type ReturnResults struct {
	Func ir.FuncID
	Name string
	// Fingerprint guards persisted entries against stale bodies
	Fingerprint uint64
	// Complete is false when the callee's traversal exhausted its visit budget; the effects are
	// then a lower bound
	Complete bool
	// RetOwned means the return value carries ownership the caller must eventually drop
	RetOwned bool
	Effects  []ArgEffect
}

// effectFor returns the effect recorded for argument arg, or nil.
func (rr *ReturnResults) effectFor(arg int) *ArgEffect {
	for i := range rr.Effects {
		if rr.Effects[i].Arg == arg {
			return &rr.Effects[i]
		}
	}
	return nil
}

// mergeEffect folds the observation of one terminal path state into the summary. Observations
// union: a drop on any path is a may-drop.
func (rr *ReturnResults) mergeEffect(obs ArgEffect) {
	e := rr.effectFor(obs.Arg)
	if e == nil {
		rr.Effects = append(rr.Effects, obs)
		return
	}
	e.MayDrop = e.MayDrop || obs.MayDrop
	e.Consumed = e.Consumed || obs.Consumed
	e.AliasesRet = e.AliasesRet || obs.AliasesRet
	for _, a := range obs.AliasedArgs {
		if !funcutil.Contains(e.AliasedArgs, a) {
			e.AliasedArgs = append(e.AliasedArgs, a)
		}
	}
}

// Fingerprint computes a stable hash of a function body, used to key persisted summaries. Any
// change to the instruction stream, the locals or the block structure changes the fingerprint.
func Fingerprint(fn *ir.Function) uint64 {
	h := fnv.New64a()
	write := func(s string) { _, _ = h.Write([]byte(s)) }
	writeInt := func(i int) { write(strconv.Itoa(i)); write(";") }
	write(fn.Name)
	writeInt(fn.NumArgs)
	for _, l := range fn.Locals {
		write(l.Name)
		writeType(h.Write, l.Type)
	}
	for _, b := range fn.Blocks {
		writeInt(b.Index)
		for _, s := range b.Succs {
			writeInt(s)
		}
		for _, instr := range b.Instrs {
			write(string(instr.Op))
			writePlace(write, writeInt, instr.Dst)
			writePlace(write, writeInt, instr.Src)
			writePlace(write, writeInt, instr.Cond)
			if instr.Val != nil {
				write(strconv.FormatBool(*instr.Val))
			}
			write(instr.Callee)
			for i := range instr.Args {
				writePlace(write, writeInt, &instr.Args[i])
			}
		}
	}
	return h.Sum64()
}

func writePlace(write func(string), writeInt func(int), p *ir.Place) {
	if p == nil {
		write("_;")
		return
	}
	writeInt(p.Local)
	for _, f := range p.Path {
		writeInt(f)
	}
}

func writeType(w func([]byte) (int, error), t ir.Type) {
	_, _ = w([]byte(t.Kind))
	_, _ = w([]byte(t.Name))
	if t.Elem != nil {
		writeType(w, *t.Elem)
	}
	for _, f := range t.Fields {
		_, _ = w([]byte(f.Name))
		writeType(w, f.Type)
	}
}
