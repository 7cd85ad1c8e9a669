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
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dropguard/dropguard/analysis/ir"
)

// ErrUnsupported signals a function body the analysis cannot process (empty or malformed). The
// function is skipped; the error is never fatal to the run.
var ErrUnsupported = errors.New("unsupported function body")

// Node is one tracked memory-relevant entity: a local, a flattened field of a local, or a
// temporary. Node states live in PathState; the Node itself is immutable once the table is built.
type Node struct {
	ID    int
	Local int
	// Path is the field-index path from the root local down to this node; empty for roots
	Path []int
	Type ir.Type
	// Parent is the node id of the enclosing aggregate, -1 for roots
	Parent int
	// Subtree lists the ids of all strict descendants of this node
	Subtree []int
}

// NodeTable holds every tracked node of one function, indexed by (local, field path).
type NodeTable struct {
	Nodes []*Node

	fn             *ir.Function
	roots          []int
	index          map[string]int
	fieldSensitive bool
}

// FuncGraph is the internal representation of one function: its node table and its block graph.
// Blocks mirror the CFG edges of the input one-to-one; the contraction is computed separately.
type FuncGraph struct {
	Fn    *ir.Function
	Nodes *NodeTable
}

// BuildFuncGraph turns one function body into the representation traversed by the engine.
// Returns ErrUnsupported when the function has no executable body.
func BuildFuncGraph(fn *ir.Function, fieldSensitive bool) (*FuncGraph, error) {
	if fn == nil || len(fn.Blocks) == 0 {
		return nil, fmt.Errorf("%w: no basic blocks", ErrUnsupported)
	}
	if err := ir.Validate(fn); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return &FuncGraph{Fn: fn, Nodes: buildNodeTable(fn, fieldSensitive)}, nil
}

func buildNodeTable(fn *ir.Function, fieldSensitive bool) *NodeTable {
	nt := &NodeTable{
		fn:             fn,
		roots:          make([]int, len(fn.Locals)),
		index:          map[string]int{},
		fieldSensitive: fieldSensitive,
	}
	for i, local := range fn.Locals {
		root := nt.addNode(i, nil, local.Type, -1)
		nt.roots[i] = root
		if fieldSensitive {
			nt.flatten(i, nil, local.Type, root)
		}
	}
	return nt
}

// flatten recursively adds one node per aggregate field under the given parent.
func (nt *NodeTable) flatten(local int, path []int, t ir.Type, parent int) {
	if t.Kind != ir.Aggregate {
		return
	}
	for fi, field := range t.Fields {
		fieldPath := append(append([]int{}, path...), fi)
		id := nt.addNode(local, fieldPath, field.Type, parent)
		nt.flatten(local, fieldPath, field.Type, id)
	}
}

func (nt *NodeTable) addNode(local int, path []int, t ir.Type, parent int) int {
	id := len(nt.Nodes)
	nt.Nodes = append(nt.Nodes, &Node{
		ID:     id,
		Local:  local,
		Path:   path,
		Type:   t,
		Parent: parent,
	})
	nt.index[pathKey(local, path)] = id
	for p := parent; p >= 0; p = nt.Nodes[p].Parent {
		nt.Nodes[p].Subtree = append(nt.Nodes[p].Subtree, id)
	}
	return id
}

func pathKey(local int, path []int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(local))
	for _, f := range path {
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(f))
	}
	return b.String()
}

// Len returns the number of tracked nodes
func (nt *NodeTable) Len() int {
	return len(nt.Nodes)
}

// Root returns the node id of the root node of the given local
func (nt *NodeTable) Root(local int) int {
	return nt.roots[local]
}

// Resolve maps a place to its tracked node. Under field-insensitive analysis, or when the field
// path does not resolve (the frontend may emit paths into opaque types), the enclosing local's
// root node is returned.
func (nt *NodeTable) Resolve(p ir.Place) *Node {
	if nt.fieldSensitive && len(p.Path) > 0 {
		if id, ok := nt.index[pathKey(p.Local, p.Path)]; ok {
			return nt.Nodes[id]
		}
	}
	return nt.Nodes[nt.roots[p.Local]]
}

// Descendant returns the node reached from id through the relative field path rel, or nil.
func (nt *NodeTable) Descendant(id int, rel []int) *Node {
	n := nt.Nodes[id]
	full := append(append([]int{}, n.Path...), rel...)
	if did, ok := nt.index[pathKey(n.Local, full)]; ok {
		return nt.Nodes[did]
	}
	return nil
}

// PathString renders the variable path of a node the way a user wrote it, e.g. "buf.data".
func (nt *NodeTable) PathString(id int) string {
	n := nt.Nodes[id]
	name := nt.fn.Locals[n.Local].Name
	if name == "" {
		name = fmt.Sprintf("_%d", n.Local)
	}
	t := nt.fn.Locals[n.Local].Type
	for _, fi := range n.Path {
		if t.Kind == ir.Aggregate && fi < len(t.Fields) {
			name += "." + t.Fields[fi].Name
			t = t.Fields[fi].Type
		} else {
			name += "." + strconv.Itoa(fi)
		}
	}
	return name
}
