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
	"sort"

	"github.com/dropguard/dropguard/analysis/ir"
	"github.com/dropguard/dropguard/internal/funcutil"
	"github.com/dropguard/dropguard/internal/graphutil"
	ybgraph "github.com/yourbasic/graph"
	"gonum.org/v1/gonum/graph/topo"
)

// Contraction is the result of collapsing every strongly-connected component of a block graph into
// a single representative ("father") block. Viewed through father ids, the block graph is acyclic,
// which is what makes a single-pass path traversal safe despite loops.
type Contraction struct {
	// Father maps each block index to the index of its father block. A block outside any cycle is
	// its own father; a self-loop block is its own father too.
	Father []int

	// Members maps a father to the blocks of its component, in ascending index order
	Members map[int][]int

	// Cyclic marks the fathers whose component contains a cycle (size > 1, or a self-loop)
	Cyclic map[int]bool

	// Succs maps a father to its successor fathers, excluding itself, in ascending order
	Succs map[int][]int

	// Order is a topological order of the fathers of the contracted graph
	Order []int
}

// Contract runs a strongly-connected-components pass over the block successor graph of fn and
// returns the father mapping. The father of a component is its smallest block index, which makes
// the contraction deterministic.
func Contract(fn *ir.Function) *Contraction {
	succs := make([][]int, len(fn.Blocks))
	for i, b := range fn.Blocks {
		succs[i] = b.Succs
	}
	adj := graphutil.NewAdjGraph(succs)

	c := &Contraction{
		Father:  make([]int, len(fn.Blocks)),
		Members: map[int][]int{},
		Cyclic:  map[int]bool{},
		Succs:   map[int][]int{},
	}

	for _, component := range ybgraph.StrongComponents(adj) {
		sort.Ints(component)
		father := component[0]
		c.Members[father] = component
		for _, b := range component {
			c.Father[b] = father
		}
		if len(component) > 1 {
			c.Cyclic[father] = true
		} else if funcutil.Contains(fn.Blocks[father].Succs, father) {
			// a self-loop block is its own single-element SCC
			c.Cyclic[father] = true
		}
	}

	// Contracted edges: an edge between two fathers exists iff some member edge crosses components
	fatherAdj := make([][]int, len(fn.Blocks))
	for father, members := range c.Members {
		out := map[int]bool{}
		for _, b := range members {
			for _, s := range fn.Blocks[b].Succs {
				if sf := c.Father[s]; sf != father {
					out[sf] = true
				}
			}
		}
		c.Succs[father] = funcutil.SetToOrderedSlice(out)
		fatherAdj[father] = c.Succs[father]
	}

	// The father graph is acyclic by construction, so the topological sort cannot fail
	ordered, err := topo.Sort(graphutil.NewAdjGraph(fatherAdj))
	if err != nil {
		panic("contracted block graph contains a cycle")
	}
	for _, n := range ordered {
		id := int(n.ID())
		if c.Father[id] == id {
			c.Order = append(c.Order, id)
		}
	}
	return c
}
