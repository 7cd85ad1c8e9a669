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
	"golang.org/x/tools/container/intsets"
)

// dropStatus is the deallocation state of one node on one path.
type dropStatus uint8

const (
	// statusLive is the initial state: the node denotes a valid location
	statusLive dropStatus = iota
	// statusDropped means the allocation behind the node has been deallocated on this path
	statusDropped
	// statusMoved means ownership left the node (moved away, forgotten, or consumed by a callee)
	statusMoved
)

// PathState is the alias/ownership valuation of one explored path: for every tracked node, whether
// it is owned, its drop status, which nodes it may alias, and the compile-time-known booleans used
// to prune constant branches. States fork at branches and are never merged.
type PathState struct {
	owned  []bool
	status []dropStatus
	// alias[i] is the set of node ids that may denote the same allocation as node i. The relation
	// is kept symmetric; transitive closure is computed on demand when a drop propagates.
	alias []*intsets.Sparse
	// droppedBy[i] is the node whose deallocation invalidated node i, or -1
	droppedBy []int
	// consts maps node ids to boolean values known at traversal time
	consts map[int]bool
	// father is the father block id the path is about to enter
	father int
}

// newPathState returns the initial state at the function entry: parameters own their location when
// their type carries ownership, everything is live, nothing aliases anything.
func newPathState(g *FuncGraph, entryFather int) *PathState {
	n := g.Nodes.Len()
	ps := &PathState{
		owned:     make([]bool, n),
		status:    make([]dropStatus, n),
		alias:     make([]*intsets.Sparse, n),
		droppedBy: make([]int, n),
		consts:    map[int]bool{},
		father:    entryFather,
	}
	for i := range ps.alias {
		ps.alias[i] = &intsets.Sparse{}
		ps.droppedBy[i] = -1
	}
	for arg := 1; arg <= g.Fn.NumArgs; arg++ {
		root := g.Nodes.Root(arg)
		ps.owned[root] = g.Nodes.Nodes[root].Type.Owned()
		for _, d := range g.Nodes.Nodes[root].Subtree {
			ps.owned[d] = g.Nodes.Nodes[d].Type.Owned()
		}
	}
	return ps
}

// fork returns an independent deep copy of the state, entering the given father block.
func (ps *PathState) fork(father int) *PathState {
	n := len(ps.owned)
	c := &PathState{
		owned:     make([]bool, n),
		status:    make([]dropStatus, n),
		alias:     make([]*intsets.Sparse, n),
		droppedBy: make([]int, n),
		consts:    make(map[int]bool, len(ps.consts)),
		father:    father,
	}
	copy(c.owned, ps.owned)
	copy(c.status, ps.status)
	copy(c.droppedBy, ps.droppedBy)
	for i, s := range ps.alias {
		c.alias[i] = &intsets.Sparse{}
		c.alias[i].Copy(s)
	}
	for k, v := range ps.consts {
		c.consts[k] = v
	}
	return c
}

// addAlias records that a and b may denote the same allocation.
func (ps *PathState) addAlias(a, b int) {
	if a == b {
		return
	}
	ps.alias[a].Insert(b)
	ps.alias[b].Insert(a)
}

// aliasClosure returns the set of nodes transitively aliased with n, excluding n itself.
func (ps *PathState) aliasClosure(n int) *intsets.Sparse {
	seen := &intsets.Sparse{}
	work := []int{n}
	seen.Insert(n)
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		var elems []int
		elems = ps.alias[cur].AppendTo(elems)
		for _, next := range elems {
			if seen.Insert(next) {
				work = append(work, next)
			}
		}
	}
	seen.Remove(n)
	return seen
}

// markDropped marks n deallocated and propagates the dropped status to every alias of n, since
// destroying the owner invalidates all names for the same allocation. by is the node the
// deallocation happened on.
func (ps *PathState) markDropped(n int, by int) {
	ps.status[n] = statusDropped
	ps.droppedBy[n] = by
	closure := ps.aliasClosure(n)
	var elems []int
	elems = closure.AppendTo(elems)
	for _, a := range elems {
		if ps.status[a] == statusLive {
			ps.status[a] = statusDropped
			ps.droppedBy[a] = by
		}
	}
}

// transferMove moves ownership and alias-set membership from src to dst.
func (ps *PathState) transferMove(dst, src int) {
	ps.owned[dst] = ps.owned[src]
	ps.status[dst] = ps.status[src]
	ps.droppedBy[dst] = ps.droppedBy[src]
	// every alias of src now also names the allocation through dst
	var elems []int
	elems = ps.alias[src].AppendTo(elems)
	for _, a := range elems {
		ps.addAlias(dst, a)
	}
	ps.owned[src] = false
	ps.status[src] = statusMoved
	if v, ok := ps.consts[src]; ok {
		ps.consts[dst] = v
	}
}
