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

package graphutil

import (
	"gonum.org/v1/gonum/graph"
)

// AdjGraph is an abstraction over a directed graph given by adjacency lists, to work with existing graph
// libraries. It implements the methods to satisfy yourbasic's graph.Iterator and Gonum's graph.Graph.
// Node identifiers are the indices 0 <= i < Order() into the adjacency lists.
type AdjGraph struct {
	// Succs are the adjacency lists: Succs[i] contains the successors of node i. Duplicate entries are
	// allowed and treated as a single edge.
	Succs [][]int
}

// NewAdjGraph returns an adjacency-list graph wrapping succs. The slice is not copied.
func NewAdjGraph(succs [][]int) AdjGraph {
	return AdjGraph{Succs: succs}
}

// Order implements the order of the graph.Iterator interface for the AdjGraph
func (a AdjGraph) Order() int {
	return len(a.Succs)
}

// Visit implements the graph.Iterator interface for the AdjGraph
func (a AdjGraph) Visit(v int, do func(w int, c int64) (skip bool)) (aborted bool) {
	if v < 0 || v >= len(a.Succs) {
		return false
	}
	for _, w := range a.Succs[v] {
		if do(w, 1) {
			return true
		}
	}
	return false
}

// *************** Gonum Graph interface implementation **********************

// Node implements the Graph interface
func (a AdjGraph) Node(id int64) graph.Node {
	if id < 0 || id >= int64(len(a.Succs)) {
		return nil
	}
	return Vertex(id)
}

// Nodes returns the set of nodes in the graph
func (a AdjGraph) Nodes() graph.Nodes {
	ids := make([]int64, len(a.Succs))
	for i := range a.Succs {
		ids[i] = int64(i)
	}
	return &VertexSet{ids: ids, cur: -1}
}

// From returns the set of nodes reachable in one step from the id
func (a AdjGraph) From(id int64) graph.Nodes {
	var ids []int64
	seen := map[int]bool{}
	if id >= 0 && id < int64(len(a.Succs)) {
		for _, w := range a.Succs[id] {
			if !seen[w] {
				seen[w] = true
				ids = append(ids, int64(w))
			}
		}
	}
	return &VertexSet{ids: ids, cur: -1}
}

// HasEdgeBetween returns a boolean indicating whether an edge exists between the two node identifiers,
// in either direction
func (a AdjGraph) HasEdgeBetween(xid, yid int64) bool {
	return a.hasEdge(xid, yid) || a.hasEdge(yid, xid)
}

// Edge returns the edge between the two identifiers (nil if none exists)
func (a AdjGraph) Edge(uid, vid int64) graph.Edge {
	if a.hasEdge(uid, vid) {
		return VertexEdge{from: Vertex(uid), to: Vertex(vid)}
	}
	return nil
}

// HasEdgeFromTo returns whether a directed edge from uid to vid exists, implementing the remaining
// method of Gonum's graph.Directed together with To
func (a AdjGraph) HasEdgeFromTo(uid, vid int64) bool {
	return a.hasEdge(uid, vid)
}

// To returns the set of nodes with a direct edge to the id
func (a AdjGraph) To(id int64) graph.Nodes {
	var ids []int64
	for u, succs := range a.Succs {
		for _, w := range succs {
			if int64(w) == id {
				ids = append(ids, int64(u))
				break
			}
		}
	}
	return &VertexSet{ids: ids, cur: -1}
}

func (a AdjGraph) hasEdge(uid, vid int64) bool {
	if uid < 0 || uid >= int64(len(a.Succs)) {
		return false
	}
	for _, w := range a.Succs[uid] {
		if int64(w) == vid {
			return true
		}
	}
	return false
}

// *************** Nodes implementation **********************

// Vertex is an integer node identifier implementing the graph.Node interface
type Vertex int64

// ID returns the id of the node
func (v Vertex) ID() int64 {
	return int64(v)
}

// VertexSet implements the graph.Nodes interface, an iterator over a set of vertices
type VertexSet struct {
	// ids is the set of node ids in the iterator
	ids []int64

	// cur is the current index of the iterator, -1 before the first call to Next
	cur int
}

// Next moves the current node to the next, and returns true if such a node exists. Otherwise, returns
// false and the current node has not changed.
func (vs *VertexSet) Next() bool {
	if vs.cur < len(vs.ids)-1 {
		vs.cur++
		return true
	}
	return false
}

// Len returns the length of the vertex set
func (vs *VertexSet) Len() int {
	return len(vs.ids)
}

// Reset resets the id of the current node in the set
func (vs *VertexSet) Reset() {
	vs.cur = -1
}

// Node return the current node in the set
func (vs *VertexSet) Node() graph.Node {
	if vs.cur < 0 || vs.cur >= len(vs.ids) {
		return nil
	}
	return Vertex(vs.ids[vs.cur])
}

// *************** Edge implementation **********************

// VertexEdge implements the graph.Edge interface
type VertexEdge struct {
	from Vertex
	to   Vertex
}

// From returns the origin of the edge
func (e VertexEdge) From() graph.Node {
	return e.from
}

// To returns the destination of the edge
func (e VertexEdge) To() graph.Node {
	return e.to
}

// ReversedEdge returns a new value representing the reversed edge
func (e VertexEdge) ReversedEdge() graph.Edge {
	return VertexEdge{from: e.to, to: e.from}
}
