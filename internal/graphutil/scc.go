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

// tarjanState carries the bookkeeping of one run of Tarjan's algorithm over nodes of type T.
type tarjanState[T comparable] struct {
	successors func(T) []T
	index      map[T]int
	lowlink    map[T]int
	onStack    map[T]bool
	stack      []T
	next       int
	sccs       [][]T
}

// StronglyConnectedComponents partitions the directed graph given by nodes and the successors
// function into its strongly connected components, using Tarjan's algorithm. The components are
// returned in reverse topological order: every successor component precedes the components that
// reach it, which is the evaluation order a summary-based bottom-up analysis wants. The node
// order inside a component is unspecified.
func StronglyConnectedComponents[T comparable](nodes []T, successors func(T) []T) [][]T {
	s := &tarjanState[T]{
		successors: successors,
		index:      map[T]int{},
		lowlink:    map[T]int{},
		onStack:    map[T]bool{},
	}
	for _, v := range nodes {
		if _, visited := s.index[v]; !visited {
			s.visit(v)
		}
	}
	return s.sccs
}

func (s *tarjanState[T]) visit(v T) {
	s.index[v] = s.next
	s.lowlink[v] = s.next
	s.next++
	s.stack = append(s.stack, v)
	s.onStack[v] = true

	for _, w := range s.successors(v) {
		if _, visited := s.index[w]; !visited {
			s.visit(w)
			if s.lowlink[w] < s.lowlink[v] {
				s.lowlink[v] = s.lowlink[w]
			}
		} else if s.onStack[w] && s.index[w] < s.lowlink[v] {
			s.lowlink[v] = s.index[w]
		}
	}

	// v is the root of a component iff its lowlink never dipped below its own index; the
	// component is everything pushed since v, still on the stack.
	if s.lowlink[v] != s.index[v] {
		return
	}
	var scc []T
	for {
		w := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		s.onStack[w] = false
		scc = append(scc, w)
		if w == v {
			break
		}
	}
	s.sccs = append(s.sccs, scc)
}
