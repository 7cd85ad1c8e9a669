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
	"reflect"
	"testing"

	"github.com/dropguard/dropguard/analysis/ir"
)

// cfgOf builds a function whose body is just the given successor structure; the contraction only
// looks at edges.
func cfgOf(succs ...[]int) *ir.Function {
	fn := &ir.Function{Name: "cfg", Locals: []ir.Local{{Type: scalarT()}}}
	for i, s := range succs {
		fn.Blocks = append(fn.Blocks, &ir.Block{Index: i, Succs: s})
	}
	return fn
}

// assertAcyclic walks the contracted successor edges and fails on any cycle among fathers.
func assertAcyclic(t *testing.T, c *Contraction) {
	t.Helper()
	const (
		unvisited = iota
		onStack
		done
	)
	state := map[int]int{}
	var visit func(f int)
	visit = func(f int) {
		switch state[f] {
		case onStack:
			t.Fatalf("father %d is on a cycle of the contracted graph", f)
		case done:
			return
		}
		state[f] = onStack
		for _, s := range c.Succs[f] {
			visit(s)
		}
		state[f] = done
	}
	for father := range c.Members {
		visit(father)
	}
}

func TestContractStraightLine(t *testing.T) {
	c := Contract(cfgOf([]int{1}, []int{2}, nil))
	for b := 0; b < 3; b++ {
		if c.Father[b] != b {
			t.Errorf("block %d should be its own father, got %d", b, c.Father[b])
		}
		if c.Cyclic[b] {
			t.Errorf("block %d wrongly marked cyclic", b)
		}
	}
	if !reflect.DeepEqual(c.Order, []int{0, 1, 2}) {
		t.Errorf("unexpected topological order %v", c.Order)
	}
	assertAcyclic(t, c)
}

func TestContractLoop(t *testing.T) {
	// 0 -> 1 <-> 2, 1 -> 3
	c := Contract(cfgOf([]int{1}, []int{2, 3}, []int{1}, nil))
	if c.Father[1] != 1 || c.Father[2] != 1 {
		t.Errorf("expected blocks 1 and 2 contracted under father 1, got %v", c.Father)
	}
	if !c.Cyclic[1] {
		t.Errorf("expected father 1 to be cyclic")
	}
	if !reflect.DeepEqual(c.Members[1], []int{1, 2}) {
		t.Errorf("unexpected members %v", c.Members[1])
	}
	if !reflect.DeepEqual(c.Succs[1], []int{3}) {
		t.Errorf("expected the loop's only external successor to be 3, got %v", c.Succs[1])
	}
	assertAcyclic(t, c)
}

func TestContractSelfLoop(t *testing.T) {
	c := Contract(cfgOf([]int{1}, []int{1, 2}, nil))
	if !c.Cyclic[1] {
		t.Errorf("expected the self-loop block to be cyclic")
	}
	if c.Father[1] != 1 {
		t.Errorf("expected the self-loop block to be its own father, got %d", c.Father[1])
	}
	if !reflect.DeepEqual(c.Succs[1], []int{2}) {
		t.Errorf("expected the self edge to be dropped from contracted successors, got %v", c.Succs[1])
	}
}

func TestContractNestedLoops(t *testing.T) {
	// outer loop 1..4 with inner loop 2<->3
	c := Contract(cfgOf(
		[]int{1},    // 0: entry
		[]int{2},    // 1: outer header
		[]int{3},    // 2: inner header
		[]int{2, 4}, // 3: inner latch
		[]int{1, 5}, // 4: outer latch
		nil,         // 5: exit
	))
	// the whole nest is one component with father 1
	for b := 1; b <= 4; b++ {
		if c.Father[b] != 1 {
			t.Errorf("block %d should have father 1, got %d", b, c.Father[b])
		}
	}
	if !c.Cyclic[1] {
		t.Errorf("expected the loop nest to be cyclic")
	}
	if !reflect.DeepEqual(c.Succs[1], []int{5}) {
		t.Errorf("unexpected successors %v", c.Succs[1])
	}
	assertAcyclic(t, c)
}

func TestContractDeterministic(t *testing.T) {
	build := func() *Contraction {
		return Contract(cfgOf([]int{1, 2}, []int{3}, []int{3}, []int{1, 4}, nil))
	}
	if !reflect.DeepEqual(build(), build()) {
		t.Errorf("contraction is not deterministic")
	}
}
