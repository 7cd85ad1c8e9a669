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

// This file implements the path traversal engine. The engine walks the contracted DAG of father
// blocks from the entry block, forking an independent path state at every branch whose condition
// is not a tracked constant, and applying instruction effects through the transfer functions in
// instruction_ops.go. Every step is charged against the function's visit budget; exhausting the
// budget aborts this function's traversal only and flags its result incomplete.

import (
	"fmt"

	"github.com/dropguard/dropguard/analysis/ir"
)

// AnalyzeFunction runs the deallocation-safety analysis of one function and returns its report.
// Returns an error wrapping ErrUnsupported when the function body cannot be analyzed; no other
// error is produced.
func AnalyzeFunction(s *AnalyzerState, id ir.FuncID) (*FuncReport, error) {
	report, _, err := analyzeFunction(s, id, map[ir.FuncID]bool{id: true})
	return report, err
}

// analyzeFunction is the recursive entry point: chain holds the functions currently being analyzed
// on this nested-analysis chain, guarding against call-graph cycles.
func analyzeFunction(s *AnalyzerState, id ir.FuncID, chain map[ir.FuncID]bool) (*FuncReport, *ReturnResults, error) {
	fn := s.Program.Func(id)
	if fn == nil {
		return nil, nil, fmt.Errorf("%w: unknown function id %d", ErrUnsupported, id)
	}
	g, err := BuildFuncGraph(fn, s.Config.FieldSensitive)
	if err != nil {
		return nil, nil, err
	}
	contraction := Contract(fn)

	t := &traversal{
		state:       s,
		graph:       g,
		contraction: contraction,
		rec:         newRecorder(fn, g.Nodes),
		budget:      s.Config.VisitBudget,
		chain:       chain,
		summary: &ReturnResults{
			Func:        id,
			Name:        fn.Name,
			Fingerprint: Fingerprint(fn),
			Complete:    true,
		},
	}
	t.run()

	report := &FuncReport{
		Func:     id,
		Name:     fn.Name,
		Findings: t.rec.finalize(s.Config.MaxAlarms),
		Complete: !t.exhausted,
		Stats: TraversalStats{
			Steps:         t.steps,
			PathsExplored: t.explored,
			PathsForked:   t.forked,
			CacheHits:     t.cacheHits,
		},
	}
	t.summary.Complete = !t.exhausted
	s.Summaries.Insert(id, t.summary)

	if t.exhausted {
		s.Logger.Warnf("Visit budget (%d) exhausted in %s: findings are partial", t.budget, fn.Name)
	}
	s.Logger.Debugf("Analyzed %s: %d findings, %d paths, %d steps",
		fn.Name, len(report.Findings), report.Stats.PathsExplored, report.Stats.Steps)
	return report, t.summary, nil
}

// traversal owns all the state of one function's analysis. It is never shared across goroutines.
type traversal struct {
	state       *AnalyzerState
	graph       *FuncGraph
	contraction *Contraction
	rec         *recorder
	summary     *ReturnResults

	budget    int
	steps     int
	forked    int
	explored  int
	cacheHits int
	exhausted bool

	// chain is the set of functions on the current nested-analysis chain (recursion guard)
	chain map[ir.FuncID]bool
}

// charge consumes one step of the visit budget; returns true when the budget is exhausted.
func (t *traversal) charge() bool {
	t.steps++
	if t.steps > t.budget {
		t.exhausted = true
		return true
	}
	return false
}

// run drives the worklist of forked path states until it drains or the budget is exhausted.
// Paths are drained in the topological order of their current father, so the traversal visits
// fathers front-to-back through the contracted DAG no matter how branch forks interleave.
func (t *traversal) run() {
	ord := make(map[int]int, len(t.contraction.Order))
	for i, f := range t.contraction.Order {
		ord[f] = i
	}
	entry := t.contraction.Father[0]
	worklist := []*PathState{newPathState(t.graph, entry)}
	for len(worklist) > 0 {
		if t.charge() {
			return
		}
		next := 0
		for i := 1; i < len(worklist); i++ {
			if ord[worklist[i].father] < ord[worklist[next].father] {
				next = i
			}
		}
		ps := worklist[next]
		worklist = append(worklist[:next], worklist[next+1:]...)
		worklist = t.processFather(ps, worklist)
		if t.exhausted {
			return
		}
	}
}

// processFather applies the instruction effects of every block contracted under the path's current
// father, then forks the path towards the successor fathers. Returns the updated worklist.
func (t *traversal) processFather(ps *PathState, worklist []*PathState) []*PathState {
	father := ps.father
	members := t.contraction.Members[father]

	// A cyclic father is processed in two rounds so that a second loop iteration observes the
	// effects of the first; this is what surfaces a drop re-executed by a back edge.
	rounds := 1
	if t.contraction.Cyclic[father] {
		rounds = 2
	}
	for r := 0; r < rounds; r++ {
		for _, bi := range members {
			block := t.graph.Fn.Blocks[bi]
			for i := range block.Instrs {
				if t.charge() {
					return worklist
				}
				t.applyInstr(ps, &block.Instrs[i])
			}
		}
	}

	succs := t.successors(ps, father)
	if len(succs) == 0 {
		t.finalizePath(ps)
		return worklist
	}
	// The first successor reuses the current state; the others get independent copies.
	for i := len(succs) - 1; i >= 1; i-- {
		worklist = append(worklist, ps.fork(succs[i]))
		t.forked++
	}
	ps.father = succs[0]
	return append(worklist, ps)
}

// successors decides which father blocks the path continues to. For a plain conditional branch
// whose condition is a tracked constant, the infeasible side is pruned instead of forked.
func (t *traversal) successors(ps *PathState, father int) []int {
	members := t.contraction.Members[father]
	if !t.contraction.Cyclic[father] && len(members) == 1 {
		block := t.graph.Fn.Blocks[father]
		if n := len(block.Instrs); n > 0 && block.Instrs[n-1].Op == ir.Branch {
			cond := t.graph.Nodes.Resolve(*block.Instrs[n-1].Cond)
			if v, ok := ps.consts[cond.ID]; ok {
				// Succs[0] is the true target, Succs[1] the false target
				target := block.Succs[0]
				if !v {
					target = block.Succs[1]
				}
				return []int{t.contraction.Father[target]}
			}
		}
	}
	return t.contraction.Succs[father]
}

// finalizePath folds a terminal path state into the function summary: the subset of node states
// observable by a caller, namely the drop/alias effects on parameters and the return slot.
func (t *traversal) finalizePath(ps *PathState) {
	t.explored++
	fn := t.graph.Fn
	if len(fn.Locals) == 0 {
		return
	}
	retRoot := t.graph.Nodes.Root(0)
	t.summary.RetOwned = t.summary.RetOwned || ps.owned[retRoot]
	for arg := 1; arg <= fn.NumArgs; arg++ {
		root := t.graph.Nodes.Root(arg)
		obs := ArgEffect{Arg: arg}
		switch ps.status[root] {
		case statusDropped:
			obs.MayDrop = true
		case statusMoved:
			obs.Consumed = true
		}
		closure := ps.aliasClosure(root)
		obs.AliasesRet = closure.Has(retRoot)
		for other := 1; other <= fn.NumArgs; other++ {
			if other != arg && closure.Has(t.graph.Nodes.Root(other)) {
				obs.AliasedArgs = append(obs.AliasedArgs, other)
			}
		}
		t.summary.mergeEffect(obs)
	}
}
