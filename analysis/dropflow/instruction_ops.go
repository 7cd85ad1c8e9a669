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

// This file contains the transfer functions: how each instruction kind updates the path state, and
// where the violation checks fire. Call instructions consult the interprocedural cache and apply
// the callee's summarized effects as if its body had been inlined.

import (
	"github.com/dropguard/dropguard/analysis/ir"
)

// applyInstr updates ps with the effect of one instruction.
func (t *traversal) applyInstr(ps *PathState, instr *ir.Instr) {
	switch instr.Op {
	case ir.Move:
		t.applyMove(ps, instr)
	case ir.Copy:
		src := t.graph.Nodes.Resolve(*instr.Src)
		dst := t.graph.Nodes.Resolve(*instr.Dst)
		t.checkUse(ps, src.ID, instr.Span)
		ps.owned[dst.ID] = false
		ps.status[dst.ID] = statusLive
		ps.droppedBy[dst.ID] = -1
		if v, ok := ps.consts[src.ID]; ok {
			ps.consts[dst.ID] = v
		}
	case ir.Borrow, ir.RawCast:
		src := t.graph.Nodes.Resolve(*instr.Src)
		dst := t.graph.Nodes.Resolve(*instr.Dst)
		t.checkUse(ps, src.ID, instr.Span)
		ps.owned[dst.ID] = false
		ps.status[dst.ID] = ps.status[src.ID]
		ps.droppedBy[dst.ID] = ps.droppedBy[src.ID]
		ps.addAlias(dst.ID, src.ID)
	case ir.FromRaw:
		src := t.graph.Nodes.Resolve(*instr.Src)
		dst := t.graph.Nodes.Resolve(*instr.Dst)
		// re-synthesized owner: owns the allocation and aliases everything the source aliases
		ps.owned[dst.ID] = true
		ps.status[dst.ID] = ps.status[src.ID]
		ps.droppedBy[dst.ID] = ps.droppedBy[src.ID]
		ps.addAlias(dst.ID, src.ID)
	case ir.Drop:
		t.applyDrop(ps, instr)
	case ir.Forget:
		n := t.graph.Nodes.Resolve(*instr.Src)
		// forgetting takes the value; forgetting an already-freed value is a use of it
		t.checkUse(ps, n.ID, instr.Span)
		if ps.status[n.ID] == statusLive {
			ps.status[n.ID] = statusMoved
			ps.owned[n.ID] = false
		}
	case ir.Use:
		n := t.graph.Nodes.Resolve(*instr.Src)
		t.checkUse(ps, n.ID, instr.Span)
	case ir.Const:
		dst := t.graph.Nodes.Resolve(*instr.Dst)
		ps.owned[dst.ID] = false
		ps.status[dst.ID] = statusLive
		ps.consts[dst.ID] = *instr.Val
	case ir.Call:
		t.applyCall(ps, instr)
	case ir.Branch, ir.Goto, ir.Return, ir.Nop:
		// control flow is interpreted by the traversal, not here
	}
}

// checkUse records a UseAfterFree when the node's allocation has been deallocated on this path.
func (t *traversal) checkUse(ps *PathState, n int, span ir.Span) {
	if ps.status[n] == statusDropped {
		t.rec.record(UseAfterFree, n, ps.droppedBy[n], span)
	}
}

// applyMove transfers ownership and alias-set membership from src to dst, field-wise when both
// sides resolve to flattened aggregates.
func (t *traversal) applyMove(ps *PathState, instr *ir.Instr) {
	src := t.graph.Nodes.Resolve(*instr.Src)
	dst := t.graph.Nodes.Resolve(*instr.Dst)
	t.checkUse(ps, src.ID, instr.Span)
	for _, sd := range src.Subtree {
		sub := t.graph.Nodes.Nodes[sd]
		rel := sub.Path[len(src.Path):]
		if dd := t.graph.Nodes.Descendant(dst.ID, rel); dd != nil {
			ps.transferMove(dd.ID, sd)
		}
	}
	ps.transferMove(dst.ID, src.ID)
}

// applyDrop interprets a manual/explicit drop of the place: a second drop of an already
// deallocated allocation is a DoubleFree; otherwise the drop invalidates the node, its flattened
// fields, and every alias of it.
func (t *traversal) applyDrop(ps *PathState, instr *ir.Instr) {
	n := t.graph.Nodes.Resolve(*instr.Src)
	switch ps.status[n.ID] {
	case statusDropped:
		t.rec.record(DoubleFree, n.ID, ps.droppedBy[n.ID], instr.Span)
	case statusMoved:
		// ownership already left this node; the drop is dead
	default:
		if !ps.owned[n.ID] && !n.Type.Owned() {
			return
		}
		ps.markDropped(n.ID, n.ID)
		for _, d := range n.Subtree {
			if ps.status[d] == statusLive {
				ps.markDropped(d, n.ID)
			}
		}
	}
}

// applyCall applies the callee's summarized alias/ownership effects to the caller's argument
// nodes. A missing summary (external function, or a recursive call-graph edge still being
// analyzed) falls back to the conservative ownership-transfer effect of the calling convention.
func (t *traversal) applyCall(ps *PathState, instr *ir.Instr) {
	nodes := t.graph.Nodes
	argNodes := make([]int, len(instr.Args))
	for i := range instr.Args {
		an := nodes.Resolve(instr.Args[i])
		argNodes[i] = an.ID
		// passing a freed value is a use of it
		t.checkUse(ps, an.ID, instr.Span)
	}
	var dstNode int = -1
	if instr.Dst != nil {
		dstNode = nodes.Resolve(*instr.Dst).ID
	}

	rr := t.calleeSummary(instr)
	if rr == nil {
		t.applyOpaqueCall(ps, instr, argNodes, dstNode)
		return
	}

	for i, an := range argNodes {
		effect := rr.effectFor(i + 1)
		if effect == nil {
			continue
		}
		if effect.MayDrop {
			if ps.status[an] == statusDropped {
				t.rec.record(DoubleFree, an, ps.droppedBy[an], instr.Span)
			} else if ps.status[an] == statusLive {
				ps.markDropped(an, an)
			}
		} else if effect.Consumed && ps.status[an] == statusLive {
			ps.status[an] = statusMoved
			ps.owned[an] = false
		}
		for _, j := range effect.AliasedArgs {
			if j-1 >= 0 && j-1 < len(argNodes) {
				ps.addAlias(an, argNodes[j-1])
			}
		}
		if effect.AliasesRet && dstNode >= 0 {
			ps.addAlias(an, dstNode)
		}
	}
	if dstNode >= 0 {
		ps.owned[dstNode] = rr.RetOwned
		if ps.status[dstNode] != statusDropped {
			ps.status[dstNode] = statusLive
		}
	}
}

// applyOpaqueCall is the conservative fallback when no summary is available: by the calling
// convention, owned arguments move into the callee, borrowed arguments are untouched, and the
// call's result is a fresh value owned iff its type carries ownership.
func (t *traversal) applyOpaqueCall(ps *PathState, instr *ir.Instr, argNodes []int, dstNode int) {
	for _, an := range argNodes {
		if t.graph.Nodes.Nodes[an].Type.Owned() && ps.status[an] == statusLive {
			ps.status[an] = statusMoved
			ps.owned[an] = false
		}
	}
	if dstNode >= 0 {
		dst := t.graph.Nodes.Nodes[dstNode]
		ps.owned[dstNode] = dst.Type.Owned()
		ps.status[dstNode] = statusLive
		ps.droppedBy[dstNode] = -1
	}
}

// calleeSummary resolves the ReturnResults of the call's target, triggering a nested, cached
// analysis of the callee when absent. Returns nil when the callee is external to the program or
// on a recursive edge, in which case the caller applies the conservative fallback.
func (t *traversal) calleeSummary(instr *ir.Instr) *ReturnResults {
	idOpt := t.state.Program.FuncByName(instr.Callee)
	if idOpt.IsNone() {
		return nil
	}
	id := idOpt.Value()
	if rr, ok := t.state.Summaries.Lookup(id); ok {
		t.cacheHits++
		return rr
	}
	if t.chain[id] {
		// recursive edge with no summary yet: treat as unknown rather than recursing forever.
		// This is a deliberate soundness trade-off, not an error.
		t.state.Logger.Tracef("recursive call to %s in %s: assuming no effect", instr.Callee, t.graph.Fn.Name)
		return nil
	}
	if !t.state.Program.HasBody(id) {
		return nil
	}
	t.chain[id] = true
	_, rr, err := analyzeFunction(t.state, id, t.chain)
	delete(t.chain, id)
	if err != nil {
		t.state.Logger.Debugf("could not summarize callee %s: %v", instr.Callee, err)
		return nil
	}
	return rr
}
