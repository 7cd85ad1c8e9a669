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
	"fmt"
	"sort"

	"github.com/dropguard/dropguard/analysis/ir"
)

// BugKind classifies a deallocation-safety violation.
type BugKind int

const (
	// UseAfterFree is a read or dereference of a location whose allocation has been deallocated
	UseAfterFree BugKind = iota + 1
	// DoubleFree is a second deallocation of an allocation already deallocated on the same path
	DoubleFree
)

func (k BugKind) String() string {
	switch k {
	case UseAfterFree:
		return "use-after-free"
	case DoubleFree:
		return "double-free"
	default:
		return "unknown"
	}
}

// BugRecord is one reported violation, with enough context to render a diagnostic.
type BugRecord struct {
	Func     ir.FuncID
	FuncName string
	Span     ir.Span
	Kind     BugKind
	// NodePath is the variable path of the node the violation was detected on, decorated with the
	// node it is aliased to when the deallocation happened through an alias.
	NodePath string
}

func (r *BugRecord) String() string {
	return fmt.Sprintf("%s: %s of %s in %s", r.Span, r.Kind, r.NodePath, r.FuncName)
}

// TraversalStats are the per-function statistics accumulated during one traversal.
type TraversalStats struct {
	Steps         int // traversal steps charged against the visit budget
	PathsExplored int // number of path states that reached a terminal block
	PathsForked   int // number of path states created by forking at branches
	CacheHits     int // summary cache hits at call sites
}

// FuncReport is the caller-visible result of analyzing one function.
type FuncReport struct {
	Func     ir.FuncID
	Name     string
	Findings []*BugRecord
	// Complete is false when the traversal was aborted by the visit budget; the findings are then a
	// lower bound and the function must not be treated as bug-free.
	Complete bool
	Stats    TraversalStats
}

// recorder accumulates violations for a single function's analysis and deduplicates them, so that
// many paths triggering the same root cause produce one finding.
type recorder struct {
	fn    *ir.Function
	nodes *NodeTable
	seen  map[bugKey]*BugRecord
}

// bugKey identifies a root cause: the node pair involved and the kind of violation.
type bugKey struct {
	a, b int
	kind BugKind
}

func newRecorder(fn *ir.Function, nodes *NodeTable) *recorder {
	return &recorder{fn: fn, nodes: nodes, seen: map[bugKey]*BugRecord{}}
}

// record adds a violation for node n at span. other is the node the underlying allocation was
// deallocated through, or -1 when the deallocation happened on n itself.
func (r *recorder) record(kind BugKind, n int, other int, span ir.Span) {
	key := bugKey{a: n, b: other, kind: kind}
	if _, ok := r.seen[key]; ok {
		return
	}
	path := r.nodes.PathString(n)
	if other >= 0 && other != n {
		path = fmt.Sprintf("%s (deallocated through %s)", path, r.nodes.PathString(other))
	}
	r.seen[key] = &BugRecord{
		Func:     r.fn.ID,
		FuncName: r.fn.Name,
		Span:     span,
		Kind:     kind,
		NodePath: path,
	}
}

// finalize returns the ordered list of distinct findings. maxAlarms truncates the list when > 0.
func (r *recorder) finalize(maxAlarms int) []*BugRecord {
	var out []*BugRecord
	for _, rec := range r.seen {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Span.Line != out[j].Span.Line {
			return out[i].Span.Line < out[j].Span.Line
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].NodePath < out[j].NodePath
	})
	if maxAlarms > 0 && len(out) > maxAlarms {
		out = out[:maxAlarms]
	}
	return out
}
