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

// Package dropflow implements the path-sensitive alias-and-ownership dataflow analysis that finds
// invalid deallocations (use-after-free, double-free) caused by manual intervention in automatic
// resource cleanup. Functions are independent analysis units; the only state shared between them
// is the write-once interprocedural summary cache.
package dropflow

import (
	"errors"
	"runtime"
	"sort"
	"time"

	"github.com/dropguard/dropguard/analysis/config"
	"github.com/dropguard/dropguard/analysis/ir"
	"github.com/dropguard/dropguard/internal/funcutil"
	"github.com/dropguard/dropguard/internal/graphutil"
)

// AnalysisResult is the outcome of one analysis run over a program.
type AnalysisResult struct {
	// Reports holds one report per analyzed function, ordered by function name
	Reports []*FuncReport

	// Skipped lists the functions that were unsupported input, with the reason
	Skipped map[string]error

	// State is the state at the end of the analysis, if you need to chain another analysis
	State *AnalyzerState
}

// Analyze runs the deallocation-safety analysis on every function of prog with the user-provided
// configuration cfg. Functions are analyzed in parallel across a worker pool; the traversal of a
// single function is strictly sequential.
func Analyze(cfg *config.Config, logger *config.LogGroup, prog *ir.Program) (AnalysisResult, error) {
	numRoutines := runtime.NumCPU() - 1
	if numRoutines <= 0 {
		numRoutines = 1
	}

	state, err := NewAnalyzerState(prog, logger, cfg)
	if err != nil {
		return AnalysisResult{}, err
	}

	var targets []ir.FuncID
	for _, id := range analysisOrder(prog) {
		fn := prog.Func(id)
		if len(fn.Blocks) > 0 && cfg.MatchTargetFilter(fn.Name) {
			targets = append(targets, id)
		}
	}
	logger.Infof("Starting deallocation-safety analysis of %d functions...", len(targets))
	start := time.Now()

	result := AnalysisResult{Skipped: map[string]error{}, State: state}
	reports := funcutil.MapParallel(targets, func(id ir.FuncID) *FuncReport {
		report, err := AnalyzeFunction(state, id)
		if err != nil {
			// unsupported input is contained at function granularity
			if !errors.Is(err, ErrUnsupported) {
				state.AddError(prog.Func(id).Name, err)
			}
			state.Logger.Warnf("Skipping %s: %v", prog.Func(id).Name, err)
			return nil
		}
		return report
	}, numRoutines)

	for i, report := range reports {
		if report == nil {
			fn := prog.Func(targets[i])
			result.Skipped[fn.Name] = ErrUnsupported
			continue
		}
		result.Reports = append(result.Reports, report)
	}
	sort.Slice(result.Reports, func(i, j int) bool { return result.Reports[i].Name < result.Reports[j].Name })

	computed, hits := state.Summaries.Stats()
	logger.Infof("Analysis done (%.2f s): %d summaries computed, %d cache hits",
		time.Since(start).Seconds(), computed, hits)

	if cfg.SummaryCacheFile != "" {
		if err := state.Summaries.Save(cfg.SummaryCacheFile); err != nil {
			state.AddError("summary-cache", err)
			logger.Errorf("Could not persist summary cache: %v", err)
		} else {
			logger.Debugf("Persisted %d summaries to %s", state.Summaries.Len(), cfg.SummaryCacheFile)
		}
	}
	return result, nil
}

// analysisOrder returns the function ids in bottom-up call-graph order: callees before callers
// wherever the call graph permits, so that parallel workers find most summaries already cached.
// Cycles in the call graph collapse into one SCC and keep their conservative recursive fallback.
func analysisOrder(prog *ir.Program) []ir.FuncID {
	var all []ir.FuncID
	for _, fn := range prog.Functions {
		all = append(all, fn.ID)
	}
	callees := func(id ir.FuncID) []ir.FuncID {
		var out []ir.FuncID
		fn := prog.Func(id)
		for _, b := range fn.Blocks {
			for i := range b.Instrs {
				instr := &b.Instrs[i]
				if instr.Op != ir.Call {
					continue
				}
				if target := prog.FuncByName(instr.Callee); target.IsSome() && !funcutil.Contains(out, target.Value()) {
					out = append(out, target.Value())
				}
			}
		}
		return out
	}
	var order []ir.FuncID
	for _, scc := range graphutil.StronglyConnectedComponents(all, callees) {
		order = append(order, scc...)
	}
	return order
}

// TotalFindings sums the findings over all reports.
func (r AnalysisResult) TotalFindings() int {
	total := 0
	for _, report := range r.Reports {
		total += len(report.Findings)
	}
	return total
}
