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
	"sync"

	"github.com/dropguard/dropguard/analysis/config"
	"github.com/dropguard/dropguard/analysis/ir"
)

// AnalyzerState holds the information shared by every function analysis of one run: the program,
// the configuration, the loggers and the summary cache. Per-function node/block state never lives
// here; it is owned by the traversal that created it.
type AnalyzerState struct {
	// The logger used during the analysis (can be used to control output)
	Logger *config.LogGroup

	// The configuration for the analysis
	Config *config.Config

	// The program to be analyzed, as loaded from the host frontend's CFG dumps
	Program *ir.Program

	// Summaries is the interprocedural cache, shared by all function analyses
	Summaries *SummaryCache

	// Stored errors, keyed by the analysis step that produced them
	errors     map[string][]error
	errorMutex sync.Mutex
}

// NewAnalyzerState returns a properly initialized analyzer state. When a summary cache file is
// configured, the cache is warmed from it before any analysis runs.
func NewAnalyzerState(prog *ir.Program, logger *config.LogGroup, cfg *config.Config) (*AnalyzerState, error) {
	state := &AnalyzerState{
		Logger:    logger,
		Config:    cfg,
		Program:   prog,
		Summaries: NewSummaryCache(),
		errors:    map[string][]error{},
	}
	if cfg.SummaryCacheFile != "" {
		n, err := state.Summaries.Warm(cfg.SummaryCacheFile, prog)
		if err != nil {
			return nil, err
		}
		logger.Infof("Warmed %d function summaries from %s", n, cfg.SummaryCacheFile)
	}
	return state, nil
}

// AddError adds an error with key and error e to the state.
func (s *AnalyzerState) AddError(key string, e error) {
	s.errorMutex.Lock()
	defer s.errorMutex.Unlock()
	if e != nil {
		s.errors[key] = append(s.errors[key], e)
	}
}

// CheckError checks whether there is an error in the state, and if there is, returns the first
// key's errors it encounters and deletes them. The slice returned contains all the errors
// associated with one single error key (as used in [*AnalyzerState.AddError]).
func (s *AnalyzerState) CheckError() []error {
	s.errorMutex.Lock()
	defer s.errorMutex.Unlock()
	for e, errs := range s.errors {
		delete(s.errors, e)
		return errs
	}
	return nil
}

// HasErrors returns true if the state has an error. Unlike [*AnalyzerState.CheckError], this is
// non-destructive.
func (s *AnalyzerState) HasErrors() bool {
	s.errorMutex.Lock()
	defer s.errorMutex.Unlock()
	for _, errs := range s.errors {
		if len(errs) > 0 {
			return true
		}
	}
	return false
}
