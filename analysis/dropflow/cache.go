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
	"os"
	"sort"
	"sync"

	"github.com/dropguard/dropguard/analysis/ir"
	"github.com/vmihailenco/msgpack/v5"
)

// SummaryCache memoizes the ReturnResults of analyzed functions across all function analyses. It
// is the only state shared between the per-function analysis tasks, so it supports concurrent
// reads and writes; entries are write-once: a second insert for the same function is a no-op,
// which makes a race to insert the same key harmless since summaries are deterministic.
type SummaryCache struct {
	mu      sync.Mutex
	entries map[ir.FuncID]*ReturnResults

	// population/consultation counters, readable through Stats
	computed int
	hits     int
}

// NewSummaryCache returns an empty summary cache.
func NewSummaryCache() *SummaryCache {
	return &SummaryCache{entries: map[ir.FuncID]*ReturnResults{}}
}

// Lookup returns the cached summary of the function, if any, and counts a hit.
func (c *SummaryCache) Lookup(id ir.FuncID) (*ReturnResults, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rr, ok := c.entries[id]
	if ok {
		c.hits++
	}
	return rr, ok
}

// Insert stores the summary for the function unless one is already present. Returns true when the
// entry was stored.
func (c *SummaryCache) Insert(id ir.FuncID, rr *ReturnResults) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[id]; ok {
		return false
	}
	c.entries[id] = rr
	c.computed++
	return true
}

// Len returns the number of cached summaries
func (c *SummaryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns how many summaries were computed and how many lookups hit the cache.
func (c *SummaryCache) Stats() (computed int, hits int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.computed, c.hits
}

// savedSummary is the persisted form of one cache entry. Entries are keyed by function name plus
// body fingerprint, since function ids are only stable for identical inputs.
type savedSummary struct {
	Name        string
	Fingerprint uint64
	Results     ReturnResults
}

// cacheFile is the msgpack document persisted by Save.
type cacheFile struct {
	Entries []savedSummary
}

// Save persists the cache to filename with msgpack, so a later run over the same program can skip
// re-summarization. Incomplete summaries are not persisted: they depend on the visit budget that
// truncated them, not only on the body, so a later run under a different budget must recompute
// them.
func (c *SummaryCache) Save(filename string) error {
	c.mu.Lock()
	var doc cacheFile
	for _, rr := range c.entries {
		if !rr.Complete {
			continue
		}
		doc.Entries = append(doc.Entries, savedSummary{Name: rr.Name, Fingerprint: rr.Fingerprint, Results: *rr})
	}
	c.mu.Unlock()
	sort.Slice(doc.Entries, func(i, j int) bool { return doc.Entries[i].Name < doc.Entries[j].Name })

	b, err := msgpack.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("could not encode summary cache: %w", err)
	}
	if err := os.WriteFile(filename, b, 0600); err != nil {
		return fmt.Errorf("could not write summary cache: %w", err)
	}
	return nil
}

// Warm loads persisted summaries from filename and installs the entries whose fingerprint still
// matches a function of prog. Returns the number of entries installed. A missing file is not an
// error: the cache simply starts cold.
func (c *SummaryCache) Warm(filename string, prog *ir.Program) (int, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("could not read summary cache: %w", err)
	}
	var doc cacheFile
	if err := msgpack.Unmarshal(b, &doc); err != nil {
		return 0, fmt.Errorf("could not decode summary cache: %w", err)
	}
	installed := 0
	for i := range doc.Entries {
		entry := &doc.Entries[i]
		if !entry.Results.Complete {
			continue
		}
		id := prog.FuncByName(entry.Name)
		if id.IsNone() {
			continue
		}
		fn := prog.Func(id.Value())
		if Fingerprint(fn) != entry.Fingerprint {
			continue
		}
		rr := entry.Results
		rr.Func = fn.ID
		if c.Insert(fn.ID, &rr) {
			installed++
		}
	}
	return installed, nil
}
