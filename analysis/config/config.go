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

package config

import (
	"fmt"
	"os"
	"path"
	"regexp"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultVisitBudget is the default number of traversal steps the path traversal engine may spend on
	// a single function before its analysis is aborted and the partial result is flagged incomplete.
	DefaultVisitBudget = 10000
)

// Config holds the options of the deallocation-safety analysis.
// If some field is not defined in the config file, it will be empty/zero in the struct.
// private fields are not populated from a yaml file, but computed after initialization
type Config struct {
	Options `yaml:",inline"`

	sourceFile string

	// if the TargetFilter is specified
	targetFilterRegex *regexp.Regexp
}

// Options are the user-tunable options of the analysis, all settable from the yaml config file.
type Options struct {
	// VisitBudget bounds the number of traversal steps spent on one function. Exceeding the budget aborts
	// that function's traversal and flags its result incomplete. If VisitBudget <= 0, the default of
	// DefaultVisitBudget is used.
	VisitBudget int `yaml:"visit-budget"`

	// TargetFilter is a regular expression filtering the functions to analyze by name. If empty, every
	// function with a body is analyzed.
	TargetFilter string `yaml:"target-filter"`

	// FieldSensitive controls whether aggregate locals are flattened into one tracked node per field.
	// When false, an aggregate is tracked as a single node. Default is true.
	FieldSensitive bool `yaml:"field-sensitive"`

	// SummaryCacheFile is an optional path to a file where function summaries are persisted between runs.
	// When set, the summary cache is warmed from this file before the analysis and saved back after.
	SummaryCacheFile string `yaml:"summary-cache-file"`

	// MaxAlarms sets a limit for the number of alarms reported per function. If MaxAlarms > 0, then at
	// most MaxAlarms will be reported. Otherwise, if MaxAlarms <= 0, it is ignored.
	MaxAlarms int `yaml:"max-alarms"`

	// ReportStats specifies whether per-function traversal statistics (steps, paths, cache hits) are
	// reported with the findings.
	ReportStats bool `yaml:"report-stats"`

	// Loglevel controls the verbosity of the tool
	LogLevel int `yaml:"log-level"`

	// Suppress warnings
	SilenceWarn bool `yaml:"silence-warn"`
}

// NewDefault returns an empty default config.
func NewDefault() *Config {
	return &Config{
		sourceFile: "",
		Options: Options{
			VisitBudget:      DefaultVisitBudget,
			TargetFilter:     "",
			FieldSensitive:   true,
			SummaryCacheFile: "",
			MaxAlarms:        0,
			ReportStats:      false,
			LogLevel:         int(InfoLevel),
			SilenceWarn:      false,
		},
	}
}

// Load reads a configuration from a file
func Load(filename string) (*Config, error) {
	cfg := NewDefault()
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	// FieldSensitive defaults to true, which yaml zero-values cannot express; decode into a raw map
	// first to detect whether the user set it at all.
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(b, raw); err != nil {
		return nil, fmt.Errorf("could not unmarshal config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config file: %w", err)
	}
	if _, userSet := raw["field-sensitive"]; !userSet {
		cfg.FieldSensitive = true
	}

	cfg.sourceFile = filename

	// If logLevel has not been specified (i.e. it is 0) set the default to Info
	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(InfoLevel)
	}

	// Set the VisitBudget default if it is <= 0
	if cfg.VisitBudget <= 0 {
		cfg.VisitBudget = DefaultVisitBudget
	}

	if cfg.TargetFilter != "" {
		r, err := regexp.Compile(cfg.TargetFilter)
		if err != nil {
			return nil, fmt.Errorf("could not compile target-filter: %w", err)
		}
		cfg.targetFilterRegex = r
	}

	return cfg, nil
}

// RelPath returns filename path relative to the config source file
func (c Config) RelPath(filename string) string {
	return path.Join(path.Dir(c.sourceFile), filename)
}

// MatchTargetFilter returns true if the function name matches the TargetFilter regex, if any is specified
func (c Config) MatchTargetFilter(name string) bool {
	if c.targetFilterRegex != nil {
		return c.targetFilterRegex.MatchString(name)
	}
	return true
}
