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

// dropguard reports invalid deallocations (use-after-free, double-free) in function bodies dumped
// by a host compiler frontend.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dropguard/dropguard/analysis"
	"github.com/dropguard/dropguard/analysis/config"
	"github.com/dropguard/dropguard/analysis/dropflow"
	"github.com/dropguard/dropguard/internal/formatutil"
)

const usage = ` Find invalid deallocations in dumped function bodies.
Usage:
  dropguard [options] <cfg dump file(s)>
Examples:
  % dropguard -config config.yaml target.cfg.yaml
`

// Flags represents the parsed command line flags.
type Flags struct {
	configPath  string
	verbose     bool
	visitBudget int
	dumps       []string
}

// NewFlags returns the parsed flags from args.
func NewFlags(args []string) (Flags, error) {
	flagSet := flag.NewFlagSet("dropguard", flag.ContinueOnError)
	configPath := flagSet.String("config", "", "config file path for analysis")
	verbose := flagSet.Bool("v", false, "verbose: set the log level to debug")
	visitBudget := flagSet.Int("visit-budget", 0, "override the per-function visit budget in config")
	flagSet.Usage = func() {
		fmt.Fprint(flagSet.Output(), usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		return Flags{}, fmt.Errorf("failed to parse command dropguard with args %v: %v", args, err)
	}
	return Flags{
		configPath:  *configPath,
		verbose:     *verbose,
		visitBudget: *visitBudget,
		dumps:       flagSet.Args(),
	}, nil
}

// Run runs the deallocation-safety analysis with flags.
func Run(flags Flags) error {
	cfg := config.NewDefault()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	// Override config parameters with command-line parameters
	if flags.verbose {
		cfg.LogLevel = int(config.DebugLevel)
	}
	if flags.visitBudget > 0 {
		cfg.VisitBudget = flags.visitBudget
	}
	logger := config.NewLogGroup(cfg)
	logger.Infof(formatutil.Faint("Dropguard " + analysis.Version))

	prog, err := analysis.LoadProgram(logger, flags.dumps)
	if err != nil {
		return fmt.Errorf("could not load program: %v", err)
	}

	start := time.Now()
	result, err := dropflow.Analyze(cfg, logger, prog)
	if err != nil {
		return fmt.Errorf("analysis failed: %v", err)
	}
	logger.Infof("Analysis took %3.4f s", time.Since(start).Seconds())

	for _, report := range result.Reports {
		for _, finding := range report.Findings {
			fmt.Printf("%s of %s\n\t in %s at %s\n",
				formatutil.Red(finding.Kind.String()),
				formatutil.Bold(finding.NodePath),
				report.Name,
				finding.Span)
		}
		if !report.Complete {
			logger.Warnf("%s: %s", report.Name,
				formatutil.Yellow("analysis incomplete, visit budget exceeded"))
		}
		if cfg.ReportStats {
			logger.Debugf("%s: %d steps, %d paths, %d forks, %d cache hits", report.Name,
				report.Stats.Steps, report.Stats.PathsExplored, report.Stats.PathsForked,
				report.Stats.CacheHits)
		}
	}
	if n := result.TotalFindings(); n > 0 {
		logger.Infof("RESULT:\n\t\t%s", formatutil.Red(fmt.Sprintf("%d invalid deallocations found", n)))
		return fmt.Errorf("%d findings", n)
	}
	logger.Infof("RESULT:\n\t\t%s", formatutil.Green("No invalid deallocations detected ✓"))
	return nil
}

func main() {
	flags, err := NewFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if err := Run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
