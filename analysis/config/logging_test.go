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
	"bytes"
	"strings"
	"testing"
)

func TestLogGroupLevels(t *testing.T) {
	cfg := NewDefault()
	cfg.LogLevel = int(InfoLevel)
	l := NewLogGroup(cfg)
	var buf bytes.Buffer
	l.SetAllOutput(&buf)
	l.SetAllFlags(0)

	l.Debugf("hidden")
	l.Infof("shown")
	l.Errorf("also shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug output leaked at info level: %q", out)
	}
	if !strings.Contains(out, "[INFO] shown") || !strings.Contains(out, "[ERROR] also shown") {
		t.Errorf("expected info and error output, got %q", out)
	}
}

func TestLogGroupSilenceWarn(t *testing.T) {
	cfg := NewDefault()
	cfg.SilenceWarn = true
	l := NewLogGroup(cfg)
	var buf bytes.Buffer
	// SilenceWarn wires the warn logger to io.Discard at construction; redirecting the others
	// must leave it silent.
	l.err.SetOutput(&buf)
	l.Warnf("quiet")
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
}
