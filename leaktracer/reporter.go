// Copyright 2025 The Leaktracer Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package leaktracer

import (
	"fmt"
	"io"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
)

// Reporter is the interface that leaktracer clients implement to consume
// per-symbol allocation stats.
type Reporter interface {
	// Report receives a table snapshot with the host process metadata.
	Report(stats []SymbolStats, meta ReportMeta) error
}

// SymbolStats is one row of a symbol table snapshot.
type SymbolStats struct {
	// Name is the attributed function name.
	Name string
	// Allocated is the gross number of bytes allocated.
	Allocated uint64
	// Count is the number of allocation calls.
	Count uint64
}

// ReportMeta describes the host process a snapshot was taken from.
type ReportMeta struct {
	// PID is the process ID.
	PID int
	// Command is the base name of the executable.
	Command string
	// ExecutablePath is the full path to the executable.
	ExecutablePath string
	// GoVersion is the Go version the executable was built with, if any.
	GoVersion string
	// BuildID identifies the executable build.
	BuildID string
}

// WriterReporter writes a column-aligned table to W.
type WriterReporter struct {
	W io.Writer
}

func (r *WriterReporter) Report(stats []SymbolStats, meta ReportMeta) error {
	tw := tabwriter.NewWriter(r.W, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "SYMBOL\tBYTES\tCALLS\n")
	for _, st := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", st.Name, st.Allocated, st.Count)
	}
	return tw.Flush()
}

// LogReporter emits one log entry per symbol.
type LogReporter struct{}

func (LogReporter) Report(stats []SymbolStats, meta ReportMeta) error {
	for _, st := range stats {
		log.WithFields(log.Fields{
			"symbol":    st.Name,
			"allocated": st.Allocated,
			"count":     st.Count,
			"pid":       meta.PID,
		}).Info("allocation stats")
	}
	return nil
}
