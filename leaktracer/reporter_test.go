package leaktracer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReporter(t *testing.T) {
	var buf bytes.Buffer
	r := &WriterReporter{W: &buf}

	err := r.Report([]SymbolStats{
		{Name: "app.load", Allocated: 60, Count: 3},
		{Name: "app.cache", Allocated: 4096, Count: 1},
	}, ReportMeta{PID: 42})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "SYMBOL")
	require.Contains(t, out, "app.load")
	require.Contains(t, out, "4096")
}

func TestWriterReporterEmpty(t *testing.T) {
	var buf bytes.Buffer
	r := &WriterReporter{W: &buf}

	require.NoError(t, r.Report(nil, ReportMeta{}))
	require.Contains(t, buf.String(), "SYMBOL")
}
