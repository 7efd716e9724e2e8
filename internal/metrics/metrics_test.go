package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counts(t *testing.T) {
	m := New()
	m.FileProcessed("accepted", 200*time.Millisecond)
	m.FileProcessed("accepted", time.Second)
	m.FileProcessed("failed", time.Second)
	m.LLMAttempts("openai", "ok", 1)
	m.LLMAttempts("openai", "error", 3)
	m.OrganizerFile("written")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.processed.WithLabelValues("accepted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.llmAttempts.WithLabelValues("openai", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.organizer.WithLabelValues("written")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.FileProcessed("accepted", time.Second)
	m.LLMAttempts("openai", "ok", 1)
	m.OrganizerFile("written")
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.OrganizerFile("reused")
	path := filepath.Join(t.TempDir(), "invoices.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `organizer_files_total{result="reused"} 1`)
}
