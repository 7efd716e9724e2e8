package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/common"
	"github.com/joseph-ayodele/invoice-organizer/internal/entity"
	"github.com/joseph-ayodele/invoice-organizer/internal/ingest"
	"github.com/joseph-ayodele/invoice-organizer/internal/llm"
	"github.com/joseph-ayodele/invoice-organizer/internal/normalize"
	"github.com/joseph-ayodele/invoice-organizer/internal/ocr"
	"github.com/joseph-ayodele/invoice-organizer/internal/repository"
	"github.com/joseph-ayodele/invoice-organizer/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeText maps file base names to extracted text; a missing entry is an unreadable PDF.
type fakeText map[string]string

func (f fakeText) Extract(_ context.Context, path string) (ocr.ExtractionResult, error) {
	text, ok := f[filepath.Base(path)]
	if !ok {
		return ocr.ExtractionResult{}, common.NewAppError(common.CodeUnreadablePDF, "no text layer and OCR disabled", nil)
	}
	return ocr.ExtractionResult{Text: text, Pages: 1, Method: constants.MethodPDFText}, nil
}

// fakeModel answers by the first marker found in the prompt.
type fakeModel struct {
	mu      sync.Mutex
	answers map[string]string
	calls   int
}

func (m *fakeModel) Name() string  { return "fake" }
func (m *fakeModel) Model() string { return "fake-1" }

func (m *fakeModel) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	for marker, answer := range m.answers {
		if strings.Contains(req.User, marker) {
			return answer, nil
		}
	}
	return "", &llm.StatusError{Status: http.StatusServiceUnavailable}
}

type env struct {
	inbox string
	store *repository.Store
	model *fakeModel
	proc  *Processor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	inbox := filepath.Join(dir, "invoices")
	files := map[string]string{
		"acme.pdf":   "%PDF acme",
		"loom.pdf":   "%PDF loom",
		"scan.pdf":   "%PDF scan",
		"broken.pdf": "%PDF broken",
		"acme-2.pdf": "%PDF acme",
	}
	for name, content := range files {
		require.NoError(t, os.MkdirAll(inbox, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(inbox, name), []byte(content), 0o644))
	}

	acmeText := "Acme Corp\nInvoice Date: 2025-01-10\nJan 5, 2025\nTotal Due: $1,234.56"
	text := fakeText{
		"acme.pdf":   acmeText,
		"acme-2.pdf": acmeText,
		"loom.pdf":   "Loom, Inc.\nperiod 2025-02-01 to 2025-02-28\nTotal: 15.00",
		"broken.pdf": "BROKEN-MARKER nothing the model can read",
	}
	model := &fakeModel{answers: map[string]string{
		"Acme Corp": `{"date":"2025-01-10","sender":"Acme Corp","invoice_number":"A-1","amount":1234.56,"currency":"USD"}`,
		"Loom":      "```json\n{\"date\":null,\"sender\":\"Loom, Inc.\",\"amount\":\"15.00\",\"currency\":null}\n```",
	}}

	store, err := repository.OpenStore(filepath.Join(dir, "invoices_metadata.json"), quiet)
	require.NoError(t, err)

	fields := llm.NewExtractor(model, retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		llm.WithLogger(quiet))
	norm := normalize.New(normalize.Options{DefaultCurrency: "USD", Dates: normalize.DatePolicy{PreferLabeled: true}})
	proc := NewProcessor(text, fields, norm, ProcessorConfig{DefaultCurrency: "USD", Threshold: 0.7}, quiet, nil)
	return &env{inbox: inbox, store: store, model: model, proc: proc}
}

func (e *env) run(t *testing.T, ctx context.Context, cfg RunnerConfig) RunReport {
	t.Helper()
	candidates, stats, err := ingest.Scan(ctx, e.inbox, quiet)
	require.NoError(t, err)
	report, err := NewRunner(e.proc, e.store, cfg, quiet).Run(ctx, candidates)
	require.NoError(t, err)
	report.ApplyScan(stats)
	return report
}

func TestRunner_EndToEnd(t *testing.T) {
	e := newEnv(t)
	report := e.run(t, context.Background(), RunnerConfig{Workers: 3, FileTimeout: 5 * time.Second})

	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 1, report.Deduplicated)
	assert.Equal(t, 4, report.Processed)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 1, report.Flagged)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, constants.StatusExtractionFailed, report.Failures[0].Status, "broken.pdf sorts first")
	assert.Equal(t, constants.StatusUnreadablePDF, report.Failures[1].Status)
	assert.Contains(t, report.Line(), "1 succeeded, 1 flagged for review, 2 failed")
	assert.NotEmpty(t, report.RunID)

	all := e.store.All()
	require.Len(t, all, 4)
	byPath := map[string]int{}
	for i, r := range all {
		byPath[filepath.Base(r.SourcePath)] = i
	}

	acme := all[byPath["acme-2.pdf"]]
	assert.Equal(t, constants.StatusExtracted, acme.Status)
	assert.Equal(t, "acme_corp", acme.Sender)
	assert.Equal(t, "2025-01-10", acme.IssueDate.String())
	assert.Equal(t, "1234.56", acme.Amount.String())
	assert.Equal(t, "USD", acme.Currency)
	assert.Equal(t, 1.0, acme.Confidence)
	assert.Equal(t, "fake:fake-1:"+llm.PromptVersion, acme.Model)

	loom := all[byPath["loom.pdf"]]
	assert.Equal(t, "loom", loom.Sender)
	assert.ElementsMatch(t, []constants.Flag{constants.FlagAmbiguousDate, constants.FlagDefaultedCurrency}, loom.Flags)
	assert.InDelta(t, 0.6, loom.Confidence, 1e-9)

	scan := all[byPath["scan.pdf"]]
	assert.Equal(t, constants.StatusUnreadablePDF, scan.Status)
	assert.Nil(t, scan.Amount)

	_, err := os.Stat(e.store.Path())
	assert.NoError(t, err, "store is saved at the end of the run")
}

func TestRunner_SecondRunIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.run(t, context.Background(), RunnerConfig{Workers: 2})
	first := e.store.All()
	calls := e.model.calls

	report := e.run(t, context.Background(), RunnerConfig{Workers: 2})
	assert.Equal(t, 2, report.Skipped, "extracted records are not reprocessed")
	assert.Equal(t, 2, report.Processed, "failed records are retried")

	again := e.run(t, context.Background(), RunnerConfig{Workers: 2, Reprocess: true})
	assert.Equal(t, 4, again.Processed)
	assert.Greater(t, e.model.calls, calls)

	second := e.store.All()
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Sender, second[i].Sender)
		assert.Equal(t, first[i].IssueDate, second[i].IssueDate)
		assert.Equal(t, first[i].Amount, second[i].Amount)
		assert.Equal(t, first[i].Confidence, second[i].Confidence)
	}
}

func TestRunner_CancelledBeforeStart(t *testing.T) {
	e := newEnv(t)
	candidates, _, err := ingest.Scan(context.Background(), e.inbox, quiet)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := NewRunner(e.proc, e.store, RunnerConfig{Workers: 2}, quiet).Run(ctx, candidates)
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
	assert.Equal(t, 0, report.Processed)
	assert.Contains(t, report.Line(), "interrupted")
}

func TestProcessor_ExtractionFailureIsCaptured(t *testing.T) {
	e := newEnv(t)
	rec := e.proc.Process(context.Background(), ingest.Candidate{ID: "x", Path: filepath.Join(e.inbox, "broken.pdf"), Filename: "broken.pdf"})
	assert.Equal(t, constants.StatusExtractionFailed, rec.Status)
	assert.True(t, strings.HasPrefix(rec.Error, common.CodeExtractionFailed))
	assert.Contains(t, rec.Error, "3 attempt(s)")
	assert.Equal(t, "failed", e.proc.Outcome(&rec))
}

// cancellingProcessor cancels the run from inside the first file it sees.
type cancellingProcessor struct {
	cancel  context.CancelFunc
	mu      sync.Mutex
	started int
}

func (p *cancellingProcessor) Process(ctx context.Context, c ingest.Candidate) entity.InvoiceRecord {
	p.mu.Lock()
	p.started++
	first := p.started == 1
	p.mu.Unlock()
	if first {
		p.cancel()
	}
	return entity.InvoiceRecord{ID: c.ID, SourcePath: c.Path, Status: constants.StatusExtracted, Confidence: 1}
}

func (p *cancellingProcessor) Outcome(*entity.InvoiceRecord) string { return "accepted" }

func TestRunner_CancelMidRunStopsQueuedFiles(t *testing.T) {
	store, err := repository.OpenStore(filepath.Join(t.TempDir(), "invoices_metadata.json"), quiet)
	require.NoError(t, err)

	candidates := make([]ingest.Candidate, 20)
	for i := range candidates {
		id := fmt.Sprintf("%064d", i)
		candidates[i] = ingest.Candidate{ID: id, Path: fmt.Sprintf("/inbox/%02d.pdf", i)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := &cancellingProcessor{cancel: cancel}
	report, err := NewRunner(proc, store, RunnerConfig{Workers: 1, QueueSize: 256}, quiet).Run(ctx, candidates)
	require.NoError(t, err)

	assert.Equal(t, 1, proc.started)
	assert.True(t, report.Interrupted)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 19, report.NotStarted)
	assert.Equal(t, 1, store.Len(), "the file that started is still recorded")
	assert.Contains(t, report.Line(), "19 not started")
}
