package export

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/entity"
	"github.com/joseph-ayodele/invoice-organizer/internal/pipeline"
	"github.com/joseph-ayodele/invoice-organizer/internal/summary"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newService() *Service {
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sampleRecords() []entity.InvoiceRecord {
	d := func(y int, m time.Month, day int) *civil.Date { return &civil.Date{Year: y, Month: m, Day: day} }
	amt := func(s string) *decimal.Decimal { v := decimal.RequireFromString(s); return &v }
	return []entity.InvoiceRecord{
		{ID: "a", SourcePath: "/in/a.pdf", Status: constants.StatusExtracted, Sender: "acme", IssueDate: d(2025, 1, 10), Amount: amt("100.50"), Currency: "USD", Confidence: 1},
		{ID: "b", SourcePath: "/in/b.pdf", Status: constants.StatusExtracted, Sender: "acme", IssueDate: d(2025, 2, 3), Amount: amt("20"), Currency: "EUR", Confidence: 0.6,
			Flags: []constants.Flag{constants.FlagAmbiguousDate, constants.FlagDefaultedCurrency}},
		{ID: "c", SourcePath: "/in/c.pdf", Status: constants.StatusUnreadablePDF, Error: "UNREADABLE_PDF: no text"},
	}
}

func TestWriteReports(t *testing.T) {
	dir := t.TempDir()
	records := sampleRecords()
	sum := summary.Summarize(records, 0.7)
	run := pipeline.RunReport{RunID: "run-1", Processed: 3, Accepted: 1, Flagged: 1, Failed: 1}

	paths, err := newService().WriteReports(dir, sum, &run, now)
	require.NoError(t, err)
	require.Len(t, paths, 5)

	read := func(name string) map[string]any {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		var doc map[string]any
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Equal(t, "2025-03-01T12:00:00Z", doc["generated_at"], name)
		return doc
	}

	senders := read(constants.ReportBySender)
	assert.EqualValues(t, 1, senders["total_senders"])
	list := senders["senders"].([]any)
	require.Len(t, list, 1)
	acme := list[0].(map[string]any)
	assert.Equal(t, "acme", acme["key"])
	assert.EqualValues(t, 2, acme["record_count"])
	assert.Equal(t, map[string]any{"USD": "100.5", "EUR": "20"}, acme["total_amount_by_currency"])

	months := read(constants.ReportByMonth)
	assert.EqualValues(t, 2, months["total_months"])

	review := read(constants.ReportReviewQueue)
	assert.EqualValues(t, 2, review["total_review_items"])

	errs := read(constants.ReportErrors)
	assert.EqualValues(t, 1, errs["total_errors"])

	runDoc := read(constants.ReportRun)
	assert.Equal(t, "run-1", runDoc["run_id"])
	assert.Equal(t, []any{}, runDoc["failures"])
}

func TestWriteReports_WithoutRun(t *testing.T) {
	dir := t.TempDir()
	paths, err := newService().WriteReports(dir, summary.Summarize(nil, 0.7), nil, now)
	require.NoError(t, err)
	assert.Len(t, paths, 4)
	assert.NoFileExists(t, filepath.Join(dir, constants.ReportRun))
}

func TestDocument_NilItems(t *testing.T) {
	data, err := Document[summary.ErrorItem]("errors", nil, now)
	require.NoError(t, err)
	assert.JSONEq(t, `{"generated_at":"2025-03-01T12:00:00Z","total_errors":0,"errors":[]}`, string(data))
}

func TestBuildWorkbook(t *testing.T) {
	records := sampleRecords()
	sum := summary.Summarize(records, 0.7)

	buf, err := newService().BuildWorkbook(records, sum)
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"Invoices", "By Sender", "By Month", "Review Queue"}, f.GetSheetList())

	rows, err := f.GetRows("Invoices")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Issue Date", rows[0][0])
	assert.Equal(t, "2025-01-10", rows[1][0])
	assert.Equal(t, "ambiguous_date, defaulted_currency", rows[2][6])
	assert.Equal(t, "/in/c.pdf", rows[3][8], "undated records sort last")

	bySender, err := f.GetRows("By Sender")
	require.NoError(t, err)
	require.Len(t, bySender, 3, "one row per sender and currency")
	assert.Equal(t, []string{"acme", "2", "EUR"}, bySender[1][:3])
	assert.Equal(t, []string{"acme", "2", "USD"}, bySender[2][:3])

	review, err := f.GetRows("Review Queue")
	require.NoError(t, err)
	require.Len(t, review, 3)
	assert.Equal(t, "unreadable_pdf", review[1][1], "lowest confidence first")
}
