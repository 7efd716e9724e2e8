// Package export writes the summary as standalone JSON documents and as an
// XLSX workbook.
package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/fsutil"
	"github.com/joseph-ayodele/invoice-organizer/internal/pipeline"
	"github.com/joseph-ayodele/invoice-organizer/internal/summary"
)

// Service produces report files from a summary.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

type document struct {
	name string
	data func() ([]byte, error)
}

// WriteReports writes the by-sender, by-month, review queue and errors
// documents into dir, plus the run document when run is not nil, and returns
// their paths. Each write is atomic, so a reader never sees a half-written report.
func (s *Service) WriteReports(dir string, sum summary.Summary, run *pipeline.RunReport, now time.Time) ([]string, error) {
	docs := []document{
		{constants.ReportBySender, func() ([]byte, error) { return Document("senders", sum.BySender, now) }},
		{constants.ReportByMonth, func() ([]byte, error) { return Document("months", sum.ByMonth, now) }},
		{constants.ReportReviewQueue, func() ([]byte, error) { return Document("review_items", sum.ReviewQueue, now) }},
		{constants.ReportErrors, func() ([]byte, error) { return Document("errors", sum.Errors, now) }},
	}
	if run != nil {
		docs = append(docs, document{constants.ReportRun, func() ([]byte, error) { return runDocument(sum, *run, now) }})
	}

	paths := make([]string, 0, len(docs))
	for _, d := range docs {
		data, err := d.data()
		if err != nil {
			return paths, fmt.Errorf("encode %s: %w", d.name, err)
		}
		path := filepath.Join(dir, d.name)
		if err := fsutil.WriteFileAtomic(path, data); err != nil {
			return paths, fmt.Errorf("write %s: %w", d.name, err)
		}
		paths = append(paths, path)
	}

	s.logger.Info("export.reports.ok",
		"dir", dir,
		"senders", len(sum.BySender),
		"months", len(sum.ByMonth),
		"review", len(sum.ReviewQueue),
		"errors", len(sum.Errors),
	)
	return paths, nil
}

// Document encodes items as {"generated_at", "total_<kind>", "<kind>"}.
// A nil slice is written as an empty list.
func Document[T any](kind string, items []T, now time.Time) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	doc := map[string]any{
		"generated_at":  now.UTC().Format(time.RFC3339),
		"total_" + kind: len(items),
		kind:            items,
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

type runDoc struct {
	GeneratedAt string `json:"generated_at"`
	pipeline.RunReport
	Malformed int `json:"malformed"`
}

func runDocument(sum summary.Summary, run pipeline.RunReport, now time.Time) ([]byte, error) {
	if run.Failures == nil {
		run.Failures = []pipeline.Failure{}
	}
	if run.FlaggedItems == nil {
		run.FlaggedItems = []pipeline.Flagged{}
	}
	out, err := json.MarshalIndent(runDoc{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		RunReport:   run,
		Malformed:   sum.Malformed,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
