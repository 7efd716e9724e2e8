package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/common"
	"github.com/joseph-ayodele/invoice-organizer/internal/entity"
	"github.com/joseph-ayodele/invoice-organizer/internal/ingest"
	"github.com/joseph-ayodele/invoice-organizer/internal/llm"
	"github.com/joseph-ayodele/invoice-organizer/internal/metrics"
	"github.com/joseph-ayodele/invoice-organizer/internal/normalize"
	"github.com/joseph-ayodele/invoice-organizer/internal/ocr"
)

// TextExtractor is the PDF text stage.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (ocr.ExtractionResult, error)
}

type ProcessorConfig struct {
	DefaultCurrency string
	MaxTextChars    int
	Threshold       float64
}

// Processor coordinates text extraction, then model field extraction, then normalization.
type Processor struct {
	text    TextExtractor
	fields  llm.FieldExtractor
	norm    *normalize.Normalizer
	cfg     ProcessorConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewProcessor(text TextExtractor, fields llm.FieldExtractor, norm *normalize.Normalizer, cfg ProcessorConfig, logger *slog.Logger, m *metrics.Metrics) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.7
	}
	return &Processor{text: text, fields: fields, norm: norm, cfg: cfg, logger: logger, metrics: m}
}

// Process turns one candidate into a record. It never fails: text and model
// failures are captured in the record status and error.
func (p *Processor) Process(ctx context.Context, c ingest.Candidate) entity.InvoiceRecord {
	start := time.Now()
	ctx = common.WithRecordID(ctx, c.ID)
	log := p.logger.With("id", c.ID, "path", c.Path, "run_id", common.RunIDFromContext(ctx))

	rec := entity.InvoiceRecord{
		ID:         c.ID,
		SourcePath: c.Path,
		Filename:   c.Filename,
	}

	text, err := p.text.Extract(ctx, c.Path)
	if err != nil {
		rec.Status = constants.StatusUnreadablePDF
		rec.Error = err.Error()
		p.finish(log, &rec, start)
		return rec
	}
	rec.TextMethod = text.Method
	log.Debug("pipeline.text.ok", "method", text.Method, "pages", text.Pages, "quality", text.TextQuality)

	raw, _, err := p.fields.ExtractFields(ctx, llm.ExtractRequest{
		Text:            text.Text,
		FilenameHint:    c.Filename,
		DefaultCurrency: p.cfg.DefaultCurrency,
		MaxTextChars:    p.cfg.MaxTextChars,
		ContentID:       c.ID,
	})
	rec.Model = p.fields.Key()
	if err != nil {
		rec.Status = constants.StatusExtractionFailed
		rec.Error = err.Error()
		p.finish(log, &rec, start)
		return rec
	}

	n := p.norm.Apply(raw, text.Text)
	rec.Status = constants.StatusExtracted
	rec.Sender = n.Sender
	rec.SenderRaw = n.SenderRaw
	rec.InvoiceNumber = n.InvoiceNumber
	rec.IssueDate = n.IssueDate
	rec.Amount = n.Amount
	rec.Currency = n.Currency
	rec.Flags = n.Flags
	rec.Confidence = n.Confidence
	p.finish(log, &rec, start)
	return rec
}

// Outcome classifies a record as accepted, flagged or failed.
func (p *Processor) Outcome(rec *entity.InvoiceRecord) string {
	switch {
	case rec.Status.Failed():
		return "failed"
	case rec.Confidence < p.cfg.Threshold:
		return "flagged"
	default:
		return "accepted"
	}
}

func (p *Processor) finish(log *slog.Logger, rec *entity.InvoiceRecord, start time.Time) {
	took := time.Since(start)
	outcome := p.Outcome(rec)
	p.metrics.FileProcessed(outcome, took)
	if outcome == "failed" {
		log.Error("pipeline.file.failed", "status", rec.Status, "error", rec.Error, "duration_ms", took.Milliseconds())
		return
	}
	log.Info("pipeline.file.done",
		"outcome", outcome,
		"sender", rec.Sender,
		"confidence", rec.Confidence,
		"flags", rec.Flags,
		"duration_ms", took.Milliseconds(),
	)
}
