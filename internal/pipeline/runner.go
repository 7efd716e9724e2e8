package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/async"
	"github.com/joseph-ayodele/invoice-organizer/internal/common"
	"github.com/joseph-ayodele/invoice-organizer/internal/entity"
	"github.com/joseph-ayodele/invoice-organizer/internal/ingest"
	"github.com/joseph-ayodele/invoice-organizer/internal/repository"
)

// Store is the part of the metadata store the runner needs.
type Store interface {
	Get(id string) (entity.InvoiceRecord, error)
	Upsert(rec entity.InvoiceRecord) error
	Save() error
	Recovery() *repository.Recovery
}

// FileProcessor turns a candidate into a record.
type FileProcessor interface {
	Process(ctx context.Context, c ingest.Candidate) entity.InvoiceRecord
	Outcome(rec *entity.InvoiceRecord) string
}

type RunnerConfig struct {
	Workers     int
	FileTimeout time.Duration
	QueueSize   int
	Reprocess   bool // process files whose record is already extracted
}

type Runner struct {
	proc   FileProcessor
	store  Store
	cfg    RunnerConfig
	logger *slog.Logger
}

func NewRunner(proc FileProcessor, store Store, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{proc: proc, store: store, cfg: cfg, logger: logger}
}

// Run processes candidates on a bounded pool, upserts every record and saves the
// store. Cancelling ctx stops new files from starting; files already running
// finish or hit their own timeout. The returned error is a store save failure.
func (r *Runner) Run(ctx context.Context, candidates []ingest.Candidate) (RunReport, error) {
	report := RunReport{
		RunID:         uuid.NewString(),
		StartedAt:     time.Now().UTC(),
		Failures:      []Failure{},
		FlaggedItems:  []Flagged{},
		StoreRecovery: r.store.Recovery(),
	}
	ctx = common.WithRunID(ctx, report.RunID)
	log := r.logger.With("run_id", report.RunID)
	log.Info("pipeline.run.start", "candidates", len(candidates), "workers", r.cfg.Workers)

	var mu sync.Mutex
	record := func(rec entity.InvoiceRecord) {
		if err := r.store.Upsert(rec); err != nil {
			log.Error("pipeline.upsert_failed", "id", rec.ID, "error", err)
		}
		mu.Lock()
		defer mu.Unlock()
		report.Processed++
		switch r.proc.Outcome(&rec) {
		case "failed":
			report.Failed++
			report.Failures = append(report.Failures, Failure{ID: rec.ID, SourcePath: rec.SourcePath, Status: rec.Status, Reason: rec.Error})
		case "flagged":
			report.Flagged++
			report.FlaggedItems = append(report.FlaggedItems, Flagged{ID: rec.ID, SourcePath: rec.SourcePath, Confidence: rec.Confidence, Flags: rec.Flags})
		default:
			report.Accepted++
		}
	}

	pool := async.NewPool(ctx, log,
		async.WithWorkers(r.cfg.Workers),
		async.WithQueueSize(r.cfg.QueueSize),
		async.WithProcessTimeout(r.cfg.FileTimeout),
	)

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		if !r.cfg.Reprocess && r.unchanged(c) {
			report.Skipped++
			log.Debug("pipeline.file.unchanged", "id", c.ID, "path", c.Path)
			continue
		}
		err := pool.Enqueue(ctx, async.Job{
			ID:   c.ID,
			Path: c.Path,
			Run: func(jctx context.Context) error {
				record(r.proc.Process(jctx, c))
				return nil
			},
		})
		if err != nil {
			break
		}
	}
	pool.Shutdown(context.Background())

	if ctx.Err() != nil {
		report.Interrupted = true
		report.NotStarted = len(candidates) - report.Skipped - report.Processed
		log.Warn("pipeline.run.interrupted", "processed", report.Processed, "not_started", report.NotStarted,
			"dropped_from_queue", pool.Dropped(), "candidates", len(candidates))
	}

	report.Duration = time.Since(report.StartedAt)
	report.DurationMS = report.Duration.Milliseconds()
	report.sortItems()

	if err := r.store.Save(); err != nil {
		return report, err
	}
	log.Info("pipeline.run.done",
		"processed", report.Processed, "skipped", report.Skipped,
		"accepted", report.Accepted, "flagged", report.Flagged, "failed", report.Failed,
		"duration_ms", report.DurationMS)
	return report, nil
}

func (r *Runner) unchanged(c ingest.Candidate) bool {
	prev, err := r.store.Get(c.ID)
	if err != nil {
		return false
	}
	return prev.Status == constants.StatusExtracted && prev.SourcePath == c.Path
}
