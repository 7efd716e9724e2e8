// Package organize materializes extracted invoices into the by_date and
// by_sender trees under a single output root.
package organize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/common"
	"github.com/joseph-ayodele/invoice-organizer/internal/entity"
	"github.com/joseph-ayodele/invoice-organizer/internal/fsutil"
	"github.com/joseph-ayodele/invoice-organizer/internal/keylock"
	"github.com/joseph-ayodele/invoice-organizer/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// maxSuffix bounds the collision counter for one destination.
const maxSuffix = 1000

// Store is the part of the metadata store the organizer reads and writes.
type Store interface {
	All() []entity.InvoiceRecord
	SetOrganizedPaths(id string, paths entity.OrganizedPaths) error
}

// Stats counts records (Eligible, Skipped, Failed) and destination files (Written, Reused, Conflicts).
type Stats struct {
	Eligible  int      `json:"eligible"`
	Skipped   int      `json:"skipped"`
	Written   int      `json:"written"`
	Reused    int      `json:"reused"`
	Conflicts int      `json:"conflicts"`
	Failed    int      `json:"failed"`
	Skips     []string `json:"skips,omitempty"`
}

type Organizer struct {
	root    string
	mode    fsutil.Mode
	workers int
	logger  *slog.Logger
	metrics *metrics.Metrics
	locks   *keylock.Locker
}

type Option func(*Organizer)

func WithWorkers(n int) Option {
	return func(o *Organizer) {
		if n > 0 {
			o.workers = n
		}
	}
}

func New(root string, mode fsutil.Mode, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Organizer {
	if logger == nil {
		logger = slog.Default()
	}
	if mode == "" {
		mode = fsutil.ModeCopy
	}
	o := &Organizer{
		root:    filepath.Clean(root),
		mode:    mode,
		workers: 4,
		logger:  logger,
		metrics: m,
		locks:   keylock.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Destinations returns the by-date and by-sender paths for rec.
func (o *Organizer) Destinations(rec entity.InvoiceRecord) (entity.OrganizedPaths, error) {
	if rec.IssueDate == nil {
		return entity.OrganizedPaths{}, errors.New("missing issue date")
	}
	name := rec.Filename
	if name == "" {
		name = filepath.Base(rec.SourcePath)
	}
	name = fsutil.SanitizeFilename(name)
	sender := fsutil.SanitizeFilename(rec.Sender)

	p := entity.OrganizedPaths{
		ByDate:   filepath.Join(o.root, constants.DirByDate, rec.Month(), sender, name),
		BySender: filepath.Join(o.root, constants.DirBySender, sender, rec.IssueDate.String()+"_"+name),
	}
	if !fsutil.Within(o.root, p.ByDate) || !fsutil.Within(o.root, p.BySender) {
		return entity.OrganizedPaths{}, fmt.Errorf("destination escapes output root %s", o.root)
	}
	return p, nil
}

func eligible(rec *entity.InvoiceRecord) (bool, string) {
	switch {
	case rec.Status != constants.StatusExtracted:
		return false, "status " + string(rec.Status)
	case rec.Sender == "" || rec.Sender == constants.UnknownVendor:
		return false, "unknown sender"
	case rec.IssueDate == nil:
		return false, "missing issue date"
	}
	return true, ""
}

// Organize places every eligible record and stores the resulting paths. Per-record
// failures are counted and logged; only cancellation is returned as an error.
func (o *Organizer) Organize(ctx context.Context, store Store) (Stats, error) {
	var (
		stats Stats
		mu    sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for _, rec := range store.All() {
		if ok, why := eligible(&rec); !ok {
			stats.Skipped++
			stats.Skips = append(stats.Skips, rec.ID+": "+why)
			o.logger.Debug("organize.skip", "id", rec.ID, "reason", why)
			continue
		}
		if gctx.Err() != nil {
			break
		}
		stats.Eligible++

		g.Go(func() error {
			res, paths, err := o.place(gctx, rec)
			if err == nil {
				err = store.SetOrganizedPaths(rec.ID, paths)
			}

			mu.Lock()
			defer mu.Unlock()
			stats.Written += res.written
			stats.Reused += res.reused
			stats.Conflicts += res.conflicts
			if err != nil {
				stats.Failed++
				o.metrics.OrganizerFile("failed")
				o.logger.Error("organize.failed", "id", rec.ID, "source", rec.SourcePath, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	o.logger.Info("organize.done",
		"eligible", stats.Eligible, "skipped", stats.Skipped, "written", stats.Written,
		"reused", stats.Reused, "conflicts", stats.Conflicts, "failed", stats.Failed)
	return stats, ctx.Err()
}

type placement struct {
	written, reused, conflicts int
}

func (o *Organizer) place(ctx context.Context, rec entity.InvoiceRecord) (placement, entity.OrganizedPaths, error) {
	var res placement
	want, err := o.Destinations(rec)
	if err != nil {
		return res, entity.OrganizedPaths{}, err
	}
	if _, err := os.Stat(rec.SourcePath); err != nil {
		return res, entity.OrganizedPaths{}, fmt.Errorf("source: %w", err)
	}

	var prevDate, prevSender string
	if rec.Organized != nil {
		prevDate, prevSender = rec.Organized.ByDate, rec.Organized.BySender
	}

	var got entity.OrganizedPaths
	for _, d := range []struct {
		base, prev string
		out        *string
	}{
		{want.ByDate, prevDate, &got.ByDate},
		{want.BySender, prevSender, &got.BySender},
	} {
		if err := ctx.Err(); err != nil {
			return res, got, err
		}
		path, outcome, err := o.materialize(rec, d.base, d.prev)
		if err != nil {
			return res, got, err
		}
		*d.out = path
		o.metrics.OrganizerFile(outcome)
		switch outcome {
		case "written":
			res.written++
		case "reused":
			res.reused++
		case "conflict":
			res.written++
			res.conflicts++
		}
	}
	return res, got, nil
}

// materialize puts rec's source at base, or at the first free or identical
// suffixed variant of base. prev is the path stored by an earlier run.
func (o *Organizer) materialize(rec entity.InvoiceRecord, base, prev string) (string, string, error) {
	unlock := o.locks.Lock(base)
	defer unlock()

	if prev != "" && isVariant(base, prev) {
		if same, err := fsutil.SameContent(rec.SourcePath, prev); err == nil && same {
			return prev, "reused", nil
		}
	}

	for n := 0; n <= maxSuffix; n++ {
		candidate := base
		if n > 0 {
			candidate = fsutil.SuffixedPath(base, n)
		}
		same, err := fsutil.SameContent(rec.SourcePath, candidate)
		if err != nil {
			return "", "", err
		}
		if same {
			return candidate, "reused", nil
		}
		if _, err := os.Lstat(candidate); err == nil {
			o.logger.Warn("organize.conflict", "id", rec.ID, "code", common.CodeFilesystemConflict, "path", candidate)
			continue
		}

		err = fsutil.Materialize(rec.SourcePath, candidate, o.mode)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", err
		}
		if n > 0 {
			o.logger.Warn("organize.conflict_resolved", "id", rec.ID, "code", common.CodeFilesystemConflict,
				"wanted", base, "path", candidate)
			return candidate, "conflict", nil
		}
		o.logger.Debug("organize.written", "id", rec.ID, "path", candidate, "mode", o.mode)
		return candidate, "written", nil
	}
	return "", "", common.NewAppError(common.CodeFilesystemConflict,
		fmt.Sprintf("no free name for %s after %d attempts", base, maxSuffix), nil)
}

func isVariant(base, path string) bool {
	if path == base {
		return true
	}
	dir, ext := filepath.Dir(base), filepath.Ext(base)
	stem := filepath.Base(base[:len(base)-len(ext)])
	if filepath.Dir(path) != dir || filepath.Ext(path) != ext {
		return false
	}
	name := filepath.Base(path)
	name = name[:len(name)-len(ext)]
	if len(name) <= len(stem)+1 || name[:len(stem)+1] != stem+"_" {
		return false
	}
	for _, r := range name[len(stem)+1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
