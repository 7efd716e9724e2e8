package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/ingest"
	"github.com/joseph-ayodele/invoice-organizer/internal/organize"
	"github.com/joseph-ayodele/invoice-organizer/internal/repository"
)

// Failure is one file the run could not turn into a usable record.
type Failure struct {
	ID         string                 `json:"id"`
	SourcePath string                 `json:"source_path"`
	Status     constants.RecordStatus `json:"status"`
	Reason     string                 `json:"reason"`
}

// Flagged is one record routed to review during the run.
type Flagged struct {
	ID         string           `json:"id"`
	SourcePath string           `json:"source_path"`
	Confidence float64          `json:"confidence"`
	Flags      []constants.Flag `json:"flags"`
}

// RunReport is what every run ends with.
type RunReport struct {
	RunID         string               `json:"run_id"`
	StartedAt     time.Time            `json:"started_at"`
	Duration      time.Duration        `json:"-"`
	DurationMS    int64                `json:"duration_ms"`
	Interrupted   bool                 `json:"interrupted,omitempty"`
	NotStarted    int                  `json:"not_started,omitempty"`
	Scanned       int                  `json:"scanned"`
	Deduplicated  int                  `json:"deduplicated"`
	Processed     int                  `json:"processed"`
	Skipped       int                  `json:"skipped"`
	Accepted      int                  `json:"accepted"`
	Flagged       int                  `json:"flagged"`
	Failed        int                  `json:"failed"`
	Failures      []Failure            `json:"failures"`
	FlaggedItems  []Flagged            `json:"flagged_items"`
	ScanFailures  []ingest.ScanFailure `json:"scan_failures,omitempty"`
	StoreRecovery *repository.Recovery `json:"store_recovery,omitempty"`
	Organize      *organize.Stats      `json:"organize,omitempty"`
}

// ApplyScan copies the inbox scan counters into the report.
func (r *RunReport) ApplyScan(stats ingest.DirStats) {
	r.Scanned = stats.Matched
	r.Deduplicated = stats.Deduplicated
	r.ScanFailures = stats.Failures
}

func (r *RunReport) sortItems() {
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].SourcePath < r.Failures[j].SourcePath })
	sort.Slice(r.FlaggedItems, func(i, j int) bool { return r.FlaggedItems[i].SourcePath < r.FlaggedItems[j].SourcePath })
}

// Line is the one-line outcome printed at the end of a run.
func (r *RunReport) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %d succeeded, %d flagged for review, %d failed", r.RunID, r.Accepted, r.Flagged, r.Failed)
	if r.Skipped > 0 {
		fmt.Fprintf(&b, ", %d unchanged", r.Skipped)
	}
	if r.Deduplicated > 0 {
		fmt.Fprintf(&b, ", %d duplicate files", r.Deduplicated)
	}
	if len(r.Failures) > 0 {
		byStatus := map[constants.RecordStatus]int{}
		for _, f := range r.Failures {
			byStatus[f.Status]++
		}
		parts := make([]string, 0, len(byStatus))
		for status, n := range byStatus {
			parts = append(parts, fmt.Sprintf("%s=%d", status, n))
		}
		sort.Strings(parts)
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	if r.StoreRecovery != nil {
		fmt.Fprintf(&b, "; corrupt metadata backed up to %s", r.StoreRecovery.BackupPath)
	}
	if r.Interrupted {
		b.WriteString("; interrupted")
		if r.NotStarted > 0 {
			fmt.Fprintf(&b, ", %d not started", r.NotStarted)
		}
	}
	return b.String()
}
