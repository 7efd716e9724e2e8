// Package summary folds invoice records into per-sender and per-month totals,
// a review queue and an error list. Summarize is pure: it reads nothing and
// never fails.
package summary

import (
	"fmt"
	"sort"

	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/entity"
	"github.com/shopspring/decimal"
)

// Review reasons besides the normalization flags.
const (
	ReasonLowConfidence    = "low_confidence"
	ReasonExtractionFailed = "extraction_failed"
	ReasonUnreadablePDF    = "unreadable_pdf"
	ReasonMalformedPrefix  = "malformed:"
)

// Bucket is one group's totals. Currencies are never mixed.
type Bucket struct {
	Key              string                     `json:"key"`
	RecordCount      int                        `json:"record_count"`
	TotalsByCurrency map[string]decimal.Decimal `json:"total_amount_by_currency"`
}

type ReviewItem struct {
	ID         string   `json:"id,omitempty"`
	SourcePath string   `json:"source_path,omitempty"`
	Sender     string   `json:"sender,omitempty"`
	IssueDate  string   `json:"issue_date,omitempty"`
	Amount     string   `json:"amount,omitempty"`
	Currency   string   `json:"currency,omitempty"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
	Details    []string `json:"details,omitempty"`
}

type ErrorItem struct {
	ID         string                 `json:"id"`
	SourcePath string                 `json:"source_path"`
	Status     constants.RecordStatus `json:"status"`
	Error      string                 `json:"error"`
}

type Summary struct {
	BySender    []Bucket     `json:"by_sender"`
	ByMonth     []Bucket     `json:"by_month"`
	ReviewQueue []ReviewItem `json:"review_queue"`
	Errors      []ErrorItem  `json:"errors"`
	Accepted    int          `json:"accepted"`
	Flagged     int          `json:"flagged"`
	Failed      int          `json:"failed"`
	Malformed   int          `json:"malformed"`
}

// Summarize groups records by sender and by month. Records at or above threshold
// are accepted; the rest go to the review queue with their reasons. Low-confidence
// records are still part of the totals. Failed records are listed as errors and in
// the review queue. Records that break an invariant, and the malformed entries
// passed in, go to the review queue only.
func Summarize(records []entity.InvoiceRecord, threshold float64, malformed ...entity.MalformedEntry) Summary {
	s := Summary{
		ReviewQueue: []ReviewItem{},
		Errors:      []ErrorItem{},
	}
	bySender := map[string]*Bucket{}
	byMonth := map[string]*Bucket{}

	for i := range records {
		r := &records[i]

		if problem := r.Problem(); problem != "" {
			s.Malformed++
			s.ReviewQueue = append(s.ReviewQueue, reviewItem(r, []string{ReasonMalformedPrefix + problem}, nil))
			continue
		}

		if r.Status.Failed() {
			s.Failed++
			reason := ReasonExtractionFailed
			if r.Status == constants.StatusUnreadablePDF {
				reason = ReasonUnreadablePDF
			}
			s.Errors = append(s.Errors, ErrorItem{ID: r.ID, SourcePath: r.SourcePath, Status: r.Status, Error: r.Error})
			s.ReviewQueue = append(s.ReviewQueue, reviewItem(r, []string{reason}, nonEmpty(r.Error)))
			continue
		}

		add(bySender, r.Sender, r)
		add(byMonth, r.Month(), r)

		if r.Confidence >= threshold {
			s.Accepted++
			continue
		}
		s.Flagged++
		reasons := []string{ReasonLowConfidence}
		var details []string
		for _, f := range r.Flags {
			reasons = append(reasons, string(f))
			details = append(details, f.Describe())
		}
		s.ReviewQueue = append(s.ReviewQueue, reviewItem(r, reasons, details))
	}

	for _, m := range malformed {
		s.Malformed++
		s.ReviewQueue = append(s.ReviewQueue, ReviewItem{
			ID:      m.ID,
			Reasons: []string{ReasonMalformedPrefix + m.Reason},
			Details: []string{fmt.Sprintf("stored entry #%d", m.Index)},
		})
	}

	s.BySender = sorted(bySender)
	s.ByMonth = sorted(byMonth)
	sort.SliceStable(s.ReviewQueue, func(i, j int) bool { return s.ReviewQueue[i].Confidence < s.ReviewQueue[j].Confidence })
	return s
}

func add(groups map[string]*Bucket, key string, r *entity.InvoiceRecord) {
	b, ok := groups[key]
	if !ok {
		b = &Bucket{Key: key, TotalsByCurrency: map[string]decimal.Decimal{}}
		groups[key] = b
	}
	b.RecordCount++
	if r.HasAmount() {
		b.TotalsByCurrency[r.Currency] = b.TotalsByCurrency[r.Currency].Add(*r.Amount)
	}
}

func sorted(groups map[string]*Bucket) []Bucket {
	out := make([]Bucket, 0, len(groups))
	for _, b := range groups {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func reviewItem(r *entity.InvoiceRecord, reasons, details []string) ReviewItem {
	item := ReviewItem{
		ID:         r.ID,
		SourcePath: r.SourcePath,
		Sender:     r.Sender,
		Currency:   r.Currency,
		Confidence: r.Confidence,
		Reasons:    reasons,
		Details:    details,
	}
	if r.IssueDate != nil {
		item.IssueDate = r.IssueDate.String()
	}
	if r.Amount != nil {
		item.Amount = r.Amount.String()
	}
	return item
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// CurrencyTotals sums buckets per currency, used to cross-check the two groupings.
func CurrencyTotals(buckets []Bucket) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	for _, b := range buckets {
		for cur, amt := range b.TotalsByCurrency {
			out[cur] = out[cur].Add(amt)
		}
	}
	return out
}
