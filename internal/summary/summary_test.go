package summary

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id, sender, currency, amount string, date *civil.Date, confidence float64, flags ...constants.Flag) entity.InvoiceRecord {
	r := entity.InvoiceRecord{
		ID: id, SourcePath: "/in/" + id + ".pdf", Status: constants.StatusExtracted,
		Sender: sender, IssueDate: date, Confidence: confidence, Flags: flags,
	}
	if amount != "" {
		a := decimal.RequireFromString(amount)
		r.Amount, r.Currency = &a, currency
	}
	return r
}

func day(m, d int) *civil.Date { return &civil.Date{Year: 2025, Month: time.Month(1 + (m-1)%12), Day: d} }

func TestSummarize_Buckets(t *testing.T) {
	records := []entity.InvoiceRecord{
		rec("1", "acme", "USD", "10.50", day(1, 5), 1),
		rec("2", "acme", "EUR", "3", day(1, 9), 1),
		rec("3", "acme", "USD", "4.50", day(2, 1), 0.6, constants.FlagAmbiguousDate, constants.FlagDefaultedCurrency),
		rec("4", "figma", "USD", "20", nil, 0.6, constants.FlagMissingDate),
	}

	s := Summarize(records, 0.7)

	require.Len(t, s.BySender, 2)
	acme := s.BySender[0]
	assert.Equal(t, "acme", acme.Key)
	assert.Equal(t, 3, acme.RecordCount)
	assert.True(t, acme.TotalsByCurrency["USD"].Equal(decimal.RequireFromString("15")))
	assert.True(t, acme.TotalsByCurrency["EUR"].Equal(decimal.RequireFromString("3")))

	keys := []string{}
	for _, b := range s.ByMonth {
		keys = append(keys, b.Key)
	}
	assert.Equal(t, []string{"2025-01", "2025-02", constants.Undated}, keys)

	assert.Equal(t, 2, s.Accepted)
	assert.Equal(t, 2, s.Flagged)
	assert.Equal(t, 0, s.Failed)
	require.Len(t, s.ReviewQueue, 2)
	assert.Equal(t, []string{ReasonLowConfidence, "ambiguous_date", "defaulted_currency"}, s.ReviewQueue[0].Reasons)
	assert.Len(t, s.ReviewQueue[0].Details, 2)
}

func TestSummarize_FailuresAndMalformed(t *testing.T) {
	records := []entity.InvoiceRecord{
		{ID: "u", SourcePath: "/in/u.pdf", Status: constants.StatusUnreadablePDF, Error: "no text"},
		{ID: "x", SourcePath: "/in/x.pdf", Status: constants.StatusExtractionFailed, Error: "model call failed after 3 attempt(s)"},
		{ID: "bad", Status: "WEIRD", Confidence: 1},
		rec("ok", "acme", "USD", "1", day(1, 1), 1),
	}
	malformed := []entity.MalformedEntry{{Index: 7, Reason: "cannot decode amount"}}

	s := Summarize(records, 0.7, malformed...)

	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 2, s.Malformed)
	assert.Equal(t, 1, s.Accepted)
	require.Len(t, s.Errors, 2)
	assert.Equal(t, constants.StatusUnreadablePDF, s.Errors[0].Status)

	reasons := map[string][]string{}
	for _, item := range s.ReviewQueue {
		reasons[item.ID] = item.Reasons
	}
	assert.Equal(t, []string{ReasonUnreadablePDF}, reasons["u"])
	assert.Equal(t, []string{ReasonExtractionFailed}, reasons["x"])
	assert.Equal(t, []string{"malformed:unknown status WEIRD"}, reasons["bad"])
	assert.Equal(t, []string{"malformed:cannot decode amount"}, reasons[""])

	require.Len(t, s.BySender, 1, "failed and malformed records are not totalled")
	assert.Equal(t, 1, s.BySender[0].RecordCount)
}

func TestSummarize_EmptyIsTotal(t *testing.T) {
	s := Summarize(nil, 0.7)
	assert.NotNil(t, s.ReviewQueue)
	assert.NotNil(t, s.Errors)
	assert.Empty(t, s.BySender)
	assert.Empty(t, s.ByMonth)
}

// randomRecords builds a reproducible mixed record set.
func randomRecords(seed uint64, n int) []entity.InvoiceRecord {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	senders := []string{"acme", "figma", "loom", constants.UnknownVendor}
	currencies := []string{"USD", "EUR", "GBP"}
	allFlags := []constants.Flag{
		constants.FlagAmbiguousDate, constants.FlagUnknownSender,
		constants.FlagDefaultedCurrency, constants.FlagAmbiguousAmount,
	}

	out := make([]entity.InvoiceRecord, 0, n)
	for i := range n {
		id := fmt.Sprintf("r%03d", i)
		switch rng.IntN(10) {
		case 0:
			out = append(out, entity.InvoiceRecord{ID: id, Status: constants.StatusExtractionFailed, Error: "boom"})
			continue
		case 1:
			out = append(out, entity.InvoiceRecord{ID: id, Status: constants.StatusUnreadablePDF})
			continue
		}
		var date *civil.Date
		if rng.IntN(5) > 0 {
			date = day(1+rng.IntN(12), 1+rng.IntN(28))
		}
		amount := ""
		if rng.IntN(6) > 0 {
			amount = fmt.Sprintf("%d.%02d", rng.IntN(5000), rng.IntN(100))
		}
		var flags []constants.Flag
		score := 1.0
		for _, f := range allFlags {
			if rng.IntN(4) == 0 {
				flags = append(flags, f)
				score -= constants.Penalties[f]
			}
		}
		out = append(out, rec(id, senders[rng.IntN(len(senders))], currencies[rng.IntN(len(currencies))], amount, date, max(score, 0), flags...))
	}
	return out
}

func TestSummarize_PartitionConsistency(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		s := Summarize(randomRecords(seed, 80), 0.7)

		bySender, byMonth := CurrencyTotals(s.BySender), CurrencyTotals(s.ByMonth)
		require.Equal(t, len(bySender), len(byMonth), "seed %d", seed)
		for cur, total := range bySender {
			assert.True(t, total.Equal(byMonth[cur]), "seed %d currency %s: %s != %s", seed, cur, total, byMonth[cur])
		}

		countSender, countMonth := 0, 0
		for _, b := range s.BySender {
			countSender += b.RecordCount
		}
		for _, b := range s.ByMonth {
			countMonth += b.RecordCount
		}
		assert.Equal(t, countSender, countMonth, "seed %d", seed)
		assert.Equal(t, s.Accepted+s.Flagged, countSender, "seed %d", seed)
	}
}

func TestSummarize_ThresholdRouting(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		records := randomRecords(seed, 60)
		s := Summarize(records, 0.7)

		queued := map[string]ReviewItem{}
		for _, item := range s.ReviewQueue {
			queued[item.ID] = item
		}
		for _, r := range records {
			item, inQueue := queued[r.ID]
			switch {
			case r.Status.Failed():
				assert.True(t, inQueue, "seed %d: failed %s must be queued", seed, r.ID)
			case r.Confidence >= 0.7:
				assert.False(t, inQueue, "seed %d: %s (%.2f) must not be queued", seed, r.ID, r.Confidence)
			default:
				require.True(t, inQueue, "seed %d: %s (%.2f) must be queued", seed, r.ID, r.Confidence)
				assert.NotEmpty(t, item.Reasons)
			}
		}
	}
}
