// Package normalize turns raw model output into a typed, scored invoice record.
// Every rule that has to guess adds a flag; flags drive the confidence score.
package normalize

import (
	"strings"

	"cloud.google.com/go/civil"
	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/joseph-ayodele/invoice-organizer/internal/llm"
	"github.com/shopspring/decimal"
)

// Options configures a Normalizer.
type Options struct {
	DefaultCurrency string
	Dates           DatePolicy
	SenderAliases   map[string]string
}

// Result is the normalized view of one invoice.
type Result struct {
	Sender        string
	SenderRaw     string
	InvoiceNumber string
	IssueDate     *civil.Date
	Amount        *decimal.Decimal
	Currency      string
	Flags         []constants.Flag
	Confidence    float64
}

// Normalizer applies the date, sender and amount rules in that order.
type Normalizer struct {
	opts Options
}

func New(opts Options) *Normalizer {
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "USD"
	}
	opts.DefaultCurrency = strings.ToUpper(opts.DefaultCurrency)
	if opts.Dates.Tiebreak == "" {
		opts.Dates.Tiebreak = "latest"
	}
	aliases := make(map[string]string, len(opts.SenderAliases))
	for k, v := range opts.SenderAliases {
		aliases[strings.ToLower(k)] = strings.ToLower(v)
	}
	opts.SenderAliases = aliases
	return &Normalizer{opts: opts}
}

// Apply normalizes raw against the source text. It never fails: anything it
// cannot resolve becomes a flag.
func (n *Normalizer) Apply(raw llm.RawFields, text string) Result {
	var (
		res   Result
		flags []constants.Flag
	)

	date, guess := chooseDate(text, raw.Date, n.opts.Dates)
	switch {
	case date == nil:
		flags = append(flags, constants.FlagMissingDate)
	case guess:
		flags = append(flags, constants.FlagAmbiguousDate)
	}
	res.IssueDate = date

	res.SenderRaw = strings.TrimSpace(raw.Sender)
	key, ok := SenderKey(raw.Sender, n.opts.SenderAliases)
	if !ok {
		flags = append(flags, constants.FlagUnknownSender)
	}
	res.Sender = key

	res.InvoiceNumber = strings.TrimSpace(raw.InvoiceNumber)

	amt := resolveAmount(raw.Amount, raw.AmountNumeric, raw.Currency, text, n.opts.DefaultCurrency)
	if amt.amount == nil {
		flags = append(flags, constants.FlagMissingAmount)
	} else {
		res.Amount, res.Currency = amt.amount, amt.currency
		if amt.ambiguous {
			flags = append(flags, constants.FlagAmbiguousAmount)
		}
		if amt.defaultedCurrency {
			flags = append(flags, constants.FlagDefaultedCurrency)
		}
	}

	res.Flags = flags
	res.Confidence = Score(flags)
	return res
}
