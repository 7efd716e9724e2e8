package entity

import (
	"encoding/json"
	"slices"

	"cloud.google.com/go/civil"
	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/shopspring/decimal"
)

// InvoiceRecord represents one processed invoice file.
type InvoiceRecord struct {
	ID            string                 `json:"id"`
	SourcePath    string                 `json:"source_path"`
	Filename      string                 `json:"filename"`
	Status        constants.RecordStatus `json:"status"`
	Sender        string                 `json:"sender,omitempty"`
	SenderRaw     string                 `json:"sender_raw,omitempty"`
	InvoiceNumber string                 `json:"invoice_number,omitempty"`
	IssueDate     *civil.Date            `json:"issue_date,omitempty"`
	Amount        *decimal.Decimal       `json:"amount,omitempty"`
	Currency      string                 `json:"currency,omitempty"`
	Confidence    float64                `json:"confidence"`
	Flags         []constants.Flag       `json:"flags,omitempty"`
	TextMethod    string                 `json:"text_method,omitempty"`
	Model         string                 `json:"model,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Organized     *OrganizedPaths        `json:"organized_paths,omitempty"`
}

// OrganizedPaths holds where the Organizer materialized the source file.
type OrganizedPaths struct {
	ByDate   string `json:"by_date"`
	BySender string `json:"by_sender"`
}

// Month returns the YYYY-MM bucket of the issue date, or constants.Undated.
func (r *InvoiceRecord) Month() string {
	if r.IssueDate == nil || !r.IssueDate.IsValid() {
		return constants.Undated
	}
	return r.IssueDate.String()[:7]
}

// HasAmount reports whether both amount and currency are present.
func (r *InvoiceRecord) HasAmount() bool {
	return r.Amount != nil && r.Currency != ""
}

// HasFlag reports whether the record carries the given normalization flag.
func (r *InvoiceRecord) HasFlag(f constants.Flag) bool {
	return slices.Contains(r.Flags, f)
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (r *InvoiceRecord) Clone() InvoiceRecord {
	c := *r
	if r.IssueDate != nil {
		d := *r.IssueDate
		c.IssueDate = &d
	}
	if r.Amount != nil {
		a := *r.Amount
		c.Amount = &a
	}
	if r.Flags != nil {
		c.Flags = slices.Clone(r.Flags)
	}
	if r.Organized != nil {
		o := *r.Organized
		c.Organized = &o
	}
	return c
}

// MalformedEntry is a stored invoice that could not be decoded or breaks a record invariant.
type MalformedEntry struct {
	Index  int             `json:"index"`
	ID     string          `json:"id,omitempty"`
	Reason string          `json:"reason"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// Problem returns why the record breaks a record invariant, or "" when it is well formed.
func (r *InvoiceRecord) Problem() string {
	switch {
	case r.ID == "":
		return "missing id"
	case !r.Status.Valid():
		return "unknown status " + string(r.Status)
	case r.Confidence < 0 || r.Confidence > 1:
		return "confidence out of range"
	case (r.Amount == nil) != (r.Currency == ""):
		return "amount and currency must be set together"
	case r.Amount != nil && r.Amount.IsNegative():
		return "negative amount"
	case r.Status == constants.StatusExtracted && r.Sender == "":
		return "missing sender"
	case r.IssueDate != nil && !r.IssueDate.IsValid():
		return "invalid issue date"
	}
	return ""
}
