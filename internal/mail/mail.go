// Package mail fetches invoice attachments from a mailbox and labels the
// messages they came from.
package mail

import (
	"context"
	"strings"
	"time"
)

// Read states accepted by Query.
const (
	ReadAll    = "all"
	ReadRead   = "read"
	ReadUnread = "unread"
)

// Query selects messages received in [After, Before).
type Query struct {
	After      time.Time
	Before     time.Time
	ReadState  string
	MaxResults int64
}

// String renders the query in mailbox search syntax, e.g.
// "after:2025/01/01 before:2025/02/01 is:unread".
func (q Query) String() string {
	var parts []string
	if !q.After.IsZero() {
		parts = append(parts, "after:"+q.After.Format("2006/01/02"))
	}
	if !q.Before.IsZero() {
		parts = append(parts, "before:"+q.Before.Format("2006/01/02"))
	}
	switch q.ReadState {
	case ReadRead:
		parts = append(parts, "is:read")
	case ReadUnread:
		parts = append(parts, "is:unread")
	}
	return strings.Join(parts, " ")
}

// Attachment is one PDF pulled out of a message.
type Attachment struct {
	MessageID string
	Filename  string
	MimeType  string
	Received  time.Time
	Data      []byte
}

// DashboardInvoice is a message that reads like an invoice but carries no PDF,
// so the document has to be downloaded by hand from the vendor's portal.
type DashboardInvoice struct {
	MessageID              string `json:"email_id"`
	Subject                string `json:"subject"`
	From                   string `json:"from"`
	Date                   string `json:"date"`
	Snippet                string `json:"snippet"`
	RequiresManualDownload bool   `json:"requires_manual_download"`
}

// Fetcher returns PDF attachments and dashboard-only invoices for a query.
type Fetcher interface {
	FetchAttachments(ctx context.Context, q Query) ([]Attachment, []DashboardInvoice, error)
}

// Labeler applies a label to a message. Applying a label twice is a no-op.
type Labeler interface {
	ApplyLabel(ctx context.Context, messageID, label string) error
}

var (
	invoiceKeywords = []string{"invoice", "bill", "payment", "receipt", "statement", "due", "amount", "total", "paid", "balance"}
	invoiceSenders  = []string{"accounting@", "billing@", "invoices@", "noreply@", "payments@", "finance@", "ar@"}
)

// LooksLikeInvoice is the keyword and sender heuristic used for messages
// without a PDF attachment.
func LooksLikeInvoice(subject, snippet, from string) bool {
	text := strings.ToLower(subject + " " + snippet + " " + from)
	for _, k := range invoiceKeywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	sender := strings.ToLower(from)
	for _, s := range invoiceSenders {
		if strings.Contains(sender, s) {
			return true
		}
	}
	return false
}

// IsPDF reports whether a part is a PDF by name or MIME type.
func IsPDF(filename, mimeType string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".pdf") || strings.EqualFold(mimeType, "application/pdf")
}
