package llm

import "context"

// RawFields is the validated but not yet normalized shape returned by the model.
// Empty strings mean the model reported the field as absent.
type RawFields struct {
	Date          string `json:"date"`
	Sender        string `json:"sender"`
	InvoiceNumber string `json:"invoice_number"`
	Amount        string `json:"amount"` // kept as text so locale separators survive
	Currency      string `json:"currency"`

	// AmountNumeric is set when the model sent amount as a JSON number,
	// so its separators are unambiguous.
	AmountNumeric bool `json:"-"`
}

type ExtractRequest struct {
	Text            string
	FilenameHint    string
	DefaultCurrency string
	MaxTextChars    int
	ContentID       string // content hash of the source; enables the response cache when set
}

// ResponseCache stores raw model output by key.
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, raw string) error
}

// CompletionRequest is the provider-neutral prompt handed to a Completer.
type CompletionRequest struct {
	System string
	User   string
	Schema map[string]any
}

// Completer is a hosted language-model completion service.
// It returns text that is expected, not guaranteed, to contain a JSON object.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
	Model() string
}

// FieldExtractor is the interface our pipeline depends on.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (RawFields, []byte /*rawJSON*/, error)
	// Key identifies provider, model and prompt version for caching.
	Key() string
}
