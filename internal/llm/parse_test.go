package llm

import (
	"errors"
	"testing"

	"github.com/joseph-ayodele/invoice-organizer/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    RawFields
	}{
		{
			name:    "strict object",
			content: `{"date":"2025-01-10","sender":"Acme Corp","invoice_number":"INV-7","amount":1234.56,"currency":"USD"}`,
			want:    RawFields{Date: "2025-01-10", Sender: "Acme Corp", InvoiceNumber: "INV-7", Amount: "1234.56", Currency: "USD", AmountNumeric: true},
		},
		{
			name:    "fenced with nulls",
			content: "```json\n{\"date\":null,\"sender\":\"Loom, Inc.\",\"amount\":\"15.00\",\"currency\":\"usd\"}\n```",
			want:    RawFields{Sender: "Loom, Inc.", Amount: "15.00", Currency: "USD"},
		},
		{
			name:    "prose around object",
			content: `Sure! Here is the data: {"date":"2025-02-01","sender":"Apify","amount":"49","currency":"EUR"} Let me know.`,
			want:    RawFields{Date: "2025-02-01", Sender: "Apify", Amount: "49", Currency: "EUR"},
		},
		{
			name:    "synonyms and symbols",
			content: `{"invoice_date":"2025-03-03","vendor":"Figma","total":"$1,200.00","currency_code":"$","notes":"x"}`,
			want:    RawFields{Date: "2025-03-03", Sender: "Figma", Amount: "1,200.00", Currency: "USD"},
		},
		{
			name:    "null-like strings",
			content: `{"date":"N/A","sender":"unknown","amount":null,"currency":"???"}`,
			want:    RawFields{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, raw, err := ParseResponse(tt.content, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, raw)
		})
	}
}

func TestParseResponse_Failures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "I could not find an invoice."},
		{"array", `[{"sender":"x"}]`},
		{"missing required", `{"sender":"Acme"}`},
		{"wrong type", `{"date":["2025"],"sender":"Acme","amount":"1","currency":"USD","invoice_number":{"a":1}}`},
		{"broken braces", `{"date": "2025-01-01", "sender": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseResponse(tt.content, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrExtractionFailed))
		})
	}
}

func TestJSONObjectCandidates(t *testing.T) {
	got := JSONObjectCandidates(`a {"x":"}"} b {"y":1} c`)
	require.Len(t, got, 2)
	assert.Equal(t, `{"x":"}"} b {"y":1}`, got[0])
	assert.Equal(t, `{"x":"}"}`, got[1])

	assert.Empty(t, JSONObjectCandidates("no braces"))
}

func TestBuildUserPrompt_Truncates(t *testing.T) {
	text := make([]byte, 5000)
	for i := range text {
		text[i] = 'a'
	}
	p := BuildUserPrompt(ExtractRequest{Text: string(text), FilenameHint: "inv.pdf", MaxTextChars: 4000})
	assert.Contains(t, p, "Filename: inv.pdf")
	assert.Contains(t, p, "(truncated)")
	assert.Less(t, len(p), 4100)
}
