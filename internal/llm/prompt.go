package llm

import (
	"strings"
)

// PromptVersion changes whenever the prompt or schema changes, invalidating cached responses.
const PromptVersion = "invoice-v1"

// BuildSystemPrompt composes the fixed instruction for invoice field extraction.
func BuildSystemPrompt(req ExtractRequest) string {
	defCur := strings.TrimSpace(req.DefaultCurrency)
	if defCur == "" {
		defCur = "USD"
	}

	parts := []string{
		"You extract structured data from invoice text. Return ONLY a JSON object with exactly these keys:",
		`"date", "sender", "invoice_number", "amount", "currency".`,
		"date: the invoice or issue date in YYYY-MM-DD format (not the due date).",
		"sender: the company that issued the invoice, as printed.",
		"invoice_number: the invoice or receipt number as printed.",
		"amount: the total amount due or paid, as a number without currency symbols.",
		"currency: the 3-letter ISO 4217 code; use " + defCur + " only if the text shows none.",
		"Use null for any field that is not present. Do not add commentary or markdown.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the filename hint and the (truncated) invoice text.
func BuildUserPrompt(req ExtractRequest) string {
	limit := req.MaxTextChars
	if limit <= 0 {
		limit = 4000
	}

	var b strings.Builder
	if filename := strings.TrimSpace(req.FilenameHint); filename != "" {
		b.WriteString("Filename: ")
		b.WriteString(filename)
		b.WriteString("\n")
	}
	text := strings.TrimSpace(req.Text)
	b.WriteString("\nInvoice text:\n")
	if len(text) > limit {
		b.WriteString(truncateUTF8(text, limit))
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}
	return b.String()
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
