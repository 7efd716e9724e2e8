package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"strings"

	"github.com/joseph-ayodele/invoice-organizer/constants"
)

var (
	reAmountText   = regexp.MustCompile(`^-?[0-9][0-9 .,']*$`)
	reAmountStrip  = regexp.MustCompile(`[^0-9 .,'\-]`)
	reCurrencyCode = regexp.MustCompile(`^[A-Z]{3}$`)
	nullLike       = map[string]struct{}{"": {}, "null": {}, "none": {}, "n/a": {}, "na": {}, "unknown": {}, "-": {}}
)

// ChangeAmountNumber is reported when amount arrived as a JSON number.
const ChangeAmountNumber = "amount(number)"

var schemaKeys = map[string]struct{}{
	"date": {}, "sender": {}, "invoice_number": {}, "amount": {}, "currency": {},
}

// NormalizeAndSanitizeJSON
// - Renames known synonyms (vendor -> sender, total -> amount, ...)
// - Turns null-like strings into null
// - Coerces numeric amounts to text and strips symbols around them
// - Maps currency symbols to ISO codes, drops unrecognizable currencies
// - Removes unknown keys (strict additionalProperties = false friendliness)
func NormalizeAndSanitizeJSON(m map[string]any, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m = maps.Clone(m)

	changes := make([]string, 0, 8)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			// don't overwrite existing value if already present
			if cur, exists := m[to]; !exists || cur == nil {
				m[to] = v
			}
			delete(m, from)
			changes = append(changes, from+"->"+to)
		}
	}

	// 1) rename synonyms to the schema
	renamed("invoice_date", "date")
	renamed("issue_date", "date")
	renamed("vendor", "sender")
	renamed("company", "sender")
	renamed("merchant", "sender")
	renamed("total", "amount")
	renamed("total_amount", "amount")
	renamed("amount_due", "amount")
	renamed("currency_code", "currency")
	renamed("number", "invoice_number")
	renamed("invoice_no", "invoice_number")

	// 2) remove unknown keys
	for k := range maps.Clone(m) {
		if _, ok := schemaKeys[k]; !ok {
			delete(m, k)
			changes = append(changes, k+"(unknown)")
		}
	}

	// 3) strings: trim, null-like -> null
	for _, k := range []string{"date", "sender", "invoice_number", "currency"} {
		switch t := m[k].(type) {
		case string:
			s := strings.TrimSpace(t)
			if _, isNull := nullLike[strings.ToLower(s)]; isNull {
				m[k] = nil
				if s != "" {
					changes = append(changes, k+"(null-like)")
				}
			} else {
				m[k] = s
			}
		case json.Number:
			m[k] = t.String()
		case float64:
			m[k] = fmt.Sprintf("%v", t)
		default:
			// nil stays nil; other types are left for schema validation to reject
		}
	}

	// 4) amount -> text
	switch t := m["amount"].(type) {
	case json.Number:
		m["amount"] = t.String()
		changes = append(changes, ChangeAmountNumber)
	case float64:
		m["amount"] = fmt.Sprintf("%v", t)
		changes = append(changes, ChangeAmountNumber)
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), "\u00a0", " ")
		if _, isNull := nullLike[strings.ToLower(s)]; isNull {
			m["amount"] = nil
			break
		}
		if !reAmountText.MatchString(s) {
			s = strings.TrimSpace(reAmountStrip.ReplaceAllString(s, ""))
			changes = append(changes, "amount(stripped)")
		}
		if reAmountText.MatchString(s) {
			m["amount"] = s
		} else {
			m["amount"] = nil
			changes = append(changes, "amount(unparseable)")
		}
	}

	// 5) currency -> ISO code
	if s, ok := m["currency"].(string); ok {
		code := strings.ToUpper(s)
		if !reCurrencyCode.MatchString(code) {
			code = ""
			for _, cs := range constants.CurrencySymbols {
				if s == cs.Symbol {
					code = cs.Code
					break
				}
			}
		}
		if code == "" {
			m["currency"] = nil
			changes = append(changes, "currency(unrecognized)")
		} else {
			m["currency"] = code
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changes, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(changes) > 0 {
		logger.Debug("llm.extract.normalize_sanitize", "changes", changes)
	}
	return out, changes, nil
}
