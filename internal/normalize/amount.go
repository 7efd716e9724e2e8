package normalize

import (
	"errors"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/joseph-ayodele/invoice-organizer/constants"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	errNegative = errors.New("negative amount")
	errNotANum  = errors.New("not a number")
)

var (
	reMoney      *regexp.Regexp
	reCodeToken  *regexp.Regexp
	reTotalLabel = regexp.MustCompile(`(?i)\b(total\s+due|amount\s+due|balance\s+due|total\s+amount\s+due|grand\s+total|total\s+amount|amount\s+paid|total\s+paid|invoice\s+total|total)\b`)
	reNotTotal   = regexp.MustCompile(`(?i)^\s*(tax|vat|gst|hst|discount|savings|excl|before|items?|qty|quantity|weight|pages?)\b`)
)

func init() {
	codes := make([]string, 0, len(constants.KnownCurrencyCodes))
	for c := range constants.KnownCurrencyCodes {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	codeAlt := strings.Join(codes, "|")

	syms := make([]string, 0, len(constants.CurrencySymbols))
	for _, s := range constants.CurrencySymbols {
		syms = append(syms, regexp.QuoteMeta(s.Symbol))
	}
	symAlt := strings.Join(syms, "|")

	number := `(\d{1,3}(?:[.,' \x{00A0}]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,3})?)`
	reMoney = regexp.MustCompile(
		`(?:(` + symAlt + `)|\b(` + codeAlt + `)\b)?\s?` + number + `(?:\s?(?:(` + codeAlt + `)\b|(` + symAlt + `)))?`)
	reCodeToken = regexp.MustCompile(`\b(` + codeAlt + `)\b`)
}

type moneyToken struct {
	number   string
	currency string // ISO code adjacent to the number, "" if none
}

func symbolCode(sym string) string {
	for _, s := range constants.CurrencySymbols {
		if s.Symbol == sym {
			return s.Code
		}
	}
	return ""
}

func moneyTokens(s string) []moneyToken {
	var out []moneyToken
	for _, m := range reMoney.FindAllStringSubmatch(s, -1) {
		t := moneyToken{number: m[3]}
		switch {
		case m[1] != "":
			t.currency = symbolCode(m[1])
		case m[2] != "":
			t.currency = m[2]
		case m[4] != "":
			t.currency = m[4]
		case m[5] != "":
			t.currency = symbolCode(m[5])
		}
		out = append(out, t)
	}
	return out
}

// findTotal locates the invoice total in text: the highest-priority total label
// (last one wins on ties) followed by a money token on the same or next line.
func findTotal(text string) (moneyToken, bool) {
	var (
		best     moneyToken
		bestPrio = -1
	)
	for _, loc := range reTotalLabel.FindAllStringSubmatchIndex(text, -1) {
		prio := totalPriority(strings.ToLower(text[loc[2]:loc[3]]))
		if prio < bestPrio {
			continue
		}
		rest := text[loc[1]:]
		line, next, _ := strings.Cut(rest, "\n")
		if reNotTotal.MatchString(line) {
			continue
		}
		tok, ok := pickToken(moneyTokens(line))
		if !ok {
			next, _, _ = strings.Cut(strings.TrimLeft(next, "\n"), "\n")
			tok, ok = pickToken(moneyTokens(next))
		}
		if ok {
			best, bestPrio = tok, prio
		}
	}
	return best, bestPrio >= 0
}

func totalPriority(label string) int {
	label = strings.Join(strings.Fields(label), " ")
	switch label {
	case "total due", "amount due", "balance due", "total amount due":
		return 3
	case "grand total", "total amount", "invoice total", "amount paid", "total paid":
		return 2
	default:
		return 1
	}
}

// pickToken prefers the first token with a currency marker, else the last token.
func pickToken(toks []moneyToken) (moneyToken, bool) {
	if len(toks) == 0 {
		return moneyToken{}, false
	}
	for _, t := range toks {
		if t.currency != "" {
			return t, true
		}
	}
	return toks[len(toks)-1], true
}

// detectCurrency returns the first currency symbol or known ISO code in text.
func detectCurrency(text string) string {
	bestIdx, code := -1, ""
	for _, s := range constants.CurrencySymbols {
		if i := strings.Index(text, s.Symbol); i >= 0 && (bestIdx < 0 || i < bestIdx) {
			bestIdx, code = i, s.Code
		}
	}
	if loc := reCodeToken.FindStringIndex(text); loc != nil && (bestIdx < 0 || loc[0] < bestIdx) {
		code = text[loc[0]:loc[1]]
	}
	return code
}

// ValidCurrency reports whether code is a known ISO 4217 code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	_, err := currency.ParseISO(code)
	return err == nil
}

// interpretAmount parses a number written with locale-dependent separators.
// It returns every plausible reading, the preferred one first. When two readings
// exist, the currency's locale picks one; without a currency the smaller wins
// and ambiguous is true.
func interpretAmount(s, currencyHint string) (readings []decimal.Decimal, ambiguous bool, err error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return nil, false, errNegative
	}
	s = strings.NewReplacer(" ", "", "\u00a0", "", "'", "").Replace(s)
	if s == "" {
		return nil, false, errNotANum
	}

	parse := func(digits string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(digits)
		if err != nil {
			return decimal.Decimal{}, errNotANum
		}
		return d, nil
	}
	asDecimal := func(sep string) (decimal.Decimal, error) {
		return parse(strings.Replace(s, sep, ".", 1))
	}
	asGrouping := func(sep string) (decimal.Decimal, error) {
		return parse(strings.ReplaceAll(s, sep, ""))
	}

	dots, commas := strings.Count(s, "."), strings.Count(s, ",")
	switch {
	case dots == 0 && commas == 0:
		d, err := parse(s)
		return one(d, err)
	case dots > 0 && commas > 0:
		dec, grp := ".", ","
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			dec, grp = ",", "."
		}
		if strings.Count(s, dec) > 1 {
			return nil, false, errNotANum
		}
		d, err := parse(strings.Replace(strings.ReplaceAll(s, grp, ""), dec, ".", 1))
		return one(d, err)
	}

	sep := "."
	if commas > 0 {
		sep = ","
	}
	if strings.Count(s, sep) > 1 {
		d, err := asGrouping(sep)
		return one(d, err)
	}

	head, tail, _ := strings.Cut(s, sep)
	if len(tail) != 3 || head == "0" || len(head) > 3 || head == "" {
		d, err := asDecimal(sep)
		return one(d, err)
	}

	// "1,234" or "1.234": thousands grouping or three decimals
	dec, err := asDecimal(sep)
	if err != nil {
		return nil, false, err
	}
	grp, err := asGrouping(sep)
	if err != nil {
		return nil, false, err
	}
	if currencyHint != "" {
		if string(constants.DecimalSeparator(currencyHint)) == sep {
			return []decimal.Decimal{dec, grp}, false, nil
		}
		return []decimal.Decimal{grp, dec}, false, nil
	}
	return []decimal.Decimal{dec, grp}, true, nil
}

func one(d decimal.Decimal, err error) ([]decimal.Decimal, bool, error) {
	if err != nil {
		return nil, false, err
	}
	return []decimal.Decimal{d}, false, nil
}

type amountResult struct {
	amount            *decimal.Decimal
	currency          string
	ambiguous         bool
	defaultedCurrency bool
}

// resolveAmount applies the amount/currency rules to the model's answer and the raw text.
func resolveAmount(modelAmount string, modelNumeric bool, modelCurrency, text, defaultCurrency string) amountResult {
	tok, found := findTotal(text)

	textCurrency := tok.currency
	if textCurrency == "" {
		textCurrency = detectCurrency(text)
	}

	var modelVal *decimal.Decimal
	modelAmbiguous := false
	if s := strings.TrimSpace(modelAmount); s != "" {
		if modelNumeric {
			if d, err := decimal.NewFromString(s); err == nil && !d.IsNegative() {
				modelVal = &d
			}
		} else if rs, amb, err := interpretAmount(s, textCurrency); err == nil {
			modelVal, modelAmbiguous = &rs[0], amb
		}
	}

	var res amountResult
	if found {
		readings, amb, err := interpretAmount(tok.number, textCurrency)
		if err == nil {
			chosen := readings[0]
			if len(readings) > 1 && modelVal != nil {
				if i := slices.IndexFunc(readings, modelVal.Equal); i >= 0 {
					chosen, amb = readings[i], false
				}
			}
			res.amount, res.ambiguous = &chosen, amb
		}
	}
	if res.amount == nil && modelVal != nil {
		res.amount, res.ambiguous = modelVal, modelAmbiguous
	}
	if res.amount == nil {
		return amountResult{}
	}

	switch {
	case textCurrency != "":
		res.currency = textCurrency
	case ValidCurrency(strings.ToUpper(modelCurrency)):
		res.currency, res.defaultedCurrency = strings.ToUpper(modelCurrency), true
	default:
		res.currency, res.defaultedCurrency = defaultCurrency, true
	}
	return res
}
