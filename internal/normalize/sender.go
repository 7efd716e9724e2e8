package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/joseph-ayodele/invoice-organizer/constants"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// "Corp" and "Company" are kept: they are usually part of the brand name.
	reLegalSuffix = regexp.MustCompile(`(?i)[\s,]+(inc|incorporated|llc|l\.l\.c|ltd|limited|pbc|gmbh|plc|s\.?a|a\.?g|b\.?v|pty|llp|s\.?r\.?l)\.?$`)
	reNonAlnum    = regexp.MustCompile(`[^a-z0-9]+`)
	senderNulls   = map[string]struct{}{"": {}, "unknown": {}, "null": {}, "none": {}, "n/a": {}, "vendor": {}, "unknown_vendor": {}}
)

// SenderKey derives the normalization key for a vendor name.
// It returns constants.UnknownVendor and false when nothing usable remains.
func SenderKey(raw string, aliases map[string]string) (string, bool) {
	s := strings.TrimSpace(raw)
	if _, isNull := senderNulls[strings.ToLower(s)]; isNull {
		return constants.UnknownVendor, false
	}

	s = foldDiacritics(s)
	for {
		stripped := reLegalSuffix.ReplaceAllString(s, "")
		if stripped == s || strings.TrimSpace(stripped) == "" {
			break
		}
		s = stripped
	}

	key := strings.Trim(reNonAlnum.ReplaceAllString(strings.ToLower(s), "_"), "_")
	if key == "" {
		return constants.UnknownVendor, false
	}
	if alias, ok := aliases[key]; ok && alias != "" {
		key = alias
	}
	return key, true
}

// foldDiacritics maps "Société" to "Societe". Transformers are stateful, so one is built per call.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
