package constants

// CurrencySymbols maps symbols found in invoice text to ISO 4217 codes.
// Longer symbols must be matched before their suffixes ("US$" before "$").
var CurrencySymbols = []struct {
	Symbol string
	Code   string
}{
	{"US$", "USD"},
	{"C$", "CAD"},
	{"CA$", "CAD"},
	{"A$", "AUD"},
	{"AU$", "AUD"},
	{"NZ$", "NZD"},
	{"S$", "SGD"},
	{"HK$", "HKD"},
	{"R$", "BRL"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"₩", "KRW"},
	{"zł", "PLN"},
	{"₺", "TRY"},
}

// KnownCurrencyCodes is the set of ISO codes recognized as bare tokens in text.
// Restricted so that words like "ALL" or "TOP" are not taken for currencies.
var KnownCurrencyCodes = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "CAD": {}, "AUD": {}, "NZD": {}, "JPY": {},
	"INR": {}, "CHF": {}, "SEK": {}, "NOK": {}, "DKK": {}, "PLN": {}, "CZK": {},
	"BRL": {}, "MXN": {}, "SGD": {}, "HKD": {}, "CNY": {}, "ZAR": {}, "TRY": {},
	"KRW": {},
}

// commaDecimal lists currencies whose usual locale writes 1.234,56.
var commaDecimal = map[string]struct{}{
	"EUR": {}, "BRL": {}, "SEK": {}, "NOK": {}, "DKK": {}, "PLN": {}, "CZK": {},
	"TRY": {},
}

// DecimalSeparator returns the decimal separator of the currency's usual locale.
func DecimalSeparator(code string) byte {
	if _, ok := commaDecimal[code]; ok {
		return ','
	}
	return '.'
}
