package constants

// Flag marks a normalization rule that had to guess.
type Flag string

const (
	FlagAmbiguousDate     Flag = "ambiguous_date"
	FlagMissingDate       Flag = "missing_date"
	FlagUnknownSender     Flag = "unknown_sender"
	FlagDefaultedCurrency Flag = "defaulted_currency"
	FlagAmbiguousAmount   Flag = "ambiguous_amount"
	FlagMissingAmount     Flag = "missing_amount"
)

// Penalties subtracted from a starting confidence of 1.0.
var Penalties = map[Flag]float64{
	FlagAmbiguousDate:     0.2,
	FlagMissingDate:       0.4,
	FlagUnknownSender:     0.3,
	FlagDefaultedCurrency: 0.2,
	FlagAmbiguousAmount:   0.2,
	FlagMissingAmount:     0.4,
}

// Describe returns a human readable reason for a flag.
func (f Flag) Describe() string {
	switch f {
	case FlagAmbiguousDate:
		return "issue date is ambiguous"
	case FlagMissingDate:
		return "no issue date found"
	case FlagUnknownSender:
		return "sender could not be identified"
	case FlagDefaultedCurrency:
		return "currency not found in text, default applied"
	case FlagAmbiguousAmount:
		return "amount separators are ambiguous"
	case FlagMissingAmount:
		return "no valid amount found"
	default:
		return string(f)
	}
}
