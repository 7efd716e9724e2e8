package common

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

// ValidationError is one rejected config field.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s (got %v)", e.Field, e.Message, e.Value)
}

// Validator collects every failing field so a bad config is reported in one go.
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field applies rules to value; each rule returns "" when the value passes.
func (v *Validator) Field(name string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if msg := rule(value); msg != "" {
			v.errors = append(v.errors, ValidationError{Field: name, Value: value, Message: msg})
		}
	}
	return v
}

// Check records message against name when ok is false, for rules that span fields.
func (v *Validator) Check(name string, value any, ok bool, message string) *Validator {
	if !ok {
		v.errors = append(v.errors, ValidationError{Field: name, Value: value, Message: message})
	}
	return v
}

func (v *Validator) HasErrors() bool { return len(v.errors) > 0 }

// ErrorMessage joins all failures with "; ".
func (v *Validator) ErrorMessage() string {
	msgs := make([]string, len(v.errors))
	for i, e := range v.errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

type ValidationRule func(value any) string

func Required(value any) string {
	switch v := value.(type) {
	case nil:
		return "is required"
	case string:
		if strings.TrimSpace(v) == "" {
			return "is required"
		}
	}
	return ""
}

func OneOf(allowed ...string) ValidationRule {
	return func(value any) string {
		s, _ := value.(string)
		for _, a := range allowed {
			if s == a {
				return ""
			}
		}
		return "must be one of " + strings.Join(allowed, ", ")
	}
}

// Between accepts ints, floats and durations in [lo, hi].
func Between(lo, hi float64) ValidationRule {
	return func(value any) string {
		var f float64
		switch n := value.(type) {
		case int:
			f = float64(n)
		case float32:
			f = float64(n)
		case float64:
			f = n
		case time.Duration:
			f = float64(n)
		default:
			return "must be a number"
		}
		if f < lo || f > hi {
			return fmt.Sprintf("must be between %g and %g", lo, hi)
		}
		return ""
	}
}

// Positive rejects zero and negative durations.
func Positive(value any) string {
	if d, ok := value.(time.Duration); ok && d > 0 {
		return ""
	}
	return "must be a positive duration"
}

var reCurrencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// CurrencyCode accepts ISO 4217 codes known to x/text.
func CurrencyCode(value any) string {
	s, _ := value.(string)
	if !reCurrencyCode.MatchString(s) {
		return "must be 3 uppercase letters (ISO 4217)"
	}
	if _, err := currency.ParseISO(s); err != nil {
		return "is not a known ISO 4217 code"
	}
	return ""
}
