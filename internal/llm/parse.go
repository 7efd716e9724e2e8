package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/joseph-ayodele/invoice-organizer/internal/common"
)

// ParseResponse turns model output into RawFields. It tries a strict JSON parse,
// then a permissive scan for an object substring, sanitizes keys and values,
// and validates the result against the invoice schema. Any failure is an
// EXTRACTION_FAILED AppError; the returned bytes are the sanitized document.
func ParseResponse(content string, logger *slog.Logger) (RawFields, []byte, error) {
	if logger == nil {
		logger = slog.Default()
	}

	doc, err := decodeObject(strings.TrimSpace(content))
	if err != nil {
		var lenientErr error
		doc, lenientErr = decodeLenient(content)
		if lenientErr != nil {
			logger.Error("llm.parse.no_json", "error", err, "content_len", len(content))
			return RawFields{}, nil, common.NewAppError(common.CodeExtractionFailed, "response is not a JSON object", errors.Join(err, lenientErr))
		}
		logger.Warn("llm.parse.lenient_fallback", "strict_error", err)
	}

	cleaned, changes, err := NormalizeAndSanitizeJSON(doc, logger)
	if err != nil {
		return RawFields{}, nil, common.NewAppError(common.CodeExtractionFailed, "sanitize response", err)
	}

	schema, err := compiledInvoiceSchema()
	if err != nil {
		return RawFields{}, cleaned, common.NewAppError(common.CodeExtractionFailed, "schema unavailable", err)
	}
	if err := validate(schema, cleaned); err != nil {
		logger.Error("llm.parse.schema_validation_failed", "error", err, "content", string(cleaned))
		return RawFields{}, cleaned, common.NewAppError(common.CodeExtractionFailed, "response failed schema validation", err)
	}

	var out RawFields
	if err := json.Unmarshal(cleaned, &out); err != nil {
		return RawFields{}, cleaned, common.NewAppError(common.CodeExtractionFailed, "unmarshal fields", err)
	}
	out.AmountNumeric = out.Amount != "" && slices.Contains(changes, ChangeAmountNumber)
	return out, cleaned, nil
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if m == nil {
		return nil, errors.New("decode: null document")
	}
	if dec.More() {
		return nil, errors.New("decode: trailing data after object")
	}
	return m, nil
}

func decodeLenient(content string) (map[string]any, error) {
	candidates := JSONObjectCandidates(content)
	if len(candidates) == 0 {
		return nil, errors.New("no object found")
	}
	var errs []error
	for _, c := range candidates {
		m, err := decodeObject(c)
		if err == nil {
			return m, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}
