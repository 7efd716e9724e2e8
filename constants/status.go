package constants

// RecordStatus is the canonical outcome of processing one invoice file.
type RecordStatus string

// Stable values (persisted in the metadata document).
const (
	StatusExtracted        RecordStatus = "EXTRACTED"         // fields extracted and normalized
	StatusUnreadablePDF    RecordStatus = "UNREADABLE_PDF"    // no text from text layer or OCR
	StatusExtractionFailed RecordStatus = "EXTRACTION_FAILED" // model call exhausted retries or returned garbage
)

// Failed reports whether the status is terminal without fields.
func (s RecordStatus) Failed() bool {
	return s == StatusUnreadablePDF || s == StatusExtractionFailed
}

// Valid reports whether s is one of the known statuses.
func (s RecordStatus) Valid() bool {
	switch s {
	case StatusExtracted, StatusUnreadablePDF, StatusExtractionFailed:
		return true
	}
	return false
}

// Text extraction methods.
const (
	MethodPDFText   = "pdf-text"
	MethodPDFNative = "pdf-native"
	MethodPDFOCR    = "pdf-ocr"
)

// UnknownVendor is the sender key used when no sender could be normalized.
const UnknownVendor = "unknown_vendor"

// Undated is the month bucket for records without an issue date.
const Undated = "undated"
