package common

import (
	"errors"
	"fmt"
)

// AppError is a coded error; two AppErrors match under errors.Is when their codes agree.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Error codes.
const (
	CodeUnreadablePDF      = "UNREADABLE_PDF"
	CodeExtractionFailed   = "EXTRACTION_FAILED"
	CodeAmbiguousField     = "AMBIGUOUS_FIELD"
	CodeCorruptStore       = "CORRUPT_STORE"
	CodeFilesystemConflict = "FILESYSTEM_CONFLICT"
	CodeConfig             = "CONFIG_ERROR"
	CodeInvalidInput       = "INVALID_INPUT"
)

// Sentinels for errors.Is checks against coded errors.
var (
	ErrUnreadablePDF      = &AppError{Code: CodeUnreadablePDF, Message: "no text could be extracted"}
	ErrExtractionFailed   = &AppError{Code: CodeExtractionFailed, Message: "field extraction failed"}
	ErrAmbiguousField     = &AppError{Code: CodeAmbiguousField, Message: "field value is ambiguous"}
	ErrCorruptStore       = &AppError{Code: CodeCorruptStore, Message: "metadata store is corrupt"}
	ErrFilesystemConflict = &AppError{Code: CodeFilesystemConflict, Message: "destination already exists"}
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
)

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
