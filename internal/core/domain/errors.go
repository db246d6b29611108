package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrCheckpointNotFound = errors.New("checkpoint not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTemporary          = errors.New("temporary failure")

	// ErrDocumentUnreadable is terminal for the whole document.
	ErrDocumentUnreadable = errors.New("document unreadable")

	// Per-unit failures. None of these abort sibling units.
	ErrPageRenderFailed          = errors.New("page render failed")
	ErrUploadFailed              = errors.New("page upload failed")
	ErrClassificationDegraded    = errors.New("classification degraded")
	ErrExtractionMalformed       = errors.New("extraction response malformed")
	ErrExtractionSchemaViolation = errors.New("extraction schema violation")

	// ErrDuplicateSkipped is informational, not a failure.
	ErrDuplicateSkipped = errors.New("duplicate question skipped")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// RawResponseError carries the unparseable model output verbatim so an
// operator can diagnose repeated extraction failures.
type RawResponseError struct {
	Operation string
	Raw       string
	Err       error
}

func (e *RawResponseError) Error() string {
	if e == nil {
		return "raw response error"
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *RawResponseError) Unwrap() error { return e.Err }

// RawResponse extracts the preserved model output from an error chain.
func RawResponse(err error) (string, bool) {
	var rawErr *RawResponseError
	if errors.As(err, &rawErr) {
		return rawErr.Raw, true
	}
	return "", false
}
