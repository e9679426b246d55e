package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError by code and message so that wrapped
// sentinels compare equal with errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeExtraction        = "EXTRACTION_ERROR"
	ErrCodeStoreIO           = "STORE_IO_ERROR"
	ErrCodeEmbedding         = "EMBEDDING_ERROR"
	ErrCodeMalformedScenario = "MALFORMED_SCENARIO"
)

// Validation errors
var (
	ErrEmptyContent      = NewDomainError(ErrCodeValidation, "chunk content is empty")
	ErrInvalidChunkType  = NewDomainError(ErrCodeValidation, "invalid chunk type")
	ErrDimensionMismatch = NewDomainError(ErrCodeValidation, "embedding dimension mismatch")
	ErrNonFiniteVector   = NewDomainError(ErrCodeValidation, "embedding has non-finite values")
	ErrMissingSource     = NewDomainError(ErrCodeValidation, "chunk source is empty")
	ErrInvalidMetadata   = NewDomainError(ErrCodeValidation, "invalid metadata")
	ErrUnsupportedFormat = NewDomainError(ErrCodeUnsupportedFormat, "unsupported file format")
	ErrInvalidKnowledge  = NewDomainError(ErrCodeValidation, "invalid knowledge file")
	ErrStoreIO           = NewDomainError(ErrCodeStoreIO, "store operation failed")
	ErrChunkNotFound     = NewDomainError(ErrCodeNotFound, "chunk not found")
	ErrInvalidAPIKey     = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)

// NewExtractionError reports a per-file extraction failure.
func NewExtractionError(source string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeExtraction, fmt.Sprintf("extract %s", source), err)
}

// NewStoreIOError wraps a persistence failure.
func NewStoreIOError(op string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeStoreIO, op, err)
}

// NewEmbeddingError wraps an embedding provider failure.
func NewEmbeddingError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeEmbedding, "embedding service failed", err)
}

// NewMalformedScenarioError names the offending scenario field.
func NewMalformedScenarioError(field, reason string) *DomainError {
	return NewDomainError(ErrCodeMalformedScenario, fmt.Sprintf("malformed scenario: %s %s", field, reason))
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
