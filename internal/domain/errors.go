package domain

import "fmt"

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
	// ErrCodeParse marks a malformed or structurally invalid export for one
	// document. Aborts that document only, never the batch.
	ErrCodeParse = "PARSE_ERROR"
	// ErrCodeValidation marks an internally-computed invariant violation.
	// Indicates a pipeline bug, not bad input; fatal for the document.
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeStorage marks a transactional write failure other than the
	// expected version dedup conflict.
	ErrCodeStorage       = "STORAGE_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// NewParseError wraps a source-adapter failure with the offending path.
func NewParseError(sourcePath string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeParse, fmt.Sprintf("failed to parse %s", sourcePath), err)
}

// NewStorageError wraps a persistence failure.
func NewStorageError(err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeStorage, "storage operation failed", err)
}

// Validation errors
var (
	ErrInvalidSequence    = NewDomainError(ErrCodeValidation, "segment sequence must be a positive integer")
	ErrSequenceCollision  = NewDomainError(ErrCodeValidation, "duplicate segment sequence within scope")
	ErrUnresolvedParent   = NewDomainError(ErrCodeValidation, "parent node id does not resolve to an emitted segment")
	ErrMissingExternalID  = NewDomainError(ErrCodeValidation, "document external id is required")
	ErrEmptyWriteSet      = NewDomainError(ErrCodeValidation, "write set has no document")
	ErrMissingRawPayload  = NewDomainError(ErrCodeValidation, "raw payload is required for version checksum")
	ErrInvalidSegmentType = NewDomainError(ErrCodeValidation, "invalid segment type")
)

// Not found errors
var (
	ErrDocumentNotFound    = NewDomainError(ErrCodeNotFound, "document not found")
	ErrVersionNotFound     = NewDomainError(ErrCodeNotFound, "document version not found")
	ErrSegmentNotFound     = NewDomainError(ErrCodeNotFound, "segment not found")
	ErrAttachmentNotFound  = NewDomainError(ErrCodeNotFound, "attachment not found")
	ErrAttachmentNotStored = NewDomainError(ErrCodeNotFound, "attachment binary not uploaded to storage")
)
