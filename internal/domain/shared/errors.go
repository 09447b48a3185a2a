package shared

import "fmt"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok || t == nil {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInvalidID           = NewDomainError("INVALID_ID", "Invalid identifier")
)

// InvalidIDReason tells why an identifier was rejected
type InvalidIDReason string

const (
	InvalidIDEmpty       InvalidIDReason = "EMPTY"
	InvalidIDInvalid     InvalidIDReason = "INVALID"
	InvalidIDWrongFormat InvalidIDReason = "WRONG_FORMAT"
)

// InvalidIDError is returned when an identifier fails validation
type InvalidIDError struct {
	DomainError
	Reason InvalidIDReason `json:"reason"`
	Value  string          `json:"value,omitempty"`
}

// Unwrap exposes the underlying DomainError so errors.Is(err, ErrInvalidID) holds
func (e *InvalidIDError) Unwrap() error {
	return &e.DomainError
}

func newInvalidIDError(reason InvalidIDReason, value, message string) *InvalidIDError {
	return &InvalidIDError{
		DomainError: DomainError{Code: ErrInvalidID.Code, Message: message},
		Reason:      reason,
		Value:       value,
	}
}

// InvalidIDBecauseEmpty reports an empty identifier
func InvalidIDBecauseEmpty() *InvalidIDError {
	return newInvalidIDError(InvalidIDEmpty, "", "Id cannot be empty")
}

// InvalidIDBecauseInvalid reports an identifier rejected by a domain rule
func InvalidIDBecauseInvalid(value string) *InvalidIDError {
	return newInvalidIDError(InvalidIDInvalid, value, fmt.Sprintf("Id %q is invalid", value))
}

// InvalidIDBecauseWrongFormat reports an identifier with the wrong syntax
func InvalidIDBecauseWrongFormat(value string) *InvalidIDError {
	return newInvalidIDError(InvalidIDWrongFormat, value, fmt.Sprintf("Id %q has wrong format", value))
}
