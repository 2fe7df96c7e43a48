package types

import (
	"errors"
	"fmt"
)

// Standard error types
type ErrorType string

const (
	ErrTypeConfig       ErrorType = "CONFIG_ERROR"
	ErrTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrTypeInvalidValue ErrorType = "INVALID_VALUE"
	ErrTypeNetwork      ErrorType = "NETWORK_ERROR"
	ErrTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrTypeNotFound     ErrorType = "NOT_FOUND"
	ErrTypeTimeout      ErrorType = "TIMEOUT"

	// debugger taxonomy
	ErrTypeNotLoaded                ErrorType = "NOT_LOADED"
	ErrTypeIndexOutOfRange          ErrorType = "INDEX_OUT_OF_RANGE"
	ErrTypeTraceUnavailable         ErrorType = "TRACE_UNAVAILABLE"
	ErrTypeUnresolvedContract       ErrorType = "UNRESOLVED_CONTRACT"
	ErrTypeInvalidProgramCounter    ErrorType = "INVALID_PROGRAM_COUNTER"
	ErrTypeUnresolvedSourceLocation ErrorType = "UNRESOLVED_SOURCE_LOCATION"
	ErrTypeUnknownType              ErrorType = "UNKNOWN_TYPE"
	ErrTypeRecursionTooDeep         ErrorType = "RECURSION_TOO_DEEP"
	ErrTypeStorageFetchFailed       ErrorType = "STORAGE_FETCH_FAILED"
	ErrTypePreimageNotFound         ErrorType = "PREIMAGE_NOT_FOUND"
)

// Sentinels for errors.Is; a StandardError matches the sentinel of its Type.
var (
	ErrNotFound                 = &StandardError{Type: ErrTypeNotFound}
	ErrNotLoaded                = &StandardError{Type: ErrTypeNotLoaded}
	ErrIndexOutOfRange          = &StandardError{Type: ErrTypeIndexOutOfRange}
	ErrTraceUnavailable         = &StandardError{Type: ErrTypeTraceUnavailable}
	ErrUnresolvedContract       = &StandardError{Type: ErrTypeUnresolvedContract}
	ErrInvalidProgramCounter    = &StandardError{Type: ErrTypeInvalidProgramCounter}
	ErrUnresolvedSourceLocation = &StandardError{Type: ErrTypeUnresolvedSourceLocation}
	ErrUnknownType              = &StandardError{Type: ErrTypeUnknownType}
	ErrRecursionTooDeep         = &StandardError{Type: ErrTypeRecursionTooDeep}
	ErrStorageFetchFailed       = &StandardError{Type: ErrTypeStorageFetchFailed}
	ErrPreimageNotFound         = &StandardError{Type: ErrTypePreimageNotFound}
)

// StandardError provides consistent error formatting
type StandardError struct {
	Type      ErrorType
	Message   string
	Details   map[string]any
	Cause     error
	Retryable bool
}

func (e *StandardError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// Is matches any StandardError of the same type.
func (e *StandardError) Is(target error) bool {
	var t *StandardError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

// IsRetryable reports whether the host may retry the failed operation.
func IsRetryable(err error) bool {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// ErrorTypeOf returns the type of the outermost StandardError in the chain.
func ErrorTypeOf(err error) ErrorType {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Type
	}
	return ErrTypeInternal
}

// Error constructors for common cases

func NewConfigError(msg string, cause error) error {
	return &StandardError{
		Type:    ErrTypeConfig,
		Message: msg,
		Cause:   cause,
	}
}

func NewValidationError(field, msg string) error {
	return &StandardError{
		Type:    ErrTypeValidation,
		Message: fmt.Sprintf("validation failed for %s: %s", field, msg),
		Details: map[string]any{"field": field},
	}
}

func NewInvalidValueError(field, value, msg string) error {
	return &StandardError{
		Type:    ErrTypeInvalidValue,
		Message: fmt.Sprintf("invalid value for %s: %s (%s)", field, value, msg),
		Details: map[string]any{"field": field, "value": value},
	}
}

func NewNetworkError(url string, cause error) error {
	return &StandardError{
		Type:      ErrTypeNetwork,
		Message:   fmt.Sprintf("network request to %s failed", url),
		Details:   map[string]any{"url": url},
		Cause:     cause,
		Retryable: true,
	}
}

func NewNotFoundError(resource string) error {
	return &StandardError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Details: map[string]any{"resource": resource},
	}
}

func NewTimeoutError(operation string) error {
	return &StandardError{
		Type:      ErrTypeTimeout,
		Message:   fmt.Sprintf("%s operation timed out", operation),
		Details:   map[string]any{"operation": operation},
		Retryable: true,
	}
}

func NewInternalError(msg string, cause error) error {
	return &StandardError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

func NewLimiterNotInitializedError() error {
	return &StandardError{
		Type:    ErrTypeConfig,
		Message: "rate limiter not initialized: call InitLimiter first",
	}
}

// Debugger errors

func NewNotLoadedError(what string) error {
	return &StandardError{
		Type:    ErrTypeNotLoaded,
		Message: fmt.Sprintf("%s not loaded", what),
		Details: map[string]any{"resource": what},
	}
}

func NewIndexOutOfRangeError(step, length int) error {
	return &StandardError{
		Type:    ErrTypeIndexOutOfRange,
		Message: fmt.Sprintf("step %d outside of trace of length %d", step, length),
		Details: map[string]any{"step": step, "length": length},
	}
}

func NewTraceUnavailableError(txHash string, cause error) error {
	return &StandardError{
		Type:      ErrTypeTraceUnavailable,
		Message:   fmt.Sprintf("no trace available for %s", txHash),
		Details:   map[string]any{"tx": txHash},
		Cause:     cause,
		Retryable: cause != nil,
	}
}

func NewUnresolvedContractError(address string) error {
	return &StandardError{
		Type:    ErrTypeUnresolvedContract,
		Message: fmt.Sprintf("no compiled contract matches the code at %s", address),
		Details: map[string]any{"address": address},
	}
}

func NewInvalidProgramCounterError(address string, pc uint64, step int) error {
	return &StandardError{
		Type:    ErrTypeInvalidProgramCounter,
		Message: fmt.Sprintf("pc %d of step %d is not an instruction of %s", pc, step, address),
		Details: map[string]any{"address": address, "pc": pc, "step": step},
	}
}

func NewUnresolvedSourceLocationError(step int, cause error) error {
	return &StandardError{
		Type:    ErrTypeUnresolvedSourceLocation,
		Message: fmt.Sprintf("cannot resolve source location for step %d", step),
		Details: map[string]any{"step": step},
		Cause:   cause,
	}
}

func NewUnknownTypeError(typeName string) error {
	return &StandardError{
		Type:    ErrTypeUnknownType,
		Message: fmt.Sprintf("unable to retrieve decode info of %s", typeName),
		Details: map[string]any{"type": typeName},
	}
}

func NewRecursionTooDeepError(limit, step int) error {
	return &StandardError{
		Type:    ErrTypeRecursionTooDeep,
		Message: fmt.Sprintf("scope nesting exceeds %d at step %d", limit, step),
		Details: map[string]any{"limit": limit, "step": step},
	}
}

func NewStorageFetchFailedError(address string, cause error) error {
	return &StandardError{
		Type:      ErrTypeStorageFetchFailed,
		Message:   fmt.Sprintf("storage range fetch for %s failed", address),
		Details:   map[string]any{"address": address},
		Cause:     cause,
		Retryable: true,
	}
}

func NewPreimageNotFoundError(hash string) error {
	return &StandardError{
		Type:    ErrTypePreimageNotFound,
		Message: fmt.Sprintf("no preimage for %s", hash),
		Details: map[string]any{"hash": hash},
	}
}
