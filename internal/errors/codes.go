package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents internal error codes for meta-service operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Caller errors
	ErrCodeInvalidArgument         ErrorCode = 1000
	ErrCodeUnsupportedSelectorType ErrorCode = 1001

	// Placement errors, recoverable by the caller
	ErrCodeNoAvailablePeer   ErrorCode = 3000
	ErrCodePartialAllocation ErrorCode = 3001

	// Server errors
	ErrCodeInternal    ErrorCode = 2000
	ErrCodeUnavailable ErrorCode = 2001
)

var codeNames = map[ErrorCode]string{
	ErrCodeOK:                      "OK",
	ErrCodeInvalidArgument:         "INVALID_ARGUMENT",
	ErrCodeUnsupportedSelectorType: "UNSUPPORTED_SELECTOR_TYPE",
	ErrCodeNoAvailablePeer:         "NO_AVAILABLE_PEER",
	ErrCodePartialAllocation:       "PARTIAL_ALLOCATION",
	ErrCodeInternal:                "INTERNAL_ERROR",
	ErrCodeUnavailable:             "SERVICE_UNAVAILABLE",
}

// String returns the wire name of the code
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(c))
}

// Sentinels for errors.Is matching by code.
var (
	ErrInvalidArgument         = &MetaError{Code: ErrCodeInvalidArgument, Message: "invalid argument"}
	ErrUnsupportedSelectorType = &MetaError{Code: ErrCodeUnsupportedSelectorType, Message: "unsupported selector type"}
	ErrNoAvailablePeer         = &MetaError{Code: ErrCodeNoAvailablePeer, Message: "no available peer"}
	ErrPartialAllocation       = &MetaError{Code: ErrCodePartialAllocation, Message: "partial allocation"}
)

// MetaError represents a structured error with code and context
type MetaError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *MetaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *MetaError) Unwrap() error {
	return e.Cause
}

// Is matches any MetaError carrying the same code
func (e *MetaError) Is(target error) bool {
	t, ok := target.(*MetaError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus maps the error code to an HTTP status
func (e *MetaError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeOK:
		return http.StatusOK
	case ErrCodeInvalidArgument, ErrCodeUnsupportedSelectorType:
		return http.StatusBadRequest
	case ErrCodeNoAvailablePeer, ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodePartialAllocation:
		return http.StatusPartialContent
	default:
		return http.StatusInternalServerError
	}
}

// NewMetaError creates a new MetaError
func NewMetaError(code ErrorCode, message string, cause error) *MetaError {
	return &MetaError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *MetaError) WithDetail(key string, value interface{}) *MetaError {
	e.Details[key] = value
	return e
}

func InvalidArgument(message string, cause error) *MetaError {
	return NewMetaError(ErrCodeInvalidArgument, message, cause)
}

func UnsupportedSelectorType(selectorType string) *MetaError {
	return NewMetaError(ErrCodeUnsupportedSelectorType, fmt.Sprintf("unsupported selector type: %q", selectorType), nil).
		WithDetail("selector_type", selectorType)
}

func NoAvailablePeer(namespace uint64) *MetaError {
	return NewMetaError(ErrCodeNoAvailablePeer, fmt.Sprintf("no available peer in namespace %d", namespace), nil).
		WithDetail("namespace", namespace)
}

func PartialAllocation(namespace uint64, requested, allocated int) *MetaError {
	return NewMetaError(ErrCodePartialAllocation,
		fmt.Sprintf("namespace %d: allocated %d of %d requested peers", namespace, allocated, requested), nil).
		WithDetail("namespace", namespace).
		WithDetail("requested", requested).
		WithDetail("allocated", allocated)
}

func InternalError(message string, cause error) *MetaError {
	return NewMetaError(ErrCodeInternal, message, cause)
}

func Unavailable(message string, cause error) *MetaError {
	return NewMetaError(ErrCodeUnavailable, message, cause)
}

// GetCode extracts the error code from anywhere in the wrap chain
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var me *MetaError
	if stderrors.As(err, &me) {
		return me.Code
	}
	return ErrCodeInternal
}

// HTTPStatus maps an arbitrary error to an HTTP status
func HTTPStatus(err error) int {
	var me *MetaError
	if stderrors.As(err, &me) {
		return me.HTTPStatus()
	}
	return http.StatusInternalServerError
}
