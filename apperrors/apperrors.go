// Package apperrors is the error taxonomy shared by services and handlers.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors by how callers should react to them.
type Kind string

const (
	KindValidation      Kind = "VALIDATION_ERROR"
	KindNotFound        Kind = "RESOURCE_NOT_FOUND"
	KindBusinessLogic   Kind = "BUSINESS_LOGIC_ERROR"
	KindDatabase        Kind = "DATABASE_ERROR"
	KindExternalService Kind = "EXTERNAL_SERVICE_ERROR"
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
)

// Specific codes carried alongside the kind.
const (
	CodeDrugNotFound       = "DRUG_NOT_FOUND"
	CodeInvalidComposition = "INVALID_COMPOSITION"
	CodeNoComposition      = "NO_COMPOSITION"
	CodeMissingParameter   = "MISSING_PARAMETER"
	CodeAlreadyDeleted     = "DRUG_DELETED"
)

// Sentinel errors for errors.Is checks on kind.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrBusinessLogic   = &Error{Kind: KindBusinessLogic}
	ErrDatabase        = &Error{Kind: KindDatabase}
	ErrExternalService = &Error{Kind: KindExternalService}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
)

// Detail is one itemised problem, usually a field-level validation issue.
type Detail struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// Error is a categorised application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details []Detail
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// StatusCode maps the kind onto an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation, KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindBusinessLogic:
		return http.StatusUnprocessableEntity
	case KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// New builds an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func InvalidArgument(message string) *Error {
	return New(KindInvalidArgument, CodeMissingParameter, message)
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

// Validation builds a validation error carrying itemised details.
func Validation(code, message string, details []Detail) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Details: details}
}

func BusinessLogic(code, message string) *Error {
	return New(KindBusinessLogic, code, message)
}

func Database(message string, err error) *Error {
	return Wrap(KindDatabase, message, err)
}

func External(message string, err error) *Error {
	return Wrap(KindExternalService, message, err)
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// StatusCode returns the HTTP status for any error; unknown errors are 500.
func StatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode()
	}
	return http.StatusInternalServerError
}
