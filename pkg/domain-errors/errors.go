// Package derrors defines the coded domain errors shared by services, stores,
// and transports. Services return these; the HTTP layer translates codes to
// status lines without inspecting messages.
package derrors

import (
	"errors"
	"net/http"
)

// Code identifies a class of failure. Codes are part of the API surface: they
// appear verbatim in error envelopes, so values are stable snake_case strings.
type Code string

const (
	// Registry precondition failures. Each is detected before any mutation,
	// so an operation that reports one has had no effect.
	CodeNotAuthorized Code = "not_authorized" // caller lacks admin rights
	CodeInvalidBank   Code = "invalid_bank"   // caller or target bank not registered
	CodeNotFound      Code = "not_found"      // bank, customer, or request key absent
	CodeAlreadyExists Code = "already_exists" // duplicate key on create
	CodeNotEligible   Code = "not_eligible"   // bank barred from voting
	CodeAlreadyVoted  Code = "already_voted"  // duplicate vote on unchanged data
	CodeSelfVote      Code = "self_vote"      // bank voting on its own customer

	// Transport and infrastructure failures.
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal_error"

	// CodeInvariantViolation marks a broken engine invariant (for example a
	// deleted record reading back as present). It is never a caller error; it
	// means the engine itself is buggy and the response carries no detail.
	CodeInvariantViolation Code = "invariant_violation"
)

// Error carries a code, a caller-facing message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal so unknown
// failures never leak detail through the transport.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-facing message, empty for uncoded errors.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

// ToHTTPStatus maps a code to its HTTP status. Precondition failures that name
// a missing right map to 403, missing records to 404, duplicate work to 409.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotAuthorized, CodeInvalidBank, CodeNotEligible, CodeSelfVote:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeAlreadyVoted:
		return http.StatusConflict
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
