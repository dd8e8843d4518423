// Package gwerrors defines the gateway's surfaced error taxonomy.
//
// Adapted from the teacher's pkg/provider/errors.ProviderError /
// ValidationError shape: a single tagged error type carrying an HTTP
// status and a stable machine-readable code, with Unwrap support so
// callers can still errors.As into the underlying cause.
package gwerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is one of the gateway's surfaced error codes (spec §7).
type Code string

const (
	CodeInvalidRequest      Code = "invalid_request"
	CodeInvalidAPIKey       Code = "invalid_api_key"
	CodeForbidden           Code = "forbidden"
	CodeRouteNotFound       Code = "route_not_found"
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	CodeUpstreamError       Code = "upstream_error"
	CodeClaudeValidation    Code = "claude_validation"
	CodeInternalError       Code = "internal_error"
)

// statusForCode is the default HTTP status for a surfaced code. The
// validator overrides this to 430 for CodeClaudeValidation (the
// non-standard status required by spec §4.5/§6).
var statusForCode = map[Code]int{
	CodeInvalidRequest:      http.StatusBadRequest,
	CodeInvalidAPIKey:       http.StatusUnauthorized,
	CodeForbidden:           http.StatusForbidden,
	CodeRouteNotFound:       http.StatusBadRequest,
	CodeUpstreamUnavailable: http.StatusBadGateway,
	CodeUpstreamError:       http.StatusBadGateway,
	CodeClaudeValidation:    430,
	CodeInternalError:       http.StatusInternalServerError,
}

// GatewayError is the single surfaced error type for the request
// pipeline. It carries exactly the taxonomy code, the HTTP status to
// respond with, a human message, and an optional wrapped cause.
type GatewayError struct {
	Code    Code
	Status  int
	Message string
	Cause   error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Cause }

// New builds a GatewayError using the default status for code.
func New(code Code, message string) *GatewayError {
	return &GatewayError{Code: code, Status: statusForCode[code], Message: message}
}

// Wrap builds a GatewayError around a cause, using the default status for code.
func Wrap(code Code, message string, cause error) *GatewayError {
	return &GatewayError{Code: code, Status: statusForCode[code], Message: message, Cause: cause}
}

// WithStatus overrides the HTTP status of an otherwise-default error
// (used by the validator to force 430).
func WithStatus(code Code, status int, message string) *GatewayError {
	return &GatewayError{Code: code, Status: status, Message: message}
}

// As extracts a *GatewayError from err, if present.
func As(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// ValidationContext provides a field-path-qualified location for a
// C5 validator rejection, mirroring the teacher's ValidationContext.
type ValidationContext struct {
	Field      string
	EntityName string
	EntityID   string
}

// ValidationError is the structured rejection produced by the C5
// request-validation gate. Code is the validator's own reason code
// (internal/validator uses "invalid_request"); ToGatewayError surfaces
// every rejection as CodeClaudeValidation with status 430.
type ValidationError struct {
	Code    string
	Message string
	Path    string
	Context *ValidationContext
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("validation failed at %s: %s (%s)", e.Path, e.Message, e.Code)
	}
	return fmt.Sprintf("validation failed: %s (%s)", e.Message, e.Code)
}

// ToGatewayError converts a validator rejection into the 430 surfaced error.
func (e *ValidationError) ToGatewayError() *GatewayError {
	return WithStatus(CodeClaudeValidation, 430, e.Message)
}
