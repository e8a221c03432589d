package canon

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is the closed set of error kinds the dispatcher distinguishes,
// per the taxonomy table. Retryability, breaker accounting, and fallback
// eligibility are all derived from the code, not re-decided ad hoc at each
// call site.
type ErrorCode string

const (
	ErrTransport         ErrorCode = "transport"
	ErrTimeout           ErrorCode = "timeout"
	ErrRateLimited       ErrorCode = "rate_limited"
	ErrServerError       ErrorCode = "server_error"
	ErrCircuitBreakerOpen ErrorCode = "circuit_breaker_open"
	ErrInvalidRequest    ErrorCode = "invalid_request"
	ErrToolIncompatible  ErrorCode = "tool_incompatible"
	ErrNoChoices         ErrorCode = "no_choices"
	ErrConfig            ErrorCode = "config"

	// Finer HTTP-status classes, folded into the table above at the
	// dispatcher boundary but kept distinct here so MapHTTPError can report
	// a precise message.
	ErrUnauthorized   ErrorCode = "unauthorized"
	ErrForbidden      ErrorCode = "forbidden"
	ErrQuotaExceeded  ErrorCode = "quota_exceeded"
	ErrUpstreamError  ErrorCode = "upstream_error"
	ErrModelOverloaded ErrorCode = "model_overloaded"
)

// classification is the retry/breaker/fallback policy for one ErrorCode, per
// the table in spec §7.
type classification struct {
	Retryable        bool
	BreakerCounted   bool
	FallbackEligible bool
	HTTPStatus       int
}

var taxonomy = map[ErrorCode]classification{
	ErrTransport:          {true, true, true, http.StatusBadGateway},
	ErrTimeout:            {true, true, true, http.StatusGatewayTimeout},
	ErrRateLimited:        {true, true, true, http.StatusTooManyRequests},
	ErrServerError:        {true, true, true, http.StatusBadGateway},
	ErrCircuitBreakerOpen: {false, false, true, http.StatusServiceUnavailable},
	ErrInvalidRequest:     {false, false, false, http.StatusBadRequest},
	ErrToolIncompatible:   {false, true, true, http.StatusBadGateway},
	ErrNoChoices:          {false, true, false, http.StatusBadGateway},
	ErrConfig:             {false, false, false, http.StatusServiceUnavailable},

	ErrUnauthorized:    {false, false, false, http.StatusUnauthorized},
	ErrForbidden:       {false, false, false, http.StatusForbidden},
	ErrQuotaExceeded:   {false, false, false, http.StatusBadRequest},
	ErrUpstreamError:   {true, true, true, http.StatusBadGateway},
	ErrModelOverloaded: {true, true, true, http.StatusBadGateway},
}

// Error is the structured error type threaded through the translator,
// dispatcher, and breaker. Mirrors the teacher's types.Error shape.
type Error struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Retryable  bool
	Provider   string
	Cause      error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an Error, looking up retryability/HTTP status defaults
// from the taxonomy table; callers may still override them with the
// With* builders.
func NewError(code ErrorCode, message string) *Error {
	cls := taxonomy[code]
	return &Error{Code: code, Message: message, HTTPStatus: cls.HTTPStatus, Retryable: cls.Retryable}
}

func (e *Error) WithCause(err error) *Error      { e.Cause = err; return e }
func (e *Error) WithProvider(p string) *Error    { e.Provider = p; return e }
func (e *Error) WithHTTPStatus(s int) *Error     { e.HTTPStatus = s; return e }
func (e *Error) WithRetryable(r bool) *Error     { e.Retryable = r; return e }

// IsRetryable reports whether err (or a wrapped *Error within it) is
// retryable at the C1 retry layer.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// BreakerCounted reports whether err should increment the circuit breaker's
// failure counter.
func BreakerCounted(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		if cls, ok := taxonomy[e.Code]; ok {
			return cls.BreakerCounted
		}
	}
	return true
}

// FallbackEligible reports whether err's class permits a one-shot fallback
// dispatch, per spec §4.7/§7.
func FallbackEligible(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		if cls, ok := taxonomy[e.Code]; ok {
			return cls.FallbackEligible
		}
	}
	return false
}

// GetErrorCode extracts the ErrorCode from err, or "" if err is not a
// *Error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// MapHTTPError maps an upstream HTTP status + message to a structured
// Error, grounded on the teacher's providers.MapHTTPError and extended
// with circuit_breaker_open/config (which never arise from an HTTP
// response) left for callers to construct directly.
func MapHTTPError(status int, msg string, provider string) *Error {
	switch status {
	case http.StatusUnauthorized:
		return NewError(ErrUnauthorized, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusForbidden:
		return NewError(ErrForbidden, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusTooManyRequests:
		return NewError(ErrRateLimited, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "credit") || strings.Contains(lower, "limit") {
			return NewError(ErrQuotaExceeded, msg).WithHTTPStatus(status).WithProvider(provider)
		}
		return NewError(ErrInvalidRequest, msg).WithHTTPStatus(status).WithProvider(provider)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return NewError(ErrUpstreamError, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	case 529:
		return NewError(ErrModelOverloaded, msg).WithHTTPStatus(status).WithRetryable(true).WithProvider(provider)
	default:
		return NewError(ErrUpstreamError, msg).WithHTTPStatus(status).WithRetryable(status >= 500).WithProvider(provider)
	}
}

// SurfaceStatus is the HTTP status the front door should return for a
// surfaced error, per spec §7's "mapped to 502 for untranslatable kinds,
// 504 for timeouts, 503 for circuit-breaker-open and config errors."
func SurfaceStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		switch e.Code {
		case ErrTimeout:
			return http.StatusGatewayTimeout
		case ErrCircuitBreakerOpen, ErrConfig:
			return http.StatusServiceUnavailable
		default:
			if e.HTTPStatus != 0 {
				return e.HTTPStatus
			}
		}
	}
	return http.StatusBadGateway
}
