package errutil

import "net/http"

// CoreStatus is the transport-agnostic error code carried by BaseError.
type CoreStatus string

const (
	StatusBadRequest         CoreStatus = "BAD_REQUEST"
	StatusValidationFailed   CoreStatus = "VALIDATION_FAILED"
	StatusUnauthorized       CoreStatus = "UNAUTHORIZED"
	StatusForbidden          CoreStatus = "FORBIDDEN"
	StatusNotFound           CoreStatus = "NOT_FOUND"
	StatusConflict           CoreStatus = "CONFLICT"
	StatusTooManyRequests    CoreStatus = "TOO_MANY_REQUESTS"
	StatusTimeout            CoreStatus = "TIMEOUT"
	StatusServiceUnavailable CoreStatus = "SERVICE_UNAVAILABLE"
	StatusInternal           CoreStatus = "INTERNAL"
	StatusUnknown            CoreStatus = "UNKNOWN"
)

// HTTPStatus converts the CoreStatus to its closest HTTP status code equivalent.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed:
		return http.StatusBadRequest
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict:
		return http.StatusConflict
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusTimeout:
		return http.StatusGatewayTimeout
	case StatusServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may safely retry the command.
// Only transient storage failures qualify; every other status is final.
func (s CoreStatus) Retryable() bool {
	return s == StatusTimeout || s == StatusServiceUnavailable
}
