package app

import (
	"fmt"
	"net/http"
)

// DomainError is an error with a fixed HTTP status and a stable machine
// code. Cause, when set, is the lower-level failure behind it; it is
// logged but never sent to clients.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	Cause   error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// upstreamError reports a 502 for a dependency (chain node, exporter) that
// failed. The reason text is surfaced in details.
func upstreamError(code, message string, cause error) *DomainError {
	err := domainError(http.StatusBadGateway, code, message, map[string]any{"reason": cause.Error()})
	err.Cause = cause
	return err
}
