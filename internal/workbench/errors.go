package workbench

import (
	"errors"
	"fmt"
	"net/http"
)

// Static errors surfaced by the client
var (
	// ErrNoOperationName means a mutating call returned without an operation id
	ErrNoOperationName = errors.New("no operation name in response")
)

// APIError is a non-2xx response from the control plane
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("control plane returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("control plane returned HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is an HTTP 404 from the control plane
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
