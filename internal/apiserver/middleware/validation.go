// Package middleware provides HTTP middleware for request validation.
package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"

	chi "github.com/go-chi/chi/v5"
)

const (
	// MaxRequestBodySize is the maximum allowed request body size (1MB)
	MaxRequestBodySize = 1 * 1024 * 1024
)

// Field patterns for run requests. Project and location follow cloud
// resource naming rules; instance names are DNS-label shaped.
var (
	validProjectPattern  = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)
	validLocationPattern = regexp.MustCompile(`^[a-z]+-[a-z]+[0-9]+(-[a-z])?$`)
	validInstancePattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,61}[a-z0-9]?$`)
	validRunIDPattern    = regexp.MustCompile(`^[a-zA-Z0-9-]{1,100}$`)
)

// ValidationError represents a validation error response
type ValidationError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// RunIDValidator creates a middleware that validates run IDs in URL parameters
func RunIDValidator(paramName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, paramName)

			if id == "" {
				writeValidationError(w, fmt.Sprintf("%s is required", paramName), paramName)
				return
			}

			if !validRunIDPattern.MatchString(id) {
				writeValidationError(w, fmt.Sprintf("%s contains invalid characters or is too long", paramName), paramName)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RunRequestValidator creates a middleware that validates the fleet naming
// fields of run creation requests before the handler decodes them.
func RunRequestValidator() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			body, err := parseAndRestoreBody(r)
			if err != nil {
				writeValidationError(w, err.Error(), "body")
				return
			}

			if field, err := validateRunFields(body); err != nil {
				writeValidationError(w, err.Error(), field)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validateRunFields checks project, locations, and instance naming.
// Returns the offending field name with the error.
func validateRunFields(body map[string]interface{}) (string, error) {
	project, ok := body["project"].(string)
	if !ok || project == "" {
		return "project", fmt.Errorf("project is required")
	}
	if !validProjectPattern.MatchString(project) {
		return "project", fmt.Errorf("project name %q is not a valid project identifier", project)
	}

	rawLocations, ok := body["locations"].([]interface{})
	if !ok || len(rawLocations) == 0 {
		return "locations", fmt.Errorf("at least one location is required")
	}
	for _, raw := range rawLocations {
		loc, ok := raw.(string)
		if !ok || !validLocationPattern.MatchString(loc) {
			return "locations", fmt.Errorf("location %v is not a valid location identifier", raw)
		}
	}

	if rawInstance, present := body["instance"]; present {
		instance, ok := rawInstance.(string)
		if !ok || instance == "" || !validInstancePattern.MatchString(instance) {
			return "instance", fmt.Errorf("instance %v is not a valid instance name", rawInstance)
		}
	}

	return "", nil
}

// parseAndRestoreBody reads, parses, and restores the request body with a
// size limit
func parseAndRestoreBody(r *http.Request) (map[string]interface{}, error) {
	limitedReader := io.LimitReader(r.Body, MaxRequestBodySize)
	bodyBytes, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body")
	}

	if n, _ := io.Copy(io.Discard, r.Body); n > 0 {
		return nil, fmt.Errorf("request body too large (max %d bytes)", MaxRequestBodySize)
	}

	_ = r.Body.Close()

	var body map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return nil, fmt.Errorf("invalid JSON in request body")
	}

	// Restore the body for the next handler
	r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	return body, nil
}

// ContentTypeValidator ensures requests with a body declare JSON
func ContentTypeValidator() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				if r.ContentLength > 0 || r.Header.Get("Transfer-Encoding") != "" {
					contentType := r.Header.Get("Content-Type")
					if contentType != "application/json" {
						writeValidationError(w, "Content-Type must be application/json", "header")
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeValidationError writes a validation error response
func writeValidationError(w http.ResponseWriter, message, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	response := ValidationError{
		Error:   "validation_error",
		Message: message,
		Field:   field,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		_ = err
	}
}
