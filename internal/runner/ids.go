// Package runner provides the run execution infrastructure behind the API
// server: run tracking, embedded and distributed queue backends, and the
// executor that drives the fleet engine for each queued run.
package runner

import (
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// NewRunID generates a unique run identifier
func NewRunID() (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("failed to generate run ID: %w", err)
	}
	return "run-" + id, nil
}
