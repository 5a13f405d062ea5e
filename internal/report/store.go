package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/upfleet/upfleet/internal/logging"
)

// Store persists run reports. Save returns the location the report was
// written to (a file path or object URL).
type Store interface {
	Save(ctx context.Context, r *Report) (string, error)
}

// FileStore writes reports to a local directory
type FileStore struct {
	dir    string
	logger *logging.Logger
}

// NewFileStore creates a file-backed report store, creating the directory if
// needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("report directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}
	return &FileStore{
		dir:    dir,
		logger: logging.NewLogger("report-file-store"),
	}, nil
}

// Save writes the report as JSON into the store's directory
func (s *FileStore) Save(_ context.Context, r *Report) (string, error) {
	data, err := r.JSON()
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, r.FileName())
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", path, err)
	}

	s.logger.Infof("Report written to %s", path)
	return path, nil
}
