package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink stores archive batches under a base directory, creating parent
// directories as needed. Batch names use slash separators and are converted
// to the platform path.
type FileSink struct {
	dir string
}

var _ ArchiveSink = (*FileSink)(nil)

// NewFileSink creates a FileSink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Store writes data to dir/name.
func (s *FileSink) Store(_ context.Context, name string, data []byte) error {
	path := filepath.Join(s.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing archive %s: %w", path, err)
	}
	return nil
}
