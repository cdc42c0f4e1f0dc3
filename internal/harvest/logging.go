// Package harvest coordinates whole runs: per-title session wiring, the
// scanner/fetcher pipelines, and the append-only run logs each mode writes.
package harvest

import (
	"fmt"
	"io"
	"log"
	"os"
)

// NewRunLogger returns a logger that tees to stderr and an append-only log
// file, the way long harvests are monitored and audited. The caller closes
// the returned closer when the run ends. An empty path logs to stderr only.
func NewRunLogger(path string) (*log.Logger, io.Closer, error) {
	if path == "" {
		return log.New(os.Stderr, "", log.LstdFlags), io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return log.New(io.MultiWriter(os.Stderr, f), "", log.LstdFlags), f, nil
}
