package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Diag is the extractor's diagnostics sink. It is passed in at construction
// so ingestion runs stay independently testable.
type Diag interface {
	Logf(format string, args ...interface{})
}

// FileDiag appends timestamped lines to a log file, one line per event.
type FileDiag struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileDiag(path string) (*FileDiag, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create diagnostics log: %w", err)
	}
	return &FileDiag{f: f}, nil
}

func (d *FileDiag) Logf(format string, args ...interface{}) {
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format("2006-01-02 15:04:05"), fmt.Sprintf(format, args...))
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = d.f.WriteString(line)
}

func (d *FileDiag) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}

// NopDiag discards everything.
type NopDiag struct{}

func (NopDiag) Logf(string, ...interface{}) {}
