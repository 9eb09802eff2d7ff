package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/plantdeck/plantdeck/internal/model"
)

// Writer appends page records to the extraction ledger, one JSON object per
// line. Each append is a single Write call so concurrent page workers never
// interleave partial lines.
type Writer struct {
	mu sync.Mutex
	f  *os.File
}

// ledgerLine is the on-disk shape: either a page record, or a document meta
// header carried under "_meta".
type ledgerLine struct {
	Meta *model.DocumentMeta `json:"_meta,omitempty"`
	model.PageRecord
}

// NewWriter truncates any previous ledger: a re-run supersedes, never merges.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create ledger: %w", err)
	}
	return &Writer{f: f}, nil
}

func (w *Writer) Append(rec model.PageRecord) error {
	return w.writeLine(ledgerLine{PageRecord: rec})
}

func (w *Writer) AppendMeta(meta model.DocumentMeta) error {
	return w.writeLine(ledgerLine{Meta: &meta})
}

func (w *Writer) writeLine(line ledgerLine) error {
	data, err := json.Marshal(line)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.f.Write(data)
	return err
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// ReadRecords streams the ledger and returns its page records in file order.
// Meta headers and malformed lines are skipped, not errors: a ledger written
// by an interrupted run must still be readable up to the cut.
func ReadRecords(path string) ([]model.PageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var records []model.PageRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var line ledgerLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Meta != nil {
			continue
		}
		if line.Document == "" || line.Page < 1 {
			continue
		}
		records = append(records, line.PageRecord)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	return records, nil
}

// PageKey identifies one page across the pipeline.
type PageKey struct {
	Document string
	Page     int
}

// PageImages builds the (document, page) -> image file name map used to
// attach rasters to passage hits.
func PageImages(path string) (map[PageKey][]string, error) {
	records, err := ReadRecords(path)
	if err != nil {
		return nil, err
	}
	m := make(map[PageKey][]string)
	for _, rec := range records {
		if len(rec.Images) == 0 {
			continue
		}
		key := PageKey{Document: rec.Document, Page: rec.Page}
		for _, img := range rec.Images {
			if img.Path == "" {
				continue
			}
			m[key] = append(m[key], filepath.Base(img.Path))
		}
	}
	return m, nil
}
