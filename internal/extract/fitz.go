package extract

import (
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
)

// fitzDocument wraps a MuPDF handle. MuPDF contexts are not safe for
// concurrent use, so every call holds the mutex; page workers still overlap
// on OCR and storage work.
type fitzDocument struct {
	mu  sync.Mutex
	doc *fitz.Document
}

func openFitz(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &fitzDocument{doc: doc}, nil
}

func (d *fitzDocument) NumPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.NumPage()
}

func (d *fitzDocument) Text(page int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Text(page)
}

func (d *fitzDocument) Render(page int, dpi float64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.ImageDPI(page, dpi)
}

func (d *fitzDocument) Metadata() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Metadata()
}

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}
