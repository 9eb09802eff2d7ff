package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/plantdeck/plantdeck/internal/ledger"
	"github.com/plantdeck/plantdeck/internal/model"
)

type fakeDocument struct {
	texts     []string
	textErrs  map[int]error
	renderErr error
	meta      map[string]string
}

func (d *fakeDocument) NumPages() int { return len(d.texts) }

func (d *fakeDocument) Text(page int) (string, error) {
	if err, ok := d.textErrs[page]; ok {
		return "", err
	}
	return d.texts[page], nil
}

func (d *fakeDocument) Render(page int, dpi float64) (image.Image, error) {
	if d.renderErr != nil {
		return nil, d.renderErr
	}
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

func (d *fakeDocument) Metadata() map[string]string { return d.meta }
func (d *fakeDocument) Close() error                { return nil }

type fakeOCR struct {
	out []byte
	err error
}

func (o *fakeOCR) Recognize(ctx context.Context, imagePath string, lang string) ([]byte, error) {
	return o.out, o.err
}

type fakeRepairer struct {
	err error
}

func (r *fakeRepairer) Repair(ctx context.Context, src, dst string) error { return r.err }

type fakeFallback struct {
	texts []string
	err   error
}

func (f *fakeFallback) PageTexts(path string) ([]string, error) { return f.texts, f.err }

type fakePuller struct {
	images []PulledImage
}

func (p *fakePuller) Pull(ctx context.Context, path string, emit func(PulledImage) error) error {
	for _, img := range p.images {
		img.Reader = bytes.NewReader([]byte("png"))
		if err := emit(img); err != nil {
			return err
		}
	}
	return nil
}

type memImageStore struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func newMemImageStore() *memImageStore {
	return &memImageStore{saved: make(map[string][]byte)}
}

func (s *memImageStore) Type() string { return "mem" }

func (s *memImageStore) Save(ctx context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[name] = data
	return nil
}

func (s *memImageStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.saved[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memImageStore) URL(name string, baseURL string) string { return "/images/" + name }

func openOK(doc Document) Opener {
	return func(path string) (Document, error) { return doc, nil }
}

func openFailThenOK(doc Document) Opener {
	calls := 0
	return func(path string) (Document, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("broken xref")
		}
		return doc, nil
	}
}

func runExtract(t *testing.T, e *Extractor, path string) []model.PageRecord {
	t.Helper()
	ledgerPath := filepath.Join(t.TempDir(), "raw_pages.jsonl")
	w, err := ledger.NewWriter(ledgerPath)
	require.NoError(t, err)
	require.NoError(t, e.ExtractDocument(context.Background(), path, w))
	require.NoError(t, w.Close())
	records, err := ledger.ReadRecords(ledgerPath)
	require.NoError(t, err)
	sort.Slice(records, func(i, j int) bool { return records[i].Page < records[j].Page })
	return records
}

func TestExtractNativeText(t *testing.T) {
	doc := &fakeDocument{
		texts: []string{strings.Repeat("ginger rhizome notes ", 10)},
		meta:  map[string]string{"title": "Herbal Guide"},
	}
	e := newExtractor(openOK(doc), &fakeRepairer{}, &fakeOCR{}, &fakeFallback{}, nil, nil, ledger.NopDiag{},
		Options{ScannedTextThreshold: 50, Workers: 1, DPI: 72})
	records := runExtract(t, e, "/pdfs/guide.pdf")
	require.Len(t, records, 1)
	require.Equal(t, "guide.pdf", records[0].Document)
	require.Equal(t, 1, records[0].Page)
	require.Equal(t, model.MethodNative, records[0].Method)
	require.Equal(t, doc.texts[0], records[0].Text)
}

func TestExtractScannedPageGoesToOCR(t *testing.T) {
	doc := &fakeDocument{texts: []string{"  "}}
	store := newMemImageStore()
	ocr := &fakeOCR{out: []byte("Ginger\xff\xfe root\nEstimating resolution as 300\n")}
	e := newExtractor(openOK(doc), &fakeRepairer{}, ocr, &fakeFallback{}, nil, store, ledger.NopDiag{},
		Options{ScannedTextThreshold: 50, Workers: 1, DPI: 72, Lang: "eng"})
	records := runExtract(t, e, "/pdfs/scan.pdf")
	require.Len(t, records, 1)
	require.Equal(t, model.MethodOCR, records[0].Method)
	require.Equal(t, "Ginger root", records[0].Text)
	// the page render is persisted and referenced with a synthetic source ref
	require.Len(t, records[0].Images, 1)
	require.Equal(t, -1, records[0].Images[0].SourceRef)
	_, ok := store.saved[records[0].Images[0].Path]
	require.True(t, ok)
}

func TestExtractForceOCR(t *testing.T) {
	doc := &fakeDocument{texts: []string{strings.Repeat("plenty of native text ", 20)}}
	e := newExtractor(openOK(doc), &fakeRepairer{}, &fakeOCR{out: []byte("ocr text")}, &fakeFallback{}, nil, nil, ledger.NopDiag{},
		Options{ScannedTextThreshold: 50, Workers: 1, DPI: 72, ForceOCR: true})
	records := runExtract(t, e, "/pdfs/force.pdf")
	require.Len(t, records, 1)
	require.Equal(t, model.MethodOCR, records[0].Method)
	require.Equal(t, "ocr text", records[0].Text)
}

func TestExtractBlankOCRKeepsNativeText(t *testing.T) {
	// short but non-empty native text, OCR comes back blank
	doc := &fakeDocument{texts: []string{"Fig. 3"}}
	e := newExtractor(openOK(doc), &fakeRepairer{}, &fakeOCR{out: []byte("\n\f\n")}, &fakeFallback{}, nil, nil, ledger.NopDiag{},
		Options{ScannedTextThreshold: 50, Workers: 1, DPI: 72})
	records := runExtract(t, e, "/pdfs/fig.pdf")
	require.Len(t, records, 1)
	require.Equal(t, model.MethodNative, records[0].Method)
	require.Equal(t, "Fig. 3", records[0].Text)
}

func TestExtractWithoutOCRKeepsThinNativeText(t *testing.T) {
	doc := &fakeDocument{texts: []string{"thin"}}
	e := newExtractor(openOK(doc), &fakeRepairer{}, nil, &fakeFallback{}, nil, nil, ledger.NopDiag{},
		Options{ScannedTextThreshold: 50, Workers: 1, DPI: 72})
	records := runExtract(t, e, "/pdfs/thin.pdf")
	require.Len(t, records, 1)
	require.Equal(t, model.MethodNative, records[0].Method)
	require.Equal(t, "thin", records[0].Text)
}

func TestExtractNativeErrorWithoutOCRIsNotNative(t *testing.T) {
	// page 1's text layer raises and no OCR engine exists; the record must
	// not claim native produced it
	doc := &fakeDocument{
		texts:    []string{"unused", strings.Repeat("fine page ", 10)},
		textErrs: map[int]error{0: errors.New("corrupt content stream")},
	}
	e := newExtractor(openOK(doc), &fakeRepairer{}, nil, &fakeFallback{}, nil, nil, ledger.NopDiag{},
		Options{ScannedTextThreshold: 50, Workers: 1, DPI: 72})
	records := runExtract(t, e, "/pdfs/badpage.pdf")
	require.Len(t, records, 2)
	require.Equal(t, model.MethodFallbackText, records[0].Method)
	require.Empty(t, records[0].Text)
	require.Equal(t, model.MethodNative, records[1].Method)
}

func TestExtractRenderPagesPersistsThumbnail(t *testing.T) {
	doc := &fakeDocument{texts: []string{strings.Repeat("native page text ", 10)}}
	store := newMemImageStore()
	e := newExtractor(openOK(doc), &fakeRepairer{}, nil, &fakeFallback{}, nil, store, ledger.NopDiag{},
		Options{ScannedTextThreshold: 50, Workers: 1, DPI: 72, RenderPages: true})
	records := runExtract(t, e, "/pdfs/thumbs.pdf")
	require.Len(t, records, 1)
	require.Equal(t, model.MethodNative, records[0].Method)
	require.Len(t, records[0].Images, 1)
	require.Equal(t, -1, records[0].Images[0].SourceRef)
	_, ok := store.saved[records[0].Images[0].Path]
	require.True(t, ok)
}

func TestExtractRepairedDocument(t *testing.T) {
	doc := &fakeDocument{texts: []string{strings.Repeat("recovered text ", 10)}}
	e := newExtractor(openFailThenOK(doc), &fakeRepairer{}, nil, &fakeFallback{}, nil, nil, ledger.NopDiag{},
		Options{ScannedTextThreshold: 50, Workers: 1, DPI: 72})
	records := runExtract(t, e, "/pdfs/damaged.pdf")
	require.Len(t, records, 1)
	require.Equal(t, model.MethodRepairedNative, records[0].Method)
}

func TestExtractFallbackOnly(t *testing.T) {
	open := func(path string) (Document, error) { return nil, errors.New("unreadable") }
	fallback := &fakeFallback{texts: []string{"page one text", "", "page three text"}}
	e := newExtractor(open, &fakeRepairer{err: errors.New("still broken")}, nil, fallback, nil, nil, ledger.NopDiag{},
		Options{ScannedTextThreshold: 50, Workers: 1, DPI: 72})
	records := runExtract(t, e, "/pdfs/wreck.pdf")
	require.Len(t, records, 3)
	for i, rec := range records {
		require.Equal(t, model.MethodFallbackText, rec.Method)
		require.Equal(t, i+1, rec.Page)
		require.Equal(t, fallback.texts[i], rec.Text)
	}
}

func TestExtractTotalFailureStillEmitsRecord(t *testing.T) {
	open := func(path string) (Document, error) { return nil, errors.New("unreadable") }
	e := newExtractor(open, &fakeRepairer{err: errors.New("no")}, nil, &fakeFallback{err: errors.New("no")}, nil, nil, ledger.NopDiag{},
		Options{ScannedTextThreshold: 50, Workers: 1, DPI: 72})
	records := runExtract(t, e, "/pdfs/hopeless.pdf")
	require.Len(t, records, 1)
	require.Equal(t, model.MethodFallbackText, records[0].Method)
	require.Empty(t, records[0].Text)
}

func TestExtractPageFailureDegradesToEmptyRecord(t *testing.T) {
	doc := &fakeDocument{
		texts:     []string{strings.Repeat("fine page ", 10), "  "},
		renderErr: errors.New("render blew up"),
	}
	e := newExtractor(openOK(doc), &fakeRepairer{}, &fakeOCR{out: []byte("x")}, &fakeFallback{}, nil, nil, ledger.NopDiag{},
		Options{ScannedTextThreshold: 50, Workers: 2, DPI: 72})
	records := runExtract(t, e, "/pdfs/mixed.pdf")
	require.Len(t, records, 2)
	require.Equal(t, model.MethodNative, records[0].Method)
	require.Equal(t, model.MethodFallbackText, records[1].Method)
	require.Empty(t, records[1].Text)
}

func TestExtractEmbeddedImages(t *testing.T) {
	doc := &fakeDocument{texts: []string{strings.Repeat("herb text ", 10), strings.Repeat("more text ", 10)}}
	store := newMemImageStore()
	puller := &fakePuller{images: []PulledImage{
		{Page: 1, ObjNr: 12, FileType: "png"},
		{Page: 1, ObjNr: 15, FileType: "jpg"},
		{Page: 2, ObjNr: 20, FileType: "png"},
	}}
	e := newExtractor(openOK(doc), &fakeRepairer{}, nil, &fakeFallback{}, puller, store, ledger.NopDiag{},
		Options{ScannedTextThreshold: 5, Workers: 2, DPI: 72})
	records := runExtract(t, e, "/pdfs/illustrated.pdf")
	require.Len(t, records, 2)
	require.Len(t, records[0].Images, 2)
	require.Equal(t, "illustrated_p1_img1.png", records[0].Images[0].Path)
	require.Equal(t, 12, records[0].Images[0].SourceRef)
	require.Equal(t, "illustrated_p1_img2.jpg", records[0].Images[1].Path)
	require.Len(t, records[1].Images, 1)
	require.Equal(t, "illustrated_p2_img1.png", records[1].Images[0].Path)
	require.Len(t, store.saved, 3)
}

func TestExtractMaxPages(t *testing.T) {
	doc := &fakeDocument{texts: []string{
		strings.Repeat("one ", 20), strings.Repeat("two ", 20), strings.Repeat("three ", 20),
	}}
	e := newExtractor(openOK(doc), &fakeRepairer{}, nil, &fakeFallback{}, nil, nil, ledger.NopDiag{},
		Options{ScannedTextThreshold: 5, Workers: 1, DPI: 72, MaxPages: 2})
	records := runExtract(t, e, "/pdfs/long.pdf")
	require.Len(t, records, 2)
}

func TestLooksScanned(t *testing.T) {
	cases := []struct {
		text   string
		images int
		want   bool
	}{
		{"", 0, true},
		{"short", 0, true},
		{strings.Repeat("x", 60), 0, false},
		{strings.Repeat("x", 60), 2, true},
		{strings.Repeat("x", 300), 2, false},
	}
	for i, c := range cases {
		require.Equal(t, c.want, looksScanned(c.text, c.images, 50), "case %d", i)
	}
}

func TestDecodeOCROutput(t *testing.T) {
	raw := []byte("Estimating resolution as 283\nWarning: Invalid resolution 0 dpi\nZingiber officinale\nA pungent rhizome.\f")
	require.Equal(t, "Zingiber officinale\nA pungent rhizome.", DecodeOCROutput(raw))
}

func TestDecodeOCROutputNeverInvalid(t *testing.T) {
	// arbitrary byte soup must decode to valid UTF-8 without error
	for seed := 0; seed < 64; seed++ {
		raw := make([]byte, 256)
		for i := range raw {
			raw[i] = byte((i*7 + seed*13) % 256)
		}
		out := DecodeOCROutput(raw)
		require.True(t, utf8.ValidString(out), fmt.Sprintf("seed %d", seed))
	}
}
