package extract

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/plantdeck/plantdeck/internal/imagestore"
	"github.com/plantdeck/plantdeck/internal/ledger"
	"github.com/plantdeck/plantdeck/internal/model"
)

type Options struct {
	DPI         int
	Lang        string
	ForceOCR    bool
	DisableOCR  bool
	RenderPages bool
	// ScannedTextThreshold: native text shorter than this marks the page as
	// scanned and routes it to OCR.
	ScannedTextThreshold int
	Workers              int
	MaxPages             int
	TesseractPath        string
}

// Extractor turns source documents into page records. Every collaborator is
// an interface so ingestion runs are testable without real PDFs or a
// tesseract install.
type Extractor struct {
	open     Opener
	repair   Repairer
	ocr      OCR
	fallback FallbackParser
	puller   ImagePuller
	images   imagestore.Store
	diag     ledger.Diag
	opts     Options
}

// New wires the production collaborators: MuPDF for native text and
// rendering, pdfcpu for repair and embedded images, tesseract for OCR,
// and a malformed-tolerant text-only parser as the last resort.
func New(images imagestore.Store, diag ledger.Diag, opts Options) *Extractor {
	if opts.DPI <= 0 {
		opts.DPI = 300
	}
	if opts.Lang == "" {
		opts.Lang = "eng"
	}
	if opts.ScannedTextThreshold <= 0 {
		opts.ScannedTextThreshold = 50
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	var ocr OCR
	if !opts.DisableOCR {
		if t := NewTesseract(opts.TesseractPath); t.Available() {
			ocr = t
		}
	}
	return newExtractor(openFitz, pdfcpuRepairer{}, ocr, ledongthucParser{}, pdfcpuImagePuller{}, images, diag, opts)
}

func newExtractor(open Opener, repair Repairer, ocr OCR, fallback FallbackParser, puller ImagePuller, images imagestore.Store, diag ledger.Diag, opts Options) *Extractor {
	if diag == nil {
		diag = ledger.NopDiag{}
	}
	return &Extractor{
		open:     open,
		repair:   repair,
		ocr:      ocr,
		fallback: fallback,
		puller:   puller,
		images:   images,
		diag:     diag,
		opts:     opts,
	}
}

// Run extracts every *.pdf under dir, optionally filtered by a
// case-insensitive name substring, appending records to the ledger.
func (e *Extractor) Run(ctx context.Context, dir string, only string, w *ledger.Writer) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil {
		return err
	}
	sort.Strings(paths)
	if only != "" {
		filtered := paths[:0]
		for _, p := range paths {
			if strings.Contains(strings.ToLower(filepath.Base(p)), strings.ToLower(only)) {
				filtered = append(filtered, p)
			}
		}
		paths = filtered
	}
	logger := logutil.GetLogger(ctx)
	for _, path := range paths {
		logger.Info("extracting document", zap.String("document", filepath.Base(path)))
		if err := e.ExtractDocument(ctx, path, w); err != nil {
			return err
		}
	}
	return nil
}

// ExtractDocument produces exactly one record per page. A bad page degrades
// to an empty fallback-text-only record; only a configuration-level failure
// (ledger write) aborts.
func (e *Extractor) ExtractDocument(ctx context.Context, path string, w *ledger.Writer) error {
	name := filepath.Base(path)
	doc, repaired, err := e.openWithRepair(ctx, path)
	if err != nil {
		// both native attempts raised: tolerant text-only parse
		return e.extractFallbackOnly(ctx, path, w)
	}
	defer doc.Close()

	meta := doc.Metadata()
	total := doc.NumPages()
	if err := w.AppendMeta(model.DocumentMeta{
		Document: name,
		Title:    meta["title"],
		Author:   meta["author"],
		Pages:    total,
	}); err != nil {
		return err
	}

	pages := total
	if e.opts.MaxPages > 0 && e.opts.MaxPages < pages {
		pages = e.opts.MaxPages
	}
	embedded := e.pullEmbeddedImages(ctx, path, name)

	// pages fan out to workers; each page's cascade stays sequential
	workers := e.opts.Workers
	if workers <= 0 {
		workers = 1
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	var writeErr error
	var writeErrOnce sync.Once
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range jobs {
				rec := e.extractPage(ctx, &pageContext{
					doc:      doc,
					document: name,
					page:     page,
					repaired: repaired,
					embedded: embedded[page+1],
				})
				if err := w.Append(*rec); err != nil {
					writeErrOnce.Do(func() { writeErr = err })
				}
			}
		}()
	}
	for page := 0; page < pages; page++ {
		jobs <- page
	}
	close(jobs)
	wg.Wait()
	return writeErr
}

func (e *Extractor) openWithRepair(ctx context.Context, path string) (Document, bool, error) {
	doc, err := e.open(path)
	if err == nil {
		return doc, false, nil
	}
	e.diag.Logf("[open-fail] %s: %v", filepath.Base(path), err)

	fixed := path + ".fixed"
	if rerr := e.repair.Repair(ctx, path, fixed); rerr != nil {
		e.diag.Logf("[repair-fail] %s: %v", filepath.Base(path), rerr)
		return nil, false, err
	}
	defer os.Remove(fixed)
	doc, rerr := e.open(fixed)
	if rerr != nil {
		e.diag.Logf("[repair-reopen-fail] %s: %v", filepath.Base(path), rerr)
		return nil, false, err
	}
	e.diag.Logf("[repaired] %s", filepath.Base(path))
	return doc, true, nil
}

// extractPage runs the strategy chain: first strategy that is neither
// insufficient nor failing wins. Exhaustion or failure yields an empty
// fallback record, never an aborted run.
func (e *Extractor) extractPage(ctx context.Context, pc *pageContext) *model.PageRecord {
	for _, s := range e.strategies() {
		rec, err := s.attempt(ctx, pc)
		if err == errInsufficient {
			continue
		}
		if err != nil {
			e.diag.Logf("[page-fail] %s p%d (%s): %v", pc.document, pc.page+1, s.name(), err)
			break
		}
		if e.opts.RenderPages && rec.Method != model.MethodOCR {
			e.renderPageImage(ctx, pc, rec)
		}
		return rec
	}
	return &model.PageRecord{
		Document: pc.document,
		Page:     pc.page + 1,
		Method:   model.MethodFallbackText,
		Images:   pc.embedded,
	}
}

// renderPageImage persists a page thumbnail for pages that never went
// through OCR, so every page can show a rendered preview.
func (e *Extractor) renderPageImage(ctx context.Context, pc *pageContext, rec *model.PageRecord) {
	if e.images == nil {
		return
	}
	img, err := pc.doc.Render(pc.page, float64(e.opts.DPI))
	if err != nil {
		e.diag.Logf("[render-fail] %s p%d: %v", pc.document, pc.page+1, err)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		e.diag.Logf("[render-fail] %s p%d: %v", pc.document, pc.page+1, err)
		return
	}
	name := fmt.Sprintf("%s_p%d_%s.png", docStem(pc.document), pc.page+1, pageHash(pc.document, pc.page+1))
	if err := e.images.Save(ctx, name, bytes.NewReader(buf.Bytes())); err != nil {
		e.diag.Logf("[render-save-fail] %s: %v", name, err)
		return
	}
	rec.Images = append(rec.Images, model.ImageRef{Path: name, SourceRef: -1})
}

func (e *Extractor) strategies() []strategy {
	return []strategy{
		&nativeStrategy{opts: e.opts},
		&ocrStrategy{ex: e},
	}
}

func (e *Extractor) extractFallbackOnly(ctx context.Context, path string, w *ledger.Writer) error {
	_ = ctx
	name := filepath.Base(path)
	texts, err := e.fallback.PageTexts(path)
	if err != nil {
		// nothing left to try: one empty record so the document still shows up
		e.diag.Logf("[fallback-fail] %s: %v", name, err)
		return w.Append(model.PageRecord{Document: name, Page: 1, Method: model.MethodFallbackText})
	}
	if err := w.AppendMeta(model.DocumentMeta{Document: name, Pages: len(texts)}); err != nil {
		return err
	}
	pages := len(texts)
	if e.opts.MaxPages > 0 && e.opts.MaxPages < pages {
		pages = e.opts.MaxPages
	}
	for i := 0; i < pages; i++ {
		if err := w.Append(model.PageRecord{
			Document: name,
			Page:     i + 1,
			Text:     texts[i],
			Method:   model.MethodFallbackText,
		}); err != nil {
			return err
		}
	}
	return nil
}

// pullEmbeddedImages runs independently of the text strategies: every
// embedded raster is stored regardless of how the page's text was obtained.
func (e *Extractor) pullEmbeddedImages(ctx context.Context, path, name string) map[int][]model.ImageRef {
	if e.puller == nil || e.images == nil {
		return nil
	}
	stem := docStem(name)
	seq := make(map[int]int)
	out := make(map[int][]model.ImageRef)
	err := e.puller.Pull(ctx, path, func(img PulledImage) error {
		seq[img.Page]++
		imgName := fmt.Sprintf("%s_p%d_img%d.%s", stem, img.Page, seq[img.Page], img.FileType)
		if err := e.images.Save(ctx, imgName, img.Reader); err != nil {
			e.diag.Logf("[img-fail] %s: %v", imgName, err)
			return nil
		}
		out[img.Page] = append(out[img.Page], model.ImageRef{Path: imgName, SourceRef: img.ObjNr})
		return nil
	})
	if err != nil {
		e.diag.Logf("[img-scan-fail] %s: %v", name, err)
	}
	return out
}

func docStem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func pageHash(document string, page int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%d", document, page)))
	return hex.EncodeToString(sum[:])[:10]
}
