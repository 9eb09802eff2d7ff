package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/plantdeck/plantdeck/internal/model"
)

// errInsufficient signals that a strategy ran but its result is not good
// enough, so the chain should continue.
var errInsufficient = errors.New("extract: result insufficient")

type pageContext struct {
	doc      Document
	document string
	page     int // zero based
	repaired bool
	embedded []model.ImageRef

	// nativeText carries the native result forward so later strategies can
	// fall back to it; nativeFailed records that native extraction raised,
	// which is distinct from returning thin text.
	nativeText   string
	nativeFailed bool
}

type strategy interface {
	name() string
	attempt(ctx context.Context, pc *pageContext) (*model.PageRecord, error)
}

// Document abstracts an opened source document for page access.
type Document interface {
	NumPages() int
	Text(page int) (string, error)
	Render(page int, dpi float64) (image.Image, error)
	Metadata() map[string]string
	Close() error
}

type Opener func(path string) (Document, error)

type Repairer interface {
	Repair(ctx context.Context, src, dst string) error
}

type OCR interface {
	Recognize(ctx context.Context, imagePath string, lang string) ([]byte, error)
}

type FallbackParser interface {
	PageTexts(path string) ([]string, error)
}

type PulledImage struct {
	Page     int // one based
	ObjNr    int
	FileType string
	Reader   io.Reader
}

type ImagePuller interface {
	Pull(ctx context.Context, path string, emit func(PulledImage) error) error
}

type nativeStrategy struct {
	opts Options
}

func (s *nativeStrategy) name() string { return "native" }

func (s *nativeStrategy) attempt(ctx context.Context, pc *pageContext) (*model.PageRecord, error) {
	_ = ctx
	text, err := pc.doc.Text(pc.page)
	if err != nil {
		pc.nativeFailed = true
		return nil, errInsufficient
	}
	pc.nativeText = text
	if s.opts.ForceOCR || looksScanned(text, len(pc.embedded), s.opts.ScannedTextThreshold) {
		return nil, errInsufficient
	}
	return &model.PageRecord{
		Document: pc.document,
		Page:     pc.page + 1,
		Text:     text,
		Method:   nativeMethod(pc.repaired),
		Images:   pc.embedded,
	}, nil
}

// looksScanned flags pages whose native layer is too thin to trust: barely
// any text at all, or mostly images with a caption's worth of text.
func looksScanned(text string, imageCount, threshold int) bool {
	n := len(strings.TrimSpace(text))
	if n < threshold {
		return true
	}
	return imageCount >= 2 && n < threshold*4
}

func nativeMethod(repaired bool) model.ExtractMethod {
	if repaired {
		return model.MethodRepairedNative
	}
	return model.MethodNative
}

type ocrStrategy struct {
	ex *Extractor
}

func (s *ocrStrategy) name() string { return "ocr" }

func (s *ocrStrategy) attempt(ctx context.Context, pc *pageContext) (*model.PageRecord, error) {
	if s.ex.ocr == nil {
		if pc.nativeFailed {
			// native raised and there is no OCR to try; the method must not
			// pretend native produced this page
			return &model.PageRecord{
				Document: pc.document,
				Page:     pc.page + 1,
				Method:   model.MethodFallbackText,
				Images:   pc.embedded,
			}, nil
		}
		// no OCR available: the native text, however thin, is the best we have
		return &model.PageRecord{
			Document: pc.document,
			Page:     pc.page + 1,
			Text:     pc.nativeText,
			Method:   nativeMethod(pc.repaired),
			Images:   pc.embedded,
		}, nil
	}
	img, err := pc.doc.Render(pc.page, float64(s.ex.opts.DPI))
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode render: %w", err)
	}
	images := pc.embedded
	if s.ex.images != nil {
		renderName := fmt.Sprintf("%s_p%d_%s.png", docStem(pc.document), pc.page+1, pageHash(pc.document, pc.page+1))
		if err := s.ex.images.Save(ctx, renderName, bytes.NewReader(buf.Bytes())); err != nil {
			s.ex.diag.Logf("[render-save-fail] %s: %v", renderName, err)
		} else {
			images = append(append([]model.ImageRef{}, images...), model.ImageRef{Path: renderName, SourceRef: -1})
		}
	}
	raw, err := s.recognize(ctx, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("ocr page: %w", err)
	}
	text := DecodeOCROutput(raw)
	method := model.MethodOCR
	if strings.TrimSpace(text) == "" {
		// OCR came back blank: prefer whatever the native layer had
		if strings.TrimSpace(pc.nativeText) != "" {
			text = pc.nativeText
			method = nativeMethod(pc.repaired)
		} else {
			text = ""
		}
	}
	return &model.PageRecord{
		Document: pc.document,
		Page:     pc.page + 1,
		Text:     text,
		Method:   method,
		Images:   images,
	}, nil
}

// recognize writes the render to a temp file for the OCR binary, which only
// reads from disk.
func (s *ocrStrategy) recognize(ctx context.Context, pngData []byte) ([]byte, error) {
	f, err := os.CreateTemp("", "plantdeck-ocr-*.png")
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(pngData); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return s.ex.ocr.Recognize(ctx, f.Name(), s.ex.opts.Lang)
}
