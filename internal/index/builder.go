package index

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/plantdeck/plantdeck/internal/ai"
)

// Item pairs the text to embed with the metadata row it will produce.
type Item[M any] struct {
	Text string
	Meta M
}

type BuildOptions struct {
	// MaxInputChars caps a single input; longer texts are truncated and the
	// row is flagged, never dropped.
	MaxInputChars int
	BatchSize     int
}

// Build embeds the items in order and assembles the index. Empty texts are
// skipped with a warning: after normalization a zero vector would rank as
// moderately similar to everything, so it must never enter the matrix.
// Deterministic for identical inputs and an identical embedding model.
func Build[M any](ctx context.Context, embedder ai.IEmbedder, items []Item[M], opts BuildOptions) (*Index[M], error) {
	logger := logutil.GetLogger(ctx)
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}

	texts := make([]string, 0, len(items))
	metas := make([]M, 0, len(items))
	var truncated []int
	for i, item := range items {
		if item.Text == "" {
			logger.Warn("skipping empty index input", zap.Int("position", i))
			continue
		}
		text := item.Text
		if opts.MaxInputChars > 0 {
			if runes := []rune(text); len(runes) > opts.MaxInputChars {
				text = string(runes[:opts.MaxInputChars])
				truncated = append(truncated, len(texts))
			}
		}
		texts = append(texts, text)
		metas = append(metas, item.Meta)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no non-empty inputs to index")
	}

	ix := &Index[M]{
		ModelVersion: embedder.Version(),
		Truncated:    truncated,
	}
	for start := 0; start < len(texts); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		for i, vec := range vecs {
			if ix.Dim == 0 {
				ix.Dim = len(vec)
			}
			if len(vec) != ix.Dim {
				return nil, fmt.Errorf("embedding dim changed mid-build: got %d want %d", len(vec), ix.Dim)
			}
			unit := normalize(vec)
			if unit == nil {
				return nil, fmt.Errorf("embedding model returned a zero vector at row %d", start+i)
			}
			ix.vectors = append(ix.vectors, unit...)
			ix.Entries = append(ix.Entries, metas[start+i])
		}
	}
	logger.Info("index built",
		zap.String("model", ix.ModelVersion),
		zap.Int("rows", ix.Rows()),
		zap.Int("dim", ix.Dim),
		zap.Int("truncated", len(ix.Truncated)),
	)
	return ix, nil
}
