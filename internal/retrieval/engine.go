package retrieval

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/plantdeck/plantdeck/internal/ai"
	"github.com/plantdeck/plantdeck/internal/chunk"
	"github.com/plantdeck/plantdeck/internal/index"
	"github.com/plantdeck/plantdeck/internal/model"
	"github.com/plantdeck/plantdeck/internal/pkg/errs"
)

// EntityStore is the read-only structured store the engine enriches entity
// hits from.
type EntityStore interface {
	GetEntityAttributes(ctx context.Context, id int64) (*model.EntityAttributes, error)
}

// ImageResolver turns a stored image name into a servable URL.
type ImageResolver func(name string) string

type Options struct {
	TopKEntities     int
	TopKPassages     int
	SnippetMax       int
	MaxImagesPerPage int
}

// Request is the retrieval query contract consumed from the HTTP layer.
type Request struct {
	Question     string `json:"question"`
	TopKEntities int    `json:"top_k_entities"`
	Deep         bool   `json:"deep"`
	TopKPassages int    `json:"top_k_passages"`
}

// Engine answers retrieval queries against the two loaded indexes. Indexes
// are immutable values behind atomic pointers: a rebuild swaps, so in-flight
// queries finish against the old value. Stateless per query otherwise.
type Engine struct {
	embedder ai.IEmbedder
	store    EntityStore
	resolve  ImageResolver
	opts     Options

	entity  atomic.Pointer[index.Index[index.EntityMeta]]
	passage atomic.Pointer[index.Index[index.PassageMeta]]

	queryCache *expirable.LRU[string, []float32]
}

func NewEngine(embedder ai.IEmbedder, store EntityStore, resolve ImageResolver, opts Options) *Engine {
	if opts.TopKEntities <= 0 {
		opts.TopKEntities = 5
	}
	if opts.TopKPassages <= 0 {
		opts.TopKPassages = 8
	}
	if opts.MaxImagesPerPage <= 0 {
		opts.MaxImagesPerPage = 6
	}
	if resolve == nil {
		resolve = func(name string) string { return "/images/" + name }
	}
	return &Engine{
		embedder:   embedder,
		store:      store,
		resolve:    resolve,
		opts:       opts,
		queryCache: expirable.NewLRU[string, []float32](1024, nil, 10*time.Minute),
	}
}

// SetEntityIndex swaps in a new entity index.
func (e *Engine) SetEntityIndex(ix *index.Index[index.EntityMeta]) {
	e.entity.Store(ix)
}

// SetPassageIndex swaps in a new passage index; nil disables deep search.
func (e *Engine) SetPassageIndex(ix *index.Index[index.PassageMeta]) {
	e.passage.Store(ix)
}

// DeepAvailable reports whether passage-level search can run.
func (e *Engine) DeepAvailable() bool {
	return e.passage.Load() != nil
}

// ModelVersion is the live embedding model identifier.
func (e *Engine) ModelVersion() string {
	return e.embedder.Version()
}

// Query runs the retrieval protocol: version check, question embedding,
// entity search, optional passage search (both concurrent), store
// enrichment, snippet/image resolution, citation merge.
func (e *Engine) Query(ctx context.Context, req Request) (*model.GroundedContextBundle, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("question", req.Question))

	entityIx := e.entity.Load()
	if entityIx == nil {
		return nil, fmt.Errorf("%w: entity index not loaded", errs.ErrIndexUnavailable)
	}
	if err := e.checkVersion(entityIx.ModelVersion); err != nil {
		return nil, err
	}
	var passageIx *index.Index[index.PassageMeta]
	if req.Deep {
		passageIx = e.passage.Load()
		if passageIx == nil {
			return nil, fmt.Errorf("%w: passage index not loaded", errs.ErrIndexUnavailable)
		}
		if err := e.checkVersion(passageIx.ModelVersion); err != nil {
			return nil, err
		}
	}

	vec, err := e.embedQuestion(ctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	topKEntities := req.TopKEntities
	if topKEntities <= 0 {
		topKEntities = e.opts.TopKEntities
	}
	topKPassages := req.TopKPassages
	if topKPassages <= 0 {
		topKPassages = e.opts.TopKPassages
	}

	// the two searches are independent; run them side by side
	var entityHits, passageHits []index.Hit
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		entityHits = entityIx.Search(vec, topKEntities)
	}()
	if passageIx != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			passageHits = passageIx.Search(vec, topKPassages)
		}()
	}
	wg.Wait()

	// slices start non-nil so empty results serialize as arrays, not null
	bundle := &model.GroundedContextBundle{
		Hits:        []model.EntityHit{},
		Context:     []model.EntityAttributes{},
		PageContext: []model.PassageHit{},
	}
	for _, hit := range entityHits {
		meta := entityIx.Entries[hit.Row]
		attrs, err := e.store.GetEntityAttributes(ctx, meta.ID)
		if err != nil {
			// a stale index row must degrade that one hit, not the query
			logger.Warn("entity hit missing from structured store",
				zap.Int64("entity_id", meta.ID), zap.Error(err))
			continue
		}
		bundle.Hits = append(bundle.Hits, model.EntityHit{
			EntityID: meta.ID,
			Label:    meta.Label,
			Score:    hit.Score,
		})
		bundle.Context = append(bundle.Context, *attrs)
	}

	seenPages := make(map[model.Citation]bool)
	for _, hit := range passageHits {
		meta := passageIx.Entries[hit.Row]
		key := model.Citation{Document: meta.Document, Page: meta.Page}
		// hits arrive best-first, so the first snippet per page wins
		if seenPages[key] {
			continue
		}
		seenPages[key] = true
		images := meta.Images
		if len(images) > e.opts.MaxImagesPerPage {
			images = images[:e.opts.MaxImagesPerPage]
		}
		urls := make([]string, 0, len(images))
		for _, name := range images {
			urls = append(urls, e.resolve(name))
		}
		bundle.PageContext = append(bundle.PageContext, model.PassageHit{
			Document: meta.Document,
			Page:     meta.Page,
			Snippet:  chunk.Snippet(meta.Snippet, e.opts.SnippetMax),
			Score:    hit.Score,
			Images:   urls,
		})
	}

	bundle.Citations = mergeCitations(bundle.Context, bundle.PageContext)
	return bundle, nil
}

func (e *Engine) checkVersion(indexVersion string) error {
	if live := e.embedder.Version(); indexVersion != live {
		return fmt.Errorf("%w: index built with %q, live model is %q",
			errs.ErrVersionMismatch, indexVersion, live)
	}
	return nil
}

func (e *Engine) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	if vec, ok := e.queryCache.Get(question); ok {
		return vec, nil
	}
	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	e.queryCache.Add(question, vec)
	return vec, nil
}

// mergeCitations unions entity citations with passage pages, deduplicated,
// discovery order preserved.
func mergeCitations(context []model.EntityAttributes, pages []model.PassageHit) []model.Citation {
	out := []model.Citation{}
	seen := make(map[model.Citation]bool)
	add := func(c model.Citation) {
		if c.Document == "" || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}
	for _, attrs := range context {
		for _, c := range attrs.Citations {
			add(c)
		}
	}
	for _, hit := range pages {
		add(model.Citation{Document: hit.Document, Page: hit.Page})
	}
	return out
}
