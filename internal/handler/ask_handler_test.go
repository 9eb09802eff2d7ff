package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/plantdeck/plantdeck/internal/compose"
	"github.com/plantdeck/plantdeck/internal/index"
	"github.com/plantdeck/plantdeck/internal/model"
	"github.com/plantdeck/plantdeck/internal/pkg/errs"
	"github.com/plantdeck/plantdeck/internal/retrieval"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (fakeEmbedder) Version() string { return "fake/v1" }

type fakeEntityStore struct{}

func (fakeEntityStore) GetEntityAttributes(ctx context.Context, id int64) (*model.EntityAttributes, error) {
	if id != 1 {
		return nil, errs.ErrNotFound
	}
	return &model.EntityAttributes{
		EntityID:  1,
		LatinName: "Zingiber officinale",
		Citations: []model.Citation{{Document: "herbs.pdf", Page: 12}},
	}, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "**Ginger** helps with nausea.", nil
}

func newAskRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	embedder := fakeEmbedder{}
	engine := retrieval.NewEngine(embedder, fakeEntityStore{}, nil, retrieval.Options{})
	ix, err := index.Build(context.Background(), embedder, []index.Item[index.EntityMeta]{
		{Text: "ginger summary", Meta: index.EntityMeta{ID: 1, Label: "Zingiber officinale"}},
	}, index.BuildOptions{})
	require.NoError(t, err)
	engine.SetEntityIndex(ix)

	ask := NewAskHandler(engine, compose.New(fakeGenerator{}))
	r := gin.New()
	r.POST("/ask", ask.Ask)
	return r
}

func TestAskAcceptsDocumentedFieldNames(t *testing.T) {
	r := newAskRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/ask",
		strings.NewReader(`{"question":"what helps with nausea?","top_k_entities":3}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	body := w.Body.String()
	require.Contains(t, body, `"answer":"**Ginger** helps with nausea."`)
	require.Contains(t, body, "Zingiber officinale")
	require.Contains(t, body, `"citations"`)
	// html rendering of the answer is always present
	require.Contains(t, body, `"answer_html"`)
	rendered := strings.Contains(body, "<strong>Ginger</strong>") ||
		strings.Contains(body, `<strong>Ginger</strong>`)
	require.True(t, rendered, "answer_html should carry the rendered markdown")
}

func TestAskRejectsMissingQuestion(t *testing.T) {
	r := newAskRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/ask", strings.NewReader(`{"question":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Contains(t, w.Body.String(), "question is required")
}
