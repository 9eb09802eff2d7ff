package compose

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plantdeck/plantdeck/internal/model"
	"github.com/plantdeck/plantdeck/internal/pkg/errs"
)

type fakeGenerator struct {
	prompt string
	out    string
	err    error
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.out, g.err
}

func sampleBundle() *model.GroundedContextBundle {
	return &model.GroundedContextBundle{
		Context: []model.EntityAttributes{
			{
				EntityID:    1,
				LatinName:   "Zingiber officinale",
				CommonNames: []string{"ginger", "gan jiang", "shoga", "ingwer"},
				Family:      "Zingiberaceae",
				Dosage:      "1-3 g dried rhizome",
				Uses: []model.EntityUse{
					{Indication: "nausea", Evidence: "strong"},
					{Indication: "dyspepsia", Evidence: "moderate"},
				},
				Safety:    model.EntitySafety{Toxicity: "low", Contraindications: "gallstones"},
				Citations: []model.Citation{{Document: "herbs.pdf", Page: 12}},
			},
		},
		PageContext: []model.PassageHit{
			{Document: "herbs.pdf", Page: 12, Snippet: "Ginger is a pungent rhizome used for nausea."},
		},
		Citations: []model.Citation{{Document: "herbs.pdf", Page: 12}},
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("what helps with nausea?", sampleBundle())
	require.Contains(t, prompt, "cautious herbal field guide")
	require.Contains(t, prompt, disclaimer)
	require.Contains(t, prompt, "Zingiber officinale")
	// common names cap at three
	require.Contains(t, prompt, "Common: ginger, gan jiang, shoga)")
	require.NotContains(t, prompt, "ingwer")
	require.Contains(t, prompt, "Uses: nausea, dyspepsia")
	require.Contains(t, prompt, "Cites: herbs.pdf p12")
	require.Contains(t, prompt, "== Source snippets ==")
	require.Contains(t, prompt, "herbs.pdf p12: Ginger is a pungent rhizome")
	require.Contains(t, prompt, "Question: what helps with nausea?")
	require.True(t, strings.HasSuffix(prompt, "Answer:"))
}

func TestBuildPromptShallowOmitsSnippets(t *testing.T) {
	bundle := sampleBundle()
	bundle.PageContext = nil
	prompt := BuildPrompt("q", bundle)
	require.NotContains(t, prompt, "== Source snippets ==")
}

func TestBuildPromptNoCitations(t *testing.T) {
	bundle := sampleBundle()
	bundle.Context[0].Citations = nil
	prompt := BuildPrompt("q", bundle)
	require.Contains(t, prompt, "Cites: no page cites")
}

func TestAnswer(t *testing.T) {
	gen := &fakeGenerator{out: "  - Ginger helps.\n\nField guide only; not medical advice.  "}
	c := New(gen)
	answer, err := c.Answer(context.Background(), "nausea?", sampleBundle())
	require.NoError(t, err)
	require.Equal(t, "- Ginger helps.\n\nField guide only; not medical advice.", answer)
	require.Contains(t, gen.prompt, "Question: nausea?")
}

func TestAnswerGeneratorDown(t *testing.T) {
	c := New(&fakeGenerator{err: errors.New("connection refused")})
	_, err := c.Answer(context.Background(), "q", sampleBundle())
	require.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML("- **Ginger** helps with nausea")
	require.NoError(t, err)
	require.Contains(t, html, "<strong>Ginger</strong>")
	require.Contains(t, html, "<li>")
}
