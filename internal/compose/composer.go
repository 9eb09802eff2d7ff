package compose

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/plantdeck/plantdeck/internal/ai"
	"github.com/plantdeck/plantdeck/internal/model"
	"github.com/plantdeck/plantdeck/internal/pkg/errs"
)

const disclaimer = "Field guide only; not medical advice."

const systemInstruction = "You are a cautious herbal field guide. Use ONLY the provided context. " +
	"If info is missing, say so clearly. " +
	"Always include: '" + disclaimer + "' " +
	"Answer concisely with bullet points and cite Latin names and/or source pages."

// Composer phrases an answer from a grounded context bundle. It adds no
// knowledge of its own: everything it may say is in the bundle, and the
// bundle's citations are the answer's citations.
type Composer struct {
	gen ai.IGenerator
}

func New(gen ai.IGenerator) *Composer {
	return &Composer{gen: gen}
}

// Answer generates the final text. Generation failure is reported as an
// unavailable dependency so callers can still return the bundle itself.
func (c *Composer) Answer(ctx context.Context, question string, bundle *model.GroundedContextBundle) (string, error) {
	out, err := c.gen.Generate(ctx, BuildPrompt(question, bundle))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	return strings.TrimSpace(out), nil
}

// BuildPrompt lays the bundle out as species summaries followed by source
// snippets. The page snippets only appear on deep queries, so a shallow
// prompt stays small.
func BuildPrompt(question string, bundle *model.GroundedContextBundle) string {
	var b strings.Builder
	b.WriteString("== Species summaries ==\n")
	for _, d := range bundle.Context {
		cites := make([]string, 0, len(d.Citations))
		for _, c := range d.Citations {
			cites = append(cites, fmt.Sprintf("%s p%d", c.Document, c.Page))
		}
		citeLine := strings.Join(cites, ", ")
		if citeLine == "" {
			citeLine = "no page cites"
		}
		common := d.CommonNames
		if len(common) > 3 {
			common = common[:3]
		}
		uses := make([]string, 0, len(d.Uses))
		for _, u := range d.Uses {
			if len(uses) == 6 {
				break
			}
			uses = append(uses, u.Indication)
		}
		fmt.Fprintf(&b, "- %s (Common: %s)\n", orUnknown(d.LatinName), strings.Join(common, ", "))
		fmt.Fprintf(&b, "  Family: %s\n", d.Family)
		fmt.Fprintf(&b, "  Uses: %s\n", strings.Join(uses, ", "))
		fmt.Fprintf(&b, "  Safety: %s %s\n", d.Safety.Toxicity, d.Safety.Contraindications)
		fmt.Fprintf(&b, "  Dosage: %s\n", d.Dosage)
		fmt.Fprintf(&b, "  Cites: %s\n", citeLine)
	}
	if len(bundle.PageContext) > 0 {
		b.WriteString("\n== Source snippets ==\n")
		for _, s := range bundle.PageContext {
			fmt.Fprintf(&b, "- %s p%d: %s\n", s.Document, s.Page, s.Snippet)
		}
	}
	return fmt.Sprintf("%s\n\nContext:\n%s\nQuestion: %s\n\nAnswer:", systemInstruction, b.String(), question)
}

// RenderHTML converts a markdown answer to HTML for clients that want
// formatted output.
func RenderHTML(answer string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(answer), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
