package chunk

import (
	"github.com/plantdeck/plantdeck/internal/model"
)

// Chunker splits page text into fixed-size overlapping windows. Window starts
// are multiples of (window - overlap); a window never crosses a page
// boundary, so every passage cites exactly one page.
type Chunker struct {
	window  int
	overlap int
}

func New(window, overlap int) *Chunker {
	if window <= 0 {
		window = 1000
	}
	if overlap < 0 || overlap >= window {
		overlap = 0
	}
	return &Chunker{window: window, overlap: overlap}
}

// Split derives the page's passages in order. Empty text yields no passages.
// Offsets are rune-based so multi-byte text windows stay well formed.
func (c *Chunker) Split(rec model.PageRecord) []model.Passage {
	runes := []rune(rec.Text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	stride := c.window - c.overlap
	var passages []model.Passage
	for start, seq := 0, 0; start < n; start, seq = start+stride, seq+1 {
		end := start + c.window
		if end > n {
			end = n
		}
		passages = append(passages, model.Passage{
			Document: rec.Document,
			Page:     rec.Page,
			Seq:      seq,
			Start:    start,
			Text:     string(runes[start:end]),
		})
		if end == n {
			break
		}
	}
	return passages
}

// Snippet trims text to a display length, appending an ellipsis when cut.
func Snippet(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
