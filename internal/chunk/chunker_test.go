package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plantdeck/plantdeck/internal/model"
)

func reconstruct(passages []model.Passage) string {
	var sb strings.Builder
	written := 0
	for _, p := range passages {
		runes := []rune(p.Text)
		skip := written - p.Start
		if skip < 0 || skip > len(runes) {
			return "<gap>"
		}
		sb.WriteString(string(runes[skip:]))
		written = p.Start + len(runes)
	}
	return sb.String()
}

func TestSplitShortPage(t *testing.T) {
	c := New(1000, 150)
	rec := model.PageRecord{Document: "guide.pdf", Page: 1, Text: "ginger ginger ginger"}
	passages := c.Split(rec)
	require.Len(t, passages, 1)
	require.Equal(t, rec.Text, passages[0].Text)
	require.Equal(t, 0, passages[0].Seq)
	require.Equal(t, "guide.pdf", passages[0].Document)
	require.Equal(t, 1, passages[0].Page)
}

func TestSplitEmptyPage(t *testing.T) {
	c := New(1000, 150)
	passages := c.Split(model.PageRecord{Document: "a.pdf", Page: 2})
	require.Empty(t, passages)
}

func TestSplitWindowStarts(t *testing.T) {
	c := New(10, 4)
	text := strings.Repeat("abcdef", 10) // 60 chars
	passages := c.Split(model.PageRecord{Document: "a.pdf", Page: 1, Text: text})
	require.NotEmpty(t, passages)
	for i, p := range passages {
		require.Equal(t, i*6, p.Start, "windows start at multiples of window-overlap")
		require.Equal(t, i, p.Seq)
		require.LessOrEqual(t, len([]rune(p.Text)), 10)
	}
}

func TestSplitReconstruction(t *testing.T) {
	tests := []struct {
		name    string
		window  int
		overlap int
		text    string
	}{
		{"exact multiple", 10, 3, strings.Repeat("x", 70)},
		{"ragged tail", 10, 3, strings.Repeat("y", 73)},
		{"single window", 100, 10, "short page"},
		{"no overlap", 8, 0, strings.Repeat("z", 30)},
		{"non-ascii", 12, 4, strings.Repeat("Zingiber offícinále – ", 7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.window, tt.overlap)
			passages := c.Split(model.PageRecord{Document: "a.pdf", Page: 1, Text: tt.text})
			require.Equal(t, tt.text, reconstruct(passages))
		})
	}
}

func TestSnippet(t *testing.T) {
	require.Equal(t, "short", Snippet("short", 280))
	long := strings.Repeat("a", 300)
	got := Snippet(long, 280)
	require.Equal(t, 281, len([]rune(got)))
	require.True(t, strings.HasSuffix(got, "…"))
}
