package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plantdeck/plantdeck/internal/model"
)

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw_pages.jsonl")
	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.AppendMeta(model.DocumentMeta{Document: "herbs.pdf", Title: "Herbal Guide", Pages: 2}))
	require.NoError(t, w.Append(model.PageRecord{Document: "herbs.pdf", Page: 1, Text: "ginger", Method: model.MethodNative}))
	require.NoError(t, w.Append(model.PageRecord{
		Document: "herbs.pdf", Page: 2, Text: "mint", Method: model.MethodOCR,
		Images: []model.ImageRef{{Path: "herbs_p2_img1.png", SourceRef: 14}},
	}))
	require.NoError(t, w.Close())

	records, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "ginger", records[0].Text)
	require.Equal(t, model.MethodOCR, records[1].Method)
	require.Equal(t, 14, records[1].Images[0].SourceRef)
}

func TestWriterTruncatesPreviousRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw_pages.jsonl")
	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(model.PageRecord{Document: "old.pdf", Page: 1, Method: model.MethodNative}))
	require.NoError(t, w.Close())

	w, err = NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(model.PageRecord{Document: "new.pdf", Page: 1, Method: model.MethodNative}))
	require.NoError(t, w.Close())

	records, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "new.pdf", records[0].Document)
}

func TestConcurrentAppendsNeverInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw_pages.jsonl")
	w, err := NewWriter(path)
	require.NoError(t, err)

	const workers = 8
	const perWorker = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for p := 0; p < perWorker; p++ {
				_ = w.Append(model.PageRecord{
					Document: fmt.Sprintf("doc%d.pdf", worker),
					Page:     p + 1,
					Text:     "some page text with enough length to expose torn writes",
					Method:   model.MethodNative,
				})
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	// every line must parse; a torn write would produce a skipped (lost) record
	records, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, workers*perWorker)
}

func TestReadRecordsSkipsJunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw_pages.jsonl")
	content := `{"_meta":{"document":"herbs.pdf","pages":3}}
{"document":"herbs.pdf","page":1,"text":"ginger","method":"native"}
not json at all
{"document":"","page":2,"text":"missing doc","method":"native"}
{"document":"herbs.pdf","page":0,"text":"bad page","method":"native"}
{"document":"herbs.pdf","page":3,"text":"mint","method":"ocr"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	records, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, 1, records[0].Page)
	require.Equal(t, 3, records[1].Page)
}

func TestPageImages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw_pages.jsonl")
	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(model.PageRecord{
		Document: "herbs.pdf", Page: 1, Method: model.MethodNative,
		Images: []model.ImageRef{
			{Path: "herbs_p1_img1.png", SourceRef: 3},
			{Path: "herbs_p1_img2.png", SourceRef: 7},
		},
	}))
	require.NoError(t, w.Append(model.PageRecord{Document: "herbs.pdf", Page: 2, Method: model.MethodNative}))
	require.NoError(t, w.Close())

	m, err := PageImages(path)
	require.NoError(t, err)
	require.Len(t, m, 1)
	require.Equal(t, []string{"herbs_p1_img1.png", "herbs_p1_img2.png"}, m[PageKey{Document: "herbs.pdf", Page: 1}])
}
