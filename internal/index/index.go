package index

import (
	"math"
	"sort"
)

// EntityMeta is one entity-index row: the entity's store id and display
// label, with the summary text that was embedded kept for inspection.
type EntityMeta struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// PassageMeta is one passage-index row.
type PassageMeta struct {
	Document string   `json:"document"`
	Page     int      `json:"page"`
	Snippet  string   `json:"snippet"`
	Images   []string `json:"images,omitempty"`
}

// Hit references a metadata row with its cosine similarity.
type Hit struct {
	Row   int
	Score float32
}

// Index is one loaded vector space: a row-normalized float32 matrix and its
// parallel metadata. Immutable once built; a rebuild produces a new value.
type Index[M any] struct {
	ModelVersion string
	Dim          int
	Entries      []M
	// Truncated lists rows whose input text was cut to the embed limit.
	Truncated []int

	vectors []float32 // Rows()*Dim, row-major
}

func (ix *Index[M]) Rows() int {
	return len(ix.Entries)
}

// Search returns the top-k rows by cosine similarity, descending, ties broken
// by row order. The query need not be normalized; rows already are, so the
// score is a plain dot product after query normalization.
func (ix *Index[M]) Search(query []float32, k int) []Hit {
	if k <= 0 || ix.Rows() == 0 || len(query) != ix.Dim {
		return nil
	}
	q := normalize(query)
	if q == nil {
		return nil
	}
	hits := make([]Hit, 0, ix.Rows())
	for row := 0; row < ix.Rows(); row++ {
		offset := row * ix.Dim
		var dot float32
		for i, v := range q {
			dot += ix.vectors[offset+i] * v
		}
		hits = append(hits, Hit{Row: row, Score: dot})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

// normalize returns a unit-length copy, or nil for a zero vector.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil
	}
	inv := float32(1 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}
