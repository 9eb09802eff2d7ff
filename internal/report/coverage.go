package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/plantdeck/plantdeck/internal/ledger"
	"github.com/plantdeck/plantdeck/internal/model"
)

// DocumentCoverage aggregates one document's extraction quality: how many
// pages yielded any text at all, and how.
type DocumentCoverage struct {
	Document string         `json:"document"`
	Pages    int            `json:"pages"`
	WithText int            `json:"with_text"`
	Methods  map[string]int `json:"methods"`
}

func (d DocumentCoverage) Coverage() float64 {
	if d.Pages == 0 {
		return 0
	}
	return float64(d.WithText) / float64(d.Pages) * 100
}

// Build folds ledger records into per-document coverage rows, sorted by
// document name.
func Build(records []model.PageRecord) []DocumentCoverage {
	byDoc := make(map[string]*DocumentCoverage)
	for _, rec := range records {
		cov, ok := byDoc[rec.Document]
		if !ok {
			cov = &DocumentCoverage{Document: rec.Document, Methods: make(map[string]int)}
			byDoc[rec.Document] = cov
		}
		cov.Pages++
		if strings.TrimSpace(rec.Text) != "" {
			cov.WithText++
		}
		cov.Methods[string(rec.Method)]++
	}
	out := make([]DocumentCoverage, 0, len(byDoc))
	for _, cov := range byDoc {
		out = append(out, *cov)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Document < out[j].Document })
	return out
}

// FromLedger builds the coverage rows straight from a ledger file.
func FromLedger(path string) ([]DocumentCoverage, error) {
	records, err := ledger.ReadRecords(path)
	if err != nil {
		return nil, err
	}
	return Build(records), nil
}

// Write renders the rows as an aligned text table.
func Write(w io.Writer, rows []DocumentCoverage) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOCUMENT\tPAGES\tWITH_TEXT\tCOVERAGE\tMETHODS")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f%%\t%s\n",
			row.Document, row.Pages, row.WithText, row.Coverage(), formatMethods(row.Methods))
	}
	return tw.Flush()
}

func formatMethods(methods map[string]int) string {
	keys := make([]string, 0, len(methods))
	for k := range methods {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, methods[k]))
	}
	return strings.Join(parts, " ")
}
