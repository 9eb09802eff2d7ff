package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plantdeck/plantdeck/internal/pkg/errs"
)

const testSchema = `
CREATE TABLE species(id INTEGER PRIMARY KEY, latin_name TEXT UNIQUE, family TEXT, id_features TEXT, dosage TEXT);
CREATE TABLE common_name(id INTEGER PRIMARY KEY, species_id INTEGER, name TEXT);
CREATE TABLE usecase(id INTEGER PRIMARY KEY, species_id INTEGER, indication TEXT, evidence TEXT);
CREATE TABLE preparation(id INTEGER PRIMARY KEY, species_id INTEGER, text TEXT);
CREATE TABLE safety(id INTEGER PRIMARY KEY, species_id INTEGER, toxicity TEXT, contraindications TEXT, interactions TEXT, notes TEXT);
CREATE TABLE citation(id INTEGER PRIMARY KEY, species_id INTEGER, pdf TEXT, page INTEGER, snippet TEXT);
`

func newTestStore(t *testing.T) *SpeciesStore {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	s.db.MustExec(testSchema)
	s.db.MustExec(`INSERT INTO species(id, latin_name, family, id_features, dosage) VALUES
		(1, 'Zingiber officinale', 'Zingiberaceae', 'knotted rhizome', '1-2g dried root'),
		(2, 'Mentha piperita', 'Lamiaceae', 'square stem', 'infusion')`)
	s.db.MustExec(`INSERT INTO common_name(species_id, name) VALUES (1, 'ginger'), (1, 'garden ginger'), (2, 'peppermint')`)
	s.db.MustExec(`INSERT INTO usecase(species_id, indication, evidence) VALUES (1, 'nausea', 'strong'), (1, 'digestion', 'traditional')`)
	s.db.MustExec(`INSERT INTO safety(species_id, toxicity, contraindications, interactions, notes) VALUES (1, 'low', 'gallstones', 'anticoagulants', 'generally safe')`)
	s.db.MustExec(`INSERT INTO citation(species_id, pdf, page) VALUES (1, 'guide.pdf', 12), (1, 'guide.pdf', 13), (1, 'atlas.pdf', 4), (1, 'atlas.pdf', 9)`)
	return s
}

func TestGetEntityAttributes(t *testing.T) {
	s := newTestStore(t)
	attrs, err := s.GetEntityAttributes(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "Zingiber officinale", attrs.LatinName)
	require.Equal(t, []string{"ginger", "garden ginger"}, attrs.CommonNames)
	require.Len(t, attrs.Uses, 2)
	require.Equal(t, "nausea", attrs.Uses[0].Indication)
	require.Equal(t, "low", attrs.Safety.Toxicity)
	require.Len(t, attrs.Citations, 3, "citations are capped at three")
}

func TestGetEntityAttributesSparseRow(t *testing.T) {
	s := newTestStore(t)
	attrs, err := s.GetEntityAttributes(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, "Mentha piperita", attrs.LatinName)
	require.Empty(t, attrs.Uses)
	require.Empty(t, attrs.Citations)
	require.Equal(t, "", attrs.Safety.Toxicity)
}

func TestGetEntityAttributesNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetEntityAttributes(context.Background(), 99)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListSpecies(t *testing.T) {
	s := newTestStore(t)
	names, err := s.ListSpecies(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"Mentha piperita", "Zingiber officinale"}, names)

	names, err = s.ListSpecies(context.Background(), 10, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"Zingiber officinale"}, names)
}

func TestEntityRows(t *testing.T) {
	s := newTestStore(t)
	rows, err := s.EntityRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(1), rows[0].ID)
	require.Equal(t, "Zingiber officinale", rows[0].Label)
	require.Contains(t, rows[0].Text, "Common: ginger,garden ginger")
	require.Contains(t, rows[0].Text, "nausea")
	require.Contains(t, rows[0].Text, "generally safe")
}
