package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/plantdeck/plantdeck/internal/model"
	"github.com/plantdeck/plantdeck/internal/pkg/errs"
)

// SpeciesStore reads the structured species database. The store is produced
// by a separate reshaping step; this side never writes it.
type SpeciesStore struct {
	db *sqlx.DB
}

func Open(path string) (*SpeciesStore, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open species db: %w", err)
	}
	return &SpeciesStore{db: db}, nil
}

func (s *SpeciesStore) Close() error {
	return s.db.Close()
}

// GetEntityAttributes pulls the structured context for one entity hit:
// species row, common names, uses, safety, and up to three citations.
func (s *SpeciesStore) GetEntityAttributes(ctx context.Context, id int64) (*model.EntityAttributes, error) {
	cond := map[string]interface{}{"id": id}
	query, args, err := builder.BuildSelect("species", cond, []string{"latin_name", "family", "id_features", "dosage"})
	if err != nil {
		return nil, err
	}
	var species struct {
		LatinName  sql.NullString `db:"latin_name"`
		Family     sql.NullString `db:"family"`
		IDFeatures sql.NullString `db:"id_features"`
		Dosage     sql.NullString `db:"dosage"`
	}
	if err := s.db.GetContext(ctx, &species, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	attrs := &model.EntityAttributes{
		EntityID:   id,
		LatinName:  species.LatinName.String,
		Family:     species.Family.String,
		IDFeatures: species.IDFeatures.String,
		Dosage:     species.Dosage.String,
	}

	cond = map[string]interface{}{"species_id": id}
	query, args, err = builder.BuildSelect("common_name", cond, []string{"name"})
	if err != nil {
		return nil, err
	}
	if err := s.db.SelectContext(ctx, &attrs.CommonNames, query, args...); err != nil {
		return nil, err
	}

	query, args, err = builder.BuildSelect("usecase", cond, []string{"indication", "evidence"})
	if err != nil {
		return nil, err
	}
	var uses []struct {
		Indication sql.NullString `db:"indication"`
		Evidence   sql.NullString `db:"evidence"`
	}
	if err := s.db.SelectContext(ctx, &uses, query, args...); err != nil {
		return nil, err
	}
	for _, u := range uses {
		attrs.Uses = append(attrs.Uses, model.EntityUse{Indication: u.Indication.String, Evidence: u.Evidence.String})
	}

	query, args, err = builder.BuildSelect("safety", cond, []string{"toxicity", "contraindications", "interactions", "notes"})
	if err != nil {
		return nil, err
	}
	var safety []struct {
		Toxicity          sql.NullString `db:"toxicity"`
		Contraindications sql.NullString `db:"contraindications"`
		Interactions      sql.NullString `db:"interactions"`
		Notes             sql.NullString `db:"notes"`
	}
	if err := s.db.SelectContext(ctx, &safety, query, args...); err != nil {
		return nil, err
	}
	if len(safety) > 0 {
		attrs.Safety = model.EntitySafety{
			Toxicity:          safety[0].Toxicity.String,
			Contraindications: safety[0].Contraindications.String,
			Interactions:      safety[0].Interactions.String,
			Notes:             safety[0].Notes.String,
		}
	}

	query, args, err = builder.BuildSelect("citation", map[string]interface{}{"species_id": id, "_limit": []uint{3}}, []string{"pdf", "page"})
	if err != nil {
		return nil, err
	}
	var citations []struct {
		PDF  sql.NullString `db:"pdf"`
		Page sql.NullInt64  `db:"page"`
	}
	if err := s.db.SelectContext(ctx, &citations, query, args...); err != nil {
		return nil, err
	}
	for _, c := range citations {
		attrs.Citations = append(attrs.Citations, model.Citation{Document: c.PDF.String, Page: int(c.Page.Int64)})
	}
	return attrs, nil
}

// ListSpecies returns latin names in alphabetical order for the catalog view.
func (s *SpeciesStore) ListSpecies(ctx context.Context, limit, offset int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	cond := map[string]interface{}{
		"_orderby": "latin_name",
		"_limit":   []uint{uint(offset), uint(limit)},
	}
	query, args, err := builder.BuildSelect("species", cond, []string{"latin_name"})
	if err != nil {
		return nil, err
	}
	var names []string
	if err := s.db.SelectContext(ctx, &names, query, args...); err != nil {
		return nil, err
	}
	return names, nil
}

// EntityRow is one entity-index input: the species id, its label, and the
// concatenated summary text to embed.
type EntityRow struct {
	ID    int64
	Label string
	Text  string
}

// summaryQuery folds each species' names, identification features, uses,
// preparations and safety notes into one embedding input.
const summaryQuery = `
SELECT s.id, s.latin_name,
       IFNULL((SELECT GROUP_CONCAT(name) FROM common_name WHERE species_id=s.id),'') AS common,
       IFNULL(s.id_features,'') || ' ' ||
       IFNULL((SELECT GROUP_CONCAT(indication) FROM usecase WHERE species_id=s.id),'') || ' ' ||
       IFNULL((SELECT GROUP_CONCAT(text) FROM preparation WHERE species_id=s.id),'') || ' ' ||
       IFNULL((SELECT notes FROM safety WHERE species_id=s.id LIMIT 1),'') AS blob
FROM species s
ORDER BY s.id`

// EntityRows streams the summary corpus feeding the entity index builder,
// in stable id order so index builds are deterministic.
func (s *SpeciesStore) EntityRows(ctx context.Context) ([]EntityRow, error) {
	rows, err := s.db.QueryContext(ctx, summaryQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EntityRow
	for rows.Next() {
		var (
			id            int64
			latin, common string
			blob          string
		)
		if err := rows.Scan(&id, &latin, &common, &blob); err != nil {
			return nil, err
		}
		out = append(out, EntityRow{
			ID:    id,
			Label: latin,
			Text:  fmt.Sprintf("%s\nCommon: %s\n%s", latin, common, blob),
		})
	}
	return out, rows.Err()
}
