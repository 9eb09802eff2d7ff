package model

// EntityHit is one entity-index nearest neighbor.
type EntityHit struct {
	EntityID int64   `json:"entity_id"`
	Label    string  `json:"label"`
	Score    float32 `json:"score"`
}

// PassageHit is one passage-index nearest neighbor after (document, page)
// grouping: the best-scoring snippet for that page.
type PassageHit struct {
	Document string   `json:"document"`
	Page     int      `json:"page"`
	Snippet  string   `json:"snippet"`
	Score    float32  `json:"score"`
	Images   []string `json:"images,omitempty"`
}

// Citation is a (document, page) pair the answer can point at.
type Citation struct {
	Document string `json:"document"`
	Page     int    `json:"page"`
}

// EntityUse is one indication with its supporting evidence grade.
type EntityUse struct {
	Indication string `json:"indication"`
	Evidence   string `json:"evidence"`
}

// EntitySafety mirrors the safety row of the structured store.
type EntitySafety struct {
	Toxicity          string `json:"toxicity"`
	Contraindications string `json:"contraindications"`
	Interactions      string `json:"interactions"`
	Notes             string `json:"notes"`
}

// EntityAttributes is the structured context pulled for one entity hit.
type EntityAttributes struct {
	EntityID    int64        `json:"entity_id"`
	LatinName   string       `json:"latin_name"`
	CommonNames []string     `json:"common_names"`
	Family      string       `json:"family"`
	IDFeatures  string       `json:"id_features"`
	Dosage      string       `json:"dosage"`
	Uses        []EntityUse  `json:"uses"`
	Safety      EntitySafety `json:"safety"`
	Citations   []Citation   `json:"citations"`
}

// GroundedContextBundle is the query-scoped retrieval result: everything the
// composer is allowed to say comes from here.
type GroundedContextBundle struct {
	Hits        []EntityHit        `json:"hits"`
	Context     []EntityAttributes `json:"context"`
	PageContext []PassageHit       `json:"page_context"`
	Citations   []Citation         `json:"citations"`
}
