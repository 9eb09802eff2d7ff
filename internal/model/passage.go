package model

// Passage is one fixed-size window of a page's text. Seq is the window's
// position within the page; windows never cross page boundaries.
type Passage struct {
	Document string `json:"document"`
	Page     int    `json:"page"`
	Seq      int    `json:"seq"`
	Start    int    `json:"start"`
	Text     string `json:"text"`
}
