package model

// ExtractMethod names the strategy that actually produced a page's text.
type ExtractMethod string

const (
	MethodNative         ExtractMethod = "native"
	MethodOCR            ExtractMethod = "ocr"
	MethodRepairedNative ExtractMethod = "repaired-native"
	MethodFallbackText   ExtractMethod = "fallback-text-only"
)

// ImageRef points at one raster written by the extractor. SourceRef is the
// PDF object number for embedded images, or -1 for page renders.
type ImageRef struct {
	Path      string `json:"path"`
	SourceRef int    `json:"source_ref"`
}

// PageRecord is one ledger line: exactly one per (document, page).
type PageRecord struct {
	Document string        `json:"document"`
	Page     int           `json:"page"`
	Text     string        `json:"text"`
	Method   ExtractMethod `json:"method"`
	Images   []ImageRef    `json:"images,omitempty"`
}

// DocumentMeta is the per-document header line the extractor emits before the
// document's page records.
type DocumentMeta struct {
	Document string `json:"document"`
	Title    string `json:"title,omitempty"`
	Author   string `json:"author,omitempty"`
	Pages    int    `json:"pages"`
}
