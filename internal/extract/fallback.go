package extract

import (
	"github.com/ledongthuc/pdf"
)

// ledongthucParser is the last-resort text-only parser. It tolerates
// structural damage that makes MuPDF refuse the document outright, but it
// extracts plain text only, with no rendering or image access.
type ledongthucParser struct{}

func (ledongthucParser) PageTexts(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	total := r.NumPage()
	texts := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// a single bad page stays empty, the rest of the document survives
			texts = append(texts, "")
			continue
		}
		texts = append(texts, text)
	}
	return texts, nil
}
