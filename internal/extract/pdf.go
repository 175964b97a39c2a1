package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/ledongthuc/pdf"
)

func (e *Extractor) extractPDF(content []byte) ([]RawParagraph, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	var out []RawParagraph
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pageNum := i
		meta := models.ParagraphMeta{
			Source:     "pdf",
			PageNumber: &pageNum,
			TotalPages: numPages,
		}
		out = append(out, e.segmented(text, fmt.Sprintf("第%d页", i), meta, &pageNum)...)
	}
	return out, nil
}
