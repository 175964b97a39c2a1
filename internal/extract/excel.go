package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/hyperjump/tcmkb/internal/models"
	"github.com/xuri/excelize/v2"
)

// extractExcel emits one paragraph per non-empty row; rows are not segmented.
func (e *Extractor) extractExcel(content []byte) ([]RawParagraph, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var out []RawParagraph
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		for i, row := range rows {
			text := strings.TrimSpace(strings.Join(row, " "))
			if text == "" {
				continue
			}
			out = append(out, RawParagraph{
				Content: text,
				Title:   fmt.Sprintf("%s第%d行", sheet, i+1),
				Meta:    models.ParagraphMeta{Source: "excel", Sheet: sheet, Row: i + 1},
			})
		}
	}
	return out, nil
}
