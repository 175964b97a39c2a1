package extract

import (
	"fmt"
	"unicode/utf8"

	"github.com/hyperjump/tcmkb/internal/models"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// decodeText returns content as UTF-8. Bytes that are not valid UTF-8 are decoded as GBK.
func decodeText(content []byte) (string, bool, error) {
	if utf8.Valid(content) {
		return string(content), false, nil
	}
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(content)
	if err != nil {
		return "", true, fmt.Errorf("decode GBK: %w", err)
	}
	return string(decoded), true, nil
}

func (e *Extractor) extractText(content []byte, name string) ([]RawParagraph, error) {
	text, fellBack, err := decodeText(content)
	if err != nil {
		return nil, err
	}
	if fellBack {
		e.logger.Warn("file is not valid UTF-8, decoded as GBK", zap.String("name", name))
	}
	return e.segmented(text, name, models.ParagraphMeta{Source: "text"}, nil), nil
}
