package e2e

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// SupportedFileExtensions is the list of file extensions used in E2E file-based tests.
// PDF is covered by internal/extract tests; a minimal PDF with extractable text is not generated here.
var SupportedFileExtensions = []string{".txt", ".md", ".docx", ".xlsx"}

// MinimalFile returns the bytes of a minimal file of the given extension holding
// title and body. Plain text types separate them with a blank line, .docx uses
// two paragraphs and .xlsx two cells of one row.
func MinimalFile(ext, title, body string) ([]byte, error) {
	switch ext {
	case ".txt", ".md":
		return []byte(title + "\n\n" + body), nil
	case ".docx":
		return minimalDocx(title, body)
	case ".xlsx":
		return minimalXlsx(title, body)
	default:
		return nil, fmt.Errorf("no fixture for %s", ext)
	}
}

func minimalDocx(paragraphs ...string) ([]byte, error) {
	var doc bytes.Buffer
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		doc.WriteString(`<w:p><w:r><w:t>`)
		if err := xml.EscapeText(&doc, []byte(p)); err != nil {
			return nil, err
		}
		doc.WriteString(`</w:t></w:r></w:p>`)
	}
	doc.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("word/document.xml")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(doc.Bytes()); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func minimalXlsx(title, body string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetCellValue("Sheet1", "A1", title); err != nil {
		return nil, err
	}
	if err := f.SetCellValue("Sheet1", "B1", body); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
