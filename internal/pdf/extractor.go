package pdfutil

import (
	"bytes"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// Text is the text layer of a PDF.
type Text struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
}

// Extract reads PDF bytes and returns the plain text of every page using
// ledongthuc/pdf. Scanned pages without a text layer contribute nothing.
func Extract(data []byte) (*Text, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("new pdf reader: %w", err)
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return &Text{Text: strings.TrimSpace(builder.String()), Pages: total}, nil
}
