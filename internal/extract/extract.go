// Package extract turns uploaded files into plain text.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"docchat/internal/domain"
)

// Extractor handles .pdf and, optionally, plain text files.
type Extractor struct {
	allowText bool
}

// New returns an extractor for PDFs. When allowText is set, .txt and .md
// files are accepted too.
func New(allowText bool) *Extractor {
	return &Extractor{allowText: allowText}
}

// Supported reports whether name has an accepted extension.
func (e *Extractor) Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return true
	case ".txt", ".md":
		return e.allowText
	}
	return false
}

// Extract returns the text of one file. Empty output is an ExtractionError.
func (e *Extractor) Extract(name string, data []byte) (string, error) {
	if !e.Supported(name) {
		return "", domain.Errorf(domain.KindExtraction, "extract", "unsupported file type %q", filepath.Ext(name))
	}
	var text string
	var err error
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		text, err = pdfText(data)
	} else {
		if !utf8.Valid(data) {
			return "", domain.Errorf(domain.KindExtraction, "extract", "%s is not valid UTF-8", name)
		}
		text = string(data)
	}
	if err != nil {
		return "", domain.E(domain.KindExtraction, "extract "+name, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.Errorf(domain.KindExtraction, "extract", "no text extracted from %s", name)
	}
	return text, nil
}

// pdfText concatenates the text of every page. The parser panics on some
// malformed inputs; that is reported as an error.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	b, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, b); err != nil {
		return "", fmt.Errorf("failed to read pdf buffer: %w", err)
	}
	return buf.String(), nil
}
