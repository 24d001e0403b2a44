package extract

import (
	"os"
	"path/filepath"
	"sort"

	"docchat/internal/domain"
)

// LoadFiles expands each pattern as a glob (a pattern with no match is used
// as a literal path), reads every supported file once and extracts its text.
func (e *Extractor) LoadFiles(patterns []string) ([]domain.Document, error) {
	seen := make(map[string]struct{})
	var paths []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, domain.E(domain.KindInvalid, "load files", err)
		}
		if len(matches) == 0 {
			matches = []string{p}
		}
		sort.Strings(matches)
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
	}

	docs := make([]domain.Document, 0, len(paths))
	for _, p := range paths {
		if !e.Supported(p) {
			return nil, domain.Errorf(domain.KindInvalid, "load files", "unsupported file type: %s", p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, domain.E(domain.KindExtraction, "load files", err)
		}
		text, err := e.Extract(filepath.Base(p), data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, domain.Document{Name: filepath.Base(p), Text: text})
	}
	return docs, nil
}
