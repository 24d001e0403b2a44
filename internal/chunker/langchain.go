package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// LangChain delegates splitting to langchaingo's recursive character splitter.
// Its output is whitespace-trimmed, so passages do not reconstruct the input
// exactly; use Recursive when that matters.
type LangChain struct {
	splitter textsplitter.RecursiveCharacter
}

// NewLangChain creates a langchaingo-backed chunker measuring length in runes.
func NewLangChain(maxSize, overlap int) *LangChain {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if overlap < 0 || overlap >= maxSize {
		overlap = maxSize / 5
	}
	return &LangChain{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(maxSize),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}
}

// Chunk returns the passages of text in document order.
func (c *LangChain) Chunk(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmpty
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}
