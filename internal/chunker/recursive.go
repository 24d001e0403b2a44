package chunker

import (
	"errors"
	"strings"
)

// ErrEmpty is returned when the input holds no non-whitespace text.
var ErrEmpty = errors.New("no text to chunk")

// DefaultSeparators lists cut points from coarsest to finest. Each level is a
// set of equally ranked separators; the finest fallback is a raw character cut.
var DefaultSeparators = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? ", "。"},
	{" ", "\t"},
}

// Recursive splits text into passages of at most MaxSize runes. It prefers the
// coarsest separator that fits in the window and falls back to finer ones.
// Neighbouring passages share exactly Overlap runes, so dropping the first
// Overlap runes of every passage after the first and concatenating
// reconstructs the input.
type Recursive struct {
	MaxSize    int
	Overlap    int
	separators [][][]rune
}

// NewRecursive creates a chunker with the default separators.
func NewRecursive(maxSize, overlap int) *Recursive {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxSize {
		overlap = maxSize / 2
	}
	seps := make([][][]rune, len(DefaultSeparators))
	for i, level := range DefaultSeparators {
		for _, s := range level {
			seps[i] = append(seps[i], []rune(s))
		}
	}
	return &Recursive{MaxSize: maxSize, Overlap: overlap, separators: seps}
}

// Chunk returns the passages of text in document order.
func (c *Recursive) Chunk(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmpty
	}
	runes := []rune(text)
	n := len(runes)
	var out []string
	start := 0
	for {
		limit := start + c.MaxSize
		if limit >= n {
			out = append(out, string(runes[start:n]))
			return out, nil
		}
		end := c.cut(runes, start, limit)
		out = append(out, string(runes[start:end]))
		start = end - c.Overlap
	}
}

// cut picks the end of the passage starting at start. The end must leave room
// for the overlap so the next passage always begins after this one.
func (c *Recursive) cut(runes []rune, start, limit int) int {
	floor := start + c.Overlap
	for _, level := range c.separators {
		best := -1
		for _, sep := range level {
			if end := lastCut(runes, start, floor, limit, sep); end > best {
				best = end
			}
		}
		if best > floor {
			return best
		}
	}
	return limit
}

// lastCut returns the largest index e in (floor, limit] such that sep lies
// inside the passage and ends at e, or -1.
func lastCut(runes []rune, start, floor, limit int, sep []rune) int {
	for e := limit; e > floor; e-- {
		if e-len(sep) < start {
			break
		}
		if hasAt(runes, e-len(sep), sep) {
			return e
		}
	}
	return -1
}

func hasAt(runes []rune, at int, sep []rune) bool {
	for i, r := range sep {
		if runes[at+i] != r {
			return false
		}
	}
	return true
}

// Reconstruct reverses Chunk for passages produced with the given overlap.
func Reconstruct(passages []string, overlap int) string {
	var b strings.Builder
	for i, p := range passages {
		if i == 0 {
			b.WriteString(p)
			continue
		}
		r := []rune(p)
		if overlap > len(r) {
			continue
		}
		b.WriteString(string(r[overlap:]))
	}
	return b.String()
}
