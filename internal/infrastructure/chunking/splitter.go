package chunking

import "strings"

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// separators are tried in order when looking for a natural break.
var separators = []string{"\n\n", ".\n", "!\n", "?\n", ". ", "! ", "? ", "\n", " "}

// Splitter cuts text into windows of at most ChunkSize runes, preferring to
// end a window on a paragraph, sentence, line or word boundary. Consecutive
// windows share up to Overlap runes.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(strings.TrimSpace(text)) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.ChunkSize+1)
	start := 0
	for start < len(runes) {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		brk := findBreakPoint(runes, start, end)

		chunk := strings.TrimSpace(string(runes[start:brk]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if brk >= len(runes) {
			break
		}

		next := brk - s.Overlap
		if next <= start {
			next = brk
		}
		start = alignToWord(runes, next, brk)
	}
	return out
}

// findBreakPoint returns the exclusive end of the window [start, end). Only the
// last 30% of the window is searched so every chunk keeps most of its budget.
func findBreakPoint(runes []rune, start, end int) int {
	if end >= len(runes) {
		return len(runes)
	}
	searchStart := start + (end-start)*7/10
	window := string(runes[searchStart:end])

	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		// separator index is in bytes; keep the terminating punctuation in this chunk
		cut := len([]rune(window[:idx])) + len([]rune(sep))
		if sep == ". " || sep == "! " || sep == "? " {
			cut--
		}
		if cut > 0 {
			return searchStart + cut
		}
	}
	return end
}

// alignToWord moves an overlap start forward to the next word start so a
// chunk never begins mid-word, without passing limit.
func alignToWord(runes []rune, pos, limit int) int {
	if pos <= 0 || isSpace(runes[pos-1]) {
		return pos
	}
	for i := pos; i < limit; i++ {
		if isSpace(runes[i]) {
			return i + 1
		}
	}
	return pos
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
