package knowledge

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
)

//go:embed platform.yaml
var defaultPlatformYAML []byte

type file struct {
	Entries []domain.KnowledgeEntry `yaml:"entries"`
}

// Base answers "which snippets about the application matter for this question".
type Base struct {
	entries []domain.KnowledgeEntry
}

func NewBase(entries []domain.KnowledgeEntry) *Base {
	return &Base{entries: entries}
}

// Load reads entries from path, or the built-in platform knowledge when path is empty.
func Load(path string) (*Base, error) {
	data := defaultPlatformYAML
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read knowledge base: %w", err)
		}
		data = raw
	}
	return Parse(data)
}

func Parse(data []byte) (*Base, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse knowledge base: %w", err)
	}
	entries := make([]domain.KnowledgeEntry, 0, len(f.Entries))
	for _, e := range f.Entries {
		if strings.TrimSpace(e.Content) == "" {
			continue
		}
		for i, kw := range e.Keywords {
			e.Keywords[i] = strings.ToLower(strings.TrimSpace(kw))
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("parse knowledge base: no entries")
	}
	return NewBase(entries), nil
}

// Relevant ranks entries by how many of their keywords occur in the question.
// Entries without any hit are left out; equal scores keep file order.
func (b *Base) Relevant(question string, limit int) []domain.KnowledgeEntry {
	q := " " + normalize(question) + " "
	type scored struct {
		entry domain.KnowledgeEntry
		score int
	}
	var hits []scored
	for _, e := range b.entries {
		score := 0
		for _, kw := range e.Keywords {
			if kw != "" && strings.Contains(q, " "+kw+" ") {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{entry: e, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if limit <= 0 || limit > len(hits) {
		limit = len(hits)
	}
	out := make([]domain.KnowledgeEntry, 0, limit)
	for _, h := range hits[:limit] {
		out = append(out, h.entry)
	}
	return out
}

func (b *Base) Len() int {
	return len(b.entries)
}

// normalize lowercases and replaces punctuation with spaces so keywords
// match on word boundaries.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			return r
		case r > 127:
			return r
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
