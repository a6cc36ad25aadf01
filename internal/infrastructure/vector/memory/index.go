package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
)

// Index is a brute-force cosine similarity store. An index bound to an owner
// only accepts passages of that user.
type Index struct {
	owner string

	mu          sync.RWMutex
	initialized bool
	dimension   int
	passages    []domain.EmbeddedPassage
	norms       []float64
}

func NewIndex() *Index {
	return &Index{}
}

func NewUserIndex(userID string) *Index {
	return &Index{owner: userID}
}

// CreateFromDocuments replaces the whole index content.
func (x *Index) CreateFromDocuments(_ context.Context, passages []domain.EmbeddedPassage) error {
	if err := x.validate(passages, 0); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	x.passages = x.passages[:0]
	x.norms = x.norms[:0]
	x.dimension = 0
	x.appendLocked(passages)
	x.initialized = true
	return nil
}

func (x *Index) AddDocuments(_ context.Context, passages []domain.EmbeddedPassage) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.validate(passages, x.dimension); err != nil {
		return err
	}
	x.appendLocked(passages)
	x.initialized = true
	return nil
}

// RemoveDocument drops every passage of the document and returns how many were removed.
func (x *Index) RemoveDocument(_ context.Context, documentID string) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	keptPassages := x.passages[:0]
	keptNorms := x.norms[:0]
	removed := 0
	for i, p := range x.passages {
		if p.DocumentID == documentID {
			removed++
			continue
		}
		keptPassages = append(keptPassages, p)
		keptNorms = append(keptNorms, x.norms[i])
	}
	x.passages = keptPassages
	x.norms = keptNorms
	if len(x.passages) == 0 {
		x.dimension = 0
	}
	return removed
}

// SimilaritySearch returns up to k hits by descending cosine similarity.
// Equal scores keep insertion order.
func (x *Index) SimilaritySearch(ctx context.Context, query []float32, k int) ([]domain.SearchHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.initialized || len(x.passages) == 0 {
		return nil, domain.WrapError(domain.ErrIndexNotInitialized, "similarity search", fmt.Errorf("index is empty"))
	}
	if len(query) != x.dimension {
		return nil, domain.WrapError(domain.ErrInvalidInput, "similarity search", fmt.Errorf("query dimension %d, index dimension %d", len(query), x.dimension))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 1
	}
	if k > len(x.passages) {
		k = len(x.passages)
	}

	queryNorm := norm(query)
	order := make([]int, len(x.passages))
	scores := make([]float64, len(x.passages))
	for i, p := range x.passages {
		order[i] = i
		scores[i] = cosine(query, queryNorm, p.Vector, x.norms[i])
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	hits := make([]domain.SearchHit, 0, k)
	for _, i := range order[:k] {
		p := x.passages[i]
		hits = append(hits, domain.SearchHit{
			Content: p.Content,
			Metadata: domain.PassageMetadata{
				DocumentID: p.DocumentID,
				UserID:     p.UserID,
				Title:      p.Title,
				Position:   p.Position,
			},
			Score: scores[i],
		})
	}
	return hits, nil
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.passages)
}

// Passages returns a copy of the indexed passages in insertion order.
func (x *Index) Passages() []domain.EmbeddedPassage {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]domain.EmbeddedPassage, len(x.passages))
	copy(out, x.passages)
	return out
}

func (x *Index) reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.passages = nil
	x.norms = nil
	x.dimension = 0
	x.initialized = false
}

func (x *Index) validate(passages []domain.EmbeddedPassage, dimension int) error {
	for _, p := range passages {
		if len(p.Vector) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "index validate", fmt.Errorf("passage %s has no vector", p.ID))
		}
		if dimension == 0 {
			dimension = len(p.Vector)
		}
		if len(p.Vector) != dimension {
			return domain.WrapError(domain.ErrInvalidInput, "index validate", fmt.Errorf("passage %s dimension %d, want %d", p.ID, len(p.Vector), dimension))
		}
		if x.owner != "" && p.UserID != x.owner {
			return domain.WrapError(domain.ErrInvalidInput, "index validate", fmt.Errorf("passage %s belongs to another user", p.ID))
		}
	}
	return nil
}

func (x *Index) appendLocked(passages []domain.EmbeddedPassage) {
	for _, p := range passages {
		if x.dimension == 0 {
			x.dimension = len(p.Vector)
		}
		x.passages = append(x.passages, p)
		x.norms = append(x.norms, norm(p.Vector))
	}
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, normA float64, b []float32, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
