package usecase

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strings"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
	"github.com/kirillkom/legal-doc-assistant/internal/core/ports"
)

type ComposerConfig struct {
	TopK      int
	MinScore  float64
	MaxTokens int
}

// ComposeInput carries the question and, for single-document questions, the
// context already assembled by the caller.
type ComposeInput struct {
	UserID   string
	Question string
	Context  string
	Title    string
	Sources  []domain.SearchHit
}

// AnswerComposer picks a context source for a question and generates the answer.
type AnswerComposer struct {
	generator ports.TextGenerator
	knowledge ports.KnowledgeBase
	indexes   ports.IndexRegistry
	embedder  ports.Embedder
	logger    *slog.Logger
	cfg       ComposerConfig
}

func NewAnswerComposer(
	generator ports.TextGenerator,
	knowledge ports.KnowledgeBase,
	indexes ports.IndexRegistry,
	embedder ports.Embedder,
	logger *slog.Logger,
	cfg ComposerConfig,
) *AnswerComposer {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerComposer{
		generator: generator,
		knowledge: knowledge,
		indexes:   indexes,
		embedder:  embedder,
		logger:    logger,
		cfg:       cfg,
	}
}

func (c *AnswerComposer) answerOptions() ports.GenerateOptions {
	return ports.GenerateOptions{
		Temperature:   0.7,
		TopP:          0.9,
		RepeatPenalty: 1.1,
		MaxTokens:     c.cfg.MaxTokens,
	}
}

func (c *AnswerComposer) Compose(ctx context.Context, in ComposeInput) (*domain.Answer, error) {
	question := strings.TrimSpace(in.Question)
	if IsGreeting(question) {
		return &domain.Answer{Text: GreetingReply(question), QueryType: domain.QueryGeneral}, nil
	}

	if strings.TrimSpace(in.Context) != "" {
		return c.generate(ctx, buildDocumentPrompt(question, in.Context, in.Title), domain.QueryDocument, true, in.Sources)
	}

	if ClassifyQueryIntent(question) == domain.QueryPlatform && c.knowledge != nil {
		if entries := c.knowledge.Relevant(question, 3); len(entries) > 0 {
			return c.generate(ctx, buildPlatformPrompt(question, entries), domain.QueryPlatform, true, nil)
		}
	}

	hits, err := c.retrieve(ctx, in.UserID, question)
	if err != nil {
		return nil, err
	}
	if len(hits) > 0 {
		return c.generate(ctx, buildDocumentPrompt(question, joinHits(hits), ""), domain.QueryDocument, true, hits)
	}

	return c.generate(ctx, buildGeneralPrompt(question), domain.QueryGeneral, false, nil)
}

// retrieve searches only the caller's own index. A missing or emptied index
// yields no hits.
func (c *AnswerComposer) retrieve(ctx context.Context, userID, question string) ([]domain.SearchHit, error) {
	if c.indexes == nil || strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	idx, ok := c.indexes.Lookup(userID)
	if !ok || idx.Len() == 0 {
		return nil, nil
	}

	queryVector, err := c.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed query", err)
	}
	hits, err := idx.SimilaritySearch(ctx, queryVector, c.cfg.TopK)
	if err != nil {
		if domain.IsKind(err, domain.ErrIndexNotInitialized) {
			return nil, nil
		}
		return nil, err
	}

	out := hits[:0]
	for _, h := range hits {
		if h.Metadata.UserID != userID {
			c.logger.Error("foreign_passage_in_user_index", "user_id", userID, "document_id", h.Metadata.DocumentID)
			continue
		}
		if h.Score < c.cfg.MinScore {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (c *AnswerComposer) generate(
	ctx context.Context,
	prompt string,
	queryType domain.QueryType,
	hasContext bool,
	sources []domain.SearchHit,
) (*domain.Answer, error) {
	text, err := c.generator.Generate(ctx, prompt, c.answerOptions())
	if err != nil {
		return nil, domain.WrapError(domain.ErrGeneration, "generate answer", err)
	}
	return &domain.Answer{
		Text:       strings.TrimSpace(text),
		HasContext: hasContext,
		QueryType:  queryType,
		Sources:    sources,
	}, nil
}

// GreetingReply picks a canned reply, stable for equal input.
func GreetingReply(question string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(question))))
	return greetingReplies[int(h.Sum32()%uint32(len(greetingReplies)))]
}

// GreetingReplies lists the canned small-talk answers.
func GreetingReplies() []string {
	out := make([]string, len(greetingReplies))
	copy(out, greetingReplies)
	return out
}
