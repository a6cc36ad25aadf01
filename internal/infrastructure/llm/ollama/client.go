package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/legal-doc-assistant/internal/core/ports"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/resilience"
)

type Client struct {
	baseURL       string
	genModel      string
	embedModel    string
	contextWindow int
	keepAlive     string
	httpClient    *http.Client
	executor      *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ContextWindow      int
	KeepAlive          string
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, genModel, embedModel string) *Client {
	return NewWithOptions(baseURL, genModel, embedModel, Options{})
}

func NewWithOptions(baseURL, genModel, embedModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	keepAlive := options.KeepAlive
	if keepAlive == "" {
		keepAlive = "10m"
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		genModel:      genModel,
		embedModel:    embedModel,
		contextWindow: options.ContextWindow,
		keepAlive:     keepAlive,
		httpClient:    &http.Client{Timeout: timeout},
		executor:      options.ResilienceExecutor,
	}
}

// Generate runs a single non-streaming completion.
func (c *Client) Generate(ctx context.Context, prompt string, opts ports.GenerateOptions) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	if opts.JSON {
		reqBody["format"] = "json"
	}
	if modelOptions := c.buildOptions(opts); len(modelOptions) > 0 {
		reqBody["options"] = modelOptions
	}
	return c.generate(ctx, "generate", reqBody)
}

// Ping checks that the runtime answers and lists models.
func (c *Client) Ping(ctx context.Context) error {
	var response struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	call := func(callCtx context.Context) error {
		return c.getJSON(callCtx, "/api/tags", &response, "tags")
	}
	if err := c.executor.Execute(ctx, "ollama.tags", call, classifyOllamaError); err != nil {
		return wrapTemporaryIfNeeded("ollama ping", err)
	}
	return nil
}

// Warmup loads the generation model into memory without producing output.
func (c *Client) Warmup(ctx context.Context) error {
	reqBody := map[string]any{
		"model":      c.genModel,
		"prompt":     "",
		"stream":     false,
		"keep_alive": c.keepAlive,
	}
	_, err := c.generate(ctx, "warmup", reqBody)
	return err
}

func (c *Client) buildOptions(opts ports.GenerateOptions) map[string]any {
	out := make(map[string]any, 5)
	contextWindow := opts.ContextWindow
	if contextWindow <= 0 {
		contextWindow = c.contextWindow
	}
	if contextWindow > 0 {
		out["num_ctx"] = contextWindow
	}
	if opts.Temperature > 0 {
		out["temperature"] = opts.Temperature
	}
	if opts.TopP > 0 {
		out["top_p"] = opts.TopP
	}
	if opts.MaxTokens > 0 {
		out["num_predict"] = opts.MaxTokens
	}
	if opts.RepeatPenalty > 0 {
		out["repeat_penalty"] = opts.RepeatPenalty
	}
	return out
}

func (c *Client) generate(ctx context.Context, operation string, reqBody map[string]any) (string, error) {
	text, err := resilience.Do(ctx, c.executor, "ollama."+operation, func(callCtx context.Context) (string, error) {
		var response struct {
			Response string `json:"response"`
		}
		if err := c.postJSON(callCtx, "/api/generate", reqBody, &response, operation); err != nil {
			return "", err
		}
		return response.Response, nil
	}, classifyOllamaError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama "+operation, err)
	}
	return strings.TrimSpace(text), nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	embeddings, err := resilience.Do(ctx, e.client.executor, "ollama.embed", func(callCtx context.Context) ([][]float32, error) {
		var response struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := e.client.postJSON(callCtx, "/api/embed", request, &response, "embed"); err != nil {
			return nil, err
		}
		return response.Embeddings, nil
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("ollama embed", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d inputs", len(embeddings), len(texts))
	}
	for i, vector := range embeddings {
		if len(vector) == 0 {
			return nil, fmt.Errorf("empty embedding for input %d", i)
		}
	}
	return embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}
