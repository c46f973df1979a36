package embedding

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is the Gemini embedding model used when none is configured.
const DefaultGeminiModel = "gemini-embedding-exp-03-07"

const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"

	// documentTitle is sent with every stored fragment and stands in for blank
	// fragment text, which the API rejects.
	documentTitle = "Business Card Information"

	// geminiBatchLimit is the most contents one embedContent call accepts.
	geminiBatchLimit = 100
)

// GeminiModels is the part of the genai Models service the embedder calls.
// *genai.Models satisfies it.
type GeminiModels interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiEmbedder embeds fragments as retrieval documents and queries as retrieval
// queries, so the two sides of a search use matching task types.
type GeminiEmbedder struct {
	models     GeminiModels
	model      string
	dimensions int
}

// NewGeminiEmbedder creates a Gemini embedder. dimensions is sent as the output
// dimensionality and every returned vector is checked against it.
func NewGeminiEmbedder(models GeminiModels, model string, dimensions int) (*GeminiEmbedder, error) {
	if models == nil {
		return nil, fmt.Errorf("gemini embedder: client is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("gemini embedder: dimensions must be positive")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiEmbedder{models: models, model: model, dimensions: dimensions}, nil
}

// Embed embeds one fragment as a retrieval document.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.embed(ctx, []string{text}, taskRetrievalDocument)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds fragments as retrieval documents, geminiBatchLimit per call.
func (g *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := min(start+geminiBatchLimit, len(texts))
		vecs, err := g.embed(ctx, texts[start:end], taskRetrievalDocument)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedQuery embeds a search query as a retrieval query.
func (g *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (g *GeminiEmbedder) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			text = documentTitle
		}
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	dims := int32(g.dimensions)
	cfg := &genai.EmbedContentConfig{TaskType: task, OutputDimensionality: &dims}
	if task == taskRetrievalDocument {
		cfg.Title = documentTitle
	}

	resp, err := g.models.EmbedContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embed: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("gemini embed: embedding %d is missing", i)
		}
		if len(e.Values) != g.dimensions {
			return nil, fmt.Errorf("gemini embed: embedding %d has %d dimensions, want %d", i, len(e.Values), g.dimensions)
		}
		out[i] = e.Values
	}
	return out, nil
}

// Dimensions returns the configured output dimensionality.
func (g *GeminiEmbedder) Dimensions() int {
	return g.dimensions
}

// Close is a no-op; the genai client owns no resources that need releasing.
func (g *GeminiEmbedder) Close() error {
	return nil
}
