package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/meishi/internal/loader"
	"github.com/hyperjump/meishi/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// DefaultGeminiModel is the model used when none is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiModels is the part of the genai Models service the extractor calls.
// *genai.Models satisfies it.
type GeminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiOptions configures a GeminiExtractor.
type GeminiOptions struct {
	Models GeminiModels
	Model  string
	// RequestsPerMinute throttles calls; <= 0 disables throttling.
	RequestsPerMinute int
	Logger            *zap.Logger
}

// GeminiExtractor sends the card image inline with Prompt and asks for a JSON reply.
type GeminiExtractor struct {
	models  GeminiModels
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGeminiExtractor creates a Gemini extractor over a genai Models service.
func NewGeminiExtractor(opts GeminiOptions) (*GeminiExtractor, error) {
	if opts.Models == nil {
		return nil, fmt.Errorf("gemini extractor requires a client")
	}
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	return &GeminiExtractor{
		models:  opts.Models,
		model:   opts.Model,
		limiter: rate.NewLimiter(limit, 1),
		logger:  opts.Logger,
	}, nil
}

// Extract sends the image and prompt to Gemini. Transport and API failures are
// returned as errors; a reply that is not a card object yields empty fields and a warning.
func (g *GeminiExtractor) Extract(ctx context.Context, img *loader.Image) (*models.ExtractedInfo, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(Prompt),
		genai.NewPartFromBytes(img.Bytes, img.MIMEType),
	}, genai.RoleUser)}
	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	var text string
	if resp != nil {
		text = resp.Text()
	}
	info, err := ParseResponse(text)
	if err != nil {
		g.logger.Warn("gemini reply is not a card; using empty fields",
			zap.String("source", img.Source), zap.Error(err))
		return &models.ExtractedInfo{}, nil
	}
	return info, nil
}
