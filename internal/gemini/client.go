// Package gemini builds the Gemini API client shared by card extraction and
// fragment embedding.
package gemini

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/genai"
)

// DefaultAPIKeyEnv is the environment variable holding the Gemini API key.
const DefaultAPIKeyEnv = "GOOGLE_GENAI_API_KEY"

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("gemini: API key is required")

// Options configures a client.
type Options struct {
	APIKey string
	// BaseURL overrides the API endpoint, e.g. for a proxy.
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a Gemini Developer API client. Requests are traced through
// otelhttp like the server's own handlers.
func NewClient(ctx context.Context, opts Options) (*genai.Client, error) {
	if opts.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = opts.BaseURL
	}
	return genai.NewClient(ctx, cfg)
}
