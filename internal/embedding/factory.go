package embedding

import (
	"context"
	"fmt"
	"os"

	"github.com/hyperjump/meishi/internal/gemini"
)

// Provider names accepted by New.
const (
	ProviderMock   = "mock"
	ProviderONNX   = "onnx"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// ONNXOptions configures the local ONNX embedder.
type ONNXOptions struct {
	ModelPath         string
	SharedLibraryPath string
	Dimensions        int
	MaxTokens         int
	Tokenizer         Tokenizer
}

// Options selects and configures an embedder.
type Options struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKeyEnv  string
	Dimensions int
	MaxTokens  int
	CacheSize  int
	ModelPath  string
	// ORTLibraryPath is the onnxruntime shared library (onnx only, optional).
	ORTLibraryPath string
	// GeminiModels serves gemini embeddings. When nil a client is created from
	// APIKeyEnv and BaseURL.
	GeminiModels GeminiModels
}

// New builds the configured embedder, wrapped in an LRU cache when CacheSize > 0.
func New(opts Options) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch opts.Provider {
	case ProviderMock, "":
		e = NewMockEmbedder(opts.Dimensions)
	case ProviderONNX:
		e, err = NewONNXEmbedder(ONNXOptions{
			ModelPath:         opts.ModelPath,
			SharedLibraryPath: opts.ORTLibraryPath,
			Dimensions:        opts.Dimensions,
			MaxTokens:         opts.MaxTokens,
		})
	case ProviderGemini:
		models := opts.GeminiModels
		if models == nil {
			client, cerr := gemini.NewClient(context.Background(), gemini.Options{
				APIKey:  os.Getenv(opts.APIKeyEnv),
				BaseURL: opts.BaseURL,
			})
			if cerr != nil {
				return nil, fmt.Errorf("gemini embedder: %w", cerr)
			}
			models = client.Models
		}
		e, err = NewGeminiEmbedder(models, opts.Model, opts.Dimensions)
	case ProviderOpenAI:
		e, err = NewOpenAIEmbedder(opts.BaseURL, os.Getenv(opts.APIKeyEnv), opts.Model, opts.Dimensions)
	case ProviderOllama:
		e, err = NewOllamaEmbedder(opts.BaseURL, opts.Model, opts.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: mock, onnx, gemini, openai, ollama)", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	if opts.CacheSize > 0 {
		return NewCachedEmbedder(e, opts.CacheSize), nil
	}
	return e, nil
}
