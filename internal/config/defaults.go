package config

import (
	"os"
	"path/filepath"
)

// DataDir is the default root for the database and indices.
const DataDir = "/usr/local/var/meishi/data"

const geminiAPIKeyEnv = "GOOGLE_GENAI_API_KEY"

// DefaultPath returns the default config file location, ~/.config/meishi/config.yaml.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "meishi", "config.yaml")
	}
	return "config.yaml"
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 60
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = DataDir + "/db/cards.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = DataDir + "/indices/bleve"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = DataDir + "/indices/vectors.bin"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = DataDir + "/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Provider == "gemini" {
		if cfg.Embedding.APIKeyEnv == "" {
			cfg.Embedding.APIKeyEnv = geminiAPIKeyEnv
		}
		if cfg.Embedding.Model == "" {
			cfg.Embedding.Model = "gemini-embedding-exp-03-07"
		}
		if cfg.Embedding.Dimensions == 0 {
			cfg.Embedding.Dimensions = 768
		}
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "cards"
	}
	if cfg.Extraction.Provider == "" {
		cfg.Extraction.Provider = "gemini"
	}
	if cfg.Extraction.APIKeyEnv == "" {
		cfg.Extraction.APIKeyEnv = geminiAPIKeyEnv
	}
	if cfg.Extraction.RequestsPerMinute == 0 {
		cfg.Extraction.RequestsPerMinute = 15
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 5
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 50
	}
	if cfg.Search.UnderfillRetries == 0 {
		cfg.Search.UnderfillRetries = 1
	}
	if cfg.Search.LookupNameBoost == 0 {
		cfg.Search.LookupNameBoost = 3.0
	}
	if cfg.Search.LookupFuzziness == 0 {
		cfg.Search.LookupFuzziness = 1
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".jpg", ".jpeg", ".png", ".webp"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
