package qdrant

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/decisiontrace-backend/internal/platform/envutil"
)

type Config struct {
	URL              string        `yaml:"url"`
	Collection       string        `yaml:"collection"`
	NamespacePrefix  string        `yaml:"namespace_prefix"`
	SemanticVector   string        `yaml:"semantic_vector"`
	StructuralVector string        `yaml:"structural_vector"`
	Timeout          time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		Collection:      "decisions",
		NamespacePrefix: "dt",
		Timeout:         10 * time.Second,
	}
}

// ApplyEnv overlays QDRANT_* environment variables.
func (c Config) ApplyEnv() Config {
	c.URL = envutil.String("QDRANT_URL", c.URL)
	c.Collection = envutil.String("QDRANT_COLLECTION", c.Collection)
	c.NamespacePrefix = envutil.String("QDRANT_NAMESPACE_PREFIX", c.NamespacePrefix)
	c.SemanticVector = envutil.String("QDRANT_SEMANTIC_VECTOR", c.SemanticVector)
	c.StructuralVector = envutil.String("QDRANT_STRUCTURAL_VECTOR", c.StructuralVector)
	c.Timeout = envutil.Duration("QDRANT_TIMEOUT", c.Timeout)
	return c
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL        ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL        ConfigErrorCode = "invalid_url"
	ConfigErrorMissingCollection ConfigErrorCode = "missing_collection"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "QDRANT_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid QDRANT_URL=%q; expected absolute URL like http://qdrant:6333", e.Value)
	case ConfigErrorMissingCollection:
		return "QDRANT_COLLECTION is required"
	default:
		return "invalid qdrant config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return &ConfigError{Code: ConfigErrorMissingCollection}
	}
	return nil
}
