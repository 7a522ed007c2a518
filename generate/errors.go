package generate

import "errors"

var (
	// ErrNotConfigured is returned when the selected provider needs an API
	// key and none is set.
	ErrNotConfigured = errors.New("generation API key not configured")
	// ErrUnknownProvider is returned for a generation.provider value that
	// names no known backend.
	ErrUnknownProvider = errors.New("unknown generation provider")
	// ErrNoEmbedder is returned when embeddings are requested but the
	// embedding endpoint is not configured.
	ErrNoEmbedder = errors.New("embedding API not configured")
)
