package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddsV1Suffix(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"bare host", "http://localhost:11434", "http://localhost:11434/v1"},
		{"trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"already normalized", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host, OCRHost: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.EmbeddingHost)
			assert.Equal(t, tt.want, cfg.OCRHost)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := NewConfig(WithHost("http://localhost:11434"))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)

	cfg = NewConfig(WithEmbeddingModel(""))
	assert.Error(t, cfg.Validate())

	cfg = NewConfig(WithOCRModel("minicpm-v"), WithOCRHost(""))
	assert.Error(t, cfg.Validate())
}

func TestOptions(t *testing.T) {
	cfg := NewConfig(
		WithEmbeddingHost("http://embed:9000"),
		WithOCRHost("http://vision:9001"),
		WithEmbeddingModel("nomic-embed-text"),
		WithOCRModel("minicpm-v"),
	)
	assert.Equal(t, "http://embed:9000", cfg.EmbeddingHost)
	assert.Equal(t, "http://vision:9001", cfg.OCRHost)
	assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
	assert.Equal(t, "minicpm-v", cfg.OCRModel)
}
