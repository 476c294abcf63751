package mock

import "github.com/poiesic/raadsync/ai"

// MockProvider is a test double for ai.Provider that bundles the mock
// embedder and recognizer.
type MockProvider struct {
	embedder   *MockEmbedder
	recognizer *MockRecognizer
}

// NewMockProvider creates a provider with deterministic embeddings and no
// recognizer, matching a deployment without OCR configured.
func NewMockProvider() *MockProvider {
	return &MockProvider{embedder: NewMockEmbedder()}
}

// NewMockProviderWithOCR creates a provider whose recognizer returns text for
// every image.
func NewMockProviderWithOCR(text string) *MockProvider {
	return &MockProvider{
		embedder:   NewMockEmbedder(),
		recognizer: NewMockRecognizer(text),
	}
}

// Embedder returns the mock embedding service.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Recognizer returns the mock recognizer, or nil when OCR is disabled.
func (p *MockProvider) Recognizer() ai.Recognizer {
	if p.recognizer == nil {
		return nil
	}
	return p.recognizer
}

// Close is a no-op.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder exposes the concrete embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}
