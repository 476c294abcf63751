package mock

import "context"

// MockRecognizer is a test double for ai.Recognizer.
type MockRecognizer struct {
	// RecognizeTextFunc is called by RecognizeText if set.
	// If nil, Text is returned for every image.
	RecognizeTextFunc func(ctx context.Context, data []byte, mimeType string) (string, error)

	// Text is the canned response used when no func is injected.
	Text string

	callCount int
}

// NewMockRecognizer creates a mock recognizer returning the given text.
func NewMockRecognizer(text string) *MockRecognizer {
	return &MockRecognizer{Text: text}
}

// RecognizeText returns the canned or injected recognition result.
func (m *MockRecognizer) RecognizeText(ctx context.Context, data []byte, mimeType string) (string, error) {
	m.callCount++

	if m.RecognizeTextFunc != nil {
		return m.RecognizeTextFunc(ctx, data, mimeType)
	}
	return m.Text, nil
}

// CallCount returns the number of times RecognizeText was called.
func (m *MockRecognizer) CallCount() int {
	return m.callCount
}
