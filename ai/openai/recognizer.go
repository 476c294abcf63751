// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/poiesic/raadsync/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// recognizePrompt instructs the vision model to transcribe, not describe.
// Council scans are mostly Dutch; the model must keep the original language.
const recognizePrompt = `Transcribe all text visible in this image exactly as written.
Keep the original language. Preserve line breaks between paragraphs.
If the image contains no readable text, respond with exactly: NO_TEXT`

// Recognizer implements ai.Recognizer using OpenAI-compatible vision APIs.
type Recognizer struct {
	client llms.Model
	model  string
	logger *slog.Logger
}

// newRecognizer is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newRecognizer(config *ai.Config) (*Recognizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.OCRHost),
		openai.WithToken("none"),
		openai.WithModel(config.OCRModel),
	)
	if err != nil {
		return nil, err
	}

	return &Recognizer{
		client: client,
		model:  config.OCRModel,
		logger: slog.Default().With("component", "openai-recognizer"),
	}, nil
}

// NewRecognizer creates a vision-model recognizer from the configuration.
//
// Returns ai.Recognizer interface to enforce abstraction.
func NewRecognizer(config *ai.Config) (ai.Recognizer, error) {
	return newRecognizer(config)
}

// RecognizeText sends the image to the vision model and returns the
// transcribed text, or an empty string when the model reports none.
func (r *Recognizer) RecognizeText(ctx context.Context, data []byte, mimeType string) (string, error) {
	r.logger.Debug("recognizing image text", "bytes", len(data), "mime", mimeType)

	resp, err := r.client.GenerateContent(ctx, []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.BinaryPart(mimeType, data),
				llms.TextPart(recognizePrompt),
			},
		},
	}, llms.WithTemperature(0))
	if err != nil {
		r.logger.Error("vision model call failed", "err", err)
		return "", err
	}

	if len(resp.Choices) == 0 {
		r.logger.Warn("vision model returned no choices")
		return "", nil
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "NO_TEXT" {
		return "", nil
	}
	return text, nil
}
