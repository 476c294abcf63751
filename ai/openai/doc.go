// Package openai implements the ai interfaces against any OpenAI-compatible
// API (Ollama, LocalAI, vLLM, OpenAI itself) via langchaingo: text embeddings
// for the semantic index and an optional vision model for image OCR.
package openai
