// Package ai defines the AI service interfaces used by the indexing and sync
// pipelines: text embedding for semantic search and optional image text
// recognition. Concrete implementations live in subpackages; openai targets
// any OpenAI-compatible API and mock provides deterministic test doubles.
package ai
