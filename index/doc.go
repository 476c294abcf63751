// Package index implements the semantic document index: sentence-aware text
// chunking, embedding storage and cosine-similarity search over the full
// chunk set.
package index
