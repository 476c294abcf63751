// Package mock provides deterministic test doubles for the ai interfaces.
// The embedder derives stable pseudo-random unit vectors from an FNV hash of
// the input, so identical text always embeds identically across test runs.
package mock
