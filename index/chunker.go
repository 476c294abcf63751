package index

import "strings"

const (
	// chunkSize is the target window in characters.
	chunkSize = 500
	// chunkOverlap is carried from the end of one chunk into the next so
	// sentences cut at a window edge still score in both.
	chunkOverlap = 50
	// boundaryLookback and boundaryLookahead bound the search for a sentence
	// end around the window edge.
	boundaryLookback  = 100
	boundaryLookahead = 50
)

var sentenceSeparators = []string{". ", ".\n", "? ", "?\n", "! ", "!\n"}

// Chunk splits text into overlapping windows of roughly chunkSize characters,
// preferring to cut at a sentence boundary near the window edge. It is a pure
// function: same text, same chunks.
func Chunk(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize

		if end < len(runes) {
			searchStart := start + chunkSize - boundaryLookback
			if searchStart < start {
				searchStart = start
			}
			limit := end + boundaryLookahead
			if limit > len(runes) {
				limit = len(runes)
			}
			for _, sep := range sentenceSeparators {
				if pos := lastSeparator(runes, sep, searchStart, limit); pos > searchStart {
					end = pos + 1
					break
				}
			}
		}

		sliceEnd := end
		if sliceEnd > len(runes) {
			sliceEnd = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[start:sliceEnd])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		start = end - chunkOverlap
	}

	return chunks
}

// lastSeparator returns the index of the last occurrence of sep within
// runes[from:to], or -1. Separators are ASCII, so a rune-wise comparison is
// exact.
func lastSeparator(runes []rune, sep string, from, to int) int {
	sepRunes := []rune(sep)
	for i := to - len(sepRunes); i >= from; i-- {
		match := true
		for j, r := range sepRunes {
			if runes[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
