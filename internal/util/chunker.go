package util

import "strings"

// ChunkText splits text into overlapping segments sized by an approximate
// token budget. Consecutive chunks share overlapTokens of context; the last
// chunk may fall short of the target. Deterministic for identical inputs.
func ChunkText(text string, targetTokens, overlapTokens int) []string {
	if targetTokens <= 0 {
		targetTokens = 300
	}
	if overlapTokens < 0 || overlapTokens >= targetTokens {
		overlapTokens = 0
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	targetWords := wordsForTokens(targetTokens)
	overlapWords := wordsForTokens(overlapTokens)
	if overlapWords >= targetWords {
		overlapWords = 0
	}
	step := targetWords - overlapWords
	out := make([]string, 0, (len(words)/step)+1)
	for i := 0; i < len(words); i += step {
		end := i + targetWords
		if end > len(words) {
			end = len(words)
		}
		part := strings.TrimSpace(strings.Join(words[i:end], " "))
		if part != "" {
			out = append(out, part)
		}
		if end == len(words) {
			break
		}
	}
	return out
}

// EstimateTokens approximates a token count from whitespace-delimited words
// (one word is roughly 3/4 of a token for English prose).
func EstimateTokens(s string) int {
	n := len(strings.Fields(s))
	if n == 0 {
		return 0
	}
	return (n*4 + 2) / 3
}

func wordsForTokens(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	w := tokens * 3 / 4
	if w < 1 {
		w = 1
	}
	return w
}
