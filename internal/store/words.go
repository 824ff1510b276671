package store

import (
	"strings"
	"unicode"
)

// minWordLength is the shortest word tracked in the frequency table.
const minWordLength = 3

// DefaultStopWords are excluded from the word-frequency table. The list
// covers high-frequency English function words; matching is case-folded.
var DefaultStopWords = []string{
	"the", "and", "for", "are", "but", "not", "you", "all", "any", "can",
	"had", "her", "was", "one", "our", "out", "day", "get", "has", "him",
	"his", "how", "man", "new", "now", "old", "see", "two", "way", "who",
	"did", "its", "let", "she", "too", "use", "that", "with", "have",
	"this", "will", "your", "from", "they", "been", "were", "said",
	"each", "which", "their", "there", "about", "would", "these", "other",
	"into", "more", "some", "could", "them", "than", "then", "when",
	"what", "also", "only", "over", "such", "very", "just", "where",
	"most", "after", "on", "a", "an", "in", "of", "to", "is", "it", "as",
	"at", "by", "or", "be", "if", "do", "no", "so", "up", "we",
}

// BuildStopWordMap converts a stop-word list to a lookup set.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

var defaultStopWordSet = BuildStopWordMap(DefaultStopWords)

// NormalizeWords splits text into the words tracked by the frequency
// table: alphabetic only, at least minWordLength runes, lowercased, and
// not in the stop-word set. Order follows the source text and duplicates
// are kept; use CountWords for aggregation.
func NormalizeWords(text string, stopWords map[string]struct{}) []string {
	if stopWords == nil {
		stopWords = defaultStopWordSet
	}

	var words []string
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, f := range fields {
		w := strings.ToLower(f)
		if len([]rune(w)) < minWordLength {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		words = append(words, w)
	}
	return words
}

// CountWords returns per-word occurrence counts for text.
func CountWords(text string, stopWords map[string]struct{}) map[string]int {
	counts := make(map[string]int)
	for _, w := range NormalizeWords(text, stopWords) {
		counts[w]++
	}
	return counts
}

// wordDeltas computes the additive frequency changes needed to move a
// document's contribution from oldContent to newContent. Words absent
// from the result mean no net change.
func wordDeltas(oldContent, newContent string, stopWords map[string]struct{}) map[string]int {
	deltas := CountWords(newContent, stopWords)
	for w, n := range CountWords(oldContent, stopWords) {
		deltas[w] -= n
		if deltas[w] == 0 {
			delete(deltas, w)
		}
	}
	return deltas
}
