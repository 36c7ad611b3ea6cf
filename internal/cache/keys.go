package cache

import (
	"sort"
	"strconv"
	"strings"
)

// Key derivation is bit-exact by contract so that any reimplementation of the
// pipeline interoperates with existing cache contents: lower-case and trim
// each title, sort lexicographically, join with "|".

// normalizeTitles lower-cases, trims, and sorts a copy of titles.
func normalizeTitles(titles []string) []string {
	out := make([]string, len(titles))
	for i, t := range titles {
		out[i] = strings.ToLower(strings.TrimSpace(t))
	}
	sort.Strings(out)
	return out
}

// TasteProfileKey derives the cache key for the taste profile generated from
// the given favorite titles. Order, case, and surrounding whitespace of the
// input do not affect the result.
func TasteProfileKey(titles []string) string {
	return "taste_profile:" + strings.Join(normalizeTitles(titles), "|")
}

// RecommendationKey derives the cache key for a full recommendation response.
func RecommendationKey(titles []string, count int) string {
	return "recommendations:" + strconv.Itoa(count) + ":" + strings.Join(normalizeTitles(titles), "|")
}

// EmbeddingKey derives the cache key for a book's embedding vector.
func EmbeddingKey(bookID int64) string {
	return "embedding:" + strconv.FormatInt(bookID, 10)
}
