package index

import (
	"math"
	"sort"
)

// Result is one nearest-neighbor hit.
type Result struct {
	UUID  string  `json:"uuid"`
	Score float32 `json:"score"`
	Row   int     `json:"-"`
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denominator := float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB)))
	if denominator == 0 {
		return 0
	}

	return dot / denominator
}

// Search returns the k rows most similar to the query vector,
// most-similar-first, ties broken by ascending uuid so results are
// deterministic. k larger than the row count is clamped, not an error.
func (s *Snapshot) Search(query []float32, k int) []Result {
	if k <= 0 || len(query) != s.dimensions || len(s.vectors) == 0 {
		return nil
	}
	if k > len(s.vectors) {
		k = len(s.vectors)
	}

	results := make([]Result, len(s.vectors))
	for i, vec := range s.vectors {
		results[i] = Result{
			UUID:  s.uuids[i],
			Score: CosineSimilarity(query, vec),
			Row:   i,
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].UUID < results[j].UUID
	})

	return results[:k]
}
