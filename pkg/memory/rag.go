package memory

import (
	"sort"
	"strings"
)

const (
	// MinTopK and MaxTopK bound the Query topK parameter.
	MinTopK = 1
	MaxTopK = 100
)

// ClampTopK forces topK into [MinTopK, MaxTopK]. Zero or negative values
// clamp to the minimum.
func ClampTopK(topK int) int {
	if topK < MinTopK {
		return MinTopK
	}
	if topK > MaxTopK {
		return MaxTopK
	}
	return topK
}

// Tokenize lowercases s and splits it on whitespace. The result is the token
// multiset used for Jaccard scoring; it is deterministic and round-trip-safe.
func Tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// JaccardMultiset computes Jaccard similarity over two token multisets:
// |intersection| / |union| with multiplicities. Two empty inputs score 0.
func JaccardMultiset(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	countA := make(map[string]int, len(a))
	for _, t := range a {
		countA[t]++
	}
	countB := make(map[string]int, len(b))
	for _, t := range b {
		countB[t]++
	}

	inter := 0
	for t, ca := range countA {
		if cb, ok := countB[t]; ok {
			if ca < cb {
				inter += ca
			} else {
				inter += cb
			}
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Rank scores docs against query and returns the topK best matches in
// descending score order. Ties break by shorter DocID, then lexically.
// Zero-score documents are omitted.
func Rank(docs []RAGDoc, query string, topK int) []ScoredDoc {
	topK = ClampTopK(topK)
	qTokens := Tokenize(query)

	scored := make([]ScoredDoc, 0, len(docs))
	for _, d := range docs {
		s := JaccardMultiset(qTokens, Tokenize(d.Text))
		if s > 0 {
			scored = append(scored, ScoredDoc{Doc: d, Score: s})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		di, dj := scored[i].Doc.DocID, scored[j].Doc.DocID
		if len(di) != len(dj) {
			return len(di) < len(dj)
		}
		return di < dj
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
