package questionnaire

// SimilarityChecker scores how alike two question titles are, in [0, 1].
type SimilarityChecker interface {
	Similarity(a, b string) float64
}

// JaccardSimilarity compares the sets of characters in both titles.
type JaccardSimilarity struct{}

func (JaccardSimilarity) Similarity(a, b string) float64 {
	setA := runeSet(a)
	setB := runeSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	inter := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func runeSet(s string) map[rune]struct{} {
	out := make(map[rune]struct{}, len(s))
	for _, r := range s {
		out[r] = struct{}{}
	}
	return out
}
