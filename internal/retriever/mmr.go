package retriever

import (
	"github.com/marulab/recall/pkg/vecmath"
)

// mmrSelect re-ranks candidates by maximal marginal relevance: start with
// the highest-scoring candidate, then repeatedly pick the one maximizing
// (1-lambda)*relevance - lambda*maxSimilarityToSelected. Candidates must be
// sorted by final score descending; vectors are the candidates' embeddings,
// aligned by index. Returns at most k candidate indices in selection order.
func mmrSelect(scores []float64, vectors [][]float32, lambda float64, k int) []int {
	n := len(scores)
	if n == 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}

	selected := make([]int, 0, k)
	remaining := make([]int, 0, n-1)
	// First pick is the relevance leader regardless of lambda.
	selected = append(selected, 0)
	for i := 1; i < n; i++ {
		remaining = append(remaining, i)
	}

	// maxSim[i] tracks each candidate's similarity to its closest selected
	// neighbor, updated incrementally as selections are made.
	maxSim := make([]float64, n)
	for _, i := range remaining {
		maxSim[i] = vecmath.CosineSimilarity(vectors[i], vectors[0])
	}

	for len(selected) < k && len(remaining) > 0 {
		bestPos, bestScore := -1, 0.0
		for pos, i := range remaining {
			score := (1-lambda)*scores[i] - lambda*maxSim[i]
			if bestPos == -1 || score > bestScore {
				bestPos, bestScore = pos, score
			}
		}

		picked := remaining[bestPos]
		selected = append(selected, picked)
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)

		for _, i := range remaining {
			if sim := vecmath.CosineSimilarity(vectors[i], vectors[picked]); sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}
	return selected
}
