package index

import (
	"context"
	"sort"

	"github.com/marulab/recall/pkg/vecmath"
)

// candidate is one ANN hit: a vector slot and its similarity score
// (higher is better for every metric).
type candidate struct {
	id    int64
	score float64
}

// scorer computes a higher-is-better similarity for the configured metric.
type scorer func(a, b []float32) float64

func scorerFor(metric Metric) scorer {
	switch metric {
	case MetricL2:
		return func(a, b []float32) float64 {
			return 1 / (1 + vecmath.L2Distance(a, b))
		}
	default:
		// Cosine vectors are stored normalized, so dot covers both cosine
		// and inner product.
		return vecmath.Dot
	}
}

// backend is the ANN structure behind the index. Backends are not
// goroutine-safe; the owning Index serializes access.
type backend interface {
	// add inserts a vector. Untrained IVF buffers it until train runs.
	add(id int64, vec []float32)

	// search returns up to k candidates sorted by score descending.
	// Untrained backends return nil.
	search(query []float32, k int) []candidate

	// needsTraining reports whether the structure requires a training pass
	// before vectors become searchable.
	needsTraining() bool

	// trained reports whether the structure is ready to search. Backends
	// without a training step are always trained.
	trained() bool

	// train runs the one-time training pass over the buffered vectors.
	train(ctx context.Context) error

	// pending returns the number of buffered, not-yet-searchable vectors.
	pending() int

	// reset drops all state (rebuild path).
	reset()

	// size returns the number of searchable vectors, stale ones included.
	size() int
}

func newBackend(cfg Config) backend {
	switch cfg.Type {
	case TypeIVF:
		return newIVF(cfg)
	case TypeHNSW:
		return newHNSW(cfg)
	default:
		return newFlat(cfg)
	}
}

// topK sorts candidates by score descending (slot ascending on ties, for
// deterministic results) and truncates to k.
func topK(cands []candidate, k int) []candidate {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].id < cands[j].id
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	return cands
}
