package index

import (
	"context"
	"errors"
	"math/rand"
	"sort"

	"github.com/marulab/recall/pkg/vecmath"
)

// ErrNotEnoughVectors is returned when training runs with an empty buffer.
var ErrNotEnoughVectors = errors.New("not enough vectors to train")

const kmeansIterations = 12

// kmeansSeed keeps training deterministic so a reloaded index reproduces
// the same bucket assignment for the same vector set.
const kmeansSeed = 1

// ivfBackend clusters vectors into nlist buckets around trained centroids
// and probes the nprobe nearest buckets per query. Vectors arriving before
// training are buffered and flushed into buckets when training runs.
type ivfBackend struct {
	score     scorer
	nlist     int
	nprobe    int
	centroids [][]float32
	buckets   [][]int64
	vectors   map[int64][]float32
	buffer    map[int64][]float32
	isTrained bool
}

func newIVF(cfg Config) *ivfBackend {
	return &ivfBackend{
		score:   scorerFor(cfg.Metric),
		nlist:   cfg.NList,
		nprobe:  cfg.NProbe,
		vectors: make(map[int64][]float32),
		buffer:  make(map[int64][]float32),
	}
}

func (v *ivfBackend) add(id int64, vec []float32) {
	if !v.isTrained {
		v.buffer[id] = vec
		return
	}
	v.vectors[id] = vec
	bucket := v.nearestCentroid(vec)
	v.buckets[bucket] = append(v.buckets[bucket], id)
}

func (v *ivfBackend) nearestCentroid(vec []float32) int {
	best, bestScore := 0, v.score(vec, v.centroids[0])
	for i := 1; i < len(v.centroids); i++ {
		if s := v.score(vec, v.centroids[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

func (v *ivfBackend) search(query []float32, k int) []candidate {
	if k <= 0 {
		return nil
	}
	if !v.isTrained {
		// Exhaustive scan over the buffer until training runs.
		cands := make([]candidate, 0, len(v.buffer))
		for id, vec := range v.buffer {
			cands = append(cands, candidate{id: id, score: v.score(query, vec)})
		}
		return topK(cands, k)
	}
	if len(v.vectors) == 0 {
		return nil
	}

	// Rank centroids by similarity and probe the closest nprobe buckets.
	type probe struct {
		bucket int
		score  float64
	}
	probes := make([]probe, len(v.centroids))
	for i, c := range v.centroids {
		probes[i] = probe{bucket: i, score: v.score(query, c)}
	}
	sort.Slice(probes, func(i, j int) bool { return probes[i].score > probes[j].score })

	nprobe := v.nprobe
	if nprobe > len(probes) {
		nprobe = len(probes)
	}

	var cands []candidate
	for _, p := range probes[:nprobe] {
		for _, id := range v.buckets[p.bucket] {
			cands = append(cands, candidate{id: id, score: v.score(query, v.vectors[id])})
		}
	}
	return topK(cands, k)
}

func (v *ivfBackend) needsTraining() bool { return true }
func (v *ivfBackend) trained() bool       { return v.isTrained }
func (v *ivfBackend) pending() int        { return len(v.buffer) }
func (v *ivfBackend) size() int           { return len(v.vectors) + len(v.buffer) }

// train runs k-means over the buffered vectors, then flushes the buffer
// into buckets. The buffered set doubles as the training sample.
func (v *ivfBackend) train(ctx context.Context) error {
	if v.isTrained {
		return nil
	}
	if len(v.buffer) == 0 {
		return ErrNotEnoughVectors
	}

	sample := make([][]float32, 0, len(v.buffer))
	ids := make([]int64, 0, len(v.buffer))
	for id := range v.buffer {
		ids = append(ids, id)
	}
	// Deterministic iteration order for reproducible centroids.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		sample = append(sample, v.buffer[id])
	}

	centroids, err := kmeans(ctx, sample, v.nlist)
	if err != nil {
		return err
	}
	v.centroids = centroids
	v.buckets = make([][]int64, len(centroids))
	v.isTrained = true

	for _, id := range ids {
		v.add(id, v.buffer[id])
	}
	v.buffer = make(map[int64][]float32)
	return nil
}

func (v *ivfBackend) reset() {
	v.centroids = nil
	v.buckets = nil
	v.vectors = make(map[int64][]float32)
	v.buffer = make(map[int64][]float32)
	v.isTrained = false
}

// kmeans clusters sample into at most k centroids using Lloyd iterations
// with a fixed seed. k is clamped to the sample size.
func kmeans(ctx context.Context, sample [][]float32, k int) ([][]float32, error) {
	if len(sample) == 0 {
		return nil, ErrNotEnoughVectors
	}
	if k > len(sample) {
		k = len(sample)
	}
	dim := len(sample[0])
	rng := rand.New(rand.NewSource(kmeansSeed))

	// Initialize from a shuffled sample.
	perm := rng.Perm(len(sample))
	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		c := make([]float32, dim)
		copy(c, sample[perm[i]])
		centroids[i] = c
	}

	assign := make([]int, len(sample))
	for iter := 0; iter < kmeansIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		changed := false
		for i, vec := range sample {
			best, bestDist := 0, vecmath.L2Distance(vec, centroids[0])
			for j := 1; j < k; j++ {
				if d := vecmath.L2Distance(vec, centroids[j]); d < bestDist {
					best, bestDist = j, d
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, vec := range sample {
			c := assign[i]
			counts[c]++
			for d, x := range vec {
				sums[c][d] += float64(x)
			}
		}
		for i := 0; i < k; i++ {
			if counts[i] == 0 {
				// Re-seed empty clusters from a random sample point.
				copy(centroids[i], sample[rng.Intn(len(sample))])
				continue
			}
			for d := 0; d < dim; d++ {
				centroids[i][d] = float32(sums[i][d] / float64(counts[i]))
			}
		}
	}

	return centroids, nil
}
