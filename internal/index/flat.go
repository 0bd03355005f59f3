package index

import "context"

// flatBackend is the exact-scan reference backend.
type flatBackend struct {
	score   scorer
	vectors map[int64][]float32
}

func newFlat(cfg Config) *flatBackend {
	return &flatBackend{
		score:   scorerFor(cfg.Metric),
		vectors: make(map[int64][]float32),
	}
}

func (f *flatBackend) add(id int64, vec []float32) {
	f.vectors[id] = vec
}

func (f *flatBackend) search(query []float32, k int) []candidate {
	if len(f.vectors) == 0 || k <= 0 {
		return nil
	}
	cands := make([]candidate, 0, len(f.vectors))
	for id, vec := range f.vectors {
		cands = append(cands, candidate{id: id, score: f.score(query, vec)})
	}
	return topK(cands, k)
}

func (f *flatBackend) needsTraining() bool            { return false }
func (f *flatBackend) trained() bool                  { return true }
func (f *flatBackend) train(_ context.Context) error  { return nil }
func (f *flatBackend) pending() int                   { return 0 }
func (f *flatBackend) size() int                      { return len(f.vectors) }

func (f *flatBackend) reset() {
	f.vectors = make(map[int64][]float32)
}
