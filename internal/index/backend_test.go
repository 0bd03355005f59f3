package index

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/marulab/recall/pkg/vecmath"
)

type BackendSuite struct {
	suite.Suite
}

func TestBackendSuite(t *testing.T) {
	suite.Run(t, new(BackendSuite))
}

func (s *BackendSuite) cosineConfig(t Type) Config {
	cfg := DefaultConfig(4)
	cfg.Type = t
	cfg.NList = 4
	cfg.NProbe = 4
	cfg.TrainThreshold = 16
	return cfg
}

// axisVectors returns near-axis-aligned unit vectors in four clusters.
func axisVectors(n int) [][]float32 {
	vecs := make([][]float32, 0, n)
	for i := 0; i < n; i++ {
		v := make([]float32, 4)
		v[i%4] = 1
		v[(i+1)%4] = float32(i%7) * 0.01
		vecs = append(vecs, vecmath.Normalize(v))
	}
	return vecs
}

func (s *BackendSuite) TestScorerOrientation() {
	a := []float32{1, 0, 0, 0}
	b := []float32{0, 1, 0, 0}

	cos := scorerFor(MetricCosine)
	s.InDelta(1.0, cos(a, a), 1e-6)
	s.InDelta(0.0, cos(a, b), 1e-6)

	l2 := scorerFor(MetricL2)
	s.InDelta(1.0, l2(a, a), 1e-6)
	// greater distance maps to a lower score, still positive
	s.Greater(l2(a, a), l2(a, b))
	s.Greater(l2(a, b), 0.0)
}

func (s *BackendSuite) TestTopKTiebreak() {
	cands := []candidate{
		{id: 5, score: 0.5},
		{id: 2, score: 0.9},
		{id: 9, score: 0.9},
		{id: 1, score: 0.7},
	}
	got := topK(cands, 3)
	s.Require().Len(got, 3)
	s.Equal(int64(2), got[0].id) // equal scores break on lower id
	s.Equal(int64(9), got[1].id)
	s.Equal(int64(1), got[2].id)
}

func (s *BackendSuite) TestFlatExactNearest() {
	b := newBackend(s.cosineConfig(TypeFlat))
	vecs := axisVectors(20)
	for i, v := range vecs {
		b.add(int64(i), v)
	}

	got := b.search(vecs[7], 1)
	s.Require().Len(got, 1)
	s.Equal(int64(7), got[0].id)
	s.InDelta(1.0, got[0].score, 1e-6)
}

func (s *BackendSuite) TestFlatEmptyAndOversizedK() {
	b := newBackend(s.cosineConfig(TypeFlat))
	s.Empty(b.search([]float32{1, 0, 0, 0}, 5))

	b.add(1, []float32{1, 0, 0, 0})
	got := b.search([]float32{1, 0, 0, 0}, 100)
	s.Len(got, 1)
}

func (s *BackendSuite) TestIVFBuffersBeforeTraining() {
	b := newBackend(s.cosineConfig(TypeIVF))
	s.True(b.needsTraining())
	s.False(b.trained())

	vecs := axisVectors(10)
	for i, v := range vecs {
		b.add(int64(i), v)
	}
	s.Equal(10, b.pending())

	// exhaustive fallback while untrained
	got := b.search(vecs[3], 1)
	s.Require().Len(got, 1)
	s.Equal(int64(3), got[0].id)
}

func (s *BackendSuite) TestIVFTrainFlushesBuffer() {
	cfg := s.cosineConfig(TypeIVF)
	b := newBackend(cfg)
	vecs := axisVectors(32)
	for i, v := range vecs {
		b.add(int64(i), v)
	}

	s.Require().NoError(b.train(context.Background()))
	s.True(b.trained())
	s.Zero(b.pending())
	s.Equal(32, b.size())

	// full-probe search after training stays exact on this corpus
	for i := 0; i < 8; i++ {
		got := b.search(vecs[i], 1)
		s.Require().Len(got, 1)
		s.Equal(int64(i), got[0].id)
	}
}

func (s *BackendSuite) TestIVFTrainEmptyBuffer() {
	b := newBackend(s.cosineConfig(TypeIVF))
	err := b.train(context.Background())
	s.ErrorIs(err, ErrNotEnoughVectors)
}

func (s *BackendSuite) TestIVFTrainCancelled() {
	b := newBackend(s.cosineConfig(TypeIVF))
	for i, v := range axisVectors(32) {
		b.add(int64(i), v)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Error(b.train(ctx))
}

func (s *BackendSuite) TestHNSWRecallOnSmallCorpus() {
	b := newBackend(s.cosineConfig(TypeHNSW))
	s.False(b.needsTraining())
	s.True(b.trained())

	vecs := axisVectors(64)
	for i, v := range vecs {
		b.add(int64(i), v)
	}
	s.Equal(64, b.size())

	hits := 0
	for i := 0; i < 64; i++ {
		got := b.search(vecs[i], 1)
		if len(got) == 1 && got[0].id == int64(i) {
			hits++
		}
	}
	// graph search is approximate; self-queries on a small corpus should
	// still hit almost always
	s.GreaterOrEqual(hits, 60)
}

func (s *BackendSuite) TestHNSWDeterministicAcrossResets() {
	cfg := s.cosineConfig(TypeHNSW)
	vecs := axisVectors(40)
	query := vecmath.Normalize([]float32{0.8, 0.2, 0, 0})

	run := func() []int64 {
		b := newBackend(cfg)
		for i, v := range vecs {
			b.add(int64(i), v)
		}
		var ids []int64
		for _, c := range b.search(query, 5) {
			ids = append(ids, c.id)
		}
		return ids
	}

	first := run()
	s.NotEmpty(first)
	s.Equal(first, run())
}

func (s *BackendSuite) TestResetClears() {
	for _, t := range []Type{TypeFlat, TypeIVF, TypeHNSW} {
		b := newBackend(s.cosineConfig(t))
		for i, v := range axisVectors(8) {
			b.add(int64(i), v)
		}
		b.reset()
		s.Zero(b.size(), "type %s", t)
		s.Empty(b.search([]float32{1, 0, 0, 0}, 3), "type %s", t)
	}
}

func (s *BackendSuite) TestL2FlatOrdering() {
	cfg := s.cosineConfig(TypeFlat)
	cfg.Metric = MetricL2
	b := newBackend(cfg)

	b.add(0, []float32{0, 0, 0, 0})
	b.add(1, []float32{1, 0, 0, 0})
	b.add(2, []float32{3, 0, 0, 0})

	got := b.search([]float32{0.1, 0, 0, 0}, 3)
	s.Require().Len(got, 3)
	s.Equal(int64(0), got[0].id)
	s.Equal(int64(1), got[1].id)
	s.Equal(int64(2), got[2].id)
	for i := 1; i < len(got); i++ {
		s.Less(got[i].score, got[i-1].score)
	}
	s.False(math.IsInf(got[0].score, 0))
}
