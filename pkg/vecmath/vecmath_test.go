package vecmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type VecmathSuite struct {
	suite.Suite
}

func TestVecmathSuite(t *testing.T) {
	suite.Run(t, new(VecmathSuite))
}

func (s *VecmathSuite) TestDot() {
	s.InDelta(11.0, Dot([]float32{1, 2, 3}, []float32{3, 1, 2}), 1e-9)
	s.Equal(0.0, Dot([]float32{1, 2}, []float32{1}))
}

func (s *VecmathSuite) TestNorm() {
	s.InDelta(5.0, Norm([]float32{3, 4}), 1e-9)
	s.Equal(0.0, Norm(nil))
}

func (s *VecmathSuite) TestL2Distance() {
	s.InDelta(5.0, L2Distance([]float32{0, 0}, []float32{3, 4}), 1e-9)
	s.True(math.IsInf(L2Distance([]float32{1}, []float32{1, 2}), 1))
}

func (s *VecmathSuite) TestCosineSimilarity() {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			assert.InDelta(s.T(), tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func (s *VecmathSuite) TestNormalize_UnitNorm() {
	v := Normalize([]float32{3, 4})
	s.True(IsNormalized(v, 1e-6))
	s.InDelta(0.6, float64(v[0]), 1e-6)
	s.InDelta(0.8, float64(v[1]), 1e-6)

	// Input is not mutated.
	orig := []float32{3, 4}
	_ = Normalize(orig)
	s.Equal(float32(3), orig[0])
}

func (s *VecmathSuite) TestNormalize_ZeroVector() {
	v := Normalize([]float32{0, 0})
	s.Equal([]float32{0, 0}, v)
	s.False(IsNormalized(v, 1e-6))
}
