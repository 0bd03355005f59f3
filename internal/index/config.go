// Package index implements the ANN vector index: Flat, IVF and HNSW
// backends behind one lifecycle (training, insertion, search, logical
// deletion, rebuild, snapshot persistence).
package index

import (
	"errors"
	"fmt"
	"time"
)

// Type selects the ANN structure.
type Type string

const (
	// TypeFlat scans every vector. Exact, no training, O(n) per query.
	// Reference implementation for correctness tests.
	TypeFlat Type = "flat"
	// TypeIVF clusters vectors into NList buckets and probes NProbe of them
	// per query. Needs a one-time training pass.
	TypeIVF Type = "ivf"
	// TypeHNSW builds a navigable small-world graph. No training, strong
	// recall/latency tradeoff, higher memory.
	TypeHNSW Type = "hnsw"
)

// Valid reports whether t names a known index type.
func (t Type) Valid() bool {
	switch t {
	case TypeFlat, TypeIVF, TypeHNSW:
		return true
	}
	return false
}

// Metric selects the similarity measure. All backends return scores where
// higher is better; for MetricL2 the score is 1/(1+distance).
type Metric string

const (
	MetricCosine       Metric = "cosine"
	MetricL2           Metric = "l2"
	MetricInnerProduct Metric = "inner_product"
)

// Valid reports whether m names a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricL2, MetricInnerProduct:
		return true
	}
	return false
}

// Config holds the index tuning surface.
type Config struct {
	Dimension      int           `json:"dimension" yaml:"dimension"`
	Type           Type          `json:"index_type" yaml:"index_type"`
	Metric         Metric        `json:"metric" yaml:"metric"`
	NList          int           `json:"nlist" yaml:"nlist"`
	NProbe         int           `json:"nprobe" yaml:"nprobe"`
	TrainThreshold int           `json:"train_threshold" yaml:"train_threshold"`
	MaxVectors     int           `json:"max_vectors" yaml:"max_vectors"`
	TrainTimeout   time.Duration `json:"train_timeout" yaml:"train_timeout"`

	// HNSW parameters.
	HNSWM              int `json:"hnsw_m" yaml:"hnsw_m"`
	HNSWEfConstruction int `json:"hnsw_ef_construction" yaml:"hnsw_ef_construction"`
	HNSWEfSearch       int `json:"hnsw_ef_search" yaml:"hnsw_ef_search"`

	// Snapshot backups.
	BackupRetentionDays int `json:"backup_retention_days" yaml:"backup_retention_days"`
}

// DefaultConfig returns a flat cosine index of the given dimension with the
// standard tuning defaults.
func DefaultConfig(dimension int) Config {
	return Config{
		Dimension:           dimension,
		Type:                TypeFlat,
		Metric:              MetricCosine,
		NList:               64,
		NProbe:              8,
		TrainThreshold:      256,
		MaxVectors:          1_000_000,
		TrainTimeout:        2 * time.Minute,
		HNSWM:               16,
		HNSWEfConstruction:  200,
		HNSWEfSearch:        64,
		BackupRetentionDays: 7,
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Dimension <= 0 {
		return errors.New("dimension must be positive")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("unknown index type %q", c.Type)
	}
	if !c.Metric.Valid() {
		return fmt.Errorf("unknown metric %q", c.Metric)
	}
	if c.Type == TypeIVF {
		if c.NList <= 0 {
			return errors.New("nlist must be positive for ivf")
		}
		if c.NProbe <= 0 || c.NProbe > c.NList {
			return errors.New("nprobe must be in [1, nlist]")
		}
		if c.TrainThreshold <= 0 {
			return errors.New("train_threshold must be positive for ivf")
		}
	}
	if c.Type == TypeHNSW {
		if c.HNSWM < 2 {
			return errors.New("hnsw_m must be at least 2")
		}
		if c.HNSWEfConstruction < c.HNSWM {
			return errors.New("hnsw_ef_construction must be >= hnsw_m")
		}
		if c.HNSWEfSearch <= 0 {
			return errors.New("hnsw_ef_search must be positive")
		}
	}
	if c.MaxVectors <= 0 {
		return errors.New("max_vectors must be positive")
	}
	return nil
}
