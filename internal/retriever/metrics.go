package retriever

import "sync/atomic"

// Metrics counts retrieval activity with lock-free atomics. Counters only
// ever increase; Snapshot reads them without coordination, so a snapshot
// taken during a search may be off by the in-flight query.
type Metrics struct {
	searches       atomic.Int64
	embedFailures  atomic.Int64
	hybridResults  atomic.Int64
	keywordRescues atomic.Int64
	dedupDropped   atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Searches       int64 `json:"searches"`
	EmbedFailures  int64 `json:"embed_failures"`
	HybridResults  int64 `json:"hybrid_results"`
	KeywordRescues int64 `json:"keyword_rescues"`
	DedupDropped   int64 `json:"dedup_dropped"`
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Searches:       m.searches.Load(),
		EmbedFailures:  m.embedFailures.Load(),
		HybridResults:  m.hybridResults.Load(),
		KeywordRescues: m.keywordRescues.Load(),
		DedupDropped:   m.dedupDropped.Load(),
	}
}
