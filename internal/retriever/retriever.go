// Package retriever ranks documents with a hybrid of semantic similarity,
// keyword overlap and recency decay, then diversifies the top results.
package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marulab/recall/internal/embedding"
	"github.com/marulab/recall/internal/index"
	"github.com/marulab/recall/pkg/models"
	"github.com/marulab/recall/pkg/vecmath"
)

// Config tunes the hybrid scoring pipeline.
type Config struct {
	// DecayDays is the recency half-life constant: time score is
	// exp(-ageDays / DecayDays).
	DecayDays float64 `json:"decay_days" yaml:"decay_days"`
	// KeywordOnlyThreshold is the minimum keyword score for a document
	// outside the vector candidate set to be rescued into the results.
	KeywordOnlyThreshold float64 `json:"keyword_only_threshold" yaml:"keyword_only_threshold"`
	// DedupThreshold is the pairwise cosine similarity above which two
	// results are considered near-duplicates.
	DedupThreshold float64 `json:"dedup_threshold" yaml:"dedup_threshold"`
	// Profiles overrides the built-in per-query-type weight triples.
	Profiles map[models.QueryType]Weights `json:"profiles,omitempty" yaml:"profiles,omitempty"`
}

// DefaultConfig returns the standard pipeline tuning.
func DefaultConfig() Config {
	return Config{
		DecayDays:            30,
		KeywordOnlyThreshold: 0.15,
		DedupThreshold:       0.95,
	}
}

// Retriever combines vector search, TF-IDF keyword scoring and recency
// decay over one index. It holds no mutable state of its own beyond
// metrics; all document state lives in the index.
type Retriever struct {
	ix       *index.Index
	provider embedding.Provider
	cfg      Config
	metrics  Metrics
	now      func() time.Time
}

// New builds a retriever over the given index and embedding provider.
func New(ix *index.Index, provider embedding.Provider, cfg Config) *Retriever {
	if cfg.DecayDays <= 0 {
		cfg.DecayDays = 30
	}
	if cfg.KeywordOnlyThreshold <= 0 {
		cfg.KeywordOnlyThreshold = 0.15
	}
	if cfg.DedupThreshold <= 0 {
		cfg.DedupThreshold = 0.95
	}
	return &Retriever{
		ix:       ix,
		provider: provider,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Metrics exposes the retrieval counters.
func (r *Retriever) Metrics() MetricsSnapshot {
	return r.metrics.Snapshot()
}

// scored carries a candidate through the pipeline before ranks are assigned.
type scored struct {
	doc    *models.Document
	result models.SearchResult
}

// Search runs the hybrid pipeline: one embedding call, over-fetched vector
// search, a TF-IDF pass, recency decay, weighted combination, a keyword-only
// rescue union, MMR diversification and near-duplicate suppression. Results
// come back ordered with 1-based ranks. An embedding failure propagates; an
// empty corpus returns an empty slice.
func (r *Retriever) Search(ctx context.Context, query models.SearchQuery) ([]models.SearchResult, error) {
	query.Normalize()
	r.metrics.searches.Add(1)

	queryVec, err := r.provider.Embed(ctx, query.Text)
	if err != nil {
		r.metrics.embedFailures.Add(1)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if r.ix.Len() == 0 {
		return nil, nil
	}

	weights := r.profileFor(query.QueryType)
	typeFilter := query.TypeFilter()
	now := r.now()

	// Over-fetch with a relaxed cutoff; hybrid scoring may rescue matches
	// whose semantic score alone falls below min_relevance.
	matches := r.ix.Search(queryVec, query.MaxResults*3, typeFilter, query.MetadataFilters, query.MinRelevance*0.7)

	type kwHit struct {
		score   float64
		matched []string
	}
	kwByID := make(map[int64]kwHit)
	for _, ks := range r.ix.KeywordSearch(query.Text) {
		kwByID[ks.ID] = kwHit{score: ks.Score, matched: ks.Matched}
	}

	candidates := make([]scored, 0, len(matches))
	seen := make(map[int64]bool, len(matches))

	for _, m := range matches {
		kw := kwByID[m.Doc.VectorID]
		timeScore := math.Exp(-m.Doc.AgeDays(now) / r.cfg.DecayDays)
		final := m.Score*weights.Semantic +
			kw.score*weights.Keyword +
			timeScore*weights.Time*query.TimeWeight

		seen[m.Doc.VectorID] = true
		candidates = append(candidates, scored{
			doc: m.Doc,
			result: models.SearchResult{
				DocID:           m.Doc.DocID,
				VectorID:        m.Doc.VectorID,
				RelevanceScore:  m.Score,
				KeywordScore:    kw.score,
				TimeScore:       timeScore,
				FinalScore:      final,
				RetrievalReason: models.ReasonHybrid,
				MatchedKeywords: kw.matched,
			},
		})
	}

	// Rescue strong keyword matches that the vector candidate set missed.
	if weights.Keyword > 0 {
		for id, kw := range kwByID {
			if seen[id] || kw.score < r.cfg.KeywordOnlyThreshold {
				continue
			}
			doc, ok := r.ix.Document(id)
			if !ok {
				continue
			}
			if typeFilter != nil && !typeFilter[doc.Type] {
				continue
			}
			if len(query.MetadataFilters) > 0 && !doc.MatchesMetadata(query.MetadataFilters) {
				continue
			}

			timeScore := math.Exp(-doc.AgeDays(now) / r.cfg.DecayDays)
			final := kw.score*weights.Keyword + timeScore*weights.Time*query.TimeWeight
			r.metrics.keywordRescues.Add(1)
			candidates = append(candidates, scored{
				doc: doc,
				result: models.SearchResult{
					DocID:           doc.DocID,
					VectorID:        doc.VectorID,
					KeywordScore:    kw.score,
					TimeScore:       timeScore,
					FinalScore:      final,
					RetrievalReason: models.ReasonKeywordOnly,
					MatchedKeywords: kw.matched,
				},
			})
		}
	}

	// Final-score cutoff, then a deterministic descending sort.
	filtered := candidates[:0]
	for _, c := range candidates {
		if c.result.FinalScore >= query.MinRelevance {
			filtered = append(filtered, c)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].result.FinalScore != filtered[j].result.FinalScore {
			return filtered[i].result.FinalScore > filtered[j].result.FinalScore
		}
		return filtered[i].result.DocID < filtered[j].result.DocID
	})

	if query.DiversityWeight > 0 {
		filtered = r.diversify(filtered, query.DiversityWeight, query.MaxResults)
	} else if len(filtered) > query.MaxResults {
		filtered = filtered[:query.MaxResults]
	}

	if query.Deduplicate {
		filtered = r.dedupe(filtered)
	}

	results := make([]models.SearchResult, len(filtered))
	for i, c := range filtered {
		c.result.Rank = i + 1
		results[i] = c.result
	}
	r.metrics.hybridResults.Add(int64(len(results)))

	log.Debug().
		Str("queryType", string(query.QueryType)).
		Int("vectorCandidates", len(matches)).
		Int("results", len(results)).
		Msg("Hybrid search completed")
	return results, nil
}

// diversify applies MMR over the sorted candidates.
func (r *Retriever) diversify(cands []scored, lambda float64, k int) []scored {
	if len(cands) <= 1 {
		return cands
	}
	scores := make([]float64, len(cands))
	vectors := make([][]float32, len(cands))
	for i, c := range cands {
		scores[i] = c.result.FinalScore
		vectors[i] = c.doc.Embedding
	}
	picked := mmrSelect(scores, vectors, lambda, k)
	out := make([]scored, 0, len(picked))
	for _, i := range picked {
		out = append(out, cands[i])
	}
	return out
}

// dedupe keeps the higher-scoring member of any pair with cosine similarity
// above the threshold. A later candidate that outscores its kept duplicate
// replaces it in place, preserving the surviving order otherwise.
func (r *Retriever) dedupe(cands []scored) []scored {
	kept := make([]scored, 0, len(cands))
	for _, c := range cands {
		dup := false
		for i, k := range kept {
			if vecmath.CosineSimilarity(c.doc.Embedding, k.doc.Embedding) > r.cfg.DedupThreshold {
				dup = true
				if c.result.FinalScore > k.result.FinalScore {
					kept[i] = c
				}
				break
			}
		}
		if dup {
			r.metrics.dedupDropped.Add(1)
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
