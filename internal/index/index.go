package index

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/marulab/recall/internal/docstore"
	"github.com/marulab/recall/internal/keyword"
	"github.com/marulab/recall/pkg/models"
	"github.com/marulab/recall/pkg/vecmath"
)

// overfetchFactor compensates for post-filtering loss: the ANN structure is
// asked for k × overfetchFactor candidates before type/metadata/min-score
// filters run.
const overfetchFactor = 3

var (
	// ErrDuplicateDoc mirrors the docstore sentinel at the index surface.
	ErrDuplicateDoc = docstore.ErrDuplicateDoc
	// ErrNotFound mirrors the docstore sentinel at the index surface.
	ErrNotFound = docstore.ErrNotFound
	// ErrIndexFull is returned when an add would exceed max_vectors.
	ErrIndexFull = errors.New("index at max_vectors capacity")
)

// Match pairs a live document reference with its similarity score.
type Match struct {
	Doc   *models.Document
	Score float64
}

// Stats is a point-in-time snapshot of index state.
type Stats struct {
	Documents int                         `json:"documents"`
	ByType    map[models.DocumentType]int `json:"by_type"`
	IndexType Type                        `json:"index_type"`
	Metric    Metric                      `json:"metric"`
	Dimension int                         `json:"dimension"`
	Trained   bool                        `json:"trained"`
	Pending   int                         `json:"pending_vectors"`
	Stale     int                         `json:"stale_vectors"`
}

// Index is the vector index: document arena, ANN backend and keyword
// postings under one reader/writer lock. Searches take the read lock;
// structural mutations (add, update, delete, rebuild, train) take the
// write lock.
type Index struct {
	mu       sync.RWMutex
	cfg      Config
	docs     *docstore.Store
	keywords *keyword.Index
	backend  backend
	dir      string
}

// New creates an empty index with the given config. dir is the snapshot
// directory used by Save/Load; it may be empty for a purely in-memory index.
func New(cfg Config, dir string) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("index config: %w", err)
	}
	return &Index{
		cfg:      cfg,
		docs:     docstore.New(),
		keywords: keyword.NewIndex(),
		backend:  newBackend(cfg),
		dir:      dir,
	}, nil
}

// Config returns a copy of the index configuration.
func (ix *Index) Config() Config {
	return ix.cfg
}

// Add inserts documents and returns their assigned vector slots, in input
// order. A duplicate doc_id rejects that document (the batch stops at the
// first failure; earlier documents stay inserted). Vectors are normalized
// for the cosine metric. Crossing the train threshold triggers the one-time
// training pass for backends that need it.
func (ix *Index) Add(ctx context.Context, docs []*models.Document) ([]int64, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	slots := make([]int64, 0, len(docs))
	for _, doc := range docs {
		if err := doc.Validate(ix.cfg.Dimension); err != nil {
			return slots, err
		}
		if ix.docs.Len() >= ix.cfg.MaxVectors {
			return slots, ErrIndexFull
		}
		if ix.cfg.Metric == MetricCosine {
			doc.Embedding = vecmath.Normalize(doc.Embedding)
		}

		slot, err := ix.docs.Put(doc)
		if err != nil {
			return slots, fmt.Errorf("add %s: %w", doc.DocID, err)
		}
		ix.backend.add(slot, doc.Embedding)
		ix.keywords.Add(slot, doc.Content)
		slots = append(slots, slot)
	}

	if err := ix.maybeTrainLocked(ctx); err != nil {
		return slots, err
	}
	return slots, nil
}

// maybeTrainLocked runs the one-time training pass when the live document
// count has crossed the threshold. Caller holds the write lock.
func (ix *Index) maybeTrainLocked(ctx context.Context) error {
	if !ix.backend.needsTraining() || ix.backend.trained() {
		return nil
	}
	if ix.docs.Len() < ix.cfg.TrainThreshold {
		return nil
	}

	trainCtx := ctx
	if ix.cfg.TrainTimeout > 0 {
		var cancel context.CancelFunc
		trainCtx, cancel = context.WithTimeout(ctx, ix.cfg.TrainTimeout)
		defer cancel()
	}

	if err := ix.backend.train(trainCtx); err != nil {
		return fmt.Errorf("train index: %w", err)
	}
	log.Info().
		Int("documents", ix.docs.Len()).
		Str("indexType", string(ix.cfg.Type)).
		Msg("Index trained")
	return nil
}

// Search returns up to k live documents ranked by similarity. It over-
// fetches k × 3 ANN candidates, then drops tombstoned slots, applies the
// type and metadata filters and the minScore cutoff. An empty or untrained
// index returns an empty result, never an error.
func (ix *Index) Search(query []float32, k int, typeFilter map[models.DocumentType]bool, metadataFilter map[string]string, minScore float64) []Match {
	if k <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	q := query
	if ix.cfg.Metric == MetricCosine {
		q = vecmath.Normalize(query)
	}

	cands := ix.backend.search(q, k*overfetchFactor)
	matches := make([]Match, 0, k)
	for _, c := range cands {
		doc, ok := ix.docs.GetByVector(c.id)
		if !ok {
			continue // tombstoned slot, physically removed at next rebuild
		}
		if typeFilter != nil && !typeFilter[doc.Type] {
			continue
		}
		if len(metadataFilter) > 0 && !doc.MatchesMetadata(metadataFilter) {
			continue
		}
		if c.score < minScore {
			continue
		}
		matches = append(matches, Match{Doc: doc, Score: c.score})
		if len(matches) >= k {
			break
		}
	}
	return matches
}

// Update replaces content and/or metadata in place. The stored vector and
// slot are unchanged; re-embedding is an upstream concern. Keyword postings
// follow the new content.
func (ix *Index) Update(docID, content string, metadata map[string]string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.docs.Update(docID, content, metadata); err != nil {
		return fmt.Errorf("update %s: %w", docID, err)
	}
	if content != "" {
		doc, err := ix.docs.Get(docID)
		if err != nil {
			return err
		}
		ix.keywords.Add(doc.VectorID, doc.Content)
	}
	return nil
}

// Delete removes the document from the id maps, type index and keyword
// postings. The ANN structure keeps the stale vector until Rebuild; the
// slot is never reused in between.
func (ix *Index) Delete(docID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	doc, err := ix.docs.Delete(docID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", docID, err)
	}
	ix.keywords.Remove(doc.VectorID)
	return nil
}

// Rebuild reconstructs the ANN structure and keyword postings from the
// live document set only. This is the sole path that reclaims space from
// deleted vectors; slots are reassigned densely.
func (ix *Index) Rebuild(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	docs := ix.docs.Compact()
	ix.backend.reset()
	ix.keywords.Reset()

	for _, doc := range docs {
		ix.backend.add(doc.VectorID, doc.Embedding)
		ix.keywords.Add(doc.VectorID, doc.Content)
	}
	if err := ix.maybeTrainLocked(ctx); err != nil {
		return err
	}

	log.Info().Int("documents", len(docs)).Msg("Index rebuilt")
	return nil
}

// Get returns the live document for docID.
func (ix *Index) Get(docID string) (*models.Document, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.docs.Get(docID)
}

// Document resolves a vector slot to its live document.
func (ix *Index) Document(slot int64) (*models.Document, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.docs.GetByVector(slot)
}

// KeywordSearch scores the corpus against the query text via the inverted
// index. Tombstoned slots are already absent from the postings.
func (ix *Index) KeywordSearch(query string) []keyword.DocScore {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.keywords.Search(query)
}

// Len returns the live document count.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.docs.Len()
}

// Stats returns a snapshot of index state.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	live := ix.docs.Len()
	stale := ix.backend.size() - live
	if stale < 0 {
		stale = 0
	}
	return Stats{
		Documents: live,
		ByType:    ix.docs.CountByType(),
		IndexType: ix.cfg.Type,
		Metric:    ix.cfg.Metric,
		Dimension: ix.cfg.Dimension,
		Trained:   ix.backend.trained(),
		Pending:   ix.backend.pending(),
		Stale:     stale,
	}
}
