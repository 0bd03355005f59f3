package keyword

import (
	"math"
	"sort"
	"sync"
)

// DocScore pairs a vector slot with its normalized keyword score and the
// query terms that matched.
type DocScore struct {
	ID      int64
	Score   float64 // in [0, 1)
	Matched []string
}

// Index is an incremental in-memory inverted index with TF-IDF scoring.
// Safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	postings map[string]map[int64]int // term -> vector id -> term frequency
	docTerms map[int64]map[string]int // vector id -> term -> frequency
}

// NewIndex creates an empty inverted index.
func NewIndex() *Index {
	return &Index{
		postings: make(map[string]map[int64]int),
		docTerms: make(map[int64]map[string]int),
	}
}

// Add indexes the text under the given vector slot, replacing any previous
// entry for the same slot.
func (ix *Index) Add(id int64, text string) {
	freqs := TermFrequencies(text)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(id)
	ix.docTerms[id] = freqs
	for term, tf := range freqs {
		posting, ok := ix.postings[term]
		if !ok {
			posting = make(map[int64]int)
			ix.postings[term] = posting
		}
		posting[id] = tf
	}
}

// Remove drops the entry for the given vector slot. Unknown slots are a
// no-op.
func (ix *Index) Remove(id int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(id)
}

func (ix *Index) removeLocked(id int64) {
	terms, ok := ix.docTerms[id]
	if !ok {
		return
	}
	for term := range terms {
		delete(ix.postings[term], id)
		if len(ix.postings[term]) == 0 {
			delete(ix.postings, term)
		}
	}
	delete(ix.docTerms, id)
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docTerms)
}

// Reset drops all postings.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.postings = make(map[string]map[int64]int)
	ix.docTerms = make(map[int64]map[string]int)
}

// Search scores every indexed document against the query text and returns
// the non-zero matches sorted by score descending. Scores are TF-IDF,
// length-normalized and squashed into [0, 1).
func (ix *Index) Search(query string) []DocScore {
	queryTerms := Tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}
	// Deduplicate query terms, preserving order for Matched.
	seen := make(map[string]bool, len(queryTerms))
	terms := queryTerms[:0]
	for _, t := range queryTerms {
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := float64(len(ix.docTerms))
	if n == 0 {
		return nil
	}

	raw := make(map[int64]float64)
	matched := make(map[int64][]string)
	for _, term := range terms {
		posting, ok := ix.postings[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + n/(1+float64(len(posting))))
		for id, tf := range posting {
			raw[id] += (1 + math.Log(float64(tf))) * idf
			matched[id] = append(matched[id], term)
		}
	}

	results := make([]DocScore, 0, len(raw))
	for id, score := range raw {
		// Length normalization keeps long documents from dominating.
		norm := 1 + math.Log(1+float64(len(ix.docTerms[id])))
		score /= norm
		// Same squash the fused ranker uses: |x| / (1 + |x|).
		results = append(results, DocScore{
			ID:      id,
			Score:   score / (1 + score),
			Matched: matched[id],
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results
}
