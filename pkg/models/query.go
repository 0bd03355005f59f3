package models

// QueryType selects a weight profile for hybrid scoring.
type QueryType string

const (
	QueryGeneral   QueryType = "general"
	QueryTechnical QueryType = "technical"
	QueryNews      QueryType = "news"
	QueryStrategy  QueryType = "strategy"
)

// Valid reports whether q names a known weight profile.
func (q QueryType) Valid() bool {
	switch q {
	case QueryGeneral, QueryTechnical, QueryNews, QueryStrategy:
		return true
	}
	return false
}

// RetrievalReason records which signal surfaced a result.
type RetrievalReason string

const (
	// ReasonHybrid marks results found by the vector candidate set and
	// scored with the combined signal.
	ReasonHybrid RetrievalReason = "hybrid"
	// ReasonKeywordOnly marks results absent from the vector candidates but
	// rescued by a strong keyword match.
	ReasonKeywordOnly RetrievalReason = "keyword_only"
)

// SearchQuery describes one retrieval request.
type SearchQuery struct {
	Text            string            `json:"text"`
	QueryType       QueryType         `json:"query_type,omitempty"`
	MaxResults      int               `json:"max_results,omitempty"`
	MinRelevance    float64           `json:"min_relevance,omitempty"`
	TimeWeight      float64           `json:"time_weight,omitempty"`
	DiversityWeight float64           `json:"diversity_weight,omitempty"` // MMR lambda; 0 disables
	DocumentTypes   []DocumentType    `json:"document_types,omitempty"`
	MetadataFilters map[string]string `json:"metadata_filters,omitempty"`
	Deduplicate     bool              `json:"deduplicate,omitempty"`
}

// Normalize fills defaults in place and clamps out-of-range values.
func (q *SearchQuery) Normalize() {
	if !q.QueryType.Valid() {
		q.QueryType = QueryGeneral
	}
	if q.MaxResults <= 0 {
		q.MaxResults = 10
	}
	if q.MaxResults > 100 {
		q.MaxResults = 100
	}
	if q.MinRelevance < 0 {
		q.MinRelevance = 0
	}
	if q.DiversityWeight < 0 {
		q.DiversityWeight = 0
	}
	if q.DiversityWeight > 1 {
		q.DiversityWeight = 1
	}
	if q.TimeWeight < 0 {
		q.TimeWeight = 0
	}
}

// TypeFilter returns the allowed type set, or nil when unrestricted.
func (q *SearchQuery) TypeFilter() map[DocumentType]bool {
	if len(q.DocumentTypes) == 0 {
		return nil
	}
	set := make(map[DocumentType]bool, len(q.DocumentTypes))
	for _, t := range q.DocumentTypes {
		set[t] = true
	}
	return set
}

// SearchResult references a stored document by ID together with its scores.
// The document itself stays owned by the store; results never embed a copy.
type SearchResult struct {
	DocID           string          `json:"doc_id"`
	VectorID        int64           `json:"vector_id"`
	RelevanceScore  float64         `json:"relevance_score"` // semantic similarity
	KeywordScore    float64         `json:"keyword_score"`
	TimeScore       float64         `json:"time_score"`
	FinalScore      float64         `json:"final_score"`
	Rank            int             `json:"rank"` // 1-based
	RetrievalReason RetrievalReason `json:"retrieval_reason"`
	MatchedKeywords []string        `json:"matched_keywords,omitempty"`
}
