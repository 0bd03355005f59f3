package models

// ChunkType distinguishes the two chunk kinds a result can produce.
type ChunkType string

const (
	ChunkContent  ChunkType = "content"
	ChunkMetadata ChunkType = "metadata"
)

// CompressionLevel selects how aggressively chunk text is reduced before
// budget selection.
type CompressionLevel string

const (
	CompressionNone         CompressionLevel = "none"
	CompressionSummary      CompressionLevel = "summary"
	CompressionBulletPoints CompressionLevel = "bullet_points"
	CompressionKeyFacts     CompressionLevel = "key_facts"
)

// Valid reports whether c is a known compression level.
func (c CompressionLevel) Valid() bool {
	switch c {
	case CompressionNone, CompressionSummary, CompressionBulletPoints, CompressionKeyFacts:
		return true
	}
	return false
}

// Coarser returns the next more aggressive compression level. key_facts is
// the coarsest and returns itself.
func (c CompressionLevel) Coarser() CompressionLevel {
	switch c {
	case CompressionNone:
		return CompressionSummary
	case CompressionSummary:
		return CompressionBulletPoints
	default:
		return CompressionKeyFacts
	}
}

// ContextChunk is a token-bounded unit of formatted text derived from one
// search result. Priority 1 is highest.
type ContextChunk struct {
	Text       string    `json:"text"`
	DocID      string    `json:"doc_id"`
	TokenCount int       `json:"token_count"`
	Type       ChunkType `json:"chunk_type"`
	Priority   int       `json:"priority"`
	Relevance  float64   `json:"relevance"`
}

// BuiltContext is the assembled, budgeted context handed to a downstream
// consumer.
type BuiltContext struct {
	Text        string           `json:"text"`
	TotalTokens int              `json:"total_tokens"`
	DocIDs      []string         `json:"doc_ids"`
	Truncated   bool             `json:"truncated"`
	Compression CompressionLevel `json:"compression"`
}
