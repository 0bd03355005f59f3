// Package models contains the domain models shared across the recall engine.
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DocumentType classifies a stored document. The set is closed; unknown
// values are rejected at ingestion time.
type DocumentType string

const (
	DocTypeStrategy  DocumentType = "strategy"
	DocTypeTechnical DocumentType = "technical"
	DocTypeNews      DocumentType = "news"
	DocTypePrice     DocumentType = "price"
	DocTypeGeneral   DocumentType = "general"
)

// Valid reports whether t is a member of the closed document type set.
func (t DocumentType) Valid() bool {
	switch t {
	case DocTypeStrategy, DocTypeTechnical, DocTypeNews, DocTypePrice, DocTypeGeneral:
		return true
	}
	return false
}

// DocumentTypes returns all valid document types in priority order
// (strategy first).
func DocumentTypes() []DocumentType {
	return []DocumentType{DocTypeStrategy, DocTypeTechnical, DocTypeNews, DocTypePrice, DocTypeGeneral}
}

// ErrInvalidDocument is returned when a document fails validation at add time.
var ErrInvalidDocument = errors.New("invalid document")

// Document is a stored, embedded text unit. DocID is the stable external
// key; VectorID is the internal dense slot assigned on insert and stable
// until the next physical rebuild.
type Document struct {
	DocID     string            `json:"doc_id"`
	VectorID  int64             `json:"vector_id"`
	Content   string            `json:"content"`
	Embedding []float32         `json:"embedding,omitempty"`
	Type      DocumentType      `json:"document_type"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewDocument creates a document with timestamps set to now. An empty docID
// gets a generated UUID.
func NewDocument(docID, content string, embedding []float32, docType DocumentType, metadata map[string]string) *Document {
	if docID == "" {
		docID = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Document{
		DocID:     docID,
		VectorID:  -1,
		Content:   content,
		Embedding: embedding,
		Type:      docType,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the fields required for insertion into an index of the
// given dimension.
func (d *Document) Validate(dimension int) error {
	if d.DocID == "" {
		return errors.Join(ErrInvalidDocument, errors.New("empty doc_id"))
	}
	if !d.Type.Valid() {
		return errors.Join(ErrInvalidDocument, errors.New("unknown document_type "+string(d.Type)))
	}
	if len(d.Embedding) != dimension {
		return errors.Join(ErrInvalidDocument, errors.New("embedding dimension mismatch"))
	}
	return nil
}

// MatchesMetadata reports whether every filter key/value pair is present in
// the document metadata. Missing or mismatched keys fail open: the document
// is simply excluded, never an error.
func (d *Document) MatchesMetadata(filters map[string]string) bool {
	for k, want := range filters {
		if got, ok := d.Metadata[k]; !ok || got != want {
			return false
		}
	}
	return true
}

// AgeDays returns the document age in fractional days, relative to now.
func (d *Document) AgeDays(now time.Time) float64 {
	age := now.Sub(d.CreatedAt)
	if age < 0 {
		return 0
	}
	return age.Hours() / 24
}
