package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type DocumentSuite struct {
	suite.Suite
}

func TestDocumentSuite(t *testing.T) {
	suite.Run(t, new(DocumentSuite))
}

func (s *DocumentSuite) TestDocumentType_Valid() {
	tests := []struct {
		name  string
		typ   DocumentType
		valid bool
	}{
		{name: "strategy", typ: DocTypeStrategy, valid: true},
		{name: "technical", typ: DocTypeTechnical, valid: true},
		{name: "news", typ: DocTypeNews, valid: true},
		{name: "price", typ: DocTypePrice, valid: true},
		{name: "general", typ: DocTypeGeneral, valid: true},
		{name: "empty", typ: DocumentType(""), valid: false},
		{name: "unknown", typ: DocumentType("blog"), valid: false},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			assert.Equal(s.T(), tt.valid, tt.typ.Valid())
		})
	}
}

func (s *DocumentSuite) TestNewDocument_AssignsIDAndTimestamps() {
	doc := NewDocument("", "hello", []float32{1, 0}, DocTypeGeneral, nil)

	s.NotEmpty(doc.DocID)
	s.Equal(int64(-1), doc.VectorID)
	s.False(doc.CreatedAt.IsZero())
	s.Equal(doc.CreatedAt, doc.UpdatedAt)
}

func (s *DocumentSuite) TestNewDocument_KeepsExplicitID() {
	doc := NewDocument("doc-1", "hello", nil, DocTypeNews, nil)
	s.Equal("doc-1", doc.DocID)
}

func (s *DocumentSuite) TestValidate() {
	tests := []struct {
		name    string
		doc     *Document
		dim     int
		wantErr bool
	}{
		{
			name:    "valid",
			doc:     NewDocument("a", "x", []float32{1, 2, 3}, DocTypeNews, nil),
			dim:     3,
			wantErr: false,
		},
		{
			name:    "dimension mismatch",
			doc:     NewDocument("a", "x", []float32{1, 2}, DocTypeNews, nil),
			dim:     3,
			wantErr: true,
		},
		{
			name:    "bad type",
			doc:     NewDocument("a", "x", []float32{1, 2, 3}, DocumentType("wat"), nil),
			dim:     3,
			wantErr: true,
		},
		{
			name: "empty doc id",
			doc: &Document{
				Content:   "x",
				Embedding: []float32{1, 2, 3},
				Type:      DocTypeNews,
			},
			dim:     3,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := tt.doc.Validate(tt.dim)
			if tt.wantErr {
				assert.ErrorIs(s.T(), err, ErrInvalidDocument)
			} else {
				assert.NoError(s.T(), err)
			}
		})
	}
}

func (s *DocumentSuite) TestMatchesMetadata_FailOpen() {
	doc := NewDocument("a", "x", nil, DocTypeNews, map[string]string{"ticker": "005930", "market": "kospi"})

	s.True(doc.MatchesMetadata(nil))
	s.True(doc.MatchesMetadata(map[string]string{"ticker": "005930"}))
	s.False(doc.MatchesMetadata(map[string]string{"ticker": "000660"}))
	// Key the document does not carry never matches, never errors.
	s.False(doc.MatchesMetadata(map[string]string{"sector": "semis"}))
}

func (s *DocumentSuite) TestAgeDays() {
	doc := NewDocument("a", "x", nil, DocTypeNews, nil)
	doc.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)

	s.InDelta(2.0, doc.AgeDays(time.Now().UTC()), 0.01)

	// Future timestamps clamp to zero age.
	doc.CreatedAt = time.Now().UTC().Add(time.Hour)
	s.Equal(0.0, doc.AgeDays(time.Now().UTC()))
}
