package db

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/marulab/recall/pkg/models"
)

// DocumentRecord is the persisted form of a document. Embeddings are stored
// as little-endian float32 blobs; metadata as a JSON object.
type DocumentRecord struct {
	DocID          string `gorm:"column:doc_id;primaryKey"`
	VectorID       int64  `gorm:"column:vector_id;uniqueIndex;not null"`
	Content        string `gorm:"column:content"`
	Embedding      []byte `gorm:"column:embedding"`
	DocType        string `gorm:"column:doc_type;index;not null"`
	Metadata       string `gorm:"column:metadata"`
	CreatedAtEpoch int64  `gorm:"column:created_at_epoch;not null"`
	UpdatedAtEpoch int64  `gorm:"column:updated_at_epoch;not null"`
}

// TableName overrides the gorm default pluralization.
func (DocumentRecord) TableName() string { return "documents" }

// NewDocumentRecord converts a domain document into its persisted form.
func NewDocumentRecord(doc *models.Document) (*DocumentRecord, error) {
	meta := "{}"
	if len(doc.Metadata) > 0 {
		raw, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		meta = string(raw)
	}
	return &DocumentRecord{
		DocID:          doc.DocID,
		VectorID:       doc.VectorID,
		Content:        doc.Content,
		Embedding:      EncodeVector(doc.Embedding),
		DocType:        string(doc.Type),
		Metadata:       meta,
		CreatedAtEpoch: doc.CreatedAt.UnixMilli(),
		UpdatedAtEpoch: doc.UpdatedAt.UnixMilli(),
	}, nil
}

// ToDocument converts a persisted record back into a domain document.
func (r *DocumentRecord) ToDocument() (*models.Document, error) {
	var meta map[string]string
	if r.Metadata != "" && r.Metadata != "{}" {
		if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for %s: %w", r.DocID, err)
		}
	}
	embedding, err := DecodeVector(r.Embedding)
	if err != nil {
		return nil, fmt.Errorf("decode embedding for %s: %w", r.DocID, err)
	}
	return &models.Document{
		DocID:     r.DocID,
		VectorID:  r.VectorID,
		Content:   r.Content,
		Embedding: embedding,
		Type:      models.DocumentType(r.DocType),
		Metadata:  meta,
		CreatedAt: time.UnixMilli(r.CreatedAtEpoch).UTC(),
		UpdatedAt: time.UnixMilli(r.UpdatedAtEpoch).UTC(),
	}, nil
}

// EncodeVector packs a float32 vector into a little-endian blob.
func EncodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(x))
	}
	return out
}

// DecodeVector unpacks a little-endian blob into a float32 vector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
