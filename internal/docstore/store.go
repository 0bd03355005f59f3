// Package docstore owns the live document records and the doc_id ↔ vector_id
// mappings. It is the single source of truth the retriever resolves result
// references against; no other component keeps document copies.
package docstore

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/marulab/recall/pkg/models"
)

var (
	// ErrDuplicateDoc is returned when adding a doc_id that already exists.
	ErrDuplicateDoc = errors.New("document already exists")
	// ErrNotFound is returned when a doc_id or vector slot is unknown.
	ErrNotFound = errors.New("document not found")
)

// Store is the in-memory document arena. vector_id slots are assigned
// monotonically and never reused after a logical delete; only Compact (the
// rebuild path) reassigns them.
type Store struct {
	mu       sync.RWMutex
	docs     map[string]*models.Document
	byVector map[int64]string
	byType   map[models.DocumentType]map[string]struct{}
	nextSlot int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		docs:     make(map[string]*models.Document),
		byVector: make(map[int64]string),
		byType:   make(map[models.DocumentType]map[string]struct{}),
	}
}

// Put inserts the document, assigns its vector slot and returns it.
// Existing doc_ids are rejected, not overwritten.
func (s *Store) Put(doc *models.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.DocID]; exists {
		return 0, ErrDuplicateDoc
	}

	slot := s.nextSlot
	s.nextSlot++

	doc.VectorID = slot
	s.docs[doc.DocID] = doc
	s.byVector[slot] = doc.DocID
	typeSet, ok := s.byType[doc.Type]
	if !ok {
		typeSet = make(map[string]struct{})
		s.byType[doc.Type] = typeSet
	}
	typeSet[doc.DocID] = struct{}{}

	return slot, nil
}

// Restore inserts a document that already carries a vector slot (load and
// rebuild paths). The slot counter advances past the restored slot.
func (s *Store) Restore(doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.DocID]; exists {
		return ErrDuplicateDoc
	}
	if _, taken := s.byVector[doc.VectorID]; taken {
		return errors.New("vector slot already occupied")
	}

	s.docs[doc.DocID] = doc
	s.byVector[doc.VectorID] = doc.DocID
	typeSet, ok := s.byType[doc.Type]
	if !ok {
		typeSet = make(map[string]struct{})
		s.byType[doc.Type] = typeSet
	}
	typeSet[doc.DocID] = struct{}{}
	if doc.VectorID >= s.nextSlot {
		s.nextSlot = doc.VectorID + 1
	}
	return nil
}

// Get returns the document for doc_id.
func (s *Store) Get(docID string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

// GetByVector resolves a vector slot to its live document.
func (s *Store) GetByVector(slot int64) (*models.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docID, ok := s.byVector[slot]
	if !ok {
		return nil, false
	}
	doc, ok := s.docs[docID]
	return doc, ok
}

// Update replaces content and metadata in place. The vector slot is
// immutable for a live document.
func (s *Store) Update(docID, content string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		return ErrNotFound
	}
	if content != "" {
		doc.Content = content
	}
	if metadata != nil {
		doc.Metadata = metadata
	}
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes the document from the id maps and type index. The vector
// slot is tombstoned, never reassigned until Compact.
func (s *Store) Delete(docID string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.docs, docID)
	delete(s.byVector, doc.VectorID)
	if typeSet, ok := s.byType[doc.Type]; ok {
		delete(typeSet, docID)
		if len(typeSet) == 0 {
			delete(s.byType, doc.Type)
		}
	}
	return doc, nil
}

// Len returns the number of live documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// All returns the live documents ordered by vector slot.
func (s *Store) All() []*models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]*models.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].VectorID < docs[j].VectorID })
	return docs
}

// CountByType returns live document counts per type.
func (s *Store) CountByType() map[models.DocumentType]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.DocumentType]int, len(s.byType))
	for t, set := range s.byType {
		counts[t] = len(set)
	}
	return counts
}

// Compact reassigns dense vector slots to the live documents and returns
// them in their new slot order. Only the rebuild path calls this.
func (s *Store) Compact() []*models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]*models.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].VectorID < docs[j].VectorID })

	s.byVector = make(map[int64]string, len(docs))
	for i, doc := range docs {
		doc.VectorID = int64(i)
		s.byVector[int64(i)] = doc.DocID
	}
	s.nextSlot = int64(len(docs))
	return docs
}
