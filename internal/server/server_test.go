package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/marulab/recall/internal/contextbuild"
	"github.com/marulab/recall/internal/embedding"
	"github.com/marulab/recall/internal/index"
	"github.com/marulab/recall/internal/retriever"
	"github.com/marulab/recall/pkg/models"
	"github.com/marulab/recall/pkg/vecmath"
)

// fixedProvider returns canned vectors keyed by text.
type fixedProvider struct {
	dim     int
	vectors map[string][]float32
	err     error
}

func (p *fixedProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	if v, ok := p.vectors[text]; ok {
		return v, nil
	}
	return make([]float32, p.dim), nil
}

func (p *fixedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *fixedProvider) Dimension() int { return p.dim }

type ServerSuite struct {
	suite.Suite
	ctx      context.Context
	ix       *index.Index
	provider *fixedProvider
	svc      *Service
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.ctx = context.Background()
	ix, err := index.New(index.DefaultConfig(4), "")
	s.Require().NoError(err)
	s.ix = ix
	s.provider = &fixedProvider{dim: 4, vectors: map[string][]float32{}}

	r := retriever.New(ix, s.provider, retriever.DefaultConfig())
	a := contextbuild.New(ix, contextbuild.NewEstimateCounter())
	b := embedding.NewBatcher(s.provider, 8, 2)
	s.svc = New(ix, r, a, b, 500, 0.25, models.CompressionNone)
}

func (s *ServerSuite) addDoc(id, content string, vec []float32, docType models.DocumentType) {
	doc := models.NewDocument(id, content, vec, docType, nil)
	_, err := s.ix.Add(s.ctx, []*models.Document{doc})
	s.Require().NoError(err)
}

func (s *ServerSuite) request(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.svc.Router().ServeHTTP(rec, req)
	return rec
}

func (s *ServerSuite) TestHealth() {
	rec := s.request(http.MethodGet, "/healthz", nil)
	s.Equal(http.StatusOK, rec.Code)

	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("ok", body["status"])
}

func (s *ServerSuite) TestSearchReturnsRankedResults() {
	vec := vecmath.Normalize([]float32{1, 0, 0, 0})
	s.addDoc("a", "trading desk summary", vec, models.DocTypeGeneral)
	s.provider.vectors["trading"] = vec

	rec := s.request(http.MethodPost, "/api/search", models.SearchQuery{Text: "trading"})
	s.Equal(http.StatusOK, rec.Code)

	var body struct {
		Results []models.SearchResult `json:"results"`
		Count   int                   `json:"count"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(1, body.Count)
	s.Equal("a", body.Results[0].DocID)
	s.Equal(1, body.Results[0].Rank)
}

func (s *ServerSuite) TestSearchRequiresText() {
	rec := s.request(http.MethodPost, "/api/search", models.SearchQuery{})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestSearchRejectsMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	s.svc.Router().ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestSearchProviderFailure() {
	s.addDoc("a", "content", vecmath.Normalize([]float32{1, 0, 0, 0}), models.DocTypeGeneral)
	s.provider.err = embedding.ErrProviderUnavailable

	rec := s.request(http.MethodPost, "/api/search", models.SearchQuery{Text: "anything"})
	s.Equal(http.StatusBadGateway, rec.Code)
}

func (s *ServerSuite) TestContextAssembly() {
	vec := vecmath.Normalize([]float32{1, 0, 0, 0})
	s.addDoc("a", "portfolio risk limits for the desk", vec, models.DocTypeStrategy)
	s.provider.vectors["risk"] = vec

	rec := s.request(http.MethodPost, "/api/context", map[string]any{
		"text":         "risk",
		"token_budget": 300,
	})
	s.Equal(http.StatusOK, rec.Code)

	var built models.BuiltContext
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &built))
	s.Contains(built.Text, "portfolio risk limits")
	s.Contains(built.DocIDs, "a")
	s.LessOrEqual(built.TotalTokens, 300)
}

func (s *ServerSuite) TestContextModelWindowScalesBudget() {
	vec := vecmath.Normalize([]float32{1, 0, 0, 0})
	line := "alpha beta gamma delta epsilon zeta eta theta iota kappa\n"
	s.addDoc("a", strings.TrimSpace(strings.Repeat(line, 30)), vec, models.DocTypeStrategy)
	s.provider.vectors["alpha"] = vec

	// 600-token window at ratio 0.25 gives a 150-token budget, which cannot
	// hold the whole document once the reserve is set aside.
	rec := s.request(http.MethodPost, "/api/context", map[string]any{
		"text":         "alpha",
		"model_window": 600,
	})
	s.Equal(http.StatusOK, rec.Code)

	var built models.BuiltContext
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &built))
	s.True(built.Truncated)
	s.LessOrEqual(built.TotalTokens, 100)

	// Without a window the 500-token service default applies and the
	// document fits whole.
	rec = s.request(http.MethodPost, "/api/context", map[string]any{"text": "alpha"})
	s.Equal(http.StatusOK, rec.Code)
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &built))
	s.False(built.Truncated)

	// An explicit budget wins over the window.
	rec = s.request(http.MethodPost, "/api/context", map[string]any{
		"text":         "alpha",
		"model_window": 600,
		"token_budget": 450,
	})
	s.Equal(http.StatusOK, rec.Code)
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &built))
	s.False(built.Truncated)
}

func (s *ServerSuite) TestContextRejectsUnknownCompression() {
	rec := s.request(http.MethodPost, "/api/context", map[string]any{
		"text":        "anything",
		"compression": "shrink",
	})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestIngestAndDelete() {
	s.provider.vectors["first note"] = vecmath.Normalize([]float32{1, 0, 0, 0})
	s.provider.vectors["second note"] = vecmath.Normalize([]float32{0, 1, 0, 0})

	rec := s.request(http.MethodPost, "/api/documents", map[string]any{
		"documents": []map[string]any{
			{"doc_id": "a", "content": "first note", "document_type": "news"},
			{"doc_id": "b", "content": "second note", "document_type": "general"},
		},
	})
	s.Require().Equal(http.StatusCreated, rec.Code)

	var body struct {
		DocIDs    []string `json:"doc_ids"`
		VectorIDs []int64  `json:"vector_ids"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal([]string{"a", "b"}, body.DocIDs)
	s.Equal([]int64{0, 1}, body.VectorIDs)
	s.Equal(2, s.ix.Len())

	// duplicate ingest conflicts
	rec = s.request(http.MethodPost, "/api/documents", map[string]any{
		"documents": []map[string]any{
			{"doc_id": "a", "content": "first note", "document_type": "news"},
		},
	})
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.request(http.MethodDelete, "/api/documents/a", nil)
	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal(1, s.ix.Len())

	rec = s.request(http.MethodDelete, "/api/documents/a", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerSuite) TestUpdateDocument() {
	vec := vecmath.Normalize([]float32{1, 0, 0, 0})
	s.addDoc("a", "original text", vec, models.DocTypeGeneral)

	rec := s.request(http.MethodPatch, "/api/documents/a", map[string]any{
		"content":  "revised text",
		"metadata": map[string]string{"rev": "2"},
	})
	s.Equal(http.StatusNoContent, rec.Code)

	doc, err := s.ix.Get("a")
	s.Require().NoError(err)
	s.Equal("revised text", doc.Content)
	s.Equal("2", doc.Metadata["rev"])

	rec = s.request(http.MethodPatch, "/api/documents/missing", map[string]any{"content": "x"})
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerSuite) TestRebuildEndpoint() {
	vec := vecmath.Normalize([]float32{1, 0, 0, 0})
	s.addDoc("a", "keep", vec, models.DocTypeGeneral)
	s.addDoc("b", "drop", vecmath.Normalize([]float32{0, 1, 0, 0}), models.DocTypeGeneral)
	s.Require().NoError(s.ix.Delete("b"))

	rec := s.request(http.MethodPost, "/api/rebuild", nil)
	s.Equal(http.StatusOK, rec.Code)

	var stats index.Stats
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &stats))
	s.Equal(1, stats.Documents)
	s.Zero(stats.Stale)
}

func (s *ServerSuite) TestStats() {
	s.addDoc("a", "content", vecmath.Normalize([]float32{1, 0, 0, 0}), models.DocTypeNews)

	rec := s.request(http.MethodGet, "/api/stats", nil)
	s.Equal(http.StatusOK, rec.Code)

	var body struct {
		Index index.Stats `json:"index"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(1, body.Index.Documents)
	s.Equal(index.TypeFlat, body.Index.IndexType)
}
