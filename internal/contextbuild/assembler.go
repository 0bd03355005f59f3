// Package contextbuild turns ranked search results into a token-budgeted
// context block for a downstream prompt consumer.
package contextbuild

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/marulab/recall/internal/index"
	"github.com/marulab/recall/pkg/models"
)

// ReservedOverhead is the slice of every budget held back for separators
// and framing the consumer adds around the assembled text.
const ReservedOverhead = 50

const chunkSeparator = "\n\n"

// typePriority orders document types for selection. Priority 1 is highest.
var typePriority = map[models.DocumentType]int{
	models.DocTypeStrategy:  1,
	models.DocTypeTechnical: 2,
	models.DocTypeNews:      3,
	models.DocTypePrice:     4,
	models.DocTypeGeneral:   4,
}

// formatter renders one document into chunk text. One entry per document
// type keeps the dispatch closed.
type formatter func(doc *models.Document, body string) string

var formatters = map[models.DocumentType]formatter{
	models.DocTypeStrategy:  labelledBlock("Strategy"),
	models.DocTypeTechnical: labelledBlock("Technical"),
	models.DocTypeNews:      labelledBlock("News"),
	models.DocTypePrice:     labelledBlock("Price"),
	models.DocTypeGeneral:   labelledBlock("Reference"),
}

func labelledBlock(label string) formatter {
	return func(doc *models.Document, body string) string {
		return fmt.Sprintf("[%s] %s\n%s", label, doc.DocID, body)
	}
}

// Assembler builds bounded context strings from search results, resolving
// each result back to its live document.
type Assembler struct {
	ix      *index.Index
	counter Counter
}

// New builds an assembler over the index. A nil counter falls back to the
// word-count estimate.
func New(ix *index.Index, counter Counter) *Assembler {
	if counter == nil {
		counter = NewEstimateCounter()
	}
	return &Assembler{ix: ix, counter: counter}
}

// Build assembles results into a context string within tokenBudget.
// Compression is applied per chunk before selection. High-priority chunks
// that overflow the remaining budget are truncated line by line; lower
// priority chunks are dropped. The returned total never exceeds the budget.
func (a *Assembler) Build(results []models.SearchResult, tokenBudget int, level models.CompressionLevel) models.BuiltContext {
	if !level.Valid() {
		level = models.CompressionNone
	}
	out := models.BuiltContext{Compression: level}
	if tokenBudget <= 0 || len(results) == 0 {
		out.Truncated = len(results) > 0
		return out
	}

	chunks := a.chunk(results, level)
	available := tokenBudget - ReservedOverhead
	if available <= 0 {
		out.Truncated = len(chunks) > 0
		return out
	}

	// Stable order: priority first, then relevance within a priority band.
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Priority != chunks[j].Priority {
			return chunks[i].Priority < chunks[j].Priority
		}
		return chunks[i].Relevance > chunks[j].Relevance
	})

	var parts []string
	seenDocs := make(map[string]bool)
	used := 0
	for _, c := range chunks {
		if used+c.TokenCount <= available {
			parts = append(parts, c.Text)
			used += c.TokenCount
			if !seenDocs[c.DocID] {
				seenDocs[c.DocID] = true
				out.DocIDs = append(out.DocIDs, c.DocID)
			}
			continue
		}

		if c.Priority <= 2 {
			text, n := a.truncateLines(c.Text, available-used)
			if n > 0 {
				parts = append(parts, text)
				used += n
				if !seenDocs[c.DocID] {
					seenDocs[c.DocID] = true
					out.DocIDs = append(out.DocIDs, c.DocID)
				}
			}
		}
		out.Truncated = true
	}

	out.Text = strings.Join(parts, chunkSeparator)
	out.TotalTokens = used

	log.Debug().
		Int("budget", tokenBudget).
		Int("tokens", used).
		Int("chunks", len(parts)).
		Bool("truncated", out.Truncated).
		Msg("Context assembled")
	return out
}

// Retarget rebuilds a context for a smaller budget, stepping compression to
// the next coarser level. Retargeting to an equal or larger budget reuses
// the current compression.
func (a *Assembler) Retarget(prev models.BuiltContext, results []models.SearchResult, tokenBudget int) models.BuiltContext {
	level := prev.Compression
	if tokenBudget-ReservedOverhead < prev.TotalTokens {
		level = level.Coarser()
	}
	return a.Build(results, tokenBudget, level)
}

// chunk resolves results to documents and renders one content chunk plus an
// optional metadata chunk per result. Results whose documents were deleted
// after ranking are skipped.
func (a *Assembler) chunk(results []models.SearchResult, level models.CompressionLevel) []models.ContextChunk {
	chunks := make([]models.ContextChunk, 0, len(results))
	for _, res := range results {
		doc, err := a.ix.Get(res.DocID)
		if err != nil {
			log.Debug().Str("docID", res.DocID).Msg("Result document no longer live")
			continue
		}

		format, ok := formatters[doc.Type]
		if !ok {
			format = labelledBlock("Reference")
		}
		body := Compress(doc.Content, level)
		text := format(doc, body)

		chunks = append(chunks, models.ContextChunk{
			Text:       text,
			DocID:      doc.DocID,
			TokenCount: a.counter.Count(text),
			Type:       models.ChunkContent,
			Priority:   a.priority(doc.Type, res.FinalScore),
			Relevance:  res.FinalScore,
		})

		if len(doc.Metadata) > 0 {
			meta := formatMetadata(doc)
			chunks = append(chunks, models.ContextChunk{
				Text:       meta,
				DocID:      doc.DocID,
				TokenCount: a.counter.Count(meta),
				Type:       models.ChunkMetadata,
				Priority:   a.priority(doc.Type, res.FinalScore) + 2,
				Relevance:  res.FinalScore,
			})
		}
	}
	return chunks
}

// priority maps a document type to its selection band, nudged one band up
// for highly relevant results and one band down for weak ones.
func (a *Assembler) priority(docType models.DocumentType, relevance float64) int {
	p, ok := typePriority[docType]
	if !ok {
		p = 4
	}
	switch {
	case relevance >= 0.8:
		p--
	case relevance <= 0.3:
		p++
	}
	if p < 1 {
		p = 1
	}
	return p
}

func formatMetadata(doc *models.Document) string {
	keys := make([]string, 0, len(doc.Metadata))
	for k := range doc.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "[Meta] %s", doc.DocID)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, doc.Metadata[k])
	}
	return b.String()
}

// truncateLines keeps whole leading lines of text up to budget tokens. The
// joined prefix is recounted at every step, since a BPE count of rejoined
// lines is not the sum of the per-line counts. Returns the kept text and
// its token count; (_, 0) when not even the first line fits.
func (a *Assembler) truncateLines(text string, budget int) (string, int) {
	if budget <= 0 {
		return "", 0
	}
	lines := strings.Split(text, "\n")
	fit := 0
	used := 0
	for i := range lines {
		n := a.counter.Count(strings.Join(lines[:i+1], "\n"))
		if n > budget {
			break
		}
		fit = i + 1
		used = n
	}
	if fit == 0 {
		return "", 0
	}
	return strings.Join(lines[:fit], "\n"), used
}
