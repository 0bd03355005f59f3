package contextbuild

import (
	"sort"
	"strings"

	"github.com/marulab/recall/internal/keyword"
	"github.com/marulab/recall/pkg/models"
)

const maxBulletPoints = 5

// Compress reduces text to the requested level. Unknown levels pass the
// text through unchanged.
func Compress(text string, level models.CompressionLevel) string {
	switch level {
	case models.CompressionSummary:
		return summarize(text)
	case models.CompressionBulletPoints:
		return bulletPoints(text)
	case models.CompressionKeyFacts:
		return keyFacts(text)
	default:
		return text
	}
}

// splitSentences breaks text on sentence-final punctuation and newlines,
// dropping empty fragments.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			flush()
		case '\n':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return sentences
}

// summarize keeps the first, last and longest sentences, in original order.
func summarize(text string) string {
	sentences := splitSentences(text)
	if len(sentences) <= 3 {
		return strings.Join(sentences, " ")
	}

	longest := 0
	for i, s := range sentences {
		if len(s) > len(sentences[longest]) {
			longest = i
		}
	}

	keep := map[int]bool{0: true, len(sentences) - 1: true, longest: true}
	idx := make([]int, 0, len(keep))
	for i := range keep {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	parts := make([]string, 0, len(idx))
	for _, i := range idx {
		parts = append(parts, sentences[i])
	}
	return strings.Join(parts, " ")
}

// bulletPoints extracts the most salient sentences, ranked by distinct
// content-term count, capped and rendered as a dash list.
func bulletPoints(text string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}

	type ranked struct {
		idx   int
		terms int
	}
	scores := make([]ranked, len(sentences))
	for i, s := range sentences {
		scores[i] = ranked{idx: i, terms: len(keyword.TermFrequencies(s))}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].terms > scores[j].terms })

	n := maxBulletPoints
	if n > len(scores) {
		n = len(scores)
	}
	picked := scores[:n]
	sort.Slice(picked, func(i, j int) bool { return picked[i].idx < picked[j].idx })

	var b strings.Builder
	for i, r := range picked {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(sentences[r.idx])
	}
	return b.String()
}

// keyFacts keeps only sentences sharing terms with the document's dominant
// vocabulary, a keyword-filtered subset of the original.
func keyFacts(text string) string {
	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return strings.Join(sentences, " ")
	}

	// Dominant terms are those appearing more than once across the text.
	freq := keyword.TermFrequencies(text)
	dominant := make(map[string]bool)
	for term, n := range freq {
		if n > 1 {
			dominant[term] = true
		}
	}
	if len(dominant) == 0 {
		// No repeated vocabulary; fall back to the summary form.
		return summarize(text)
	}

	var parts []string
	for _, s := range sentences {
		for term := range keyword.TermFrequencies(s) {
			if dominant[term] {
				parts = append(parts, s)
				break
			}
		}
	}
	if len(parts) == 0 {
		return summarize(text)
	}
	return strings.Join(parts, " ")
}
