package contextbuild

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// Counter measures token counts for budget accounting.
type Counter interface {
	Count(text string) int
}

// TiktokenCounter counts with the cl100k_base BPE vocabulary, falling back
// to a word-count estimate when encoding fails.
type TiktokenCounter struct {
	codec tokenizer.Codec
}

// NewTiktokenCounter loads the cl100k_base codec. When the vocabulary is
// unavailable the counter still works, estimating every call.
func NewTiktokenCounter() *TiktokenCounter {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warn().Err(err).Msg("Tokenizer unavailable, using word estimate")
		return &TiktokenCounter{}
	}
	return &TiktokenCounter{codec: codec}
}

// Count returns the token count for text.
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.codec != nil {
		if ids, _, err := c.codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return EstimateTokens(text)
}

// EstimateTokens approximates a token count as word count × 1.3, the usual
// English BPE expansion factor. Always at least 1 for non-empty text.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		if text == "" {
			return 0
		}
		return 1
	}
	n := int(float64(words) * 1.3)
	if n < 1 {
		n = 1
	}
	return n
}

// estimateCounter is the pluggable fallback used by tests and by callers
// that do not want the BPE vocabulary loaded.
type estimateCounter struct{}

func (estimateCounter) Count(text string) int { return EstimateTokens(text) }

// NewEstimateCounter returns a Counter backed by the word-count estimate.
func NewEstimateCounter() Counter { return estimateCounter{} }
