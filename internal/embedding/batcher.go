package embedding

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of texts sent per provider call.
const DefaultBatchSize = 32

// DefaultWorkers bounds concurrent provider calls during ingestion so the
// external rate limit is respected.
const DefaultWorkers = 4

// Batcher embeds large text sets through the provider in bounded-concurrency
// batches. Per-query retrieval uses Provider.Embed directly; the batcher is
// an ingestion-path helper only.
type Batcher struct {
	provider  Provider
	batchSize int
	workers   int
}

// NewBatcher creates a batcher. Non-positive batchSize or workers fall back
// to the defaults.
func NewBatcher(provider Provider, batchSize, workers int) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Batcher{provider: provider, batchSize: batchSize, workers: workers}
}

// EmbedAll returns one vector per input text, in input order. The first
// provider error cancels the remaining batches and is returned.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		g.Go(func() error {
			batch, err := b.provider.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("embed batch [%d:%d]: got %d vectors", start, end, len(batch))
			}
			copy(vectors[start:], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug().
		Int("texts", len(texts)).
		Int("batchSize", b.batchSize).
		Int("workers", b.workers).
		Msg("Batch embedding complete")

	return vectors, nil
}
