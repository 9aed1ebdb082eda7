package embedding

import (
	"context"
	"fmt"
)

// EmbedBatch embeds a batch of texts with the given provider.
//
// The result is all-or-nothing: any single failure returns an error and no
// vectors, so callers never commit a partially embedded batch. Batch
// placement does not affect vector values; splitting texts across batches
// yields the same vectors as embedding them in one.
func EmbedBatch(ctx context.Context, p Provider, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		emb, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d of %d: %w", i+1, len(texts), err)
		}
		vectors = append(vectors, emb.Vector)
	}

	return vectors, nil
}
