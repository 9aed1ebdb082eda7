package embedding

import "context"

// Provider generates embeddings from text.
//
// Embeddings are pure per text: the same normalized text always yields the
// same vector regardless of what batch it was embedded in. The index builder
// and the recommendation service must use the same provider configuration,
// or nearest-neighbor results are meaningless.
type Provider interface {
	// Embed generates an embedding for the given text.
	Embed(ctx context.Context, text string) (Embedding, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Dimensions returns the expected vector dimensions.
	Dimensions() int
}
