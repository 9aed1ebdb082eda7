// Package embeddingtest provides a deterministic in-memory Provider for
// tests. Vectors are derived from a hash of the text, so the same text
// always embeds to the same vector and distinct texts land in distinct
// directions.
package embeddingtest

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/andeslab/thesisrec/internal/embedding"
)

// Provider is a deterministic fake embedding provider.
type Provider struct {
	Model string
	Dims  int

	// Fail, when set, makes every Embed call return this error.
	Fail error

	// Calls counts Embed invocations.
	Calls int
}

// New returns a fake provider with the given model name and dimensions.
func New(model string, dims int) *Provider {
	return &Provider{Model: model, Dims: dims}
}

// Embed derives a unit vector from the fnv-1a hash of the text.
func (p *Provider) Embed(_ context.Context, text string) (embedding.Embedding, error) {
	p.Calls++
	if p.Fail != nil {
		return embedding.Embedding{}, p.Fail
	}
	if text == "" {
		return embedding.Embedding{}, fmt.Errorf("empty text")
	}

	vec := make([]float32, p.Dims)
	state := fnv.New64a()
	state.Write([]byte(text))
	x := state.Sum64()

	var norm float64
	for i := range vec {
		// xorshift keeps components spread without math/rand state
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		vec[i] = float32(int64(x%2000)-1000) / 1000
		norm += float64(vec[i]) * float64(vec[i])
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}

	return embedding.Embedding{Vector: vec}, nil
}

// ModelName returns the configured model name.
func (p *Provider) ModelName() string { return p.Model }

// Dimensions returns the configured vector width.
func (p *Provider) Dimensions() int { return p.Dims }
