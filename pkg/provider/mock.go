package provider

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// HashChat is a deterministic ChatProvider stub for tests and keyless
// environments. The response is derived from a hash of the last message, so
// identical inputs always produce identical outputs.
type HashChat struct {
	model string
}

// NewHashChat creates a deterministic chat stub.
func NewHashChat(model string) *HashChat {
	if model == "" {
		model = "hash-stub"
	}
	return &HashChat{model: model}
}

// Complete implements ChatProvider.
func (p *HashChat) Complete(_ context.Context, messages []Message, _ []Tool) (*Completion, error) {
	var last string
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}

	sum := sha256.Sum256([]byte(last))
	prompt := 0
	for _, m := range messages {
		prompt += len(m.Content) / 4
	}

	return &Completion{
		Content: fmt.Sprintf("stub-%x", sum[:8]),
		Model:   p.model,
		Usage: Usage{
			PromptTokens:     prompt,
			CompletionTokens: 8,
			TotalTokens:      prompt + 8,
		},
	}, nil
}

// HashEmbedder is a deterministic embedder used when no provider key
// resolves. Vectors are built by hashing whitespace tokens into buckets,
// which preserves enough lexical overlap for retrieval tests.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hash embedder with the given dimensionality.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

// Embed implements Embedder.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, e.dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(token))
		bucket := binary.BigEndian.Uint32(sum[:4]) % uint32(e.dims)
		vec[bucket]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}
