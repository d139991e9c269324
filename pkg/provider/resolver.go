package provider

import (
	"context"
	"fmt"
)

// Settings supplies runtime-level provider configuration. Keys configured
// here take precedence over the per-user secrets store.
type Settings interface {
	// APIKey returns the configured key for a family, empty when unset.
	APIKey(family Family) string
	// BaseURL returns an endpoint override for a family, empty for default.
	BaseURL(family Family) string
}

// SecretsStore resolves per-owner secrets. Implementations return an empty
// string (no error) when the secret is absent.
type SecretsStore interface {
	Get(ctx context.Context, name, owner string) (string, error)
}

// Resolver builds chat providers and embedders for a model, resolving API
// keys through Settings first and then the owner-scoped secrets store.
type Resolver struct {
	settings Settings
	secrets  SecretsStore
}

// NewResolver creates a provider resolver. Either dependency may be nil.
func NewResolver(settings Settings, secrets SecretsStore) *Resolver {
	return &Resolver{settings: settings, secrets: secrets}
}

// apiKey resolves the key for a family: settings first, then the secrets
// store scoped to the execution's user.
func (r *Resolver) apiKey(ctx context.Context, family Family, userID string) (string, error) {
	if r.settings != nil {
		if key := r.settings.APIKey(family); key != "" {
			return key, nil
		}
	}
	if r.secrets != nil {
		key, err := r.secrets.Get(ctx, SecretName(family), userID)
		if err != nil {
			return "", fmt.Errorf("secret lookup for %s: %w", family, err)
		}
		if key != "" {
			return key, nil
		}
	}
	return "", nil
}

func (r *Resolver) baseURL(family Family) string {
	if r.settings != nil {
		return r.settings.BaseURL(family)
	}
	return ""
}

// Chat returns a chat provider for the model, keyed for the given user.
func (r *Resolver) Chat(ctx context.Context, model, userID string) (ChatProvider, error) {
	family := FamilyForModel(model)

	key, err := r.apiKey(ctx, family, userID)
	if err != nil {
		return nil, err
	}

	switch family {
	case FamilyOpenAI:
		if key == "" {
			return nil, fmt.Errorf("no API key available for model %s (family %s)", model, family)
		}
		return NewOpenAI(key, r.baseURL(family), model), nil
	case FamilyAnthropic:
		if key == "" {
			return nil, fmt.Errorf("no API key available for model %s (family %s)", model, family)
		}
		return NewAnthropic(key, model), nil
	case FamilyGemini:
		if key == "" {
			return nil, fmt.Errorf("no API key available for model %s (family %s)", model, family)
		}
		return NewGemini(key, model), nil
	case FamilyOllama:
		return NewOllama(r.baseURL(family), model), nil
	default:
		return nil, fmt.Errorf("unsupported model family %s", family)
	}
}

// Embedder returns an embedder for the model. When the model's family has no
// key, it falls back to any family whose key is available, and finally to the
// deterministic hash embedder so retrieval keeps working without credentials.
func (r *Resolver) Embedder(ctx context.Context, model, userID string) (Embedder, error) {
	family := FamilyForModel(model)

	key, err := r.apiKey(ctx, family, userID)
	if err != nil {
		return nil, err
	}
	if key != "" {
		switch family {
		case FamilyOpenAI:
			return NewOpenAIEmbedder(key, r.baseURL(family), model), nil
		case FamilyGemini:
			return NewGeminiEmbedder(key, model), nil
		}
	}

	// Alternate-family fallback: embeddings are interchangeable enough that
	// any available key beats the hash stub.
	for _, alt := range []struct {
		family Family
		model  string
	}{
		{FamilyOpenAI, "text-embedding-3-small"},
		{FamilyGemini, "text-embedding-004"},
	} {
		if alt.family == family {
			continue
		}
		altKey, err := r.apiKey(ctx, alt.family, userID)
		if err != nil {
			return nil, err
		}
		if altKey == "" {
			continue
		}
		switch alt.family {
		case FamilyOpenAI:
			return NewOpenAIEmbedder(altKey, r.baseURL(alt.family), alt.model), nil
		case FamilyGemini:
			return NewGeminiEmbedder(altKey, alt.model), nil
		}
	}

	return NewHashEmbedder(256), nil
}
