package builtin

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/flowline-ai/flowline/pkg/executor"
	"github.com/flowline-ai/flowline/pkg/models"
	"github.com/flowline-ai/flowline/pkg/provider"
)

const (
	defaultChunkSize    = 500
	defaultChunkOverlap = 50
	defaultTopK         = 3
)

// RAGExecutor chunks and embeds the node's documents, retrieves the top-K
// chunks for the resolved query, and answers with an LLM over the retrieved
// context. Provider resolution follows the agent executor; embeddings fall
// back to the deterministic hash embedder when no key is available.
type RAGExecutor struct {
	deps Deps
}

type scoredChunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Execute implements executor.Executor.
func (e *RAGExecutor) Execute(ctx context.Context, node *models.Node, input any, execCtx executor.Context) (any, error) {
	documents := stringSlice(node.Data["documents"])
	if doc, ok := node.Data["documents"].(string); ok && doc != "" {
		documents = []string{doc}
	}
	if len(documents) == 0 {
		return nil, fmt.Errorf("rag node %s has no documents", node.ID)
	}

	query := executor.FormatValue(input)
	if tmpl, ok := node.Data["query"].(string); ok && tmpl != "" {
		query = executor.NewTemplateEngine(execCtx).Resolve(tmpl)
	}

	chunkSize := intValue(node.Data["chunkSize"], defaultChunkSize)
	topK := intValue(node.Data["topK"], defaultTopK)
	embeddingModel, _ := node.Data["embeddingModel"].(string)
	model, _ := node.Data["model"].(string)
	if model == "" {
		model = "gpt-4o-mini"
	}

	userID, _ := execCtx[executor.KeyUserID].(string)
	embedder, err := e.deps.Providers.Embedder(ctx, embeddingModel, userID)
	if err != nil {
		return nil, fmt.Errorf("rag node %s: %w", node.ID, err)
	}

	// Chunk and embed the corpus.
	embedStart := time.Now()
	var chunks []string
	for _, doc := range documents {
		chunks = append(chunks, chunkText(doc, chunkSize, defaultChunkOverlap)...)
	}
	vectors := make([][]float64, len(chunks))
	for i, chunk := range chunks {
		vec, err := embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("rag node %s embed chunk %d: %w", node.ID, i, err)
		}
		vectors[i] = vec
	}
	queryVec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag node %s embed query: %w", node.ID, err)
	}
	embedMs := time.Since(embedStart).Milliseconds()

	// Retrieve top-K by cosine similarity.
	retrieveStart := time.Now()
	scored := make([]scoredChunk, len(chunks))
	for i, chunk := range chunks {
		scored[i] = scoredChunk{Text: chunk, Score: cosine(queryVec, vectors[i])}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK < len(scored) {
		scored = scored[:topK]
	}
	retrieveMs := time.Since(retrieveStart).Milliseconds()

	// Generate the answer over the retrieved context.
	generateStart := time.Now()
	chat, err := e.deps.Providers.Chat(ctx, model, userID)
	if err != nil {
		return nil, fmt.Errorf("rag node %s: %w", node.ID, err)
	}

	var contextBlock strings.Builder
	for i, c := range scored {
		fmt.Fprintf(&contextBlock, "[%d] %s\n\n", i+1, c.Text)
	}
	prompt := fmt.Sprintf(
		"Answer the question using only the context below.\n\nContext:\n%s\nQuestion: %s",
		contextBlock.String(), query)

	completion, err := chat.Complete(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: "You answer questions from retrieved context. Say so when the context is insufficient."},
		{Role: provider.RoleUser, Content: prompt},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("rag node %s generate: %w", node.ID, err)
	}
	generateMs := time.Since(generateStart).Milliseconds()

	execCtx[executor.UsageKey(node.ID)] = map[string]any{
		"prompt_tokens":     completion.Usage.PromptTokens,
		"completion_tokens": completion.Usage.CompletionTokens,
		"cost":              provider.EstimateCost(model, completion.Usage),
		"model":             model,
	}

	chunkMaps := make([]any, len(scored))
	for i, c := range scored {
		chunkMaps[i] = map[string]any{"text": c.Text, "score": c.Score}
	}

	return map[string]any{
		"output": completion.Content,
		"chunks": chunkMaps,
		"query":  query,
		"timings": map[string]any{
			"embed_ms":    embedMs,
			"retrieve_ms": retrieveMs,
			"generate_ms": generateMs,
		},
	}, nil
}

// chunkText splits text into windows of chunkSize bytes, each starting
// overlap bytes before the previous one ends. Windows are cut at fixed byte
// offsets, not at whitespace; each chunk is trimmed of surrounding spaces.
func chunkText(text string, chunkSize, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}
	for start := 0; start < len(text); start += step {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(text) {
			break
		}
	}
	return chunks
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
