// Package llm wraps the OpenAI API behind the three narrow operations the
// retrieval service needs: answering a question against retrieved context,
// expanding a question into retrieval sub-queries, and embedding text for
// the vector datastore. The rest of the system treats these as opaque
// external calls.
package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// answerSystemPrompt instructs the model to ground its answer in the
// retrieved chunks and admit when the context does not contain the answer.
const answerSystemPrompt = "You are a helpful assistant answering questions " +
	"using the provided context. Use only the information in the context. " +
	"If the context does not contain the answer, say you do not know."

// expandSystemPrompt instructs the model to decompose a question into
// retrieval sub-queries, one per line.
const expandSystemPrompt = "Break the user's question into at most three " +
	"short search queries that together cover the question. Output one " +
	"query per line with no numbering and no extra text."

// Config holds the settings for constructing a Client.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// BaseURL overrides the API base for OpenAI-compatible servers.
	// Empty means the official endpoint.
	BaseURL string
	// Model is the chat completion model (default: gpt-3.5-turbo).
	Model string
	// EmbeddingModel is the embedding model (default: text-embedding-3-small).
	EmbeddingModel string
}

// Client is the OpenAI-backed completion and embedding client.
// It is safe for concurrent use.
type Client struct {
	api            *openai.Client
	model          string
	embeddingModel openai.EmbeddingModel
}

// New constructs a Client from the given config.
func New(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT3Dot5Turbo
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = string(openai.SmallEmbedding3)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:            openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		embeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
	}, nil
}

// Answer sends the question plus supporting text chunks to the completion
// API and returns the generated answer. An empty chunk set still proceeds —
// the model answers from the question alone.
func (c *Client) Answer(ctx context.Context, question string, chunks []string) (string, error) {
	var b strings.Builder
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, chunk)
	}

	userContent := fmt.Sprintf("Context:\n%s\nQuestion: %s", b.String(), question)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: answerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: completion returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ExpandQueries turns one user question into one or more retrieval
// sub-queries. Expansion is best-effort: any failure falls back to the
// original question so retrieval always has at least one query.
func (c *Client) ExpandQueries(ctx context.Context, question string) ([]string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: expandSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
	})
	if err != nil {
		return []string{question}, nil
	}
	if len(resp.Choices) == 0 {
		return []string{question}, nil
	}

	var queries []string
	for _, line := range strings.Split(resp.Choices[0].Message.Content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			queries = append(queries, line)
		}
	}
	if len(queries) == 0 {
		queries = []string{question}
	}

	return queries, nil
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.embeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: embeddings failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("llm: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// The API may return data out of order; place by index.
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("llm: embedding index %d out of range [0, %d)", d.Index, len(texts))
		}
		embeddings[d.Index] = d.Embedding
	}

	return embeddings, nil
}
