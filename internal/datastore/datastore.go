// Package datastore defines the vector datastore facade used by the
// retrieval service: document upsert, semantic query, and deletion over a
// pluggable similarity store. Concrete backends (Qdrant, in-memory) satisfy
// the Datastore interface so the HTTP and orchestration layers never depend
// on a specific vector database.
package datastore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Source identifies where a document originated.
type Source string

const (
	// SourceEmail marks documents extracted from email.
	SourceEmail Source = "email"
	// SourceFile marks documents uploaded as files. This is the fallback
	// when /upsert-file receives unparseable metadata.
	SourceFile Source = "file"
	// SourceChat marks documents captured from chat transcripts.
	SourceChat Source = "chat"
)

// DocumentMetadata describes a document's provenance.
type DocumentMetadata struct {
	// Source is the origin category of the document.
	Source Source `json:"source,omitempty"`
	// SourceID is the identifier within the source system.
	SourceID string `json:"source_id,omitempty"`
	// URL is the origin URL, if any.
	URL string `json:"url,omitempty"`
	// CreatedAt is the document creation time (RFC3339).
	CreatedAt string `json:"created_at,omitempty"`
	// Author is the document author, if known.
	Author string `json:"author,omitempty"`
}

// Document is the unit of upsert: raw text plus provenance metadata.
// ID is optional; a fresh identifier is assigned when absent, so two
// identical upserts produce two independent ID sets.
type Document struct {
	ID       string           `json:"id,omitempty"`
	Text     string           `json:"text"`
	Metadata DocumentMetadata `json:"metadata,omitempty"`
}

// ChunkMetadata is the metadata stored alongside each chunk. It carries the
// parent document ID in addition to the document's own provenance.
type ChunkMetadata struct {
	DocumentMetadata
	// DocumentID is the ID of the document this chunk was split from.
	DocumentID string `json:"document_id,omitempty"`
}

// Chunk is the stored unit: a slice of document text with its embedding.
type Chunk struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
	// Embedding is the dense vector for this chunk. Not serialized in
	// query responses.
	Embedding []float32 `json:"-"`
}

// ScoredChunk is a chunk returned from a similarity query with its
// relevance score in [0,1].
type ScoredChunk struct {
	Chunk
	Score float32 `json:"score"`
}

// QueryFilter narrows a query or delete to documents matching all set fields.
type QueryFilter struct {
	// DocumentID matches chunks belonging to one document.
	DocumentID string `json:"document_id,omitempty"`
	// Source matches the origin category.
	Source Source `json:"source,omitempty"`
	// SourceID matches the source-system identifier.
	SourceID string `json:"source_id,omitempty"`
	// Author matches the document author.
	Author string `json:"author,omitempty"`
	// StartDate excludes documents created before this RFC3339 time.
	StartDate string `json:"start_date,omitempty"`
	// EndDate excludes documents created after this RFC3339 time.
	EndDate string `json:"end_date,omitempty"`
}

// Query is a single retrieval sub-query. Ephemeral, constructed per request.
type Query struct {
	// Query is the natural-language question or sub-query text.
	Query string `json:"query"`
	// Filter optionally narrows the searched documents.
	Filter *QueryFilter `json:"filter,omitempty"`
	// TopK caps the number of results. Zero means the backend default.
	TopK int `json:"top_k,omitempty"`
}

// QueryResult is the ordered, scored result set for one sub-query.
type QueryResult struct {
	Query   string        `json:"query"`
	Results []ScoredChunk `json:"results"`
}

// Datastore is the pluggable vector store facade. Implementations must be
// safe to call from multiple goroutines.
type Datastore interface {
	// Upsert chunks, embeds, and stores the documents, returning the
	// assigned document IDs in input order.
	Upsert(ctx context.Context, docs []Document) ([]string, error)

	// Query runs a similarity search for each sub-query and returns one
	// result set per query, in input order.
	Query(ctx context.Context, queries []Query) ([]QueryResult, error)

	// Delete removes chunks by document IDs, by filter, or everything when
	// deleteAll is set. At least one criterion must be provided.
	Delete(ctx context.Context, ids []string, filter *QueryFilter, deleteAll bool) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrNoDeleteCriteria is returned by Delete when neither ids, filter, nor
// deleteAll is provided. The HTTP layer maps it to 400.
var ErrNoDeleteCriteria = fmt.Errorf("datastore: one of ids, filter, or delete_all is required")

// defaultChunkSize is the maximum number of characters per stored chunk.
const defaultChunkSize = 1000

// defaultChunkOverlap is the number of characters shared between
// consecutive chunks so sentences at a boundary are never lost entirely.
const defaultChunkOverlap = 100

// chunkDocument splits a document into stored chunks, assigning the document
// a fresh ID when it has none. Chunk ordering follows text order.
func chunkDocument(doc Document, size, overlap int) (string, []Chunk) {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}

	docID := doc.ID
	if docID == "" {
		docID = uuid.NewString()
	}

	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return docID, nil
	}

	// Split on rune boundaries so multi-byte text (Vietnamese diacritics)
	// is never cut mid-character.
	runes := []rune(text)

	var chunks []Chunk
	for start := 0; start < len(runes); start += size - overlap {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			ID:   uuid.NewString(),
			Text: string(runes[start:end]),
			Metadata: ChunkMetadata{
				DocumentMetadata: doc.Metadata,
				DocumentID:       docID,
			},
		})
		if end == len(runes) {
			break
		}
	}

	return docID, chunks
}
