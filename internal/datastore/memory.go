package datastore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Datastore backed by brute-force cosine
// similarity. It exists for local development without a Qdrant instance and
// for tests; it honors the same contract as QdrantStore.
type MemoryStore struct {
	mu sync.RWMutex
	// chunks holds every stored chunk in insertion order.
	chunks []Chunk

	// embedder produces the dense vectors for chunks and queries.
	embedder Embedder

	// chunkSize and chunkOverlap mirror the QdrantStore chunking knobs.
	chunkSize    int
	chunkOverlap int
}

// NewMemoryStore constructs an empty MemoryStore using the given embedder.
func NewMemoryStore(embedder Embedder) *MemoryStore {
	return &MemoryStore{
		embedder:     embedder,
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
	}
}

// Upsert chunks, embeds, and holds the documents in memory.
func (s *MemoryStore) Upsert(ctx context.Context, docs []Document) ([]string, error) {
	ids := make([]string, 0, len(docs))
	var chunks []Chunk
	for _, doc := range docs {
		docID, docChunks := chunkDocument(doc, s.chunkSize, s.chunkOverlap)
		ids = append(ids, docID)
		chunks = append(chunks, docChunks...)
	}
	if len(chunks) == 0 {
		return ids, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	s.mu.Lock()
	s.chunks = append(s.chunks, chunks...)
	s.mu.Unlock()

	return ids, nil
}

// Query runs a brute-force cosine similarity search per sub-query.
func (s *MemoryStore) Query(ctx context.Context, queries []Query) ([]QueryResult, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	texts := make([]string, len(queries))
	for i, q := range queries {
		texts[i] = q.Query
	}
	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]QueryResult, 0, len(queries))
	for i, q := range queries {
		topK := q.TopK
		if topK <= 0 {
			topK = defaultTopK
		}

		scored := make([]ScoredChunk, 0, len(s.chunks))
		for _, c := range s.chunks {
			if !matchesFilter(c, q.Filter) {
				continue
			}
			scored = append(scored, ScoredChunk{
				Chunk: c,
				Score: cosineSimilarity(embeddings[i], c.Embedding),
			})
		}

		sort.SliceStable(scored, func(a, b int) bool {
			return scored[a].Score > scored[b].Score
		})
		if len(scored) > topK {
			scored = scored[:topK]
		}

		results = append(results, QueryResult{Query: q.Query, Results: scored})
	}

	return results, nil
}

// Delete removes chunks by document IDs, filter, or wholesale.
func (s *MemoryStore) Delete(ctx context.Context, ids []string, filter *QueryFilter, deleteAll bool) (bool, error) {
	if !deleteAll && len(ids) == 0 && filter == nil {
		return false, ErrNoDeleteCriteria
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if deleteAll {
		s.chunks = nil
		return true, nil
	}

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if idSet[c.Metadata.DocumentID] {
			continue
		}
		if filter != nil && matchesFilter(c, filter) {
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept

	return true, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// Len reports the number of stored chunks. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// matchesFilter reports whether a chunk satisfies every set filter field.
func matchesFilter(c Chunk, f *QueryFilter) bool {
	if f == nil {
		return true
	}
	if f.DocumentID != "" && c.Metadata.DocumentID != f.DocumentID {
		return false
	}
	if f.Source != "" && c.Metadata.Source != f.Source {
		return false
	}
	if f.SourceID != "" && c.Metadata.SourceID != f.SourceID {
		return false
	}
	if f.Author != "" && c.Metadata.Author != f.Author {
		return false
	}
	if f.StartDate != "" || f.EndDate != "" {
		created, ok := parseTime(c.Metadata.CreatedAt)
		if !ok {
			return false
		}
		if start, ok := parseTime(f.StartDate); ok && created.Before(start) {
			return false
		}
		if end, ok := parseTime(f.EndDate); ok && created.After(end) {
			return false
		}
	}
	return true
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for mismatched lengths or zero-magnitude inputs.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
