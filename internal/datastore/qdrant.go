package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// defaultTopK is the number of results returned per sub-query when the
// caller does not cap the count.
const defaultTopK = 3

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this
	// collection. Must match the embedding model.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// ChunkSize is the maximum characters per stored chunk (default 1000).
	ChunkSize int

	// ChunkOverlap is the characters shared with the previous chunk
	// (default 100).
	ChunkOverlap int
}

// QdrantStore implements Datastore backed by a Qdrant instance. Documents
// are chunked and embedded at upsert time; queries are embedded per
// sub-query and delegated to Qdrant's cosine similarity search.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// embedder produces the dense vectors for chunks and queries.
	embedder Embedder

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use Datastore.
func NewQdrantStore(ctx context.Context, embedder Embedder, cfg *QdrantConfig) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("qdrant: embedder must not be nil")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = defaultChunkOverlap
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, embedder: embedder, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// Client exposes the underlying gRPC client for readiness probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Upsert chunks and embeds the documents, then stores the chunk points.
// Returns the assigned document IDs in input order.
func (s *QdrantStore) Upsert(ctx context.Context, docs []Document) ([]string, error) {
	ids := make([]string, 0, len(docs))
	var chunks []Chunk
	for _, doc := range docs {
		docID, docChunks := chunkDocument(doc, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
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
		return nil, fmt.Errorf("qdrant: embedding chunks failed: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("qdrant: expected %d embeddings, got %d", len(chunks), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(chunkPayload(c)),
		})
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return ids, nil
}

// Query embeds each sub-query and runs a scored cosine similarity search,
// returning one ordered result set per query.
func (s *QdrantStore) Query(ctx context.Context, queries []Query) ([]QueryResult, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	texts := make([]string, len(queries))
	for i, q := range queries {
		texts[i] = q.Query
	}
	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("qdrant: embedding queries failed: %w", err)
	}
	if len(embeddings) != len(queries) {
		return nil, fmt.Errorf("qdrant: expected %d embeddings, got %d", len(queries), len(embeddings))
	}

	results := make([]QueryResult, 0, len(queries))
	for i, q := range queries {
		topK := q.TopK
		if topK <= 0 {
			topK = defaultTopK
		}
		limit := uint64(topK)

		scored, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.cfg.Collection,
			Query:          qdrant.NewQuery(embeddings[i]...),
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         buildFilter(q.Filter),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: search failed: %w", err)
		}

		chunks := make([]ScoredChunk, 0, len(scored))
		for _, r := range scored {
			chunks = append(chunks, scoredChunkFromPoint(r))
		}
		results = append(results, QueryResult{Query: q.Query, Results: chunks})
	}

	return results, nil
}

// Delete removes chunks by document IDs, filter, or wholesale.
func (s *QdrantStore) Delete(ctx context.Context, ids []string, filter *QueryFilter, deleteAll bool) (bool, error) {
	var selector *qdrant.PointsSelector
	switch {
	case deleteAll:
		// An empty filter matches every point in the collection.
		selector = qdrant.NewPointsSelectorFilter(&qdrant.Filter{})
	case len(ids) > 0:
		should := make([]*qdrant.Condition, 0, len(ids))
		for _, id := range ids {
			should = append(should, qdrant.NewMatch("document_id", id))
		}
		selector = qdrant.NewPointsSelectorFilter(&qdrant.Filter{Should: should})
	case filter != nil:
		selector = qdrant.NewPointsSelectorFilter(buildFilter(filter))
	default:
		return false, ErrNoDeleteCriteria
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         selector,
	})
	if err != nil {
		return false, fmt.Errorf("qdrant: delete failed: %w", err)
	}

	return true, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// chunkPayload flattens a chunk into the Qdrant point payload.
// created_at is stored as a Unix timestamp so date-range filters can use a
// numeric range condition.
func chunkPayload(c Chunk) map[string]any {
	payload := map[string]any{
		"text":        c.Text,
		"document_id": c.Metadata.DocumentID,
	}
	if c.Metadata.Source != "" {
		payload["source"] = string(c.Metadata.Source)
	}
	if c.Metadata.SourceID != "" {
		payload["source_id"] = c.Metadata.SourceID
	}
	if c.Metadata.URL != "" {
		payload["url"] = c.Metadata.URL
	}
	if c.Metadata.Author != "" {
		payload["author"] = c.Metadata.Author
	}
	if ts, ok := parseTime(c.Metadata.CreatedAt); ok {
		payload["created_at"] = ts.Unix()
	}
	return payload
}

// buildFilter translates a QueryFilter into Qdrant match and range conditions.
// Returns nil when the filter is empty so the search stays unfiltered.
func buildFilter(f *QueryFilter) *qdrant.Filter {
	if f == nil {
		return nil
	}

	var must []*qdrant.Condition
	if f.DocumentID != "" {
		must = append(must, qdrant.NewMatch("document_id", f.DocumentID))
	}
	if f.Source != "" {
		must = append(must, qdrant.NewMatch("source", string(f.Source)))
	}
	if f.SourceID != "" {
		must = append(must, qdrant.NewMatch("source_id", f.SourceID))
	}
	if f.Author != "" {
		must = append(must, qdrant.NewMatch("author", f.Author))
	}

	r := &qdrant.Range{}
	ranged := false
	if ts, ok := parseTime(f.StartDate); ok {
		r.Gte = qdrant.PtrOf(float64(ts.Unix()))
		ranged = true
	}
	if ts, ok := parseTime(f.EndDate); ok {
		r.Lte = qdrant.PtrOf(float64(ts.Unix()))
		ranged = true
	}
	if ranged {
		must = append(must, qdrant.NewRange("created_at", r))
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// scoredChunkFromPoint reconstructs a ScoredChunk from a Qdrant result point.
func scoredChunkFromPoint(r *qdrant.ScoredPoint) ScoredChunk {
	sc := ScoredChunk{Score: r.Score}
	sc.ID = r.Id.GetUuid()

	p := r.Payload
	if p == nil {
		return sc
	}
	if v, ok := p["text"]; ok {
		sc.Text = v.GetStringValue()
	}
	if v, ok := p["document_id"]; ok {
		sc.Metadata.DocumentID = v.GetStringValue()
	}
	if v, ok := p["source"]; ok {
		sc.Metadata.Source = Source(v.GetStringValue())
	}
	if v, ok := p["source_id"]; ok {
		sc.Metadata.SourceID = v.GetStringValue()
	}
	if v, ok := p["url"]; ok {
		sc.Metadata.URL = v.GetStringValue()
	}
	if v, ok := p["author"]; ok {
		sc.Metadata.Author = v.GetStringValue()
	}
	if v, ok := p["created_at"]; ok {
		sc.Metadata.CreatedAt = time.Unix(v.GetIntegerValue(), 0).UTC().Format(time.RFC3339)
	}
	return sc
}

// parseTime parses an RFC3339 or date-only string. Returns false for empty
// or malformed input.
func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
