package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mekonggpt/retrieval-go/internal/datastore"
	"github.com/mekonggpt/retrieval-go/internal/ingest"
	"github.com/mekonggpt/retrieval-go/internal/llm"
	"github.com/mekonggpt/retrieval-go/internal/logging"
)

// NewIngestCmd constructs the `mekonggpt ingest` command, which loads local
// files into the vector store without going through the HTTP API.
func NewIngestCmd() *cobra.Command {
	var source string
	var author string
	var metadataJSON string

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest local documents into the vector store",
		Long: `Chunk, embed, and store local files in the Qdrant vector collection.

PDF files are text-extracted; everything else is read as plain text.
Metadata flags apply to every file in the batch; per-file source_id
defaults to the file name.

Required environment variables:
  OPENAI_API_KEY       Embedding API key

Optional environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: mekonggpt-docs)

Examples:
  mekonggpt ingest notes.txt report.pdf
  mekonggpt ingest --source email --author "Lan Pham" thread.txt
  mekonggpt ingest --metadata '{"source":"file","url":"https://example.com/doc"}' doc.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			embedder, err := llm.New(&llm.Config{
				APIKey:         os.Getenv("OPENAI_API_KEY"),
				BaseURL:        os.Getenv("OPENAI_BASE_URL"),
				EmbeddingModel: os.Getenv("EMBEDDING_MODEL"),
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedding client: %w", err)
			}

			store, err := buildDatastore(ctx, embedder, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = store.Close() }()

			meta := ingest.ParseMetadata(metadataJSON)
			if cmd.Flags().Changed("source") {
				meta.Source = datastore.Source(source)
			}
			if cmd.Flags().Changed("author") {
				meta.Author = author
			}

			docs := make([]datastore.Document, 0, len(args))
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}

				fileMeta := meta
				fileMeta.SourceID = filepath.Base(path)

				doc, err := ingest.DocumentFromFile(filepath.Base(path), f, fileMeta)
				_ = f.Close()
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", path, err)
				}

				log.Info("file loaded",
					slog.String("path", path),
					slog.Int("chars", len(doc.Text)),
				)
				docs = append(docs, doc)
			}

			ids, err := store.Upsert(ctx, docs)
			if err != nil {
				return fmt.Errorf("ingest: upsert failed: %w", err)
			}

			log.Info("ingestion complete", slog.Int("documents", len(ids)))
			out, _ := json.Marshal(ids)
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", string(datastore.SourceFile), "Document source label (email, file, chat)")
	cmd.Flags().StringVarP(&author, "author", "a", "", "Document author")
	cmd.Flags().StringVarP(&metadataJSON, "metadata", "m", "", "Document metadata as a JSON object (flags override individual fields)")

	return cmd
}
