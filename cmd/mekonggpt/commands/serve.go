package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mekonggpt/retrieval-go/internal/creds"
	"github.com/mekonggpt/retrieval-go/internal/datastore"
	"github.com/mekonggpt/retrieval-go/internal/llm"
	"github.com/mekonggpt/retrieval-go/internal/logging"
	"github.com/mekonggpt/retrieval-go/internal/qa"
	"github.com/mekonggpt/retrieval-go/internal/server"
	"github.com/mekonggpt/retrieval-go/internal/worker"
	"github.com/mekonggpt/retrieval-go/internal/zalo"
)

// poolDrainTimeout bounds the wait for in-flight webhook tasks at shutdown.
const poolDrainTimeout = 30 * time.Second

// NewServeCmd constructs the `mekonggpt serve` command, which starts the
// retrieval HTTP server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MekongGPT retrieval HTTP server",
		Long: `Start the retrieval HTTP server.

The server exposes document upsert/query/delete endpoints, a synchronous
question-answering endpoint, and the Zalo chat webhook.

Required environment variables:
  BEARER_TOKEN         Shared secret for protected endpoints
  OPENAI_API_KEY       Completion and embedding API key

Optional environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: mekonggpt-docs)
  REDIS_URL            Remote credential store URL; SQLite fallback if unset
  CREDS_DB             SQLite credential store path (default: ~/.mekonggpt/creds.db)
  ZALO_SECRET_KEY      Chat relay OAuth secret; relay disabled if unset
  ZALO_APP_ID          Chat application identifier

Examples:
  mekonggpt serve
  mekonggpt serve --port 9000
  REDIS_URL=redis://localhost:6379/0 mekonggpt serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			bearerToken := os.Getenv("BEARER_TOKEN")
			if bearerToken == "" {
				return fmt.Errorf("serve: BEARER_TOKEN must be set")
			}

			completer, err := llm.New(&llm.Config{
				APIKey:         os.Getenv("OPENAI_API_KEY"),
				BaseURL:        os.Getenv("OPENAI_BASE_URL"),
				Model:          os.Getenv("OPENAI_MODEL"),
				EmbeddingModel: os.Getenv("EMBEDDING_MODEL"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise completion client: %w", err)
			}

			store, err := buildDatastore(ctx, completer, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = store.Close() }()

			credStore, credsPinger, err := buildCredStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = credStore.Close() }()

			// The chat relay is optional. Without a secret key the server
			// still answers /querygpt; only chat delivery is disabled.
			var messenger qa.Messenger
			if secretKey := os.Getenv("ZALO_SECRET_KEY"); secretKey != "" {
				relay, err := zalo.New(credStore, &zalo.Config{
					SecretKey:  secretKey,
					AppID:      os.Getenv("ZALO_APP_ID"),
					OAuthURL:   os.Getenv("ZALO_OAUTH_URL"),
					MessageURL: os.Getenv("ZALO_MESSAGE_URL"),
				})
				if err != nil {
					return fmt.Errorf("serve: failed to initialise chat relay: %w", err)
				}
				messenger = relay
				log.Info("chat relay enabled")
			} else {
				log.Info("chat relay disabled", slog.String("reason", "ZALO_SECRET_KEY not set"))
			}

			orch, err := qa.New(&qa.Config{
				Datastore: store,
				Completer: completer,
				Messenger: messenger,
				Creds:     credStore,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise orchestrator: %w", err)
			}

			pool := worker.NewPool(getEnvInt("MGPT_WORKERS", 0), 0, log)
			defer func() {
				drainCtx, cancel := context.WithTimeout(context.Background(), poolDrainTimeout)
				defer cancel()
				if err := pool.Stop(drainCtx); err != nil {
					log.Warn("worker pool drain timed out", slog.Any("error", err))
				}
			}()

			pingers := buildPingers(store, credsPinger)

			srv, err := server.New(store, credStore, orch, pool, &server.Config{
				Host:         host,
				Port:         port,
				Logger:       log,
				BearerToken:  bearerToken,
				IndexFile:    getEnvOrDefault("MGPT_INDEX_FILE", "web/index.html"),
				WellKnownDir: getEnvOrDefault("MGPT_STATIC_DIR", ".well-known"),
				RateLimit:    getEnvFloat("MGPT_RATE_LIMIT", 0),
				RateBurst:    getEnvInt("MGPT_RATE_BURST", 0),
				Pingers:      pingers,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", getEnvOrDefault("MGPT_HOST", "0.0.0.0"), "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", getEnvInt("MGPT_PORT", 8000), "TCP port to listen on")

	return cmd
}

// buildDatastore connects to Qdrant using env-derived settings.
func buildDatastore(ctx context.Context, embedder datastore.Embedder, log *slog.Logger) (*datastore.QdrantStore, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", "mekonggpt-docs")

	store, err := datastore.NewQdrantStore(ctx, embedder, &datastore.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		VectorSize: uint64(getEnvInt("EMBEDDING_DIMENSIONS", 1536)), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}

	log.Info("qdrant store ready",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("collection", collection),
	)
	return store, nil
}

// buildCredStore opens the credential store: Redis when REDIS_URL is set,
// otherwise a local SQLite file. Returns the store plus its readiness probe.
func buildCredStore(ctx context.Context, log *slog.Logger) (creds.Store, server.Pinger, error) {
	if url := os.Getenv("REDIS_URL"); url != "" {
		rs, err := creds.NewRedisStore(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Redis credential store: %w", err)
		}
		log.Info("credential store ready", slog.String("backend", "redis"))
		return rs, server.NewRedisPinger(rs.Client()), nil
	}

	path := os.Getenv("CREDS_DB")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve credential store path: %w", err)
		}
		dir := filepath.Join(home, ".mekonggpt")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		path = filepath.Join(dir, "creds.db")
	}

	ss, err := creds.OpenSQLite(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open SQLite credential store: %w", err)
	}
	log.Info("credential store ready",
		slog.String("backend", "sqlite"),
		slog.String("path", path),
	)
	return ss, server.NewCredsPinger("sqlite", ss.Ping), nil
}

// buildPingers assembles the readiness probes for GET /api/ready.
func buildPingers(store *datastore.QdrantStore, credsPinger server.Pinger) []server.Pinger {
	pingers := []server.Pinger{server.NewQdrantPinger(store.Client())}
	if credsPinger != nil {
		pingers = append(pingers, credsPinger)
	}
	return pingers
}
