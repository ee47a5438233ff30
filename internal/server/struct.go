package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mekonggpt/retrieval-go/internal/creds"
	"github.com/mekonggpt/retrieval-go/internal/datastore"
	"github.com/mekonggpt/retrieval-go/internal/worker"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 0.0.0.0).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must cover a full synchronous /querygpt turn.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	Logger *slog.Logger
	// BearerToken is the shared secret required on all protected routes.
	// Required: the server refuses to construct without one.
	BearerToken string
	// IndexFile is the HTML file served at / (domain-verification
	// artifact). Default: web/index.html.
	IndexFile string
	// WellKnownDir is the directory served under /.well-known/ for
	// platform verification files. Default: .well-known.
	WellKnownDir string
	// RateLimit is the sustained request rate allowed per IP on mutating
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// MetricsRegistry receives the server's Prometheus metrics.
	// Defaults to prometheus.DefaultRegisterer; tests inject a fresh registry.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// asker is the interface the handlers call to answer a question.
// *qa.Orchestrator satisfies it; tests inject a fake.
type asker interface {
	// Ask answers question, relaying through chat when senderID is set.
	Ask(ctx context.Context, question, senderID string) (string, error)
}

// submitter is the interface the webhook handler uses to enqueue background
// work. *worker.Pool satisfies it; tests inject a fake.
type submitter interface {
	// Submit enqueues a task without blocking; false means dropped.
	Submit(task worker.Task) bool
}

// Server is the HTTP surface of the retrieval service.
type Server struct {
	// store is the vector datastore facade behind the CRUD endpoints.
	store datastore.Datastore
	// creds backs the replies listing endpoint.
	creds creds.Store
	// asker runs the question-answering orchestration.
	asker asker
	// pool receives the webhook's background work.
	pool submitter
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// upsertRequest is the JSON body for POST /upsert.
type upsertRequest struct {
	// Documents is the batch of documents to chunk, embed, and store.
	Documents []datastore.Document `json:"documents"`
}

// upsertResponse is the JSON response for POST /upsert and POST /upsert-file.
type upsertResponse struct {
	// IDs is the list of assigned document identifiers, in input order.
	IDs []string `json:"ids"`
}

// queryRequest is the JSON body for POST /sub/query.
type queryRequest struct {
	// Queries is the batch of retrieval sub-queries.
	Queries []datastore.Query `json:"queries"`
}

// queryResponse is the JSON response for POST /sub/query.
type queryResponse struct {
	// Results holds one scored result set per sub-query, in input order.
	Results []datastore.QueryResult `json:"results"`
}

// deleteRequest is the JSON body for DELETE /delete. At least one of the
// three criteria must be present.
type deleteRequest struct {
	// IDs lists document identifiers to delete.
	IDs []string `json:"ids,omitempty"`
	// Filter deletes every chunk matching the filter.
	Filter *datastore.QueryFilter `json:"filter,omitempty"`
	// DeleteAll wipes the whole collection.
	DeleteAll bool `json:"delete_all,omitempty"`
}

// deleteResponse is the JSON response for DELETE /delete.
type deleteResponse struct {
	Success bool `json:"success"`
}

// askQuery is one question entry in a POST /querygpt body.
type askQuery struct {
	Query string `json:"query"`
}

// askRequest is the JSON body for POST /querygpt. When SenderID is present
// the answer is additionally relayed to that chat user.
type askRequest struct {
	Queries  []askQuery `json:"queries"`
	SenderID string     `json:"senderId,omitempty"`
}

// askResponse is the JSON response for POST /querygpt.
type askResponse struct {
	Result string `json:"result"`
}

// webhookRequest is the chat-platform callback shape for POST /zaloquery.
type webhookRequest struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

// repliesResponse is the JSON response for GET /replies.
type repliesResponse struct {
	Replies []creds.ReplyRecord `json:"replies"`
}
