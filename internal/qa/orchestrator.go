// Package qa implements the question-answering orchestration flow: expand
// the question into retrieval sub-queries, query the vector datastore,
// filter the retrieved chunks by relevance, call the completion API, and —
// for chat-originated questions — deliver an acknowledgement and the final
// answer through the messaging relay before persisting the reply.
package qa

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mekonggpt/retrieval-go/internal/creds"
	"github.com/mekonggpt/retrieval-go/internal/datastore"
	"github.com/mekonggpt/retrieval-go/internal/logging"
)

// defaultAckText is the acknowledgement message sent to a chat user before
// retrieval begins. Answering typically takes a couple of minutes.
const defaultAckText = "Vui lòng đợi, tôi thường mất khoảng 2 phút để đưa ra câu trả lời."

// Completer is the slice of the LLM client the orchestrator needs.
// *llm.Client satisfies it; tests inject a fake.
type Completer interface {
	// Answer generates an answer for question given supporting chunks.
	Answer(ctx context.Context, question string, chunks []string) (string, error)
	// ExpandQueries turns one question into retrieval sub-queries.
	ExpandQueries(ctx context.Context, question string) ([]string, error)
}

// Messenger is the slice of the messaging relay the orchestrator needs.
// *zalo.Client satisfies it; tests inject a fake.
type Messenger interface {
	// Send delivers one text message to the chat user.
	Send(ctx context.Context, userID, text string) error
}

// Config holds the orchestrator's collaborators and knobs.
type Config struct {
	// Datastore is the vector store to retrieve chunks from.
	Datastore datastore.Datastore
	// Completer generates sub-queries and the final answer.
	Completer Completer
	// Messenger relays chat messages. May be nil when the deployment has
	// no chat integration; senderID must then be empty on every Ask.
	Messenger Messenger
	// Creds persists the reply log.
	Creds creds.Store
	// AckText overrides the acknowledgement message text.
	AckText string
	// ScoreThreshold overrides the relevance cutoff (default 0.75).
	ScoreThreshold float32
}

// Orchestrator runs the answer flow. Constructed once at startup and shared
// by the HTTP handler and the background task pool.
type Orchestrator struct {
	store     datastore.Datastore
	completer Completer
	messenger Messenger
	creds     creds.Store
	ackText   string
	threshold float32
}

// New constructs an Orchestrator from the given config.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil || cfg.Datastore == nil {
		return nil, fmt.Errorf("qa: datastore must not be nil")
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("qa: completer must not be nil")
	}
	if cfg.Creds == nil {
		return nil, fmt.Errorf("qa: credential store must not be nil")
	}
	ack := cfg.AckText
	if ack == "" {
		ack = defaultAckText
	}
	threshold := cfg.ScoreThreshold
	if threshold == 0 {
		threshold = DefaultScoreThreshold
	}

	return &Orchestrator{
		store:     cfg.Datastore,
		completer: cfg.Completer,
		messenger: cfg.Messenger,
		creds:     cfg.Creds,
		ackText:   ack,
		threshold: threshold,
	}, nil
}

// Ask answers one question. When senderID is non-empty the flow additionally
// sends an acknowledgement before retrieval and the answer after completion,
// each send acquiring its own access token. A failure at any stage aborts
// the remaining sequence — there is no retry and no partial recovery, so a
// failure after the acknowledgement leaves the chat user without an answer.
// The reply record is appended only after the answer has been delivered.
func (o *Orchestrator) Ask(ctx context.Context, question, senderID string) (string, error) {
	log := logging.FromContext(ctx)

	if senderID != "" {
		if o.messenger == nil {
			return "", fmt.Errorf("qa: no messenger configured for sender %s", senderID)
		}
		if err := o.messenger.Send(ctx, senderID, o.ackText); err != nil {
			return "", fmt.Errorf("qa: acknowledgement send failed: %w", err)
		}
		log.Info("qa: acknowledgement sent", slog.String("sender", senderID))
	}

	subQueries, err := o.completer.ExpandQueries(ctx, question)
	if err != nil {
		return "", fmt.Errorf("qa: query expansion failed: %w", err)
	}
	log.Info("qa: query expanded", slog.Int("sub_queries", len(subQueries)))

	queries := make([]datastore.Query, 0, len(subQueries))
	for _, q := range subQueries {
		queries = append(queries, datastore.Query{Query: q})
	}

	results, err := o.store.Query(ctx, queries)
	if err != nil {
		return "", fmt.Errorf("qa: retrieval failed: %w", err)
	}

	chunks := FilterByScore(results, o.threshold)
	log.Info("qa: chunks filtered", slog.Int("passed", len(chunks)))

	answer, err := o.completer.Answer(ctx, question, chunks)
	if err != nil {
		return "", fmt.Errorf("qa: completion failed: %w", err)
	}

	if senderID != "" {
		if err := o.messenger.Send(ctx, senderID, answer); err != nil {
			return "", fmt.Errorf("qa: answer send failed: %w", err)
		}
		log.Info("qa: answer sent", slog.String("sender", senderID))
	}

	if err := o.creds.AppendReply(ctx, question, answer); err != nil {
		return "", fmt.Errorf("qa: persist reply failed: %w", err)
	}

	return answer, nil
}
