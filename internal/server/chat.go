// Package server — chat.go contains the question-answering handlers:
// the synchronous /querygpt endpoint and the /zaloquery chat webhook.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mekonggpt/retrieval-go/internal/logging"
)

// webhookTaskTimeout bounds a single background answer turn. Retrieval plus
// completion normally finishes within two minutes; five leaves headroom.
const webhookTaskTimeout = 5 * time.Minute

// handleQueryGPT handles POST /querygpt. The request carries a list of query
// entries; only the last one is answered (conversational clients send the
// whole history and the last entry is the live question). When senderId is
// present the answer is additionally relayed to that chat user.
func (s *Server) handleQueryGPT(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, "queries must not be empty", http.StatusBadRequest)
		return
	}

	question := req.Queries[len(req.Queries)-1].Query

	start := time.Now()
	answer, err := s.asker.Ask(r.Context(), question, req.SenderID)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.askTurnsTotal.WithLabelValues(outcomeError).Inc()
		s.metrics.askDurationSeconds.WithLabelValues(outcomeError).Observe(elapsed.Seconds())
		log.Error("answer turn failed",
			slog.Any("error", err),
			slog.Duration("elapsed", elapsed))
		writeError(w, internalErrorDetail, http.StatusInternalServerError)
		return
	}
	s.metrics.askTurnsTotal.WithLabelValues(outcomeOK).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcomeOK).Observe(elapsed.Seconds())

	writeJSON(w, http.StatusOK, askResponse{Result: answer})
}

// handleZaloQuery handles POST /zaloquery, the unauthenticated chat-platform
// webhook. It acknowledges immediately with an empty 200 and runs the answer
// turn in the background; the platform retries on slow responses, so the
// handler must never wait on the turn.
func (s *Server) handleZaloQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	senderID := req.Sender.ID
	question := req.Message.Text
	if senderID == "" || question == "" {
		// Non-message events (follows, delivery receipts) arrive on the
		// same webhook. Acknowledge and ignore.
		writeJSON(w, http.StatusOK, map[string]string{})
		return
	}

	taskLog := log.With(slog.String("sender_id", senderID))
	ok := s.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, webhookTaskTimeout)
		defer cancel()
		ctx = logging.WithLogger(ctx, taskLog)
		if _, err := s.asker.Ask(ctx, question, senderID); err != nil {
			s.metrics.webhookTasksTotal.WithLabelValues(outcomeError).Inc()
			return err
		}
		s.metrics.webhookTasksTotal.WithLabelValues(outcomeOK).Inc()
		return nil
	})
	if !ok {
		s.metrics.webhookTasksTotal.WithLabelValues(outcomeDropped).Inc()
		taskLog.Warn("webhook task dropped, queue full")
	}

	writeJSON(w, http.StatusOK, map[string]string{})
}

// handleIndex serves the static landing page at /. The page exists for
// domain verification by chat and plugin platforms.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.cfg.IndexFile)
}
