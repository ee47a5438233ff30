// Package server — documents.go contains the datastore CRUD handlers:
// upsert, upsert-file, query, and delete.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mekonggpt/retrieval-go/internal/datastore"
	"github.com/mekonggpt/retrieval-go/internal/ingest"
	"github.com/mekonggpt/retrieval-go/internal/logging"
)

// internalErrorDetail is the fixed message returned on any handler failure.
// The full error is logged server-side, never sent to the client.
const internalErrorDetail = "Internal Service Error"

// maxUploadBytes bounds the multipart form held in memory for /upsert-file.
const maxUploadBytes = 32 << 20

// writeJSON encodes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body {"detail": msg} with the given status.
func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// handleUpsert handles POST /upsert. The documents are chunked, embedded,
// and stored; the response carries the assigned document IDs. Document
// identity is not content-addressed: identical payloads yield fresh IDs.
func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ids, err := s.store.Upsert(r.Context(), req.Documents)
	if err != nil {
		log.Error("upsert failed", slog.Any("error", err))
		writeError(w, internalErrorDetail, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, upsertResponse{IDs: ids})
}

// handleUpsertFile handles POST /upsert-file: a multipart form with a file
// field and an optional metadata JSON string. Unparseable metadata falls
// back to a generic file source rather than rejecting the upload.
func (s *Server) handleUpsertFile(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	meta := ingest.ParseMetadata(r.FormValue("metadata"))

	doc, err := ingest.DocumentFromFile(header.Filename, file, meta)
	if err != nil {
		log.Error("file extraction failed", slog.Any("error", err))
		writeError(w, internalErrorDetail, http.StatusInternalServerError)
		return
	}

	ids, err := s.store.Upsert(r.Context(), []datastore.Document{doc})
	if err != nil {
		log.Error("upsert-file failed", slog.Any("error", err))
		writeError(w, internalErrorDetail, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, upsertResponse{IDs: ids})
}

// handleQuery handles POST /sub/query. The sub-scoped path is kept so the
// query operation can be exposed alone in an LLM-plugin OpenAPI schema.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	results, err := s.store.Query(r.Context(), req.Queries)
	if err != nil {
		log.Error("query failed", slog.Any("error", err))
		writeError(w, internalErrorDetail, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{Results: results})
}

// handleDelete handles DELETE /delete. A body naming none of ids, filter,
// or delete_all is rejected with 400 regardless of any other content.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.IDs) == 0 && req.Filter == nil && !req.DeleteAll {
		writeError(w, "One of ids, filter, or delete_all is required", http.StatusBadRequest)
		return
	}

	success, err := s.store.Delete(r.Context(), req.IDs, req.Filter, req.DeleteAll)
	if err != nil {
		if errors.Is(err, datastore.ErrNoDeleteCriteria) {
			writeError(w, "One of ids, filter, or delete_all is required", http.StatusBadRequest)
			return
		}
		log.Error("delete failed", slog.Any("error", err))
		writeError(w, internalErrorDetail, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{Success: success})
}

// handleReplies handles GET /replies: the most recent reply-log records,
// newest first. Capped at 100 entries.
func (s *Server) handleReplies(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	records, err := s.creds.RecentReplies(r.Context(), 100)
	if err != nil {
		log.Error("list replies failed", slog.Any("error", err))
		writeError(w, internalErrorDetail, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, repliesResponse{Replies: records})
}
