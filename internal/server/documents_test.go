package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mekonggpt/retrieval-go/internal/creds"
	"github.com/mekonggpt/retrieval-go/internal/datastore"
)

// doJSON performs an authenticated JSON request against the test server.
func doJSON(t *testing.T, env *testEnv, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	return w
}

// TestHandleUpsert verifies a document batch returns its assigned IDs.
func TestHandleUpsert(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.store.upsertIDs = []string{"doc-1", "doc-2"}

	w := doJSON(t, env, http.MethodPost, "/upsert",
		`{"documents":[{"text":"first"},{"text":"second"}]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp upsertResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.IDs) != 2 || resp.IDs[0] != "doc-1" {
		t.Errorf("expected [doc-1 doc-2], got %v", resp.IDs)
	}
}

// TestHandleUpsert_BadBody verifies malformed JSON is rejected with 400
// before any datastore call.
func TestHandleUpsert_BadBody(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	w := doJSON(t, env, http.MethodPost, "/upsert", `{not json`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if env.store.upsertCalls != 0 {
		t.Errorf("expected no datastore calls, got %d", env.store.upsertCalls)
	}
}

// TestHandleUpsert_StoreError verifies a datastore failure maps to 500 with
// the fixed detail message, never the raw error.
func TestHandleUpsert_StoreError(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.store.upsertErr = errors.New("qdrant connection refused at 10.0.0.5")

	w := doJSON(t, env, http.MethodPost, "/upsert", `{"documents":[{"text":"x"}]}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Errorf("expected internal error detail hidden, got %q", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), internalErrorDetail) {
		t.Errorf("expected fixed detail, got %q", w.Body.String())
	}
}

// TestHandleUpsertFile verifies a multipart upload with a metadata field.
func TestHandleUpsertFile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.store.upsertIDs = []string{"file-doc"}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte("file body text"))
	mw.WriteField("metadata", `{"source":"email","author":"lan"}`)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upsert-file", &buf)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp upsertResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.IDs) != 1 || resp.IDs[0] != "file-doc" {
		t.Errorf("expected [file-doc], got %v", resp.IDs)
	}
}

// TestHandleUpsertFile_MissingFile verifies a form without a file field is
// rejected with 400.
func TestHandleUpsertFile_MissingFile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("metadata", `{}`)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upsert-file", &buf)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// TestHandleQuery verifies the retrieval endpoint returns one result set
// per sub-query.
func TestHandleQuery(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.store.queryResults = []datastore.QueryResult{
		{Query: "q1", Results: []datastore.ScoredChunk{
			{Chunk: datastore.Chunk{Text: "hit"}, Score: 0.9},
		}},
	}

	w := doJSON(t, env, http.MethodPost, "/sub/query", `{"queries":[{"query":"q1"}]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp queryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Query != "q1" {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
}

// TestHandleDelete_NoCriteria verifies a delete body naming none of ids,
// filter, or delete_all is rejected with 400 and never hits the store.
func TestHandleDelete_NoCriteria(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	w := doJSON(t, env, http.MethodDelete, "/delete", `{}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if env.store.deleteCalls != 0 {
		t.Errorf("expected no datastore calls, got %d", env.store.deleteCalls)
	}
}

// TestHandleDelete_ByIDs verifies the happy path.
func TestHandleDelete_ByIDs(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	w := doJSON(t, env, http.MethodDelete, "/delete", `{"ids":["doc-1"]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp deleteResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Error("expected success true")
	}
}

// TestHandleDelete_DeleteAll verifies delete_all alone is a valid criterion.
func TestHandleDelete_DeleteAll(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	w := doJSON(t, env, http.MethodDelete, "/delete", `{"delete_all":true}`)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

// TestHandleReplies verifies the reply-log listing endpoint.
func TestHandleReplies(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.creds.replies = []creds.ReplyRecord{
		{ID: "r2", Query: "newest", Answer: "a2"},
		{ID: "r1", Query: "older", Answer: "a1"},
	}

	req := httptest.NewRequest(http.MethodGet, "/replies", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp repliesResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Replies) != 2 || resp.Replies[0].Query != "newest" {
		t.Errorf("unexpected replies: %+v", resp.Replies)
	}
}
