package server

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mekonggpt/retrieval-go/internal/creds"
	"github.com/mekonggpt/retrieval-go/internal/datastore"
	"github.com/mekonggpt/retrieval-go/internal/worker"
)

// okHandler is a trivial downstream handler for middleware tests.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// fakeDatastore records calls and returns canned results.
type fakeDatastore struct {
	upsertIDs    []string
	upsertErr    error
	upsertCalls  int
	queryResults []datastore.QueryResult
	queryErr     error
	deleteOK     bool
	deleteErr    error
	deleteCalls  int
}

func (f *fakeDatastore) Upsert(ctx context.Context, docs []datastore.Document) ([]string, error) {
	f.upsertCalls++
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	if f.upsertIDs != nil {
		return f.upsertIDs, nil
	}
	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = "id-" + string(rune('a'+i))
	}
	return ids, nil
}

func (f *fakeDatastore) Query(ctx context.Context, queries []datastore.Query) ([]datastore.QueryResult, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.queryResults, nil
}

func (f *fakeDatastore) Delete(ctx context.Context, ids []string, filter *datastore.QueryFilter, deleteAll bool) (bool, error) {
	f.deleteCalls++
	if f.deleteErr != nil {
		return false, f.deleteErr
	}
	return f.deleteOK, nil
}

func (f *fakeDatastore) Close() error { return nil }

// fakeCredsStore is an in-memory reply log for handler tests.
type fakeCredsStore struct {
	replies    []creds.ReplyRecord
	repliesErr error
}

func (f *fakeCredsStore) RefreshToken(ctx context.Context) (string, error) {
	return "", creds.ErrNoRefreshToken
}

func (f *fakeCredsStore) SetRefreshToken(ctx context.Context, token string) error { return nil }

func (f *fakeCredsStore) AppendReply(ctx context.Context, query, answer string) error {
	f.replies = append(f.replies, creds.ReplyRecord{Query: query, Answer: answer})
	return nil
}

func (f *fakeCredsStore) RecentReplies(ctx context.Context, n int) ([]creds.ReplyRecord, error) {
	if f.repliesErr != nil {
		return nil, f.repliesErr
	}
	return f.replies, nil
}

func (f *fakeCredsStore) Close() error { return nil }

// fakeAsker records Ask calls and returns a canned answer.
type fakeAsker struct {
	answer    string
	err       error
	questions []string
	senders   []string
}

func (f *fakeAsker) Ask(ctx context.Context, question, senderID string) (string, error) {
	f.questions = append(f.questions, question)
	f.senders = append(f.senders, senderID)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// inlineSubmitter runs submitted tasks synchronously so the test observes
// the side effects without waiting. full simulates a saturated queue.
type inlineSubmitter struct {
	full      bool
	submitted int
}

func (s *inlineSubmitter) Submit(task worker.Task) bool {
	if s.full {
		return false
	}
	s.submitted++
	_ = task(context.Background())
	return true
}

// failingPinger always reports its dependency down.
type failingPinger struct{ name string }

func (p failingPinger) Name() string                   { return p.name }
func (p failingPinger) Ping(ctx context.Context) error { return errors.New(p.name + " unreachable") }

// okPinger always reports its dependency healthy.
type okPinger struct{ name string }

func (p okPinger) Name() string                   { return p.name }
func (p okPinger) Ping(ctx context.Context) error { return nil }

// testEnv bundles a Server with the fakes behind it.
type testEnv struct {
	srv   *Server
	store *fakeDatastore
	creds *fakeCredsStore
	asker *fakeAsker
	pool  *inlineSubmitter
}

// newTestEnv builds a Server on fakes with a hermetic metrics registry.
// mutate tweaks the config before construction.
func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		store: &fakeDatastore{deleteOK: true},
		creds: &fakeCredsStore{},
		asker: &fakeAsker{answer: "the answer"},
		pool:  &inlineSubmitter{},
	}

	reg := prometheus.NewRegistry()
	cfg := &Config{
		BearerToken:     "secret",
		RateLimit:       1000,
		RateBurst:       1000,
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	}
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(env.store, env.creds, env.asker, env.pool, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(srv.stopRL)
	env.srv = srv
	return env
}
