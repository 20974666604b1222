package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdempotencyStore struct {
	records map[string]string
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{records: map[string]string{}}
}

func (f *fakeIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := f.records[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.records[key]; ok {
		return false, nil
	}
	f.records[key] = value.(string)
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (f *fakeIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.records, key)
	}
	return nil
}

func idempotentRouter(store *fakeIdempotencyStore, hits *int) http.Handler {
	r := chi.NewRouter()
	r.Use(Idempotency(store, nil))
	r.Post("/api/v1/sync/orders", func(w http.ResponseWriter, req *http.Request) {
		*hits++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"order_number":42}}`))
	})
	r.Get("/api/v1/bootstrap", func(w http.ResponseWriter, req *http.Request) {
		*hits++
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestIdempotencyRequiresKeyOnSyncRoutes(t *testing.T) {
	hits := 0
	router := idempotentRouter(newFakeIdempotencyStore(), &hits)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/orders", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, hits)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	hits := 0
	store := newFakeIdempotencyStore()
	router := idempotentRouter(store, &hits)
	body := []byte(`{"id":"abc"}`)

	first := httptest.NewRequest(http.MethodPost, "/api/v1/sync/orders", bytes.NewReader(body))
	first.Header.Set("Idempotency-Key", "key-1")
	w1 := httptest.NewRecorder()
	router.ServeHTTP(w1, first)

	require.Equal(t, http.StatusCreated, w1.Code)
	require.Equal(t, 1, hits)

	second := httptest.NewRequest(http.MethodPost, "/api/v1/sync/orders", bytes.NewReader(body))
	second.Header.Set("Idempotency-Key", "key-1")
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, second)

	// The stored response comes back without touching the handler.
	require.Equal(t, http.StatusCreated, w2.Code)
	assert.Equal(t, 1, hits)
	assert.Equal(t, w1.Body.String(), w2.Body.String())
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	hits := 0
	router := idempotentRouter(newFakeIdempotencyStore(), &hits)

	first := httptest.NewRequest(http.MethodPost, "/api/v1/sync/orders", bytes.NewReader([]byte(`{"id":"abc"}`)))
	first.Header.Set("Idempotency-Key", "key-1")
	router.ServeHTTP(httptest.NewRecorder(), first)
	require.Equal(t, 1, hits)

	second := httptest.NewRequest(http.MethodPost, "/api/v1/sync/orders", bytes.NewReader([]byte(`{"id":"xyz"}`)))
	second.Header.Set("Idempotency-Key", "key-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, second)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, hits)
}

func TestIdempotencyIgnoresUnlistedRoutes(t *testing.T) {
	hits := 0
	router := idempotentRouter(newFakeIdempotencyStore(), &hits)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bootstrap", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, hits)
}
