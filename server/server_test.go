package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squid/config"
	"squid/models"
	"squid/ranking"
	"squid/tokenizer"
)

type memoryStore struct {
	mu      sync.Mutex
	records []models.Sentence
	err     error
}

func (m *memoryStore) Set(record models.Sentence) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	m.records = append(m.records, record)
	return nil
}

func newTestServer(cfg config.ServiceConfig, store Store) (*Server, *ranking.Map) {
	rank := ranking.NewMap()
	registry := prometheus.NewRegistry()

	return New(log.NewNopLogger(), cfg, store, rank, tokenizer.NewFrench(), registry, registry), rank
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sentences", strings.NewReader(body)))

	return rec
}

func TestAddSentence(t *testing.T) {
	store := &memoryStore{}
	srv, rank := newTestServer(config.Default().Service, store)

	rec := post(t, srv.Handler(), `{"sentence": "Le chat et le chien #Paris", "lifetime": 60}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, store.records, 1)
	stored := store.records[0]
	assert.Equal(t, resp["id"], stored.UID)
	assert.Equal(t, "chat chien #paris", stored.Tokens)
	assert.Equal(t, "fr", stored.Lang)
	assert.NotZero(t, stored.ExpireAt)

	ttl, ok := stored.TTL()
	assert.True(t, ok)
	assert.Equal(t, 60.0, ttl.Seconds())

	assert.Equal(t, 1, rank.Count("chat"))
	assert.Equal(t, 1, rank.Count("#paris"))
}

func TestAddSentenceAssignsDistinctIDs(t *testing.T) {
	store := &memoryStore{}
	srv, _ := newTestServer(config.Default().Service, store)

	for i := 0; i < 3; i++ {
		body, err := json.Marshal(AddRequest{Sentence: "bonjour " + faker.Word()})
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, post(t, srv.Handler(), string(body)).Code)
	}

	ids := map[string]struct{}{}
	for _, r := range store.records {
		ids[r.ID()] = struct{}{}
		_, ok := r.TTL()
		assert.False(t, ok)
	}
	assert.Len(t, ids, 3)
}

func TestAddSentenceErrors(t *testing.T) {
	store := &memoryStore{}
	srv, _ := newTestServer(config.Default().Service, store)

	assert.Equal(t, http.StatusBadRequest, post(t, srv.Handler(), `{"sentence":`).Code)
	assert.Equal(t, http.StatusBadRequest, post(t, srv.Handler(), `{"sentence": "et le la"}`).Code)

	store.err = errors.New("disk full")
	assert.Equal(t, http.StatusInternalServerError, post(t, srv.Handler(), `{"sentence": "bonjour"}`).Code)
}

func TestAddSentenceRejectsOversizedBody(t *testing.T) {
	store := &memoryStore{}
	srv, rank := newTestServer(config.Default().Service, store)

	body, err := json.Marshal(AddRequest{Sentence: "bonjour " + strings.Repeat("chat ", maxRequestBody/5)})
	require.NoError(t, err)
	require.Greater(t, len(body), maxRequestBody)

	assert.Equal(t, http.StatusBadRequest, post(t, srv.Handler(), string(body)).Code)
	assert.Empty(t, store.records)
	assert.Zero(t, rank.Len())
}

func TestAddSentenceLifetimeBounds(t *testing.T) {
	store := &memoryStore{}
	srv, _ := newTestServer(config.Default().Service, store)

	tooLong := fmt.Sprintf(`{"sentence": "bonjour", "lifetime": %d}`, models.MaxLifetime+1)
	assert.Equal(t, http.StatusBadRequest, post(t, srv.Handler(), tooLong).Code)
	assert.Empty(t, store.records)

	longest := fmt.Sprintf(`{"sentence": "bonjour", "lifetime": %d}`, models.MaxLifetime)
	require.Equal(t, http.StatusCreated, post(t, srv.Handler(), longest).Code)
	require.Len(t, store.records, 1)

	stored := store.records[0]
	ttl, ok := stored.TTL()
	assert.True(t, ok)
	assert.Positive(t, ttl)
	assert.Greater(t, stored.ExpireAt, time.Now().Unix())
}

func TestLeaderboard(t *testing.T) {
	srv, _ := newTestServer(config.Default().Service, &memoryStore{})

	srv.Feed("chat chien chat #paris chat chien")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leaderboard?length=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string][]ranking.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []ranking.Entry{{Word: "chat", Count: 3}, {Word: "chien", Count: 2}}, resp["word"])

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leaderboard?length=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedFilters(t *testing.T) {
	cfg := config.Default().Service
	cfg.Exclude = []string{"spam"}

	cfg.MessageType = config.MessageHashtag
	srv, rank := newTestServer(cfg, &memoryStore{})
	srv.Feed("chat #paris spam #lyon")
	assert.Equal(t, []ranking.Entry{{Word: "#lyon", Count: 1}, {Word: "#paris", Count: 1}}, rank.Rank(10))

	cfg.MessageType = config.MessageWord
	srv, rank = newTestServer(cfg, &memoryStore{})
	srv.Feed("chat #paris spam #lyon")
	assert.Equal(t, []ranking.Entry{{Word: "chat", Count: 1}}, rank.Rank(10))
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(config.Default().Service, &memoryStore{})
	post(t, srv.Handler(), `{"sentence": "bonjour"}`)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `squid_http_requests_total{code="201",route="add"} 1`)
}
