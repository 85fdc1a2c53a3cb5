package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"squid/config"
	"squid/models"
	"squid/ranking"
	"squid/tokenizer"
)

// maxRequestBody bounds the size of an add request body.
const maxRequestBody = 1 << 20

type Store interface {
	Set(record models.Sentence) error
}

type AddRequest struct {
	Sentence string `json:"sentence"`
	// Lifetime in seconds, zero keeps the sentence forever.
	Lifetime uint64 `json:"lifetime"`
}

type Server struct {
	logger    log.Logger
	cfg       config.ServiceConfig
	store     Store
	ranking   *ranking.Map
	tokenizer *tokenizer.Tokenizer
	exclude   map[string]struct{}
	now       func() time.Time

	mux      *http.ServeMux
	requests *prometheus.CounterVec
}

func New(logger log.Logger, cfg config.ServiceConfig, store Store, rank *ranking.Map, tok *tokenizer.Tokenizer, gatherer prometheus.Gatherer, registerer prometheus.Registerer) *Server {
	s := &Server{
		logger:    log.With(logger, "component", "server"),
		cfg:       cfg,
		store:     store,
		ranking:   rank,
		tokenizer: tok,
		exclude:   make(map[string]struct{}, len(cfg.Exclude)),
		now:       time.Now,
		mux:       http.NewServeMux(),
	}

	for _, w := range cfg.Exclude {
		s.exclude[w] = struct{}{}
	}

	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "squid_http_requests_total",
		Help: "Total number of handled requests by route and status code.",
	}, []string{"route", "code"})

	if registerer != nil {
		registerer.MustRegister(s.requests)
	}

	s.mux.HandleFunc("POST /sentences", s.handleAdd)
	s.mux.HandleFunc("GET /leaderboard", s.handleLeaderboard)

	if gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Feed adds the tokens of a stored sentence to the leaderboard, honouring
// the configured message type and exclude list.
func (s *Server) Feed(tokens string) {
	for _, token := range strings.Fields(tokens) {
		if _, ok := s.exclude[token]; ok {
			continue
		}

		hashtag := strings.HasPrefix(token, "#")

		switch {
		case s.cfg.MessageType == config.MessageHashtag && !hashtag:
			continue
		case s.cfg.MessageType == config.MessageWord && hashtag:
			continue
		}

		s.ranking.Add(token)
	}
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req AddRequest

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.fail(w, "add", http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Lifetime > models.MaxLifetime {
		s.fail(w, "add", http.StatusBadRequest, "lifetime out of range")
		return
	}

	tokens, err := s.tokenizer.Tokenize(req.Sentence)

	if err != nil {
		level.Error(s.logger).Log("msg", "failed to tokenize sentence", "sentence", req.Sentence, "err", err)
		s.fail(w, "add", http.StatusBadRequest, "failed to tokenize sentence")
		return
	}

	sentence := models.Sentence{
		UID:          uuid.New().String(),
		OriginalText: req.Sentence,
		Tokens:       tokens,
		Lang:         s.cfg.Lang,
		Lifetime:     req.Lifetime,
	}

	if ttl, ok := sentence.TTL(); ok {
		sentence.ExpireAt = s.now().Add(ttl).Unix()
	}

	if err := s.store.Set(sentence); err != nil {
		level.Error(s.logger).Log("msg", "failed to store sentence", "id", sentence.UID, "err", err)
		s.fail(w, "add", http.StatusInternalServerError, "failed to store sentence")
		return
	}

	s.Feed(tokens)

	s.requests.WithLabelValues("add", strconv.Itoa(http.StatusCreated)).Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"id": sentence.UID})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	length := s.cfg.LeaderboardLength

	if v := r.URL.Query().Get("length"); v != "" {
		n, err := strconv.Atoi(v)

		if err != nil || n <= 0 {
			s.fail(w, "leaderboard", http.StatusBadRequest, "invalid length")
			return
		}

		length = n
	}

	s.requests.WithLabelValues("leaderboard", strconv.Itoa(http.StatusOK)).Inc()
	writeJSON(w, http.StatusOK, map[string][]ranking.Entry{"word": s.ranking.Rank(length)})
}

func (s *Server) fail(w http.ResponseWriter, route string, code int, msg string) {
	s.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
