package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/falconlabs/falcon/pkg/agent"
	"github.com/falconlabs/falcon/pkg/events"
	"github.com/falconlabs/falcon/pkg/ingest"
	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/metrics"
	"github.com/falconlabs/falcon/pkg/service"
	"github.com/falconlabs/falcon/pkg/storage"
)

// RepoIngestor clones and indexes a repository into the file store.
type RepoIngestor interface {
	Ingest(ctx context.Context, url string) (*ingest.Result, error)
}

// RepoAgent answers questions about an ingested repository as an event stream.
type RepoAgent interface {
	Run(ctx context.Context, repoID, question string, history []agent.HistoryMessage) <-chan agent.Event
}

// Deps bundles everything the HTTP surface serves.
type Deps struct {
	Wikis      *service.WikiService
	Chat       *service.ChatService
	Ingestor   RepoIngestor
	Agent      RepoAgent
	Bus        *events.Bus
	WikiStore  *storage.WikiStore
	RepoStore  *storage.RepoStore
	ActiveJobs func() int
	AppName    string
	Version    string
}

// Server implements the Falcon HTTP API
type Server struct {
	deps   Deps
	mux    *http.ServeMux
	http   *http.Server
	logger zerolog.Logger
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		mux:    http.NewServeMux(),
		logger: log.WithComponent("api"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Wiki generation surface
	s.mux.HandleFunc("POST /api/wikis", s.createWiki)
	s.mux.HandleFunc("GET /api/wikis", s.findWikis)
	s.mux.HandleFunc("GET /api/wikis/{id}", s.getWiki)
	s.mux.HandleFunc("GET /api/wikis/{id}/status", s.wikiStatus)
	s.mux.HandleFunc("GET /api/wikis/{id}/manifest", s.wikiManifest)
	s.mux.HandleFunc("GET /api/wikis/{id}/pages", s.listWikiPages)
	s.mux.HandleFunc("GET /api/wikis/{id}/pages/{slug...}", s.getWikiPage)
	s.mux.HandleFunc("DELETE /api/wikis/{id}", s.deleteWiki)
	s.mux.HandleFunc("GET /api/wikis/{id}/events", s.wikiEvents)

	// Wiki chat surface
	s.mux.HandleFunc("POST /api/wikis/{id}/chat", s.wikiChat)
	s.mux.HandleFunc("GET /api/wikis/{id}/chat/{conversation}", s.getConversation)

	// Repo exploration surface
	s.mux.HandleFunc("POST /repos", s.createRepo)
	s.mux.HandleFunc("GET /repos", s.listRepos)
	s.mux.HandleFunc("GET /repos/{id}", s.getRepo)
	s.mux.HandleFunc("DELETE /repos/{id}", s.deleteRepo)
	s.mux.HandleFunc("POST /repos/{id}/chat", s.repoChat)

	// Operational surface. Health answers on both paths: the wiki frontend
	// probes under /api, deploy tooling probes the root. The two readiness
	// probes differ: /ready reports the component registry, /api/ready pings
	// the stores live.
	s.mux.HandleFunc("GET /health", s.healthHandler)
	s.mux.HandleFunc("GET /api/health", s.healthHandler)
	s.mux.HandleFunc("GET /ready", metrics.ReadyHandler())
	s.mux.HandleFunc("GET /api/ready", s.readyHandler)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// Handler returns the fully wrapped request handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return withCORS(s.instrument(s.mux))
}

// Start starts the HTTP server and blocks until it is shut down
func (s *Server) Start(addr string) error {
	// No WriteTimeout: SSE streams stay open for the life of a generation run.
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("HTTP API listening")
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server, draining in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// instrument records request count and latency per method.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		metrics.APIRequestsTotal.WithLabelValues(r.Method, httpStatusClass(rec.status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", timer.Duration()).
			Msg("Request handled")
	})
}

// statusRecorder captures the response status for instrumentation. It
// forwards Flush so SSE handlers keep working behind the wrapper.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func httpStatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

// withCORS permits any origin. The frontend is served from a different
// port during development, so every response carries the CORS headers.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
