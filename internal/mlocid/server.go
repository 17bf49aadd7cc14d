// Package mlocid is a self-contained build of the mlocid flashcard
// application: server-rendered pages, a JSON API under /api, SM-2 study
// scheduling and Mnemosyne import. The browser suite runs against it when no
// external deployment is configured.
package mlocid

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kuitang/mlocid-e2e/internal/obs"
	"github.com/kuitang/mlocid-e2e/internal/ratelimit"
)

// DefaultSessionDuration is how long a login stays valid.
const DefaultSessionDuration = 24 * time.Hour

// Options configures a Server. Zero values select production defaults.
type Options struct {
	SessionDuration time.Duration
	RateLimit       ratelimit.Config
	Hasher          PasswordHasher
	Now             func() time.Time
}

// Server serves the mlocid pages and API.
type Server struct {
	store    *Store
	renderer *Renderer
	limiter  *ratelimit.RateLimiter
	mux      *http.ServeMux
}

// New builds a Server with an empty in-memory store.
func New(opts Options) (*Server, error) {
	if opts.SessionDuration <= 0 {
		opts.SessionDuration = DefaultSessionDuration
	}
	if opts.RateLimit.RPS <= 0 || opts.RateLimit.Burst <= 0 {
		opts.RateLimit = ratelimit.DefaultConfig
	}

	renderer, err := NewRenderer(templatesFS())
	if err != nil {
		return nil, fmt.Errorf("mlocid: load templates: %w", err)
	}

	s := &Server{
		store:    NewStore(opts.Hasher, opts.SessionDuration, opts.Now),
		renderer: renderer,
		limiter:  ratelimit.NewRateLimiter(opts.RateLimit),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	limited := ratelimit.RateLimitMiddleware(s.limiter, ratelimit.ClientIP)

	s.mux.HandleFunc("GET /{$}", s.handleHome)
	s.mux.HandleFunc("GET /login", s.handleLoginPage)
	s.mux.HandleFunc("GET /register", s.handleRegisterPage)
	s.mux.HandleFunc("GET /cards", s.requirePageAuth(s.handleCardsPage))
	s.mux.HandleFunc("GET /study", s.requirePageAuth(s.handleStudyPage))
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS())))
	s.mux.HandleFunc("GET /health", handleHealth)

	s.mux.Handle("POST /api/register", limited(http.HandlerFunc(s.handleRegister)))
	s.mux.Handle("POST /api/login", limited(http.HandlerFunc(s.handleLogin)))
	s.mux.HandleFunc("POST /api/logout", s.handleLogout)
	s.mux.HandleFunc("GET /api/user", s.requireAPIAuth(s.handleUser))

	s.mux.HandleFunc("GET /api/flashcards", s.requireAPIAuth(s.handleListCards))
	s.mux.HandleFunc("POST /api/flashcards", s.requireAPIAuth(s.handleCreateCard))
	s.mux.HandleFunc("GET /api/flashcards/{id}", s.requireAPIAuth(s.handleGetCard))
	s.mux.HandleFunc("PUT /api/flashcards/{id}", s.requireAPIAuth(s.handleUpdateCard))
	s.mux.HandleFunc("DELETE /api/flashcards/{id}", s.requireAPIAuth(s.handleDeleteCard))
	s.mux.HandleFunc("POST /api/import/mnemosyne", s.requireAPIAuth(s.handleImport))

	s.mux.HandleFunc("GET /api/study/due", s.requireAPIAuth(s.handleDueCards))
	s.mux.HandleFunc("POST /api/study/review/{id}", s.requireAPIAuth(s.handleReview))
}

// Handler returns the root handler with request correlation and access logging.
func (s *Server) Handler() http.Handler {
	return obs.RequestContextMiddleware(obs.AccessLogMiddleware("mlocid", s.mux))
}

// Close stops background work.
func (s *Server) Close() {
	s.limiter.Stop()
}
