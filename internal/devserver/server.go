package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Options configures a Server.
type Options struct {
	Addr       string // listen address, e.g. 127.0.0.1:8787
	CookieName string // session cookie name; default "session"

	// Rate limiting per client IP. Zero values use 10 req/sec, burst 20.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server serves the chat REST endpoints from a Backend.
type Server struct {
	opts        Options
	store       Backend
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// NewServer creates a new development server.
func NewServer(store Backend, logger *slog.Logger, opts Options) *Server {
	if opts.CookieName == "" {
		opts.CookieName = "session"
	}
	if opts.RateLimitRPS == 0 {
		opts.RateLimitRPS = 10
	}
	if opts.RateLimitBurst == 0 {
		opts.RateLimitBurst = 20
	}
	s := &Server{
		opts:   opts,
		store:  store,
		logger: logger,
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	s.rateLimiter = NewRateLimiter(s.opts.RateLimitRPS, s.opts.RateLimitBurst)
	r.Use(RateLimitMiddleware(s.rateLimiter))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.sessionMiddleware)

		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{id}/messages", s.handleLoadThread)
		r.Post("/conversations/start", s.handleStartConversation)
		r.Post("/conversations/delete", s.handleDeleteConversations)
		r.Post("/messages", s.handleSendMessage)
		r.Post("/messages/{id}/delete", s.handleDeleteMessage)
	})

	return r
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.opts.Addr
	if addr == "" {
		addr = "127.0.0.1:8787"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting dev server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down dev server")
	return s.server.Shutdown(ctx)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

type userKey struct{}

// sessionMiddleware resolves the session cookie to a user. The cookie
// value is the username; there is no password check.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(s.opts.CookieName)
		if err != nil || ck.Value == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		u, err := s.store.UserByName(ck.Value)
		if errors.Is(err, ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "unknown user")
			return
		}
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	})
}

// currentUser returns the user resolved by sessionMiddleware.
func currentUser(r *http.Request) *User {
	u, _ := r.Context().Value(userKey{}).(*User)
	return u
}
