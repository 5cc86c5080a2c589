package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mergeflow/internal/history"
	"mergeflow/internal/logging"
	"mergeflow/internal/media"
	"mergeflow/internal/pipeline"
	"mergeflow/internal/preflight"
	"mergeflow/internal/session"
)

// Sessions is the session surface the API drives.
type Sessions interface {
	Start(ctx context.Context, ownerID int64, labelSource media.LabelSource) (session.Snapshot, error)
	AddFile(ownerID int64, spec media.FileSpec) (session.Snapshot, error)
	Advance(ownerID int64) (session.AdvanceResult, error)
	Confirm(ownerID int64) (session.Snapshot, error)
	Cancel(ctx context.Context, ownerID int64) (session.Snapshot, error)
	Get(ownerID int64) (session.Snapshot, error)
	List() []session.Snapshot
}

// Events exposes recent run progress.
type Events interface {
	Recent(ownerID int64, n int) []pipeline.Event
	LastSummary(ownerID int64) (pipeline.Summary, bool)
}

// History reads recorded runs.
type History interface {
	RecentRuns(ctx context.Context, ownerID int64, limit int) ([]history.Run, error)
	Stats(ctx context.Context, ownerID int64) (history.Stats, bool, error)
	TopOwners(ctx context.Context, limit int) ([]history.Stats, error)
}

// StatusFunc reports readiness for GET /api/status.
type StatusFunc func(ctx context.Context) []preflight.Result

// Deps are the collaborators behind the routes. History and Status may be nil.
type Deps struct {
	Sessions Sessions
	Events   Events
	History  History
	Status   StatusFunc
}

// Options configure the server.
type Options struct {
	Bind               string
	Token              string
	RateLimitPerMinute int
}

// Server serves the control API.
type Server struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	router chi.Router
}

// New builds the server and its routes.
func New(deps Deps, opts Options, logger *slog.Logger) (*Server, error) {
	if deps.Sessions == nil || deps.Events == nil {
		return nil, errors.New("api requires sessions and events")
	}
	s := &Server{
		deps:   deps,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "api"),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.opts.RateLimitPerMinute > 0 {
			r.Use(rateLimit(s.opts.RateLimitPerMinute, time.Minute))
		}
		r.Use(bearerAuth(s.opts.Token))

		r.Get("/status", s.handleStatus)
		r.Get("/sessions", s.handleListSessions)
		r.Route("/sessions/{owner}", func(r chi.Router) {
			r.Post("/", s.handleStartSession)
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleCancelSession)
			r.Post("/files", s.handleAddFile)
			r.Post("/advance", s.handleAdvance)
			r.Post("/confirm", s.handleConfirm)
			r.Get("/events", s.handleEvents)
		})
		r.Get("/history", s.handleLeaderboard)
		r.Get("/history/{owner}", s.handleHistory)
	})
	return r
}

// Serve accepts connections on ln until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("api server listening",
		logging.String("address", ln.Addr().String()),
		logging.String(logging.FieldEventType, "api_listening"),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}

// ListenAndServe binds opts.Bind and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	bind := strings.TrimSpace(s.opts.Bind)
	if bind == "" {
		return errors.New("api bind address is empty")
	}
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(start)),
			logging.String(logging.FieldCorrelationID, middleware.GetReqID(r.Context())),
		)
	})
}

func rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded"}`))
		}),
	)
}

// bearerAuth validates bearer tokens. An empty token disables the check.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
