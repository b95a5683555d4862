// Package server - HTTP surface of the waste bin: classification and the weight ledger.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nvr-ai/go-waste/classifier"
	"github.com/nvr-ai/go-waste/history"
	"github.com/nvr-ai/go-waste/ledger"
	"github.com/nvr-ai/go-waste/profiler"
	"github.com/pkg/errors"
)

// Options configures a Server.
type Options struct {
	Addr            string
	CORSOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	// Models lists the loaded model names reported by the health endpoint.
	Models []string
	// History logs classifications and weight updates. Nil disables logging and /api/history.
	History *history.Store
}

// Server serves the classification and ledger API.
type Server struct {
	opts     Options
	engine   *classifier.Engine
	ledger   *ledger.Ledger
	profiler *profiler.RuntimeProfiler
	logger   *slog.Logger
	handler  http.Handler
}

// New wires the routes and middleware.
//
// Arguments:
//   - opts: Listener and limits.
//   - engine: The classification engine.
//   - l: The weight ledger. Its taxonomy must be the engine's.
//   - prof: Source of /api/stats. May be nil.
//   - logger: Request and error logging.
//
// Returns:
//   - *Server: The server, not yet listening.
func New(opts Options, engine *classifier.Engine, l *ledger.Ledger, prof *profiler.RuntimeProfiler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		opts:     opts,
		engine:   engine,
		ledger:   l,
		profiler: prof,
		logger:   logger.With("component", "server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("POST /api/classify", s.handleClassify)
	mux.HandleFunc("POST /api/classify/upload", s.handleUpload)
	mux.HandleFunc("POST /api/update-weight", s.handleUpdateWeight)
	mux.HandleFunc("POST /api/reset-weights", s.handleResetWeights)
	mux.HandleFunc("GET /api/weight-summary", s.handleWeightSummary)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	s.handler = withRequestID(withLogging(s.logger, withCORS(opts.CORSOrigins, mux)))
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
//
// Returns:
//   - error: nil after a clean shutdown, otherwise the listener or shutdown error.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", s.opts.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener. Request contexts do not inherit the cancellation
// of ctx, so requests in flight when ctx ends are drained by Shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", s.opts.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
