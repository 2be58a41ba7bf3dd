package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phonegate/phonegate/config"
	httpx "github.com/phonegate/phonegate/internal/http"
)

// ServerOptions contains dependencies for the HTTP server.
type ServerOptions struct {
	Config   *config.AppConfig
	Services *Services
	Logger   *slog.Logger
}

// RunHTTPServer starts the HTTP server and blocks until the context is
// canceled or SIGINT/SIGTERM arrives, then shuts down gracefully within the
// configured timeout.
func RunHTTPServer(ctx context.Context, opts ServerOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := buildHTTPHandler(opts, logger)

	addr := opts.Config.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  opts.Config.HTTP.ReadTimeout,
		WriteTimeout: opts.Config.HTTP.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.Config.HTTP.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("HTTP server stopped")
		return nil
	})

	return g.Wait()
}

func buildHTTPHandler(opts ServerOptions, logger *slog.Logger) http.Handler {
	router := httpx.NewRouter(httpx.RouterServices{
		Identity: opts.Services.Identity,
		Decoder:  opts.Services.Decoder,
		CORS:     httpx.CORSConfig{AllowOrigin: opts.Config.HTTP.CORSAllowOrigin},
		Logger:   logger,
	})

	// Order: Recover -> RequestID -> Logging -> Router, so panics are caught
	// outermost and log lines carry the request id.
	h := httpx.Logging(logger)(router)
	h = httpx.RequestID()(h)
	h = httpx.Recover(logger)(h)
	return h
}
