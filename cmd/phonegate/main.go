package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/phonegate/phonegate/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting phonegate service",
		"addr", cfg.HTTP.Addr,
		"keycloak_realm", cfg.Keycloak.Realm,
		"code_mode", string(cfg.Code.Mode),
	)

	services, err := bootstrap.BuildServices(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	if services.Redis != nil {
		defer func() {
			if cerr := services.Redis.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
	}

	return bootstrap.RunHTTPServer(ctx, bootstrap.ServerOptions{
		Config:   &cfg,
		Services: services,
		Logger:   logger,
	})
}
