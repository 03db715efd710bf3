// Command server runs the B2B order engine: the order HTTP API, the stock
// reservation retry consumer and the operational endpoints.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/leduxro-prog/erp-dashboard-sub000/internal/app"
	"github.com/leduxro-prog/erp-dashboard-sub000/internal/config"
	handler "github.com/leduxro-prog/erp-dashboard-sub000/internal/handler/http"
	"github.com/leduxro-prog/erp-dashboard-sub000/pkg/logger"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("order engine exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(handler.ServiceName, cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting order engine",
		slog.String("version", version),
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("store", cfg.Store),
		slog.String("currency", cfg.Currency),
		slog.String("tax_rate", cfg.TaxRate.String()),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	log.Info("order engine stopped")
	return nil
}
