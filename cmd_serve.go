package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/factlens/internal/api"
	"github.com/hazyhaar/factlens/internal/auth"
	"github.com/hazyhaar/factlens/internal/logging"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.New(a.db, auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin), a.orch, logging.New("api"))
	handler.SetFlowsDB(a.flows)
	handler.SetMetricsDB(a.metricsDB)
	handler.SetAuditLogger(a.auditLog)
	handler.SetTraceStore(a.traces)
	handler.SetVersion(version)
	if a.metrics != nil {
		handler.SetMetrics(a.metrics)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	a.logger.Info("listening",
		"version", version,
		"addr", cfg.Server.Addr,
		"database", cfg.Database.Path,
		"agents", a.orch.Agents(),
		"providers", a.gateway.Providers(),
	)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
