package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/naka-gawa/contributor-stats/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves contributor stats as a JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			cfg.Server.ListenAddr, _ = cmd.Flags().GetString("listen")
		}

		logger, err := newLogger(cmd, cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync()
		}()

		token, err := githubToken()
		if err != nil {
			return err
		}

		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		service, err := newService(cfg, token, registry, logger)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           server.NewHandler(service, cfg, token, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), logger.Named("http")),
			ReadHeaderTimeout: 10 * time.Second,
		}

		rootCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		serverErrCh := make(chan error, 1)
		go func() {
			logger.Info("http server starting", zap.String("addr", cfg.Server.ListenAddr))
			if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				serverErrCh <- serveErr
			}
			close(serverErrCh)
		}()

		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received")
		case serveErr := <-serverErrCh:
			if serveErr != nil {
				return fmt.Errorf("http server failed: %w", serveErr)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Listen address (default from config, :9999)")
}
