package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	domain "github.com/bryanwahyu/insights-copilot/internal/domain/query"
	"github.com/bryanwahyu/insights-copilot/internal/infra/httpserver"
	"github.com/bryanwahyu/insights-copilot/internal/middleware"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		client, err := newModelClient(cfg)
		if err != nil {
			return err
		}
		runner, err := newRunner(cfg)
		if err != nil {
			return err
		}
		if err := runner.HealthCheck(ctx); err != nil {
			// server tetap jalan, /ready akan melaporkan docker down
			zap.L().Warn("docker not reachable", zap.Error(err))
		}

		auditSt, err := newAudit(ctx, cfg)
		if err != nil {
			return eris.Wrap(err, "serve: audit")
		}
		defer auditSt.Close()

		checkers := map[string]middleware.HealthChecker{"sandbox": runner}
		var rec domain.Recorder
		var history httpserver.History
		if auditSt != nil {
			rec = auditSt.recorder
			if auditSt.recorder.Repo != nil {
				history = auditSt.recorder
			}
			for name, c := range auditSt.checkers {
				checkers[name] = c
			}
		}

		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		sweepStop := make(chan struct{})
		defer close(sweepStop)
		go limiter.Run(sweepStop)

		handler := httpserver.NewRouter(httpserver.Deps{
			Workspace:    httpserver.NewWorkspace(),
			Questions:    newQueryService(cfg, client, runner, rec),
			Insights:     newInsightService(cfg, client),
			History:      history,
			Checkers:     checkers,
			Limiter:      limiter,
			CORSOrigins:  cfg.Server.CORSOrigins,
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
			TrustProxy:   cfg.Server.TrustProxy,
		})

		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		srv := &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("server listening",
				zap.String("addr", addr),
				zap.String("provider", client.Provider()),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return eris.Wrap(err, "serve: listen")
			}
			return nil
		case <-ctx.Done():
		}

		zap.L().Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "serve: shutdown")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
