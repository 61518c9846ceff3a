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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/antoniostano/audiohook-bridge/internal/audiohook"
	"github.com/antoniostano/audiohook-bridge/internal/auth"
	"github.com/antoniostano/audiohook-bridge/internal/config"
	"github.com/antoniostano/audiohook-bridge/internal/dialogue"
	"github.com/antoniostano/audiohook-bridge/internal/httpapi"
	"github.com/antoniostano/audiohook-bridge/internal/observability"
	"github.com/antoniostano/audiohook-bridge/internal/policy"
	"github.com/antoniostano/audiohook-bridge/internal/secrets"
	"github.com/antoniostano/audiohook-bridge/internal/session"
)

const janitorInterval = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept AudioHook connections (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	log, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	metrics := observability.NewMetrics(cfg.MetricsNamespace, nil)
	redactor := policy.NewRedactor(cfg.LogUnredactedData)

	opts := auth.CredentialOptions{
		SecretPath:   cfg.AuthTokenSecretPath,
		QuotaProject: cfg.QuotaProject,
		Metrics:      metrics,
		Logger:       log.Named("credentials"),
	}
	if cfg.UsesSecretToken() {
		store, err := secrets.NewStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("secret store init failed: %w", err)
		}
		defer store.Close()
		opts.Store = store
		log.Info("using token from secret store", zap.String("backend", cfg.SecretBackend))
	} else {
		log.Info("using application default credentials")
	}
	credentials, err := auth.NewCredentialProvider(opts)
	if err != nil {
		return err
	}

	gate, err := auth.NewAuthenticator(cfg.APIKey, cfg.ClientSecret)
	if err != nil {
		return err
	}
	if cfg.ClientSecret == "" {
		log.Warn("GENESYS_CLIENT_SECRET not set, request signatures are not verified")
	}

	calls := session.NewManager(cfg.CallInactivityTimeout)
	calls.SetExpireHook(func(c *session.Call) {
		metrics.CallEvent("expired")
		log.Warn("call expired after inactivity", zap.String("call_id", c.ID), zap.String("conversation_id", c.ConversationID))
	})

	dialer := dialogue.NewDialer(dialogue.DialerConfig{
		BaseURL:          cfg.DialogueBaseURL,
		KickstartText:    cfg.DialogueKickstartText,
		HandshakeTimeout: cfg.DialogueHandshakeTimeout,
		Tokens:           credentials,
		Metrics:          metrics,
		Redactor:         redactor,
	})

	callCtx, cancelCalls := context.WithCancel(context.Background())
	defer cancelCalls()
	calls.StartJanitor(callCtx, janitorInterval)

	api := httpapi.New(callCtx, gate, audiohook.Deps{
		Dialer:   dialer,
		Calls:    calls,
		Metrics:  metrics,
		Logger:   log,
		Redactor: redactor,
	})
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           api.MetricsRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen error: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// Hijacked WebSocket connections are not tracked by Shutdown.
	if n := calls.CloseAll(); n > 0 {
		log.Info("closed active calls", zap.Int("count", n))
	}
	cancelCalls()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	log.Info("shutdown complete")
	return nil
}
