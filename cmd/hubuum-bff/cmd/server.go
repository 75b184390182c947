package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/hubuum-bff/api"
	"github.com/jmcleod/hubuum-bff/config"
	"github.com/jmcleod/hubuum-bff/internal/logging"
	"github.com/jmcleod/hubuum-bff/metrics"
	"github.com/jmcleod/hubuum-bff/session"
	"github.com/jmcleod/hubuum-bff/upstream"
)

const (
	loginAlertWindow    = time.Minute
	loginAlertThreshold = 50
	shutdownTimeout     = 10 * time.Second
)

var addr string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the BFF server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.HTTP.Addr = addr
		}
		logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return runServer(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (overrides http.addr)")
}

func runServer(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := session.OpenStore(ctx, cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	var secret []byte
	if cfg.Session.CookieSecret != "" {
		secret = []byte(cfg.Session.CookieSecret)
	}
	sessions, err := session.NewManager(session.Options{
		Store:        store,
		TTL:          cfg.Session.TTL,
		CookiePrefix: cfg.Session.CookiePrefix,
		CookieSecret: secret,
	})
	if err != nil {
		return err
	}
	if sessions.Mode() == session.ModeStandalone {
		logger.Warn("standalone session mode: the Hubuum token lives in browser cookies and no server-side idle timeout applies",
			"cookie_max_age", cfg.Session.TTL.String(),
			"sealed_cookies", len(secret) > 0)
	}

	client, err := upstream.New(cfg.Upstream, nil)
	if err != nil {
		return err
	}

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithTrustedProxies(cfg.TrustedProxyPrefixes()),
	}
	if cfg.Metrics.Enabled {
		m := metrics.NewPrometheus(metrics.WithLoginFailureAlert(loginAlertWindow, loginAlertThreshold,
			func(ev metrics.AlertEvent) {
				logger.Warn("login failure spike",
					"count", ev.Count,
					"threshold", ev.Threshold,
					"window", ev.Window.String())
			}))
		opts = append(opts, api.WithMetrics(m))
	}
	a, err := api.New(sessions, client, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           a.Router(),
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	useTLS := cfg.HTTP.TLSCert != ""
	if useTLS {
		cert, err := tls.LoadX509KeyPair(cfg.HTTP.TLSCert, cfg.HTTP.TLSKey)
		if err != nil {
			return fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan error, 1)
	go func() {
		var err error
		if useTLS {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("server failed: %w", err)
			return
		}
		done <- nil
	}()

	printBanner(os.Stdout)
	logger.Info("server listening",
		"addr", cfg.HTTP.Addr,
		"tls", useTLS,
		"upstream", client.BaseURL(),
		"session_mode", string(sessions.Mode()),
		"metrics", cfg.Metrics.Enabled)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-done:
		return err
	}
}
