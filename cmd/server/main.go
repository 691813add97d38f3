package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/mastodon-bridge/internal/bluesky"
	"github.com/blackmichael/mastodon-bridge/internal/config"
	"github.com/blackmichael/mastodon-bridge/internal/configfile"
	"github.com/blackmichael/mastodon-bridge/internal/domain"
	"github.com/blackmichael/mastodon-bridge/internal/httpserver"
	"github.com/blackmichael/mastodon-bridge/internal/mastodon"
	"github.com/blackmichael/mastodon-bridge/internal/metrics"
	"github.com/blackmichael/mastodon-bridge/internal/proxy"
	"github.com/blackmichael/mastodon-bridge/internal/resolver"
	"github.com/blackmichael/mastodon-bridge/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// Set up the user directory (SQLite when configured, YAML otherwise)
	var users domain.ConfigLoader
	if cfg.UsersDatabase != "" {
		repo, err := sqlite.NewRepository(cfg.UsersDatabase)
		if err != nil {
			return fmt.Errorf("create repository: %w", err)
		}
		defer repo.Close()
		users = repo
		logger.Info("using sqlite user directory", "path", cfg.UsersDatabase)
	} else {
		users = configfile.NewStore(cfg.UsersFile)
		logger.Info("using yaml user directory", "path", cfg.UsersFile)
	}

	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}
	m := metrics.New()

	bridge := domain.NewBridgeService(mastodon.NewClient(mastodon.WithHTTPClient(httpClient)), logger)
	identities := bluesky.NewIdentityResolver(cfg.PLCURL, httpClient)

	server := httpserver.NewServer(cfg, httpserver.Deps{
		Users:    users,
		Bridge:   bridge,
		Resolver: resolver.New(cfg.DefaultPDS, identities, m, logger),
		Proxy:    proxy.New(httpClient, m, cfg.PublicURL, logger),
		Metrics:  m,
	}, logger)

	// Set up graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("server started",
		"port", cfg.Port,
		"default_pds", cfg.DefaultPDS,
		"feed", cfg.FeedURI,
		"hostname", cfg.Hostname,
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
