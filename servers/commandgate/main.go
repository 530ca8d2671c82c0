package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/identity"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/server"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/service"
	"github.com/pathwaylabs/commandgate/servers/commandgate/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("commandgate server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: server.ParseLogLevel(cfg.LogLevel)}))

	loaded, err := server.LoadPolicy(cfg)
	if err != nil {
		return err
	}

	var principalCache *identity.PrincipalCache
	if cfg.RedisAddr != "" {
		principalCache = identity.NewPrincipalCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.PrincipalTTL)
	}

	var identityClient identity.Client
	if cfg.IdentityURL != "" {
		identityClient, err = identity.NewRemoteClient(cfg.IdentityURL, cfg.IdentityTimeout, principalCache)
	} else {
		identityClient, err = identity.NewLocalClient([]byte(cfg.JWTSecret))
	}
	if err != nil {
		return err
	}

	credentials := identity.NewCredentialsService(func(context.Context) (identity.Credentials, error) {
		return loaded.Credentials, nil
	}, cfg.CredentialsTTL)

	svc := service.New(service.Config{
		Guard:             loaded.Guard,
		Store:             store.NewHTTPClient(cfg.StoreTimeout),
		Credentials:       credentials,
		GroupCapabilities: loaded.GroupCapabilities,
	}, logger)

	srv := server.New(identityClient, svc, logger)

	httpMux := http.NewServeMux()
	httpMux.Handle("/", srv.Handler())
	httpMux.HandleFunc("/healthz", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("commandgate server started", "addr", cfg.ListenAddr)
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("commandgate server listen failed", "error", serveErr)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
