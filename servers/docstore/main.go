package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pathwaylabs/commandgate/servers/docstore/internal/service"
)

func main() {
	ctx := context.Background()

	databaseURL := strings.TrimSpace(os.Getenv("DOCSTORE_DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DOCSTORE_DATABASE_URL is required")
	}

	var tokens []string
	for _, token := range strings.Split(os.Getenv("DOCSTORE_AUTH_TOKENS"), ",") {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		log.Fatal("DOCSTORE_AUTH_TOKENS is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	svc, err := service.New(ctx, service.Config{
		DatabaseURL: databaseURL,
		AuthTokens:  tokens,
	}, logger)
	if err != nil {
		log.Fatalf("initialize docstore service: %v", err)
	}
	defer func() {
		_ = svc.Close()
	}()

	mux := http.NewServeMux()
	mux.Handle("/", svc.Handler())
	mux.HandleFunc("/healthz", func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})

	addr := strings.TrimSpace(os.Getenv("DOCSTORE_ADDR"))
	if addr == "" {
		addr = "127.0.0.1:8092"
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("docstore server listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("serve docstore: %v", err)
	}
}
