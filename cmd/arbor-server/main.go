// cmd/arbor-server is the entry point for arbor's HTTP surface: the 8
// tools served as JSON endpoints plus a websocket push of
// reflection-session-complete events, adapted from the teacher's
// cmd/memento-web startup sequence (server.Start, websocket hub wiring,
// signal-based graceful shutdown).
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/scrypster/arbor/internal/api/httpapi"
	"github.com/scrypster/arbor/internal/api/ws"
	"github.com/scrypster/arbor/internal/config"
	"github.com/scrypster/arbor/internal/embedding"
	"github.com/scrypster/arbor/internal/gate"
	"github.com/scrypster/arbor/internal/reflection"
	"github.com/scrypster/arbor/internal/retrieval"
	"github.com/scrypster/arbor/internal/scheduler"
	"github.com/scrypster/arbor/internal/scoring"
	"github.com/scrypster/arbor/internal/store"
	"github.com/scrypster/arbor/internal/store/postgres"
	"github.com/scrypster/arbor/internal/store/sqlite"
	"github.com/scrypster/arbor/internal/tools"
)

func openStore(cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Engine {
	case "postgres":
		return postgres.New(cfg.DSN)
	default:
		return sqlite.New(cfg.DSN)
	}
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	s, err := openStore(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	embedder := embedding.Wrap(
		embedding.NewOpenAIGenerator(embedding.OpenAIConfig{
			APIKey: os.Getenv("ARBOR_EMBEDDING_API_KEY"),
			Dim:    cfg.Storage.EmbeddingDimension,
		}),
		embedding.DefaultCircuitBreakerConfig(),
	)

	scorer := scoring.New(cfg.Scoring)
	retr := retrieval.New(s, embedder, scorer)
	reflEngine := reflection.New(s, cfg.Reflection)
	sched := scheduler.New(s, reflEngine, cfg.Scheduler)

	var allowedOrigins []string
	if raw := os.Getenv("ARBOR_WS_ALLOWED_ORIGINS"); raw != "" {
		allowedOrigins = strings.Split(raw, ",")
	}
	hub := ws.NewHub(allowedOrigins)
	go hub.Run()
	defer hub.Stop()

	sched.SetOnSessionComplete(func(sessionID string, insightCount int) {
		hub.Broadcast(ws.Event{
			Type:      "reflection_session_complete",
			SessionID: sessionID,
			Timestamp: time.Now(),
		})
	})

	svc := tools.New(s, retr, scorer, reflEngine, sched)
	g := gate.New(cfg.Gate)
	defer g.Close()

	api := httpapi.New(svc, g)

	mux := http.NewServeMux()
	mux.Handle("/", api.Handler())
	mux.HandleFunc("/ws", hub.ServeHTTP)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	defer func() {
		if err := sched.Stop(context.Background()); err != nil {
			log.Printf("scheduler shutdown error: %v", err)
		}
	}()

	go func() {
		log.Printf("arbor-server listening on %s", *addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("shutting down gracefully")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
}
