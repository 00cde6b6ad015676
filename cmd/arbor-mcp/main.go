// cmd/arbor-mcp is the entry point for arbor's MCP (Model Context Protocol)
// server: it serves the 8 tools in internal/tools as JSON-RPC 2.0 over
// stdin/stdout, adapted from the teacher's cmd/memento-mcp startup sequence.
//
// CRITICAL: all logging MUST go to stderr. Any bytes written to stdout that
// are not valid JSON-RPC 2.0 response frames corrupt the protocol.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/arbor/internal/api/mcp"
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
	log.SetOutput(os.Stderr)
	log.SetPrefix("arbor-mcp: ")
	log.SetFlags(log.LstdFlags)

	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	bearerToken := flag.String("bearer-token", os.Getenv("ARBOR_BEARER_TOKEN"), "bearer token presented to the request gate for this session")
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

	svc := tools.New(s, retr, scorer, reflEngine, sched)
	g := gate.New(cfg.Gate)
	defer g.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	sched.Start(ctx)
	defer func() {
		if err := sched.Stop(context.Background()); err != nil {
			log.Printf("scheduler shutdown error: %v", err)
		}
	}()

	srv := mcp.NewServer(svc, g)
	cred := gate.Credential{BearerToken: *bearerToken}
	transport := mcp.NewStdioTransport(srv, cred, os.Stdin, os.Stdout)

	log.Println("ready, serving JSON-RPC 2.0 on stdin/stdout")
	if err := transport.Serve(ctx); err != nil {
		log.Printf("transport stopped: %v", err)
	}
}
