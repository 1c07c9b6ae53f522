// Package server parses server command flags and runs the inventory chat/API
// process.
package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/itemwise/itemwise/internal/app"
	"github.com/itemwise/itemwise/internal/embedding"
	"github.com/itemwise/itemwise/internal/oracle"
	"github.com/itemwise/itemwise/internal/platform/config"
	"github.com/itemwise/itemwise/internal/platform/otel"
	"github.com/itemwise/itemwise/internal/storage"
	"github.com/itemwise/itemwise/internal/storage/sqlite"
)

const shutdownTimeout = 5 * time.Second

// Config holds server command configuration.
type Config struct {
	Addr             string        `env:"ITEMWISE_HTTP_ADDR" envDefault:":8080"`
	DBPath           string        `env:"ITEMWISE_DB_PATH" envDefault:"itemwise.db"`
	DefaultInventory string        `env:"ITEMWISE_DEFAULT_INVENTORY" envDefault:"default"`
	OpenAIKey        string        `env:"ITEMWISE_OPENAI_API_KEY"`
	ChatModel        string        `env:"ITEMWISE_CHAT_MODEL" envDefault:"gpt-4o-mini"`
	EmbeddingModel   string        `env:"ITEMWISE_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	CompletionsURL   string        `env:"ITEMWISE_COMPLETIONS_URL"`
	EmbeddingsURL    string        `env:"ITEMWISE_EMBEDDINGS_URL"`
	OracleTimeout    time.Duration `env:"ITEMWISE_ORACLE_TIMEOUT" envDefault:"30s"`
	EmbeddingTimeout time.Duration `env:"ITEMWISE_EMBEDDING_TIMEOUT" envDefault:"10s"`
	MaxRounds        int           `env:"ITEMWISE_MAX_ROUNDS" envDefault:"5"`
	PendingTTL       time.Duration `env:"ITEMWISE_PENDING_TTL" envDefault:"5m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "The sqlite database path")
	fs.StringVar(&cfg.DefaultInventory, "inventory", cfg.DefaultInventory, "The default inventory id")
	fs.StringVar(&cfg.ChatModel, "chat-model", cfg.ChatModel, "The chat completion model")
	fs.StringVar(&cfg.EmbeddingModel, "embedding-model", cfg.EmbeddingModel, "The embedding model")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the inventory server and blocks until the context ends.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "itemwise-server")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("tracing shutdown failed: %v", err)
		}
	}()

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if err := ensureInventory(ctx, store, cfg.DefaultInventory); err != nil {
		return err
	}

	application, err := app.New(app.Config{
		Store:      store,
		Embedder:   newEmbedder(cfg),
		Oracle:     newOracle(cfg),
		MaxRounds:  cfg.MaxRounds,
		PendingTTL: cfg.PendingTTL,
	})
	if err != nil {
		return fmt.Errorf("assemble application: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(application, cfg.DefaultInventory),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	log.Printf("inventory server listening on %s", cfg.Addr)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// ensureInventory creates the default inventory on first boot.
func ensureInventory(ctx context.Context, store storage.Store, inventoryID string) error {
	_, err := store.GetInventory(ctx, inventoryID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load inventory %s: %w", inventoryID, err)
	}
	if err := store.PutInventory(ctx, storage.InventoryRecord{
		ID:   inventoryID,
		Name: inventoryID,
	}); err != nil {
		return fmt.Errorf("create inventory %s: %w", inventoryID, err)
	}
	return nil
}

// newEmbedder builds the embedding provider, or nil when no API key is
// configured. Without it search runs lexical-only.
func newEmbedder(cfg Config) embedding.Provider {
	if cfg.OpenAIKey == "" {
		return nil
	}
	provider, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		EmbeddingsURL: cfg.EmbeddingsURL,
		APIKey:        cfg.OpenAIKey,
		Model:         cfg.EmbeddingModel,
		Timeout:       cfg.EmbeddingTimeout,
	})
	if err != nil {
		log.Printf("embedding provider disabled: %v", err)
		return nil
	}
	return provider
}

// newOracle builds the inference oracle, or nil when no API key is
// configured. Without it chat runs the deterministic fallback matcher.
func newOracle(cfg Config) oracle.Oracle {
	if cfg.OpenAIKey == "" {
		log.Print("no API key configured; chat uses the fallback matcher")
		return nil
	}
	model, err := oracle.NewOpenAIOracle(oracle.OpenAIConfig{
		CompletionsURL: cfg.CompletionsURL,
		APIKey:         cfg.OpenAIKey,
		Model:          cfg.ChatModel,
		Timeout:        cfg.OracleTimeout,
	})
	if err != nil {
		log.Printf("oracle disabled: %v", err)
		return nil
	}
	return model
}
