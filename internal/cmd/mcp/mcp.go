// Package mcp parses MCP command flags and runs the stdio agent transport.
package mcp

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/itemwise/itemwise/internal/app"
	"github.com/itemwise/itemwise/internal/embedding"
	mcpserver "github.com/itemwise/itemwise/internal/mcp"
	"github.com/itemwise/itemwise/internal/platform/config"
	"github.com/itemwise/itemwise/internal/storage"
	"github.com/itemwise/itemwise/internal/storage/sqlite"
)

// Config holds MCP command configuration.
type Config struct {
	DBPath           string        `env:"ITEMWISE_DB_PATH" envDefault:"itemwise.db"`
	InventoryID      string        `env:"ITEMWISE_INVENTORY_ID" envDefault:"default"`
	Actor            string        `env:"ITEMWISE_MCP_ACTOR" envDefault:"mcp-agent"`
	OpenAIKey        string        `env:"ITEMWISE_OPENAI_API_KEY"`
	EmbeddingModel   string        `env:"ITEMWISE_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingsURL    string        `env:"ITEMWISE_EMBEDDINGS_URL"`
	EmbeddingTimeout time.Duration `env:"ITEMWISE_EMBEDDING_TIMEOUT" envDefault:"10s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "The sqlite database path")
	fs.StringVar(&cfg.InventoryID, "inventory", cfg.InventoryID, "The inventory id this transport serves")
	fs.StringVar(&cfg.Actor, "actor", cfg.Actor, "The actor recorded on audit events")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run serves inventory tools over stdio until the context ends.
func Run(ctx context.Context, cfg Config) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if err := ensureInventory(ctx, store, cfg.InventoryID); err != nil {
		return err
	}

	// No oracle: MCP clients bring their own model and call tools directly.
	application, err := app.New(app.Config{
		Store:    store,
		Embedder: newEmbedder(cfg),
	})
	if err != nil {
		return fmt.Errorf("assemble application: %w", err)
	}

	server, err := mcpserver.New(application, mcpserver.Config{
		InventoryID: cfg.InventoryID,
		Actor:       cfg.Actor,
	})
	if err != nil {
		return fmt.Errorf("build MCP server: %w", err)
	}
	return server.Serve(ctx)
}

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
