// Package app assembles the inventory engines behind one entry surface shared
// by the chat server and the MCP transport.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itemwise/itemwise/internal/audit"
	"github.com/itemwise/itemwise/internal/chat"
	"github.com/itemwise/itemwise/internal/embedding"
	"github.com/itemwise/itemwise/internal/inventory"
	"github.com/itemwise/itemwise/internal/oracle"
	"github.com/itemwise/itemwise/internal/search"
	"github.com/itemwise/itemwise/internal/storage"
	"github.com/itemwise/itemwise/internal/tools"
)

// Scope identifies the inventory and actor an operation acts for.
type Scope = tools.Scope

// Config wires the application. Embedder and Oracle are optional: without an
// embedder search is lexical-only, without an oracle chat runs the fallback
// matcher.
type Config struct {
	Store      storage.Store
	Embedder   embedding.Provider
	Oracle     oracle.Oracle
	MaxRounds  int
	PendingTTL time.Duration
}

// App exposes the operation surface: one conversational entry point, the
// confirmation resolver, and direct tool-level operations.
type App struct {
	store        storage.Store
	service      *inventory.Service
	registry     *tools.Registry
	orchestrator *chat.Orchestrator
	auditor      *audit.Emitter
}

// New assembles the application and verifies the tool registry. A registry
// mismatch is a programming error and must abort startup.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	service := inventory.NewService(cfg.Store, cfg.Embedder)
	engine := search.NewEngine(cfg.Store, cfg.Embedder)
	registry := tools.NewRegistry(service, engine)
	if err := registry.Verify(); err != nil {
		return nil, err
	}

	auditor := audit.NewEmitter(cfg.Store)
	orchestrator := chat.New(chat.Config{
		Oracle:     cfg.Oracle,
		Registry:   registry,
		Auditor:    auditor,
		MaxRounds:  cfg.MaxRounds,
		PendingTTL: cfg.PendingTTL,
	})

	return &App{
		store:        cfg.Store,
		service:      service,
		registry:     registry,
		orchestrator: orchestrator,
		auditor:      auditor,
	}, nil
}

// Registry exposes the tool registry for transports that mount tools
// directly.
func (a *App) Registry() *tools.Registry {
	return a.registry
}

// HandleChatTurn answers one conversational message.
func (a *App) HandleChatTurn(ctx context.Context, input chat.TurnInput) (chat.TurnResult, error) {
	return a.orchestrator.HandleTurn(ctx, input)
}

// ConfirmPendingAction resolves a held destructive action.
func (a *App) ConfirmPendingAction(ctx context.Context, actionID string, approve bool) (chat.TurnResult, error) {
	return a.orchestrator.Confirm(ctx, actionID, approve)
}

// AddItemParams are the direct-call arguments for add_item.
type AddItemParams struct {
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Category    string `json:"category,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`
	// ExpirationDate is an optional YYYY-MM-DD date for the added batch.
	ExpirationDate string `json:"expiration_date,omitempty"`
}

// RemoveItemParams are the direct-call arguments for remove_item.
type RemoveItemParams struct {
	Name     string `json:"name,omitempty"`
	ItemID   string `json:"item_id,omitempty"`
	Quantity int    `json:"quantity"`
	LotID    string `json:"lot_id,omitempty"`
}

// UpdateItemParams are the direct-call arguments for update_item. Nil fields
// stay untouched.
type UpdateItemParams struct {
	ItemID      string  `json:"item_id"`
	Name        *string `json:"name,omitempty"`
	Category    *string `json:"category,omitempty"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`
}

// SearchItemsParams are the direct-call arguments for search_items.
type SearchItemsParams struct {
	Query    string `json:"query"`
	Location string `json:"location,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ListItemsParams are the direct-call arguments for list_items.
type ListItemsParams struct {
	Category string `json:"category,omitempty"`
	Location string `json:"location,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// OldestItemsParams are the direct-call arguments for oldest_items.
type OldestItemsParams struct {
	Category string `json:"category,omitempty"`
	Location string `json:"location,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ExpiringItemsParams are the direct-call arguments for expiring_items.
type ExpiringItemsParams struct {
	Days  int `json:"days,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// AddLocationParams are the direct-call arguments for add_location.
type AddLocationParams struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AddItem adds stock directly, without the conversational loop.
func (a *App) AddItem(ctx context.Context, scope Scope, params AddItemParams) tools.Result {
	return a.dispatch(ctx, scope, tools.ToolAddItem, params)
}

// RemoveItem removes stock directly. Direct calls skip the confirmation
// protocol; callers own their destructive intent.
func (a *App) RemoveItem(ctx context.Context, scope Scope, params RemoveItemParams) tools.Result {
	return a.dispatch(ctx, scope, tools.ToolRemoveItem, params)
}

// UpdateItem changes item fields directly.
func (a *App) UpdateItem(ctx context.Context, scope Scope, params UpdateItemParams) tools.Result {
	return a.dispatch(ctx, scope, tools.ToolUpdateItem, params)
}

// SearchItems runs a hybrid search.
func (a *App) SearchItems(ctx context.Context, scope Scope, params SearchItemsParams) tools.Result {
	return a.dispatch(ctx, scope, tools.ToolSearchItems, params)
}

// ListItems lists inventory items.
func (a *App) ListItems(ctx context.Context, scope Scope, params ListItemsParams) tools.Result {
	return a.dispatch(ctx, scope, tools.ToolListItems, params)
}

// ListLocations lists storage locations.
func (a *App) ListLocations(ctx context.Context, scope Scope) tools.Result {
	return a.dispatch(ctx, scope, tools.ToolListLocations, struct{}{})
}

// OldestItems lists the items with the oldest stock.
func (a *App) OldestItems(ctx context.Context, scope Scope, params OldestItemsParams) tools.Result {
	return a.dispatch(ctx, scope, tools.ToolOldestItems, params)
}

// ExpiringItems lists batches expiring within the look-ahead window.
func (a *App) ExpiringItems(ctx context.Context, scope Scope, params ExpiringItemsParams) tools.Result {
	return a.dispatch(ctx, scope, tools.ToolExpiringItems, params)
}

// AddLocation creates a storage location.
func (a *App) AddLocation(ctx context.Context, scope Scope, params AddLocationParams) tools.Result {
	return a.dispatch(ctx, scope, tools.ToolAddLocation, params)
}

// dispatch routes a direct call through the same registry the orchestrator
// uses, so validation, results, and auditing stay identical across surfaces.
func (a *App) dispatch(ctx context.Context, scope Scope, name string, params any) tools.Result {
	arguments, err := json.Marshal(params)
	if err != nil {
		return tools.Result{OK: false, Message: fmt.Sprintf("encode arguments: %v", err)}
	}

	result := a.registry.Dispatch(ctx, scope, tools.Call{
		ID:        "direct-" + name,
		Name:      name,
		Arguments: arguments,
	})

	status := audit.StatusCommitted
	if !result.OK {
		status = audit.StatusFailed
	}
	a.auditor.Emit(ctx, audit.Event{
		InventoryID: scope.InventoryID,
		Operation:   name,
		Payload:     json.RawMessage(arguments),
		Status:      status,
		Actor:       scope.Actor,
	})
	return result
}
