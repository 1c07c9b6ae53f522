package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/itemwise/itemwise/internal/errors"
	"github.com/itemwise/itemwise/internal/inventory"
	"github.com/itemwise/itemwise/internal/search"
	"github.com/itemwise/itemwise/internal/storage"
)

// SearchEngine is the hybrid search surface the registry dispatches into.
type SearchEngine interface {
	Search(ctx context.Context, query search.Query) ([]search.Result, error)
}

type handlers struct {
	service *inventory.Service
	search  SearchEngine
}

// ItemView is the wire shape of an item in tool results.
type ItemView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	LocationID  string `json:"location_id,omitempty"`
	Quantity    int    `json:"quantity"`
	CreatedAt   string `json:"created_at"`
}

// LocationView is the wire shape of a location in tool results.
type LocationView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ScoredItemView is one search hit.
type ScoredItemView struct {
	ItemView
	Score float64 `json:"score"`
}

// OldestItemView pairs an item with its oldest batch timestamp.
type OldestItemView struct {
	ItemView
	OldestAddedAt string `json:"oldest_added_at"`
}

func itemView(item storage.ItemRecord) ItemView {
	return ItemView{
		ID:          item.ID,
		Name:        item.Name,
		Category:    item.Category,
		Description: item.Description,
		LocationID:  item.LocationID,
		Quantity:    item.Quantity,
		CreatedAt:   item.CreatedAt.Format(time.RFC3339),
	}
}

func locationView(location storage.LocationRecord) LocationView {
	return LocationView{ID: location.ID, Name: location.Name, Description: location.Description}
}

type addItemArgs struct {
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	Category       string `json:"category"`
	Location       string `json:"location"`
	Description    string `json:"description"`
	Notes          string `json:"notes"`
	ExpirationDate string `json:"expiration_date"`
}

func (h *handlers) addItem(ctx context.Context, scope Scope, arguments json.RawMessage) Result {
	var args addItemArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return invalidArguments(err)
	}

	expiresAt, err := parseExpirationDate(args.ExpirationDate)
	if err != nil {
		return invalidArguments(err)
	}

	result, err := h.service.Add(ctx, inventory.AddInput{
		InventoryID: scope.InventoryID,
		Name:        args.Name,
		Category:    args.Category,
		Location:    args.Location,
		Description: args.Description,
		Quantity:    args.Quantity,
		Actor:       scope.Actor,
		Notes:       args.Notes,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return failureResult(ToolAddItem, err)
	}

	message := fmt.Sprintf("Added %d x %s (total: %d)", args.Quantity, result.Item.Name, result.Item.Quantity)
	if result.Location != nil {
		message += fmt.Sprintf(" in %s", result.Location.Name)
	}
	return Result{
		OK:      true,
		Message: message,
		Payload: map[string]any{
			"item":         itemView(result.Item),
			"lot_id":       result.Lot.ID,
			"item_created": result.ItemCreated,
		},
	}
}

type removeItemArgs struct {
	Name     string `json:"name"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	LotID    string `json:"lot_id"`
}

func (h *handlers) removeItem(ctx context.Context, scope Scope, arguments json.RawMessage) Result {
	var args removeItemArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return invalidArguments(err)
	}

	result, err := h.service.Remove(ctx, inventory.RemoveInput{
		InventoryID: scope.InventoryID,
		ItemID:      args.ItemID,
		Name:        args.Name,
		LotID:       args.LotID,
		Quantity:    args.Quantity,
		Actor:       scope.Actor,
	})
	if err != nil {
		return failureResult(ToolRemoveItem, err)
	}

	return Result{
		OK:      true,
		Message: fmt.Sprintf("Removed %d x %s (%d left)", result.Removed, result.Item.Name, result.Item.Quantity),
		Payload: map[string]any{
			"item":     itemView(result.Item),
			"consumed": result.Consumed,
		},
	}
}

type updateItemArgs struct {
	ItemID      string  `json:"item_id"`
	Name        *string `json:"name"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
}

func (h *handlers) updateItem(ctx context.Context, scope Scope, arguments json.RawMessage) Result {
	var args updateItemArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return invalidArguments(err)
	}

	item, err := h.service.Update(ctx, inventory.UpdateInput{
		InventoryID: scope.InventoryID,
		ItemID:      args.ItemID,
		Name:        args.Name,
		Category:    args.Category,
		Description: args.Description,
		Location:    args.Location,
	})
	if err != nil {
		return failureResult(ToolUpdateItem, err)
	}

	return Result{
		OK:      true,
		Message: fmt.Sprintf("Updated %s", item.Name),
		Payload: map[string]any{"item": itemView(item)},
	}
}

type searchItemsArgs struct {
	Query    string `json:"query"`
	Location string `json:"location"`
	Limit    int    `json:"limit"`
}

func (h *handlers) searchItems(ctx context.Context, scope Scope, arguments json.RawMessage) Result {
	var args searchItemsArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return invalidArguments(err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return Result{OK: false, Message: "search query is required", Code: apperrors.CodeValidation}
	}

	locationID, result := h.resolveLocationFilter(ctx, scope, args.Location)
	if result != nil {
		return *result
	}

	hits, err := h.search.Search(ctx, search.Query{
		InventoryID: scope.InventoryID,
		Text:        args.Query,
		LocationID:  locationID,
		Limit:       args.Limit,
	})
	if err != nil {
		return failureResult(ToolSearchItems, err)
	}

	views := make([]ScoredItemView, 0, len(hits))
	for _, hit := range hits {
		views = append(views, ScoredItemView{ItemView: itemView(hit.Item), Score: hit.Score})
	}
	message := fmt.Sprintf("Found %d item(s) matching %q", len(views), args.Query)
	if len(views) == 0 {
		message = fmt.Sprintf("No items matching %q", args.Query)
	}
	return Result{OK: true, Message: message, Payload: map[string]any{"items": views}}
}

type listItemsArgs struct {
	Category string `json:"category"`
	Location string `json:"location"`
	Limit    int    `json:"limit"`
}

func (h *handlers) listItems(ctx context.Context, scope Scope, arguments json.RawMessage) Result {
	var args listItemsArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return invalidArguments(err)
	}

	locationID, result := h.resolveLocationFilter(ctx, scope, args.Location)
	if result != nil {
		return *result
	}

	items, err := h.service.List(ctx, scope.InventoryID, storage.ItemFilter{
		Category:   args.Category,
		LocationID: locationID,
		Limit:      args.Limit,
	})
	if err != nil {
		return failureResult(ToolListItems, err)
	}

	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, itemView(item))
	}
	return Result{
		OK:      true,
		Message: fmt.Sprintf("%d item(s) in the inventory", len(views)),
		Payload: map[string]any{"items": views},
	}
}

func (h *handlers) listLocations(ctx context.Context, scope Scope, _ json.RawMessage) Result {
	locations, err := h.service.ListLocations(ctx, scope.InventoryID)
	if err != nil {
		return failureResult(ToolListLocations, err)
	}

	views := make([]LocationView, 0, len(locations))
	for _, location := range locations {
		views = append(views, locationView(location))
	}
	return Result{
		OK:      true,
		Message: fmt.Sprintf("%d location(s)", len(views)),
		Payload: map[string]any{"locations": views},
	}
}

type oldestItemsArgs struct {
	Category string `json:"category"`
	Location string `json:"location"`
	Limit    int    `json:"limit"`
}

func (h *handlers) oldestItems(ctx context.Context, scope Scope, arguments json.RawMessage) Result {
	var args oldestItemsArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return invalidArguments(err)
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 5
	}

	locationID, result := h.resolveLocationFilter(ctx, scope, args.Location)
	if result != nil {
		return *result
	}

	oldest, err := h.service.Oldest(ctx, scope.InventoryID, storage.ItemFilter{
		Category:   args.Category,
		LocationID: locationID,
		Limit:      limit,
	})
	if err != nil {
		return failureResult(ToolOldestItems, err)
	}

	views := make([]OldestItemView, 0, len(oldest))
	for _, entry := range oldest {
		views = append(views, OldestItemView{
			ItemView:      itemView(entry.Item),
			OldestAddedAt: entry.OldestAddedAt.Format(time.RFC3339),
		})
	}
	return Result{
		OK:      true,
		Message: fmt.Sprintf("%d item(s) with the oldest stock", len(views)),
		Payload: map[string]any{"items": views},
	}
}

// ExpiringItemView pairs an item with one expiring batch.
type ExpiringItemView struct {
	ItemView
	LotID       string `json:"lot_id"`
	LotQuantity int    `json:"lot_quantity"`
	ExpiresAt   string `json:"expires_at"`
}

type expiringItemsArgs struct {
	Days  int `json:"days"`
	Limit int `json:"limit"`
}

func (h *handlers) expiringItems(ctx context.Context, scope Scope, arguments json.RawMessage) Result {
	var args expiringItemsArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return invalidArguments(err)
	}

	expiring, err := h.service.Expiring(ctx, scope.InventoryID, args.Days, args.Limit)
	if err != nil {
		return failureResult(ToolExpiringItems, err)
	}

	views := make([]ExpiringItemView, 0, len(expiring))
	for _, entry := range expiring {
		views = append(views, ExpiringItemView{
			ItemView:    itemView(entry.Item),
			LotID:       entry.LotID,
			LotQuantity: entry.LotQuantity,
			ExpiresAt:   entry.ExpiresAt.Format("2006-01-02"),
		})
	}
	return Result{
		OK:      true,
		Message: fmt.Sprintf("%d batch(es) expiring soon", len(views)),
		Payload: map[string]any{"items": views},
	}
}

type addLocationArgs struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *handlers) addLocation(ctx context.Context, scope Scope, arguments json.RawMessage) Result {
	var args addLocationArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return invalidArguments(err)
	}

	location, created, err := h.service.CreateLocation(ctx, scope.InventoryID, args.Name, args.Description)
	if err != nil {
		return failureResult(ToolAddLocation, err)
	}

	message := fmt.Sprintf("Created location %s", location.Name)
	if !created {
		message = fmt.Sprintf("Location %s already exists", location.Name)
	}
	return Result{
		OK:      true,
		Message: message,
		Payload: map[string]any{"location": locationView(location), "created": created},
	}
}

// parseExpirationDate accepts an optional YYYY-MM-DD date.
func parseExpirationDate(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("expiration_date must be YYYY-MM-DD, got %q", value)
	}
	return &parsed, nil
}

// resolveLocationFilter maps an optional location name to its id. A non-empty
// name that resolves to nothing short-circuits with a not-found result.
func (h *handlers) resolveLocationFilter(ctx context.Context, scope Scope, name string) (string, *Result) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	location, err := h.service.LookupLocation(ctx, scope.InventoryID, name)
	if err != nil {
		result := failureResult("resolve location filter", err)
		if result.Code == apperrors.CodeNotFound {
			result.Message = fmt.Sprintf("no location named %q", name)
		}
		return "", &result
	}
	return location.ID, nil
}
