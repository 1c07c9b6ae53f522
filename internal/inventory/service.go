package inventory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/itemwise/itemwise/internal/embedding"
	apperrors "github.com/itemwise/itemwise/internal/errors"
	"github.com/itemwise/itemwise/internal/platform/id"
	"github.com/itemwise/itemwise/internal/storage"
)

// Service is the mutation engine over the persistent store. Embedding
// generation is advisory: provider failures are logged and mutations commit
// without a vector.
type Service struct {
	store    storage.Store
	embedder embedding.Provider

	now   func() time.Time
	newID func() (string, error)
}

// NewService builds the mutation engine. The embedder may be nil, in which
// case records persist without vectors and search degrades to lexical-only.
func NewService(store storage.Store, embedder embedding.Provider) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		now:      time.Now,
		newID:    id.NewID,
	}
}

// AddInput describes one stock addition. ExpiresAt optionally dates the batch
// for expiration tracking.
type AddInput struct {
	InventoryID string
	Name        string
	Category    string
	Location    string
	Description string
	Quantity    int
	Actor       string
	Notes       string
	ExpiresAt   *time.Time
}

// AddResult reports the stored item and lot after an addition.
type AddResult struct {
	Item            storage.ItemRecord
	Lot             storage.LotRecord
	ItemCreated     bool
	Location        *storage.LocationRecord
	LocationCreated bool
}

// Add resolves or creates the target item and appends one lot. Locations named
// in the input are resolved by normalized name and auto-created when absent.
func (s *Service) Add(ctx context.Context, input AddInput) (AddResult, error) {
	if input.InventoryID == "" {
		return AddResult{}, validationError("inventory id is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return AddResult{}, validationError("item name is required")
	}
	if input.Quantity <= 0 {
		return AddResult{}, validationError("quantity must be positive, got %d", input.Quantity)
	}

	var result AddResult
	if strings.TrimSpace(input.Location) != "" {
		location, created, err := s.resolveLocation(ctx, input.InventoryID, input.Location)
		if err != nil {
			return AddResult{}, err
		}
		result.Location = &location
		result.LocationCreated = created
	}

	locationID := ""
	if result.Location != nil {
		locationID = result.Location.ID
	}

	vector := s.embed(ctx, EmbeddingText(name, input.Category, input.Description))

	stored, err := s.store.AddStock(ctx, storage.AddStockParams{
		InventoryID: input.InventoryID,
		Name:        name,
		Category:    strings.TrimSpace(input.Category),
		Description: strings.TrimSpace(input.Description),
		LocationID:  locationID,
		Embedding:   vector,
		Quantity:    input.Quantity,
		AddedBy:     input.Actor,
		Notes:       strings.TrimSpace(input.Notes),
		AddedAt:     s.now(),
		ExpiresAt:   input.ExpiresAt,
	})
	if err != nil {
		return AddResult{}, mapStoreError(err)
	}

	// A resolved existing item may predate embeddings or have stale text.
	if !stored.Created && vector != nil {
		if err := s.store.SetItemEmbedding(ctx, stored.Item.ID, vector); err != nil {
			log.Printf("set item embedding: %v", err)
		}
	}

	result.Item = stored.Item
	result.Lot = stored.Lot
	result.ItemCreated = stored.Created
	return result, nil
}

// RemoveInput describes one stock removal. Exactly one of ItemID or Name must
// identify the item; LotID optionally targets a single lot.
type RemoveInput struct {
	InventoryID string
	ItemID      string
	Name        string
	LotID       string
	Quantity    int
	Actor       string
}

// RemoveResult reports the item state after a removal.
type RemoveResult struct {
	Item     storage.ItemRecord
	Consumed []storage.LotConsumption
	Removed  int
}

// Remove takes quantity from an item's lots oldest-first, or from one targeted
// lot. Removals are all-or-nothing: a shortfall changes nothing and reports
// how many units were missing.
func (s *Service) Remove(ctx context.Context, input RemoveInput) (RemoveResult, error) {
	if input.InventoryID == "" {
		return RemoveResult{}, validationError("inventory id is required")
	}
	if input.Quantity <= 0 {
		return RemoveResult{}, validationError("quantity must be positive, got %d", input.Quantity)
	}

	itemID := input.ItemID
	if itemID == "" {
		item, err := s.resolveItemByName(ctx, input.InventoryID, input.Name)
		if err != nil {
			return RemoveResult{}, err
		}
		itemID = item.ID
	}

	result, err := s.store.ConsumeStock(ctx, storage.ConsumeStockParams{
		InventoryID: input.InventoryID,
		ItemID:      itemID,
		LotID:       input.LotID,
		Quantity:    input.Quantity,
	})
	if err != nil {
		return RemoveResult{}, mapStoreError(err)
	}

	return RemoveResult{Item: result.Item, Consumed: result.Consumed, Removed: input.Quantity}, nil
}

// resolveItemByName prefers an exact case-insensitive name match, then a
// unique substring match. Ambiguity is reported rather than guessed at.
func (s *Service) resolveItemByName(ctx context.Context, inventoryID, name string) (storage.ItemRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.ItemRecord{}, validationError("item id or name is required")
	}

	matches, err := s.store.MatchItemNames(ctx, inventoryID, name, "", 0)
	if err != nil {
		return storage.ItemRecord{}, mapStoreError(err)
	}
	if len(matches) == 0 {
		return storage.ItemRecord{}, notFoundError("no item matching %q", name)
	}

	normalized := NormalizeName(name)
	var exact []storage.ItemRecord
	for _, match := range matches {
		if NormalizeName(match.Name) == normalized {
			exact = append(exact, match)
		}
	}
	switch {
	case len(exact) == 1:
		return exact[0], nil
	case len(exact) > 1:
		return storage.ItemRecord{}, validationError("%d items named %q; use an item id", len(exact), name)
	case len(matches) == 1:
		return matches[0], nil
	default:
		return storage.ItemRecord{}, validationError("%d items matching %q; use an exact name or item id", len(matches), name)
	}
}

// Get returns one item with its lots.
func (s *Service) Get(ctx context.Context, inventoryID, itemID string) (storage.ItemRecord, []storage.LotRecord, error) {
	item, err := s.store.GetItem(ctx, inventoryID, itemID)
	if err != nil {
		return storage.ItemRecord{}, nil, mapStoreError(err)
	}
	lots, err := s.store.ListLots(ctx, itemID)
	if err != nil {
		return storage.ItemRecord{}, nil, mapStoreError(err)
	}
	return item, lots, nil
}

// List returns items in the inventory, optionally filtered by category or
// location.
func (s *Service) List(ctx context.Context, inventoryID string, filter storage.ItemFilter) ([]storage.ItemRecord, error) {
	items, err := s.store.ListItems(ctx, inventoryID, filter)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return items, nil
}

// Oldest returns items ordered by the earliest lot still in stock.
func (s *Service) Oldest(ctx context.Context, inventoryID string, filter storage.ItemFilter) ([]storage.OldestItem, error) {
	oldest, err := s.store.OldestItems(ctx, inventoryID, filter)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return oldest, nil
}

// DefaultExpiringDays is the look-ahead window for expiration queries when the
// caller does not name one.
const DefaultExpiringDays = 7

// Expiring returns batches whose expiration date falls within the next days,
// soonest first. Batches without an expiration date never appear.
func (s *Service) Expiring(ctx context.Context, inventoryID string, days, limit int) ([]storage.ExpiringItem, error) {
	if inventoryID == "" {
		return nil, validationError("inventory id is required")
	}
	if days <= 0 {
		days = DefaultExpiringDays
	}

	until := s.now().AddDate(0, 0, days)
	expiring, err := s.store.ExpiringItems(ctx, inventoryID, until, limit)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return expiring, nil
}

// ListLocations returns every location in the inventory.
func (s *Service) ListLocations(ctx context.Context, inventoryID string) ([]storage.LocationRecord, error) {
	locations, err := s.store.ListLocations(ctx, inventoryID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return locations, nil
}

// UpdateInput describes a partial item update. Nil fields are untouched;
// Location resolves (and auto-creates) by name, with "" clearing the location.
type UpdateInput struct {
	InventoryID string
	ItemID      string
	Name        *string
	Category    *string
	Description *string
	Location    *string
}

// Update renames, recategorizes, or moves an item, re-embedding when the
// searchable text changed.
func (s *Service) Update(ctx context.Context, input UpdateInput) (storage.ItemRecord, error) {
	if input.InventoryID == "" || input.ItemID == "" {
		return storage.ItemRecord{}, validationError("inventory id and item id are required")
	}

	item, err := s.store.GetItem(ctx, input.InventoryID, input.ItemID)
	if err != nil {
		return storage.ItemRecord{}, mapStoreError(err)
	}

	textChanged := false
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return storage.ItemRecord{}, validationError("item name cannot be empty")
		}
		if name != item.Name {
			item.Name = name
			textChanged = true
		}
	}
	if input.Category != nil && *input.Category != item.Category {
		item.Category = strings.TrimSpace(*input.Category)
		textChanged = true
	}
	if input.Description != nil && *input.Description != item.Description {
		item.Description = strings.TrimSpace(*input.Description)
		textChanged = true
	}
	if input.Location != nil {
		if strings.TrimSpace(*input.Location) == "" {
			item.LocationID = ""
		} else {
			location, _, err := s.resolveLocation(ctx, input.InventoryID, *input.Location)
			if err != nil {
				return storage.ItemRecord{}, err
			}
			item.LocationID = location.ID
		}
	}

	if textChanged {
		if vector := s.embed(ctx, EmbeddingText(item.Name, item.Category, item.Description)); vector != nil {
			item.Embedding = vector
		}
	}

	if err := s.store.UpdateItem(ctx, item); err != nil {
		return storage.ItemRecord{}, mapStoreError(err)
	}
	updated, err := s.store.GetItem(ctx, input.InventoryID, input.ItemID)
	if err != nil {
		return storage.ItemRecord{}, mapStoreError(err)
	}
	return updated, nil
}

// CreateLocation resolves a location by normalized name, creating it when
// absent. The returned flag reports whether this call created it.
func (s *Service) CreateLocation(ctx context.Context, inventoryID, name, description string) (storage.LocationRecord, bool, error) {
	if inventoryID == "" {
		return storage.LocationRecord{}, false, validationError("inventory id is required")
	}
	location, created, err := s.resolveLocation(ctx, inventoryID, name)
	if err != nil {
		return storage.LocationRecord{}, false, err
	}
	if created && strings.TrimSpace(description) != "" {
		location.Description = strings.TrimSpace(description)
		if err := s.store.PutLocation(ctx, location); err != nil {
			return storage.LocationRecord{}, false, mapStoreError(err)
		}
	}
	return location, created, nil
}

// LookupLocation resolves a location by normalized name without creating it.
func (s *Service) LookupLocation(ctx context.Context, inventoryID, name string) (storage.LocationRecord, error) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return storage.LocationRecord{}, validationError("location name is required")
	}
	location, err := s.store.FindLocation(ctx, inventoryID, normalized)
	if err != nil {
		return storage.LocationRecord{}, mapStoreError(err)
	}
	return location, nil
}

func (s *Service) resolveLocation(ctx context.Context, inventoryID, name string) (storage.LocationRecord, bool, error) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return storage.LocationRecord{}, false, validationError("location name is required")
	}

	location, err := s.store.FindLocation(ctx, inventoryID, normalized)
	if err == nil {
		return location, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.LocationRecord{}, false, mapStoreError(err)
	}

	locationID, err := s.newID()
	if err != nil {
		return storage.LocationRecord{}, false, fmt.Errorf("generate location id: %w", err)
	}
	location = storage.LocationRecord{
		ID:             locationID,
		InventoryID:    inventoryID,
		Name:           DisplayName(normalized),
		NormalizedName: normalized,
		Embedding:      s.embed(ctx, normalized),
		CreatedAt:      s.now(),
	}
	if err := s.store.PutLocation(ctx, location); err != nil {
		// A concurrent create may have won the unique index race.
		if errors.Is(err, storage.ErrConflict) {
			existing, findErr := s.store.FindLocation(ctx, inventoryID, normalized)
			if findErr == nil {
				return existing, false, nil
			}
		}
		return storage.LocationRecord{}, false, mapStoreError(err)
	}
	return location, true, nil
}

// embed calls the provider and swallows failures; mutations never block on
// vector generation.
func (s *Service) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("embedding %q: %v", text, err)
		return nil
	}
	return vector
}

func mapStoreError(err error) error {
	var insufficient *storage.InsufficientQuantityError
	switch {
	case errors.As(err, &insufficient):
		return &Error{
			Code:      apperrors.CodeInsufficientQuantity,
			Message:   insufficient.Error(),
			Shortfall: insufficient.Shortfall(),
		}
	case errors.Is(err, storage.ErrNotFound):
		return notFoundError("%v", err)
	default:
		return err
	}
}
