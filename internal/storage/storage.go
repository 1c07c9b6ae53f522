// Package storage defines the persistence records and interfaces for the
// inventory core. Implementations must keep item quantities and lot ledgers
// consistent inside a single transaction per mutating call.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates a uniqueness or state conflict.
var ErrConflict = errors.New("record conflict")

// InsufficientQuantityError reports a removal that exceeds available stock.
// The mutation is rolled back in full when this error is returned.
type InsufficientQuantityError struct {
	Requested int
	Available int
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity: requested %d, available %d", e.Requested, e.Available)
}

// Shortfall returns how many units the request exceeded the available stock by.
func (e *InsufficientQuantityError) Shortfall() int {
	return e.Requested - e.Available
}

// InventoryRecord is one shared inventory scope. Membership is resolved by an
// external collaborator; the core only receives the id.
type InventoryRecord struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// LocationRecord is one storage location within an inventory.
type LocationRecord struct {
	ID          string
	InventoryID string
	// Name is the display form; NormalizedName is lowercased with whitespace
	// runs folded and is unique per inventory.
	Name           string
	NormalizedName string
	Description    string
	Embedding      []float32
	CreatedAt      time.Time
}

// ItemRecord is one inventory item. Quantity always equals the sum of the
// item's active lots.
type ItemRecord struct {
	ID          string
	InventoryID string
	Name        string
	Category    string
	Description string
	LocationID  string
	Quantity    int
	Embedding   []float32
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// LotRecord is one batch addition to an item, consumed oldest-first.
// ExpiresAt is nil for batches without an expiration date.
type LotRecord struct {
	ID        string
	ItemID    string
	Quantity  int
	AddedAt   time.Time
	AddedBy   string
	Notes     string
	ExpiresAt *time.Time
}

// AuditRecord is one append-only operation audit entry.
type AuditRecord struct {
	ID          string
	InventoryID string
	Operation   string
	ItemID      string
	PayloadJSON []byte
	Status      string
	Actor       string
	TraceID     string
	SpanID      string
	CreatedAt   time.Time
}

// ItemFilter narrows item listings. Empty fields match everything.
type ItemFilter struct {
	Category   string
	LocationID string
	Limit      int
}

// AddStockParams describes one add mutation: resolve or create the item, then
// append one lot. Executed in a single transaction.
type AddStockParams struct {
	InventoryID string
	ItemID      string // when set, skips name resolution
	Name        string
	Category    string
	Description string
	LocationID  string
	Embedding   []float32
	Quantity    int
	AddedBy     string
	Notes       string
	AddedAt     time.Time
	ExpiresAt   *time.Time
}

// AddStockResult reports the item and lot after an add mutation.
type AddStockResult struct {
	Item    ItemRecord
	Lot     LotRecord
	Created bool // true when the item record was created by this call
}

// ConsumeStockParams describes one remove mutation. When LotID is set only
// that lot is decremented; otherwise lots drain oldest-first.
type ConsumeStockParams struct {
	InventoryID string
	ItemID      string
	LotID       string
	Quantity    int
}

// LotConsumption records how much one lot contributed to a removal.
type LotConsumption struct {
	LotID   string
	Taken   int
	AddedAt time.Time
	Drained bool // lot reached zero and was deleted
}

// ConsumeStockResult reports the item state after a remove mutation.
type ConsumeStockResult struct {
	Item     ItemRecord
	Consumed []LotConsumption
}

// OldestItem pairs an item with the earliest added_at among its active lots.
type OldestItem struct {
	Item          ItemRecord
	OldestAddedAt time.Time
}

// ExpiringItem pairs an item with one of its lots that carries an expiration
// date inside the queried window.
type ExpiringItem struct {
	Item        ItemRecord
	LotID       string
	LotQuantity int
	ExpiresAt   time.Time
}

// SemanticMatch pairs an item with its L2 distance from a query vector.
type SemanticMatch struct {
	Item     ItemRecord
	Distance float64
}

// ItemStore persists items and their lot ledgers.
type ItemStore interface {
	// AddStock resolves or creates the item and appends one lot, recomputing
	// the item quantity in the same transaction.
	AddStock(ctx context.Context, params AddStockParams) (AddStockResult, error)
	// ConsumeStock removes quantity from the item's lots. All-or-nothing: on
	// insufficient stock it returns *InsufficientQuantityError and no change.
	ConsumeStock(ctx context.Context, params ConsumeStockParams) (ConsumeStockResult, error)
	GetItem(ctx context.Context, inventoryID, itemID string) (ItemRecord, error)
	ListItems(ctx context.Context, inventoryID string, filter ItemFilter) ([]ItemRecord, error)
	UpdateItem(ctx context.Context, record ItemRecord) error
	DeleteItem(ctx context.Context, inventoryID, itemID string) error
	// SetItemEmbedding updates the advisory vector outside the mutation
	// transaction; a missing item is not an error.
	SetItemEmbedding(ctx context.Context, itemID string, embedding []float32) error
	ListLots(ctx context.Context, itemID string) ([]LotRecord, error)
	// OldestItems orders items by the earliest added_at among active lots.
	OldestItems(ctx context.Context, inventoryID string, filter ItemFilter) ([]OldestItem, error)
	// ExpiringItems returns lots with an expiration date at or before until,
	// soonest first. Lots without an expiration date never appear.
	ExpiringItems(ctx context.Context, inventoryID string, until time.Time, limit int) ([]ExpiringItem, error)
}

// SearchStore answers the two halves of hybrid search.
type SearchStore interface {
	// NearestItems returns items with embeddings ordered by ascending L2
	// distance from the query vector.
	NearestItems(ctx context.Context, inventoryID string, query []float32, locationID string, limit int) ([]SemanticMatch, error)
	// MatchItemNames returns items whose name contains the query,
	// case-insensitively, regardless of embedding availability.
	MatchItemNames(ctx context.Context, inventoryID, query, locationID string, limit int) ([]ItemRecord, error)
}

// LocationStore persists storage locations.
type LocationStore interface {
	PutLocation(ctx context.Context, record LocationRecord) error
	GetLocation(ctx context.Context, inventoryID, locationID string) (LocationRecord, error)
	FindLocation(ctx context.Context, inventoryID, normalizedName string) (LocationRecord, error)
	ListLocations(ctx context.Context, inventoryID string) ([]LocationRecord, error)
}

// InventoryStore persists inventory scopes.
type InventoryStore interface {
	PutInventory(ctx context.Context, record InventoryRecord) error
	GetInventory(ctx context.Context, inventoryID string) (InventoryRecord, error)
}

// AuditStore persists append-only audit entries.
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, record AuditRecord) error
	ListAuditEvents(ctx context.Context, inventoryID string, limit int) ([]AuditRecord, error)
}

// Store aggregates every persistence interface the core consumes.
type Store interface {
	InventoryStore
	LocationStore
	ItemStore
	SearchStore
	AuditStore
}
