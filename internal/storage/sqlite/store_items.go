package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/itemwise/itemwise/internal/platform/id"
	"github.com/itemwise/itemwise/internal/storage"
)

const itemColumns = "id, inventory_id, name, category, description, COALESCE(location_id, ''), quantity, embedding, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (storage.ItemRecord, error) {
	var record storage.ItemRecord
	var embedding []byte
	var createdAt int64
	var updatedAt sql.NullInt64

	err := row.Scan(&record.ID, &record.InventoryID, &record.Name, &record.Category,
		&record.Description, &record.LocationID, &record.Quantity, &embedding,
		&createdAt, &updatedAt)
	if err != nil {
		return storage.ItemRecord{}, err
	}

	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromNullMillis(updatedAt)
	record.Embedding, err = decodeVector(embedding)
	if err != nil {
		return storage.ItemRecord{}, fmt.Errorf("decode item embedding: %w", err)
	}
	return record, nil
}

// AddStock resolves or creates the target item and appends one lot, keeping the
// denormalized item quantity equal to the sum of its lots. Everything runs in a
// single transaction.
func (s *Store) AddStock(ctx context.Context, params storage.AddStockParams) (storage.AddStockResult, error) {
	if params.InventoryID == "" {
		return storage.AddStockResult{}, fmt.Errorf("inventory id is required")
	}
	if params.Quantity <= 0 {
		return storage.AddStockResult{}, fmt.Errorf("quantity must be positive, got %d", params.Quantity)
	}

	addedAt := params.AddedAt
	if addedAt.IsZero() {
		addedAt = s.now()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.AddStockResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	item, created, err := s.resolveItemTx(ctx, tx, params, addedAt)
	if err != nil {
		return storage.AddStockResult{}, err
	}

	lotID, err := id.NewID()
	if err != nil {
		return storage.AddStockResult{}, fmt.Errorf("generate lot id: %w", err)
	}
	lot := storage.LotRecord{
		ID:        lotID,
		ItemID:    item.ID,
		Quantity:  params.Quantity,
		AddedAt:   addedAt,
		AddedBy:   params.AddedBy,
		Notes:     params.Notes,
		ExpiresAt: params.ExpiresAt,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO lots (id, item_id, quantity, added_at, added_by, notes, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lot.ID, lot.ItemID, lot.Quantity, toMillis(lot.AddedAt), lot.AddedBy, lot.Notes, toNullMillis(lot.ExpiresAt))
	if err != nil {
		return storage.AddStockResult{}, fmt.Errorf("insert lot: %w", err)
	}

	if err := recomputeQuantityTx(ctx, tx, item.ID, toMillis(addedAt)); err != nil {
		return storage.AddStockResult{}, err
	}

	item, err = getItemTx(ctx, tx, params.InventoryID, item.ID)
	if err != nil {
		return storage.AddStockResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return storage.AddStockResult{}, fmt.Errorf("commit tx: %w", err)
	}

	return storage.AddStockResult{Item: item, Lot: lot, Created: created}, nil
}

// resolveItemTx finds the target item for an add. Resolution is by explicit id
// when provided, otherwise by case-insensitive name within the inventory. An
// unresolved name creates a fresh item with quantity zero.
func (s *Store) resolveItemTx(ctx context.Context, tx *sql.Tx, params storage.AddStockParams, addedAt time.Time) (storage.ItemRecord, bool, error) {
	if params.ItemID != "" {
		item, err := getItemTx(ctx, tx, params.InventoryID, params.ItemID)
		if err != nil {
			return storage.ItemRecord{}, false, err
		}
		return item, false, nil
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return storage.ItemRecord{}, false, fmt.Errorf("item name is required")
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE inventory_id = ? AND lower(name) = lower(?)
		   AND lower(category) = lower(?) AND COALESCE(location_id, '') = ?
		 ORDER BY created_at ASC, id ASC LIMIT 1`,
		params.InventoryID, name, params.Category, params.LocationID)
	item, err := scanItem(row)
	if err == nil {
		return item, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return storage.ItemRecord{}, false, fmt.Errorf("resolve item by name: %w", err)
	}

	itemID, err := id.NewID()
	if err != nil {
		return storage.ItemRecord{}, false, fmt.Errorf("generate item id: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO items (id, inventory_id, name, category, description, location_id, quantity, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		itemID, params.InventoryID, name, params.Category, params.Description,
		toNullString(params.LocationID), encodeVector(params.Embedding), toMillis(addedAt))
	if err != nil {
		return storage.ItemRecord{}, false, fmt.Errorf("insert item: %w", err)
	}

	item, err = getItemTx(ctx, tx, params.InventoryID, itemID)
	if err != nil {
		return storage.ItemRecord{}, false, err
	}
	return item, true, nil
}

// ConsumeStock removes quantity from an item's lots, oldest lot first, ties
// broken by lot id. The removal is all-or-nothing: a shortfall returns
// *storage.InsufficientQuantityError and leaves every lot untouched.
func (s *Store) ConsumeStock(ctx context.Context, params storage.ConsumeStockParams) (storage.ConsumeStockResult, error) {
	if params.Quantity <= 0 {
		return storage.ConsumeStockResult{}, fmt.Errorf("quantity must be positive, got %d", params.Quantity)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.ConsumeStockResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	item, err := getItemTx(ctx, tx, params.InventoryID, params.ItemID)
	if err != nil {
		return storage.ConsumeStockResult{}, err
	}

	lots, err := listLotsTx(ctx, tx, item.ID)
	if err != nil {
		return storage.ConsumeStockResult{}, err
	}
	if params.LotID != "" {
		lots = filterLot(lots, params.LotID)
		if len(lots) == 0 {
			return storage.ConsumeStockResult{}, fmt.Errorf("lot %s: %w", params.LotID, storage.ErrNotFound)
		}
	}

	available := 0
	for _, lot := range lots {
		available += lot.Quantity
	}
	if available < params.Quantity {
		return storage.ConsumeStockResult{}, &storage.InsufficientQuantityError{
			Requested: params.Quantity,
			Available: available,
		}
	}

	remaining := params.Quantity
	var consumed []storage.LotConsumption
	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		take := lot.Quantity
		if take > remaining {
			take = remaining
		}
		if take == lot.Quantity {
			_, err = tx.ExecContext(ctx, `DELETE FROM lots WHERE id = ?`, lot.ID)
		} else {
			_, err = tx.ExecContext(ctx, `UPDATE lots SET quantity = quantity - ? WHERE id = ?`, take, lot.ID)
		}
		if err != nil {
			return storage.ConsumeStockResult{}, fmt.Errorf("consume lot %s: %w", lot.ID, err)
		}
		consumed = append(consumed, storage.LotConsumption{
			LotID:   lot.ID,
			Taken:   take,
			AddedAt: lot.AddedAt,
			Drained: take == lot.Quantity,
		})
		remaining -= take
	}

	if err := recomputeQuantityTx(ctx, tx, item.ID, toMillis(s.now())); err != nil {
		return storage.ConsumeStockResult{}, err
	}

	item, err = getItemTx(ctx, tx, params.InventoryID, item.ID)
	if err != nil {
		return storage.ConsumeStockResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return storage.ConsumeStockResult{}, fmt.Errorf("commit tx: %w", err)
	}

	return storage.ConsumeStockResult{Item: item, Consumed: consumed}, nil
}

func filterLot(lots []storage.LotRecord, lotID string) []storage.LotRecord {
	for _, lot := range lots {
		if lot.ID == lotID {
			return []storage.LotRecord{lot}
		}
	}
	return nil
}

// recomputeQuantityTx rewrites the denormalized item quantity from the lot
// ledger so the two can never drift.
func recomputeQuantityTx(ctx context.Context, tx *sql.Tx, itemID string, nowMillis int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE items
		 SET quantity = (SELECT COALESCE(SUM(quantity), 0) FROM lots WHERE item_id = ?),
		     updated_at = ?
		 WHERE id = ?`,
		itemID, nowMillis, itemID)
	if err != nil {
		return fmt.Errorf("recompute item quantity: %w", err)
	}
	return nil
}

func getItemTx(ctx context.Context, tx *sql.Tx, inventoryID, itemID string) (storage.ItemRecord, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE inventory_id = ? AND id = ?`,
		inventoryID, itemID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ItemRecord{}, fmt.Errorf("item %s: %w", itemID, storage.ErrNotFound)
	}
	if err != nil {
		return storage.ItemRecord{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func (s *Store) GetItem(ctx context.Context, inventoryID, itemID string) (storage.ItemRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE inventory_id = ? AND id = ?`,
		inventoryID, itemID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ItemRecord{}, fmt.Errorf("item %s: %w", itemID, storage.ErrNotFound)
	}
	if err != nil {
		return storage.ItemRecord{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func (s *Store) ListItems(ctx context.Context, inventoryID string, filter storage.ItemFilter) ([]storage.ItemRecord, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE inventory_id = ?`
	args := []any{inventoryID}
	if filter.Category != "" {
		query += ` AND lower(category) = lower(?)`
		args = append(args, filter.Category)
	}
	if filter.LocationID != "" {
		query += ` AND location_id = ?`
		args = append(args, filter.LocationID)
	}
	query += ` ORDER BY lower(name) ASC, created_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []storage.ItemRecord
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (s *Store) UpdateItem(ctx context.Context, record storage.ItemRecord) error {
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE items
		 SET name = ?, category = ?, description = ?, location_id = ?, embedding = ?, updated_at = ?
		 WHERE inventory_id = ? AND id = ?`,
		record.Name, record.Category, record.Description, toNullString(record.LocationID),
		encodeVector(record.Embedding), toMillis(s.now()), record.InventoryID, record.ID)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update item rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s: %w", record.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, inventoryID, itemID string) error {
	result, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM items WHERE inventory_id = ? AND id = ?`, inventoryID, itemID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete item rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s: %w", itemID, storage.ErrNotFound)
	}
	return nil
}

// SetItemEmbedding updates the advisory search vector. The item may have been
// deleted between the mutation and the embedding call, so a missing row is not
// an error.
func (s *Store) SetItemEmbedding(ctx context.Context, itemID string, embedding []float32) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE items SET embedding = ? WHERE id = ?`, encodeVector(embedding), itemID)
	if err != nil {
		return fmt.Errorf("set item embedding: %w", err)
	}
	return nil
}

func listLotsTx(ctx context.Context, tx *sql.Tx, itemID string) ([]storage.LotRecord, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, item_id, quantity, added_at, added_by, notes, expires_at
		 FROM lots WHERE item_id = ? ORDER BY added_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()
	return collectLots(rows)
}

func (s *Store) ListLots(ctx context.Context, itemID string) ([]storage.LotRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, item_id, quantity, added_at, added_by, notes, expires_at
		 FROM lots WHERE item_id = ? ORDER BY added_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()
	return collectLots(rows)
}

func collectLots(rows *sql.Rows) ([]storage.LotRecord, error) {
	var lots []storage.LotRecord
	for rows.Next() {
		var lot storage.LotRecord
		var addedAt int64
		var expiresAt sql.NullInt64
		if err := rows.Scan(&lot.ID, &lot.ItemID, &lot.Quantity, &addedAt, &lot.AddedBy, &lot.Notes, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lot.AddedAt = fromMillis(addedAt)
		lot.ExpiresAt = fromNullMillis(expiresAt)
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lots: %w", err)
	}
	return lots, nil
}

// ExpiringItems returns lots expiring at or before until, soonest first, ties
// broken by lot id. Lots without an expiration date never qualify.
func (s *Store) ExpiringItems(ctx context.Context, inventoryID string, until time.Time, limit int) ([]storage.ExpiringItem, error) {
	query := `SELECT i.id, i.inventory_id, i.name, i.category, i.description,
		   COALESCE(i.location_id, ''), i.quantity, i.embedding, i.created_at, i.updated_at,
		   l.id, l.quantity, l.expires_at
		 FROM items i JOIN lots l ON l.item_id = i.id
		 WHERE i.inventory_id = ? AND l.expires_at IS NOT NULL AND l.expires_at <= ?
		 ORDER BY l.expires_at ASC, l.id ASC`
	args := []any{inventoryID, toMillis(until)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("expiring items: %w", err)
	}
	defer rows.Close()

	var expiring []storage.ExpiringItem
	for rows.Next() {
		var entry storage.ExpiringItem
		var embedding []byte
		var createdAt, expiresAt int64
		var updatedAt sql.NullInt64
		err := rows.Scan(&entry.Item.ID, &entry.Item.InventoryID, &entry.Item.Name,
			&entry.Item.Category, &entry.Item.Description, &entry.Item.LocationID,
			&entry.Item.Quantity, &embedding, &createdAt, &updatedAt,
			&entry.LotID, &entry.LotQuantity, &expiresAt)
		if err != nil {
			return nil, fmt.Errorf("scan expiring item: %w", err)
		}
		entry.Item.CreatedAt = fromMillis(createdAt)
		entry.Item.UpdatedAt = fromNullMillis(updatedAt)
		entry.Item.Embedding, err = decodeVector(embedding)
		if err != nil {
			return nil, fmt.Errorf("decode item embedding: %w", err)
		}
		entry.ExpiresAt = fromMillis(expiresAt)
		expiring = append(expiring, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expiring items: %w", err)
	}
	return expiring, nil
}

// OldestItems orders items holding stock by the earliest added_at among their
// active lots, so perishables surface oldest-first.
func (s *Store) OldestItems(ctx context.Context, inventoryID string, filter storage.ItemFilter) ([]storage.OldestItem, error) {
	query := `SELECT i.id, i.inventory_id, i.name, i.category, i.description,
		   COALESCE(i.location_id, ''), i.quantity, i.embedding, i.created_at, i.updated_at,
		   MIN(l.added_at) AS oldest_added_at
		 FROM items i JOIN lots l ON l.item_id = i.id
		 WHERE i.inventory_id = ?`
	args := []any{inventoryID}
	if filter.Category != "" {
		query += ` AND lower(i.category) = lower(?)`
		args = append(args, filter.Category)
	}
	if filter.LocationID != "" {
		query += ` AND i.location_id = ?`
		args = append(args, filter.LocationID)
	}
	query += ` GROUP BY i.id ORDER BY oldest_added_at ASC, i.id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("oldest items: %w", err)
	}
	defer rows.Close()

	var oldest []storage.OldestItem
	for rows.Next() {
		var record storage.ItemRecord
		var embedding []byte
		var createdAt, oldestAddedAt int64
		var updatedAt sql.NullInt64
		err := rows.Scan(&record.ID, &record.InventoryID, &record.Name, &record.Category,
			&record.Description, &record.LocationID, &record.Quantity, &embedding,
			&createdAt, &updatedAt, &oldestAddedAt)
		if err != nil {
			return nil, fmt.Errorf("scan oldest item: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		record.UpdatedAt = fromNullMillis(updatedAt)
		record.Embedding, err = decodeVector(embedding)
		if err != nil {
			return nil, fmt.Errorf("decode item embedding: %w", err)
		}
		oldest = append(oldest, storage.OldestItem{Item: record, OldestAddedAt: fromMillis(oldestAddedAt)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate oldest items: %w", err)
	}
	return oldest, nil
}
