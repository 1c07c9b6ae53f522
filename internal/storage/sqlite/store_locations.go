package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/itemwise/itemwise/internal/storage"
)

const locationColumns = "id, inventory_id, name, normalized_name, description, embedding, created_at"

func scanLocation(row rowScanner) (storage.LocationRecord, error) {
	var record storage.LocationRecord
	var embedding []byte
	var createdAt int64

	err := row.Scan(&record.ID, &record.InventoryID, &record.Name, &record.NormalizedName,
		&record.Description, &embedding, &createdAt)
	if err != nil {
		return storage.LocationRecord{}, err
	}

	record.CreatedAt = fromMillis(createdAt)
	record.Embedding, err = decodeVector(embedding)
	if err != nil {
		return storage.LocationRecord{}, fmt.Errorf("decode location embedding: %w", err)
	}
	return record, nil
}

// PutLocation inserts or replaces a location. A normalized-name collision with
// a different location id reports storage.ErrConflict.
func (s *Store) PutLocation(ctx context.Context, record storage.LocationRecord) error {
	if record.ID == "" || record.InventoryID == "" {
		return fmt.Errorf("location id and inventory id are required")
	}
	if record.NormalizedName == "" {
		return fmt.Errorf("location normalized name is required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO locations (id, inventory_id, name, normalized_name, description, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   normalized_name = excluded.normalized_name,
		   description = excluded.description,
		   embedding = excluded.embedding`,
		record.ID, record.InventoryID, record.Name, record.NormalizedName,
		record.Description, encodeVector(record.Embedding), toMillis(createdAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("location %q: %w", record.Name, storage.ErrConflict)
		}
		return fmt.Errorf("put location: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Store) GetLocation(ctx context.Context, inventoryID, locationID string) (storage.LocationRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE inventory_id = ? AND id = ?`,
		inventoryID, locationID)
	record, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.LocationRecord{}, fmt.Errorf("location %s: %w", locationID, storage.ErrNotFound)
	}
	if err != nil {
		return storage.LocationRecord{}, fmt.Errorf("get location: %w", err)
	}
	return record, nil
}

// FindLocation looks a location up by its normalized name.
func (s *Store) FindLocation(ctx context.Context, inventoryID, normalizedName string) (storage.LocationRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE inventory_id = ? AND normalized_name = ?`,
		inventoryID, normalizedName)
	record, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.LocationRecord{}, fmt.Errorf("location %q: %w", normalizedName, storage.ErrNotFound)
	}
	if err != nil {
		return storage.LocationRecord{}, fmt.Errorf("find location: %w", err)
	}
	return record, nil
}

func (s *Store) ListLocations(ctx context.Context, inventoryID string) ([]storage.LocationRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE inventory_id = ? ORDER BY normalized_name ASC`,
		inventoryID)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var locations []storage.LocationRecord
	for rows.Next() {
		record, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}
	return locations, nil
}

// PutInventory inserts an inventory scope, updating the name when the id
// already exists.
func (s *Store) PutInventory(ctx context.Context, record storage.InventoryRecord) error {
	if record.ID == "" {
		return fmt.Errorf("inventory id is required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO inventories (id, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		record.ID, record.Name, toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("put inventory: %w", err)
	}
	return nil
}

func (s *Store) GetInventory(ctx context.Context, inventoryID string) (storage.InventoryRecord, error) {
	var record storage.InventoryRecord
	var createdAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM inventories WHERE id = ?`, inventoryID).
		Scan(&record.ID, &record.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.InventoryRecord{}, fmt.Errorf("inventory %s: %w", inventoryID, storage.ErrNotFound)
	}
	if err != nil {
		return storage.InventoryRecord{}, fmt.Errorf("get inventory: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}
