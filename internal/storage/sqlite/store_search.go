package sqlite

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/itemwise/itemwise/internal/storage"
)

// NearestItems scans items carrying embeddings and orders them by ascending L2
// distance from the query vector. Items whose vector dimension differs from
// the query are skipped rather than failing the whole search.
func (s *Store) NearestItems(ctx context.Context, inventoryID string, query []float32, locationID string, limit int) ([]storage.SemanticMatch, error) {
	if len(query) == 0 {
		return nil, nil
	}

	sqlQuery := `SELECT ` + itemColumns + ` FROM items WHERE inventory_id = ? AND embedding IS NOT NULL`
	args := []any{inventoryID}
	if locationID != "" {
		sqlQuery += ` AND location_id = ?`
		args = append(args, locationID)
	}

	rows, err := s.sqlDB.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("nearest items: %w", err)
	}
	defer rows.Close()

	var matches []storage.SemanticMatch
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if len(item.Embedding) != len(query) {
			continue
		}
		matches = append(matches, storage.SemanticMatch{
			Item:     item,
			Distance: l2Distance(query, item.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Item.CreatedAt.After(matches[j].Item.CreatedAt)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// MatchItemNames returns items whose name contains the query as a
// case-insensitive substring, regardless of embedding availability.
func (s *Store) MatchItemNames(ctx context.Context, inventoryID, query, locationID string, limit int) ([]storage.ItemRecord, error) {
	if query == "" {
		return nil, nil
	}

	sqlQuery := `SELECT ` + itemColumns + ` FROM items
		 WHERE inventory_id = ? AND instr(lower(name), lower(?)) > 0`
	args := []any{inventoryID, query}
	if locationID != "" {
		sqlQuery += ` AND location_id = ?`
		args = append(args, locationID)
	}
	sqlQuery += ` ORDER BY created_at DESC, id ASC`
	if limit > 0 {
		sqlQuery += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("match item names: %w", err)
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
