package sqlite

import (
	"context"
	"fmt"

	"github.com/itemwise/itemwise/internal/platform/id"
	"github.com/itemwise/itemwise/internal/storage"
)

// AppendAuditEvent records one append-only audit entry. Entries are never
// updated or deleted.
func (s *Store) AppendAuditEvent(ctx context.Context, record storage.AuditRecord) error {
	if record.InventoryID == "" || record.Operation == "" {
		return fmt.Errorf("audit inventory id and operation are required")
	}
	recordID := record.ID
	if recordID == "" {
		var err error
		recordID, err = id.NewID()
		if err != nil {
			return fmt.Errorf("generate audit id: %w", err)
		}
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO audit_log (id, inventory_id, operation, item_id, payload_json, status, actor, trace_id, span_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recordID, record.InventoryID, record.Operation, toNullString(record.ItemID),
		record.PayloadJSON, record.Status, record.Actor, record.TraceID, record.SpanID,
		toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the most recent audit entries, newest first.
func (s *Store) ListAuditEvents(ctx context.Context, inventoryID string, limit int) ([]storage.AuditRecord, error) {
	query := `SELECT id, inventory_id, operation, COALESCE(item_id, ''), payload_json, status, actor, trace_id, span_id, created_at
		 FROM audit_log WHERE inventory_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{inventoryID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []storage.AuditRecord
	for rows.Next() {
		var record storage.AuditRecord
		var createdAt int64
		err := rows.Scan(&record.ID, &record.InventoryID, &record.Operation, &record.ItemID,
			&record.PayloadJSON, &record.Status, &record.Actor, &record.TraceID, &record.SpanID,
			&createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		events = append(events, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
