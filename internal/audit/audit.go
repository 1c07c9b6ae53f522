// Package audit appends operation events to the persistent audit trail.
// Emission is best-effort and never blocks or fails the underlying operation.
package audit

import (
	"context"
	"encoding/json"
	"log"

	"go.opentelemetry.io/otel/trace"

	"github.com/itemwise/itemwise/internal/storage"
)

// Event statuses. Confirm-gated operations move PENDING to CONFIRMED or
// REJECTED; everything else commits directly.
const (
	StatusCommitted = "COMMITTED"
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusRejected  = "REJECTED"
	StatusFailed    = "FAILED"
)

// Event is one auditable operation outcome. Payload is marshaled to JSON; a
// nil payload stores an empty object.
type Event struct {
	InventoryID string
	Operation   string
	ItemID      string
	Payload     any
	Status      string
	Actor       string
}

// Emitter writes audit events, stamping each with the active trace and span
// ids when a recording span is present.
type Emitter struct {
	store storage.AuditStore
}

// NewEmitter builds an audit emitter over the store.
func NewEmitter(store storage.AuditStore) *Emitter {
	return &Emitter{store: store}
}

// Emit persists one event. Failures are logged and swallowed so audit trouble
// never surfaces to the user path.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil || e.store == nil {
		return
	}

	payload := []byte("{}")
	if event.Payload != nil {
		encoded, err := json.Marshal(event.Payload)
		if err != nil {
			log.Printf("marshal audit payload for %s: %v", event.Operation, err)
		} else {
			payload = encoded
		}
	}

	record := storage.AuditRecord{
		InventoryID: event.InventoryID,
		Operation:   event.Operation,
		ItemID:      event.ItemID,
		PayloadJSON: payload,
		Status:      event.Status,
		Actor:       event.Actor,
	}
	if spanContext := trace.SpanFromContext(ctx).SpanContext(); spanContext.IsValid() {
		record.TraceID = spanContext.TraceID().String()
		record.SpanID = spanContext.SpanID().String()
	}

	if err := e.store.AppendAuditEvent(ctx, record); err != nil {
		log.Printf("append audit event %s: %v", event.Operation, err)
	}
}
