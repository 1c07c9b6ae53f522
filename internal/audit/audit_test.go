package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/itemwise/itemwise/internal/storage"
)

type fakeAuditStore struct {
	records []storage.AuditRecord
	err     error
}

func (f *fakeAuditStore) AppendAuditEvent(_ context.Context, record storage.AuditRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeAuditStore) ListAuditEvents(context.Context, string, int) ([]storage.AuditRecord, error) {
	return f.records, nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &fakeAuditStore{}
	emitter := NewEmitter(store)

	emitter.Emit(context.Background(), Event{
		InventoryID: "inv-1",
		Operation:   "add_item",
		ItemID:      "item-1",
		Payload:     map[string]int{"quantity": 2},
		Status:      StatusCommitted,
		Actor:       "mia",
	})

	if len(store.records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(store.records))
	}
	record := store.records[0]
	if record.Operation != "add_item" || record.Status != StatusCommitted {
		t.Errorf("record = %+v, want operation and status preserved", record)
	}
	if string(record.PayloadJSON) != `{"quantity":2}` {
		t.Errorf("PayloadJSON = %s, want marshaled payload", record.PayloadJSON)
	}
	if record.TraceID != "" {
		t.Errorf("TraceID = %q, want empty without an active span", record.TraceID)
	}
}

func TestEmitSwallowsStoreFailure(t *testing.T) {
	store := &fakeAuditStore{err: fmt.Errorf("disk full")}
	emitter := NewEmitter(store)

	// Must not panic or surface the failure.
	emitter.Emit(context.Background(), Event{
		InventoryID: "inv-1",
		Operation:   "remove_item",
		Status:      StatusFailed,
	})
}

func TestEmitNilPayloadStoresEmptyObject(t *testing.T) {
	store := &fakeAuditStore{}
	emitter := NewEmitter(store)

	emitter.Emit(context.Background(), Event{
		InventoryID: "inv-1",
		Operation:   "search_items",
		Status:      StatusCommitted,
	})

	if string(store.records[0].PayloadJSON) != "{}" {
		t.Errorf("PayloadJSON = %s, want empty object", store.records[0].PayloadJSON)
	}
}

func TestEmitNilEmitterIsSafe(t *testing.T) {
	var emitter *Emitter
	emitter.Emit(context.Background(), Event{Operation: "add_item"})
}
