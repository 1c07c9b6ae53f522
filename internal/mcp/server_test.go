package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/itemwise/itemwise/internal/app"
	"github.com/itemwise/itemwise/internal/storage"
	"github.com/itemwise/itemwise/internal/storage/sqlite"
	"github.com/itemwise/itemwise/internal/tools"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.PutInventory(context.Background(), storage.InventoryRecord{
		ID: "inv-1", Name: "household",
	}); err != nil {
		t.Fatalf("PutInventory() error = %v", err)
	}

	application, err := app.New(app.Config{Store: store})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	return application
}

func TestNewValidatesConfig(t *testing.T) {
	application := newTestApp(t)

	if _, err := New(nil, Config{InventoryID: "inv-1"}); err == nil {
		t.Error("New(nil app) error = nil, want error")
	}
	if _, err := New(application, Config{}); err == nil {
		t.Error("New(no inventory) error = nil, want error")
	}
	if _, err := New(application, Config{InventoryID: "inv-1", Actor: "agent"}); err != nil {
		t.Errorf("New() error = %v, want nil", err)
	}
}

func TestOutcomeFlattensResult(t *testing.T) {
	result := tools.Result{
		OK:      true,
		Message: "Added 2 x eggs (total: 2)",
		Payload: map[string]int{"lots": 1},
	}

	out := outcome(result)
	if !out.OK || out.Message != result.Message {
		t.Errorf("outcome = %+v, want fields preserved", out)
	}
	var details map[string]int
	if err := json.Unmarshal(out.Details, &details); err != nil {
		t.Fatalf("unmarshal details: %v", err)
	}
	if details["lots"] != 1 {
		t.Errorf("details = %v, want payload carried over", details)
	}

	empty := outcome(tools.Result{OK: false, Message: "nope", Code: "VALIDATION"})
	if empty.Details != nil {
		t.Errorf("Details = %s, want empty without payload", empty.Details)
	}
	if empty.Code != "VALIDATION" {
		t.Errorf("Code = %q, want carried code", empty.Code)
	}
}

func TestToolDescriptionsMatchDeclaredVocabulary(t *testing.T) {
	application := newTestApp(t)

	descriptions := toolDescriptions(application)
	for _, definition := range application.Registry().Definitions() {
		if descriptions[definition.Name] == "" {
			t.Errorf("description missing for %s", definition.Name)
		}
	}
	if len(descriptions) != len(application.Registry().Definitions()) {
		t.Errorf("len(descriptions) = %d, want one per declared tool", len(descriptions))
	}
}
