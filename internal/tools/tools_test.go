package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/itemwise/itemwise/internal/errors"
	"github.com/itemwise/itemwise/internal/inventory"
	"github.com/itemwise/itemwise/internal/search"
	"github.com/itemwise/itemwise/internal/storage"
	"github.com/itemwise/itemwise/internal/storage/sqlite"
)

var testScope = Scope{InventoryID: "inv-1", Actor: "mia"}

func newTestRegistry(t *testing.T) *Registry {
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

	service := inventory.NewService(store, nil)
	engine := search.NewEngine(store, nil)
	registry := NewRegistry(service, engine)
	if err := registry.Verify(); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	return registry
}

func dispatch(t *testing.T, registry *Registry, name, arguments string) Result {
	t.Helper()
	return registry.Dispatch(context.Background(), testScope, Call{
		ID:        "call-1",
		Name:      name,
		Arguments: json.RawMessage(arguments),
	})
}

func TestVerifyDetectsMismatch(t *testing.T) {
	registry := newTestRegistry(t)

	delete(registry.handlers, ToolOldestItems)
	err := registry.Verify()
	if err == nil {
		t.Fatal("Verify() error = nil, want mismatch")
	}
	if !strings.Contains(err.Error(), ToolOldestItems) {
		t.Errorf("error = %v, want missing tool named", err)
	}

	registry = newTestRegistry(t)
	registry.handlers["mystery_tool"] = func(context.Context, Scope, json.RawMessage) Result {
		return Result{}
	}
	err = registry.Verify()
	if err == nil {
		t.Fatal("Verify() error = nil, want mismatch for undeclared handler")
	}
	if !strings.Contains(err.Error(), "mystery_tool") {
		t.Errorf("error = %v, want extra handler named", err)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	registry := newTestRegistry(t)

	result := dispatch(t, registry, "reticulate_splines", `{}`)
	if result.OK {
		t.Error("OK = true, want failure for unknown tool")
	}
	if result.Code != apperrors.CodeUnsupportedOperation {
		t.Errorf("Code = %s, want unsupported operation", result.Code)
	}
	if !strings.Contains(result.Message, "reticulate_splines") {
		t.Errorf("Message = %q, want the unknown name included", result.Message)
	}
}

func TestAddItemRoundTrip(t *testing.T) {
	registry := newTestRegistry(t)

	result := dispatch(t, registry, ToolAddItem, `{"name":"eggs","quantity":2,"location":"fridge"}`)
	if !result.OK {
		t.Fatalf("addItem result = %+v, want success", result)
	}
	if !strings.Contains(result.Message, "Added 2 x eggs") {
		t.Errorf("Message = %q, want add summary", result.Message)
	}

	result = dispatch(t, registry, ToolListItems, `{}`)
	if !result.OK {
		t.Fatalf("listItems result = %+v, want success", result)
	}
	payload := result.Payload.(map[string]any)
	items := payload["items"].([]ItemView)
	if len(items) != 1 || items[0].Name != "eggs" || items[0].Quantity != 2 {
		t.Errorf("items = %+v, want one stocked item", items)
	}

	result = dispatch(t, registry, ToolListLocations, `{}`)
	locations := result.Payload.(map[string]any)["locations"].([]LocationView)
	if len(locations) != 1 || locations[0].Name != "Fridge" {
		t.Errorf("locations = %+v, want the auto-created location", locations)
	}
}

func TestAddItemValidation(t *testing.T) {
	registry := newTestRegistry(t)

	tests := []struct {
		name      string
		arguments string
	}{
		{name: "malformed json", arguments: `{"name":`},
		{name: "missing quantity", arguments: `{"name":"eggs"}`},
		{name: "negative quantity", arguments: `{"name":"eggs","quantity":-1}`},
		{name: "missing name", arguments: `{"quantity":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := dispatch(t, registry, ToolAddItem, tt.arguments)
			if result.OK {
				t.Fatalf("result = %+v, want failure", result)
			}
			if result.Code != apperrors.CodeValidation {
				t.Errorf("Code = %s, want validation", result.Code)
			}
		})
	}
}

func TestRemoveItemShortfallResult(t *testing.T) {
	registry := newTestRegistry(t)

	dispatch(t, registry, ToolAddItem, `{"name":"milk","quantity":2}`)

	result := dispatch(t, registry, ToolRemoveItem, `{"name":"milk","quantity":5}`)
	if result.OK {
		t.Fatalf("result = %+v, want failure on shortfall", result)
	}
	if result.Code != apperrors.CodeInsufficientQuantity {
		t.Errorf("Code = %s, want insufficient quantity", result.Code)
	}
	shortfall := result.Payload.(map[string]int)["shortfall"]
	if shortfall != 3 {
		t.Errorf("shortfall = %d, want 3", shortfall)
	}

	// The failed removal changed nothing.
	result = dispatch(t, registry, ToolRemoveItem, `{"name":"milk","quantity":2}`)
	if !result.OK {
		t.Fatalf("result = %+v, want success removing the intact stock", result)
	}
}

func TestUpdateItemRoundTrip(t *testing.T) {
	registry := newTestRegistry(t)

	added := dispatch(t, registry, ToolAddItem, `{"name":"eggs","quantity":2,"category":"dairy"}`)
	if !added.OK {
		t.Fatalf("addItem result = %+v, want success", added)
	}
	itemID := added.Payload.(map[string]any)["item"].(ItemView).ID

	result := dispatch(t, registry, ToolUpdateItem,
		fmt.Sprintf(`{"item_id":%q,"name":"duck eggs","description":"from the market"}`, itemID))
	if !result.OK {
		t.Fatalf("updateItem result = %+v, want success", result)
	}
	if !strings.Contains(result.Message, "duck eggs") {
		t.Errorf("Message = %q, want the new name reported", result.Message)
	}
	item := result.Payload.(map[string]any)["item"].(ItemView)
	if item.Name != "duck eggs" || item.Description != "from the market" {
		t.Errorf("item = %+v, want updated fields", item)
	}
	if item.Category != "dairy" {
		t.Errorf("Category = %q, want untouched field kept", item.Category)
	}
	if item.Quantity != 2 {
		t.Errorf("Quantity = %d, want stock untouched by a metadata update", item.Quantity)
	}

	missing := dispatch(t, registry, ToolUpdateItem, `{"item_id":"missing","name":"x"}`)
	if missing.OK || missing.Code != apperrors.CodeNotFound {
		t.Errorf("updateItem(missing) = %+v, want not found", missing)
	}
}

func TestExpiringItemsWindow(t *testing.T) {
	registry := newTestRegistry(t)

	soon := time.Now().AddDate(0, 0, 2).Format("2006-01-02")
	dispatch(t, registry, ToolAddItem,
		fmt.Sprintf(`{"name":"yogurt","quantity":2,"expiration_date":%q}`, soon))
	dispatch(t, registry, ToolAddItem, `{"name":"honey","quantity":1,"expiration_date":"2099-01-01"}`)
	dispatch(t, registry, ToolAddItem, `{"name":"salt","quantity":1}`)

	result := dispatch(t, registry, ToolExpiringItems, `{}`)
	if !result.OK {
		t.Fatalf("expiringItems result = %+v, want success", result)
	}
	items := result.Payload.(map[string]any)["items"].([]ExpiringItemView)
	if len(items) != 1 || items[0].Name != "yogurt" {
		t.Fatalf("items = %+v, want only the batch inside the default window", items)
	}
	if items[0].ExpiresAt != soon {
		t.Errorf("ExpiresAt = %q, want %q", items[0].ExpiresAt, soon)
	}
	if items[0].LotQuantity != 2 {
		t.Errorf("LotQuantity = %d, want 2", items[0].LotQuantity)
	}
}

func TestAddItemRejectsBadExpirationDate(t *testing.T) {
	registry := newTestRegistry(t)

	result := dispatch(t, registry, ToolAddItem, `{"name":"yogurt","quantity":1,"expiration_date":"next tuesday"}`)
	if result.OK {
		t.Fatalf("result = %+v, want failure", result)
	}
	if result.Code != apperrors.CodeValidation {
		t.Errorf("Code = %s, want validation", result.Code)
	}
	if !strings.Contains(result.Message, "YYYY-MM-DD") {
		t.Errorf("Message = %q, want the expected format named", result.Message)
	}
}

func TestSearchItemsLexical(t *testing.T) {
	registry := newTestRegistry(t)

	dispatch(t, registry, ToolAddItem, `{"name":"green tea","quantity":1}`)
	dispatch(t, registry, ToolAddItem, `{"name":"motor oil","quantity":1}`)

	result := dispatch(t, registry, ToolSearchItems, `{"query":"tea"}`)
	if !result.OK {
		t.Fatalf("result = %+v, want success", result)
	}
	items := result.Payload.(map[string]any)["items"].([]ScoredItemView)
	if len(items) != 1 || items[0].Name != "green tea" {
		t.Errorf("items = %+v, want the lexical match", items)
	}

	result = dispatch(t, registry, ToolSearchItems, `{"query":"   "}`)
	if result.OK || result.Code != apperrors.CodeValidation {
		t.Errorf("result = %+v, want validation failure on blank query", result)
	}
}

func TestLocationFilterNotFound(t *testing.T) {
	registry := newTestRegistry(t)

	result := dispatch(t, registry, ToolListItems, `{"location":"narnia"}`)
	if result.OK {
		t.Fatalf("result = %+v, want failure for unknown location", result)
	}
	if result.Code != apperrors.CodeNotFound {
		t.Errorf("Code = %s, want not found", result.Code)
	}
	if !strings.Contains(result.Message, "narnia") {
		t.Errorf("Message = %q, want the location named", result.Message)
	}
}

func TestOldestItemsDefaultLimit(t *testing.T) {
	registry := newTestRegistry(t)

	dispatch(t, registry, ToolAddItem, `{"name":"crackers","quantity":1}`)

	result := dispatch(t, registry, ToolOldestItems, `{}`)
	if !result.OK {
		t.Fatalf("result = %+v, want success", result)
	}
	items := result.Payload.(map[string]any)["items"].([]OldestItemView)
	if len(items) != 1 {
		t.Errorf("items = %+v, want the single stocked item", items)
	}
	if items[0].OldestAddedAt == "" {
		t.Error("OldestAddedAt = empty, want batch timestamp")
	}
}

func TestAddLocationIdempotent(t *testing.T) {
	registry := newTestRegistry(t)

	result := dispatch(t, registry, ToolAddLocation, `{"name":"spice rack","description":"by the stove"}`)
	if !result.OK {
		t.Fatalf("result = %+v, want success", result)
	}
	created := result.Payload.(map[string]any)["created"].(bool)
	if !created {
		t.Error("created = false, want new location")
	}

	result = dispatch(t, registry, ToolAddLocation, `{"name":"Spice Rack"}`)
	if !result.OK {
		t.Fatalf("result = %+v, want success on repeat", result)
	}
	if result.Payload.(map[string]any)["created"].(bool) {
		t.Error("created = true, want existing location reported")
	}
}

func TestFailureResultClassifiesErrors(t *testing.T) {
	unknown := failureResult("test op", fmt.Errorf("disk corrupted"))
	if unknown.OK {
		t.Error("OK = true, want failure")
	}
	if unknown.Code != apperrors.CodeUnknown {
		t.Errorf("Code = %s, want unknown for an unclassified error", unknown.Code)
	}
	if strings.Contains(unknown.Message, "try again") {
		t.Errorf("Message = %q, want no retry hint on a non-retryable failure", unknown.Message)
	}
	if strings.Contains(unknown.Message, "disk corrupted") {
		t.Errorf("Message = %q, want internals kept out of the result", unknown.Message)
	}

	timeout := failureResult("test op", fmt.Errorf("query: %w", context.DeadlineExceeded))
	if timeout.Code != apperrors.CodeTransient {
		t.Errorf("Code = %s, want transient for a deadline failure", timeout.Code)
	}
	if !strings.Contains(timeout.Message, "try again") {
		t.Errorf("Message = %q, want retry hint on a retryable failure", timeout.Message)
	}
}

func TestDestructiveFlag(t *testing.T) {
	registry := newTestRegistry(t)

	if !registry.IsDestructive(ToolRemoveItem) {
		t.Error("IsDestructive(remove_item) = false, want true")
	}
	for _, name := range []string{ToolAddItem, ToolUpdateItem, ToolSearchItems, ToolListItems, ToolListLocations, ToolOldestItems, ToolExpiringItems, ToolAddLocation} {
		if registry.IsDestructive(name) {
			t.Errorf("IsDestructive(%s) = true, want false", name)
		}
	}
}
