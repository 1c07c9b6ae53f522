package inventory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/itemwise/itemwise/internal/embedding"
	apperrors "github.com/itemwise/itemwise/internal/errors"
	"github.com/itemwise/itemwise/internal/storage"
	"github.com/itemwise/itemwise/internal/storage/sqlite"
)

const testInventory = "inv-1"

func newTestService(t *testing.T, embedder embedding.Provider) (*Service, storage.Store) {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.PutInventory(context.Background(), storage.InventoryRecord{
		ID:   testInventory,
		Name: "household",
	}); err != nil {
		t.Fatalf("PutInventory() error = %v", err)
	}

	service := NewService(store, embedder)
	// Millisecond timestamps can collide across consecutive adds; an advancing
	// fake clock keeps lot ordering deterministic.
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	step := 0
	service.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}
	return service, store
}

func mustAdd(t *testing.T, service *Service, input AddInput) AddResult {
	t.Helper()

	input.InventoryID = testInventory
	result, err := service.Add(context.Background(), input)
	if err != nil {
		t.Fatalf("Add(%+v) error = %v", input, err)
	}
	return result
}

func assertQuantityMatchesLots(t *testing.T, store storage.Store, itemID string) {
	t.Helper()

	item, err := store.GetItem(context.Background(), testInventory, itemID)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	lots, err := store.ListLots(context.Background(), itemID)
	if err != nil {
		t.Fatalf("ListLots() error = %v", err)
	}
	total := 0
	for _, lot := range lots {
		total += lot.Quantity
	}
	if item.Quantity != total {
		t.Errorf("item quantity = %d, lot total = %d; must stay equal", item.Quantity, total)
	}
}

func TestAddValidation(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		input AddInput
	}{
		{name: "missing name", input: AddInput{InventoryID: testInventory, Quantity: 1}},
		{name: "zero quantity", input: AddInput{InventoryID: testInventory, Name: "eggs"}},
		{name: "negative quantity", input: AddInput{InventoryID: testInventory, Name: "eggs", Quantity: -2}},
		{name: "missing inventory", input: AddInput{Name: "eggs", Quantity: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Add(ctx, tt.input)
			var engineErr *Error
			if !errors.As(err, &engineErr) || engineErr.Code != apperrors.CodeValidation {
				t.Errorf("Add() error = %v, want validation error", err)
			}
		})
	}
}

func TestAddAutoCreatesLocation(t *testing.T) {
	service, store := newTestService(t, nil)

	result := mustAdd(t, service, AddInput{
		Name:     "olive oil",
		Quantity: 1,
		Location: "  Mia's   pantry ",
	})

	if !result.LocationCreated {
		t.Error("LocationCreated = false, want auto-created location")
	}
	if result.Location == nil {
		t.Fatal("Location = nil, want resolved location")
	}
	if result.Location.Name != "Mia's Pantry" {
		t.Errorf("Location.Name = %q, want display form", result.Location.Name)
	}
	if result.Location.NormalizedName != "mia's pantry" {
		t.Errorf("NormalizedName = %q, want folded lowercase", result.Location.NormalizedName)
	}
	if result.Item.LocationID != result.Location.ID {
		t.Error("item not linked to the resolved location")
	}

	// Second add reuses the location despite different casing.
	again := mustAdd(t, service, AddInput{
		Name:     "vinegar",
		Quantity: 1,
		Location: "MIA'S PANTRY",
	})
	if again.LocationCreated {
		t.Error("LocationCreated = true, want existing location reused")
	}
	if again.Location.ID != result.Location.ID {
		t.Error("second add resolved a different location")
	}

	locations, err := store.ListLocations(context.Background(), testInventory)
	if err != nil {
		t.Fatalf("ListLocations() error = %v", err)
	}
	if len(locations) != 1 {
		t.Errorf("len(locations) = %d, want 1", len(locations))
	}
}

func TestRemoveFIFOAcrossLots(t *testing.T) {
	service, store := newTestService(t, nil)

	item := mustAdd(t, service, AddInput{Name: "eggs", Quantity: 2}).Item
	mustAdd(t, service, AddInput{Name: "eggs", Quantity: 3})
	mustAdd(t, service, AddInput{Name: "eggs", Quantity: 4})

	result, err := service.Remove(context.Background(), RemoveInput{
		InventoryID: testInventory,
		Name:        "eggs",
		Quantity:    4,
	})
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if result.Item.Quantity != 5 {
		t.Errorf("Item.Quantity = %d, want 5", result.Item.Quantity)
	}
	if len(result.Consumed) != 2 {
		t.Fatalf("len(Consumed) = %d, want oldest lot drained plus one partial", len(result.Consumed))
	}
	if !result.Consumed[0].Drained || result.Consumed[0].Taken != 2 {
		t.Errorf("Consumed[0] = %+v, want oldest lot of 2 fully drained", result.Consumed[0])
	}
	if result.Consumed[1].Drained || result.Consumed[1].Taken != 2 {
		t.Errorf("Consumed[1] = %+v, want 2 taken from the lot of 3", result.Consumed[1])
	}
	assertQuantityMatchesLots(t, store, item.ID)
}

func TestRemoveShortfallIsAllOrNothing(t *testing.T) {
	service, store := newTestService(t, nil)

	item := mustAdd(t, service, AddInput{Name: "milk", Quantity: 2}).Item

	_, err := service.Remove(context.Background(), RemoveInput{
		InventoryID: testInventory,
		Name:        "milk",
		Quantity:    5,
	})
	var engineErr *Error
	if !errors.As(err, &engineErr) {
		t.Fatalf("Remove() error = %v, want *Error", err)
	}
	if engineErr.Code != apperrors.CodeInsufficientQuantity {
		t.Errorf("Code = %s, want insufficient quantity", engineErr.Code)
	}
	if engineErr.Shortfall != 3 {
		t.Errorf("Shortfall = %d, want 3", engineErr.Shortfall)
	}

	got, err := store.GetItem(context.Background(), testInventory, item.ID)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if got.Quantity != 2 {
		t.Errorf("quantity = %d after failed removal, want 2 unchanged", got.Quantity)
	}
	assertQuantityMatchesLots(t, store, item.ID)
}

func TestRemoveResolvesNames(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	mustAdd(t, service, AddInput{Name: "green tea", Quantity: 2})
	mustAdd(t, service, AddInput{Name: "black tea", Quantity: 2})

	// Exact (case-insensitive) match wins over the substring ambiguity.
	if _, err := service.Remove(ctx, RemoveInput{
		InventoryID: testInventory, Name: "Green Tea", Quantity: 1,
	}); err != nil {
		t.Errorf("Remove(exact name) error = %v", err)
	}

	// "tea" matches both items and neither exactly.
	_, err := service.Remove(ctx, RemoveInput{InventoryID: testInventory, Name: "tea", Quantity: 1})
	var engineErr *Error
	if !errors.As(err, &engineErr) || engineErr.Code != apperrors.CodeValidation {
		t.Errorf("Remove(ambiguous) error = %v, want validation error", err)
	}

	_, err = service.Remove(ctx, RemoveInput{InventoryID: testInventory, Name: "coffee", Quantity: 1})
	if !errors.As(err, &engineErr) || engineErr.Code != apperrors.CodeNotFound {
		t.Errorf("Remove(missing) error = %v, want not found", err)
	}
}

func TestAddEmbedsItems(t *testing.T) {
	var embedded []string
	embedder := embedding.ProviderFunc(func(_ context.Context, text string) ([]float32, error) {
		embedded = append(embedded, text)
		return []float32{1, 2, 3}, nil
	})
	service, store := newTestService(t, embedder)

	result := mustAdd(t, service, AddInput{
		Name:        "eggs",
		Category:    "dairy",
		Description: "free range",
		Quantity:    1,
	})

	if result.Item.Embedding == nil {
		t.Error("item embedding = nil, want stored vector")
	}
	want := "eggs | category: dairy | free range"
	found := false
	for _, text := range embedded {
		if text == want {
			found = true
		}
	}
	if !found {
		t.Errorf("embedded texts = %v, want %q", embedded, want)
	}
	assertQuantityMatchesLots(t, store, result.Item.ID)
}

func TestAddCommitsWhenEmbeddingFails(t *testing.T) {
	embedder := embedding.ProviderFunc(func(context.Context, string) ([]float32, error) {
		return nil, fmt.Errorf("provider down")
	})
	service, store := newTestService(t, embedder)

	result := mustAdd(t, service, AddInput{Name: "eggs", Quantity: 3})
	if result.Item.Quantity != 3 {
		t.Errorf("quantity = %d, want mutation committed despite embedding failure", result.Item.Quantity)
	}
	if result.Item.Embedding != nil {
		t.Error("embedding = non-nil, want nil vector on provider failure")
	}
	assertQuantityMatchesLots(t, store, result.Item.ID)
}

func TestUpdateReembedsOnTextChange(t *testing.T) {
	var embedded []string
	embedder := embedding.ProviderFunc(func(_ context.Context, text string) ([]float32, error) {
		embedded = append(embedded, text)
		return []float32{1}, nil
	})
	service, _ := newTestService(t, embedder)
	ctx := context.Background()

	item := mustAdd(t, service, AddInput{Name: "eggs", Quantity: 1}).Item
	embedded = nil

	newName := "duck eggs"
	updated, err := service.Update(ctx, UpdateInput{
		InventoryID: testInventory,
		ItemID:      item.ID,
		Name:        &newName,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != "duck eggs" {
		t.Errorf("Name = %q, want renamed", updated.Name)
	}
	if len(embedded) != 1 || embedded[0] != "duck eggs" {
		t.Errorf("embedded = %v, want re-embed of the new text", embedded)
	}

	// Moving the item alone must not re-embed.
	embedded = nil
	location := "garage"
	if _, err := service.Update(ctx, UpdateInput{
		InventoryID: testInventory,
		ItemID:      item.ID,
		Location:    &location,
	}); err != nil {
		t.Fatalf("Update(move) error = %v", err)
	}
	for _, text := range embedded {
		if text == "duck eggs" {
			t.Error("item re-embedded on a location-only update")
		}
	}
}

func TestOldestOrdersByEarliestLot(t *testing.T) {
	service, _ := newTestService(t, nil)

	mustAdd(t, service, AddInput{Name: "fresh bread", Quantity: 1})
	old := mustAdd(t, service, AddInput{Name: "old crackers", Quantity: 1})

	// The sqlite clock orders adds by insertion; fetch and check membership.
	oldest, err := service.Oldest(context.Background(), testInventory, storage.ItemFilter{})
	if err != nil {
		t.Fatalf("Oldest() error = %v", err)
	}
	if len(oldest) != 2 {
		t.Fatalf("len(oldest) = %d, want 2", len(oldest))
	}
	for _, entry := range oldest {
		if entry.Item.ID == old.Item.ID && entry.OldestAddedAt.IsZero() {
			t.Error("OldestAddedAt = zero, want earliest lot timestamp")
		}
	}
}

func TestExpiringUsesDefaultWindow(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	soon := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	farOut := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	added := mustAdd(t, service, AddInput{Name: "yogurt", Quantity: 2, ExpiresAt: &soon})
	mustAdd(t, service, AddInput{Name: "honey", Quantity: 1, ExpiresAt: &farOut})
	mustAdd(t, service, AddInput{Name: "salt", Quantity: 1})

	if added.Lot.ExpiresAt == nil || !added.Lot.ExpiresAt.Equal(soon) {
		t.Errorf("Lot.ExpiresAt = %v, want %v", added.Lot.ExpiresAt, soon)
	}

	// days <= 0 falls back to the seven-day window.
	expiring, err := service.Expiring(ctx, testInventory, 0, 0)
	if err != nil {
		t.Fatalf("Expiring() error = %v", err)
	}
	if len(expiring) != 1 {
		t.Fatalf("len(expiring) = %d, want only the batch inside the window", len(expiring))
	}
	if expiring[0].Item.ID != added.Item.ID {
		t.Errorf("expiring[0] = %s, want yogurt", expiring[0].Item.Name)
	}

	// A wider window picks up the far-out batch too, soonest first.
	wide, err := service.Expiring(ctx, testInventory, 60, 0)
	if err != nil {
		t.Fatalf("Expiring(60) error = %v", err)
	}
	if len(wide) != 2 {
		t.Fatalf("len(wide) = %d, want 2", len(wide))
	}
	if wide[0].Item.ID != added.Item.ID {
		t.Errorf("wide[0] = %s, want the soonest batch first", wide[0].Item.Name)
	}

	var engineErr *Error
	if _, err := service.Expiring(ctx, "", 7, 0); !errors.As(err, &engineErr) || engineErr.Code != apperrors.CodeValidation {
		t.Errorf("Expiring(no inventory) error = %v, want validation error", err)
	}
}

func TestCreateLocationExplicit(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	location, created, err := service.CreateLocation(ctx, testInventory, "spice rack", "next to the stove")
	if err != nil {
		t.Fatalf("CreateLocation() error = %v", err)
	}
	if !created {
		t.Error("created = false, want new location")
	}
	if location.Description != "next to the stove" {
		t.Errorf("Description = %q, want stored description", location.Description)
	}

	again, created, err := service.CreateLocation(ctx, testInventory, "Spice  Rack", "ignored")
	if err != nil {
		t.Fatalf("CreateLocation(existing) error = %v", err)
	}
	if created {
		t.Error("created = true, want existing location")
	}
	if again.ID != location.ID {
		t.Error("resolved a different location for the same normalized name")
	}
	if again.Description != "next to the stove" {
		t.Errorf("Description = %q, want original kept", again.Description)
	}
}

func TestGetReturnsItemWithLots(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	added := mustAdd(t, service, AddInput{Name: "rice", Quantity: 2, Actor: "mia"})
	mustAdd(t, service, AddInput{Name: "rice", Quantity: 3, Actor: "mia"})

	item, lots, err := service.Get(ctx, testInventory, added.Item.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if item.Quantity != 5 {
		t.Errorf("Quantity = %d, want 5", item.Quantity)
	}
	if len(lots) != 2 {
		t.Errorf("len(lots) = %d, want both lots", len(lots))
	}

	var typed *Error
	if _, _, err := service.Get(ctx, testInventory, "missing"); !errors.As(err, &typed) || typed.Code != apperrors.CodeNotFound {
		t.Errorf("Get(missing) error = %v, want NOT_FOUND", err)
	}
}
