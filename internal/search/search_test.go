package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/itemwise/itemwise/internal/embedding"
	"github.com/itemwise/itemwise/internal/storage"
)

type fakeSearchStore struct {
	semantic []storage.SemanticMatch
	lexical  []storage.ItemRecord

	semanticErr error
	lexicalErr  error

	gotQuery    []float32
	gotLocation string
}

func (f *fakeSearchStore) NearestItems(_ context.Context, _ string, query []float32, locationID string, _ int) ([]storage.SemanticMatch, error) {
	f.gotQuery = query
	f.gotLocation = locationID
	return f.semantic, f.semanticErr
}

func (f *fakeSearchStore) MatchItemNames(_ context.Context, _, _, locationID string, _ int) ([]storage.ItemRecord, error) {
	f.gotLocation = locationID
	return f.lexical, f.lexicalErr
}

func item(id, name string, createdAt time.Time) storage.ItemRecord {
	return storage.ItemRecord{ID: id, InventoryID: "inv-1", Name: name, CreatedAt: createdAt}
}

func constEmbedder(vector []float32) embedding.Provider {
	return embedding.ProviderFunc(func(context.Context, string) ([]float32, error) {
		return vector, nil
	})
}

func TestSearchMergesMaxScore(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	teaItem := item("item-1", "green tea", base)
	store := &fakeSearchStore{
		// distance 0.2 scores 0.9, above the lexical floor.
		semantic: []storage.SemanticMatch{{Item: teaItem, Distance: 0.2}},
		lexical:  []storage.ItemRecord{teaItem},
	}
	engine := NewEngine(store, constEmbedder([]float32{1, 0}))

	results, err := engine.Search(context.Background(), Query{InventoryID: "inv-1", Text: "tea"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 merged entry", len(results))
	}
	if results[0].Score != 0.9 {
		t.Errorf("Score = %f, want 0.9 (semantic beats lexical floor)", results[0].Score)
	}
}

func TestSearchLexicalOnlySurvivesNilEmbedding(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// An item that was never embedded can only surface lexically.
	unembedded := item("item-2", "oolong tea", base)
	store := &fakeSearchStore{
		semantic: nil,
		lexical:  []storage.ItemRecord{unembedded},
	}
	engine := NewEngine(store, constEmbedder([]float32{1, 0}))

	results, err := engine.Search(context.Background(), Query{InventoryID: "inv-1", Text: "oolong tea"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Item.ID != "item-2" {
		t.Fatalf("results = %+v, want the lexical-only item", results)
	}
	if results[0].Score != lexicalFloor {
		t.Errorf("Score = %f, want lexical floor %f", results[0].Score, lexicalFloor)
	}
}

func TestSearchOrdersByScoreThenRecency(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	older := item("item-old", "tea A", base)
	newer := item("item-new", "tea B", base.Add(time.Hour))
	strongest := item("item-top", "tea C", base)

	store := &fakeSearchStore{
		semantic: []storage.SemanticMatch{
			{Item: strongest, Distance: 0.1},
			{Item: older, Distance: 0.8},
			{Item: newer, Distance: 0.8},
		},
	}
	engine := NewEngine(store, constEmbedder([]float32{1, 0}))

	results, err := engine.Search(context.Background(), Query{InventoryID: "inv-1", Text: "tea"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[0].Item.ID != "item-top" {
		t.Errorf("results[0] = %s, want highest score first", results[0].Item.ID)
	}
	if results[1].Item.ID != "item-new" {
		t.Errorf("results[1] = %s, want newest item on tied scores", results[1].Item.ID)
	}
}

func TestSearchEmbedFailureFallsBackToLexical(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &fakeSearchStore{lexical: []storage.ItemRecord{item("item-1", "eggs", base)}}
	embedder := embedding.ProviderFunc(func(context.Context, string) ([]float32, error) {
		return nil, fmt.Errorf("provider down")
	})
	engine := NewEngine(store, embedder)

	results, err := engine.Search(context.Background(), Query{InventoryID: "inv-1", Text: "eggs"})
	if err != nil {
		t.Fatalf("Search() error = %v, want lexical fallback", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
}

func TestSearchWithoutEmbedderIsLexicalOnly(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &fakeSearchStore{lexical: []storage.ItemRecord{item("item-1", "eggs", base)}}
	engine := NewEngine(store, nil)

	results, err := engine.Search(context.Background(), Query{InventoryID: "inv-1", Text: "eggs"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Score != lexicalFloor {
		t.Errorf("results = %+v, want one lexical hit at the floor", results)
	}
	if store.gotQuery != nil {
		t.Error("semantic half consulted without an embedder")
	}
}

func TestSearchValidatesAndLimits(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := &fakeSearchStore{
		lexical: []storage.ItemRecord{
			item("item-1", "tea one", base),
			item("item-2", "tea two", base.Add(time.Minute)),
			item("item-3", "tea three", base.Add(2*time.Minute)),
		},
	}
	engine := NewEngine(store, nil)

	if _, err := engine.Search(context.Background(), Query{InventoryID: "inv-1", Text: "  "}); err == nil {
		t.Error("Search(blank) error = nil, want error")
	}

	results, err := engine.Search(context.Background(), Query{InventoryID: "inv-1", Text: "tea", Limit: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want limit applied", len(results))
	}
}

func TestSemanticScore(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{distance: 0, want: 1},
		{distance: 1, want: 0.5},
		{distance: 2, want: 0},
		{distance: 3, want: 0},
	}
	for _, tt := range tests {
		if got := semanticScore(tt.distance); got != tt.want {
			t.Errorf("semanticScore(%f) = %f, want %f", tt.distance, got, tt.want)
		}
	}
}
