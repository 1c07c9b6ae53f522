// Package search implements hybrid retrieval over inventory items: semantic
// nearest-neighbor matches merged with lexical substring matches.
package search

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/itemwise/itemwise/internal/embedding"
	"github.com/itemwise/itemwise/internal/storage"
)

// lexicalFloor is the minimum score granted to a substring match, so exact
// name hits always survive the merge even without a vector.
const lexicalFloor = 0.5

const defaultLimit = 10

// Query is one search request. LocationID optionally narrows both halves.
type Query struct {
	InventoryID string
	Text        string
	LocationID  string
	Limit       int
}

// Result is one scored item. Score is in [0, 1], higher is better.
type Result struct {
	Item  storage.ItemRecord
	Score float64
}

// Engine merges semantic and lexical retrieval. A nil embedder degrades the
// engine to lexical-only matching.
type Engine struct {
	store    storage.SearchStore
	embedder embedding.Provider
}

// NewEngine builds a hybrid search engine.
func NewEngine(store storage.SearchStore, embedder embedding.Provider) *Engine {
	return &Engine{store: store, embedder: embedder}
}

// Search embeds the query once, gathers both result sets, and merges them
// keyed by item id: the higher score wins, ordered score descending with ties
// going to the newest item.
func (e *Engine) Search(ctx context.Context, query Query) ([]Result, error) {
	text := strings.TrimSpace(query.Text)
	if text == "" {
		return nil, fmt.Errorf("search text is required")
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	merged := make(map[string]Result)

	if e.embedder != nil {
		vector, err := e.embedder.Embed(ctx, text)
		if err != nil {
			// Semantic retrieval is best-effort; lexical still answers.
			log.Printf("embed search query: %v", err)
		} else {
			matches, err := e.store.NearestItems(ctx, query.InventoryID, vector, query.LocationID, limit)
			if err != nil {
				return nil, fmt.Errorf("semantic search: %w", err)
			}
			for _, match := range matches {
				merged[match.Item.ID] = Result{Item: match.Item, Score: semanticScore(match.Distance)}
			}
		}
	}

	lexical, err := e.store.MatchItemNames(ctx, query.InventoryID, text, query.LocationID, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	for _, item := range lexical {
		if existing, ok := merged[item.ID]; !ok || existing.Score < lexicalFloor {
			merged[item.ID] = Result{Item: item, Score: lexicalFloor}
		}
	}

	results := make([]Result, 0, len(merged))
	for _, result := range merged {
		results = append(results, result)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Item.CreatedAt.After(results[j].Item.CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// semanticScore maps an L2 distance to [0, 1]. Unit vectors sit at most 2
// apart, so distance/2 normalizes before inverting.
func semanticScore(distance float64) float64 {
	score := 1 - distance/2
	if score < 0 {
		return 0
	}
	return score
}
