// Package inventory implements the mutation engine: lot-tracked stock
// additions and removals, location resolution, and item queries.
package inventory

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/itemwise/itemwise/internal/errors"
)

// Error is a typed engine failure carrying a machine-readable code. Shortfall
// is set only for insufficient-quantity failures.
type Error struct {
	Code      apperrors.Code
	Message   string
	Shortfall int
}

func (e *Error) Error() string {
	return e.Message
}

func validationError(format string, args ...any) *Error {
	return &Error{Code: apperrors.CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...any) *Error {
	return &Error{Code: apperrors.CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NormalizeName lowercases a name and folds whitespace runs to single spaces.
// Normalized names key location uniqueness and item resolution.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// DisplayName turns a normalized name into a display form by capitalizing the
// first letter of each word. Letters after an apostrophe stay lowercase so
// possessives render naturally ("mia's pantry" becomes "Mia's Pantry").
func DisplayName(normalized string) string {
	words := strings.Fields(normalized)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// EmbeddingText builds the canonical text embedded for an item. Empty fields
// are omitted so sparse items still embed cleanly.
func EmbeddingText(name, category, description string) string {
	parts := []string{strings.TrimSpace(name)}
	if category = strings.TrimSpace(category); category != "" {
		parts = append(parts, "category: "+category)
	}
	if description = strings.TrimSpace(description); description != "" {
		parts = append(parts, description)
	}
	return strings.Join(parts, " | ")
}
