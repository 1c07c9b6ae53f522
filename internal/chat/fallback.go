package chat

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/itemwise/itemwise/internal/tools"
)

// FallbackHelp is returned when no rule matches a message in fallback mode.
const FallbackHelp = "I can add items (\"add 2 eggs to the fridge\"), remove items " +
	"(\"use 1 milk\"), search (\"do I have coffee?\"), list items or locations, " +
	"and show the oldest stock (\"what should I use up?\")."

type fallbackRule struct {
	prefixes []string
	build    func(rest string) tools.Call
}

// fallbackRules are evaluated in order against the lowercased message; the
// first matching prefix wins and produces at most one tool call.
var fallbackRules = []fallbackRule{
	{
		prefixes: []string{"add ", "i bought ", "bought ", "got ", "put "},
		build: func(rest string) tools.Call {
			quantity, name := extractQuantity(rest)
			name, location := extractLocation(name)
			return toolCall(tools.ToolAddItem, map[string]any{
				"name":     name,
				"quantity": quantity,
				"location": location,
			})
		},
	},
	// "use up" must outrank the bare "use " removal prefix.
	{
		prefixes: []string{"oldest", "what should i use", "use up", "what's oldest", "whats oldest"},
		build: func(string) tools.Call {
			return toolCall(tools.ToolOldestItems, map[string]any{})
		},
	},
	{
		prefixes: []string{"remove ", "use ", "used ", "i used ", "take ", "ate ", "i ate "},
		build: func(rest string) tools.Call {
			quantity, name := extractQuantity(rest)
			name, _ = extractLocation(name)
			return toolCall(tools.ToolRemoveItem, map[string]any{
				"name":     name,
				"quantity": quantity,
			})
		},
	},
	{
		prefixes: []string{"search ", "find ", "do i have ", "do we have ", "where is ", "where are ", "look for "},
		build: func(rest string) tools.Call {
			return toolCall(tools.ToolSearchItems, map[string]any{
				"query": strings.TrimRight(rest, "?"),
			})
		},
	},
	{
		prefixes: []string{"list locations", "show locations", "what locations"},
		build: func(string) tools.Call {
			return toolCall(tools.ToolListLocations, map[string]any{})
		},
	},
	{
		prefixes: []string{"what's in the ", "whats in the ", "what is in the "},
		build: func(rest string) tools.Call {
			return toolCall(tools.ToolListItems, map[string]any{
				"location": strings.TrimRight(rest, "?"),
			})
		},
	},
	{
		prefixes: []string{"list", "show items", "show everything", "inventory", "what do i have", "what do we have"},
		build: func(string) tools.Call {
			return toolCall(tools.ToolListItems, map[string]any{})
		},
	},
}

// MatchFallback maps a message to a tool call without a language model.
// Deterministic and ordered: the first rule whose prefix matches wins.
func MatchFallback(message string) (tools.Call, bool) {
	normalized := strings.ToLower(strings.Join(strings.Fields(message), " "))
	if normalized == "" {
		return tools.Call{}, false
	}

	for _, rule := range fallbackRules {
		for _, prefix := range rule.prefixes {
			if strings.HasPrefix(normalized, prefix) {
				rest := strings.TrimSpace(strings.TrimPrefix(normalized, prefix))
				return rule.build(rest), true
			}
		}
	}
	return tools.Call{}, false
}

func toolCall(name string, arguments map[string]any) tools.Call {
	encoded, err := json.Marshal(arguments)
	if err != nil {
		encoded = []byte("{}")
	}
	return tools.Call{
		ID:        fmt.Sprintf("fallback-%s", name),
		Name:      name,
		Arguments: encoded,
	}
}

// extractQuantity pulls a leading integer off the phrase, defaulting to 1.
func extractQuantity(phrase string) (int, string) {
	fields := strings.Fields(phrase)
	if len(fields) == 0 {
		return 1, ""
	}
	if quantity, err := strconv.Atoi(fields[0]); err == nil && quantity > 0 {
		return quantity, strings.Join(fields[1:], " ")
	}
	return 1, phrase
}

// extractLocation splits a trailing "in/to/from the X" clause off the phrase.
func extractLocation(phrase string) (string, string) {
	for _, marker := range []string{" in the ", " to the ", " from the ", " in my ", " to my ", " in ", " to "} {
		if index := strings.LastIndex(phrase, marker); index >= 0 {
			name := strings.TrimSpace(phrase[:index])
			location := strings.TrimSpace(phrase[index+len(marker):])
			if name != "" && location != "" {
				return name, location
			}
		}
	}
	return strings.TrimSpace(phrase), ""
}
