// Package tools declares the operation vocabulary and dispatches tool calls
// into the inventory engines. The declared definitions are the single source
// of truth for both the oracle payload and the MCP transport.
package tools

import "encoding/json"

// Tool names. Every declared name must have a registered handler; Verify
// asserts the two sets match at startup.
const (
	ToolAddItem       = "add_item"
	ToolRemoveItem    = "remove_item"
	ToolUpdateItem    = "update_item"
	ToolSearchItems   = "search_items"
	ToolListItems     = "list_items"
	ToolListLocations = "list_locations"
	ToolOldestItems   = "oldest_items"
	ToolExpiringItems = "expiring_items"
	ToolAddLocation   = "add_location"
)

// Definition declares one callable operation. Parameters is a JSON schema
// object. Destructive operations require confirmation on conversational paths.
type Definition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Destructive bool
}

// Definitions returns the declared tool vocabulary in a stable order.
func Definitions() []Definition {
	return []Definition{
		{
			Name:        ToolAddItem,
			Description: "Add stock of an item to the inventory. Creates the item and its location when they do not exist yet.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "description": "Item name"},
					"quantity": {"type": "integer", "description": "Units to add, must be positive"},
					"category": {"type": "string", "description": "Optional category, e.g. dairy"},
					"location": {"type": "string", "description": "Optional storage location name"},
					"description": {"type": "string", "description": "Optional free-form description"},
					"notes": {"type": "string", "description": "Optional note stored on this batch"},
					"expiration_date": {"type": "string", "description": "Optional expiration date of this batch, YYYY-MM-DD"}
				},
				"required": ["name", "quantity"]
			}`),
		},
		{
			Name:        ToolRemoveItem,
			Description: "Remove stock of an item. Oldest batches are used up first. Fails without changes when not enough stock is available.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "description": "Item name"},
					"item_id": {"type": "string", "description": "Item id, preferred over name when known"},
					"quantity": {"type": "integer", "description": "Units to remove, must be positive"},
					"lot_id": {"type": "string", "description": "Optional batch id to remove from a specific batch"}
				},
				"required": ["quantity"]
			}`),
			Destructive: true,
		},
		{
			Name:        ToolUpdateItem,
			Description: "Update an item's name, category, description, or location. Only the provided fields change.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"item_id": {"type": "string", "description": "Id of the item to update"},
					"name": {"type": "string", "description": "New item name"},
					"category": {"type": "string", "description": "New category"},
					"description": {"type": "string", "description": "New description"},
					"location": {"type": "string", "description": "New location name; empty string clears the location"}
				},
				"required": ["item_id"]
			}`),
		},
		{
			Name:        ToolSearchItems,
			Description: "Search inventory items by meaning and by name. Returns scored matches, best first.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "What to look for"},
					"location": {"type": "string", "description": "Optional location name to search within"},
					"limit": {"type": "integer", "description": "Maximum results, default 10"}
				},
				"required": ["query"]
			}`),
		},
		{
			Name:        ToolListItems,
			Description: "List inventory items, optionally filtered by category or location.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"category": {"type": "string", "description": "Optional category filter"},
					"location": {"type": "string", "description": "Optional location name filter"},
					"limit": {"type": "integer", "description": "Maximum results"}
				}
			}`),
		},
		{
			Name:        ToolListLocations,
			Description: "List every storage location in the inventory.",
			Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		},
		{
			Name:        ToolOldestItems,
			Description: "List items holding the oldest stock, oldest batch first. Useful for what to use up next.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"category": {"type": "string", "description": "Optional category filter"},
					"location": {"type": "string", "description": "Optional location name filter"},
					"limit": {"type": "integer", "description": "Maximum results, default 5"}
				}
			}`),
		},
		{
			Name:        ToolExpiringItems,
			Description: "List batches expiring within the next days, soonest first. Batches without an expiration date are skipped.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"days": {"type": "integer", "description": "Look-ahead window in days, default 7"},
					"limit": {"type": "integer", "description": "Maximum results"}
				}
			}`),
		},
		{
			Name:        ToolAddLocation,
			Description: "Create a storage location, or return the existing one with the same name.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "description": "Location name"},
					"description": {"type": "string", "description": "Optional description"}
				},
				"required": ["name"]
			}`),
		},
	}
}
