// Package mcp exposes the inventory tool registry over the Model Context
// Protocol so agent clients can drive the same operations the chat loop uses.
//
// The confirmation protocol is deliberately absent here: MCP clients are
// agents that gate destructive actions on their own side, so tools execute
// directly.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/itemwise/itemwise/internal/app"
	"github.com/itemwise/itemwise/internal/tools"
)

const serverVersion = "0.1.0"

// callTimeout bounds each tool call independently of the client.
const callTimeout = 5 * time.Second

// Config configures the MCP server. The server operates one inventory scope;
// multi-tenant access goes through the chat server instead.
type Config struct {
	InventoryID string
	Actor       string
}

// Server hosts the MCP tool surface over a stdio transport.
type Server struct {
	mcpServer *mcp.Server
}

// Outcome is the shared result shape of every inventory tool. Details carries
// the structured payload when the operation produced one.
type Outcome struct {
	OK      bool            `json:"ok"`
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// AddItemInput mirrors the add_item tool arguments.
type AddItemInput struct {
	Name           string `json:"name" jsonschema:"item name"`
	Quantity       int    `json:"quantity" jsonschema:"units to add, must be positive"`
	Category       string `json:"category,omitempty" jsonschema:"optional category"`
	Location       string `json:"location,omitempty" jsonschema:"optional storage location name"`
	Description    string `json:"description,omitempty" jsonschema:"optional free-form description"`
	Notes          string `json:"notes,omitempty" jsonschema:"optional note stored on this batch"`
	ExpirationDate string `json:"expiration_date,omitempty" jsonschema:"optional expiration date of this batch, YYYY-MM-DD"`
}

// UpdateItemInput mirrors the update_item tool arguments. Nil fields stay
// untouched.
type UpdateItemInput struct {
	ItemID      string  `json:"item_id" jsonschema:"id of the item to update"`
	Name        *string `json:"name,omitempty" jsonschema:"new item name"`
	Category    *string `json:"category,omitempty" jsonschema:"new category"`
	Description *string `json:"description,omitempty" jsonschema:"new description"`
	Location    *string `json:"location,omitempty" jsonschema:"new location name, empty string clears the location"`
}

// RemoveItemInput mirrors the remove_item tool arguments.
type RemoveItemInput struct {
	Name     string `json:"name,omitempty" jsonschema:"item name"`
	ItemID   string `json:"item_id,omitempty" jsonschema:"item id, preferred over name when known"`
	Quantity int    `json:"quantity" jsonschema:"units to remove, must be positive"`
	LotID    string `json:"lot_id,omitempty" jsonschema:"optional batch id to target one batch"`
}

// SearchItemsInput mirrors the search_items tool arguments.
type SearchItemsInput struct {
	Query    string `json:"query" jsonschema:"what to look for"`
	Location string `json:"location,omitempty" jsonschema:"optional location name to search within"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum results, default 10"`
}

// ListItemsInput mirrors the list_items tool arguments.
type ListItemsInput struct {
	Category string `json:"category,omitempty" jsonschema:"optional category filter"`
	Location string `json:"location,omitempty" jsonschema:"optional location name filter"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum results"`
}

// ListLocationsInput carries no arguments.
type ListLocationsInput struct{}

// OldestItemsInput mirrors the oldest_items tool arguments.
type OldestItemsInput struct {
	Category string `json:"category,omitempty" jsonschema:"optional category filter"`
	Location string `json:"location,omitempty" jsonschema:"optional location name filter"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum results, default 5"`
}

// ExpiringItemsInput mirrors the expiring_items tool arguments.
type ExpiringItemsInput struct {
	Days  int `json:"days,omitempty" jsonschema:"look-ahead window in days, default 7"`
	Limit int `json:"limit,omitempty" jsonschema:"maximum results"`
}

// AddLocationInput mirrors the add_location tool arguments.
type AddLocationInput struct {
	Name        string `json:"name" jsonschema:"location name"`
	Description string `json:"description,omitempty" jsonschema:"optional description"`
}

// New builds the MCP server and registers every declared inventory tool.
func New(application *app.App, cfg Config) (*Server, error) {
	if application == nil {
		return nil, fmt.Errorf("application is required")
	}
	if cfg.InventoryID == "" {
		return nil, fmt.Errorf("inventory id is required")
	}

	scope := app.Scope{InventoryID: cfg.InventoryID, Actor: cfg.Actor}
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "itemwise",
		Version: serverVersion,
	}, &mcp.ServerOptions{})

	descriptions := toolDescriptions(application)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "add_item",
		Description: descriptions["add_item"],
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input AddItemInput) (*mcp.CallToolResult, Outcome, error) {
		ctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		return nil, outcome(application.AddItem(ctx, scope, app.AddItemParams{
			Name:           input.Name,
			Quantity:       input.Quantity,
			Category:       input.Category,
			Location:       input.Location,
			Description:    input.Description,
			Notes:          input.Notes,
			ExpirationDate: input.ExpirationDate,
		})), nil
	})

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "remove_item",
		Description: descriptions["remove_item"],
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input RemoveItemInput) (*mcp.CallToolResult, Outcome, error) {
		ctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		return nil, outcome(application.RemoveItem(ctx, scope, app.RemoveItemParams{
			Name:     input.Name,
			ItemID:   input.ItemID,
			Quantity: input.Quantity,
			LotID:    input.LotID,
		})), nil
	})

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "update_item",
		Description: descriptions["update_item"],
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input UpdateItemInput) (*mcp.CallToolResult, Outcome, error) {
		ctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		return nil, outcome(application.UpdateItem(ctx, scope, app.UpdateItemParams{
			ItemID:      input.ItemID,
			Name:        input.Name,
			Category:    input.Category,
			Description: input.Description,
			Location:    input.Location,
		})), nil
	})

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "search_items",
		Description: descriptions["search_items"],
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input SearchItemsInput) (*mcp.CallToolResult, Outcome, error) {
		ctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		return nil, outcome(application.SearchItems(ctx, scope, app.SearchItemsParams{
			Query:    input.Query,
			Location: input.Location,
			Limit:    input.Limit,
		})), nil
	})

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "list_items",
		Description: descriptions["list_items"],
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ListItemsInput) (*mcp.CallToolResult, Outcome, error) {
		ctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		return nil, outcome(application.ListItems(ctx, scope, app.ListItemsParams{
			Category: input.Category,
			Location: input.Location,
			Limit:    input.Limit,
		})), nil
	})

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "list_locations",
		Description: descriptions["list_locations"],
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ ListLocationsInput) (*mcp.CallToolResult, Outcome, error) {
		ctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		return nil, outcome(application.ListLocations(ctx, scope)), nil
	})

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "oldest_items",
		Description: descriptions["oldest_items"],
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input OldestItemsInput) (*mcp.CallToolResult, Outcome, error) {
		ctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		return nil, outcome(application.OldestItems(ctx, scope, app.OldestItemsParams{
			Category: input.Category,
			Location: input.Location,
			Limit:    input.Limit,
		})), nil
	})

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "expiring_items",
		Description: descriptions["expiring_items"],
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ExpiringItemsInput) (*mcp.CallToolResult, Outcome, error) {
		ctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		return nil, outcome(application.ExpiringItems(ctx, scope, app.ExpiringItemsParams{
			Days:  input.Days,
			Limit: input.Limit,
		})), nil
	})

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "add_location",
		Description: descriptions["add_location"],
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input AddLocationInput) (*mcp.CallToolResult, Outcome, error) {
		ctx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		return nil, outcome(application.AddLocation(ctx, scope, app.AddLocationParams{
			Name:        input.Name,
			Description: input.Description,
		})), nil
	})

	return &Server{mcpServer: mcpServer}, nil
}

// Serve runs the MCP server on stdio until the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// toolDescriptions reuses the declared vocabulary so the MCP surface and the
// oracle payload describe tools identically.
func toolDescriptions(application *app.App) map[string]string {
	descriptions := make(map[string]string)
	for _, definition := range application.Registry().Definitions() {
		descriptions[definition.Name] = definition.Description
	}
	return descriptions
}

// outcome flattens a dispatch result into the MCP output shape.
func outcome(result tools.Result) Outcome {
	out := Outcome{
		OK:      result.OK,
		Message: result.Message,
		Code:    string(result.Code),
	}
	if result.Payload != nil {
		if encoded, err := json.Marshal(result.Payload); err == nil {
			out.Details = encoded
		}
	}
	return out
}
