package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/itemwise/itemwise/internal/app"
	"github.com/itemwise/itemwise/internal/chat"
	"github.com/itemwise/itemwise/internal/tools"
)

// handler exposes the application over a small JSON API.
type handler struct {
	app              *app.App
	defaultInventory string
}

// newHandler mounts the API routes.
func newHandler(application *app.App, defaultInventory string) http.Handler {
	h := &handler{app: application, defaultInventory: defaultInventory}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("POST /api/confirm", h.handleConfirm)
	mux.HandleFunc("POST /api/tools/{tool}", h.handleTool)
	return mux
}

type chatRequest struct {
	InventoryID string `json:"inventory_id,omitempty"`
	Actor       string `json:"actor,omitempty"`
	Message     string `json:"message"`
}

type pendingPayload struct {
	ActionID    string `json:"action_id"`
	Description string `json:"description"`
}

type chatResponse struct {
	Response string          `json:"response"`
	Pending  *pendingPayload `json:"pending,omitempty"`
}

type confirmRequest struct {
	ActionID string `json:"action_id"`
	Approve  bool   `json:"approve"`
}

type toolRequest struct {
	InventoryID string          `json:"inventory_id,omitempty"`
	Actor       string          `json:"actor,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.app.HandleChatTurn(r.Context(), chat.TurnInput{
		InventoryID: h.inventory(req.InventoryID),
		Actor:       req.Actor,
		Message:     req.Message,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatResponse(result))
}

func (h *handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ActionID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("action_id is required"))
		return
	}

	result, err := h.app.ConfirmPendingAction(r.Context(), req.ActionID, req.Approve)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatResponse(result))
}

// handleTool routes a direct tool call to the matching typed entry point.
// Results are returned with status 200 whether the operation succeeded or
// failed; the body carries the outcome.
func (h *handler) handleTool(w http.ResponseWriter, r *http.Request) {
	var req toolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	scope := app.Scope{InventoryID: h.inventory(req.InventoryID), Actor: req.Actor}

	result, err := h.dispatchTool(r, scope, req.Arguments)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) dispatchTool(r *http.Request, scope app.Scope, arguments json.RawMessage) (tools.Result, error) {
	if len(arguments) == 0 {
		arguments = json.RawMessage("{}")
	}
	ctx := r.Context()

	switch name := r.PathValue("tool"); name {
	case tools.ToolAddItem:
		var params app.AddItemParams
		if err := json.Unmarshal(arguments, &params); err != nil {
			return tools.Result{}, fmt.Errorf("decode arguments: %w", err)
		}
		return h.app.AddItem(ctx, scope, params), nil
	case tools.ToolRemoveItem:
		var params app.RemoveItemParams
		if err := json.Unmarshal(arguments, &params); err != nil {
			return tools.Result{}, fmt.Errorf("decode arguments: %w", err)
		}
		return h.app.RemoveItem(ctx, scope, params), nil
	case tools.ToolUpdateItem:
		var params app.UpdateItemParams
		if err := json.Unmarshal(arguments, &params); err != nil {
			return tools.Result{}, fmt.Errorf("decode arguments: %w", err)
		}
		return h.app.UpdateItem(ctx, scope, params), nil
	case tools.ToolSearchItems:
		var params app.SearchItemsParams
		if err := json.Unmarshal(arguments, &params); err != nil {
			return tools.Result{}, fmt.Errorf("decode arguments: %w", err)
		}
		return h.app.SearchItems(ctx, scope, params), nil
	case tools.ToolListItems:
		var params app.ListItemsParams
		if err := json.Unmarshal(arguments, &params); err != nil {
			return tools.Result{}, fmt.Errorf("decode arguments: %w", err)
		}
		return h.app.ListItems(ctx, scope, params), nil
	case tools.ToolListLocations:
		return h.app.ListLocations(ctx, scope), nil
	case tools.ToolOldestItems:
		var params app.OldestItemsParams
		if err := json.Unmarshal(arguments, &params); err != nil {
			return tools.Result{}, fmt.Errorf("decode arguments: %w", err)
		}
		return h.app.OldestItems(ctx, scope, params), nil
	case tools.ToolExpiringItems:
		var params app.ExpiringItemsParams
		if err := json.Unmarshal(arguments, &params); err != nil {
			return tools.Result{}, fmt.Errorf("decode arguments: %w", err)
		}
		return h.app.ExpiringItems(ctx, scope, params), nil
	case tools.ToolAddLocation:
		var params app.AddLocationParams
		if err := json.Unmarshal(arguments, &params); err != nil {
			return tools.Result{}, fmt.Errorf("decode arguments: %w", err)
		}
		return h.app.AddLocation(ctx, scope, params), nil
	default:
		return tools.Result{}, fmt.Errorf("unknown tool %q", name)
	}
}

func (h *handler) inventory(requested string) string {
	if strings.TrimSpace(requested) != "" {
		return requested
	}
	return h.defaultInventory
}

func toChatResponse(result chat.TurnResult) chatResponse {
	response := chatResponse{Response: result.Response}
	if result.Pending != nil {
		response.Pending = &pendingPayload{
			ActionID:    result.Pending.ActionID,
			Description: result.Pending.Description,
		}
	}
	return response
}

func decodeJSON(r *http.Request, target any) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
