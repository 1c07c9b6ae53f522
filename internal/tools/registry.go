package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	apperrors "github.com/itemwise/itemwise/internal/errors"
	"github.com/itemwise/itemwise/internal/inventory"
)

// Call is one requested tool invocation.
type Call struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Result is the uniform outcome of a dispatch. Internal errors never escape
// the registry; every failure becomes a coded result.
type Result struct {
	OK      bool           `json:"ok"`
	Message string         `json:"message"`
	Code    apperrors.Code `json:"code,omitempty"`
	Payload any            `json:"payload,omitempty"`
}

// Scope identifies who a dispatched call acts for.
type Scope struct {
	InventoryID string
	Actor       string
}

// Handler executes one tool against decoded arguments.
type Handler func(ctx context.Context, scope Scope, arguments json.RawMessage) Result

// Registry binds the declared vocabulary to handlers.
type Registry struct {
	definitions []Definition
	handlers    map[string]Handler
	destructive map[string]bool
}

// NewRegistry wires every declared tool to the engines. Call Verify before
// serving traffic.
func NewRegistry(service *inventory.Service, engine SearchEngine) *Registry {
	r := &Registry{
		definitions: Definitions(),
		handlers:    make(map[string]Handler),
		destructive: make(map[string]bool),
	}
	for _, definition := range r.definitions {
		r.destructive[definition.Name] = definition.Destructive
	}

	h := &handlers{service: service, search: engine}
	r.handlers[ToolAddItem] = h.addItem
	r.handlers[ToolRemoveItem] = h.removeItem
	r.handlers[ToolUpdateItem] = h.updateItem
	r.handlers[ToolSearchItems] = h.searchItems
	r.handlers[ToolListItems] = h.listItems
	r.handlers[ToolListLocations] = h.listLocations
	r.handlers[ToolOldestItems] = h.oldestItems
	r.handlers[ToolExpiringItems] = h.expiringItems
	r.handlers[ToolAddLocation] = h.addLocation
	return r
}

// Verify asserts the declared vocabulary and the wired handlers are the same
// set. Boot must abort on error: a declared tool without a handler would fail
// only when the model first calls it.
func (r *Registry) Verify() error {
	var missing, extra []string

	declared := make(map[string]bool, len(r.definitions))
	for _, definition := range r.definitions {
		declared[definition.Name] = true
		if _, ok := r.handlers[definition.Name]; !ok {
			missing = append(missing, definition.Name)
		}
	}
	for name := range r.handlers {
		if !declared[name] {
			extra = append(extra, name)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}

	sort.Strings(missing)
	sort.Strings(extra)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, fmt.Sprintf("declared without handler: %s", strings.Join(missing, ", ")))
	}
	if len(extra) > 0 {
		parts = append(parts, fmt.Sprintf("handler without declaration: %s", strings.Join(extra, ", ")))
	}
	return fmt.Errorf("tool registry mismatch: %s", strings.Join(parts, "; "))
}

// Definitions returns the declared vocabulary.
func (r *Registry) Definitions() []Definition {
	return r.definitions
}

// IsDestructive reports whether a tool requires confirmation on
// conversational paths.
func (r *Registry) IsDestructive(name string) bool {
	return r.destructive[name]
}

// Dispatch executes one call. Unknown names produce an unsupported-operation
// result rather than an error so the caller can feed the outcome back to the
// model.
func (r *Registry) Dispatch(ctx context.Context, scope Scope, call Call) Result {
	handler, ok := r.handlers[call.Name]
	if !ok {
		return Result{
			OK:      false,
			Message: fmt.Sprintf("unknown tool %q", call.Name),
			Code:    apperrors.CodeUnsupportedOperation,
		}
	}

	arguments := call.Arguments
	if len(arguments) == 0 {
		arguments = json.RawMessage("{}")
	}
	return handler(ctx, scope, arguments)
}

// failureResult converts an engine error into a coded result. Unclassified
// errors are logged and reported generically so internals never reach the
// model or the user.
func failureResult(operation string, err error) Result {
	var engineErr *inventory.Error
	if errors.As(err, &engineErr) {
		result := Result{OK: false, Message: engineErr.Message, Code: engineErr.Code}
		if engineErr.Shortfall > 0 {
			result.Payload = map[string]int{"shortfall": engineErr.Shortfall}
		}
		return result
	}

	log.Printf("%s: %v", operation, err)
	code := apperrors.CodeUnknown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		code = apperrors.CodeTransient
	}
	message := "the operation failed"
	if code.Retryable() {
		message = "the operation timed out, please try again"
	}
	return Result{OK: false, Message: message, Code: code}
}

func invalidArguments(err error) Result {
	return Result{
		OK:      false,
		Message: fmt.Sprintf("invalid arguments: %v", err),
		Code:    apperrors.CodeValidation,
	}
}
