// Package chat runs the conversational loop: transcripts go to the oracle,
// tool calls come back, results feed the next round, and destructive calls
// stop for confirmation.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/itemwise/itemwise/internal/audit"
	apperrors "github.com/itemwise/itemwise/internal/errors"
	"github.com/itemwise/itemwise/internal/oracle"
	"github.com/itemwise/itemwise/internal/platform/id"
	"github.com/itemwise/itemwise/internal/tools"
)

// DefaultMaxRounds caps oracle rounds per turn so a tool-hungry model cannot
// loop forever.
const DefaultMaxRounds = 5

const defaultSystemPrompt = "You are an inventory assistant. You manage a shared " +
	"household inventory through the available tools. Answer concisely. Use tools " +
	"to read or change the inventory instead of guessing. Quantities are whole units."

const apologyResponse = "Sorry, I'm having trouble answering right now. Please try again in a moment."

// TurnInput is one user message in an inventory scope.
type TurnInput struct {
	InventoryID string
	Actor       string
	Message     string
}

// PendingPrompt asks the user to confirm a destructive action.
type PendingPrompt struct {
	ActionID    string
	Description string
}

// TurnResult is the orchestrator's answer to one turn. Pending is set when a
// destructive action awaits confirmation.
type TurnResult struct {
	Response string
	Pending  *PendingPrompt
}

// Config assembles an orchestrator. A nil Oracle enables fallback mode, where
// the deterministic keyword matcher produces tool calls instead.
type Config struct {
	Oracle       oracle.Oracle
	Registry     *tools.Registry
	Auditor      *audit.Emitter
	MaxRounds    int
	PendingTTL   time.Duration
	SystemPrompt string
}

// Orchestrator drives the conversational loop over the tool registry.
type Orchestrator struct {
	oracle       oracle.Oracle
	registry     *tools.Registry
	auditor      *audit.Emitter
	pending      *pendingStore
	maxRounds    int
	systemPrompt string
	newID        func() (string, error)
}

// New builds an orchestrator from the config, applying defaults.
func New(cfg Config) *Orchestrator {
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &Orchestrator{
		oracle:       cfg.Oracle,
		registry:     cfg.Registry,
		auditor:      cfg.Auditor,
		pending:      newPendingStore(cfg.PendingTTL, nil),
		maxRounds:    maxRounds,
		systemPrompt: systemPrompt,
		newID:        id.NewID,
	}
}

// HandleTurn answers one user message. With an oracle the loop runs up to
// maxRounds; without one a single fallback rule fires.
func (o *Orchestrator) HandleTurn(ctx context.Context, input TurnInput) (TurnResult, error) {
	if strings.TrimSpace(input.Message) == "" {
		return TurnResult{Response: "Say something like \"add 2 eggs\" and I'll take care of it."}, nil
	}
	if o.oracle == nil {
		return o.handleFallbackTurn(ctx, input), nil
	}

	scope := tools.Scope{InventoryID: input.InventoryID, Actor: input.Actor}
	transcript := []oracle.Message{
		{Role: oracle.RoleSystem, Content: o.systemPrompt},
		{Role: oracle.RoleUser, Content: input.Message},
	}
	definitions := oracleDefinitions(o.registry.Definitions())

	var pending *PendingPrompt
	var executed []string
	unsupportedSeen := false

	for round := 0; round < o.maxRounds; round++ {
		completion, err := o.complete(ctx, transcript, definitions)
		if err != nil {
			log.Printf("oracle completion: %v", err)
			return TurnResult{Response: apologyResponse, Pending: pending}, nil
		}

		if len(completion.ToolCalls) == 0 {
			return TurnResult{Response: completion.Text, Pending: pending}, nil
		}

		transcript = append(transcript, oracle.Message{
			Role:      oracle.RoleAssistant,
			Content:   completion.Text,
			ToolCalls: completion.ToolCalls,
		})

		for _, oracleCall := range completion.ToolCalls {
			call := tools.Call{ID: oracleCall.ID, Name: oracleCall.Name, Arguments: oracleCall.Arguments}

			var result tools.Result
			switch {
			case o.registry.IsDestructive(call.Name) && pending == nil:
				prompt, err := o.holdForConfirmation(ctx, input, call)
				if err != nil {
					return TurnResult{}, err
				}
				pending = prompt
				result = tools.Result{
					OK:      false,
					Message: fmt.Sprintf("held for user confirmation (action %s); do not retry, tell the user what needs confirming", prompt.ActionID),
				}
			case o.registry.IsDestructive(call.Name):
				// One held action per turn. Further destructive calls are
				// refused, never executed unconfirmed.
				result = tools.Result{
					OK: false,
					Message: fmt.Sprintf("not executed: action %s already awaits user confirmation; "+
						"resolve it before requesting another destructive change", pending.ActionID),
				}
			default:
				result = o.execute(ctx, scope, call)
				executed = append(executed, result.Message)
				if result.Code == apperrors.CodeUnsupportedOperation {
					if unsupportedSeen {
						return TurnResult{
							Response: "I wasn't able to do that with the operations I support.",
							Pending:  pending,
						}, nil
					}
					unsupportedSeen = true
				}
			}

			encoded, err := json.Marshal(result)
			if err != nil {
				encoded = []byte(`{"ok":false,"message":"internal result encoding failure"}`)
			}
			transcript = append(transcript, oracle.Message{
				Role:       oracle.RoleTool,
				ToolCallID: call.ID,
				Content:    string(encoded),
			})
		}
	}

	return TurnResult{Response: capSummary(executed), Pending: pending}, nil
}

// complete calls the oracle with one silent retry on failure.
func (o *Orchestrator) complete(ctx context.Context, transcript []oracle.Message, definitions []oracle.ToolDefinition) (oracle.Completion, error) {
	completion, err := o.oracle.Complete(ctx, transcript, definitions)
	if err == nil {
		return completion, nil
	}
	if ctx.Err() != nil {
		return oracle.Completion{}, err
	}
	log.Printf("oracle completion retry after: %v", err)
	return o.oracle.Complete(ctx, transcript, definitions)
}

// execute dispatches one call and audits the outcome.
func (o *Orchestrator) execute(ctx context.Context, scope tools.Scope, call tools.Call) tools.Result {
	result := o.registry.Dispatch(ctx, scope, call)

	status := audit.StatusCommitted
	if !result.OK {
		status = audit.StatusFailed
	}
	o.auditor.Emit(ctx, audit.Event{
		InventoryID: scope.InventoryID,
		Operation:   call.Name,
		Payload:     json.RawMessage(call.Arguments),
		Status:      status,
		Actor:       scope.Actor,
	})
	return result
}

// holdForConfirmation parks a destructive call and produces the prompt.
func (o *Orchestrator) holdForConfirmation(ctx context.Context, input TurnInput, call tools.Call) (*PendingPrompt, error) {
	actionID, err := o.newID()
	if err != nil {
		return nil, fmt.Errorf("generate action id: %w", err)
	}

	description := describeCall(call)
	o.pending.put(PendingAction{
		ID:          actionID,
		InventoryID: input.InventoryID,
		Actor:       input.Actor,
		Call:        call,
		Description: description,
	})

	o.auditor.Emit(ctx, audit.Event{
		InventoryID: input.InventoryID,
		Operation:   call.Name,
		Payload:     json.RawMessage(call.Arguments),
		Status:      audit.StatusPending,
		Actor:       input.Actor,
	})

	return &PendingPrompt{ActionID: actionID, Description: description}, nil
}

// Confirm resolves a pending destructive action. Approving executes the held
// call and reports its real outcome; rejecting discards it. Each action id
// works exactly once, and expired ids behave like missing ones.
func (o *Orchestrator) Confirm(ctx context.Context, actionID string, approve bool) (TurnResult, error) {
	action, ok := o.pending.take(actionID)
	if !ok {
		return TurnResult{Response: "That action has expired or was already handled."}, nil
	}

	if !approve {
		o.auditor.Emit(ctx, audit.Event{
			InventoryID: action.InventoryID,
			Operation:   action.Call.Name,
			Payload:     json.RawMessage(action.Call.Arguments),
			Status:      audit.StatusRejected,
			Actor:       action.Actor,
		})
		return TurnResult{Response: fmt.Sprintf("Cancelled: %s.", action.Description)}, nil
	}

	scope := tools.Scope{InventoryID: action.InventoryID, Actor: action.Actor}
	result := o.registry.Dispatch(ctx, scope, action.Call)

	status := audit.StatusConfirmed
	if !result.OK {
		status = audit.StatusFailed
	}
	o.auditor.Emit(ctx, audit.Event{
		InventoryID: action.InventoryID,
		Operation:   action.Call.Name,
		Payload:     json.RawMessage(action.Call.Arguments),
		Status:      status,
		Actor:       action.Actor,
	})

	return TurnResult{Response: result.Message}, nil
}

// handleFallbackTurn runs one deterministic rule instead of the oracle.
func (o *Orchestrator) handleFallbackTurn(ctx context.Context, input TurnInput) TurnResult {
	call, ok := MatchFallback(input.Message)
	if !ok {
		return TurnResult{Response: FallbackHelp}
	}

	if o.registry.IsDestructive(call.Name) {
		prompt, err := o.holdForConfirmation(ctx, input, call)
		if err != nil {
			log.Printf("hold for confirmation: %v", err)
			return TurnResult{Response: apologyResponse}
		}
		return TurnResult{
			Response: fmt.Sprintf("This will permanently change your stock: %s. Confirm to proceed.", prompt.Description),
			Pending:  prompt,
		}
	}

	scope := tools.Scope{InventoryID: input.InventoryID, Actor: input.Actor}
	result := o.execute(ctx, scope, call)
	return TurnResult{Response: result.Message}
}

// describeCall renders a held call in plain words for the confirmation prompt.
func describeCall(call tools.Call) string {
	var arguments map[string]any
	if err := json.Unmarshal(call.Arguments, &arguments); err != nil || len(arguments) == 0 {
		return call.Name
	}

	keys := make([]string, 0, len(arguments))
	for key := range arguments {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, arguments[key]))
	}
	return fmt.Sprintf("%s (%s)", call.Name, strings.Join(parts, ", "))
}

// capSummary reports what ran when the round cap was exhausted before the
// oracle produced a final answer.
func capSummary(executed []string) string {
	if len(executed) == 0 {
		return "I couldn't finish working through that request. Please try rephrasing it."
	}
	return "I ran out of steps before composing a full answer. Here's what happened: " +
		strings.Join(executed, " ")
}

func oracleDefinitions(definitions []tools.Definition) []oracle.ToolDefinition {
	converted := make([]oracle.ToolDefinition, 0, len(definitions))
	for _, definition := range definitions {
		converted = append(converted, oracle.ToolDefinition{
			Name:        definition.Name,
			Description: definition.Description,
			Parameters:  definition.Parameters,
		})
	}
	return converted
}
