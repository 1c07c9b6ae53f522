package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIConfig configures the OpenAI-compatible chat completions endpoint and
// HTTP behavior.
type OpenAIConfig struct {
	CompletionsURL string
	APIKey         string
	Model          string
	Timeout        time.Duration
	HTTPClient     *http.Client
}

type openAIOracle struct {
	cfg OpenAIConfig
}

// NewOpenAIOracle builds an oracle against an OpenAI-compatible chat
// completions API.
func NewOpenAIOracle(cfg OpenAIConfig) (Oracle, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	if strings.TrimSpace(cfg.CompletionsURL) == "" {
		cfg.CompletionsURL = "https://api.openai.com/v1/chat/completions"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &openAIOracle{cfg: cfg}, nil
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

func (o *openAIOracle) Complete(ctx context.Context, transcript []Message, tools []ToolDefinition) (Completion, error) {
	if len(transcript) == 0 {
		return Completion{}, fmt.Errorf("transcript is required")
	}

	messages := make([]chatMessage, 0, len(transcript))
	for _, message := range transcript {
		entry := chatMessage{
			Role:       message.Role,
			Content:    message.Content,
			ToolCallID: message.ToolCallID,
		}
		for _, call := range message.ToolCalls {
			wire := chatToolCall{ID: call.ID, Type: "function"}
			wire.Function.Name = call.Name
			wire.Function.Arguments = string(call.Arguments)
			entry.ToolCalls = append(entry.ToolCalls, wire)
		}
		messages = append(messages, entry)
	}

	wireTools := make([]chatTool, 0, len(tools))
	for _, tool := range tools {
		wire := chatTool{Type: "function"}
		wire.Function.Name = tool.Name
		wire.Function.Description = tool.Description
		wire.Function.Parameters = tool.Parameters
		wireTools = append(wireTools, wire)
	}

	request := map[string]any{
		"model":    o.cfg.Model,
		"messages": messages,
	}
	if len(wireTools) > 0 {
		request["tools"] = wireTools
	}
	requestBody, err := json.Marshal(request)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.CompletionsURL, bytes.NewReader(requestBody))
	if err != nil {
		return Completion{}, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Credential material is sent only as an Authorization header and is never
	// echoed in errors or response payloads.
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	res, err := o.cfg.HTTPClient.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("completion request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return Completion{}, fmt.Errorf("read completion error body: %w", err)
		}
		return Completion{}, fmt.Errorf("completion request status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content   string         `json:"content"`
				ToolCalls []chatToolCall `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return Completion{}, fmt.Errorf("decode completion response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return Completion{}, fmt.Errorf("completion response missing choices")
	}

	choice := payload.Choices[0].Message
	completion := Completion{Text: strings.TrimSpace(choice.Content)}
	for _, call := range choice.ToolCalls {
		arguments := call.Function.Arguments
		if strings.TrimSpace(arguments) == "" {
			arguments = "{}"
		}
		completion.ToolCalls = append(completion.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: json.RawMessage(arguments),
		})
	}
	if completion.Text == "" && len(completion.ToolCalls) == 0 {
		return Completion{}, fmt.Errorf("completion response empty")
	}
	return completion, nil
}
