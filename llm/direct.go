package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// DirectGateway talks to a provider directly through gollm, for running
// without the proxy. Conversations are flattened into a single prompt and
// tool calls are scraped back out of the generated text.
type DirectGateway struct {
	provider string
	llm      gollm.LLM
}

// NewDirectGateway creates a gollm-backed gateway. An empty apiKey lets
// gollm fall back to its own environment lookup.
func NewDirectGateway(provider, apiKey, model string, maxTokens int) (*DirectGateway, error) {
	opts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(maxTokens),
		gollm.SetTemperature(0.7),
		gollm.SetMaxRetries(0),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		opts = append(opts, gollm.SetAPIKey(apiKey))
	}
	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", provider, err)
	}
	return &DirectGateway{provider: provider, llm: llm}, nil
}

// Chat implements Gateway.
func (g *DirectGateway) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error) {
	prompt := g.buildPrompt(messages, tools)

	text, err := g.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, NewGatewayError(g.provider+" generate", err)
	}

	toolCalls := scrapeToolCalls(text)
	content := text
	if len(toolCalls) > 0 {
		content = stripToolCallJSON(text)
	}
	return &Completion{
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: finishReasonFor(toolCalls),
	}, nil
}

func (g *DirectGateway) buildPrompt(messages []Message, tools []ToolDefinition) *gollm.Prompt {
	var system strings.Builder
	var parts []string
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system.WriteString(msg.Content)
			system.WriteString("\n")
		case RoleUser:
			parts = append(parts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
		case RoleTool:
			parts = append(parts, "[Tool Result]: "+msg.Content)
		}
	}
	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	opts := []gollm.PromptOption{}
	if s := strings.TrimSpace(system.String()); s != "" {
		opts = append(opts, gollm.WithSystemPrompt(s, gollm.CacheTypeEphemeral))
	}
	if len(tools) > 0 {
		gtools := make([]gollm.Tool, 0, len(tools))
		for _, t := range tools {
			gtools = append(gtools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Function.Name,
					Description: t.Function.Description,
					Parameters:  t.Function.Parameters,
				},
			})
		}
		opts = append(opts, gollm.WithTools(gtools), gollm.WithToolChoice("auto"))
	}
	return gollm.NewPrompt(promptText, opts...)
}

func finishReasonFor(calls []ToolCall) string {
	if len(calls) > 0 {
		return "tool_calls"
	}
	return "stop"
}

// scrapeToolCalls extracts tool calls gollm providers sometimes embed in
// the generated text as a JSON array of {name, arguments} objects.
func scrapeToolCalls(text string) []ToolCall {
	start := strings.Index(text, `[{"name"`)
	if start == -1 {
		return nil
	}
	var raw []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(text[start:]), &raw); err != nil {
		return nil
	}
	calls := make([]ToolCall, 0, len(raw))
	for _, rc := range raw {
		args := string(rc.Arguments)
		if args == "" {
			args = "{}"
		}
		calls = append(calls, ToolCall{
			ID:   "call_" + uuid.New().String()[:8],
			Type: "function",
			Function: FunctionCall{
				Name:      rc.Name,
				Arguments: args,
			},
		})
	}
	return calls
}

func stripToolCallJSON(text string) string {
	if idx := strings.Index(text, `[{"name"`); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}
