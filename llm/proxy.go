package llm

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

const defaultMaxTokens = 8000

// ProxyGateway talks to an OpenAI-compatible chat-completions endpoint.
type ProxyGateway struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

// NewProxyGateway creates a gateway for baseURL (without the
// /v1/chat/completions suffix). timeout bounds the whole HTTP exchange.
func NewProxyGateway(baseURL, apiKey, model string, timeout time.Duration) *ProxyGateway {
	return &ProxyGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		model:     model,
		maxTokens: defaultMaxTokens,
		client:    &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model      string           `json:"model"`
	Messages   []Message        `json:"messages"`
	Tools      []ToolDefinition `json:"tools,omitempty"`
	ToolChoice string           `json:"tool_choice,omitempty"`
	MaxTokens  int              `json:"max_tokens"`
}

// wireMessage mirrors Message plus the reasoning channels some gateways
// return under different keys.
type wireMessage struct {
	Role             string     `json:"role"`
	Content          string     `json:"content"`
	ReasoningContent string     `json:"reasoning_content"`
	Reasoning        string     `json:"reasoning"`
	ToolCalls        []ToolCall `json:"tool_calls"`
}

type chatResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// Chat sends the conversation and tool schema, returning one completion.
func (g *ProxyGateway) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Completion, error) {
	reqBody := chatRequest{
		Model:     g.model,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: g.maxTokens,
	}
	if len(tools) > 0 {
		reqBody.ToolChoice = "auto"
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, NewGatewayError("encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, NewGatewayError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, NewGatewayError("request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, NewGatewayError("read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &GatewayError{
			Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncateBody(body, 200)),
			StatusCode: resp.StatusCode,
		}
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, NewGatewayError("decode response", err)
	}
	if len(decoded.Choices) == 0 {
		return &Completion{}, nil
	}

	choice := decoded.Choices[0]
	reasoning := choice.Message.ReasoningContent
	if reasoning == "" {
		reasoning = choice.Message.Reasoning
	}
	return &Completion{
		Content:      choice.Message.Content,
		Reasoning:    reasoning,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		Usage:        decoded.Usage,
	}, nil
}

func truncateBody(body []byte, max int) string {
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
