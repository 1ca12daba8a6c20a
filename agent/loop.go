package agent

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ferretworks/ferret/llm"
	"github.com/ferretworks/ferret/stats"
	"github.com/ferretworks/ferret/tools"
)

// LockoutMessage terminates a run whose blocked-command count crossed the
// threshold.
const LockoutMessage = "🚫 Session locked due to repeated security violations. /clear to reset."

// Limits bounds one agent run.
type Limits struct {
	MaxIterations      int
	MaxToolOutput      int
	MaxContextMessages int
	MaxContextChars    int
	MaxHistory         int
	MaxHistoryChars    int
	MaxBlocked         int
	LLMTimeout         time.Duration
}

// DefaultLimits returns the production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxIterations:      30,
		MaxToolOutput:      8000,
		MaxContextMessages: 40,
		MaxContextChars:    50000,
		MaxHistory:         10,
		MaxHistoryChars:    30000,
		MaxBlocked:         10,
		LLMTimeout:         120 * time.Second,
	}
}

// Request is one inbound message to run the agent on.
type Request struct {
	UserID   int64
	ChatID   int64
	Message  string
	Username string
	ChatType string
	Source   string
	IsAdmin  bool
}

// Runner drives the agent loop: build context, call the model, execute
// tool calls, repeat until a tool-free turn or the iteration budget.
type Runner struct {
	store      *Store
	gateway    llm.Gateway
	registry   *tools.Registry
	limits     Limits
	promptPath string
	tracker    *stats.Tracker
	log        *log.Logger
}

// NewRunner wires a Runner. tracker may be nil.
func NewRunner(store *Store, gateway llm.Gateway, registry *tools.Registry, limits Limits, promptPath string, tracker *stats.Tracker, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		store:      store,
		gateway:    gateway,
		registry:   registry,
		limits:     limits,
		promptPath: promptPath,
		tracker:    tracker,
		log:        logger.WithPrefix("agent"),
	}
}

// Run executes one full agent run and returns the final response text.
// All failures are returned as plain text; nothing raises past the loop.
func (r *Runner) Run(ctx context.Context, req Request) string {
	session, err := r.store.Get(req.UserID, req.ChatID)
	if err != nil {
		return "Error: " + err.Error()
	}
	if !session.Acquire(ctx) {
		return "Request cancelled"
	}
	defer session.Release()

	if req.Source != "" {
		session.Source = req.Source
	}
	r.log.Info("agent run", "user", req.UserID, "chat", req.ChatID, "source", req.Source)

	start := time.Now()
	run := stats.Run{UserID: req.UserID, ChatID: req.ChatID, Source: req.Source}
	defer func() {
		run.Duration = time.Since(start)
		if err := r.tracker.Record(context.WithoutCancel(ctx), run); err != nil {
			r.log.Warn("stats record failed", "err", err)
		}
	}()

	system := LoadSystemPrompt(r.promptPath) +
		promptMetadata(req.Username, req.UserID, session.CWD, req.Source, time.Now())

	convo := make([]llm.Message, 0, len(session.History)+1)
	convo = append(convo, session.History...)
	convo = append(convo, llm.UserMessage(req.Message))
	convo = TrimHistory(convo, r.limits.MaxContextMessages, r.limits.MaxContextChars)

	messages := make([]llm.Message, 0, len(convo)+1)
	messages = append(messages, llm.SystemMessage(system))
	messages = append(messages, convo...)

	toolCtx := &tools.Context{
		CWD:       session.CWD,
		SessionID: session.Key(),
		UserID:    req.UserID,
		ChatID:    req.ChatID,
		ChatType:  req.ChatType,
		Source:    req.Source,
		IsAdmin:   req.IsAdmin,
	}
	defs := r.registry.Definitions()

	finalResponse := ""
	var toolOutputs []string

	for iteration := 1; iteration <= r.limits.MaxIterations; iteration++ {
		run.Iterations = iteration
		r.log.Info("step", "iter", iteration, "max", r.limits.MaxIterations, "messages", len(messages))

		comp, err := r.callModel(ctx, messages, defs)
		if err != nil {
			r.log.Error("model call failed", "err", err)
			return "Error: " + clip(err.Error(), 300)
		}
		if comp.Usage != nil {
			run.PromptTokens += comp.Usage.PromptTokens
			run.CompletionTokens += comp.Usage.CompletionTokens
			run.TotalTokens += comp.Usage.TotalTokens
		}
		if emptyCompletion(comp) {
			return "No response from model"
		}

		messages = append(messages, llm.AssistantMessage(comp.Content, comp.ToolCalls))
		last := &messages[len(messages)-1]

		toolCalls := comp.ToolCalls
		content := comp.Content

		// Recover tool intentions stranded in the reasoning channel.
		if len(toolCalls) == 0 && comp.Reasoning != "" {
			if calls := ScrapeJSONCall(comp.Reasoning, iteration); calls != nil {
				r.log.Info("recovered tool call from reasoning", "iter", iteration, "tool", calls[0].Function.Name)
				toolCalls = calls
				last.ToolCalls = calls
			}
		}
		if content == "" && len(toolCalls) == 0 && comp.Reasoning != "" {
			if calls := MatchIntentCall(comp.Reasoning, iteration); calls != nil {
				r.log.Info("recovered tool call from intent phrase", "iter", iteration, "tool", calls[0].Function.Name)
				toolCalls = calls
				last.ToolCalls = calls
			} else {
				content = comp.Reasoning
				last.Content = content
			}
		}

		if len(toolCalls) == 0 {
			finalResponse = content
			break
		}

		// Sequential execution preserves the model's serial causal
		// assumptions about the shared workspace.
		for _, call := range toolCalls {
			name := call.Function.Name
			args := tools.ParseArguments(call.Function.Arguments)
			r.log.Info("tool call", "iter", iteration, "tool", name)

			result := r.registry.Execute(ctx, name, args, toolCtx)
			run.ToolCalls++

			if !result.Success && strings.Contains(result.Error, "BLOCKED") {
				session.BlockedCount++
				run.Blocked++
				if session.BlockedCount >= r.limits.MaxBlocked {
					r.log.Warn("session locked", "blocked", session.BlockedCount)
					return LockoutMessage
				}
			}

			var output string
			if result.Success {
				output = result.Output
				if output == "" {
					output = "(empty)"
				} else {
					toolOutputs = append(toolOutputs, clip(firstLine(output), 100))
				}
			} else {
				errText := result.Error
				if errText == "" {
					errText = "Unknown error"
				}
				output = "Error: " + errText
			}
			output = tools.ClampOutput(output, r.limits.MaxToolOutput)
			messages = append(messages, llm.ToolMessage(call.ID, output))
		}
	}

	// A run that did real work must never return silently empty.
	if finalResponse == "" && len(toolOutputs) > 0 {
		if len(toolOutputs) == 1 {
			finalResponse = "Done! " + toolOutputs[0]
		} else {
			finalResponse = "✅ Done"
		}
	}

	session.History = append(session.History, llm.UserMessage(req.Message))
	if finalResponse != "" {
		session.History = append(session.History, llm.AssistantMessage(finalResponse, nil))
	}
	session.History = TrimHistory(session.History, r.limits.MaxHistory*2, r.limits.MaxHistoryChars)

	finalResponse = CleanResponse(finalResponse)
	if finalResponse == "" {
		finalResponse = "(no response)"
	}
	r.log.Info("response", "chars", len(finalResponse))
	return finalResponse
}

func (r *Runner) callModel(ctx context.Context, messages []llm.Message, defs []llm.ToolDefinition) (*llm.Completion, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.limits.LLMTimeout)
	defer cancel()
	return r.gateway.Chat(callCtx, messages, defs)
}

func emptyCompletion(c *llm.Completion) bool {
	return c.Content == "" && c.Reasoning == "" && len(c.ToolCalls) == 0 && c.FinishReason == ""
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
