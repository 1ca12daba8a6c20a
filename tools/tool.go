// Package tools implements the tool registry and the builtin tools the
// agent loop dispatches to: shell execution, file I/O, web access, and
// messaging callbacks.
package tools

import (
	"context"

	"github.com/ferretworks/ferret/llm"
)

// Context is the immutable per-run bundle passed to every tool dispatch.
type Context struct {
	CWD       string
	SessionID string
	UserID    int64
	ChatID    int64
	ChatType  string
	Source    string
	IsAdmin   bool
}

// Result is the outcome of one tool execution.
type Result struct {
	Success bool
	Output  string
	Error   string
}

// Ok builds a successful Result.
func Ok(output string) Result {
	return Result{Success: true, Output: output}
}

// Fail builds a failed Result.
func Fail(err string) Result {
	return Result{Error: err}
}

// Tool is one named capability the model can invoke.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any, tc *Context) Result
}

// Definition converts a Tool into the schema shape sent to the model.
func Definition(t Tool) llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.FunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}
