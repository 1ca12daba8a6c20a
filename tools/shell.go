package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ferretworks/ferret/security"
)

// ExecBackend is an isolated per-user execution environment. Run reports
// whether the command was genuinely routed through the backend; when it
// was not (backend down, container missing), the shell tool falls back to
// local execution.
type ExecBackend interface {
	Run(ctx context.Context, userID, command, cwd string) (success bool, output string, sandboxed bool)
	MarkActive(userID string)
}

// ShellTool runs shell commands through the security gate and either the
// isolated backend or a local subprocess.
type ShellTool struct {
	gate      *security.Gate
	backend   ExecBackend // nil when no sandbox is configured
	maxOutput int
	timeout   time.Duration
	log       *log.Logger
}

// NewShellTool wires the shell pipeline. backend may be nil.
func NewShellTool(gate *security.Gate, backend ExecBackend, maxOutput int, timeout time.Duration, logger *log.Logger) *ShellTool {
	if logger == nil {
		logger = log.Default()
	}
	return &ShellTool{
		gate:      gate,
		backend:   backend,
		maxOutput: maxOutput,
		timeout:   timeout,
		log:       logger.WithPrefix("tool"),
	}
}

func (s *ShellTool) Name() string { return "run_command" }
func (s *ShellTool) Description() string {
	return "Execute a shell command in the user's workspace. Returns combined output."
}
func (s *ShellTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"command": map[string]any{"type": "string", "description": "Shell command to run."},
	}, "command")
}

func (s *ShellTool) Execute(ctx context.Context, args map[string]any, tc *Context) Result {
	command, _ := StringArg(args, "command")
	if command == "" {
		return Fail("No command provided")
	}

	decision := s.gate.CheckCommand(command, tc.ChatType, tc.IsAdmin)
	if decision.Blocked {
		return Fail("🚫 BLOCKED: " + decision.Reason)
	}
	if decision.Dangerous {
		// No approval flow exists; dangerous commands fail closed.
		return Fail(fmt.Sprintf("⚠️ Dangerous: %s. Approval not implemented.", decision.Reason))
	}

	userID := strconv.FormatInt(tc.UserID, 10)
	s.log.Info("executing", "user", userID, "command", clip(command, 100))

	if s.backend != nil {
		s.backend.MarkActive(userID)
		success, output, sandboxed := s.backend.Run(ctx, userID, command, tc.CWD)
		if sandboxed {
			output = ClampOutput(security.SanitizeOutput(output), s.maxOutput)
			if !success {
				return Fail(output)
			}
			if output == "" {
				output = "(empty output)"
			}
			return Ok(output)
		}
		s.log.Warn("sandbox unavailable, using local execution", "user", userID)
	}

	return s.runLocal(ctx, command, tc.CWD)
}

func (s *ShellTool) runLocal(ctx context.Context, command, cwd string) Result {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	cmd.Dir = cwd
	combined, err := cmd.CombinedOutput()

	if runCtx.Err() == context.DeadlineExceeded {
		s.log.Warn("command timed out", "command", clip(command, 50))
		return Fail("Command timed out")
	}

	output := ClampOutput(security.SanitizeOutput(string(combined)), s.maxOutput)

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			s.log.Warn("command failed", "exit", exitErr.ExitCode(), "command", clip(command, 50))
			return Fail(fmt.Sprintf("Exit %d: %s", exitErr.ExitCode(), output))
		}
		return Fail(err.Error())
	}
	if output == "" {
		output = "(empty output)"
	}
	return Ok(output)
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
