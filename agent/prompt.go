package agent

import (
	"fmt"
	"os"
	"time"
)

const defaultSystemPrompt = `You are a helpful AI assistant with access to a Linux environment.

You can:
- Execute shell commands
- Read, write, edit, delete files
- Search the web and fetch pages
- Send files and direct messages

Always be helpful and concise. Think step by step when solving complex problems.`

// LoadSystemPrompt reads the system prompt from path, falling back to the
// builtin default when the path is empty or unreadable.
func LoadSystemPrompt(path string) string {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data)
		}
	}
	return defaultSystemPrompt
}

// promptMetadata is the per-run context block appended to the system
// prompt: who is asking, where their workspace is, and when.
func promptMetadata(username string, userID int64, cwd, source string, now time.Time) string {
	return fmt.Sprintf("\nUser: @%s (id=%d)\nWorkspace: %s\nTime: %s\nSource: %s",
		username, userID, cwd, now.Format("2006-01-02 15:04"), source)
}
