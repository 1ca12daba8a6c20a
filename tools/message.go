package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const maxSendFileBytes = 50 * 1024 * 1024

// Messenger posts callbacks to the chat front-ends. Which front-end
// receives a callback depends on the run's source tag.
type Messenger struct {
	botURL     string
	userbotURL string
	client     *http.Client
}

// NewMessenger builds the callback client shared by the send tools.
func NewMessenger(botURL, userbotURL string, timeout time.Duration) *Messenger {
	return &Messenger{
		botURL:     strings.TrimRight(botURL, "/"),
		userbotURL: strings.TrimRight(userbotURL, "/"),
		client:     &http.Client{Timeout: timeout},
	}
}

func (m *Messenger) callbackURL(source string) string {
	if source == "userbot" && m.userbotURL != "" {
		return m.userbotURL
	}
	return m.botURL
}

// post sends a JSON callback and decodes the {success, error} envelope.
func (m *Messenger) post(ctx context.Context, baseURL, path string, payload any) error {
	if baseURL == "" {
		return fmt.Errorf("no callback URL configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var decoded struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("bad callback response: %w", err)
	}
	if !decoded.Success {
		if decoded.Error == "" {
			decoded.Error = "failed to send"
		}
		return fmt.Errorf("%s", decoded.Error)
	}
	return nil
}

// resolveUsername asks the bot front-end to map @username to a user id.
func (m *Messenger) resolveUsername(ctx context.Context, username string) (int64, error) {
	if m.botURL == "" {
		return 0, fmt.Errorf("no bot URL configured")
	}
	body, _ := json.Marshal(map[string]string{"username": username})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.botURL+"/resolve_username", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var decoded struct {
		Success bool   `json:"success"`
		UserID  int64  `json:"user_id"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, err
	}
	if !decoded.Success {
		return 0, fmt.Errorf("%s", decoded.Error)
	}
	return decoded.UserID, nil
}

// SendFileTool delivers a workspace file to the originating chat.
type SendFileTool struct {
	messenger *Messenger
}

// NewSendFileTool builds the send_file tool.
func NewSendFileTool(m *Messenger) *SendFileTool {
	return &SendFileTool{messenger: m}
}

func (s *SendFileTool) Name() string        { return "send_file" }
func (s *SendFileTool) Description() string { return "Send a file from the workspace to the chat." }
func (s *SendFileTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"path":    map[string]any{"type": "string", "description": "File path in the workspace."},
		"caption": map[string]any{"type": "string", "description": "Optional caption."},
	}, "path")
}

func (s *SendFileTool) Execute(ctx context.Context, args map[string]any, tc *Context) Result {
	path, _ := StringArg(args, "path")
	if path == "" {
		return Fail("Path required")
	}
	caption, _ := StringArg(args, "caption")
	path = resolvePath(tc.CWD, path)

	// The file may still be flushing from a just-finished command.
	var info os.FileInfo
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		info, err = os.Stat(path)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return Fail(ctx.Err().Error())
		case <-time.After(time.Second):
		}
	}
	if err != nil {
		return Fail("File not found: " + path)
	}
	if info.Size() > maxSendFileBytes {
		return Fail("File too large (max 50MB)")
	}

	payload := map[string]any{
		"chat_id":   tc.ChatID,
		"file_path": path,
		"caption":   caption,
	}
	if err := s.messenger.post(ctx, s.messenger.callbackURL(tc.Source), "/send_file", payload); err != nil {
		return Fail(err.Error())
	}
	return Ok("✅ File sent: " + filepath.Base(path))
}

// SendDMTool delivers a private message to a user by id or @username.
type SendDMTool struct {
	messenger *Messenger
}

// NewSendDMTool builds the send_dm tool.
func NewSendDMTool(m *Messenger) *SendDMTool {
	return &SendDMTool{messenger: m}
}

func (s *SendDMTool) Name() string        { return "send_dm" }
func (s *SendDMTool) Description() string { return "Send a direct message to a user by id or @username." }
func (s *SendDMTool) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"user_id": map[string]any{"type": "string", "description": "Numeric user id or @username."},
		"text":    map[string]any{"type": "string", "description": "Message text."},
	}, "user_id", "text")
}

func (s *SendDMTool) Execute(ctx context.Context, args map[string]any, tc *Context) Result {
	target := targetArg(args)
	if target == "" {
		return Fail("user_id or @username required")
	}
	text, _ := StringArg(args, "text")
	if text == "" {
		return Fail("text required")
	}

	userID, err := s.resolveTarget(ctx, target)
	if err != nil {
		return Fail(err.Error())
	}

	payload := map[string]any{"user_id": userID, "text": text}
	if err := s.messenger.post(ctx, s.messenger.callbackURL(tc.Source), "/send_dm", payload); err != nil {
		return Fail(err.Error())
	}
	return Ok("✅ DM sent to " + target)
}

func (s *SendDMTool) resolveTarget(ctx context.Context, target string) (int64, error) {
	if strings.HasPrefix(target, "@") {
		id, err := s.messenger.resolveUsername(ctx, target)
		if err != nil {
			return 0, fmt.Errorf("unknown user %s, they must have messaged the bot at least once", target)
		}
		return id, nil
	}
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		return id, nil
	}
	// Maybe a username without the @ prefix.
	id, err := s.messenger.resolveUsername(ctx, "@"+target)
	if err != nil {
		return 0, fmt.Errorf("invalid user_id %q, provide a numeric id or @username", target)
	}
	return id, nil
}

func targetArg(args map[string]any) string {
	for _, key := range []string{"user_id", "target"} {
		if s, ok := StringArg(args, key); ok && s != "" {
			return strings.TrimSpace(s)
		}
		if n, ok := IntArg(args, key); ok {
			return strconv.Itoa(n)
		}
	}
	return ""
}
