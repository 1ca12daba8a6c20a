// Package agent implements the reasoning loop and its session state: the
// session store, history trimming, tool-call recovery, and the bounded
// iteration loop that mediates between model output and tool execution.
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ferretworks/ferret/llm"
)

// Session is the per-(user,chat) conversation state. History and
// BlockedCount are owned by whichever run currently holds the session
// lock; no other goroutine may touch them.
type Session struct {
	UserID       int64
	ChatID       int64
	CWD          string
	History      []llm.Message
	BlockedCount int
	Source       string

	sem chan struct{}
}

// Acquire takes the session's exclusive lock, waiting until the current
// run (if any) releases it or ctx is done.
func (s *Session) Acquire(ctx context.Context) bool {
	select {
	case <-s.sem:
		return true
	case <-ctx.Done():
		return false
	}
}

// Release returns the session lock.
func (s *Session) Release() {
	s.sem <- struct{}{}
}

// Key returns the composite session key.
func (s *Session) Key() string {
	return sessionKey(s.UserID, s.ChatID)
}

func sessionKey(userID, chatID int64) string {
	return fmt.Sprintf("%d_%d", userID, chatID)
}

// Store holds all sessions, keyed by (user,chat). Lookup is guarded by a
// store-level mutex; per-session serialization uses each session's own
// lock so unrelated users never contend.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	workspace string
	log       *log.Logger
}

// NewStore creates a Store rooted at the workspace directory.
func NewStore(workspace string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		sessions:  make(map[string]*Session),
		workspace: workspace,
		log:       logger.WithPrefix("agent"),
	}
}

// Get returns the session for (userID, chatID), creating it with an empty
// history and a freshly-ensured workspace directory on first use.
func (s *Store) Get(userID, chatID int64) (*Session, error) {
	key := sessionKey(userID, chatID)

	s.mu.RLock()
	session, ok := s.sessions[key]
	s.mu.RUnlock()
	if ok {
		return session, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[key]; ok {
		return session, nil
	}

	cwd := filepath.Join(s.workspace, strconv.FormatInt(userID, 10))
	if err := os.MkdirAll(cwd, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	session = &Session{
		UserID: userID,
		ChatID: chatID,
		CWD:    cwd,
		Source: "bot",
		sem:    make(chan struct{}, 1),
	}
	session.sem <- struct{}{}
	s.sessions[key] = session
	s.log.Info("new session", "key", key)
	return session, nil
}

// Clear resets a session's history and blocked counter. The workspace
// directory is kept. Waits for any in-flight run to finish first.
func (s *Store) Clear(ctx context.Context, userID, chatID int64) bool {
	s.mu.RLock()
	session, ok := s.sessions[sessionKey(userID, chatID)]
	s.mu.RUnlock()
	if !ok {
		return true
	}
	if !session.Acquire(ctx) {
		return false
	}
	defer session.Release()
	session.History = nil
	session.BlockedCount = 0
	s.log.Info("session cleared", "key", session.Key())
	return true
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
