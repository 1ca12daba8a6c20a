// Package security classifies shell commands, redacts secrets from tool
// output, and refuses access to sensitive files.
package security

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Decision is the outcome of evaluating one command. Exactly one of
// allowed (both false), dangerous, or blocked holds.
type Decision struct {
	Dangerous bool
	Blocked   bool
	Reason    string
}

type builtinPattern struct {
	re     *regexp.Regexp
	reason string
}

// Built-in dangerous tier. These are never allowed outright: blocked in
// group chats, dangerous (fail closed) in private chats.
var dangerousPatterns = []builtinPattern{
	{regexp.MustCompile(`(?i)\brm\s+-rf\b`), "Recursive delete"},
	{regexp.MustCompile(`(?i)\bchmod\s+[0-7]{3,4}`), "Permission change"},
	{regexp.MustCompile(`(?i)\bchown\b`), "Owner change"},
	{regexp.MustCompile(`(?i)\bkill\b`), "Process kill"},
}

// Gate evaluates commands against configured and built-in patterns.
// The configured set is hot-reloadable; matching never blocks on reload.
type Gate struct {
	path     string
	patterns atomic.Pointer[patternSet]
	log      *log.Logger
}

// NewGate creates a Gate, loading configured patterns from path when it is
// non-empty. A missing or broken pattern file leaves the configured set
// empty; the built-in tier still applies.
func NewGate(path string, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.Default()
	}
	g := &Gate{path: path, log: logger.WithPrefix("security")}
	g.patterns.Store(&patternSet{})
	if path != "" {
		if err := g.Reload(); err != nil {
			g.log.Warn("pattern load failed, starting with built-ins only", "path", path, "err", err)
		}
	}
	return g
}

// Reload re-reads the pattern file and atomically swaps in the new set.
func (g *Gate) Reload() error {
	records, err := LoadPatternRecords(g.path)
	if err != nil {
		return err
	}
	version := g.patterns.Load().version + 1
	set, skipped := compilePatterns(records, version)
	for _, p := range skipped {
		g.log.Warn("skipping invalid blocked pattern", "pattern", p)
	}
	g.patterns.Store(set)
	g.log.Info("blocked patterns loaded", "version", version, "count", len(set.patterns))
	return nil
}

// Watch reloads the pattern set when the file changes, until ctx is done.
func (g *Gate) Watch(ctx context.Context) error {
	if g.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors replace files, breaking direct watches.
	if err := watcher.Add(filepath.Dir(g.path)); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != g.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := g.Reload(); err != nil {
					g.log.Warn("pattern reload failed", "err", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				g.log.Warn("pattern watcher error", "err", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// CheckCommand classifies a command. Configured patterns are evaluated in
// order before built-ins; the first configured match is terminal.
func (g *Gate) CheckCommand(command, chatType string, isAdmin bool) Decision {
	set := g.patterns.Load()
	for _, p := range set.patterns {
		if p.adminBypass && isAdmin {
			continue
		}
		if p.re.MatchString(command) {
			g.log.Warn("command blocked", "reason", p.reason)
			return Decision{Blocked: true, Reason: p.reason}
		}
	}
	for _, p := range dangerousPatterns {
		if p.re.MatchString(command) {
			if chatType != "private" {
				g.log.Warn("dangerous command blocked in group", "reason", p.reason)
				return Decision{Blocked: true, Reason: "BLOCKED in groups: " + p.reason}
			}
			return Decision{Dangerous: true, Reason: p.reason}
		}
	}
	return Decision{}
}

// sensitiveNames are exact base names that file tools must refuse.
var sensitiveNames = map[string]bool{
	".env":             true,
	".env.local":       true,
	".env.production":  true,
	".env.development": true,
	"credentials.json": true,
	"secrets.json":     true,
	".secrets":         true,
	"id_rsa":           true,
	"id_ed25519":       true,
}

var sensitiveSuffixes = []string{".pem", ".key"}

var sensitiveSubstrings = []string{".ssh", "/run/secrets"}

// IsSensitiveFile reports whether path points at credential material.
func IsSensitiveFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if sensitiveNames[base] {
		return true
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	for _, sub := range sensitiveSubstrings {
		if strings.Contains(path, sub) {
			return true
		}
	}
	return false
}
