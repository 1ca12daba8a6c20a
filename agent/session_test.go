package agent

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ferretworks/ferret/llm"
)

func TestStoreGetCreatesWorkspace(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, nil)

	session, err := store.Get(42, 100)
	if err != nil {
		t.Fatal(err)
	}
	if session.CWD != filepath.Join(root, "42") {
		t.Errorf("cwd = %q", session.CWD)
	}
	if info, err := os.Stat(session.CWD); err != nil || !info.IsDir() {
		t.Errorf("workspace not created: %v", err)
	}

	// Same key returns the same session.
	again, err := store.Get(42, 100)
	if err != nil {
		t.Fatal(err)
	}
	if again != session {
		t.Error("distinct sessions for one key")
	}

	// Different chat is a different session over the same workspace.
	other, err := store.Get(42, 200)
	if err != nil {
		t.Fatal(err)
	}
	if other == session {
		t.Error("sessions shared across chats")
	}
	if other.CWD != session.CWD {
		t.Errorf("workspace differs per chat: %q vs %q", other.CWD, session.CWD)
	}
}

func TestStoreClear(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	session, err := store.Get(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	session.History = []llm.Message{llm.UserMessage("hi")}
	session.BlockedCount = 3

	if !store.Clear(context.Background(), 1, 1) {
		t.Fatal("clear failed")
	}
	if len(session.History) != 0 || session.BlockedCount != 0 {
		t.Errorf("session = %+v", session)
	}
	if _, err := os.Stat(session.CWD); err != nil {
		t.Error("workspace deleted by clear")
	}

	// Clearing an unknown session is a no-op.
	if !store.Clear(context.Background(), 9, 9) {
		t.Error("clear of unknown session failed")
	}
}

func TestSessionLockSerializes(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	session, err := store.Get(1, 1)
	if err != nil {
		t.Fatal(err)
	}

	if !session.Acquire(context.Background()) {
		t.Fatal("first acquire failed")
	}

	// A second acquire must block until release.
	acquired := make(chan struct{})
	go func() {
		session.Acquire(context.Background())
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lock held")
	case <-time.After(50 * time.Millisecond):
	}

	session.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed")
	}
	session.Release()
}

func TestSessionAcquireCancelled(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	session, _ := store.Get(1, 1)
	session.Acquire(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if session.Acquire(ctx) {
		t.Fatal("acquire succeeded on a held lock with expired context")
	}
	session.Release()
}

func TestStoreConcurrentGet(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	var wg sync.WaitGroup
	sessions := make([]*Session, 20)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := store.Get(7, 7)
			if err != nil {
				t.Error(err)
				return
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(sessions); i++ {
		if sessions[i] != sessions[0] {
			t.Fatal("concurrent Get returned distinct sessions")
		}
	}
	if store.Count() != 1 {
		t.Errorf("Count = %d", store.Count())
	}
}
