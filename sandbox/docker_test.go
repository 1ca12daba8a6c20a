package sandbox

import (
	"testing"
	"time"
)

func TestTakeExpired(t *testing.T) {
	m := &Manager{lastActive: make(map[string]time.Time)}
	m.lastActive["old"] = time.Now().Add(-time.Hour)
	m.MarkActive("fresh")

	expired := m.takeExpired(30 * time.Minute)
	if len(expired) != 1 || expired[0] != "old" {
		t.Errorf("expired = %v", expired)
	}
	if _, ok := m.lastActive["old"]; ok {
		t.Error("expired user still tracked")
	}
	if _, ok := m.lastActive["fresh"]; !ok {
		t.Error("active user dropped")
	}

	// Second sweep finds nothing new.
	if expired := m.takeExpired(30 * time.Minute); len(expired) != 0 {
		t.Errorf("second sweep = %v", expired)
	}
}

func TestMarkActiveRefreshes(t *testing.T) {
	m := &Manager{lastActive: make(map[string]time.Time)}
	m.lastActive["u"] = time.Now().Add(-time.Hour)
	m.MarkActive("u")

	if expired := m.takeExpired(30 * time.Minute); len(expired) != 0 {
		t.Errorf("refreshed user expired: %v", expired)
	}
}

func TestContainerName(t *testing.T) {
	if got := ContainerName("42"); got != "ferret-sbx-42" {
		t.Errorf("ContainerName = %q", got)
	}
}
