package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ferretworks/ferret/agent"
)

type fakeAgent struct {
	reply string
	got   []agent.Request
}

func (f *fakeAgent) Run(_ context.Context, req agent.Request) string {
	f.got = append(f.got, req)
	return f.reply
}

type fakeSessions struct {
	cleared []int64
	busy    bool
}

func (f *fakeSessions) Clear(_ context.Context, userID, chatID int64) bool {
	if f.busy {
		return false
	}
	f.cleared = append(f.cleared, userID, chatID)
	return true
}

func newTestServer(agent *fakeAgent, sessions *fakeSessions, policy AccessPolicy) *httptest.Server {
	return httptest.NewServer(New(agent, sessions, nil, policy, nil).Router())
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	return resp, decoded
}

func TestChatPublic(t *testing.T) {
	fa := &fakeAgent{reply: "hello back"}
	ts := newTestServer(fa, &fakeSessions{}, AccessPolicy{Mode: AccessPublic})
	defer ts.Close()

	resp, body := postJSON(t, ts.URL+"/api/chat",
		`{"user_id": 5, "chat_id": 5, "message": "hello", "username": "sam"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["response"] != "hello back" {
		t.Errorf("response = %v", body)
	}

	if len(fa.got) != 1 {
		t.Fatalf("agent calls = %d", len(fa.got))
	}
	req := fa.got[0]
	if req.UserID != 5 || req.Message != "hello" || req.Username != "sam" {
		t.Errorf("request = %+v", req)
	}
	// Defaults applied before dispatch.
	if req.ChatType != "private" || req.Source != "bot" {
		t.Errorf("defaults not applied: %+v", req)
	}
}

func TestChatAccessDenied(t *testing.T) {
	fa := &fakeAgent{reply: "should not run"}
	ts := newTestServer(fa, &fakeSessions{}, AccessPolicy{Mode: AccessAdminOnly, AdminID: 1})
	defer ts.Close()

	resp, body := postJSON(t, ts.URL+"/api/chat",
		`{"user_id": 2, "chat_id": 2, "message": "hi"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, denial must not be an HTTP error", resp.StatusCode)
	}
	if body["access_denied"] != true || body["mode"] != AccessAdminOnly {
		t.Errorf("body = %v", body)
	}
	if len(fa.got) != 0 {
		t.Error("agent ran for a denied user")
	}
}

func TestChatAllowlist(t *testing.T) {
	policy := AccessPolicy{Mode: AccessAllowlist, AdminID: 1, Allowlist: []int64{7}}
	for _, tt := range []struct {
		userID  int64
		allowed bool
	}{
		{1, true},
		{7, true},
		{8, false},
	} {
		if got := policy.Allowed(tt.userID); got != tt.allowed {
			t.Errorf("Allowed(%d) = %v, want %v", tt.userID, got, tt.allowed)
		}
	}
}

func TestChatAdminFlag(t *testing.T) {
	fa := &fakeAgent{reply: "ok"}
	ts := newTestServer(fa, &fakeSessions{}, AccessPolicy{Mode: AccessAdminOnly, AdminID: 9})
	defer ts.Close()

	postJSON(t, ts.URL+"/api/chat", `{"user_id": 9, "chat_id": 1, "message": "sudo stuff"}`)
	if len(fa.got) != 1 || !fa.got[0].IsAdmin {
		t.Errorf("requests = %+v", fa.got)
	}
}

func TestChatValidation(t *testing.T) {
	ts := newTestServer(&fakeAgent{}, &fakeSessions{}, AccessPolicy{Mode: AccessPublic})
	defer ts.Close()

	for _, body := range []string{
		`{"chat_id": 1, "message": "no user"}`,
		`{"user_id": 1, "chat_id": 1}`,
		`not json`,
	} {
		resp, _ := postJSON(t, ts.URL+"/api/chat", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status for %q = %d", body, resp.StatusCode)
		}
	}
}

func TestClear(t *testing.T) {
	sessions := &fakeSessions{}
	ts := newTestServer(&fakeAgent{}, sessions, AccessPolicy{Mode: AccessPublic})
	defer ts.Close()

	resp, body := postJSON(t, ts.URL+"/api/clear", `{"user_id": 3, "chat_id": 4}`)
	if resp.StatusCode != http.StatusOK || body["status"] != "cleared" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	if len(sessions.cleared) != 2 || sessions.cleared[0] != 3 || sessions.cleared[1] != 4 {
		t.Errorf("cleared = %v", sessions.cleared)
	}
}

func TestClearBusySession(t *testing.T) {
	ts := newTestServer(&fakeAgent{}, &fakeSessions{busy: true}, AccessPolicy{Mode: AccessPublic})
	defer ts.Close()

	resp, _ := postJSON(t, ts.URL+"/api/clear", `{"user_id": 3, "chat_id": 4}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestStatsNilTracker(t *testing.T) {
	ts := newTestServer(&fakeAgent{}, &fakeSessions{}, AccessPolicy{Mode: AccessPublic})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/stats?user_id=5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var totals map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&totals); err != nil {
		t.Fatal(err)
	}
	if totals["runs"] != float64(0) {
		t.Errorf("totals = %v", totals)
	}

	// Missing user_id is a client error.
	resp2, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp2.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(&fakeAgent{}, &fakeSessions{}, AccessPolicy{Mode: AccessPublic})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["service"] != "ferret" {
		t.Errorf("body = %v", body)
	}
}
