// Package server exposes the agent over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ferretworks/ferret/agent"
	"github.com/ferretworks/ferret/stats"
)

// Access modes.
const (
	AccessPublic    = "public"
	AccessAdminOnly = "admin_only"
	AccessAllowlist = "allowlist"
)

const deniedResponse = "⛔ Access denied. Ask the admin to add you to the allowlist."

// Agent runs one message through the loop and returns the reply text.
type Agent interface {
	Run(ctx context.Context, req agent.Request) string
}

// Sessions clears conversation state.
type Sessions interface {
	Clear(ctx context.Context, userID, chatID int64) bool
}

// AccessPolicy decides who may talk to the agent.
type AccessPolicy struct {
	Mode      string
	AdminID   int64
	Allowlist []int64
}

// Allowed reports whether userID passes the policy.
func (p AccessPolicy) Allowed(userID int64) bool {
	switch p.Mode {
	case AccessPublic, "":
		return true
	case AccessAdminOnly:
		return userID == p.AdminID
	case AccessAllowlist:
		if userID == p.AdminID {
			return true
		}
		for _, id := range p.Allowlist {
			if id == userID {
				return true
			}
		}
	}
	return false
}

// IsAdmin reports whether userID is the configured admin.
func (p AccessPolicy) IsAdmin(userID int64) bool {
	return p.AdminID != 0 && userID == p.AdminID
}

// Server routes HTTP requests to the agent. tracker may be nil.
type Server struct {
	agent    Agent
	sessions Sessions
	tracker  *stats.Tracker
	policy   AccessPolicy
	log      *log.Logger
}

func New(a Agent, sessions Sessions, tracker *stats.Tracker, policy AccessPolicy, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		agent:    a,
		sessions: sessions,
		tracker:  tracker,
		policy:   policy,
		log:      logger.WithPrefix("http"),
	}
}

// Router builds the chi router with the full API surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/health", s.handleHealth)
	r.Post("/api/chat", s.handleChat)
	r.Post("/api/clear", s.handleClear)
	r.Get("/api/stats", s.handleStats)
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type chatRequest struct {
	UserID   int64  `json:"user_id"`
	ChatID   int64  `json:"chat_id"`
	Message  string `json:"message"`
	Username string `json:"username"`
	ChatType string `json:"chat_type"`
	Source   string `json:"source"`
}

type chatResponse struct {
	Response     string `json:"response"`
	AccessDenied bool   `json:"access_denied,omitempty"`
	Mode         string `json:"mode,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == 0 || req.Message == "" {
		writeError(w, http.StatusBadRequest, "user_id and message are required")
		return
	}
	if req.ChatType == "" {
		req.ChatType = "private"
	}
	if req.Source == "" {
		req.Source = "bot"
	}

	if !s.policy.Allowed(req.UserID) {
		s.log.Info("access denied", "user", req.UserID, "mode", s.policy.Mode)
		writeJSON(w, http.StatusOK, chatResponse{
			Response:     deniedResponse,
			AccessDenied: true,
			Mode:         s.policy.Mode,
		})
		return
	}

	response := s.agent.Run(r.Context(), agent.Request{
		UserID:   req.UserID,
		ChatID:   req.ChatID,
		Message:  req.Message,
		Username: req.Username,
		ChatType: req.ChatType,
		Source:   req.Source,
		IsAdmin:  s.policy.IsAdmin(req.UserID),
	})
	writeJSON(w, http.StatusOK, chatResponse{Response: response})
}

type clearRequest struct {
	UserID int64 `json:"user_id"`
	ChatID int64 `json:"chat_id"`
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.sessions.Clear(r.Context(), req.UserID, req.ChatID) {
		writeError(w, http.StatusConflict, "session busy")
		return
	}
	s.log.Info("session cleared", "user", req.UserID, "chat", req.ChatID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	totals, err := s.tracker.UserTotals(r.Context(), userID)
	if err != nil {
		s.log.Error("stats query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "ferret"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
