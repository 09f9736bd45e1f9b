package apiserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/parentline/guardian/pkg/config"
	"github.com/parentline/guardian/pkg/observability/logging"
	"github.com/parentline/guardian/pkg/pipeline"
	"github.com/parentline/guardian/pkg/policy"
	"github.com/parentline/guardian/pkg/session"
)

// Server exposes the orchestration core over HTTP. The transport contract
// is deliberately narrow: callers supply a stable session ID and get the
// resolved reply; everything else is internal.
type Server struct {
	orch     *pipeline.Orchestrator
	policies *policy.Manager
	cfg      *config.GuardianConfig
}

func New(orch *pipeline.Orchestrator, policies *policy.Manager, cfg *config.GuardianConfig) *Server {
	return &Server{orch: orch, policies: policies, cfg: cfg}
}

// currentConfig prefers the live global config so a SIGHUP reload takes
// effect on per-request settings; the constructor copy is the fallback when
// the global loader was never used, as in tests.
func (s *Server) currentConfig() *config.GuardianConfig {
	if cur := config.Get(); cur != nil {
		return cur
	}
	return s.cfg
}

// Run starts the HTTP server and blocks.
func (s *Server) Run() error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	logging.Infof("Guardian API server listening on port %d", s.cfg.Server.Port)
	return server.ListenAndServe()
}

// Routes builds the handler mux. Exposed for tests.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/message", s.handleMessage)
	mux.HandleFunc("GET /api/v1/policy/status", s.handlePolicyStatus)
	mux.HandleFunc("POST /api/v1/policy/reload", s.handlePolicyReload)
	mux.HandleFunc("DELETE /api/v1/users/{id}", s.handleEraseUser)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

type messageRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	Locale    string `json:"locale,omitempty"`
}

type messageResponse struct {
	Reply   string `json:"reply"`
	State   string `json:"state"`
	Crisis  bool   `json:"crisis"`
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" || req.UserID == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "session_id, user_id and text are required")
		return
	}
	if req.Locale == "" {
		req.Locale = s.currentConfig().PII.DefaultLocale
	}

	out, err := s.orch.ProcessMessage(r.Context(), pipeline.TurnInput{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		RawText:   req.Text,
		Locale:    req.Locale,
	})
	switch {
	case errors.Is(err, session.ErrSessionEnded):
		writeError(w, http.StatusGone, "session has ended")
		return
	case errors.Is(err, pipeline.ErrPersistenceFailure):
		// Fail closed: no best-effort reply down an unlogged path.
		writeError(w, http.StatusServiceUnavailable, "temporarily unable to process your message")
		return
	case err != nil:
		logging.Errorf("Turn failed for session %s: %v", req.SessionID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Reply:   out.Reply.Text,
		State:   string(out.ResultingState),
		Crisis:  out.Reply.Crisis,
		Warning: out.Reply.Warning,
	})
}

func (s *Server) handlePolicyStatus(w http.ResponseWriter, _ *http.Request) {
	counts := map[string]int{}
	for phase, n := range s.policies.RuleCounts() {
		counts[string(phase)] = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"revision":    s.policies.Revision(),
		"rule_counts": counts,
	})
}

func (s *Server) handlePolicyReload(w http.ResponseWriter, _ *http.Request) {
	if err := s.policies.Reload(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"reloaded":        false,
			"error":           err.Error(),
			"active_revision": s.policies.Revision(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": true,
		"revision": s.policies.Revision(),
	})
}

func (s *Server) handleEraseUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}
	if err := s.orch.EraseUser(r.Context(), userID); err != nil {
		logging.Errorf("User data erasure failed for %s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "erasure failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
