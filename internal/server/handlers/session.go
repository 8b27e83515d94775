package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"loom/internal/conversation"
	"loom/internal/provider"
	"loom/internal/runner"
	"loom/internal/storage"
)

// SessionHandler handles session HTTP endpoints.
type SessionHandler struct {
	manager *runner.Manager
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(manager *runner.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// RegisterRoutes registers session routes on the router.
func (h *SessionHandler) RegisterRoutes(router *mux.Router) {
	sub := router.PathPrefix("/api/sessions").Subrouter()

	sub.HandleFunc("", h.HandleListSessions).Methods("GET")
	sub.HandleFunc("", h.HandleCreateSession).Methods("POST")
	sub.HandleFunc("/{id}", h.HandleGetSession).Methods("GET")
	sub.HandleFunc("/{id}", h.HandleDeleteSession).Methods("DELETE")

	sub.HandleFunc("/{id}/messages", h.HandleListMessages).Methods("GET")
	sub.HandleFunc("/{id}/messages", h.HandleSendMessage).Methods("POST")
	sub.HandleFunc("/{id}/facts", h.HandleListFacts).Methods("GET")
	sub.HandleFunc("/{id}/blocks", h.HandleListBlocks).Methods("GET")
	sub.HandleFunc("/{id}/stats", h.HandleStats).Methods("GET")
	sub.HandleFunc("/{id}/compress", h.HandleCompress).Methods("POST")
	sub.HandleFunc("/{id}/reset", h.HandleReset).Methods("POST")
	sub.HandleFunc("/{id}/config", h.HandleGetConfig).Methods("GET")
	sub.HandleFunc("/{id}/config", h.HandleUpdateConfig).Methods("PUT", "PATCH")

	sub.HandleFunc("/{id}/branches", h.HandleListBranches).Methods("GET")
	sub.HandleFunc("/{id}/branches", h.HandleForkBranch).Methods("POST")
	sub.HandleFunc("/{id}/branches/{name}/switch", h.HandleSwitchBranch).Methods("POST")
	sub.HandleFunc("/{id}/branches/{name}", h.HandleDeleteBranch).Methods("DELETE")
}

func (h *SessionHandler) engine(w http.ResponseWriter, r *http.Request) (*runner.SessionEngine, bool) {
	id := mux.Vars(r)["id"]
	e, err := h.manager.Get(id)
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return nil, false
	}
	return e, true
}

// HandleListSessions returns all known sessions.
func (h *SessionHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.manager.Sessions()
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*storage.Session{}
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
	})
}

// HandleCreateSession creates a session, generating an id when absent.
func (h *SessionHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
			return
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	e, err := h.manager.Get(req.ID)
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	SendJSON(w, http.StatusCreated, map[string]any{
		"id":     e.SessionID(),
		"branch": e.ActiveBranch(),
		"model":  e.Config().Model,
	})
}

// HandleGetSession returns a session overview.
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"id":             e.SessionID(),
		"branch":         e.ActiveBranch(),
		"branches":       e.Branches(),
		"history_size":   len(e.History()),
		"summary_blocks": len(e.SummaryBlocks()),
		"model":          e.Config().Model,
	})
}

// HandleDeleteSession removes a session and its persisted rows.
func (h *SessionHandler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.manager.Delete(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			SendError(w, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListMessages returns the active branch history.
func (h *SessionHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	history := e.History()
	if history == nil {
		history = []conversation.Message{}
	}
	SendJSON(w, http.StatusOK, map[string]any{
		"branch":   e.ActiveBranch(),
		"messages": history,
	})
}

// HandleSendMessage runs one conversation turn.
func (h *SessionHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	result, err := e.Send(r.Context(), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, runner.ErrEmptyMessage):
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		case errors.Is(err, runner.ErrNoProvider):
			SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, err.Error())
		default:
			status := http.StatusBadGateway
			var pe *provider.ProviderError
			if errors.As(err, &pe) && pe.Code == provider.ErrCodeRateLimited {
				status = http.StatusTooManyRequests
			}
			SendError(w, status, ErrCodeProviderError, err.Error())
		}
		return
	}

	resp := map[string]any{
		"reply":            result.Reply,
		"facts_written":    result.FactsWritten,
		"estimated_tokens": result.EstimatedTokens,
		"retried":          result.Retried,
	}
	if result.Compression != nil {
		resp["compression"] = result.Compression.Kind().String()
	}
	SendJSON(w, http.StatusOK, resp)
}

// HandleListFacts returns the active branch facts grouped by category.
func (h *SessionHandler) HandleListFacts(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"branch": e.ActiveBranch(),
		"facts":  e.Facts(),
	})
}

// HandleListBlocks returns the active branch summary blocks.
func (h *SessionHandler) HandleListBlocks(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	blocks := e.SummaryBlocks()
	if blocks == nil {
		blocks = []conversation.SummaryBlock{}
	}
	SendJSON(w, http.StatusOK, map[string]any{
		"branch": e.ActiveBranch(),
		"blocks": blocks,
	})
}

// HandleStats returns token usage statistics.
func (h *SessionHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	SendJSON(w, http.StatusOK, e.TokenStatistics())
}

// HandleCompress forces one compression attempt on the active branch.
func (h *SessionHandler) HandleCompress(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	res, ran := e.Compact(r.Context())
	if !ran {
		SendError(w, http.StatusConflict, ErrCodeConflict, "compression already in progress")
		return
	}

	resp := map[string]any{
		"result": res.Kind().String(),
	}
	if res.Succeeded() {
		resp["messages"] = res.Block.MessageCount
		resp["summary"] = res.Block.Content
	}
	if res.Err != nil {
		resp["error"] = res.Err.Error()
	}
	if res.Reason != "" {
		resp["reason"] = res.Reason
	}
	SendJSON(w, http.StatusOK, resp)
}

// HandleReset clears the active branch.
func (h *SessionHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	e.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetConfig returns the session's context configuration.
func (h *SessionHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	SendJSON(w, http.StatusOK, e.Config())
}

// HandleUpdateConfig installs a new context configuration. Values are
// clamped to their valid ranges; the clamped config is returned.
func (h *SessionHandler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	cfg := e.Config()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	SendJSON(w, http.StatusOK, e.UpdateConfig(cfg))
}

// HandleListBranches returns the session's branches.
func (h *SessionHandler) HandleListBranches(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"active":   e.ActiveBranch(),
		"branches": e.Branches(),
	})
}

// HandleForkBranch forks a new branch from a checkpoint prefix.
func (h *SessionHandler) HandleForkBranch(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	var req struct {
		Parent         string `json:"parent"`
		CheckpointSize int    `json:"checkpoint_size"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
			return
		}
	}
	if req.Parent == "" {
		req.Parent = e.ActiveBranch()
	}

	name, err := e.Fork(req.Parent, req.CheckpointSize)
	if err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	SendJSON(w, http.StatusCreated, map[string]any{
		"branch": name,
		"parent": req.Parent,
	})
}

// HandleSwitchBranch makes the named branch active.
func (h *SessionHandler) HandleSwitchBranch(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	name := mux.Vars(r)["name"]
	if err := e.Switch(name); err != nil {
		SendError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	SendJSON(w, http.StatusOK, map[string]any{
		"active": name,
	})
}

// HandleDeleteBranch removes a branch.
func (h *SessionHandler) HandleDeleteBranch(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	name := mux.Vars(r)["name"]
	if err := e.DeleteBranch(name); err != nil {
		if errors.Is(err, runner.ErrUnknownBranch) {
			SendError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
			return
		}
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
