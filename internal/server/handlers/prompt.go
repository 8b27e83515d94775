package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"loom/internal/prompt"
)

// PromptHandler handles prompt preset HTTP endpoints.
type PromptHandler struct {
	store *prompt.Store
}

// NewPromptHandler creates a new prompt handler.
func NewPromptHandler(store *prompt.Store) *PromptHandler {
	return &PromptHandler{store: store}
}

// RegisterRoutes registers prompt routes on the router.
func (h *PromptHandler) RegisterRoutes(router *mux.Router) {
	sub := router.PathPrefix("/api/prompts").Subrouter()

	sub.HandleFunc("", h.HandleListPrompts).Methods("GET")
	sub.HandleFunc("/{name}", h.HandleGetPrompt).Methods("GET")
}

// HandleListPrompts returns all loaded presets without their content.
func (h *PromptHandler) HandleListPrompts(w http.ResponseWriter, r *http.Request) {
	presets := h.store.List()

	items := make([]map[string]any, 0, len(presets))
	for _, p := range presets {
		items = append(items, map[string]any{
			"name":        p.Name,
			"description": p.Description,
			"updated_at":  p.UpdatedAt,
		})
	}
	SendJSON(w, http.StatusOK, map[string]any{
		"prompts": items,
	})
}

// HandleGetPrompt returns a preset by name, content included.
func (h *PromptHandler) HandleGetPrompt(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	p, err := h.store.Get(name)
	if err != nil {
		if errors.Is(err, prompt.ErrNotFound) {
			SendError(w, http.StatusNotFound, ErrCodeNotFound, "prompt not found")
			return
		}
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	SendJSON(w, http.StatusOK, p)
}
