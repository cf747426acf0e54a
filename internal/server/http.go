package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/kodblock/internal/model"
	"github.com/alfredjeanlab/kodblock/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests other than GET /v1/health and
// GET /metrics must include a valid Authorization: Bearer <token> header.
func (s *KodblockServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/block-types", s.handleListBlockTypes)
	mux.HandleFunc("POST /v1/render", s.handleRender)
	mux.HandleFunc("POST /v1/plates/validate", s.handleValidatePlates)
	mux.HandleFunc("POST /v1/wizard/render", s.handleWizardRender)
	mux.HandleFunc("POST /v1/drafts", s.handleCreateDraft)
	mux.HandleFunc("GET /v1/drafts", s.handleListDrafts)
	mux.HandleFunc("GET /v1/drafts/{id}", s.handleGetDraft)
	mux.HandleFunc("PATCH /v1/drafts/{id}", s.handleUpdateDraft)
	mux.HandleFunc("DELETE /v1/drafts/{id}", s.handleDeleteDraft)
	mux.HandleFunc("GET /v1/drafts/{id}/expression", s.handleGetExpression)
	mux.HandleFunc("GET /v1/drafts/{id}/events", s.handleGetEvents)
	mux.HandleFunc("POST /v1/drafts/{id}/blocks", s.handleAddBlock)
	mux.HandleFunc("PATCH /v1/drafts/{id}/blocks/{index}", s.handleUpdateBlock)
	mux.HandleFunc("DELETE /v1/drafts/{id}/blocks/{index}", s.handleRemoveBlock)
	mux.HandleFunc("POST /v1/drafts/{id}/blocks/{index}/toggle", s.handleToggleValue)
	mux.HandleFunc("POST /v1/drafts/{id}/blocks/{index}/plates", s.handleAddPlates)
	mux.HandleFunc("POST /v1/drafts/{id}/move", s.handleMoveBlock)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.Handle("GET /metrics", s.metrics.handler())
	return s.metrics.instrument(AuthMiddleware(authToken, mux))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps an error from the builder operations onto a status
// code. Validation failures carry their field errors.
func writeServiceError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  ve.Error(),
			"fields": ve.Errors,
		})
	case isInputError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "draft not found")
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// pathIndex parses the {index} path value, writing a 400 on failure.
func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return 0, false
	}
	return i, true
}
