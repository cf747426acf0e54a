package server

import (
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/kodblock/internal/model"
)

// handleCreateDraft handles POST /v1/drafts.
func (s *KodblockServer) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var in createDraftInput
	if !decodeBody(w, r, &in) {
		return
	}
	d, err := s.createDraft(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handleListDrafts handles GET /v1/drafts.
func (s *KodblockServer) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.DraftFilter{
		Search:    q.Get("search"),
		CreatedBy: q.Get("created_by"),
		Sort:      q.Get("sort"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	drafts, total, err := s.store.ListDrafts(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list drafts")
		return
	}
	if drafts == nil {
		drafts = []*model.Draft{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"drafts": drafts,
		"total":  total,
	})
}

// handleGetDraft handles GET /v1/drafts/{id}.
func (s *KodblockServer) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDraft(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleUpdateDraft handles PATCH /v1/drafts/{id}.
func (s *KodblockServer) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var in updateDraftInput
	if !decodeBody(w, r, &in) {
		return
	}
	d, err := s.updateDraft(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeleteDraft handles DELETE /v1/drafts/{id}.
func (s *KodblockServer) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.deleteDraft(r.Context(), r.PathValue("id"), r.URL.Query().Get("actor")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetExpression handles GET /v1/drafts/{id}/expression.
//
// The optional mode query parameter renders in a mode other than the draft's.
func (s *KodblockServer) handleGetExpression(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDraft(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	mode := d.Mode
	if v := r.URL.Query().Get("mode"); v != "" {
		mode = model.Mode(v)
	}
	out, err := s.render(renderInput{Blocks: d.Blocks, Mode: mode})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetEvents handles GET /v1/drafts/{id}/events.
func (s *KodblockServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	evts, err := s.store.GetEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get events")
		return
	}
	if evts == nil {
		evts = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}

// handleAddBlock handles POST /v1/drafts/{id}/blocks.
func (s *KodblockServer) handleAddBlock(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Type  string `json:"type"`
		Actor string `json:"actor"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	d, err := s.addBlock(r.Context(), r.PathValue("id"), in.Type, in.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handleUpdateBlock handles PATCH /v1/drafts/{id}/blocks/{index}.
func (s *KodblockServer) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var in updateBlockInput
	if !decodeBody(w, r, &in) {
		return
	}
	d, err := s.updateBlock(r.Context(), r.PathValue("id"), index, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleRemoveBlock handles DELETE /v1/drafts/{id}/blocks/{index}.
func (s *KodblockServer) handleRemoveBlock(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	d, err := s.removeBlock(r.Context(), r.PathValue("id"), index, r.URL.Query().Get("actor"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleToggleValue handles POST /v1/drafts/{id}/blocks/{index}/toggle.
func (s *KodblockServer) handleToggleValue(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var in struct {
		Option string `json:"option"`
		Actor  string `json:"actor"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	d, err := s.toggleValue(r.Context(), r.PathValue("id"), index, in.Option, in.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// platesResponse is the body of a plates addition: the saved draft plus the
// tokens that were rejected.
type platesResponse struct {
	Draft   *model.Draft `json:"draft"`
	Invalid []string     `json:"invalid"`
	Message string       `json:"message,omitempty"`
}

// handleAddPlates handles POST /v1/drafts/{id}/blocks/{index}/plates.
func (s *KodblockServer) handleAddPlates(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var in struct {
		Input string `json:"input"`
		Actor string `json:"actor"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	d, invalid, err := s.addPlates(r.Context(), r.PathValue("id"), index, in.Input, in.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if invalid == nil {
		invalid = []string{}
	}
	writeJSON(w, http.StatusOK, platesResponse{
		Draft:   d,
		Invalid: invalid,
		Message: model.InvalidPlatesMessage(invalid),
	})
}

// handleMoveBlock handles POST /v1/drafts/{id}/move.
func (s *KodblockServer) handleMoveBlock(w http.ResponseWriter, r *http.Request) {
	var in struct {
		From  *int   `json:"from"`
		To    *int   `json:"to"`
		Actor string `json:"actor"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.From == nil || in.To == nil {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	d, err := s.moveBlock(r.Context(), r.PathValue("id"), *in.From, *in.To, in.Actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
