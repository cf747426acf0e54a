package server

import (
	"net/http"
)

// handleHealth handles GET /v1/health.
func (s *KodblockServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListBlockTypes handles GET /v1/block-types.
func (s *KodblockServer) handleListBlockTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"block_types": s.Registry().Types()})
}

// handleRender handles POST /v1/render.
func (s *KodblockServer) handleRender(w http.ResponseWriter, r *http.Request) {
	var in renderInput
	if !decodeBody(w, r, &in) {
		return
	}
	out, err := s.render(in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleValidatePlates handles POST /v1/plates/validate.
func (s *KodblockServer) handleValidatePlates(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Input string `json:"input"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	writeJSON(w, http.StatusOK, validatePlates(in.Input))
}

// handleWizardRender handles POST /v1/wizard/render.
func (s *KodblockServer) handleWizardRender(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Answers map[string]string `json:"answers"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	out, err := renderWizard(in.Answers)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
