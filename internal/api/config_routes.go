package api

import (
	"encoding/json"
	"net/http"

	"github.com/halcyonlabs/credit-guardian/internal/models"
)

func (s *Server) handleAgentConfigGet(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	cfg, err := s.agent.Config(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load config")
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "agent not configured")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleAgentConfigPut(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	var cfg models.AgentConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg.Owner = owner

	saved, err := s.agent.Configure(r.Context(), &cfg)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleGadConfigGet(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	cfg, err := s.gad.Config(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load config")
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "deleveraging not configured")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleGadConfigPut(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	var cfg models.GadConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg.Owner = owner

	saved, err := s.gad.Configure(r.Context(), &cfg)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleGadCrank triggers one deleveraging evaluation outside the monitor's
// schedule. Permissionless on the ledger; here it still sits behind API auth.
func (s *Server) handleGadCrank(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	snap, err := s.ledger.Snapshot(r.Context(), owner)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	res, err := s.gad.Crank(r.Context(), snap)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
