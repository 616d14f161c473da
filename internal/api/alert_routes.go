package api

import (
	"net/http"

	"github.com/halcyonlabs/credit-guardian/internal/models"
)

// parseAlertType extracts the ?type= query parameter.
// Returns a *AlertType: nil = all.
func parseAlertType(r *http.Request) (*models.AlertType, bool) {
	v := r.URL.Query().Get("type")
	if v == "" {
		return nil, true
	}
	switch t := models.AlertType(v); t {
	case models.AlertLTVWarning, models.AlertGadTriggered, models.AlertAutoRepay, models.AlertDailyLimitReached:
		return &t, true
	default:
		return nil, false
	}
}

func (s *Server) handleAlertsByOwner(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}
	alertType, ok := parseAlertType(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid alert type")
		return
	}

	alerts, err := s.alertRepo.GetByOwner(r.Context(), owner, parseLimit(r, 100), alertType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch alerts")
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleAlertsRecent(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alertRepo.GetRecent(r.Context(), parseLimit(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch alerts")
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}
