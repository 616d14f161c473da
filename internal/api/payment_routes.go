package api

import (
	"encoding/json"
	"net/http"

	"github.com/halcyonlabs/credit-guardian/internal/models"
)

type paymentRequest struct {
	models.X402PaymentRequest
	AutoBorrow bool `json:"autoBorrow"`
}

func (s *Server) handlePaymentSettle(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Asset == "" {
		req.Asset = "USDC"
	}
	if !addressRegexp.MatchString(req.Recipient) {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}

	receipt, err := s.agent.SettlePayment(r.Context(), owner, &req.X402PaymentRequest, req.AutoBorrow)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handlePaymentHistory(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	payments, err := s.x402Repo.GetByOwner(r.Context(), owner, parseLimit(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch payments")
		return
	}
	writeJSON(w, http.StatusOK, payments)
}
