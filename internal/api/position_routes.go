package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/halcyonlabs/credit-guardian/internal/health"
	"github.com/halcyonlabs/credit-guardian/internal/models"
)

type healthStatusJSON struct {
	models.HealthStatus
	// Human-readable mirrors of the fixed-point fields.
	LTVPercent         string  `json:"ltvPercent"`
	CollateralValue    string  `json:"collateralValue"`
	DebtValue          string  `json:"debtValue"`
	AvailableToBorrow  string  `json:"availableToBorrow"`
	HealthFactorString *string `json:"healthFactorDisplay,omitempty"`
}

func (s *Server) handlePositionHealth(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	ctx := r.Context()
	snap, err := s.ledger.Snapshot(ctx, owner)
	if err != nil {
		fmt.Printf("Error reading snapshot for %s: %v\n", owner, err)
		writeControllerError(w, err)
		return
	}
	gadCfg, err := s.gad.Config(ctx, owner)
	if err != nil {
		fmt.Printf("Error loading GAD config for %s: %v\n", owner, err)
		writeError(w, http.StatusInternalServerError, "failed to load config")
		return
	}

	status := health.Evaluate(snap, s.params, gadCfg)

	out := healthStatusJSON{
		HealthStatus:      status,
		CollateralValue:   models.FormatUSD(status.CollateralValueUSD),
		DebtValue:         models.FormatUSD(status.DebtValueUSD),
		AvailableToBorrow: models.FormatUSD(status.AvailableToBorrowUSD),
	}
	if status.LTVBps != health.LTVUndefined {
		out.LTVPercent = models.FormatBpsPercent(status.LTVBps)
	} else {
		out.LTVPercent = "undefined"
	}
	if status.HealthFactor != models.HealthFactorInfinite {
		hf := models.FormatBpsPercent(status.HealthFactor / 100)
		out.HealthFactorString = &hf
	}
	writeJSON(w, http.StatusOK, out)
}

type borrowRequest struct {
	Asset     string `json:"asset"`
	AmountUSD uint64 `json:"amountUsd"`
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Asset == "" {
		req.Asset = "USDC"
	}

	if err := s.agent.AutonomousBorrow(r.Context(), owner, req.Asset, req.AmountUSD); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"borrowed":  req.AmountUSD,
		"asset":     req.Asset,
		"formatted": models.FormatUSD(req.AmountUSD),
	})
}

type repayRequest struct {
	Asset string `json:"asset"`
	// Zero means repay down to the auto-repay target.
	AmountUSD uint64 `json:"amountUsd"`
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}

	var req repayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Asset == "" {
		req.Asset = "USDC"
	}

	repaid, err := s.agent.AutonomousRepay(r.Context(), owner, req.Asset, req.AmountUSD)
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"repaid":    repaid,
		"asset":     req.Asset,
		"formatted": models.FormatUSD(repaid),
	})
}
