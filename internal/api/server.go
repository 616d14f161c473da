package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/halcyonlabs/credit-guardian/internal/agent"
	"github.com/halcyonlabs/credit-guardian/internal/gad"
	"github.com/halcyonlabs/credit-guardian/internal/health"
	"github.com/halcyonlabs/credit-guardian/internal/ledger"
	"github.com/halcyonlabs/credit-guardian/internal/models"
	"github.com/halcyonlabs/credit-guardian/internal/monitor"
	"github.com/halcyonlabs/credit-guardian/internal/repository"
)

const maxQueryLimit = 1000

var addressRegexp = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type Server struct {
	pool       *pgxpool.Pool
	ledger     ledger.Ledger
	agent      *agent.Controller
	gad        *gad.Controller
	monitor    *monitor.Monitor
	alertRepo  *repository.AlertRepo
	x402Repo   *repository.X402PaymentRepo
	params     health.Params
	httpServer *http.Server
	apiKey     string
}

func NewServer(pool *pgxpool.Pool, lg ledger.Ledger, ag *agent.Controller, gd *gad.Controller, mon *monitor.Monitor, params health.Params, port int, apiKey, corsOrigin string) *Server {
	s := &Server{
		pool:      pool,
		ledger:    lg,
		agent:     ag,
		gad:       gd,
		monitor:   mon,
		alertRepo: repository.NewAlertRepo(pool),
		x402Repo:  repository.NewX402PaymentRepo(pool),
		params:    params,
		apiKey:    apiKey,
	}

	mux := http.NewServeMux()

	// Position routes
	mux.HandleFunc("GET /v1/positions/{owner}/health", s.handlePositionHealth)
	mux.HandleFunc("POST /v1/positions/{owner}/borrow", s.handleBorrow)
	mux.HandleFunc("POST /v1/positions/{owner}/repay", s.handleRepay)

	// Agent config routes
	mux.HandleFunc("GET /v1/positions/{owner}/agent", s.handleAgentConfigGet)
	mux.HandleFunc("PUT /v1/positions/{owner}/agent", s.handleAgentConfigPut)

	// GAD routes
	mux.HandleFunc("GET /v1/positions/{owner}/gad", s.handleGadConfigGet)
	mux.HandleFunc("PUT /v1/positions/{owner}/gad", s.handleGadConfigPut)
	mux.HandleFunc("POST /v1/positions/{owner}/gad/crank", s.handleGadCrank)

	// Payment routes
	mux.HandleFunc("POST /v1/positions/{owner}/payments", s.handlePaymentSettle)
	mux.HandleFunc("GET /v1/positions/{owner}/payments", s.handlePaymentHistory)

	// Alert routes
	mux.HandleFunc("GET /v1/positions/{owner}/alerts", s.handleAlertsByOwner)
	mux.HandleFunc("GET /v1/alerts", s.handleAlertsRecent)

	// Health check and metrics (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := s.authMiddleware(corsMiddleware(mux, corsOrigin))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	fmt.Printf("[API] REST API server started on http://localhost%s\n", s.httpServer.Addr)
	fmt.Printf("[API] Health check: http://localhost%s/health\n", s.httpServer.Addr)
	if s.apiKey != "" {
		fmt.Println("[API] Authentication: enabled (Bearer token)")
	} else {
		fmt.Println("[API] Authentication: disabled (no API_KEY configured)")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func ownerParam(r *http.Request) (string, bool) {
	owner := r.PathValue("owner")
	return owner, addressRegexp.MatchString(owner)
}

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeControllerError maps controller failures to HTTP statuses: bad input
// is 400, missing config 404, budget and policy rejections 409, everything
// else a 502 toward the ledger or a plain 500.
func writeControllerError(w http.ResponseWriter, err error) {
	var vErr *models.ValidationError
	var cErr *ledger.CallError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, agent.ErrNotConfigured):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, agent.ErrDailyLimitExceeded),
		errors.Is(err, agent.ErrUnhealthy),
		errors.Is(err, agent.ErrInsufficientHeadroom),
		errors.Is(err, agent.ErrX402Disabled),
		errors.Is(err, agent.ErrX402LimitExceeded),
		errors.Is(err, agent.ErrPaymentReplay):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, agent.ErrPaymentInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &cErr):
		writeError(w, http.StatusBadGateway, cErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
