package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guardian_monitor_ticks_total",
		Help: "Completed monitoring ticks.",
	})
	tickErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_monitor_tick_errors_total",
		Help: "Per-position tick failures by stage.",
	}, []string{"stage"})
	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_alerts_total",
		Help: "Alerts published, by type.",
	}, []string{"type"})
	autoRepaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guardian_auto_repays_total",
		Help: "Auto-repay actions submitted to the ledger.",
	})
	gadStepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guardian_gad_steps_total",
		Help: "Deleveraging steps executed by the keeper.",
	})
	accrualCranksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guardian_interest_accruals_total",
		Help: "Interest accrual cranks submitted.",
	})
	positionLTVBps = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "guardian_position_ltv_bps",
		Help: "Current LTV per watched position, in basis points.",
	}, []string{"owner"})
	positionDebtUSD = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "guardian_position_debt_usd",
		Help: "Current debt per watched position, in whole USD.",
	}, []string{"owner"})
)
