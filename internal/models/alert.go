package models

import "time"

type AlertType string

const (
	AlertLTVWarning        AlertType = "ltv_warning"
	AlertGadTriggered      AlertType = "gad_triggered"
	AlertAutoRepay         AlertType = "auto_repay"
	AlertDailyLimitReached AlertType = "daily_limit_reached"
)

// Alert is one event on the alert stream. Delivery is broadcast to every
// registered listener; a failing listener never blocks the others.
type Alert struct {
	ID        int64     `json:"id,omitempty"`
	Type      AlertType `json:"type"`
	Owner     string    `json:"owner"`
	Message   string    `json:"message"`
	LTVBps    uint64    `json:"ltvBps"`
	AmountUSD uint64    `json:"amountUsd,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
