package models

import "time"

// AgentConfig holds the per-position budget an autonomous agent operates
// under. Daily counters are windowed by calendar day index (unix seconds /
// 86400) and rolled lazily on access — there is no background reset timer.
type AgentConfig struct {
	Owner string `json:"owner"`

	DailyBorrowLimitUSD uint64 `json:"dailyBorrowLimitUsd"`
	DailyBorrowedUSD    uint64 `json:"dailyBorrowedUsd"`
	// Day index of the window the used-counters belong to.
	DayIndex int64 `json:"dayIndex"`

	AutoRepayEnabled      bool   `json:"autoRepayEnabled"`
	AutoRepayThresholdBps uint64 `json:"autoRepayThresholdBps"`

	X402Enabled       bool   `json:"x402Enabled"`
	X402DailyLimitUSD uint64 `json:"x402DailyLimitUsd"`
	X402SpentUSD      uint64 `json:"x402SpentUsd"`

	AlertThresholdBps uint64 `json:"alertThresholdBps"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DayIndexAt returns the calendar-day index for a timestamp.
func DayIndexAt(t time.Time) int64 {
	return t.Unix() / SecondsPerDay
}

// BorrowRemainingUSD is the budget left in the current window. Callers must
// roll the window first.
func (c *AgentConfig) BorrowRemainingUSD() uint64 {
	if c.DailyBorrowedUSD >= c.DailyBorrowLimitUSD {
		return 0
	}
	return c.DailyBorrowLimitUSD - c.DailyBorrowedUSD
}
