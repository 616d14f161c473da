package models

import "time"

// Bounds for gradual auto-deleveraging settings. Configure rejects anything
// outside these ranges.
const (
	GadMinStartThresholdBps = 5000
	GadMaxStartThresholdBps = 9500
	GadMinStepSizeBps       = 100
	GadMaxStepSizeBps       = 2000
	GadMinIntervalSeconds   = 300
	GadMaxIntervalSeconds   = 86400
)

// GadConfig controls gradual auto-deleveraging for one position. Execution
// stats accumulate over the position's lifetime; they are cleared only when
// the position is configured for the first time.
type GadConfig struct {
	Owner string `json:"owner"`

	Enabled            bool   `json:"enabled"`
	StartThresholdBps  uint64 `json:"startThresholdBps"`
	StepSizeBps        uint64 `json:"stepSizeBps"`
	MinIntervalSeconds int64  `json:"minIntervalSeconds"`

	LastExecution  time.Time `json:"lastExecution"`
	StepsExecuted  uint64    `json:"stepsExecuted"`
	DeleveragedUSD uint64    `json:"deleveragedUsd"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GadState is the derived controller state. It is never stored: it is a
// function of the config flags and the position's live LTV.
type GadState string

const (
	GadDisabled GadState = "disabled"
	GadArmed    GadState = "armed"
	GadActive   GadState = "active"
)

// StateFor derives the controller state from current LTV.
func (c *GadConfig) StateFor(ltvBps uint64) GadState {
	if c == nil || !c.Enabled {
		return GadDisabled
	}
	if ltvBps >= c.StartThresholdBps {
		return GadActive
	}
	return GadArmed
}

// IntervalElapsed reports whether enough time has passed since the last
// executed step.
func (c *GadConfig) IntervalElapsed(now time.Time) bool {
	if c.LastExecution.IsZero() {
		return true
	}
	return now.Sub(c.LastExecution) >= time.Duration(c.MinIntervalSeconds)*time.Second
}
