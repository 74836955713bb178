package domain

import "time"

// SizingMode selects how the next buy amount is derived from the balance.
type SizingMode string

const (
	SizingModeFixed      SizingMode = "fixed"
	SizingModePercentage SizingMode = "percentage"
)

// BalanceHealth is a coarse classification of how much runway the wallet has.
type BalanceHealth string

const (
	BalanceHealthy  BalanceHealth = "healthy"
	BalanceWarning  BalanceHealth = "warning"
	BalanceCritical BalanceHealth = "critical"
)

// BalanceSnapshot is an atomic view of the spendable balance and the buy size
// derived from it. Snapshots are recomputed whole on cache miss or explicit
// refresh; they are never partially updated.
type BalanceSnapshot struct {
	TotalBalance        float64
	Reserve             float64
	AvailableForTrading float64
	NextBuyAmount       float64
	SizingMode          SizingMode
	FetchedAt           time.Time
}

// AffordCheck is the structured result of an affordability decision. When OK
// is false, Reason carries a user-actionable explanation.
type AffordCheck struct {
	OK     bool
	Reason string
	Amount float64
}
