package domain

import "time"

// TradeRecord is a fully closed trade, persisted for history, reporting, and
// archival. One record is written when a position exits completely, whether
// through the ladder, a stop, or the emergency sweep.
type TradeRecord struct {
	ID           string
	TokenAddress string
	Symbol       string
	EntryPrice   float64
	EntryAmount  float64
	ExitPrice    float64
	SoldPct      float64
	PnL          float64
	PnLPercent   float64
	Reason       ExitReason
	OpenedAt     time.Time
	ClosedAt     time.Time
}
