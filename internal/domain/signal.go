package domain

import "time"

// MintSignal announces a newly tradable token discovered by the feed.
type MintSignal struct {
	ID           string // UUID for dedup
	TokenAddress string
	Symbol       string
	Pool         string
	DetectedAt   time.Time
}

// TradeStatus is the outcome class of an ExecuteTrade request.
type TradeStatus string

const (
	TradeStatusExecuted TradeStatus = "executed"
	TradeStatusQueued   TradeStatus = "queued"
	TradeStatusDropped  TradeStatus = "dropped"
	TradeStatusRejected TradeStatus = "rejected"
	TradeStatusFailed   TradeStatus = "failed"
)

// TradeOutcome reports what the coordinator did with a trade request.
type TradeOutcome struct {
	Status TradeStatus
	Reason string
	Amount float64
}

// TradeDecision is the result of a pure pre-trade check. It has no side
// effects; upstream callers use it to filter before invoking ExecuteTrade.
type TradeDecision struct {
	CanTrade bool
	Reason   string
	Amount   float64
}

// BotStatus is a summary of the bot's current operational state, produced by
// the periodic status reporter.
type BotStatus struct {
	Mode          string
	Health        BalanceHealth
	TotalBalance  float64
	Available     float64
	NextBuy       float64
	OpenPositions int
	InFlight      bool
	QueueDepth    int
	PnL24h        float64
}
