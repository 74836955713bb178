package domain

import "time"

// ExitReason tags why a position (or part of it) was sold.
type ExitReason string

const (
	ExitReasonStopLoss         ExitReason = "Stop Loss"
	ExitReasonTrailingStopLoss ExitReason = "Trailing Stop Loss"
	ExitReasonTakeProfit       ExitReason = "Take Profit"
	ExitReasonEmergencyStop    ExitReason = "Emergency Stop"
)

// Position is an open, partially-exitable stake in one token. It is owned
// exclusively by the engine store: entryPrice and entryAmount are fixed at
// open, remainingAmount shrinks with each partial exit, and the risk fields
// (currentStopLoss, highestPriceSeen, the breakeven/trailing flags, the
// executed level set) are mutated only by the engine's transition function.
type Position struct {
	TokenAddress string // identity key, immutable
	Symbol       string
	PositionID   string // identifier at the trade-execution service

	EntryPrice      float64
	EntryAmount     float64
	RemainingAmount float64

	CurrentStopLoss  float64
	InitialStopLoss  float64
	HighestPriceSeen float64

	BreakevenMoved bool
	TrailingActive bool

	// ExecutedLevels holds the take-profit ladder indices that have already
	// fired. Append-only; a level fires at most once.
	ExecutedLevels map[int]bool
	TotalSoldPct   float64

	OpenedAt time.Time
}

// ProfitPercent returns the profit of the given price relative to the fixed
// entry price, in percent. It never uses a previous tick's price as the base.
func (p *Position) ProfitPercent(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100
}

// LevelExecuted reports whether the ladder level at the given index has
// already fired.
func (p *Position) LevelExecuted(idx int) bool {
	return p.ExecutedLevels[idx]
}

// Clone returns a deep copy of the position. Accessors on the engine store
// hand out clones so callers can never mutate the live record.
func (p *Position) Clone() Position {
	out := *p
	out.ExecutedLevels = make(map[int]bool, len(p.ExecutedLevels))
	for k, v := range p.ExecutedLevels {
		out.ExecutedLevels[k] = v
	}
	return out
}
