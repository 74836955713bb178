package domain

import (
	"fmt"
	"sort"
)

// TakeProfitLevel is one rung of the take-profit ladder: when profit reaches
// ProfitPct, SellPct of the original entry amount is released.
type TakeProfitLevel struct {
	ProfitPct float64
	SellPct   float64
	Label     string
}

// BreakevenConfig moves the stop floor to a small locked-in profit once an
// initial profit trigger is hit.
type BreakevenConfig struct {
	Enabled          bool
	TriggerProfitPct float64
	OffsetPct        float64
}

// TrailingConfig follows the highest observed price downward by a fixed
// distance, never loosening the floor.
type TrailingConfig struct {
	Enabled             bool
	ActivationProfitPct float64
	DistancePct         float64
}

// FullExitTolerance is the rounding slack under which the accumulated sold
// percentage is treated as a complete exit.
const FullExitTolerance = 0.5

// RiskConfig holds the immutable risk-management parameters. It is loaded
// once at startup and shared read-only by the engine.
type RiskConfig struct {
	InitialStopLossPct float64
	Breakeven          BreakevenConfig
	Trailing           TrailingConfig
	Levels             []TakeProfitLevel
	FullExitPct        float64
}

// Validate checks the risk parameters for internal consistency. The ladder
// must be ascending by profit threshold and its sell percentages must not
// exceed 100 in total.
func (c *RiskConfig) Validate() error {
	if c.InitialStopLossPct <= 0 || c.InitialStopLossPct >= 100 {
		return fmt.Errorf("risk: initial stop-loss pct %.2f out of (0, 100)", c.InitialStopLossPct)
	}
	if c.Breakeven.Enabled {
		if c.Breakeven.TriggerProfitPct <= 0 {
			return fmt.Errorf("risk: breakeven trigger pct must be positive")
		}
		if c.Breakeven.OffsetPct < 0 {
			return fmt.Errorf("risk: breakeven offset pct must not be negative")
		}
	}
	if c.Trailing.Enabled {
		if c.Trailing.ActivationProfitPct <= 0 {
			return fmt.Errorf("risk: trailing activation pct must be positive")
		}
		if c.Trailing.DistancePct <= 0 || c.Trailing.DistancePct >= 100 {
			return fmt.Errorf("risk: trailing distance pct %.2f out of (0, 100)", c.Trailing.DistancePct)
		}
	}
	if !sort.SliceIsSorted(c.Levels, func(i, j int) bool {
		return c.Levels[i].ProfitPct < c.Levels[j].ProfitPct
	}) {
		return fmt.Errorf("risk: take-profit levels must ascend by profit pct")
	}
	var totalSell float64
	for i, lvl := range c.Levels {
		if lvl.ProfitPct <= 0 {
			return fmt.Errorf("risk: level %d profit pct must be positive", i)
		}
		if lvl.SellPct <= 0 || lvl.SellPct > 100 {
			return fmt.Errorf("risk: level %d sell pct %.2f out of (0, 100]", i, lvl.SellPct)
		}
		totalSell += lvl.SellPct
	}
	if totalSell > 100 {
		return fmt.Errorf("risk: ladder sells %.2f%% in total, exceeding 100%%", totalSell)
	}
	if c.FullExitPct <= 0 || c.FullExitPct > 100 {
		return fmt.Errorf("risk: full-exit pct %.2f out of (0, 100]", c.FullExitPct)
	}
	return nil
}

// InitialFloor computes the starting stop-loss floor for an entry price.
func (c *RiskConfig) InitialFloor(entryPrice float64) float64 {
	return entryPrice * (1 - c.InitialStopLossPct/100)
}
