package domain

import "context"

// BuyResult wraps the execution-service response for a buy submission.
type BuyResult struct {
	Success    bool
	PositionID string
	TxID       string
	FillPrice  float64
	Message    string
}

// SellResult wraps the execution-service response for a percentage sell.
type SellResult struct {
	Success bool
	TxID    string
	Message string
}

// OpenPosition is one entry from the execution service's open-position list.
type OpenPosition struct {
	TokenAddress string
	PositionID   string
	Size         float64
}

// TradeExecutor is the narrow contract of the external trade-execution
// service. Results are not instantaneous; implementations must treat non-2xx
// responses and timeouts identically as recoverable failures.
type TradeExecutor interface {
	Buy(ctx context.Context, tokenAddress string, amount float64) (BuyResult, error)
	SellPercentage(ctx context.Context, positionID string, pct float64) (SellResult, error)
	ListOpenPositions(ctx context.Context) ([]OpenPosition, error)
}

// PriceSource supplies the current price for a token. Implementations must
// reject null, non-finite, and out-of-bound values and return ErrNoPrice
// instead of propagating them.
type PriceSource interface {
	Price(ctx context.Context, tokenAddress string) (float64, error)
}

// BalanceSource fetches the wallet's total spendable balance.
type BalanceSource interface {
	WalletBalance(ctx context.Context) (float64, error)
}

// ScreenResult is the verdict of the creator/holder screening service.
type ScreenResult struct {
	Safe   bool
	Reason string
}

// Screener checks a token for rug indicators before the bot trades it.
type Screener interface {
	Check(ctx context.Context, tokenAddress string) (ScreenResult, error)
}
