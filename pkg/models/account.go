package models

import "github.com/shopspring/decimal"

type Balance struct {
	Asset            string
	Balance          decimal.Decimal
	AvailableBalance decimal.Decimal
	CrossUnPnl       decimal.Decimal
}

type Position struct {
	Symbol           string
	PositionAmt      decimal.Decimal
	EntryPrice       decimal.Decimal
	MarkPrice        decimal.Decimal
	UnrealizedProfit decimal.Decimal
	Leverage         int
	PositionSide     string
}

// AccountSummary is the always-renderable account view backing the dashboard.
// When Err is set the numeric fields are zero and ErrMessage explains why.
type AccountSummary struct {
	TotalBalance     float64    `json:"total_balance"`
	AvailableBalance float64    `json:"available_balance"`
	UnrealizedPnl    float64    `json:"unrealized_pnl"`
	Positions        []Position `json:"positions"`
	Assets           []Balance  `json:"assets"`
	Err              bool       `json:"error"`
	ErrMessage       string     `json:"error_message,omitempty"`
}
