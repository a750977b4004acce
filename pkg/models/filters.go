package models

import "github.com/shopspring/decimal"

// SymbolFilters are the exchange-supplied trading rules for one symbol:
// the LOT_SIZE quantity grid and the PRICE_FILTER price grid.
type SymbolFilters struct {
	Symbol   string
	MinQty   decimal.Decimal
	MaxQty   decimal.Decimal
	StepSize decimal.Decimal
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
	TickSize decimal.Decimal
}
