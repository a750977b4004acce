package binance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gregtusar/futures-trader/pkg/models"
)

type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type balanceEntry struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"availableBalance"`
	CrossUnPnl       string `json:"crossUnPnl"`
}

type positionEntry struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	Leverage         string `json:"leverage"`
	PositionSide     string `json:"positionSide"`
}

type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	Price         string `json:"price"`
	AvgPrice      string `json:"avgPrice"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	StopPrice     string `json:"stopPrice"`
	TimeInForce   string `json:"timeInForce"`
	ReduceOnly    bool   `json:"reduceOnly"`
	UpdateTime    int64  `json:"updateTime"`
}

// ExchangeInfo is the trading-rules metadata from /fapi/v1/exchangeInfo,
// reduced to the parts the validator consumes.
type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

type SymbolInfo struct {
	Symbol  string   `json:"symbol"`
	Status  string   `json:"status"`
	Filters []Filter `json:"filters"`
}

// Filter is one trading-rule entry; the populated fields depend on FilterType.
type Filter struct {
	FilterType string `json:"filterType"`
	MinQty     string `json:"minQty"`
	MaxQty     string `json:"maxQty"`
	StepSize   string `json:"stepSize"`
	MinPrice   string `json:"minPrice"`
	MaxPrice   string `json:"maxPrice"`
	TickSize   string `json:"tickSize"`
}

// TradingFilters flattens the symbol's LOT_SIZE and PRICE_FILTER entries.
func (s SymbolInfo) TradingFilters() models.SymbolFilters {
	f := models.SymbolFilters{Symbol: s.Symbol}
	for _, entry := range s.Filters {
		switch entry.FilterType {
		case "LOT_SIZE":
			f.MinQty = parseDecimal(entry.MinQty)
			f.MaxQty = parseDecimal(entry.MaxQty)
			f.StepSize = parseDecimal(entry.StepSize)
		case "PRICE_FILTER":
			f.MinPrice = parseDecimal(entry.MinPrice)
			f.MaxPrice = parseDecimal(entry.MaxPrice)
			f.TickSize = parseDecimal(entry.TickSize)
		}
	}
	return f
}

// parseDecimal is lenient: the exchange leaves some numeric fields empty
// depending on the order type, which reads as zero.
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Decimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}
	}
	return d
}

func (r orderResponse) toModel() models.Order {
	return models.Order{
		OrderID:       r.OrderID,
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Side:          models.OrderSide(r.Side),
		Type:          models.OrderType(r.Type),
		Status:        models.OrderStatus(r.Status),
		Price:         parseDecimal(r.Price),
		AvgPrice:      parseDecimal(r.AvgPrice),
		OrigQty:       parseDecimal(r.OrigQty),
		ExecutedQty:   parseDecimal(r.ExecutedQty),
		StopPrice:     parseDecimal(r.StopPrice),
		TimeInForce:   r.TimeInForce,
		ReduceOnly:    r.ReduceOnly,
		UpdatedAt:     time.UnixMilli(r.UpdateTime),
	}
}

func (b balanceEntry) toModel() models.Balance {
	return models.Balance{
		Asset:            b.Asset,
		Balance:          parseDecimal(b.Balance),
		AvailableBalance: parseDecimal(b.AvailableBalance),
		CrossUnPnl:       parseDecimal(b.CrossUnPnl),
	}
}

func (p positionEntry) toModel() models.Position {
	leverage := 0
	if d := parseDecimal(p.Leverage); !d.IsZero() {
		leverage = int(d.IntPart())
	}
	return models.Position{
		Symbol:           p.Symbol,
		PositionAmt:      parseDecimal(p.PositionAmt),
		EntryPrice:       parseDecimal(p.EntryPrice),
		MarkPrice:        parseDecimal(p.MarkPrice),
		UnrealizedProfit: parseDecimal(p.UnRealizedProfit),
		Leverage:         leverage,
		PositionSide:     p.PositionSide,
	}
}
