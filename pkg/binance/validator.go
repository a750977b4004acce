package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gregtusar/futures-trader/pkg/models"
)

const defaultFilterTTL = 5 * time.Minute

// FilterSource supplies the exchange trading-rules metadata.
type FilterSource interface {
	ExchangeInfo(ctx context.Context) (*ExchangeInfo, error)
}

// Validator normalizes candidate orders against the exchange's per-symbol
// trading filters: quantities snap down to the LOT_SIZE step grid and prices
// down to the PRICE_FILTER tick grid, both in exact decimal arithmetic.
// Filters are read through a TTL cache; entries are independent per symbol.
type Validator struct {
	source FilterSource

	mu        sync.Mutex
	cache     map[string]models.SymbolFilters
	fetchedAt time.Time
	ttl       time.Duration
	nowFn     func() time.Time
}

func NewValidator(source FilterSource) *Validator {
	return &Validator{
		source: source,
		ttl:    defaultFilterTTL,
		nowFn:  time.Now,
	}
}

// Filters returns the trading filters for symbol, refreshing the cache from
// the exchange metadata endpoint when stale.
func (v *Validator) Filters(ctx context.Context, symbol string) (models.SymbolFilters, error) {
	symbol = strings.ToUpper(symbol)

	v.mu.Lock()
	if v.cache != nil && v.nowFn().Sub(v.fetchedAt) <= v.ttl {
		f, ok := v.cache[symbol]
		v.mu.Unlock()
		if !ok {
			return models.SymbolFilters{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
		}
		return f, nil
	}
	v.mu.Unlock()

	info, err := v.source.ExchangeInfo(ctx)
	if err != nil {
		return models.SymbolFilters{}, fmt.Errorf("fetch exchange info: %w", err)
	}

	cache := make(map[string]models.SymbolFilters, len(info.Symbols))
	for _, s := range info.Symbols {
		cache[s.Symbol] = s.TradingFilters()
	}

	v.mu.Lock()
	v.cache = cache
	v.fetchedAt = v.nowFn()
	v.mu.Unlock()

	f, ok := cache[symbol]
	if !ok {
		return models.SymbolFilters{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return f, nil
}

// Validate checks a candidate order against the symbol's filters and returns
// the normalized quantity and price. Quantity and price only ever round down;
// an already-normalized value passes through unchanged. Price is ignored for
// order types that do not carry one.
func (v *Validator) Validate(ctx context.Context, symbol string, side models.OrderSide, orderType models.OrderType, quantity, price decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	var zero decimal.Decimal

	filters, err := v.Filters(ctx, symbol)
	if err != nil {
		return zero, zero, err
	}

	if side != models.OrderSideBuy && side != models.OrderSideSell {
		return zero, zero, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	switch orderType {
	case models.OrderTypeMarket, models.OrderTypeLimit, models.OrderTypeStop,
		models.OrderTypeStopMarket, models.OrderTypeTakeProfit, models.OrderTypeTakeProfitMarket:
	default:
		return zero, zero, fmt.Errorf("%w: %q", ErrInvalidOrderType, orderType)
	}

	if quantity.LessThan(filters.MinQty) {
		return zero, zero, fmt.Errorf("%w: %s below minimum %s", ErrQuantityOutOfRange, quantity, filters.MinQty)
	}
	if filters.MaxQty.IsPositive() && quantity.GreaterThan(filters.MaxQty) {
		return zero, zero, fmt.Errorf("%w: %s above maximum %s", ErrQuantityOutOfRange, quantity, filters.MaxQty)
	}
	quantity = snapDown(quantity, filters.StepSize)

	if orderType.RequiresPrice() {
		if !price.IsPositive() {
			return zero, zero, fmt.Errorf("%w: price required for %s orders", ErrPriceOutOfRange, orderType)
		}
		price, err = boundAndSnapPrice(price, filters)
		if err != nil {
			return zero, zero, err
		}
	} else {
		price = zero
	}

	return quantity, price, nil
}

// SnapPrice bounds a standalone price (a stop or trigger price) against the
// symbol's price filter and rounds it down to the tick grid.
func (v *Validator) SnapPrice(ctx context.Context, symbol string, price decimal.Decimal) (decimal.Decimal, error) {
	filters, err := v.Filters(ctx, symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return boundAndSnapPrice(price, filters)
}

func boundAndSnapPrice(price decimal.Decimal, filters models.SymbolFilters) (decimal.Decimal, error) {
	if price.LessThan(filters.MinPrice) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s below minimum %s", ErrPriceOutOfRange, price, filters.MinPrice)
	}
	if filters.MaxPrice.IsPositive() && price.GreaterThan(filters.MaxPrice) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s above maximum %s", ErrPriceOutOfRange, price, filters.MaxPrice)
	}
	return snapDown(price, filters.TickSize), nil
}

// snapDown rounds value down to the nearest multiple of step. Rounding up is
// never allowed: an order must not request more than the caller asked for.
func snapDown(value, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}
