package trader

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/gregtusar/futures-trader/pkg/binance"
	"github.com/gregtusar/futures-trader/pkg/models"
)

// Session is the trading façade consumed by the dashboard API and the CLI.
// It owns one exchange client for one set of credentials; every operation is
// a synchronous request/response unit of work. Orders are validated against
// the symbol's trading filters before anything touches the network.
type Session struct {
	exchange  binance.Exchange
	validator *binance.Validator
	logger    *logrus.Logger
}

func NewSession(exchange binance.Exchange, logger *logrus.Logger) *Session {
	return &Session{
		exchange:  exchange,
		validator: binance.NewValidator(exchange),
		logger:    logger,
	}
}

// GetAccountSummary returns the account view the dashboard renders. It never
// fails: any internal error yields a zeroed summary with the error flag set,
// so the presentation layer always has a renderable shape.
func (s *Session) GetAccountSummary(ctx context.Context) *models.AccountSummary {
	balances, err := s.exchange.Balances(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch account balances")
		return emptySummary(err)
	}

	positions, err := s.exchange.Positions(ctx, "")
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch positions")
		return emptySummary(err)
	}

	// Slices start non-nil so the JSON view always renders arrays.
	summary := &models.AccountSummary{
		Assets:    balances,
		Positions: []models.Position{},
	}
	for _, b := range balances {
		if b.Asset == "USDT" {
			summary.TotalBalance, _ = b.Balance.Float64()
			summary.AvailableBalance, _ = b.AvailableBalance.Float64()
			break
		}
	}

	pnl := decimal.Zero
	for _, p := range positions {
		if p.PositionAmt.IsZero() {
			continue
		}
		pnl = pnl.Add(p.UnrealizedProfit)
		summary.Positions = append(summary.Positions, p)
	}
	summary.UnrealizedPnl, _ = pnl.Float64()

	return summary
}

func emptySummary(err error) *models.AccountSummary {
	return &models.AccountSummary{
		Positions:  []models.Position{},
		Assets:     []models.Balance{},
		Err:        true,
		ErrMessage: err.Error(),
	}
}

func (s *Session) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := s.exchange.TickerPrice(ctx, symbol)
	if err != nil {
		s.logger.WithError(err).WithField("symbol", symbol).Error("Failed to fetch ticker price")
		return 0, err
	}
	f, _ := price.Float64()
	return f, nil
}

// GetOpenOrders lists open orders; symbol is optional and narrows the result.
func (s *Session) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	return s.exchange.OpenOrders(ctx, symbol)
}

func (s *Session) PlaceMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity float64) (*models.Order, error) {
	qty, _, err := s.validator.Validate(ctx, symbol, side, models.OrderTypeMarket, decimal.NewFromFloat(quantity), decimal.Decimal{})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"symbol":   symbol,
		"side":     side,
		"quantity": qty,
	}).Info("Placing market order")

	return s.exchange.PlaceOrder(ctx, models.OrderRequest{
		Symbol:   strings.ToUpper(symbol),
		Side:     side,
		Type:     models.OrderTypeMarket,
		Quantity: qty,
	})
}

func (s *Session) PlaceLimitOrder(ctx context.Context, symbol string, side models.OrderSide, quantity, price float64) (*models.Order, error) {
	qty, px, err := s.validator.Validate(ctx, symbol, side, models.OrderTypeLimit, decimal.NewFromFloat(quantity), decimal.NewFromFloat(price))
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"symbol":   symbol,
		"side":     side,
		"quantity": qty,
		"price":    px,
	}).Info("Placing limit order")

	return s.exchange.PlaceOrder(ctx, models.OrderRequest{
		Symbol:      strings.ToUpper(symbol),
		Side:        side,
		Type:        models.OrderTypeLimit,
		Quantity:    qty,
		Price:       px,
		TimeInForce: "GTC",
	})
}

// PlaceStopMarketOrder places a STOP_MARKET order triggered at stopPrice.
func (s *Session) PlaceStopMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity, stopPrice float64) (*models.Order, error) {
	qty, _, err := s.validator.Validate(ctx, symbol, side, models.OrderTypeStopMarket, decimal.NewFromFloat(quantity), decimal.Decimal{})
	if err != nil {
		return nil, err
	}
	trigger, err := s.validator.SnapPrice(ctx, symbol, decimal.NewFromFloat(stopPrice))
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"symbol":     symbol,
		"side":       side,
		"quantity":   qty,
		"stop_price": trigger,
	}).Info("Placing stop market order")

	return s.exchange.PlaceOrder(ctx, models.OrderRequest{
		Symbol:    strings.ToUpper(symbol),
		Side:      side,
		Type:      models.OrderTypeStopMarket,
		Quantity:  qty,
		StopPrice: trigger,
	})
}

func (s *Session) CancelOrder(ctx context.Context, symbol string, orderID int64) (*models.Order, error) {
	order, err := s.exchange.CancelOrder(ctx, symbol, orderID)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"symbol":   symbol,
			"order_id": orderID,
		}).Error("Failed to cancel order")
		return nil, err
	}
	s.logger.WithField("order_id", orderID).Info("Order cancelled")
	return order, nil
}

func (s *Session) GetOrderStatus(ctx context.Context, symbol string, orderID int64) (*models.Order, error) {
	return s.exchange.GetOrder(ctx, symbol, orderID)
}

// TestConnection probes the public endpoints, attempts a balance read, and
// syncs the session clock. It fails only when the public API is unreachable;
// restricted account access is reported as a warning.
func (s *Session) TestConnection(ctx context.Context) error {
	if err := s.exchange.Ping(ctx); err != nil {
		return err
	}

	serverTime, err := s.exchange.ServerTime(ctx)
	if err != nil {
		return err
	}
	s.logger.WithField("server_time", time.UnixMilli(serverTime).UTC()).Info("Server time retrieved")

	info, err := s.exchange.ExchangeInfo(ctx)
	if err != nil {
		return err
	}
	s.logger.WithField("symbols", len(info.Symbols)).Info("Exchange info retrieved")

	if balances, err := s.exchange.Balances(ctx); err != nil {
		s.logger.WithError(err).Warn("Account access limited")
	} else {
		s.logger.WithField("assets", len(balances)).Info("Account access confirmed")
	}

	if !s.exchange.SyncClock(ctx) {
		s.logger.Warn("Clock sync failed during connection test")
	}

	s.logger.Info("Connection test passed")
	return nil
}
