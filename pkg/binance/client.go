package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/gregtusar/futures-trader/pkg/models"
)

const (
	productionBaseURL = "https://fapi.binance.com"
	testnetBaseURL    = "https://testnet.binancefuture.com"

	apiKeyHeader = "X-MBX-APIKEY"

	defaultTimeout    = 10 * time.Second
	defaultRecvWindow = 5000
)

// Exchange is the operation set the REST client exposes to callers.
type Exchange interface {
	Ping(ctx context.Context) error
	ServerTime(ctx context.Context) (int64, error)
	ExchangeInfo(ctx context.Context) (*ExchangeInfo, error)
	TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Balances(ctx context.Context) ([]models.Balance, error)
	Positions(ctx context.Context, symbol string) ([]models.Position, error)
	OpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
	PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*models.Order, error)
	GetOrder(ctx context.Context, symbol string, orderID int64) (*models.Order, error)
	SyncClock(ctx context.Context) bool
}

// Client talks to the Binance USD-M futures REST API. Signed endpoints carry
// a clock-corrected timestamp and an HMAC signature over the query string;
// see signedCall for the retry semantics around clock skew.
type Client struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow int64
	httpClient *http.Client
	limiter    *rate.Limiter
	clock      *Clock
	logger     *logrus.Logger

	maxAttempts   int
	skewWait      time.Duration
	transientWait time.Duration
	transportWait time.Duration
}

func New(apiKey, apiSecret string, testnet bool, logger *logrus.Logger) *Client {
	baseURL := productionBaseURL
	if testnet {
		baseURL = testnetBaseURL
	}

	return &Client{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		recvWindow: defaultRecvWindow,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		clock:      NewClock(logger),
		logger:     logger,

		maxAttempts:   maxSignedAttempts,
		skewWait:      skewRetryWait,
		transientWait: transientRetryWait,
		transportWait: transportBackoffBase,
	}
}

// SetTimeout overrides the default 10s request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// SetRecvWindow overrides the default 5000ms tolerance window sent on signed
// requests. Zero disables the parameter, leaving the server default.
func (c *Client) SetRecvWindow(ms int64) {
	c.recvWindow = ms
}

// Clock exposes the session clock so callers can tune the resync interval.
func (c *Client) Clock() *Clock {
	return c.clock
}

// SyncClock resynchronizes the session clock against the server time
// endpoint. Failure is recovered locally and only reported as false.
func (c *Client) SyncClock(ctx context.Context) bool {
	return c.clock.Sync(ctx, c.ServerTime)
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "ping", nil, false)
	return err
}

func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	body, err := c.do(ctx, http.MethodGet, "time", nil, false)
	if err != nil {
		return 0, err
	}
	var resp serverTimeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode server time: %w", err)
	}
	return resp.ServerTime, nil
}

func (c *Client) ExchangeInfo(ctx context.Context) (*ExchangeInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "exchangeInfo", nil, false)
	if err != nil {
		return nil, err
	}
	var info ExchangeInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode exchange info: %w", err)
	}
	return &info, nil
}

func (c *Client) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))

	body, err := c.do(ctx, http.MethodGet, "ticker/price", params, false)
	if err != nil {
		return decimal.Decimal{}, err
	}
	var resp tickerPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode ticker price: %w", err)
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse ticker price %q: %w", resp.Price, err)
	}
	return price, nil
}

func (c *Client) Balances(ctx context.Context) ([]models.Balance, error) {
	body, err := c.signedCall(ctx, http.MethodGet, "balance", nil)
	if err != nil {
		return nil, err
	}
	var entries []balanceEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode balances: %w", err)
	}
	balances := make([]models.Balance, 0, len(entries))
	for _, e := range entries {
		balances = append(balances, e.toModel())
	}
	return balances, nil
}

// Positions returns position risk entries; symbol is optional and narrows
// the result to one symbol when non-empty.
func (c *Client) Positions(ctx context.Context, symbol string) ([]models.Position, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", strings.ToUpper(symbol))
	}

	body, err := c.signedCall(ctx, http.MethodGet, "positionRisk", params)
	if err != nil {
		return nil, err
	}
	var entries []positionEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	positions := make([]models.Position, 0, len(entries))
	for _, e := range entries {
		positions = append(positions, e.toModel())
	}
	return positions, nil
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", strings.ToUpper(symbol))
	}

	body, err := c.signedCall(ctx, http.MethodGet, "openOrders", params)
	if err != nil {
		return nil, err
	}
	var entries []orderResponse
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	orders := make([]models.Order, 0, len(entries))
	for _, e := range entries {
		orders = append(orders, e.toModel())
	}
	return orders, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(req.Symbol))
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	if !req.Quantity.IsZero() {
		params.Set("quantity", req.Quantity.String())
	}
	if req.Type.RequiresPrice() {
		params.Set("price", req.Price.String())
	}
	if !req.StopPrice.IsZero() {
		params.Set("stopPrice", req.StopPrice.String())
	}
	tif := req.TimeInForce
	if tif == "" && req.Type == models.OrderTypeLimit {
		tif = "GTC"
	}
	if tif != "" {
		params.Set("timeInForce", tif)
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	body, err := c.signedCall(ctx, http.MethodPost, "order", params)
	if err != nil {
		return nil, err
	}
	return decodeOrder(body)
}

func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (*models.Order, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	body, err := c.signedCall(ctx, http.MethodDelete, "order", params)
	if err != nil {
		return nil, err
	}
	return decodeOrder(body)
}

func (c *Client) GetOrder(ctx context.Context, symbol string, orderID int64) (*models.Order, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	body, err := c.signedCall(ctx, http.MethodGet, "order", params)
	if err != nil {
		return nil, err
	}
	return decodeOrder(body)
}

func decodeOrder(body []byte) (*models.Order, error) {
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	order := resp.toModel()
	return &order, nil
}
