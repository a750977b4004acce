package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/gregtusar/futures-trader/pkg/binance"
	"github.com/gregtusar/futures-trader/pkg/models"
	"github.com/gregtusar/futures-trader/pkg/trader"
)

// Server backs the dashboard front end with a small CORS-enabled JSON API
// over the trading session.
type Server struct {
	session *trader.Session
	logger  *logrus.Logger
	port    string
}

func NewServer(session *trader.Session, logger *logrus.Logger, port string) *Server {
	return &Server{
		session: session,
		logger:  logger,
		port:    port,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/account", s.handleAccount)
	mux.HandleFunc("/api/price", s.handlePrice)
	mux.HandleFunc("/api/orders", s.handleOrders)
	mux.HandleFunc("/api/orders/status", s.handleOrderStatus)

	// Enable CORS for the dashboard
	handler := corsMiddleware(mux)

	s.logger.Infof("Starting API server on port %s", s.port)
	return http.ListenAndServe(":"+s.port, handler)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleAccount always answers 200 with a renderable summary; failures are
// reported inside the payload, not as an HTTP error.
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary := s.session.GetAccountSummary(r.Context())
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	price, err := s.session.GetCurrentPrice(r.Context(), symbol)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"price":  price,
	})
}

type placeOrderRequest struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Type      string  `json:"type"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	StopPrice float64 `json:"stop_price"`
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		orders, err := s.session.GetOpenOrders(r.Context(), r.URL.Query().Get("symbol"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, orders)

	case http.MethodPost:
		var req placeOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var (
			order *models.Order
			err   error
		)
		side := models.OrderSide(req.Side)
		switch models.OrderType(req.Type) {
		case models.OrderTypeMarket:
			order, err = s.session.PlaceMarketOrder(r.Context(), req.Symbol, side, req.Quantity)
		case models.OrderTypeLimit:
			order, err = s.session.PlaceLimitOrder(r.Context(), req.Symbol, side, req.Quantity, req.Price)
		case models.OrderTypeStopMarket:
			order, err = s.session.PlaceStopMarketOrder(r.Context(), req.Symbol, side, req.Quantity, req.StopPrice)
		default:
			http.Error(w, "unsupported order type", http.StatusBadRequest)
			return
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, order)

	case http.MethodDelete:
		symbol := r.URL.Query().Get("symbol")
		orderID, err := strconv.ParseInt(r.URL.Query().Get("orderId"), 10, 64)
		if symbol == "" || err != nil {
			http.Error(w, "symbol and orderId are required", http.StatusBadRequest)
			return
		}

		order, err := s.session.CancelOrder(r.Context(), symbol, orderID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, order)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	symbol := r.URL.Query().Get("symbol")
	orderID, err := strconv.ParseInt(r.URL.Query().Get("orderId"), 10, 64)
	if symbol == "" || err != nil {
		http.Error(w, "symbol and orderId are required", http.StatusBadRequest)
		return
	}

	order, err := s.session.GetOrderStatus(r.Context(), symbol, orderID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

// writeError maps the error taxonomy onto HTTP statuses: local validation
// failures are the caller's fault, exchange rejections pass through with
// their code, everything else is a gateway-side failure.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var apiErr *binance.APIError
	switch {
	case binance.IsValidationError(err):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &apiErr):
		s.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error": apiErr.Message,
			"code":  apiErr.Code,
		})
	default:
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
