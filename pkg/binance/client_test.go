package binance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gregtusar/futures-trader/pkg/models"
)

func marketBuyRequest(symbol, qty string) models.OrderRequest {
	return models.OrderRequest{
		Symbol:   symbol,
		Side:     models.OrderSideBuy,
		Type:     models.OrderTypeMarket,
		Quantity: decimal.RequireFromString(qty),
	}
}

func newTestClient(baseURL string) *Client {
	c := New("test-key", "test-secret", false, testLogger())
	c.baseURL = baseURL

	// Keep retry pauses out of the test runtime.
	c.skewWait = time.Millisecond
	c.transientWait = time.Millisecond
	c.transportWait = time.Millisecond
	return c
}

func serveTime(w http.ResponseWriter) {
	fmt.Fprintf(w, `{"serverTime": %d}`, time.Now().UnixMilli())
}

func TestClockSkewTriggersResyncAndRetry(t *testing.T) {
	var timeCalls, balanceCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/time", func(w http.ResponseWriter, r *http.Request) {
		timeCalls++
		serveTime(w)
	})
	mux.HandleFunc("/fapi/v1/balance", func(w http.ResponseWriter, r *http.Request) {
		balanceCalls++
		if balanceCalls == 1 {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code": -1021, "msg": "Timestamp for this request is outside of the recvWindow."}`)
			return
		}
		fmt.Fprint(w, `[{"asset": "USDT", "balance": "100.5", "availableBalance": "90.25", "crossUnPnl": "0"}]`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)
	balances, err := client.Balances(context.Background())
	if err != nil {
		t.Fatalf("Balances failed: %v", err)
	}

	if len(balances) != 1 || balances[0].Asset != "USDT" {
		t.Errorf("Unexpected balances: %+v", balances)
	}
	if balanceCalls != 2 {
		t.Errorf("Expected the signed call to be retried once after the skew error, got %d attempts.", balanceCalls)
	}
	// One mandatory sync before the first signed attempt, exactly one more
	// between the -1021 rejection and the second attempt.
	if timeCalls != 2 {
		t.Errorf("Expected 2 clock syncs (initial + post-skew), got %d.", timeCalls)
	}
}

func TestRetryBudgetIsCappedAtThreeAttempts(t *testing.T) {
	var balanceCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/time", func(w http.ResponseWriter, r *http.Request) {
		serveTime(w)
	})
	mux.HandleFunc("/fapi/v1/balance", func(w http.ResponseWriter, r *http.Request) {
		balanceCalls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code": -1021, "msg": "Timestamp for this request is outside of the recvWindow."}`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Balances(context.Background())
	if err == nil {
		t.Fatal("Expected the exhausted retry budget to surface the error.")
	}
	if !IsClockSkew(err) {
		t.Errorf("Expected the terminal error to be the clock-skew rejection, got %v.", err)
	}
	if balanceCalls != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d.", balanceCalls)
	}
}

func TestNonTimestampAPIErrorsAreRetriedThenSurfaced(t *testing.T) {
	var orderCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/time", func(w http.ResponseWriter, r *http.Request) {
		serveTime(w)
	})
	mux.HandleFunc("/fapi/v1/order", func(w http.ResponseWriter, r *http.Request) {
		orderCalls++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code": -2019, "msg": "Margin is insufficient."}`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.GetOrder(context.Background(), "BTCUSDT", 42)
	if err == nil {
		t.Fatal("Expected the API error to be surfaced.")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected an *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != -2019 || apiErr.Message != "Margin is insufficient." {
		t.Errorf("API error was not surfaced verbatim: %+v", apiErr)
	}
	if orderCalls != 3 {
		t.Errorf("Expected the uniform 3-attempt policy, got %d attempts.", orderCalls)
	}
}

func TestTransportRetriesOnRetryableStatus(t *testing.T) {
	var tickerCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		tickerCalls++
		if tickerCalls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "Service Unavailable")
			return
		}
		fmt.Fprint(w, `{"symbol": "BTCUSDT", "price": "65000.50"}`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)
	price, err := client.TickerPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("TickerPrice failed: %v", err)
	}
	if price.String() != "65000.5" {
		t.Errorf("Unexpected price %s.", price)
	}
	if tickerCalls != 3 {
		t.Errorf("Expected 3 sends (2 retryable failures + success), got %d.", tickerCalls)
	}
}

func TestPostIsNeverResentAtTransportLayer(t *testing.T) {
	var orderCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/time", func(w http.ResponseWriter, r *http.Request) {
		serveTime(w)
	})
	mux.HandleFunc("/fapi/v1/order", func(w http.ResponseWriter, r *http.Request) {
		orderCalls++
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "Service Unavailable")
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.PlaceOrder(context.Background(), marketBuyRequest("BTCUSDT", "0.001"))
	if err == nil {
		t.Fatal("Expected the persistent 503 to surface an error.")
	}

	// A lost POST response may already have placed the order, so the
	// transport layer must not re-send it: exactly one send per signed
	// attempt, never more.
	if orderCalls != 3 {
		t.Errorf("Expected 3 sends (one per signed attempt, no transport re-sends), got %d.", orderCalls)
	}
}

func TestRetriedSignedRequestRefreshesTimestamp(t *testing.T) {
	var timestamps []string

	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/time", func(w http.ResponseWriter, r *http.Request) {
		serveTime(w)
	})
	mux.HandleFunc("/fapi/v1/balance", func(w http.ResponseWriter, r *http.Request) {
		timestamps = append(timestamps, r.URL.Query().Get("timestamp"))
		if len(timestamps) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "Service Unavailable")
			return
		}
		fmt.Fprint(w, `[]`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)

	// Advance the local clock a full second per reading so a re-encoded
	// timestamp is distinguishable from a reused one.
	base := time.Now()
	var reads int
	client.clock.nowFn = func() time.Time {
		reads++
		return base.Add(time.Duration(reads) * time.Second)
	}

	if _, err := client.Balances(context.Background()); err != nil {
		t.Fatalf("Balances failed: %v", err)
	}

	if len(timestamps) != 2 {
		t.Fatalf("Expected the 503 to be retried once at the transport layer, got %d sends.", len(timestamps))
	}
	if timestamps[0] == timestamps[1] {
		t.Errorf("Retried request reused the stale timestamp %s; it must be re-signed per attempt.", timestamps[0])
	}
}

func TestEmptyBodyReadsAsEmptyObject(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)
	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping against an empty 200 body failed: %v", err)
	}
}

func TestSignedRequestCarriesValidSignature(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/time", func(w http.ResponseWriter, r *http.Request) {
		serveTime(w)
	})
	mux.HandleFunc("/fapi/v1/order", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Order placement used %s, expected POST.", r.Method)
		}
		if got := r.Header.Get("X-MBX-APIKEY"); got != "test-key" {
			t.Errorf("API key header is %q.", got)
		}

		raw, _ := io.ReadAll(r.Body)
		body := string(raw)
		idx := strings.LastIndex(body, "&signature=")
		if idx < 0 {
			t.Errorf("Signed body carries no signature: %q", body)
			fmt.Fprint(w, `{"orderId": 7}`)
			return
		}
		payload, sig := body[:idx], body[idx+len("&signature="):]
		if want := Sign("test-secret", payload); sig != want {
			t.Errorf("Signature %s does not verify over the sent payload (expected %s).", sig, want)
		}
		for _, param := range []string{"timestamp=", "recvWindow=", "symbol=BTCUSDT", "side=BUY", "type=MARKET"} {
			if !strings.Contains(payload, param) {
				t.Errorf("Signed payload is missing %q: %q", param, payload)
			}
		}

		fmt.Fprint(w, `{"orderId": 7, "symbol": "BTCUSDT", "side": "BUY", "type": "MARKET", "status": "NEW", "origQty": "0.001", "executedQty": "0"}`)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)
	order, err := client.PlaceOrder(context.Background(), marketBuyRequest("BTCUSDT", "0.001"))
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if order.OrderID != 7 || order.Status != "NEW" {
		t.Errorf("Unexpected order result: %+v", order)
	}
}

func TestMalformedErrorBodyIsATransportError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "<html>not json</html>")
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.TickerPrice(context.Background(), "BTCUSDT")
	if err == nil {
		t.Fatal("Expected a transport error for a non-JSON error body.")
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Errorf("A malformed body must not decode into an API error: %+v", apiErr)
	}
}
