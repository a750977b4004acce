package binance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

const (
	// transportRetries is the number of extra sends after the first one on a
	// retryable status or connection failure.
	transportRetries     = 3
	transportBackoffBase = time.Second
)

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// do builds and sends one API request. For signed calls it injects the
// clock-corrected timestamp and recvWindow, then appends the HMAC signature
// computed over the encoded query string. The returned body is raw JSON; an
// empty 2xx body reads as an empty object. Retryable HTTP statuses and
// connection failures are retried here with exponential backoff, independent
// of the signed-call retry in signedCall. Only idempotent methods are ever
// re-sent: a POST whose response was lost may already have placed the order,
// so send marks those failures non-retryable.
func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.transportWait

	var lastErr error
	for attempt := 0; attempt <= transportRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(bo.NextBackOff()):
			}
		}

		body, retryable, err := c.send(ctx, method, endpoint, c.encodeQuery(params, signed))
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		c.logger.WithError(err).WithFields(logrus.Fields{
			"method":   method,
			"endpoint": endpoint,
			"attempt":  attempt + 1,
		}).Warn("Transient transport failure")
	}
	return nil, lastErr
}

// encodeQuery builds the canonical query string. Signed queries get a fresh
// timestamp and signature on every call, so a request retried after a backoff
// wait never carries a stale signature.
func (c *Client) encodeQuery(params url.Values, signed bool) string {
	if !signed {
		return params.Encode()
	}
	if c.recvWindow > 0 {
		params.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))
	}
	params.Set("timestamp", strconv.FormatInt(c.clock.Timestamp(), 10))
	query := params.Encode()
	return query + "&signature=" + Sign(c.apiSecret, query)
}

// send performs a single HTTP exchange and classifies the outcome: decoded
// API errors come back as *APIError, anything else as a transport error.
// POST failures are never retryable regardless of status.
func (c *Client) send(ctx context.Context, method, endpoint, query string) (body []byte, retryable bool, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	u := c.baseURL + "/fapi/v1/" + endpoint
	var reqBody io.Reader
	if method == http.MethodPost {
		reqBody = strings.NewReader(query)
	} else if query != "" {
		u += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	idempotent := method != http.MethodPost

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, idempotent, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, idempotent, fmt.Errorf("read response from %s: %w", endpoint, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if len(raw) == 0 {
			return []byte("{}"), false, nil
		}
		return raw, false, nil
	}

	apiErr := &APIError{HTTPStatus: resp.StatusCode}
	if jsonErr := json.Unmarshal(raw, apiErr); jsonErr != nil || apiErr.Code == 0 {
		return nil, idempotent && retryableStatus(resp.StatusCode),
			fmt.Errorf("unexpected response from %s (status %d): %q", endpoint, resp.StatusCode, raw)
	}
	return nil, idempotent && retryableStatus(resp.StatusCode), apiErr
}
