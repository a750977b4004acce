package binance

import (
	"context"
	"net/url"
	"time"
)

const (
	maxSignedAttempts  = 3
	skewRetryWait      = 500 * time.Millisecond
	transientRetryWait = time.Second
)

// signedCall drives a signed endpoint through the attempt budget. The clock
// is synced before the first signed call of a session and whenever the resync
// interval has lapsed. A clock-skew rejection (code -1021) forces a resync
// before the next attempt; every other failure is retried after a short pause
// (the same policy at every call site). The last error is surfaced once the
// budget is spent.
func (c *Client) signedCall(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if c.clock.ShouldResync() {
			c.clock.Sync(ctx, c.ServerTime)
		}

		body, err := c.do(ctx, method, endpoint, params, true)
		if err == nil {
			return body, nil
		}
		lastErr = err

		wait := c.transientWait
		if IsClockSkew(err) {
			c.logger.WithError(err).WithField("attempt", attempt).Warn("Timestamp outside recvWindow, resyncing clock")
			c.clock.Sync(ctx, c.ServerTime)
			wait = c.skewWait
		}

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}
