package binance

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// safetyBufferMs is subtracted from the measured offset so generated
	// timestamps are never ahead of the server clock.
	safetyBufferMs = 1000

	defaultResyncInterval = 5 * time.Minute
)

// ServerTimeFunc fetches the exchange's current server time in milliseconds.
type ServerTimeFunc func(ctx context.Context) (int64, error)

// Clock tracks the drift between the local clock and the exchange's server
// clock and produces corrected timestamps for signed requests. The offset is
// the one piece of mutable session state; it is guarded by a mutex so
// concurrent resyncs cannot leave it inconsistent.
type Clock struct {
	mu             sync.Mutex
	offsetMs       int64
	lastSync       time.Time
	resyncInterval time.Duration
	nowFn          func() time.Time
	logger         *logrus.Logger
}

func NewClock(logger *logrus.Logger) *Clock {
	return &Clock{
		resyncInterval: defaultResyncInterval,
		nowFn:          time.Now,
		logger:         logger,
	}
}

// SetResyncInterval overrides the default 5 minute resync interval.
func (c *Clock) SetResyncInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resyncInterval = d
}

// Sync fetches the server time and records offsetMs = (server - local) minus
// the safety buffer. A provider failure is logged and leaves the previous
// offset in place; callers must tolerate unsynchronized operation.
func (c *Clock) Sync(ctx context.Context, serverTime ServerTimeFunc) bool {
	st, err := serverTime(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Clock sync failed, keeping previous offset")
		return false
	}

	local := c.nowFn().UnixMilli()
	raw := st - local

	c.mu.Lock()
	c.offsetMs = raw - safetyBufferMs
	c.lastSync = c.nowFn()
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"raw_offset_ms":     raw,
		"applied_offset_ms": raw - safetyBufferMs,
	}).Info("Clock synchronized")
	return true
}

// ShouldResync reports whether a sync is due: either one has never happened
// or the resync interval has elapsed since the last one.
func (c *Clock) ShouldResync() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSync.IsZero() {
		return true
	}
	return c.nowFn().Sub(c.lastSync) > c.resyncInterval
}

// Timestamp returns the corrected wall time in milliseconds, the value sent
// as the timestamp parameter on every signed request.
func (c *Clock) Timestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowFn().UnixMilli() + c.offsetMs
}

// Offset returns the currently applied offset in milliseconds.
func (c *Clock) Offset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offsetMs
}
