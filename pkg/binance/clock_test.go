package binance

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fixedServerTime(ms int64) ServerTimeFunc {
	return func(ctx context.Context) (int64, error) {
		return ms, nil
	}
}

func failingServerTime(ctx context.Context) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestSyncAppliesSafetyBuffer(t *testing.T) {
	localNow := time.UnixMilli(1_000_000)
	clock := NewClock(testLogger())
	clock.nowFn = func() time.Time { return localNow }

	// Server is 2500ms ahead of us; the applied offset must trail the raw
	// offset by the 1s safety buffer.
	if !clock.Sync(context.Background(), fixedServerTime(1_002_500)) {
		t.Fatal("Sync failed against a healthy provider.")
	}

	if got := clock.Offset(); got != 1500 {
		t.Errorf("Offset is %d, expected raw 2500 - 1000 buffer = 1500.", got)
	}
	if got := clock.Timestamp(); got != 1_001_500 {
		t.Errorf("Timestamp is %d, expected local 1000000 + offset 1500.", got)
	}
}

func TestTimestampNeverAheadOfServer(t *testing.T) {
	localNow := time.UnixMilli(5_000_000)
	serverNow := int64(5_003_200)

	clock := NewClock(testLogger())
	clock.nowFn = func() time.Time { return localNow }
	clock.Sync(context.Background(), fixedServerTime(serverNow))

	if ts := clock.Timestamp(); ts > serverNow-1000 {
		t.Errorf("Timestamp %d is ahead of the server estimate minus the buffer (%d).", ts, serverNow-1000)
	}
}

func TestSyncFailureKeepsPreviousOffset(t *testing.T) {
	localNow := time.UnixMilli(1_000_000)
	clock := NewClock(testLogger())
	clock.nowFn = func() time.Time { return localNow }

	clock.Sync(context.Background(), fixedServerTime(1_002_000))
	before := clock.Offset()

	if clock.Sync(context.Background(), failingServerTime) {
		t.Error("Sync reported success against a failing provider.")
	}
	if got := clock.Offset(); got != before {
		t.Errorf("Offset changed from %d to %d on a failed sync.", before, got)
	}
}

func TestUnsyncedClockUsesZeroOffset(t *testing.T) {
	localNow := time.UnixMilli(42_000)
	clock := NewClock(testLogger())
	clock.nowFn = func() time.Time { return localNow }

	clock.Sync(context.Background(), failingServerTime)

	// Unsynchronized operation is valid, if risky: offset stays zero.
	if got := clock.Timestamp(); got != 42_000 {
		t.Errorf("Timestamp is %d, expected the raw local time 42000.", got)
	}
}

func TestShouldResync(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	clock := NewClock(testLogger())
	clock.nowFn = func() time.Time { return now }

	if !clock.ShouldResync() {
		t.Error("A never-synced clock must want a resync.")
	}

	clock.Sync(context.Background(), fixedServerTime(1_000_000))
	if clock.ShouldResync() {
		t.Error("A freshly synced clock must not want a resync.")
	}

	now = now.Add(defaultResyncInterval + time.Second)
	if !clock.ShouldResync() {
		t.Error("A clock past the resync interval must want a resync.")
	}
}
