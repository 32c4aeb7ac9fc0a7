// Package clock provides the engine's notion of "now", abstracted so a
// backtest can replay historical timestamps through the exact same code
// path a live run uses.
package clock

import (
	"time"

	"algoengine/internal/logging"
)

// Clock is the time source the engine consults for every timestamp it
// assigns to work it originates itself (as opposed to timestamps carried
// on inbound events, which are always taken from the event).
type Clock interface {
	Now() time.Time
}

// LiveClock returns the wall-clock time, unconditionally monotonic because
// it only ever moves forward with the OS clock.
type LiveClock struct{}

// Now returns time.Now().
func (LiveClock) Now() time.Time { return time.Now() }

// HistoricalClock replays a backtest's exchange-reported timestamps, but
// between updates its Now() keeps advancing with the wall clock rather than
// standing still, so code that measures real elapsed time against it (e.g.
// a request timeout) still behaves sensibly in a backtest: Now() returns
// timeExchangeLast + (wallNow - wallAtLastUpdate) as long as that delta is
// non-negative, else the last exchange time is returned as a floor.
type HistoricalClock struct {
	timeExchangeLast time.Time
	wallAtLastUpdate time.Time
	wallNow          func() time.Time
	logger           logging.Logger
}

// NewHistoricalClock returns a HistoricalClock seeded at start.
func NewHistoricalClock(start time.Time, logger logging.Logger) *HistoricalClock {
	return &HistoricalClock{
		timeExchangeLast: start,
		wallAtLastUpdate: time.Now(),
		wallNow:          time.Now,
		logger:           logger,
	}
}

// Now returns the clock's current replayed time: the last accepted
// exchange timestamp, advanced by however much wall-clock time has
// elapsed since it was set. If the wall clock has somehow gone backwards
// since the last update, timeExchangeLast is returned unmodified as a
// floor.
func (c *HistoricalClock) Now() time.Time {
	delta := c.wallNow().Sub(c.wallAtLastUpdate)
	if delta < 0 {
		return c.timeExchangeLast
	}
	return c.timeExchangeLast.Add(delta)
}

// Advance updates the clock's exchange-time anchor to t, provided t is not
// older than the last accepted value. An out-of-order t is rejected (the
// anchor is left unchanged) and logged at a severity scaled by the size of
// the gap: under one second is routine jitter (debug), under thirty
// seconds warrants attention (warn), anything larger likely indicates a
// misordered data feed (error).
func (c *HistoricalClock) Advance(t time.Time) {
	if t.Before(c.timeExchangeLast) {
		gap := c.timeExchangeLast.Sub(t)
		if c.logger != nil {
			switch {
			case gap < time.Second:
				c.logger.Debug("historical clock received an out-of-order timestamp", "gap", gap)
			case gap < 30*time.Second:
				c.logger.Warn("historical clock received an out-of-order timestamp", "gap", gap)
			default:
				c.logger.Error("historical clock received a badly out-of-order timestamp", "gap", gap)
			}
		}
		return
	}
	c.timeExchangeLast = t
	c.wallAtLastUpdate = c.wallNow()
}
