// Package risk provides the RiskManager interface the Engine consults
// before allowing new risk-increasing orders, plus a circuit breaker that
// trips trading off after a streak of losses or a drawdown breach.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// CircuitState is whether the breaker is currently allowing trading.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
)

// CircuitConfig bounds the breaker: any zero-valued threshold is treated as
// disabled.
type CircuitConfig struct {
	MaxConsecutiveLosses int
	MaxDrawdownAmount    decimal.Decimal
	CooldownPeriod       time.Duration
}

// CircuitBreaker tracks realised PnL across trades and trips Open once a
// configured threshold is breached, auto-resetting after CooldownPeriod
// elapses.
type CircuitBreaker struct {
	mu                sync.RWMutex
	state             CircuitState
	config            CircuitConfig
	consecutiveLosses int
	totalPnL          decimal.Decimal
	lastTripped       time.Time
}

// NewCircuitBreaker returns a closed breaker under the given config.
func NewCircuitBreaker(config CircuitConfig) *CircuitBreaker {
	return &CircuitBreaker{state: CircuitClosed, config: config}
}

// RecordTrade folds a realised PnL observation into the breaker's running
// totals and re-checks thresholds.
func (cb *CircuitBreaker) RecordTrade(pnl decimal.Decimal) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if pnl.IsNegative() {
		cb.consecutiveLosses++
	} else {
		cb.consecutiveLosses = 0
	}
	cb.totalPnL = cb.totalPnL.Add(pnl)
	cb.checkThresholds()
}

func (cb *CircuitBreaker) checkThresholds() {
	if cb.state == CircuitOpen {
		return
	}
	if cb.config.MaxConsecutiveLosses > 0 && cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses {
		cb.trip()
		return
	}
	if !cb.config.MaxDrawdownAmount.IsZero() && cb.totalPnL.LessThan(cb.config.MaxDrawdownAmount.Neg()) {
		cb.trip()
		return
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = CircuitOpen
	cb.lastTripped = time.Now()
}

// IsTripped reports whether the breaker currently blocks new risk,
// auto-resetting if CooldownPeriod has elapsed since it tripped.
func (cb *CircuitBreaker) IsTripped() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.config.CooldownPeriod > 0 && time.Since(cb.lastTripped) > cb.config.CooldownPeriod {
			cb.state = CircuitClosed
			cb.consecutiveLosses = 0
			cb.totalPnL = decimal.Zero
			return false
		}
		return true
	}
	return false
}

// Reset forces the breaker back to closed, clearing its running totals.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.consecutiveLosses = 0
	cb.totalPnL = decimal.Zero
}

// Open manually trips the breaker, e.g. from an operator Command.
func (cb *CircuitBreaker) Open(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trip()
}

// Status is a snapshot of the breaker's state, safe to expose over metrics
// or a status query.
type Status struct {
	IsOpen            bool
	ConsecutiveLosses int
	TotalPnL          decimal.Decimal
	OpenedAt          time.Time
}

// GetStatus returns a point-in-time snapshot of the breaker.
func (cb *CircuitBreaker) GetStatus() Status {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return Status{
		IsOpen:            cb.state == CircuitOpen,
		ConsecutiveLosses: cb.consecutiveLosses,
		TotalPnL:          cb.totalPnL,
		OpenedAt:          cb.lastTripped,
	}
}
