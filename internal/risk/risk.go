package risk

import (
	"github.com/shopspring/decimal"

	"algoengine/internal/connectivity"
	"algoengine/internal/instrument"
	"algoengine/internal/position"
)

// OrderRequest is the proposed order a Strategy wants to place, as
// presented to RiskManager for approval before it reaches an
// ExecutionManager.
type OrderRequest struct {
	Exchange   instrument.ExchangeIndex
	Instrument instrument.InstrumentIndex
	Side       position.Side
}

// Manager decides whether the engine may act on a proposed order. It is
// consulted on every strategy-generated order, never on reconciliation
// traffic (snapshots, cancel responses), which always applies
// unconditionally.
type Manager interface {
	// Approve reports whether req may proceed, given the current
	// connectivity and any open position for its instrument.
	Approve(req OrderRequest, conn connectivity.Health, existing *position.Position) (bool, string)
}

// TradeRecorder is an optional capability a Manager may implement so the
// Engine can feed it realised PnL as positions close, for managers (like
// DefaultManager with a CircuitBreaker) whose approval decision depends on
// trading history rather than just the current snapshot.
type TradeRecorder interface {
	RecordTrade(pnl decimal.Decimal)
}

// DefaultManager is the permissive RiskManager: it approves everything
// except orders routed through a connection reporting Unhealthy, and
// defers to an embedded CircuitBreaker if one is configured.
type DefaultManager struct {
	breaker *CircuitBreaker
}

// NewDefaultManager returns a DefaultManager. breaker may be nil, in which
// case only the connectivity check applies.
func NewDefaultManager(breaker *CircuitBreaker) *DefaultManager {
	return &DefaultManager{breaker: breaker}
}

// Approve implements Manager.
func (m *DefaultManager) Approve(req OrderRequest, conn connectivity.Health, existing *position.Position) (bool, string) {
	if conn == connectivity.Unhealthy {
		return false, "exchange connectivity unhealthy"
	}
	if m.breaker != nil && m.breaker.IsTripped() {
		return false, "circuit breaker tripped"
	}
	return true, ""
}

// RecordTrade implements TradeRecorder, forwarding realised PnL to the
// embedded CircuitBreaker if one is configured; a no-op otherwise.
func (m *DefaultManager) RecordTrade(pnl decimal.Decimal) {
	if m.breaker != nil {
		m.breaker.RecordTrade(pnl)
	}
}
