// Package strategy defines the pluggable decision-making surface the
// Engine drives on every market/account event, plus the built-in
// strategies used for disconnect handling and an emergency flatten.
package strategy

import (
	"algoengine/internal/event"
	"algoengine/internal/execution"
	"algoengine/internal/instrument"
	"algoengine/internal/state"
)

// AlgoStrategy is the primary decision surface: given the current engine
// state and the event that just arrived, it returns the orders it wants
// placed. Implementations must not mutate state directly; all mutation
// happens through the orders and commands the Engine executes on their
// behalf.
type AlgoStrategy interface {
	OnMarketEvent(s *state.EngineState, ev event.MarketEvent) []execution.OpenOrderRequest
	OnAccountEvent(s *state.EngineState, ev event.AccountEvent) []execution.OpenOrderRequest
}

// OnDisconnectStrategy decides what to do when an exchange's connectivity
// degrades. With none configured the engine does nothing beyond what
// ConnectivityStates already reflects; FlattenOnDisconnect is the
// conservative alternative.
type OnDisconnectStrategy interface {
	OnDisconnect(s *state.EngineState, exchange instrument.ExchangeIndex) []event.Command
}

// OnTradingDisabled is consulted whenever TradingEnabled flips to false
// through a CommandDisableTrading, to decide what in-flight risk to unwind.
type OnTradingDisabled interface {
	OnTradingDisabled(s *state.EngineState) []event.Command
}

// ClosePositionsStrategy generates the cancel and open requests needed to
// flatten positions matching filter. The Engine consults it whenever a
// CommandClosePositions executes; like CommandCancelOrders, its output
// bypasses RiskManager entirely, since closing is itself a risk-reducing
// action. Implementations are free to prefer certain exchanges, hedge
// through a correlated instrument, or use resting limit orders instead of
// MarketOrderClose's single opposite-side order.
type ClosePositionsStrategy interface {
	ClosePositionsRequests(s *state.EngineState, filter event.InstrumentFilter) (cancels []event.CancelRequest, opens []event.OpenRequest)
}

// NoopStrategy implements AlgoStrategy by doing nothing; useful as a
// baseline and in tests that only exercise the engine's plumbing.
type NoopStrategy struct{}

func (NoopStrategy) OnMarketEvent(*state.EngineState, event.MarketEvent) []execution.OpenOrderRequest {
	return nil
}

func (NoopStrategy) OnAccountEvent(*state.EngineState, event.AccountEvent) []execution.OpenOrderRequest {
	return nil
}

// FlattenOnDisconnect is the conservative OnDisconnectStrategy /
// OnTradingDisabled implementation: it requests every open position on the
// affected scope be flattened via a CommandClosePositions, which the
// engine then executes through the configured ClosePositionsStrategy.
type FlattenOnDisconnect struct{}

// OnDisconnect requests every position on the disconnected exchange be
// closed.
func (FlattenOnDisconnect) OnDisconnect(s *state.EngineState, exchange instrument.ExchangeIndex) []event.Command {
	return []event.Command{{
		Kind:   event.CommandClosePositions,
		Filter: event.InstrumentFilter{Exchanges: []instrument.ExchangeIndex{exchange}},
	}}
}

// OnTradingDisabled requests every open position, system-wide, be closed.
func (FlattenOnDisconnect) OnTradingDisabled(s *state.EngineState) []event.Command {
	if len(s.Positions.Positions()) == 0 {
		return nil
	}
	return []event.Command{{Kind: event.CommandClosePositions}}
}

// MarketOrderClose is the demo-only default ClosePositionsStrategy: for
// every open position matching filter it builds one OpenRequest of the
// opposite side sized at the position's full quantity, priced at the
// position's CurrentPrice. OpenRequest carries no order type or
// time-in-force, so this is submitted as an ordinary priced order, not an
// IOC market order. It never cancels resting
// orders; a strategy that needs to clear working orders before flattening
// should implement ClosePositionsStrategy directly.
type MarketOrderClose struct{}

// ClosePositionsRequests implements ClosePositionsStrategy.
func (MarketOrderClose) ClosePositionsRequests(s *state.EngineState, filter event.InstrumentFilter) ([]event.CancelRequest, []event.OpenRequest) {
	var opens []event.OpenRequest
	for _, p := range s.Positions.Positions() {
		inst := s.Indexed.Instrument(p.Instrument)
		if !filter.Matches(p.Exchange, p.Instrument, inst) {
			continue
		}
		opens = append(opens, event.OpenRequest{
			Exchange:   p.Exchange,
			Instrument: p.Instrument,
			Side:       p.Side.Opposite(),
			Price:      p.CurrentPrice,
			Quantity:   p.Quantity,
		})
	}
	return nil, opens
}
