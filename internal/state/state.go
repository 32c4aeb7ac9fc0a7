// Package state holds EngineState, the single-writer root aggregate the
// Engine mutates on every event. All mutation happens on the engine's one
// goroutine; everything else only ever reads a snapshot.
package state

import (
	"github.com/shopspring/decimal"

	"algoengine/internal/asset"
	"algoengine/internal/connectivity"
	"algoengine/internal/event"
	"algoengine/internal/instrument"
	"algoengine/internal/order"
	"algoengine/internal/position"
)

// lastTrade is the most recent trade observed for an instrument.
type lastTrade struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// quote is one side of the best bid/ask for an instrument.
type quote struct {
	Price decimal.Decimal
}

// InstrumentState holds everything the engine knows about a single
// instrument's market data: its last trade and best bid/ask. Its open
// position lives in EngineState.Positions.
type InstrumentState struct {
	Instrument instrument.Instrument
	LastTrade  asset.Timed[lastTrade]
	BestBid    asset.Timed[quote]
	BestAsk    asset.Timed[quote]
}

// GlobalData is the read-only capability a Strategy or RiskManager is
// handed: aggregate views that don't belong to any single instrument.
type GlobalData interface {
	Connectivity() *connectivity.ConnectivityStates
	Positions() []*position.Position
	ActiveOrders() []order.Order
}

// InstrumentData is the read-only capability scoped to one instrument.
type InstrumentData interface {
	Instrument() instrument.Instrument
	Position() (*position.Position, bool)
	ActiveOrders() []order.Order
}

// EngineState is the single-writer aggregate: indexed instruments plus,
// per exchange, asset balances/connectivity, and per instrument, market
// data/positions/orders. Every mutation is expected to originate from the
// Engine's one event-processing goroutine.
type EngineState struct {
	Indexed      *instrument.IndexedInstruments
	Connectivity *connectivity.ConnectivityStates
	Assets       map[instrument.AssetIndex]*asset.AssetState
	Positions    *position.PositionManager
	Orders       *order.Manager
	Instruments  map[instrument.InstrumentIndex]*InstrumentState

	TradingEnabled bool
}

// New builds an EngineState for a fixed set of indexed instruments,
// pre-allocating one AssetState per asset and one InstrumentState per
// instrument so the hot path never needs to grow these maps.
func New(indexed *instrument.IndexedInstruments) *EngineState {
	exchanges := make([]int, indexed.NumExchanges())
	for i := range exchanges {
		exchanges[i] = i
	}
	s := &EngineState{
		Indexed:        indexed,
		Connectivity:   connectivity.NewConnectivityStatesFor(exchanges),
		Assets:         make(map[instrument.AssetIndex]*asset.AssetState, indexed.NumAssets()),
		Positions:      position.NewPositionManager(),
		Orders:         order.NewManager(),
		Instruments:    make(map[instrument.InstrumentIndex]*InstrumentState, indexed.NumInstruments()),
		// Starts Disabled: an operator must explicitly enable trading via
		// CommandEnableTrading before the strategy's proposed orders are
		// ever submitted. Closing/cancelling commands are themselves risk
		// actions and bypass this gate.
		TradingEnabled: false,
	}
	for exIdx := 0; exIdx < indexed.NumExchanges(); exIdx++ {
		exchange := instrument.ExchangeIndex(exIdx)
		for _, inst := range indexed.Instruments() {
			if id, _ := indexed.ExchangeIndexOf(inst.Exchange); id != exchange {
				continue
			}
			idx, _ := indexed.InstrumentIndexOf(exchange, inst.NameInternal)
			s.Instruments[idx] = &InstrumentState{Instrument: inst}
		}
		for _, aIdx := range indexed.AssetIndices(exchange) {
			s.Assets[aIdx] = asset.NewAssetState()
		}
	}
	return s
}

// UpdateFromMarket applies a MarketEvent to the relevant InstrumentState.
// Receiving any market item is itself evidence the market-data stream for
// that exchange is healthy, so connectivity is marked Healthy unconditionally
// before the event is dispatched on its Kind; MarketReconnecting is the one
// exception, which marks it Unhealthy instead.
// Unknown instruments are ignored beyond that: market data for an instrument
// the engine was never configured with cannot be applied anywhere.
func (s *EngineState) UpdateFromMarket(ev event.MarketEvent) {
	if ev.Kind == event.MarketReconnecting {
		s.Connectivity.UpdateMarket(int(ev.Exchange), connectivity.Unhealthy)
		return
	}
	s.Connectivity.UpdateMarket(int(ev.Exchange), connectivity.Healthy)

	is, ok := s.Instruments[ev.Instrument]
	if !ok {
		return
	}
	switch ev.Kind {
	case event.MarketTrade:
		is.LastTrade.Apply(asset.NewTimed(lastTrade{Price: ev.TradePrice, Quantity: ev.TradeQuantity}, ev.Time))
		if p, ok := s.Positions.Position(ev.Instrument); ok {
			p.MarkPrice(ev.TradePrice, ev.Time)
		}
	case event.MarketOrderBookL1:
		is.BestBid.Apply(asset.NewTimed(quote{Price: ev.BestBid}, ev.Time))
		is.BestAsk.Apply(asset.NewTimed(quote{Price: ev.BestAsk}, ev.Time))
	}
}

// UpdateFromAccount applies an AccountEvent, routing it to balances,
// orders, positions or connectivity depending on its Kind. Any account item
// other than an explicit connectivity update is itself evidence the account
// stream for that exchange is healthy, so it marks the account side Healthy
// unconditionally before dispatching. Returns a PositionExited if the
// update fully closed a position.
func (s *EngineState) UpdateFromAccount(ev event.AccountEvent) *position.PositionExited {
	if ev.Kind != event.AccountConnectivity {
		s.Connectivity.UpdateAccount(int(ev.Exchange), connectivity.Healthy)
	}
	switch ev.Kind {
	case event.AccountBalanceSnapshot:
		if ev.Balance == nil {
			return nil
		}
		if st, ok := s.Assets[ev.Balance.Asset]; ok {
			st.UpdateFromAccount(asset.Balance{Total: ev.Balance.Total, Available: ev.Balance.Avail}, ev.Time)
		}
	case event.AccountOrderSnapshot, event.AccountOrderResponse:
		if ev.Order != nil {
			s.Orders.Update(*ev.Order)
		}
	case event.AccountTrade:
		if ev.Trade != nil && ev.Order != nil {
			return s.Positions.UpdateFromTrade(ev.Exchange, ev.Order.Key.Instrument, *ev.Trade)
		}
	case event.AccountConnectivity:
		if ev.Market != nil {
			s.Connectivity.UpdateMarket(int(ev.Exchange), *ev.Market)
		}
		if ev.Account != nil {
			s.Connectivity.UpdateAccount(int(ev.Exchange), *ev.Account)
		}
	}
	return nil
}
