// Package event defines the tagged-union events that flow into the Engine
// from market data and account streams, and the Commands an operator or
// Strategy can issue back out.
package event

import (
	"time"

	"github.com/shopspring/decimal"

	"algoengine/internal/connectivity"
	"algoengine/internal/instrument"
	"algoengine/internal/order"
	"algoengine/internal/position"
)

// MarketEventKind tags the payload carried by a MarketEvent.
type MarketEventKind int

const (
	MarketTrade MarketEventKind = iota
	MarketOrderBookL1
	MarketOrderBookL2
	// MarketReconnecting carries no price data; it signals that the
	// market-data stream for Exchange has dropped and is reconnecting.
	MarketReconnecting
)

// MarketEvent is a single piece of market data for one instrument.
type MarketEvent struct {
	Exchange   instrument.ExchangeIndex
	Instrument instrument.InstrumentIndex
	Kind       MarketEventKind
	Time       time.Time

	// TradePrice/TradeQuantity are populated for Kind == MarketTrade.
	TradePrice    decimal.Decimal
	TradeQuantity decimal.Decimal

	// BestBid/BestAsk are populated for Kind == MarketOrderBookL1.
	BestBid decimal.Decimal
	BestAsk decimal.Decimal
}

// AccountEventKind tags the payload carried by an AccountEvent.
type AccountEventKind int

const (
	AccountOrderSnapshot AccountEventKind = iota
	AccountOrderResponse
	AccountTrade
	AccountBalanceSnapshot
	AccountConnectivity
)

// AccountEvent is a single account-stream update for one exchange.
type AccountEvent struct {
	Exchange instrument.ExchangeIndex
	Kind     AccountEventKind
	Time     time.Time

	Order   *order.Order
	Trade   *position.Trade
	Balance *AssetBalanceUpdate
	Market  *connectivity.Health
	Account *connectivity.Health
}

// AssetBalanceUpdate carries a balance snapshot for one asset on one
// exchange.
type AssetBalanceUpdate struct {
	Asset instrument.AssetIndex
	Total decimal.Decimal
	Avail decimal.Decimal
}

// Kind tags which union member an Event carries.
type Kind int

const (
	KindMarket Kind = iota
	KindAccount
	KindCommand
	// KindShutdown is the terminal event: the engine processes it (stamping
	// a final AuditTick) and then returns from Run without consuming
	// anything further.
	KindShutdown
)

// Event is the tagged union the Engine's single event loop consumes: every
// market update, account update, operator Command and the terminal Shutdown
// arrive through this one type so the engine never needs more than one
// receive path per iteration.
type Event struct {
	Kind    Kind
	Market  *MarketEvent
	Account *AccountEvent
	Command *Command
}

// IsTerminal reports whether processing this event ends the engine's event
// loop.
func (e Event) IsTerminal() bool {
	return e.Kind == KindShutdown
}

// InstrumentFilter scopes a Command (or a query) to a subset of
// exchanges/instruments/underlyings. A zero-value filter matches
// everything; any non-empty field narrows the match to exactly that set.
type InstrumentFilter struct {
	Exchanges   []instrument.ExchangeIndex
	Instruments []instrument.InstrumentIndex
	Underlyings []instrument.Underlying
}

// Matches reports whether the instrument idx (described by inst, on
// exchange) passes the filter.
func (f InstrumentFilter) Matches(exchange instrument.ExchangeIndex, idx instrument.InstrumentIndex, inst instrument.Instrument) bool {
	if len(f.Exchanges) > 0 && !containsExchange(f.Exchanges, exchange) {
		return false
	}
	if len(f.Instruments) == 0 && len(f.Underlyings) == 0 {
		return true
	}
	if containsInstrument(f.Instruments, idx) {
		return true
	}
	for _, u := range f.Underlyings {
		if inst.Underlying == u {
			return true
		}
	}
	return false
}

func containsInstrument(xs []instrument.InstrumentIndex, x instrument.InstrumentIndex) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsExchange(xs []instrument.ExchangeIndex, x instrument.ExchangeIndex) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// CommandKind tags the operation a Command requests of the Engine.
type CommandKind int

const (
	// CommandSendCancelRequests cancels one or more specific orders by key.
	// Like CommandCancelOrders, this bypasses the RiskManager: cancelling
	// is itself a risk-reducing action.
	CommandSendCancelRequests CommandKind = iota
	// CommandSendOpenRequests submits one or more operator-specified open
	// requests. Like an algo order from Strategy, these are approved
	// through the RiskManager just the same, since submitting new exposure
	// is never itself risk-reducing.
	CommandSendOpenRequests
	CommandClosePositions
	CommandCancelOrders
	CommandDisableTrading
	CommandEnableTrading
)

// OpenRequest is one order an operator wants placed, as carried by a
// CommandSendOpenRequests Command. The engine uses Exchange as given when it
// has an ExecutionManager for it; otherwise it resolves the exchange from
// Instrument.
type OpenRequest struct {
	Exchange   instrument.ExchangeIndex
	Instrument instrument.InstrumentIndex
	Side       position.Side
	Price      decimal.Decimal
	Quantity   decimal.Decimal
}

// CancelRequest identifies one order an operator wants cancelled, as
// carried by a CommandSendCancelRequests Command.
type CancelRequest struct {
	Key order.Key
}

// Command is an operator-issued instruction the Engine executes on its
// single event loop, guaranteeing it is never interleaved with concurrent
// state mutation.
type Command struct {
	Kind    CommandKind
	Filter  InstrumentFilter
	Opens   []OpenRequest   // populated for CommandSendOpenRequests
	Cancels []CancelRequest // populated for CommandSendCancelRequests
	Result  chan<- error    // optional; sent to (non-blocking, never closed) once the command completes
}
