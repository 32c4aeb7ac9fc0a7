// Package position implements the position lifecycle: open, add, reduce,
// close and flip, with fixed-precision realised/unrealised PnL and
// pro-rated fee accounting. All arithmetic uses shopspring/decimal; no
// floating point is used anywhere on this path.
package position

import (
	"time"

	"github.com/shopspring/decimal"

	"algoengine/internal/instrument"
)

// Side is the direction of a trade or a position. Buy increases (or opens
// long) exposure; Sell decreases (or opens short) exposure.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// sign returns +1 for Buy/long and -1 for Sell/short, used to fold side
// into signed PnL arithmetic without branching every formula.
func (s Side) sign() decimal.Decimal {
	if s == Buy {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// Trade is a single fill applied to a position.
type Trade struct {
	Side     Side
	Price    decimal.Decimal
	Quantity decimal.Decimal // always positive
	Fee      decimal.Decimal // always non-negative, in quote currency
	Time     time.Time
}

// Position is the open exposure for one instrument on one exchange.
type Position struct {
	Exchange     instrument.ExchangeIndex
	Instrument   instrument.InstrumentIndex
	Side         Side
	Quantity     decimal.Decimal // current absolute size; always positive, Side carries direction
	QuantityMax  decimal.Decimal // lifetime peak of Quantity, never decreases
	EntryPrice   decimal.Decimal // quantity-weighted average entry price
	FeesEnter    decimal.Decimal // cumulative fees paid opening and adding to this position, already booked against RealisedPnL
	FeesExit     decimal.Decimal // cumulative fees paid exiting this position's life
	RealisedPnL  decimal.Decimal // accumulated realised PnL over this position's life, fees-inclusive
	CurrentPrice decimal.Decimal
	TimeEnter    time.Time
	UpdateTime   time.Time
}

// UnrealisedPnL is the mark-to-market PnL of the currently open quantity at
// CurrentPrice, net of a pro-rata estimate of the fee that would be paid to
// exit it: (Quantity/QuantityMax)*FeesEnter, since FeesEnter was already
// paid but only the open portion's share of it remains unrealised.
func (p *Position) UnrealisedPnL() decimal.Decimal {
	if p.Quantity.IsZero() {
		return decimal.Zero
	}
	diff := p.CurrentPrice.Sub(p.EntryPrice)
	gross := diff.Mul(p.Quantity).Mul(p.Side.sign())
	var exitFeeEstimate decimal.Decimal
	if !p.QuantityMax.IsZero() {
		exitFeeEstimate = p.Quantity.Div(p.QuantityMax).Mul(p.FeesEnter)
	}
	return gross.Sub(exitFeeEstimate)
}

// MarkPrice updates the position's mark price, used to compute
// UnrealisedPnL between trades.
func (p *Position) MarkPrice(price decimal.Decimal, at time.Time) {
	p.CurrentPrice = price
	p.UpdateTime = at
}

// PositionExited is emitted whenever a trade fully closes a position
// (either an exact close or the closing half of a flip), carrying the
// realised PnL attributable to that closed exposure.
type PositionExited struct {
	Exchange    instrument.ExchangeIndex
	Instrument  instrument.InstrumentIndex
	Side        Side
	Quantity    decimal.Decimal
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	RealisedPnL decimal.Decimal
	FeesEnter   decimal.Decimal
	FeesExit    decimal.Decimal
	Time        time.Time
}

// PositionManager holds at most one open Position per instrument and
// applies trades to it via UpdateFromTrade. Exchange/instrument pairs with
// no open position are simply absent from the map; callers must not assume
// a zero-value Position for an untouched instrument.
type PositionManager struct {
	open map[instrument.InstrumentIndex]*Position
}

// NewPositionManager returns an empty manager.
func NewPositionManager() *PositionManager {
	return &PositionManager{open: make(map[instrument.InstrumentIndex]*Position)}
}

// Position returns the currently open position for idx, if any.
func (m *PositionManager) Position(idx instrument.InstrumentIndex) (*Position, bool) {
	p, ok := m.open[idx]
	return p, ok
}

// Positions returns every currently open position.
func (m *PositionManager) Positions() []*Position {
	out := make([]*Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, p)
	}
	return out
}

// UpdateFromTrade applies trade to the position for (exchange, idx),
// opening, adding to, reducing, closing or flipping it as required, and
// returns a PositionExited event if the trade fully closed the prior
// exposure (an exact close or the closing half of a flip).
func (m *PositionManager) UpdateFromTrade(exchange instrument.ExchangeIndex, idx instrument.InstrumentIndex, trade Trade) *PositionExited {
	existing, ok := m.open[idx]
	if !ok || existing.Quantity.IsZero() {
		m.open[idx] = openPosition(exchange, idx, trade)
		return nil
	}

	if trade.Side == existing.Side {
		addToPosition(existing, trade)
		return nil
	}

	switch trade.Quantity.Cmp(existing.Quantity) {
	case -1:
		reducePosition(existing, trade)
		return nil
	case 0:
		exited := closePosition(existing, trade, trade.Fee)
		delete(m.open, idx)
		return exited
	default:
		// Flip: the trade's fee is split pro-rata between the leg that
		// closes the existing position and the leg that opens the new one
		// in the opposite direction, by quantity share.
		closingQty := existing.Quantity
		openingQty := trade.Quantity.Sub(existing.Quantity)
		closeFee := trade.Fee.Mul(closingQty.Div(trade.Quantity))
		openFee := trade.Fee.Sub(closeFee)

		exited := closePosition(existing, trade, closeFee)
		m.open[idx] = openPosition(exchange, idx, Trade{
			Side:     trade.Side,
			Price:    trade.Price,
			Quantity: openingQty,
			Fee:      openFee,
			Time:     trade.Time,
		})
		return exited
	}
}

// openPosition starts a new Position from trade. The entry fee is realised
// immediately as a loss against pnl_realised, not deferred to the eventual
// exit.
func openPosition(exchange instrument.ExchangeIndex, idx instrument.InstrumentIndex, trade Trade) *Position {
	return &Position{
		Exchange:     exchange,
		Instrument:   idx,
		Side:         trade.Side,
		Quantity:     trade.Quantity,
		QuantityMax:  trade.Quantity,
		EntryPrice:   trade.Price,
		FeesEnter:    trade.Fee,
		RealisedPnL:  trade.Fee.Neg(),
		CurrentPrice: trade.Price,
		TimeEnter:    trade.Time,
		UpdateTime:   trade.Time,
	}
}

// addToPosition increases an existing position with a same-side trade,
// re-weighting EntryPrice by quantity and realising the new fee immediately.
func addToPosition(p *Position, trade Trade) {
	totalQty := p.Quantity.Add(trade.Quantity)
	weightedEntry := p.EntryPrice.Mul(p.Quantity).Add(trade.Price.Mul(trade.Quantity)).Div(totalQty)

	p.EntryPrice = weightedEntry
	p.Quantity = totalQty
	if p.Quantity.GreaterThan(p.QuantityMax) {
		p.QuantityMax = p.Quantity
	}
	p.FeesEnter = p.FeesEnter.Add(trade.Fee)
	p.RealisedPnL = p.RealisedPnL.Sub(trade.Fee)
	p.CurrentPrice = trade.Price
	p.UpdateTime = trade.Time
}

// reducePosition partially closes p with an opposite-side trade whose
// quantity is strictly less than p's open quantity. Only the exit trade's
// own fee is booked against the closed slice: the entry fee for that slice
// was already realised when it was paid, at open or add time.
func reducePosition(p *Position, trade Trade) {
	closedQty := trade.Quantity
	realised := trade.Price.Sub(p.EntryPrice).Mul(closedQty).Mul(p.Side.sign())
	realised = realised.Sub(trade.Fee)

	p.RealisedPnL = p.RealisedPnL.Add(realised)
	p.Quantity = p.Quantity.Sub(closedQty)
	p.FeesExit = p.FeesExit.Add(trade.Fee)
	p.CurrentPrice = trade.Price
	p.UpdateTime = trade.Time
}

// closePosition fully closes p with an opposite-side trade, realising fee
// against the closed quantity (all of it, for an exact close; a pro-rata
// share of the flip trade's fee, for the closing leg of a flip) and
// returning the lifetime-accumulated PositionExited. The caller removes p
// from the manager (exact close) or replaces it with the flipped remainder.
func closePosition(p *Position, trade Trade, exitFee decimal.Decimal) *PositionExited {
	closedQty := p.Quantity
	realised := trade.Price.Sub(p.EntryPrice).Mul(closedQty).Mul(p.Side.sign())
	realised = realised.Sub(exitFee)

	p.RealisedPnL = p.RealisedPnL.Add(realised)
	p.FeesExit = p.FeesExit.Add(exitFee)

	return &PositionExited{
		Exchange:    p.Exchange,
		Instrument:  p.Instrument,
		Side:        p.Side,
		Quantity:    closedQty,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   trade.Price,
		RealisedPnL: p.RealisedPnL,
		FeesEnter:   p.FeesEnter,
		FeesExit:    p.FeesExit,
		Time:        trade.Time,
	}
}
