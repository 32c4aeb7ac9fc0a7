package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algoengine/internal/instrument"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var (
	exch = instrument.ExchangeIndex(0)
	inst = instrument.InstrumentIndex(0)
	t0   = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

func TestOpenPositionFromFlat(t *testing.T) {
	m := NewPositionManager()

	exited := m.UpdateFromTrade(exch, inst, Trade{
		Side: Buy, Price: dec("100"), Quantity: dec("2"), Fee: dec("0.2"), Time: t0,
	})
	require.Nil(t, exited)

	p, ok := m.Position(inst)
	require.True(t, ok)
	assert.Equal(t, Buy, p.Side)
	assert.True(t, p.Quantity.Equal(dec("2")))
	assert.True(t, p.EntryPrice.Equal(dec("100")))
	assert.True(t, p.FeesEnter.Equal(dec("0.2")))
}

func TestAddToPositionReweightsEntryPrice(t *testing.T) {
	m := NewPositionManager()
	m.UpdateFromTrade(exch, inst, Trade{Side: Buy, Price: dec("100"), Quantity: dec("1"), Fee: dec("0"), Time: t0})
	exited := m.UpdateFromTrade(exch, inst, Trade{Side: Buy, Price: dec("110"), Quantity: dec("1"), Fee: dec("0"), Time: t0.Add(time.Minute)})
	require.Nil(t, exited)

	p, _ := m.Position(inst)
	assert.True(t, p.Quantity.Equal(dec("2")))
	assert.True(t, p.EntryPrice.Equal(dec("105")), "expected weighted entry 105, got %s", p.EntryPrice)
}

// S1: partial reduce of a long leaves a smaller position open at the same
// entry price, booking realised PnL only for the closed slice.
func TestPartialReduceOfLongPosition(t *testing.T) {
	m := NewPositionManager()
	m.UpdateFromTrade(exch, inst, Trade{Side: Buy, Price: dec("100"), Quantity: dec("10"), Fee: dec("0"), Time: t0})

	exited := m.UpdateFromTrade(exch, inst, Trade{
		Side: Sell, Price: dec("110"), Quantity: dec("4"), Fee: dec("0"), Time: t0.Add(time.Minute),
	})
	require.Nil(t, exited, "a partial reduce does not fully exit the position")

	p, ok := m.Position(inst)
	require.True(t, ok)
	assert.True(t, p.Quantity.Equal(dec("6")), "expected 6 remaining, got %s", p.Quantity)
	assert.True(t, p.EntryPrice.Equal(dec("100")), "entry price unchanged by a reduce")
	// (110-100) * 4 = 40 realised on the closed slice.
	assert.True(t, p.RealisedPnL.Equal(dec("40")), "expected realised pnl 40, got %s", p.RealisedPnL)
}

func TestExactCloseRemovesPosition(t *testing.T) {
	m := NewPositionManager()
	m.UpdateFromTrade(exch, inst, Trade{Side: Buy, Price: dec("100"), Quantity: dec("5"), Fee: dec("1"), Time: t0})

	exited := m.UpdateFromTrade(exch, inst, Trade{
		Side: Sell, Price: dec("120"), Quantity: dec("5"), Fee: dec("1"), Time: t0.Add(time.Minute),
	})
	require.NotNil(t, exited)
	// (120-100)*5 - 1 (enter fee) - 1 (exit fee) = 98
	assert.True(t, exited.RealisedPnL.Equal(dec("98")), "expected realised pnl 98, got %s", exited.RealisedPnL)

	_, ok := m.Position(inst)
	assert.False(t, ok, "position should be fully closed")
}

// S2: a buy larger than an open short flips it into a long, closing the
// short at realised PnL and opening a fresh long with the remainder.
func TestShortFlipsIntoLong(t *testing.T) {
	m := NewPositionManager()
	m.UpdateFromTrade(exch, inst, Trade{Side: Sell, Price: dec("100"), Quantity: dec("5"), Fee: dec("0"), Time: t0})

	exited := m.UpdateFromTrade(exch, inst, Trade{
		Side: Buy, Price: dec("90"), Quantity: dec("8"), Fee: dec("0"), Time: t0.Add(time.Minute),
	})
	require.NotNil(t, exited, "flip must emit a PositionExited for the closed short")
	assert.Equal(t, Sell, exited.Side)
	assert.True(t, exited.Quantity.Equal(dec("5")))
	// short entry 100, exit 90: (100-90)*5 = 50 realised.
	assert.True(t, exited.RealisedPnL.Equal(dec("50")), "expected realised pnl 50, got %s", exited.RealisedPnL)

	p, ok := m.Position(inst)
	require.True(t, ok, "flip must leave a new long position open")
	assert.Equal(t, Buy, p.Side)
	assert.True(t, p.Quantity.Equal(dec("3")), "expected remaining long quantity 3, got %s", p.Quantity)
	assert.True(t, p.EntryPrice.Equal(dec("90")))
}

func TestUnrealisedPnLTracksMarkPrice(t *testing.T) {
	m := NewPositionManager()
	m.UpdateFromTrade(exch, inst, Trade{Side: Buy, Price: dec("100"), Quantity: dec("2"), Fee: dec("0"), Time: t0})

	p, _ := m.Position(inst)
	p.MarkPrice(dec("105"), t0.Add(time.Minute))
	assert.True(t, p.UnrealisedPnL().Equal(dec("10")), "expected unrealised pnl 10, got %s", p.UnrealisedPnL())
}
