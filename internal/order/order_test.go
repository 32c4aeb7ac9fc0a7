package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"algoengine/internal/instrument"
	"algoengine/internal/position"
)

func key() Key {
	return Key{
		Exchange:      instrument.ExchangeIndex(0),
		Instrument:    instrument.InstrumentIndex(0),
		ClientOrderId: "abc123",
	}
}

func TestFirstUpdateAlwaysApplies(t *testing.T) {
	m := NewManager()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	applied := m.Update(Order{Key: key(), Status: StatusOpen, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), Time: t0})
	if !applied {
		t.Fatal("first update for a key must always apply")
	}
}

func TestMoreRecentTimeWins(t *testing.T) {
	m := NewManager()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Update(Order{Key: key(), Status: StatusOpen, Time: t0})

	older := Order{Key: key(), Status: StatusFilled, Time: t0.Add(-time.Second)}
	if m.Update(older) {
		t.Fatal("an older update must not replace newer state")
	}

	newer := Order{Key: key(), Status: StatusFilled, Time: t0.Add(time.Second)}
	if !m.Update(newer) {
		t.Fatal("a newer update must replace older state")
	}
	got, _ := m.Order(key())
	if got.Status != StatusFilled {
		t.Fatalf("expected filled, got %s", got.Status)
	}
}

func TestInactiveBeatsActiveAtEqualTime(t *testing.T) {
	m := NewManager()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.Update(Order{Key: key(), Status: StatusOpen, Time: t0})

	cancelResponse := Order{Key: key(), Status: StatusCancelled, Time: t0}
	if !m.Update(cancelResponse) {
		t.Fatal("a terminal state at equal time must beat an active snapshot")
	}

	// Once inactive is applied, a same-time active snapshot must not regress it.
	staleSnapshot := Order{Key: key(), Status: StatusOpen, Time: t0}
	if m.Update(staleSnapshot) {
		t.Fatal("an active snapshot must never overwrite an inactive state at equal time")
	}
	got, _ := m.Order(key())
	if got.Status != StatusCancelled {
		t.Fatalf("expected order to remain cancelled, got %s", got.Status)
	}
}

func TestActiveFiltersOnlyOpenOrders(t *testing.T) {
	m := NewManager()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	k1 := key()
	k2 := key()
	k2.ClientOrderId = "other"

	m.Update(Order{Key: k1, Status: StatusOpen, Time: t0, Side: position.Buy})
	m.Update(Order{Key: k2, Status: StatusFilled, Time: t0, Side: position.Sell})

	active := m.Active()
	if len(active) != 1 || active[0].Key != k1 {
		t.Fatalf("expected exactly one active order (k1), got %+v", active)
	}
}
