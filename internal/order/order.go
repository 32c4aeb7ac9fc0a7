// Package order tracks in-flight and recently-finished orders per
// instrument, reconciling snapshots and response events via a precedence
// lattice so replays and duplicate deliveries never regress known state.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"algoengine/internal/instrument"
	"algoengine/internal/position"
)

// Status is an order's lifecycle state. Active states represent an order
// still resting (or in flight) on the exchange; Inactive states are
// terminal.
type Status int

const (
	StatusOpen Status = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
	StatusExpired
	// StatusError is a terminal state reached without exchange confirmation,
	// such as a synthesized timeout response. Err carries the reason.
	StatusError
)

// IsActive reports whether status represents an order still live on the
// exchange.
func (s Status) IsActive() bool {
	return s == StatusOpen || s == StatusPartiallyFilled
}

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	case StatusRejected:
		return "rejected"
	case StatusExpired:
		return "expired"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ClientOrderId is the id the engine assigns an order before submission, so
// responses and snapshots can be reconciled back to the order that
// produced them even across a reconnect.
type ClientOrderId string

// Key identifies an order uniquely across exchange, instrument and client
// id.
type Key struct {
	Exchange     instrument.ExchangeIndex
	Instrument   instrument.InstrumentIndex
	ClientOrderId ClientOrderId
}

// Order is the engine's view of one order, as last reconciled from an
// exchange snapshot or response.
type Order struct {
	Key              Key
	Side             position.Side
	Price            decimal.Decimal
	Quantity         decimal.Decimal
	QuantityFilled   decimal.Decimal
	Status           Status
	Time             time.Time // exchange-reported time of this state

	// Err is set when Status == StatusError, carrying the reason the order
	// never reached a normal terminal state (e.g. apperrors.ErrConnectivityTimeout).
	Err error
}

// precedes reports whether candidate should replace current under the
// precedence lattice: a strictly more recent Time always wins; at equal
// Time, Inactive beats Active, since a terminal confirmation (fill,
// cancel, reject) is authoritative over a snapshot that still shows the
// order resting.
func precedes(current, candidate Order) bool {
	if candidate.Time.After(current.Time) {
		return true
	}
	if candidate.Time.Before(current.Time) {
		return false
	}
	if current.Status.IsActive() && !candidate.Status.IsActive() {
		return true
	}
	return false
}

// Manager holds the set of orders the engine currently knows about, applying
// the precedence lattice to every incoming update so idempotent replays and
// out-of-order delivery from StateReplicaManager or an ExecutionManager
// reconnect never clobber newer state with older.
type Manager struct {
	orders map[Key]Order
}

// NewManager returns an empty order manager.
func NewManager() *Manager {
	return &Manager{orders: make(map[Key]Order)}
}

// Order returns the currently known order for key, if any.
func (m *Manager) Order(key Key) (Order, bool) {
	o, ok := m.orders[key]
	return o, ok
}

// Active returns every order currently in an Active status.
func (m *Manager) Active() []Order {
	var out []Order
	for _, o := range m.orders {
		if o.Status.IsActive() {
			out = append(out, o)
		}
	}
	return out
}

// All returns every order the manager currently knows about, active or
// terminal, for callers that need the full picture (audit snapshots,
// reconciliation against an exchange's order list).
func (m *Manager) All() []Order {
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out
}

// Update applies an incoming order record under the precedence lattice,
// returning whether it replaced the prior known state for that key. A
// first-seen order is always applied.
func (m *Manager) Update(o Order) bool {
	current, ok := m.orders[o.Key]
	if !ok || precedes(current, o) {
		m.orders[o.Key] = o
		return true
	}
	return false
}

// Remove drops an order from the manager entirely, used once a terminal
// order has aged out of any reconciliation window the caller cares about.
func (m *Manager) Remove(key Key) {
	delete(m.orders, key)
}
