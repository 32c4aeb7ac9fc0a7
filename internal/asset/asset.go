// Package asset tracks per-exchange balances as they evolve from account
// snapshots and trades, guarding against out-of-order application via
// exchange-reported timestamps.
package asset

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timed wraps a value with the exchange timestamp it was valid as-of. It is
// the generic building block EngineState uses anywhere a snapshot needs
// monotonic-apply semantics (balances here, positions and orders elsewhere).
type Timed[T any] struct {
	Value T
	Time  time.Time
}

// NewTimed constructs a Timed value.
func NewTimed[T any](value T, at time.Time) Timed[T] {
	return Timed[T]{Value: value, Time: at}
}

// Apply replaces the wrapped value with next if next is not older than the
// current one. Ties are applied: a repeated snapshot at the same exchange
// timestamp is not considered stale, only a strictly earlier one is
// rejected. Returns whether the update was applied.
func (t *Timed[T]) Apply(next Timed[T]) bool {
	if next.Time.Before(t.Time) {
		return false
	}
	*t = next
	return true
}

// Balance is the funds a single asset holds on a single exchange: total
// funds and the portion available for new orders (total minus anything
// reserved as margin or open-order collateral).
type Balance struct {
	Total     decimal.Decimal
	Available decimal.Decimal
}

// AssetState is the per-(exchange, asset) balance slot addressed by
// instrument.AssetIndex. It is never removed once indexed; an asset with no
// observed balance yet simply holds its zero value.
type AssetState struct {
	balance Timed[Balance]
}

// NewAssetState returns an AssetState with a zero balance dated at the zero
// time, so any real snapshot is applied on first sight.
func NewAssetState() *AssetState {
	return &AssetState{}
}

// Balance returns the most recently applied balance and the time it was
// valid as-of.
func (s *AssetState) Balance() (Balance, time.Time) {
	return s.balance.Value, s.balance.Time
}

// UpdateFromAccount applies a new balance snapshot, honouring the
// stale-snapshot-drop rule: a snapshot strictly older than the current one
// is ignored. Returns whether the snapshot was applied.
func (s *AssetState) UpdateFromAccount(balance Balance, at time.Time) bool {
	return s.balance.Apply(NewTimed(balance, at))
}
