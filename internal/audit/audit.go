// Package audit implements the engine's audit protocol: every processed
// event is paired with a monotonically increasing sequence number and
// broadcast to replica consumers, which detect any gap in the sequence as
// a hard error rather than silently skipping ahead.
package audit

import (
	"fmt"
	"sync"
	"time"

	"algoengine/internal/event"
	"algoengine/internal/instrument"
	"algoengine/internal/logging"
	"algoengine/internal/position"
	"algoengine/internal/state"
	"algoengine/pkg/concurrency"
)

// Context carries the sequencing metadata every AuditTick is stamped with.
type Context struct {
	Sequence uint64
	Time     time.Time
}

// RiskRefusal is an audit output produced whenever the RiskManager declines
// a strategy- or operator-proposed order, carrying the reason so a
// subscriber can see why an expected order never reached an exchange.
type RiskRefusal struct {
	Exchange   instrument.ExchangeIndex
	Instrument instrument.InstrumentIndex
	Side       position.Side
	Reason     string
}

// AuditTick pairs one processed event with the audit context it was
// assigned plus whatever side outputs that processing produced (a closed
// position, a risk refusal) and any error, the unit of work broadcast to
// every StateReplicaManager. Per spec, each tick carries the processed
// event, the optional outputs, any errors and the (sequence, time)
// context; Outputs holds *position.PositionExited and RiskRefusal values.
type AuditTick struct {
	Event   event.Event
	Outputs []any
	Err     error
	Context Context
}

// Auditor assigns the next sequence number to each event the engine
// processes. It is only ever called from the engine's single event-loop
// goroutine, so no locking is required for the counter itself.
type Auditor struct {
	next uint64
}

// NewAuditor returns an Auditor starting at sequence 0.
func NewAuditor() *Auditor {
	return &Auditor{}
}

// Tick stamps ev (plus its outputs and any processing error) with the next
// sequence number and the given time.
func (a *Auditor) Tick(ev event.Event, outputs []any, err error, at time.Time) AuditTick {
	seq := a.next
	a.next++
	return AuditTick{Event: ev, Outputs: outputs, Err: err, Context: Context{Sequence: seq, Time: at}}
}

// EngineAudit is the audited wrapper around the engine's event stream: it
// stamps every event with an AuditTick and fans it out to every registered
// subscriber via a bounded worker pool, so one slow subscriber cannot stall
// the engine's own processing.
type EngineAudit struct {
	auditor *Auditor
	pool    *concurrency.WorkerPool
	logger  logging.Logger

	mu          sync.RWMutex
	subscribers []chan<- AuditTick
}

// NewEngineAudit builds an EngineAudit with a worker pool sized maxWorkers,
// each broadcast submitted to the pool rather than run inline so the
// caller's event-loop goroutine is never blocked by a subscriber.
func NewEngineAudit(maxWorkers, maxCapacity int, logger logging.Logger) *EngineAudit {
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "audit_broadcast",
		MaxWorkers:  maxWorkers,
		MaxCapacity: maxCapacity,
	}, logger)
	return &EngineAudit{
		auditor: NewAuditor(),
		pool:    pool,
		logger:  logger,
	}
}

// Subscribe registers ch to receive every future AuditTick. Subscription is
// only safe before traffic starts in earnest; StateReplicaManager.Attach is
// the typical caller.
func (a *EngineAudit) Subscribe(ch chan<- AuditTick) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribers = append(a.subscribers, ch)
}

// Publish stamps ev (with its outputs and any processing error) and
// broadcasts it to every subscriber, each delivery submitted independently
// to the worker pool.
func (a *EngineAudit) Publish(ev event.Event, outputs []any, err error, at time.Time) AuditTick {
	tick := a.auditor.Tick(ev, outputs, err, at)

	a.mu.RLock()
	subs := make([]chan<- AuditTick, len(a.subscribers))
	copy(subs, a.subscribers)
	a.mu.RUnlock()

	for _, ch := range subs {
		ch := ch
		if err := a.pool.Submit(func() { ch <- tick }); err != nil && a.logger != nil {
			a.logger.Warn("dropped audit tick broadcast", "sequence", tick.Context.Sequence, "error", err)
		}
	}
	return tick
}

// Stop drains the worker pool, waiting for in-flight broadcasts to finish.
func (a *EngineAudit) Stop() {
	a.pool.Stop()
}

// StateReplicaManager is an at-least-once consumer of the audit stream that
// maintains a byte-identical replica of EngineState for independent
// subscribers (UIs, logging, monitoring) without ever touching the
// Engine's own copy. A tick whose sequence is <= the last one applied is a
// duplicate delivery and is silently skipped; a tick whose sequence jumps
// ahead of lastSeq+1 is a gap and a hard error, since it means a tick was
// dropped somewhere between the engine and this consumer. Strictly linear
// replay, ticks are never reordered or buffered.
type StateReplicaManager struct {
	replica   *state.EngineState
	lastSeq   uint64
	haveFirst bool
	done      bool
	onGap     func(expected, got uint64)
}

// NewStateReplicaManager returns a replica manager seeded from snapshot, the
// initial state every audit consumer receives before the first live tick.
// onGap is invoked (and may be nil) whenever a gap is detected; the
// offending tick is still recorded as the new high-water mark so the
// replica doesn't wedge on one bad delivery.
func NewStateReplicaManager(snapshot *state.EngineState, onGap func(expected, got uint64)) *StateReplicaManager {
	return &StateReplicaManager{replica: snapshot, onGap: onGap}
}

// Replica returns the manager's current state. It is read-only to callers:
// all mutation happens inside Apply, mirroring the Engine's own
// single-writer discipline over its copy of EngineState.
func (r *StateReplicaManager) Replica() *state.EngineState {
	return r.replica
}

// Done reports whether a terminal event has been applied; once true, Apply
// is a no-op for any further tick.
func (r *StateReplicaManager) Done() bool {
	return r.done
}

// Apply advances the replica by one AuditTick, applying ev to the same
// submodels the Engine itself mutates (UpdateFromMarket/UpdateFromAccount),
// so the replica stays byte-identical to the Engine's authoritative copy
// as long as no tick is ever skipped unnoticed.
func (r *StateReplicaManager) Apply(tick AuditTick) error {
	if r.done {
		return nil
	}
	seq := tick.Context.Sequence
	if r.haveFirst && seq <= r.lastSeq {
		// At-least-once redelivery of an already-applied tick; dropped
		// silently, not an error.
		return nil
	}
	expected := r.lastSeq + 1
	if r.haveFirst && seq != expected {
		if r.onGap != nil {
			r.onGap(expected, seq)
		}
		r.lastSeq = seq
		return fmt.Errorf("audit sequence gap: expected %d, got %d", expected, seq)
	}
	r.lastSeq = seq
	r.haveFirst = true

	r.applyEvent(tick.Event)
	if tick.Event.IsTerminal() {
		r.done = true
	}
	return nil
}

// applyEvent dispatches ev to the replica's EngineState through the exact
// same update entry points the Engine uses, so the replica's view of
// positions, orders, balances and connectivity tracks the authoritative
// copy one event at a time.
func (r *StateReplicaManager) applyEvent(ev event.Event) {
	if r.replica == nil {
		return
	}
	switch ev.Kind {
	case event.KindMarket:
		if ev.Market != nil {
			r.replica.UpdateFromMarket(*ev.Market)
		}
	case event.KindAccount:
		if ev.Account != nil {
			r.replica.UpdateFromAccount(*ev.Account)
		}
	case event.KindCommand:
		if ev.Command != nil {
			switch ev.Command.Kind {
			case event.CommandDisableTrading:
				r.replica.TradingEnabled = false
			case event.CommandEnableTrading:
				r.replica.TradingEnabled = true
			}
		}
	}
}
