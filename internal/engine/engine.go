// Package engine implements the single-writer event loop: every market
// event, account event and operator command is applied to EngineState on
// one goroutine, in arrival order, so no two updates ever race.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"algoengine/internal/audit"
	"algoengine/internal/clock"
	"algoengine/internal/connectivity"
	"algoengine/internal/event"
	"algoengine/internal/execution"
	"algoengine/internal/instrument"
	"algoengine/internal/logging"
	"algoengine/internal/order"
	"algoengine/internal/risk"
	"algoengine/internal/state"
	"algoengine/internal/strategy"
	apperrors "algoengine/pkg/errors"
	"algoengine/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// UnrecoverableError marks an error the engine cannot continue past: a
// downstream collaborator panicked, or state has been observed to violate
// an invariant the rest of the engine relies on. The event loop exits as
// soon as one of these is produced.
type UnrecoverableError struct {
	Reason string
	Cause  error
}

func (e *UnrecoverableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unrecoverable engine error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("unrecoverable engine error: %s", e.Reason)
}

func (e *UnrecoverableError) Unwrap() error { return e.Cause }

// Engine owns EngineState and the single goroutine that mutates it. Events
// arrive on an unbounded queue: the engine never drops an event silently,
// matching the hot-path guarantee the rest of the system depends on.
type Engine struct {
	state    *state.EngineState
	strategy strategy.AlgoStrategy
	onDisc   strategy.OnDisconnectStrategy
	onDis    strategy.OnTradingDisabled
	closer   strategy.ClosePositionsStrategy
	risk     risk.Manager
	execs    map[instrument.ExchangeIndex]*execution.ExecutionManager
	logger   logging.Logger
	clock    clock.Clock
	auditor  *audit.EngineAudit
	tracer   trace.Tracer

	events *unboundedQueue[event.Event]
}

// New builds an Engine over the given state, collaborators and per-exchange
// execution managers. clk and auditor may be nil, in which case the engine
// falls back to a LiveClock and skips audit stamping entirely (tests that
// don't care about the audit stream).
func New(
	s *state.EngineState,
	algo strategy.AlgoStrategy,
	onDisconnect strategy.OnDisconnectStrategy,
	onDisabled strategy.OnTradingDisabled,
	closer strategy.ClosePositionsStrategy,
	riskMgr risk.Manager,
	execs map[instrument.ExchangeIndex]*execution.ExecutionManager,
	logger logging.Logger,
	clk clock.Clock,
	auditor *audit.EngineAudit,
) *Engine {
	if clk == nil {
		clk = clock.LiveClock{}
	}
	if closer == nil {
		closer = strategy.MarketOrderClose{}
	}
	return &Engine{
		state:    s,
		strategy: algo,
		onDisc:   onDisconnect,
		closer:   closer,
		onDis:    onDisabled,
		risk:     riskMgr,
		execs:    execs,
		logger:   logger,
		clock:    clk,
		auditor:  auditor,
		tracer:   telemetry.GetTracer("engine"),
		events:   newUnboundedQueue[event.Event](),
	}
}

// Events returns the channel collaborators (market feeds, account streams,
// operator commands) publish onto. It is backed by unboundedQueue, so a
// publisher never blocks and never needs to drop an event for lack of
// room, matching spec.md's requirement that every Engine-facing channel be
// unbounded.
func (e *Engine) Events() chan<- event.Event {
	return e.events.In()
}

// Run drives the event loop until ctx is cancelled, a Shutdown event is
// processed, or an UnrecoverableError is produced. Every event processed,
// including the terminal one, is stamped with exactly one AuditTick:
// sequence strictly increases by one per event, with no gaps, so a
// StateReplicaManager downstream can verify it received everything the
// engine did.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.events.Out():
			if hc, ok := e.clock.(*clock.HistoricalClock); ok {
				if t, ok := eventTime(ev); ok {
					hc.Advance(t)
				}
			}
			now := e.clock.Now()

			start := time.Now()
			outputs, err := e.apply(ctx, ev)
			if m := telemetry.GetGlobalMetrics(); m.EventProcessingSec != nil {
				m.EventProcessingSec.Record(ctx, time.Since(start).Seconds())
			}
			if e.auditor != nil {
				tick := e.auditor.Publish(ev, outputs, err, now)
				telemetry.GetGlobalMetrics().SetAuditSequence(tick.Context.Sequence)
			}

			if ev.IsTerminal() {
				return err
			}
			if err != nil {
				var unrecoverable *UnrecoverableError
				if isUnrecoverable(err, &unrecoverable) {
					return unrecoverable
				}
				if e.logger != nil {
					e.logger.Error("event processing failed", "error", err)
				}
			}
		}
	}
}

// eventTime extracts the exchange-reported timestamp carried by ev, if any.
// Events with no inherent timestamp (commands, shutdown) report ok=false and
// never advance a HistoricalClock.
func eventTime(ev event.Event) (time.Time, bool) {
	switch ev.Kind {
	case event.KindMarket:
		if ev.Market != nil {
			return ev.Market.Time, true
		}
	case event.KindAccount:
		if ev.Account != nil {
			return ev.Account.Time, true
		}
	}
	return time.Time{}, false
}

func isUnrecoverable(err error, target **UnrecoverableError) bool {
	u, ok := err.(*UnrecoverableError)
	if ok {
		*target = u
	}
	return ok
}

// apply mutates state for ev and returns the side outputs that processing
// produced (a closed position, a risk refusal) alongside any error, per
// spec.md section 2's "each step emits an AuditTick carrying the processed
// event, the optional outputs, any errors, and a (sequence, time) context."
func (e *Engine) apply(ctx context.Context, ev event.Event) ([]any, error) {
	switch ev.Kind {
	case event.KindMarket:
		if ev.Market == nil {
			return nil, nil
		}
		e.state.UpdateFromMarket(*ev.Market)
		if ev.Market.Kind == event.MarketReconnecting {
			err := e.onDisconnect(ctx, ev.Market.Exchange)
			return nil, err
		}
		if e.strategy != nil && e.state.TradingEnabled {
			outputs := e.submit(ctx, ev.Market.Exchange, e.strategy.OnMarketEvent(e.state, *ev.Market))
			return outputs, nil
		}
	case event.KindAccount:
		if ev.Account == nil {
			return nil, nil
		}
		exited := e.state.UpdateFromAccount(*ev.Account)
		var outputs []any
		if exited != nil {
			outputs = append(outputs, exited)
			if tr, ok := e.risk.(risk.TradeRecorder); ok {
				tr.RecordTrade(exited.RealisedPnL)
			}
			if m := telemetry.GetGlobalMetrics(); m != nil {
				m.AddRealizedPnL(ctx, fmt.Sprintf("%d", exited.Instrument), exited.RealisedPnL.InexactFloat64())
			}
		}
		if ev.Account.Kind == event.AccountConnectivity {
			if health := e.state.Connectivity.State(int(ev.Account.Exchange)).Health(); health == connectivity.Unhealthy {
				err := e.onDisconnect(ctx, ev.Account.Exchange)
				return outputs, err
			}
			return outputs, nil
		}
		if e.strategy != nil && e.state.TradingEnabled {
			outputs = append(outputs, e.submit(ctx, ev.Account.Exchange, e.strategy.OnAccountEvent(e.state, *ev.Account))...)
		}
		return outputs, nil
	case event.KindCommand:
		if ev.Command == nil {
			return nil, nil
		}
		err := e.executeCommand(ctx, *ev.Command)
		return nil, err
	case event.KindShutdown:
		return nil, nil
	}
	return nil, nil
}

// onDisconnect runs the configured OnDisconnectStrategy's commands in
// response to exchange connectivity degrading to Reconnecting.
func (e *Engine) onDisconnect(ctx context.Context, exchange instrument.ExchangeIndex) error {
	if e.onDisc == nil {
		return nil
	}
	for _, cmd := range e.onDisc.OnDisconnect(e.state, exchange) {
		if err := e.executeCommand(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// submit hands a strategy's requested orders to the execution manager for
// exchange, approving each one through the risk manager first. Rejections
// are not escalated as errors (a risk rejection is an expected, recoverable
// outcome) but are returned as audit.RiskRefusal outputs so a subscriber
// can see why an expected order never reached an exchange. Approved
// requests are dispatched to the exchange asynchronously: see dispatchOpen.
func (e *Engine) submit(ctx context.Context, exchange instrument.ExchangeIndex, reqs []execution.OpenOrderRequest) []any {
	mgr, ok := e.execs[exchange]
	if !ok || len(reqs) == 0 {
		return nil
	}
	var outputs []any
	conn := e.state.Connectivity.State(int(exchange)).Health()
	for _, req := range reqs {
		existing, _ := e.state.Positions.Position(req.Instrument)
		if e.risk != nil {
			approved, reason := e.risk.Approve(risk.OrderRequest{Exchange: exchange, Instrument: req.Instrument, Side: req.Side}, conn, existing)
			if !approved {
				if e.logger != nil {
					e.logger.Warn("order rejected by risk manager", "reason", reason)
				}
				if m := telemetry.GetGlobalMetrics(); m != nil {
					m.AddRiskRejected(ctx, reason)
				}
				outputs = append(outputs, audit.RiskRefusal{Exchange: exchange, Instrument: req.Instrument, Side: req.Side, Reason: reason})
				continue
			}
		}
		e.dispatchOpen(ctx, mgr, exchange, req)
	}
	return outputs
}

// dispatchOpen runs req against mgr on its own goroutine and republishes
// the outcome onto the Engine's own event queue as an ordinary account
// event, exactly as a real account stream would deliver it (spec.md
// section 4.7: "Request sent, response OK: ... emit as OrderSnapshot
// event"; "Timeout: synthesize a failure OrderSnapshot"). ExecutionManager
// already returns a terminal order.Order on every path, success or error,
// so there is exactly one event to publish regardless of outcome.
//
// This keeps Engine.apply non-blocking: a request that takes the full
// per-exchange timeout to resolve only ever occupies its own goroutine,
// never the event loop, so market data, account updates and commands bound
// for every other exchange and instrument keep flowing while it is
// in flight — the concurrent-in-flight-request model spec.md section 5
// describes as sibling ExecutionManager tasks each tracking their own
// FuturesUnordered set of opens and cancels.
func (e *Engine) dispatchOpen(ctx context.Context, mgr *execution.ExecutionManager, exchange instrument.ExchangeIndex, req execution.OpenOrderRequest) {
	go func() {
		ctx, span := e.tracer.Start(ctx, "OpenOrder",
			trace.WithAttributes(
				attribute.Int64("exchange", int64(exchange)),
				attribute.Int64("instrument", int64(req.Instrument)),
				attribute.String("side", req.Side.String()),
			),
		)
		defer span.End()

		o, err := mgr.OpenOrder(ctx, req)
		if err != nil {
			span.RecordError(err)
			if e.logger != nil {
				if errors.Is(err, apperrors.ErrConnectivityTimeout) {
					e.logger.Warn("open order timed out", "exchange", exchange)
				} else {
					e.logger.Error("failed to submit order", "error", err, "exchange", exchange)
				}
			}
		}
		e.publishAccountEvent(exchange, o, event.AccountOrderSnapshot)
	}()
}

// dispatchCancel is dispatchOpen's counterpart for CancelOrder.
func (e *Engine) dispatchCancel(ctx context.Context, mgr *execution.ExecutionManager, exchange instrument.ExchangeIndex, req execution.CancelOrderRequest) {
	go func() {
		ctx, span := e.tracer.Start(ctx, "CancelOrder",
			trace.WithAttributes(
				attribute.Int64("exchange", int64(exchange)),
				attribute.String("order", string(req.Key.ClientOrderId)),
			),
		)
		defer span.End()

		o, err := mgr.CancelOrder(ctx, req)
		if err != nil {
			span.RecordError(err)
			if e.logger != nil {
				if errors.Is(err, apperrors.ErrConnectivityTimeout) {
					e.logger.Warn("cancel order timed out", "exchange", exchange, "order", req.Key.ClientOrderId)
				} else {
					e.logger.Error("failed to cancel order", "error", err, "exchange", exchange, "order", req.Key.ClientOrderId)
				}
			}
		}
		e.publishAccountEvent(exchange, o, event.AccountOrderResponse)
	}()
}

// executeCommand runs an operator Command to completion, reporting its
// result on Command.Result if the caller provided one.
func (e *Engine) executeCommand(ctx context.Context, cmd event.Command) error {
	var err error
	switch cmd.Kind {
	case event.CommandSendCancelRequests:
		err = e.sendCancelRequests(ctx, cmd.Cancels)
	case event.CommandSendOpenRequests:
		err = e.sendOpenRequests(ctx, cmd.Opens)
	case event.CommandClosePositions:
		err = e.closePositions(ctx, cmd.Filter)
	case event.CommandCancelOrders:
		err = e.cancelOrders(ctx, cmd.Filter)
	case event.CommandDisableTrading:
		e.state.TradingEnabled = false
		if e.onDis != nil {
			for _, c := range e.onDis.OnTradingDisabled(e.state) {
				if cerr := e.executeCommand(ctx, c); cerr != nil {
					err = cerr
					break
				}
			}
		}
	case event.CommandEnableTrading:
		e.state.TradingEnabled = true
	}
	if cmd.Result != nil {
		select {
		case cmd.Result <- err:
		default:
		}
	}
	return err
}

// sendCancelRequests cancels each requested order directly, bypassing the
// RiskManager: cancelling an order is itself a risk-reducing action, same
// as CommandCancelOrders. Each cancel is dispatched asynchronously (see
// dispatchCancel); this only reports whether dispatch itself was accepted,
// not whether the exchange has responded yet — the eventual response
// arrives back through the ordinary account-event path.
func (e *Engine) sendCancelRequests(ctx context.Context, reqs []event.CancelRequest) error {
	for _, req := range reqs {
		mgr, ok := e.execs[req.Key.Exchange]
		if !ok {
			continue
		}
		e.dispatchCancel(ctx, mgr, req.Key.Exchange, execution.CancelOrderRequest{Key: req.Key})
	}
	return nil
}

// sendOpenRequests submits each operator-specified open request through the
// RiskManager, the same approval path algo orders take: placing new
// exposure is never itself risk-reducing, unlike a cancel or a close.
func (e *Engine) sendOpenRequests(ctx context.Context, reqs []event.OpenRequest) error {
	byExchange := make(map[instrument.ExchangeIndex][]execution.OpenOrderRequest)
	for _, req := range reqs {
		exchange := req.Exchange
		if _, ok := e.execs[exchange]; !ok {
			inst := e.state.Indexed.Instrument(req.Instrument)
			if idx, ok := e.state.Indexed.ExchangeIndexOf(inst.Exchange); ok {
				exchange = idx
			}
		}
		byExchange[exchange] = append(byExchange[exchange], execution.OpenOrderRequest{
			Instrument: req.Instrument,
			Side:       req.Side,
			Price:      req.Price,
			Quantity:   req.Quantity,
		})
	}
	for exchange, orders := range byExchange {
		e.submit(ctx, exchange, orders)
	}
	return nil
}

// closePositions flattens every position matching filter by consulting the
// configured ClosePositionsStrategy for the cancel and open requests to
// send, then dispatching both asynchronously to each order's
// ExecutionManager. Like CommandCancelOrders, this bypasses RiskManager
// entirely: closing risk is itself a risk-reducing action.
func (e *Engine) closePositions(ctx context.Context, filter event.InstrumentFilter) error {
	cancels, opens := e.closer.ClosePositionsRequests(e.state, filter)
	if err := e.sendCancelRequests(ctx, cancels); err != nil {
		return err
	}
	for _, req := range opens {
		mgr, ok := e.execs[req.Exchange]
		if !ok {
			continue
		}
		e.dispatchOpen(ctx, mgr, req.Exchange, execution.OpenOrderRequest{
			Instrument: req.Instrument,
			Side:       req.Side,
			Price:      req.Price,
			Quantity:   req.Quantity,
		})
	}
	return nil
}

func (e *Engine) cancelOrders(ctx context.Context, filter event.InstrumentFilter) error {
	for _, o := range e.state.Orders.Active() {
		inst := e.state.Indexed.Instrument(o.Key.Instrument)
		if !filter.Matches(o.Key.Exchange, o.Key.Instrument, inst) {
			continue
		}
		mgr, ok := e.execs[o.Key.Exchange]
		if !ok {
			continue
		}
		e.dispatchCancel(ctx, mgr, o.Key.Exchange, execution.CancelOrderRequest{Key: o.Key})
	}
	return nil
}

// publishAccountEvent forwards a terminal Order produced by ExecutionManager
// onto the Engine's own event queue as an ordinary account event, instead
// of discarding it once the command that requested it has been
// dispatched. The event gets its own AuditTick on the next loop iteration,
// same as any exchange-originated account update, and is subject to the
// same order-state precedence lattice as a concurrently-arriving update
// from the real account stream.
func (e *Engine) publishAccountEvent(exchange instrument.ExchangeIndex, o order.Order, kind event.AccountEventKind) {
	e.events.In() <- event.Event{
		Kind: event.KindAccount,
		Account: &event.AccountEvent{
			Exchange: exchange,
			Kind:     kind,
			Time:     o.Time,
			Order:    &o,
		},
	}
}
