package system

import (
	"context"

	"algoengine/internal/audit"
	"algoengine/internal/engine"
	"algoengine/internal/event"
	"algoengine/internal/execution"
	"algoengine/internal/instrument"
	"algoengine/internal/state"
)

// command is a small helper shared by the control-surface methods below: it
// builds a Command carrying a result channel, sends it to the engine, and
// waits for the outcome, unless ctx is cancelled first.
func (s *System) command(ctx context.Context, cmd event.Command) error {
	result := make(chan error, 1)
	cmd.Result = result
	s.engine.Events() <- event.Event{Kind: event.KindCommand, Command: &cmd}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// System is the running handle produced by SystemBuilder.Build: the
// indexed instrument registry, the EngineState it wraps, the Engine event
// loop and its audit broadcaster.
type System struct {
	config  SystemConfig
	indexed *instrument.IndexedInstruments
	state   *state.EngineState
	engine  *engine.Engine
	audit   *audit.EngineAudit
	streams []*execution.AccountStream
}

// State returns the live EngineState. Callers outside the engine's own
// goroutine must treat it as read-only.
func (s *System) State() *state.EngineState {
	return s.state
}

// Engine returns the underlying Engine, primarily so callers can obtain
// its event-publishing channel.
func (s *System) Engine() *engine.Engine {
	return s.engine
}

// Audit returns the audit broadcaster, so a caller can Subscribe a
// StateReplicaManager before traffic starts.
func (s *System) Audit() *audit.EngineAudit {
	return s.audit
}

// Run starts every account stream and the engine's event loop, blocking
// until ctx is cancelled, a Shutdown command is processed, or an
// unrecoverable error occurs.
func (s *System) Run(ctx context.Context) error {
	for _, as := range s.streams {
		as.Start()
	}
	defer func() {
		for _, as := range s.streams {
			as.Stop()
		}
	}()
	defer s.audit.Stop()
	return s.engine.Run(ctx)
}

// Shutdown publishes the terminal Shutdown event to the engine's event
// loop. Run returns once it has been processed and stamped with its final
// AuditTick.
func (s *System) Shutdown() {
	s.engine.Events() <- event.Event{Kind: event.KindShutdown}
}

// SendCancelRequests cancels one or more specific orders by key, bypassing
// the RiskManager: cancelling is itself a risk-reducing action.
func (s *System) SendCancelRequests(ctx context.Context, reqs ...event.CancelRequest) error {
	return s.command(ctx, event.Command{Kind: event.CommandSendCancelRequests, Cancels: reqs})
}

// SendOpenRequests submits one or more operator-specified open requests,
// approved through the RiskManager the same as any algo order.
func (s *System) SendOpenRequests(ctx context.Context, reqs ...event.OpenRequest) error {
	return s.command(ctx, event.Command{Kind: event.CommandSendOpenRequests, Opens: reqs})
}

// ClosePositions requests every open position matching filter be flattened.
func (s *System) ClosePositions(ctx context.Context, filter event.InstrumentFilter) error {
	return s.command(ctx, event.Command{Kind: event.CommandClosePositions, Filter: filter})
}

// CancelOrders requests every active order matching filter be cancelled.
func (s *System) CancelOrders(ctx context.Context, filter event.InstrumentFilter) error {
	return s.command(ctx, event.Command{Kind: event.CommandCancelOrders, Filter: filter})
}

// SetTradingState enables or disables algo order submission. Disabling
// triggers the configured OnTradingDisabled strategy (by default, flatten
// every open position); closes and cancels already in flight are
// unaffected, since those bypass this gate entirely.
func (s *System) SetTradingState(ctx context.Context, enabled bool) error {
	kind := event.CommandEnableTrading
	if !enabled {
		kind = event.CommandDisableTrading
	}
	return s.command(ctx, event.Command{Kind: kind})
}

// TakeAudit returns the audit broadcaster so a caller can Subscribe a
// StateReplicaManager (or any other subscriber) before traffic starts. An
// alias of Audit, named to match the control-surface vocabulary.
func (s *System) TakeAudit() *audit.EngineAudit {
	return s.audit
}

// SendCommand submits an arbitrary, already-constructed Command, for
// callers that need a capability this System wrapper doesn't name directly.
func (s *System) SendCommand(ctx context.Context, cmd event.Command) error {
	return s.command(ctx, cmd)
}
