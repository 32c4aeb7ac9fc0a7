package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"algoengine/internal/audit"
	"algoengine/internal/event"
	"algoengine/internal/execution"
	"algoengine/internal/instrument"
	"algoengine/internal/logging"
	orderpkg "algoengine/internal/order"
	"algoengine/internal/position"
	"algoengine/internal/risk"
	"algoengine/internal/state"
	"algoengine/internal/strategy"
	apperrors "algoengine/pkg/errors"
)

func buildFixture(t *testing.T) (*Engine, *state.EngineState, *execution.MockClient) {
	t.Helper()
	b := instrument.NewBuilder()
	_, err := b.Instrument(instrument.Instrument{
		Exchange:     "binance_spot",
		NameInternal: "btc_usdt",
		Underlying:   instrument.Underlying{Base: "btc", Quote: "usdt"},
	})
	if err != nil {
		t.Fatal(err)
	}
	indexed := b.Build()
	s := state.New(indexed)

	client := execution.NewMockClient(0)
	mgr := execution.NewExecutionManager(instrument.ExchangeIndex(0), client, time.Second, logging.Nop())

	eng := New(
		s,
		strategy.NoopStrategy{},
		strategy.FlattenOnDisconnect{},
		strategy.FlattenOnDisconnect{},
		strategy.MarketOrderClose{},
		risk.NewDefaultManager(nil),
		map[instrument.ExchangeIndex]*execution.ExecutionManager{0: mgr},
		logging.Nop(),
		nil,
		nil,
	)
	return eng, s, client
}

func TestEngineAppliesMarketEventToState(t *testing.T) {
	eng, s, _ := buildFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go eng.Run(ctx)

	eng.Events() <- event.Event{Kind: event.KindMarket, Market: &event.MarketEvent{
		Instrument: 0,
		Kind:       event.MarketTrade,
		Time:       time.Now(),
		TradePrice: decimal.NewFromInt(100),
	}}

	// Give the loop a moment to process; deterministic polling avoids a
	// fixed sleep masking a slow CI box.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		is, ok := s.Instruments[0]
		if ok && !is.LastTrade.Value.Price.IsZero() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected market event to be applied to state within timeout")
}

func TestEngineClosePositionsCommand(t *testing.T) {
	eng, s, client := buildFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Positions.UpdateFromTrade(0, 0, position.Trade{
		Side: position.Buy, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), Time: time.Now(),
	})

	go eng.Run(ctx)

	result := make(chan error, 1)
	eng.Events() <- event.Event{Kind: event.KindCommand, Command: &event.Command{
		Kind:   event.CommandClosePositions,
		Result: result,
	}}

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("unexpected error closing positions: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close-positions command")
	}

	// The command's Result only reports that the close was dispatched, not
	// that the exchange responded: the actual OpenOrder call runs on its
	// own goroutine (see Engine.dispatchOpen), so poll for it to land
	// rather than assuming it is already visible.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		open, err := client.FetchOpenOrders(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		for _, o := range open {
			if o.Side == position.Sell {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected a closing sell order to have been submitted")
}

func TestEngineDisableAndEnableTrading(t *testing.T) {
	eng, s, _ := buildFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go eng.Run(ctx)

	result := make(chan error, 1)
	eng.Events() <- event.Event{Kind: event.KindCommand, Command: &event.Command{Kind: event.CommandDisableTrading, Result: result}}
	<-result

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && s.TradingEnabled {
		time.Sleep(time.Millisecond)
	}
	if s.TradingEnabled {
		t.Fatal("expected trading to be disabled")
	}
}

// blockingClient never responds within any reasonable test timeout,
// forcing ExecutionManager's timeout policy to fire so the engine's
// timeout-synthesis path (S6) can be exercised deterministically.
type blockingClient struct{}

func (blockingClient) OpenOrder(ctx context.Context, req execution.OpenOrderRequest) (orderpkg.Order, error) {
	<-ctx.Done()
	return orderpkg.Order{}, ctx.Err()
}

func (blockingClient) CancelOrder(ctx context.Context, req execution.CancelOrderRequest) (orderpkg.Order, error) {
	<-ctx.Done()
	return orderpkg.Order{}, ctx.Err()
}

func (blockingClient) FetchOpenOrders(ctx context.Context) ([]orderpkg.Order, error) {
	return nil, nil
}

// S6: a request that never gets a response within its deadline must
// produce exactly one synthesized OrderSnapshot/OrderError(Connectivity,
// Timeout) account event, keyed identically to the original request, fed
// back into the engine as an ordinary event.
func TestEngineSynthesizesTimeoutAsAccountEvent(t *testing.T) {
	b := instrument.NewBuilder()
	_, err := b.Instrument(instrument.Instrument{
		Exchange:     "binance_spot",
		NameInternal: "btc_usdt",
		Underlying:   instrument.Underlying{Base: "btc", Quote: "usdt"},
	})
	if err != nil {
		t.Fatal(err)
	}
	indexed := b.Build()
	s := state.New(indexed)

	mgr := execution.NewExecutionManager(instrument.ExchangeIndex(0), blockingClient{}, 10*time.Millisecond, logging.Nop())

	eng := New(
		s,
		strategy.NoopStrategy{},
		nil,
		nil,
		nil,
		risk.NewDefaultManager(nil),
		map[instrument.ExchangeIndex]*execution.ExecutionManager{0: mgr},
		logging.Nop(),
		nil,
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	// Drive the timeout through closePositions, since the fixture's
	// NoopStrategy never proposes orders on its own.
	s.Positions.UpdateFromTrade(0, 0, position.Trade{
		Side: position.Buy, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), Time: time.Now(),
	})
	result := make(chan error, 1)
	eng.Events() <- event.Event{Kind: event.KindCommand, Command: &event.Command{
		Kind:   event.CommandClosePositions,
		Result: result,
	}}
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("unexpected error from close-positions despite timeout being recoverable: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close-positions command")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, o := range s.Orders.All() {
			if o.Status == orderpkg.StatusError {
				if !errors.Is(o.Err, apperrors.ErrConnectivityTimeout) {
					t.Fatalf("expected synthesized order error to be ErrConnectivityTimeout, got %v", o.Err)
				}
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected a synthesized StatusError order within timeout")
}

// A trade that fully closes a position must surface the resulting
// PositionExited on the AuditTick's Outputs, not just mutate state
// silently: spec.md section 2 requires every processed event's AuditTick
// to carry "the processed event, the optional outputs, any errors".
func TestEngineAuditTickCarriesPositionExitedOutput(t *testing.T) {
	b := instrument.NewBuilder()
	_, err := b.Instrument(instrument.Instrument{
		Exchange:     "binance_spot",
		NameInternal: "btc_usdt",
		Underlying:   instrument.Underlying{Base: "btc", Quote: "usdt"},
	})
	if err != nil {
		t.Fatal(err)
	}
	indexed := b.Build()
	s := state.New(indexed)

	ea := audit.NewEngineAudit(2, 16, logging.Nop())
	defer ea.Stop()
	ticks := make(chan audit.AuditTick, 8)
	ea.Subscribe(ticks)

	eng := New(
		s,
		strategy.NoopStrategy{},
		nil,
		nil,
		nil,
		risk.NewDefaultManager(nil),
		nil,
		logging.Nop(),
		nil,
		ea,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	// Open, then fully close, via AccountTrade events so UpdateFromAccount
	// is the path that returns a PositionExited.
	eng.Events() <- event.Event{Kind: event.KindAccount, Account: &event.AccountEvent{
		Exchange: 0, Kind: event.AccountTrade, Time: time.Now(),
		Order: &orderpkg.Order{Key: orderpkg.Key{Exchange: 0, Instrument: 0}},
		Trade: &position.Trade{Side: position.Buy, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), Time: time.Now()},
	}}
	eng.Events() <- event.Event{Kind: event.KindAccount, Account: &event.AccountEvent{
		Exchange: 0, Kind: event.AccountTrade, Time: time.Now(),
		Order: &orderpkg.Order{Key: orderpkg.Key{Exchange: 0, Instrument: 0}},
		Trade: &position.Trade{Side: position.Sell, Price: decimal.NewFromInt(110), Quantity: decimal.NewFromInt(1), Time: time.Now()},
	}}

	var sawExit bool
	for i := 0; i < 2; i++ {
		select {
		case tick := <-ticks:
			for _, o := range tick.Outputs {
				if exited, ok := o.(*position.PositionExited); ok {
					sawExit = true
					if !exited.RealisedPnL.Equal(decimal.NewFromInt(10)) {
						t.Fatalf("expected realised pnl 10, got %s", exited.RealisedPnL)
					}
				}
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for audit tick %d", i)
		}
	}
	if !sawExit {
		t.Fatal("expected the closing trade's AuditTick to carry a PositionExited output")
	}
}

// S4: three arbitrary events must produce audit ticks with strictly
// sequential sequence numbers [0,1,2], with no gaps.
func TestEngineAuditSequenceIsStrictlyMonotonic(t *testing.T) {
	b := instrument.NewBuilder()
	_, err := b.Instrument(instrument.Instrument{
		Exchange:     "binance_spot",
		NameInternal: "btc_usdt",
		Underlying:   instrument.Underlying{Base: "btc", Quote: "usdt"},
	})
	if err != nil {
		t.Fatal(err)
	}
	indexed := b.Build()
	s := state.New(indexed)

	ea := audit.NewEngineAudit(2, 16, logging.Nop())
	defer ea.Stop()
	ticks := make(chan audit.AuditTick, 8)
	ea.Subscribe(ticks)

	eng := New(
		s,
		strategy.NoopStrategy{},
		nil,
		nil,
		nil,
		risk.NewDefaultManager(nil),
		nil,
		logging.Nop(),
		nil,
		ea,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	eng.Events() <- event.Event{Kind: event.KindMarket, Market: &event.MarketEvent{
		Instrument: 0, Kind: event.MarketTrade, Time: time.Now(), TradePrice: decimal.NewFromInt(100),
	}}
	eng.Events() <- event.Event{Kind: event.KindMarket, Market: &event.MarketEvent{
		Instrument: 0, Kind: event.MarketTrade, Time: time.Now(), TradePrice: decimal.NewFromInt(101),
	}}
	eng.Events() <- event.Event{Kind: event.KindShutdown}

	var seqs []uint64
	for i := 0; i < 3; i++ {
		select {
		case tick := <-ticks:
			seqs = append(seqs, tick.Context.Sequence)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for audit tick %d", i)
		}
	}
	for i, seq := range seqs {
		if seq != uint64(i) {
			t.Fatalf("expected sequence %d at position %d, got %d", i, i, seq)
		}
	}
}
