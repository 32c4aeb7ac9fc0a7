package system

import (
	"fmt"

	"algoengine/internal/audit"
	"algoengine/internal/clock"
	"algoengine/internal/engine"
	"algoengine/internal/execution"
	"algoengine/internal/instrument"
	"algoengine/internal/logging"
	"algoengine/internal/risk"
	"algoengine/internal/state"
	"algoengine/internal/strategy"
)

// SystemBuilder assembles a System from a SystemConfig and a set of
// collaborators that can't be expressed in the JSON document itself
// (strategy implementations, a logger, a risk manager).
type SystemBuilder struct {
	cfg         SystemConfig
	algo        strategy.AlgoStrategy
	onDisc      strategy.OnDisconnectStrategy
	onDis       strategy.OnTradingDisabled
	closer      strategy.ClosePositionsStrategy
	risk        risk.Manager
	logger      logging.Logger
	clock       clock.Clock
	liveFactory func(ExchangeConfig) (execution.ExecutionClient, error)
	rateLimits  map[string]int
}

// NewSystemBuilder returns a builder for cfg, defaulting the strategy to
// NoopStrategy, the disconnect/trading-disabled hooks to FlattenOnDisconnect,
// the close logic to MarketOrderClose and the risk manager to a permissive
// DefaultManager; use the With* methods to override any of these. These
// defaults are demo-only, per spec.
func NewSystemBuilder(cfg SystemConfig, logger logging.Logger) *SystemBuilder {
	return &SystemBuilder{
		cfg:    cfg,
		algo:   strategy.NoopStrategy{},
		onDisc: strategy.FlattenOnDisconnect{},
		onDis:  strategy.FlattenOnDisconnect{},
		closer: strategy.MarketOrderClose{},
		risk:   risk.NewDefaultManager(nil),
		logger: logger,
	}
}

// WithStrategy overrides the AlgoStrategy.
func (b *SystemBuilder) WithStrategy(s strategy.AlgoStrategy) *SystemBuilder {
	b.algo = s
	return b
}

// WithClosePositionsStrategy overrides the ClosePositionsStrategy consulted
// on every CommandClosePositions.
func (b *SystemBuilder) WithClosePositionsStrategy(c strategy.ClosePositionsStrategy) *SystemBuilder {
	b.closer = c
	return b
}

// WithRiskManager overrides the risk.Manager.
func (b *SystemBuilder) WithRiskManager(r risk.Manager) *SystemBuilder {
	b.risk = r
	return b
}

// WithLiveClientFactory registers how to build a real ExecutionClient for
// an exchange configured with ExecutionModeLive. Without one, any such
// exchange fails to build.
func (b *SystemBuilder) WithLiveClientFactory(f func(ExchangeConfig) (execution.ExecutionClient, error)) *SystemBuilder {
	b.liveFactory = f
	return b
}

// WithClock overrides the engine's time source, e.g. with a
// clock.NewHistoricalClock for backtests. Defaults to clock.LiveClock.
func (b *SystemBuilder) WithClock(c clock.Clock) *SystemBuilder {
	b.clock = c
	return b
}

// WithRateLimits caps each named exchange's outbound request rate, keyed by
// exchange id as it appears in SystemConfig.Exchanges[i].Id. An exchange
// absent from limits, or mapped to a non-positive value, is left
// unthrottled beyond the configured request timeout.
func (b *SystemBuilder) WithRateLimits(limits map[string]int) *SystemBuilder {
	b.rateLimits = limits
	return b
}

// Build constructs the indexed instrument registry, EngineState, per-exchange
// ExecutionManagers and the Engine itself, returning a ready-to-Run System.
func (b *SystemBuilder) Build() (*System, error) {
	idxBuilder := instrument.NewBuilder()
	for _, ic := range b.cfg.Instruments {
		_, err := idxBuilder.Instrument(instrument.Instrument{
			Exchange:     instrument.ExchangeId(ic.Exchange),
			NameInternal: instrument.InstrumentNameInternal(ic.NameInternal),
			NameExchange: ic.NameExchange,
			Underlying: instrument.Underlying{
				Base:  instrument.AssetNameInternal(ic.Base),
				Quote: instrument.AssetNameInternal(ic.Quote),
			},
			QuoteAsset: instrument.AssetNameInternal(ic.Quote),
			Kind:       parseKind(ic.Kind),
		})
		if err != nil {
			return nil, fmt.Errorf("build instrument index: %w", err)
		}
	}
	indexed := idxBuilder.Build()
	s := state.New(indexed)

	execs := make(map[instrument.ExchangeIndex]*execution.ExecutionManager, len(b.cfg.Exchanges))
	var streams []*execution.AccountStream
	decode := execution.NewJSONAccountDecoder(indexed)
	for _, ec := range b.cfg.Exchanges {
		exIdx, ok := indexed.ExchangeIndexOf(instrument.ExchangeId(ec.Id))
		if !ok {
			continue // exchange configured with no instruments indexed on it; nothing to execute
		}
		client, err := b.buildClient(exIdx, ec)
		if err != nil {
			return nil, err
		}
		execs[exIdx] = execution.NewExecutionManagerWithRateLimit(exIdx, client, ec.requestTimeout(), b.rateLimits[ec.Id], b.logger)

		if ec.Execution == ExecutionModeLive && ec.AccountStreamURL != "" {
			streams = append(streams, execution.NewAccountStream(exIdx, ec.AccountStreamURL, decode, nil, b.logger))
		}
	}

	auditor := audit.NewEngineAudit(4, 1024, b.logger)
	eng := engine.New(s, b.algo, b.onDisc, b.onDis, b.closer, b.risk, execs, b.logger, b.clock, auditor)
	for _, as := range streams {
		as.SetOutput(eng.Events())
	}

	return &System{
		config:  b.cfg,
		indexed: indexed,
		state:   s,
		engine:  eng,
		audit:   auditor,
		streams: streams,
	}, nil
}

func (b *SystemBuilder) buildClient(exIdx instrument.ExchangeIndex, ec ExchangeConfig) (execution.ExecutionClient, error) {
	switch ec.Execution {
	case ExecutionModeLive:
		if b.liveFactory == nil {
			return nil, fmt.Errorf("exchange %s configured for live execution but no live client factory registered", ec.Id)
		}
		return b.liveFactory(ec)
	default:
		return execution.NewMockClient(exIdx), nil
	}
}
