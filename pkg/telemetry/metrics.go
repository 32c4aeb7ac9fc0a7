package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricPnLRealizedTotal      = "algoengine_pnl_realized_total"
	MetricPnLUnrealized         = "algoengine_pnl_unrealized"
	MetricOrdersActive          = "algoengine_orders_active"
	MetricOrdersPlacedTotal     = "algoengine_orders_placed_total"
	MetricOrdersFilledTotal     = "algoengine_orders_filled_total"
	MetricVolumeTotal           = "algoengine_volume_total"
	MetricPositionSize          = "algoengine_position_size"
	MetricLatencyExchange       = "algoengine_latency_exchange_ms"
	MetricRiskRejectedTotal     = "algoengine_risk_rejected_total"
	MetricCircuitBreakerOpen    = "algoengine_circuit_breaker_open"
	MetricConnectivityHealthy   = "algoengine_connectivity_healthy"
	MetricAuditSequence         = "algoengine_audit_sequence"
	MetricEventProcessingSecond = "algoengine_event_processing_seconds"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	PnLRealizedTotal    metric.Float64Counter
	PnLUnrealized       metric.Float64ObservableGauge
	OrdersActive        metric.Int64ObservableGauge
	OrdersPlacedTotal   metric.Int64Counter
	OrdersFilledTotal   metric.Int64Counter
	VolumeTotal         metric.Float64Counter
	PositionSize        metric.Float64ObservableGauge
	LatencyExchange     metric.Float64Histogram
	RiskRejectedTotal   metric.Int64Counter
	CircuitBreakerOpen  metric.Int64ObservableGauge
	ConnectivityHealthy metric.Int64ObservableGauge
	AuditSequence       metric.Int64ObservableGauge
	EventProcessingSec  metric.Float64Histogram

	// State for observable gauges
	mu                sync.RWMutex
	unrealizedPnLMap  map[string]float64
	activeOrdersMap   map[string]int64
	positionSizeMap   map[string]float64
	cbOpenMap         map[string]int64
	connectivityMap   map[string]int64
	lastAuditSequence uint64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			unrealizedPnLMap: make(map[string]float64),
			activeOrdersMap:  make(map[string]int64),
			positionSizeMap:  make(map[string]float64),
			cbOpenMap:        make(map[string]int64),
			connectivityMap:  make(map[string]int64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.PnLRealizedTotal, err = meter.Float64Counter(MetricPnLRealizedTotal, metric.WithDescription("Cumulative realized profit/loss"))
	if err != nil {
		return err
	}

	m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total orders placed"))
	if err != nil {
		return err
	}

	m.OrdersFilledTotal, err = meter.Int64Counter(MetricOrdersFilledTotal, metric.WithDescription("Total orders filled"))
	if err != nil {
		return err
	}

	m.VolumeTotal, err = meter.Float64Counter(MetricVolumeTotal, metric.WithDescription("Total trading volume in base asset"))
	if err != nil {
		return err
	}

	m.LatencyExchange, err = meter.Float64Histogram(MetricLatencyExchange, metric.WithDescription("Latency of exchange API calls"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	m.RiskRejectedTotal, err = meter.Int64Counter(MetricRiskRejectedTotal, metric.WithDescription("Orders rejected by the risk manager"))
	if err != nil {
		return err
	}

	m.EventProcessingSec, err = meter.Float64Histogram(MetricEventProcessingSecond, metric.WithDescription("Engine event loop processing latency"), metric.WithUnit("s"))
	if err != nil {
		return err
	}

	// Observables
	m.PnLUnrealized, err = meter.Float64ObservableGauge(MetricPnLUnrealized, metric.WithDescription("Current unrealized PnL"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.unrealizedPnLMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.OrdersActive, err = meter.Int64ObservableGauge(MetricOrdersActive, metric.WithDescription("Number of currently open orders"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.activeOrdersMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.PositionSize, err = meter.Float64ObservableGauge(MetricPositionSize, metric.WithDescription("Current position size"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.positionSizeMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.CircuitBreakerOpen, err = meter.Int64ObservableGauge(MetricCircuitBreakerOpen, metric.WithDescription("Circuit breaker open state (1=open, 0=closed)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.cbOpenMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.ConnectivityHealthy, err = meter.Int64ObservableGauge(MetricConnectivityHealthy, metric.WithDescription("Per-exchange connectivity health (1=healthy, 0=not)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.connectivityMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("exchange", sym)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.AuditSequence, err = meter.Int64ObservableGauge(MetricAuditSequence, metric.WithDescription("Last audit sequence number stamped by the engine"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(int64(m.lastAuditSequence))
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// Helpers to update observable state

func (m *MetricsHolder) SetCircuitBreakerOpen(symbol string, open bool) {
	val := int64(0)
	if open {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cbOpenMap[symbol] = val
}

func (m *MetricsHolder) SetUnrealizedPnL(symbol string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrealizedPnLMap[symbol] = value
}

func (m *MetricsHolder) SetActiveOrders(symbol string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeOrdersMap[symbol] = count
}

func (m *MetricsHolder) SetPositionSize(symbol string, size float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionSizeMap[symbol] = size
}

// SetConnectivityHealthy records whether exchange's aggregate connectivity
// (market and account merged) is currently healthy.
func (m *MetricsHolder) SetConnectivityHealthy(exchange string, healthy bool) {
	val := int64(0)
	if healthy {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectivityMap[exchange] = val
}

// SetAuditSequence records the most recent sequence number stamped by the
// engine's audit broadcaster.
func (m *MetricsHolder) SetAuditSequence(seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAuditSequence = seq
}

func (m *MetricsHolder) GetUnrealizedPnL() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64)
	for k, v := range m.unrealizedPnLMap {
		res[k] = v
	}
	return res
}

func (m *MetricsHolder) GetActiveOrders() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64)
	for k, v := range m.activeOrdersMap {
		res[k] = v
	}
	return res
}

func (m *MetricsHolder) GetPositionSize() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]float64)
	for k, v := range m.positionSizeMap {
		res[k] = v
	}
	return res
}

// AddRealizedPnL records realised PnL (positive or negative) attributed to
// symbol at the moment a position closes or flips. A nil counter (metrics
// never initialized) is a no-op rather than a panic, so tests and
// metrics-disabled runs can call this unconditionally.
func (m *MetricsHolder) AddRealizedPnL(ctx context.Context, symbol string, value float64) {
	if m.PnLRealizedTotal == nil {
		return
	}
	m.PnLRealizedTotal.Add(ctx, value, metric.WithAttributes(attribute.String("symbol", symbol)))
}

// AddRiskRejected increments the count of orders the RiskManager refused
// for reason.
func (m *MetricsHolder) AddRiskRejected(ctx context.Context, reason string) {
	if m.RiskRejectedTotal == nil {
		return
	}
	m.RiskRejectedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
