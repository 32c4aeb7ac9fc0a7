// Package execution is the per-exchange request/response boundary: it
// wraps exchange API calls with a timeout policy, tracks in-flight
// requests so responses can be matched back to the command that issued
// them, and runs the account stream with automatic reconnection.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/timeout"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"algoengine/internal/instrument"
	"algoengine/internal/logging"
	"algoengine/internal/order"
	"algoengine/internal/position"
	"algoengine/pkg/decimalutil"
	apperrors "algoengine/pkg/errors"
)

// defaultPrecision bounds price/quantity decimals submitted to an exchange
// when ExecutionManager isn't configured with a tighter one.
const defaultPrecision = int32(8)

// OpenOrderRequest describes a new order to place. ClientOrderId is assigned
// by ExecutionManager before the request reaches the client, so the id
// stamped on any response (or on a synthesized timeout failure) always
// matches the id the engine tracked the request under.
type OpenOrderRequest struct {
	Instrument    instrument.InstrumentIndex
	Side          position.Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	ClientOrderId order.ClientOrderId
}

// CancelOrderRequest identifies an order to cancel.
type CancelOrderRequest struct {
	Key order.Key
}

// ExecutionClient is the per-exchange surface an ExecutionManager drives.
// Concrete implementations bridge to one exchange's wire protocol; MockClient
// in this package is one such implementation used for paper trading and
// tests.
type ExecutionClient interface {
	OpenOrder(ctx context.Context, req OpenOrderRequest) (order.Order, error)
	CancelOrder(ctx context.Context, req CancelOrderRequest) (order.Order, error)
	FetchOpenOrders(ctx context.Context) ([]order.Order, error)
}

// pendingTx tracks a request sent to the exchange whose response has not
// yet been observed, so a timeout or disconnect can be attributed back to
// the request that caused it.
type pendingTx struct {
	clientOrderID order.ClientOrderId
	sentAt        time.Time
}

// ExecutionTxMap tracks in-flight requests per client order id. It exists
// so ExecutionManager can detect a request that never got a response
// (exchange dropped it silently) separately from one that errored outright.
type ExecutionTxMap struct {
	mu      sync.Mutex
	pending map[order.ClientOrderId]pendingTx
}

// NewExecutionTxMap returns an empty transaction map.
func NewExecutionTxMap() *ExecutionTxMap {
	return &ExecutionTxMap{pending: make(map[order.ClientOrderId]pendingTx)}
}

// Track records a request as in flight.
func (m *ExecutionTxMap) Track(id order.ClientOrderId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[id] = pendingTx{clientOrderID: id, sentAt: time.Now()}
}

// Resolve marks a request's response as observed, removing it from the
// in-flight set.
func (m *ExecutionTxMap) Resolve(id order.ClientOrderId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, id)
}

// Stale returns every in-flight request older than maxAge, candidates for
// a reconciliation query against the exchange.
func (m *ExecutionTxMap) Stale(maxAge time.Duration) []order.ClientOrderId {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	var out []order.ClientOrderId
	for id, tx := range m.pending {
		if tx.sentAt.Before(cutoff) {
			out = append(out, id)
		}
	}
	return out
}

// ExecutionManager is the per-exchange execution boundary: it wraps every
// request to the underlying ExecutionClient with a timeout policy, and
// generates client order ids for new orders.
type ExecutionManager struct {
	exchange        instrument.ExchangeIndex
	client          ExecutionClient
	tx              *ExecutionTxMap
	timeout         failsafe.Executor[order.Order]
	limiter         *rate.Limiter
	logger          logging.Logger
	pricePrecision  int32
	qtyPrecision    int32
}

// WithPrecision overrides the decimal precision OpenOrder rounds price and
// quantity to before submission, matching an exchange's tick/lot size.
func (m *ExecutionManager) WithPrecision(priceDecimals, qtyDecimals int32) *ExecutionManager {
	m.pricePrecision = priceDecimals
	m.qtyPrecision = qtyDecimals
	return m
}

// NewExecutionManager builds an ExecutionManager for one exchange. requestTimeout
// bounds every OpenOrder/CancelOrder call; a call that exceeds it surfaces
// apperrors.ErrConnectivityTimeout rather than hanging the engine's command
// path. The manager it returns is not rate limited; see
// NewExecutionManagerWithRateLimit.
func NewExecutionManager(exchange instrument.ExchangeIndex, client ExecutionClient, requestTimeout time.Duration, logger logging.Logger) *ExecutionManager {
	return NewExecutionManagerWithRateLimit(exchange, client, requestTimeout, 0, logger)
}

// NewExecutionManagerWithRateLimit is NewExecutionManager plus an explicit
// per-exchange request rate, alongside the timeout policy the exchange
// itself typically publishes (e.g. "50 requests/sec"). A non-positive
// requestsPerSecond disables throttling.
func NewExecutionManagerWithRateLimit(exchange instrument.ExchangeIndex, client ExecutionClient, requestTimeout time.Duration, requestsPerSecond int, logger logging.Logger) *ExecutionManager {
	timeoutPolicy := timeout.With[order.Order](requestTimeout)
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
	return &ExecutionManager{
		exchange:       exchange,
		client:         client,
		tx:             NewExecutionTxMap(),
		timeout:        failsafe.With[order.Order](timeoutPolicy),
		limiter:        limiter,
		logger:         logger,
		pricePrecision: defaultPrecision,
		qtyPrecision:   defaultPrecision,
	}
}

// wait blocks until the rate limiter admits the next request, a no-op when
// no limiter is configured.
func (m *ExecutionManager) wait(ctx context.Context) error {
	if m.limiter == nil {
		return nil
	}
	return m.limiter.Wait(ctx)
}

// classify maps a failsafe/timeout error onto the apperrors sentinel the
// rest of the engine branches on, leaving any other error (one the
// ExecutionClient itself returned) untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, timeout.ErrExceeded) {
		return apperrors.ErrConnectivityTimeout
	}
	return err
}

// OpenOrder submits a new order, assigning it a fresh client order id and
// tracking it in the transaction map until the response is observed.
func (m *ExecutionManager) OpenOrder(ctx context.Context, req OpenOrderRequest) (order.Order, error) {
	req.Price = decimalutil.RoundPrice(req.Price, m.pricePrecision)
	req.Quantity = decimalutil.RoundQuantity(req.Quantity, m.qtyPrecision)

	clientID := order.ClientOrderId(uuid.NewString())
	req.ClientOrderId = clientID
	key := order.Key{Exchange: m.exchange, Instrument: req.Instrument, ClientOrderId: clientID}

	if err := m.wait(ctx); err != nil {
		failed := order.Order{Key: key, Side: req.Side, Price: req.Price, Quantity: req.Quantity, Status: order.StatusError, Err: err, Time: time.Now()}
		return failed, fmt.Errorf("open order on exchange %d: %w", m.exchange, err)
	}
	m.tx.Track(clientID)

	result, err := m.timeout.GetWithExecution(func(exec failsafe.Execution[order.Order]) (order.Order, error) {
		return m.client.OpenOrder(ctx, req)
	})
	m.tx.Resolve(clientID)
	if err != nil {
		err = classify(err)
		if m.logger != nil {
			m.logger.Warn("open order failed", "exchange", m.exchange, "error", err)
		}
		// A request that timed out without a response still gets a
		// terminal Order keyed identically to the request, so the caller
		// can forward it as an ordinary account event rather than dropping
		// it silently.
		synthetic := order.Order{
			Key:      key,
			Side:     req.Side,
			Price:    req.Price,
			Quantity: req.Quantity,
			Status:   order.StatusError,
			Err:      err,
			Time:     time.Now(),
		}
		return synthetic, fmt.Errorf("open order on exchange %d: %w", m.exchange, err)
	}
	return result, nil
}

// CancelOrder cancels an existing order, under the same timeout policy.
func (m *ExecutionManager) CancelOrder(ctx context.Context, req CancelOrderRequest) (order.Order, error) {
	if err := m.wait(ctx); err != nil {
		failed := order.Order{Key: req.Key, Status: order.StatusError, Err: err, Time: time.Now()}
		return failed, fmt.Errorf("cancel order on exchange %d: %w", m.exchange, err)
	}

	m.tx.Track(req.Key.ClientOrderId)
	result, err := m.timeout.GetWithExecution(func(exec failsafe.Execution[order.Order]) (order.Order, error) {
		return m.client.CancelOrder(ctx, req)
	})
	m.tx.Resolve(req.Key.ClientOrderId)
	if err != nil {
		err = classify(err)
		if m.logger != nil {
			m.logger.Warn("cancel order failed", "exchange", m.exchange, "error", err)
		}
		synthetic := order.Order{
			Key:    req.Key,
			Status: order.StatusError,
			Err:    err,
			Time:   time.Now(),
		}
		return synthetic, fmt.Errorf("cancel order on exchange %d: %w", m.exchange, err)
	}
	return result, nil
}

// ReconcileStale re-fetches open orders from the exchange for any request
// whose response was never observed within maxAge, closing the gap left by
// a dropped response.
func (m *ExecutionManager) ReconcileStale(ctx context.Context, maxAge time.Duration) ([]order.Order, error) {
	if len(m.tx.Stale(maxAge)) == 0 {
		return nil, nil
	}
	return m.client.FetchOpenOrders(ctx)
}
