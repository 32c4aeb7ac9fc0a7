package execution

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"algoengine/internal/instrument"
	"algoengine/internal/order"
)

// MockClient is an in-memory ExecutionClient: every open order is
// immediately accepted and marked Open, cancels immediately succeed. It
// backs paper-trading runs and ExecutionManager's tests, grounded in the
// spec's requirement for a config-driven mock execution mode distinct from
// any concrete exchange adapter.
type MockClient struct {
	exchange instrument.ExchangeIndex

	mu     sync.Mutex
	orders map[order.ClientOrderId]order.Order
}

// NewMockClient returns a MockClient for the given exchange index.
func NewMockClient(exchange instrument.ExchangeIndex) *MockClient {
	return &MockClient{
		exchange: exchange,
		orders:   make(map[order.ClientOrderId]order.Order),
	}
}

// OpenOrder accepts the request unconditionally and returns it as Open.
func (c *MockClient) OpenOrder(ctx context.Context, req OpenOrderRequest) (order.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := req.ClientOrderId
	if id == "" {
		id = order.ClientOrderId(uuid.NewString())
	}
	o := order.Order{
		Key: order.Key{
			Exchange:      c.exchange,
			Instrument:    req.Instrument,
			ClientOrderId: id,
		},
		Side:     req.Side,
		Price:    req.Price,
		Quantity: req.Quantity,
		Status:   order.StatusOpen,
		Time:     time.Now(),
	}
	c.orders[id] = o
	return o, nil
}

// CancelOrder marks the order cancelled if known, otherwise returns it as
// already-cancelled so callers treat a missing order as a no-op rather
// than an error.
func (c *MockClient) CancelOrder(ctx context.Context, req CancelOrderRequest) (order.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.orders[req.Key.ClientOrderId]
	if !ok {
		o = order.Order{Key: req.Key, Status: order.StatusCancelled, Time: time.Now()}
		c.orders[req.Key.ClientOrderId] = o
		return o, nil
	}
	o.Status = order.StatusCancelled
	o.Time = time.Now()
	c.orders[req.Key.ClientOrderId] = o
	return o, nil
}

// FetchOpenOrders returns every order this mock still considers Active.
func (c *MockClient) FetchOpenOrders(ctx context.Context) ([]order.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []order.Order
	for _, o := range c.orders {
		if o.Status.IsActive() {
			out = append(out, o)
		}
	}
	return out, nil
}
