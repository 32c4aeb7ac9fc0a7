package execution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"algoengine/internal/instrument"
	"algoengine/internal/logging"
	"algoengine/internal/order"
	"algoengine/internal/position"
)

func TestExecutionManagerOpenAndCancelOrder(t *testing.T) {
	client := NewMockClient(0)
	mgr := NewExecutionManager(instrument.ExchangeIndex(0), client, time.Second, logging.Nop())

	o, err := mgr.OpenOrder(context.Background(), OpenOrderRequest{
		Instrument: instrument.InstrumentIndex(0),
		Side:       position.Buy,
		Price:      decimal.NewFromInt(100),
		Quantity:   decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("unexpected error opening order: %v", err)
	}
	if o.Status != order.StatusOpen {
		t.Fatalf("expected status open, got %s", o.Status)
	}

	cancelled, err := mgr.CancelOrder(context.Background(), CancelOrderRequest{Key: o.Key})
	if err != nil {
		t.Fatalf("unexpected error cancelling order: %v", err)
	}
	if cancelled.Status != order.StatusCancelled {
		t.Fatalf("expected status cancelled, got %s", cancelled.Status)
	}
}

func TestExecutionTxMapTracksStaleRequests(t *testing.T) {
	tx := NewExecutionTxMap()
	tx.Track("abc")

	if stale := tx.Stale(time.Hour); len(stale) != 0 {
		t.Fatalf("expected no stale entries within the window, got %d", len(stale))
	}

	tx.mu.Lock()
	entry := tx.pending["abc"]
	entry.sentAt = time.Now().Add(-time.Hour)
	tx.pending["abc"] = entry
	tx.mu.Unlock()

	stale := tx.Stale(time.Minute)
	if len(stale) != 1 || stale[0] != "abc" {
		t.Fatalf("expected abc to be stale, got %v", stale)
	}

	tx.Resolve("abc")
	if stale := tx.Stale(0); len(stale) != 0 {
		t.Fatalf("expected resolved entry to be gone, got %v", stale)
	}
}

func TestMockClientFetchOpenOrdersOnlyReturnsActive(t *testing.T) {
	client := NewMockClient(0)
	o1, _ := client.OpenOrder(context.Background(), OpenOrderRequest{Instrument: 0, Side: position.Buy, Price: decimal.NewFromInt(1), Quantity: decimal.NewFromInt(1)})
	_, _ = client.OpenOrder(context.Background(), OpenOrderRequest{Instrument: 0, Side: position.Sell, Price: decimal.NewFromInt(1), Quantity: decimal.NewFromInt(1)})

	_, _ = client.CancelOrder(context.Background(), CancelOrderRequest{Key: o1.Key})

	open, err := client.FetchOpenOrders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Fatalf("expected exactly one order still open, got %d", len(open))
	}
}
