package execution

import (
	"testing"

	"github.com/shopspring/decimal"

	"algoengine/internal/event"
	"algoengine/internal/instrument"
	"algoengine/internal/order"
)

func buildTestIndex(t *testing.T) (*instrument.IndexedInstruments, instrument.ExchangeIndex) {
	t.Helper()
	b := instrument.NewBuilder()
	_, err := b.Instrument(instrument.Instrument{
		Exchange:     "binance_spot",
		NameInternal: "btc_usdt",
		NameExchange: "BTCUSDT",
		Underlying:   instrument.Underlying{Base: "btc", Quote: "usdt"},
		QuoteAsset:   "usdt",
		Kind:         instrument.KindSpot,
	})
	if err != nil {
		t.Fatal(err)
	}
	indexed := b.Build()
	exIdx, _ := indexed.ExchangeIndexOf("binance_spot")
	return indexed, exIdx
}

func TestJSONAccountDecoderDecodesTrade(t *testing.T) {
	indexed, exIdx := buildTestIndex(t)
	decode := NewJSONAccountDecoder(indexed)

	raw := []byte(`{"type":"trade","instrument":"btc_usdt","client_order_id":"abc","side":"buy","price":"100.5","quantity":"2","fee":"0.1","time_unix_millis":1700000000000}`)
	ev, err := decode(exIdx, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != event.AccountTrade {
		t.Fatalf("expected AccountTrade, got %v", ev.Kind)
	}
	if ev.Trade == nil || !ev.Trade.Price.Equal(decimal.RequireFromString("100.5")) {
		t.Fatal("expected a decoded trade")
	}
	if ev.Order == nil || ev.Order.Key.ClientOrderId != order.ClientOrderId("abc") {
		t.Fatal("expected the trade's order key to carry the client order id")
	}
}

func TestJSONAccountDecoderDecodesBalance(t *testing.T) {
	indexed, exIdx := buildTestIndex(t)
	decode := NewJSONAccountDecoder(indexed)

	raw := []byte(`{"type":"balance","asset":"usdt","total":"1000","available":"900"}`)
	ev, err := decode(exIdx, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Kind != event.AccountBalanceSnapshot || ev.Balance == nil {
		t.Fatal("expected a decoded balance snapshot")
	}
}

func TestJSONAccountDecoderRejectsUnknownInstrument(t *testing.T) {
	indexed, exIdx := buildTestIndex(t)
	decode := NewJSONAccountDecoder(indexed)

	raw := []byte(`{"type":"trade","instrument":"nonexistent","side":"buy","price":"1","quantity":"1"}`)
	if _, err := decode(exIdx, raw); err == nil {
		t.Fatal("expected an error for an unindexed instrument")
	}
}

func TestJSONAccountDecoderRejectsUnknownType(t *testing.T) {
	indexed, exIdx := buildTestIndex(t)
	decode := NewJSONAccountDecoder(indexed)

	if _, err := decode(exIdx, []byte(`{"type":"unknown"}`)); err == nil {
		t.Fatal("expected an error for an unrecognized message type")
	}
}
