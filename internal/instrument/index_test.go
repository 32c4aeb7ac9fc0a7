package instrument

import "testing"

func TestBuilderAssignsDenseIndicesInEncounterOrder(t *testing.T) {
	b := NewBuilder()

	btcUsdt := Instrument{
		Exchange:     "binance_spot",
		NameInternal: "btc_usdt",
		NameExchange: "BTCUSDT",
		Underlying:   Underlying{Base: "btc", Quote: "usdt"},
		QuoteAsset:   "usdt",
		Kind:         KindSpot,
	}
	ethUsdt := Instrument{
		Exchange:     "binance_spot",
		NameInternal: "eth_usdt",
		NameExchange: "ETHUSDT",
		Underlying:   Underlying{Base: "eth", Quote: "usdt"},
		QuoteAsset:   "usdt",
		Kind:         KindSpot,
	}

	idx0, err := b.Instrument(btcUsdt)
	if err != nil {
		t.Fatal(err)
	}
	idx1, err := b.Instrument(ethUsdt)
	if err != nil {
		t.Fatal(err)
	}

	if idx0 != 0 || idx1 != 1 {
		t.Fatalf("expected dense indices 0,1 got %d,%d", idx0, idx1)
	}

	ii := b.Build()

	if ii.NumExchanges() != 1 {
		t.Fatalf("expected one exchange, got %d", ii.NumExchanges())
	}
	// usdt is shared between both instruments: only 3 distinct assets (btc, usdt, eth).
	if ii.NumAssets() != 3 {
		t.Fatalf("expected 3 distinct assets, got %d", ii.NumAssets())
	}

	exIdx, ok := ii.ExchangeIndexOf("binance_spot")
	if !ok || exIdx != 0 {
		t.Fatalf("expected exchange index 0, got %d ok=%v", exIdx, ok)
	}

	gotIdx, ok := ii.InstrumentIndexOf(exIdx, "eth_usdt")
	if !ok || gotIdx != idx1 {
		t.Fatalf("expected instrument index %d, got %d ok=%v", idx1, gotIdx, ok)
	}
}

func TestBuilderRejectsDuplicateInstrument(t *testing.T) {
	b := NewBuilder()
	inst := Instrument{Exchange: "binance_spot", NameInternal: "btc_usdt"}

	if _, err := b.Instrument(inst); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Instrument(inst); err == nil {
		t.Fatal("expected an error registering the same instrument twice")
	}
}

func TestIndicesAreStableAcrossExchanges(t *testing.T) {
	b := NewBuilder()
	_, _ = b.Instrument(Instrument{Exchange: "binance_spot", NameInternal: "btc_usdt", Underlying: Underlying{Base: "btc", Quote: "usdt"}})
	_, _ = b.Instrument(Instrument{Exchange: "okx", NameInternal: "btc_usdt", Underlying: Underlying{Base: "btc", Quote: "usdt"}})
	ii := b.Build()

	if ii.NumExchanges() != 2 {
		t.Fatalf("expected 2 exchanges, got %d", ii.NumExchanges())
	}
	// Same internal instrument name on two exchanges must get distinct assets per exchange.
	if ii.NumAssets() != 4 {
		t.Fatalf("expected 4 per-exchange asset slots, got %d", ii.NumAssets())
	}
}
