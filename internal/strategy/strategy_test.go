package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"algoengine/internal/event"
	"algoengine/internal/instrument"
	"algoengine/internal/position"
	"algoengine/internal/state"
)

func buildState(t *testing.T) *state.EngineState {
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
	return state.New(b.Build())
}

func TestNoopStrategyReturnsNothing(t *testing.T) {
	s := buildState(t)
	var st NoopStrategy
	if orders := st.OnMarketEvent(s, event.MarketEvent{}); orders != nil {
		t.Fatal("expected no orders from noop strategy")
	}
}

func TestFlattenOnDisconnectOnDisconnect(t *testing.T) {
	var st FlattenOnDisconnect
	cmds := st.OnDisconnect(buildState(t), instrument.ExchangeIndex(0))
	if len(cmds) != 1 || cmds[0].Kind != event.CommandClosePositions {
		t.Fatalf("expected one close-positions command, got %+v", cmds)
	}
	if len(cmds[0].Filter.Exchanges) != 1 || cmds[0].Filter.Exchanges[0] != instrument.ExchangeIndex(0) {
		t.Fatal("expected the command scoped to the disconnected exchange")
	}
}

func TestFlattenOnDisconnectOnTradingDisabledSkipsWhenFlat(t *testing.T) {
	var st FlattenOnDisconnect
	s := buildState(t)
	if cmds := st.OnTradingDisabled(s); cmds != nil {
		t.Fatal("expected no command when there are no open positions")
	}

	s.Positions.UpdateFromTrade(instrument.ExchangeIndex(0), instrument.InstrumentIndex(0), position.Trade{
		Side: position.Buy, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), Time: time.Now(),
	})
	cmds := st.OnTradingDisabled(s)
	if len(cmds) != 1 {
		t.Fatalf("expected one close-positions command once a position is open, got %+v", cmds)
	}
}

func TestMarketOrderCloseBuildsOppositeSideRequest(t *testing.T) {
	var st MarketOrderClose
	s := buildState(t)
	s.Positions.UpdateFromTrade(instrument.ExchangeIndex(0), instrument.InstrumentIndex(0), position.Trade{
		Side: position.Buy, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(2), Time: time.Now(),
	})

	cancels, opens := st.ClosePositionsRequests(s, event.InstrumentFilter{})
	if cancels != nil {
		t.Fatalf("expected no cancel requests from the default market-order close, got %+v", cancels)
	}
	if len(opens) != 1 {
		t.Fatalf("expected one open request, got %+v", opens)
	}
	if opens[0].Side != position.Sell {
		t.Fatalf("expected the closing order to be on the opposite side, got %s", opens[0].Side)
	}
	if !opens[0].Quantity.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected the closing order sized at the position's full quantity, got %s", opens[0].Quantity)
	}
}

func TestMarketOrderCloseRespectsFilter(t *testing.T) {
	var st MarketOrderClose
	s := buildState(t)
	s.Positions.UpdateFromTrade(instrument.ExchangeIndex(0), instrument.InstrumentIndex(0), position.Trade{
		Side: position.Buy, Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1), Time: time.Now(),
	})

	_, opens := st.ClosePositionsRequests(s, event.InstrumentFilter{Exchanges: []instrument.ExchangeIndex{instrument.ExchangeIndex(99)}})
	if len(opens) != 0 {
		t.Fatalf("expected no open requests for a filter matching no exchange, got %+v", opens)
	}
}
