package execution

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"algoengine/internal/event"
	"algoengine/internal/instrument"
	"algoengine/internal/logging"
	"algoengine/internal/order"
	"algoengine/internal/position"
	ws "algoengine/internal/infrastructure/websocket"
)

// AccountMessageDecoder turns one raw account-stream message into an
// AccountEvent for exchange. Exchange-specific wire formats live behind
// this function; AccountStream itself never inspects the payload.
type AccountMessageDecoder func(exchange instrument.ExchangeIndex, raw []byte) (event.AccountEvent, error)

// AccountStream wraps a resilient websocket.Client, decoding every raw
// account-stream message into an AccountEvent and forwarding it onto the
// engine's event channel. It never drops a message silently: a message
// that fails to decode is logged and skipped, matching the engine's
// guarantee that only well-formed events reach EngineState.
type AccountStream struct {
	exchange instrument.ExchangeIndex
	decode   AccountMessageDecoder
	out      chan<- event.Event
	logger   logging.Logger
	client   *ws.Client
}

// NewAccountStream builds an AccountStream that dials url and publishes
// decoded events onto out (typically an Engine's Events() channel).
func NewAccountStream(exchange instrument.ExchangeIndex, url string, decode AccountMessageDecoder, out chan<- event.Event, logger logging.Logger) *AccountStream {
	s := &AccountStream{exchange: exchange, decode: decode, out: out, logger: logger}
	s.client = ws.NewClient(url, s.handle, logger)
	return s
}

// SetOutput sets the channel decoded events are published to. It must be
// called before Start; it exists separately from NewAccountStream because
// the engine's event channel isn't constructed until after its
// per-exchange execution managers and account streams are.
func (s *AccountStream) SetOutput(out chan<- event.Event) { s.out = out }

// Start begins dialing and decoding in the background.
func (s *AccountStream) Start() { s.client.Start() }

// Stop closes the underlying connection and waits for the read loop to exit.
func (s *AccountStream) Stop() { s.client.Stop() }

func (s *AccountStream) handle(raw []byte) {
	ev, err := s.decode(s.exchange, raw)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("discarding unparseable account-stream message", "exchange", s.exchange, "error", err)
		}
		return
	}
	s.out <- event.Event{Kind: event.KindAccount, Account: &ev}
}

// accountWireMessage is the generic envelope most exchange account streams
// share closely enough to decode without per-exchange logic: a "type" tag
// selecting which of the optional fields apply.
type accountWireMessage struct {
	Type           string          `json:"type"`
	Instrument     string          `json:"instrument"`
	ClientOrderId  string          `json:"client_order_id"`
	Side           string          `json:"side"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	QuantityFilled decimal.Decimal `json:"quantity_filled"`
	Status         string          `json:"status"`
	Fee            decimal.Decimal `json:"fee"`
	Asset          string          `json:"asset"`
	Total          decimal.Decimal `json:"total"`
	Available      decimal.Decimal `json:"available"`
	TimeUnixMillis int64           `json:"time_unix_millis"`
}

// NewJSONAccountDecoder returns an AccountMessageDecoder for the generic
// JSON envelope above, resolving instrument/asset names against indexed.
func NewJSONAccountDecoder(indexed *instrument.IndexedInstruments) AccountMessageDecoder {
	return func(exchange instrument.ExchangeIndex, raw []byte) (event.AccountEvent, error) {
		var msg accountWireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return event.AccountEvent{}, fmt.Errorf("decode account message: %w", err)
		}
		t := time.UnixMilli(msg.TimeUnixMillis).UTC()
		ev := event.AccountEvent{Exchange: exchange, Time: t}

		switch msg.Type {
		case "order_snapshot", "order_response":
			instIdx, ok := indexed.InstrumentIndexOf(exchange, instrument.InstrumentNameInternal(msg.Instrument))
			if !ok {
				return event.AccountEvent{}, fmt.Errorf("unknown instrument %q on exchange %d", msg.Instrument, exchange)
			}
			if msg.Type == "order_snapshot" {
				ev.Kind = event.AccountOrderSnapshot
			} else {
				ev.Kind = event.AccountOrderResponse
			}
			ev.Order = &order.Order{
				Key: order.Key{
					Exchange:      exchange,
					Instrument:    instIdx,
					ClientOrderId: order.ClientOrderId(msg.ClientOrderId),
				},
				Side:           parseSide(msg.Side),
				Price:          msg.Price,
				Quantity:       msg.Quantity,
				QuantityFilled: msg.QuantityFilled,
				Status:         parseStatus(msg.Status),
				Time:           t,
			}
		case "trade":
			instIdx, ok := indexed.InstrumentIndexOf(exchange, instrument.InstrumentNameInternal(msg.Instrument))
			if !ok {
				return event.AccountEvent{}, fmt.Errorf("unknown instrument %q on exchange %d", msg.Instrument, exchange)
			}
			ev.Kind = event.AccountTrade
			ev.Order = &order.Order{
				Key: order.Key{
					Exchange:      exchange,
					Instrument:    instIdx,
					ClientOrderId: order.ClientOrderId(msg.ClientOrderId),
				},
			}
			ev.Trade = &position.Trade{
				Side:     parseSide(msg.Side),
				Price:    msg.Price,
				Quantity: msg.Quantity,
				Fee:      msg.Fee,
				Time:     t,
			}
		case "balance":
			assetIdx, ok := indexed.AssetIndexOf(exchange, instrument.AssetNameInternal(msg.Asset))
			if !ok {
				return event.AccountEvent{}, fmt.Errorf("unknown asset %q on exchange %d", msg.Asset, exchange)
			}
			ev.Kind = event.AccountBalanceSnapshot
			ev.Balance = &event.AssetBalanceUpdate{Asset: assetIdx, Total: msg.Total, Avail: msg.Available}
		default:
			return event.AccountEvent{}, fmt.Errorf("unknown account message type %q", msg.Type)
		}
		return ev, nil
	}
}

func parseSide(s string) position.Side {
	if s == "sell" {
		return position.Sell
	}
	return position.Buy
}

func parseStatus(s string) order.Status {
	switch s {
	case "partially_filled":
		return order.StatusPartiallyFilled
	case "filled":
		return order.StatusFilled
	case "cancelled":
		return order.StatusCancelled
	case "rejected":
		return order.StatusRejected
	case "expired":
		return order.StatusExpired
	default:
		return order.StatusOpen
	}
}
