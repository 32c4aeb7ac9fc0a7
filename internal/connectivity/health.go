// Package connectivity tracks the health of market-data and account
// streams per exchange, and aggregates them into a single system-wide
// Health value the engine and risk layer can act on.
package connectivity

// Health is a three-state connectivity signal. It deliberately has no
// "degraded" state: a stream is either fully serving data (Healthy), known
// to be down (Unhealthy), or its state has not yet been observed
// (Unknown), which is the conservative default until the first event
// arrives.
type Health int

const (
	Unknown Health = iota
	Healthy
	Unhealthy
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Merge combines two Health values conservatively: Unhealthy dominates
// everything, Unknown dominates Healthy (an unknown component is treated as
// a gap, not a pass), and only Healthy with Healthy merges to Healthy.
func Merge(a, b Health) Health {
	if a == Unhealthy || b == Unhealthy {
		return Unhealthy
	}
	if a == Unknown || b == Unknown {
		return Unknown
	}
	return Healthy
}

// ConnectivityState is one exchange's market-data and account-stream
// health.
type ConnectivityState struct {
	Market  Health
	Account Health
}

// NewConnectivityState returns a state with both streams Unknown, the
// correct default before any connectivity event has been observed for an
// exchange.
func NewConnectivityState() ConnectivityState {
	return ConnectivityState{Market: Unknown, Account: Unknown}
}

// Health folds the two per-stream signals into a single per-exchange
// Health, conservatively: both streams must be Healthy for the exchange to
// be reported Healthy.
func (c ConnectivityState) Health() Health {
	return Merge(c.Market, c.Account)
}

// ConnectivityStates aggregates per-exchange ConnectivityState, indexed by
// instrument.ExchangeIndex, plus the single rolled-up Health the Engine and
// RiskManager consult to decide whether new risk may be taken.
type ConnectivityStates struct {
	byExchange map[int]ConnectivityState
}

// NewConnectivityStates returns an aggregate with no exchanges registered
// yet. Exchanges are added lazily by the first event observed for them, via
// UpdateMarket/UpdateAccount; Global treats an unregistered exchange as
// absent from the system rather than as a reason to stay Unknown. Prefer
// NewConnectivityStatesFor when the full set of configured exchanges is
// known up front, so a configured-but-silent exchange still counts against
// Global instead of being skipped.
func NewConnectivityStates() *ConnectivityStates {
	return &ConnectivityStates{byExchange: make(map[int]ConnectivityState)}
}

// NewConnectivityStatesFor seeds an aggregate with one Unknown-Unknown
// ConnectivityState per exchange in exchanges, so Global correctly reports
// non-Healthy until every configured exchange has reported both its
// market-data and account streams, not just the ones that happen to have
// reported so far (spec invariant: global is Healthy iff every configured
// exchange is).
func NewConnectivityStatesFor(exchanges []int) *ConnectivityStates {
	c := NewConnectivityStates()
	for _, ex := range exchanges {
		c.byExchange[ex] = NewConnectivityState()
	}
	return c
}

// State returns the ConnectivityState for an exchange index, defaulting to
// both-Unknown if the exchange has not yet reported any event.
func (c *ConnectivityStates) State(exchange int) ConnectivityState {
	if s, ok := c.byExchange[exchange]; ok {
		return s
	}
	return NewConnectivityState()
}

// UpdateMarket records a market-data connectivity transition for exchange.
func (c *ConnectivityStates) UpdateMarket(exchange int, health Health) {
	s := c.State(exchange)
	s.Market = health
	c.byExchange[exchange] = s
}

// UpdateAccount records an account-stream connectivity transition for
// exchange.
func (c *ConnectivityStates) UpdateAccount(exchange int, health Health) {
	s := c.State(exchange)
	s.Account = health
	c.byExchange[exchange] = s
}

// Global folds every registered exchange's Health into one system-wide
// Health. An exchange that has never reported any event is not counted: an
// idle/unconfigured exchange must not drag the whole system to Unknown.
func (c *ConnectivityStates) Global() Health {
	if len(c.byExchange) == 0 {
		return Unknown
	}
	result := Healthy
	for _, s := range c.byExchange {
		result = Merge(result, s.Health())
	}
	return result
}
