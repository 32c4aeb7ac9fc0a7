// Package system wires every other package together into a runnable
// engine process: SystemConfig describes the exchanges and instruments to
// trade, SystemBuilder constructs the indexed state and collaborators from
// it, and System is the resulting handle used to start and stop the whole
// thing.
package system

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"algoengine/internal/instrument"
)

// InstrumentConfig describes one instrument to index and trade, as it
// appears in a SystemConfig document.
type InstrumentConfig struct {
	Exchange     string `json:"exchange"`
	NameInternal string `json:"name_internal"`
	NameExchange string `json:"name_exchange"`
	Base         string `json:"base"`
	Quote        string `json:"quote"`
	Kind         string `json:"kind"`
}

// ExecutionMode selects how ExecutionManager talks to an exchange: a real
// client, or the in-memory MockClient for paper trading and tests.
type ExecutionMode string

const (
	ExecutionModeMock ExecutionMode = "mock"
	ExecutionModeLive ExecutionMode = "live"
)

// ExchangeConfig describes one exchange's execution and account-stream
// wiring.
type ExchangeConfig struct {
	Id                string        `json:"id"`
	Execution         ExecutionMode `json:"execution"`
	AccountStreamURL  string        `json:"account_stream_url"`
	RequestTimeoutMS  int           `json:"request_timeout_ms"`
}

// SystemConfig is the engine's domain configuration: which exchanges and
// instruments to trade and how. It is deliberately separate from the
// process-level YAML config in internal/config, which governs ambient
// concerns (logging, telemetry, timing) rather than trading domain data;
// SystemConfig is loaded from JSON, matching its role as a data document
// rather than an operator-tunable settings file.
type SystemConfig struct {
	Exchanges   []ExchangeConfig   `json:"exchanges"`
	Instruments []InstrumentConfig `json:"instruments"`
}

// LoadSystemConfig decodes a SystemConfig document from r.
func LoadSystemConfig(r io.Reader) (SystemConfig, error) {
	var cfg SystemConfig
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return SystemConfig{}, fmt.Errorf("decode system config: %w", err)
	}
	return cfg, nil
}

func (c ExchangeConfig) requestTimeout() time.Duration {
	if c.RequestTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func parseKind(k string) instrument.Kind {
	switch k {
	case "perpetual":
		return instrument.KindPerpetual
	case "future":
		return instrument.KindFuture
	case "option":
		return instrument.KindOption
	default:
		return instrument.KindSpot
	}
}
