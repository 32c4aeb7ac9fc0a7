package instrument

import "fmt"

// ExchangeIndex, AssetIndex and InstrumentIndex are the dense integer
// handles every hot-path lookup uses. They are immutable for the lifetime
// of a process: IndexedInstruments is built once at startup and never
// mutated afterwards.
type ExchangeIndex int

type AssetIndex int

type InstrumentIndex int

type assetKey struct {
	exchange ExchangeIndex
	name     AssetNameInternal
}

type instrumentKey struct {
	exchange ExchangeIndex
	name     InstrumentNameInternal
}

// IndexedInstruments is the immutable, startup-built registry mapping
// business keys to dense indices and back. Every exchange, per-exchange
// asset and per-exchange instrument configured at startup receives exactly
// one index; no index is ever added or removed at runtime.
type IndexedInstruments struct {
	exchangeIds    []ExchangeId
	exchangeIndex  map[ExchangeId]ExchangeIndex
	assets         []assetKey
	assetIndex     map[assetKey]AssetIndex
	instruments    []Instrument
	instrumentIdx  map[instrumentKey]InstrumentIndex
}

// Builder accumulates exchanges/assets/instruments in encounter order and
// produces an IndexedInstruments. Order of first encounter determines the
// assigned index.
type Builder struct {
	ii *IndexedInstruments
}

// NewBuilder creates an empty index builder.
func NewBuilder() *Builder {
	return &Builder{
		ii: &IndexedInstruments{
			exchangeIndex: make(map[ExchangeId]ExchangeIndex),
			assetIndex:    make(map[assetKey]AssetIndex),
			instrumentIdx: make(map[instrumentKey]InstrumentIndex),
		},
	}
}

// Exchange returns the index for id, assigning a fresh one on first sight.
func (b *Builder) Exchange(id ExchangeId) ExchangeIndex {
	if idx, ok := b.ii.exchangeIndex[id]; ok {
		return idx
	}
	idx := ExchangeIndex(len(b.ii.exchangeIds))
	b.ii.exchangeIds = append(b.ii.exchangeIds, id)
	b.ii.exchangeIndex[id] = idx
	return idx
}

// Asset returns the index for (exchange, name), assigning a fresh one on
// first sight. Assets are scoped per exchange because AssetState tracks
// per-exchange balances.
func (b *Builder) Asset(exchange ExchangeIndex, name AssetNameInternal) AssetIndex {
	key := assetKey{exchange, name}
	if idx, ok := b.ii.assetIndex[key]; ok {
		return idx
	}
	idx := AssetIndex(len(b.ii.assets))
	b.ii.assets = append(b.ii.assets, key)
	b.ii.assetIndex[key] = idx
	return idx
}

// Instrument registers an instrument and returns its index. Registering the
// same (exchange, name) twice is an error: instrument configuration is
// expected to be deduplicated before indexing.
func (b *Builder) Instrument(inst Instrument) (InstrumentIndex, error) {
	exIdx := b.Exchange(inst.Exchange)
	key := instrumentKey{exIdx, inst.NameInternal}
	if _, ok := b.ii.instrumentIdx[key]; ok {
		return 0, fmt.Errorf("instrument %s on exchange %s already indexed", inst.NameInternal, inst.Exchange)
	}
	idx := InstrumentIndex(len(b.ii.instruments))
	b.ii.instruments = append(b.ii.instruments, inst)
	b.ii.instrumentIdx[key] = idx

	// Ensure the instrument's base/quote assets are indexed too, so an
	// AssetState exists to receive balance snapshots for them.
	b.Asset(exIdx, inst.Underlying.Base)
	b.Asset(exIdx, inst.Underlying.Quote)

	return idx, nil
}

// Build finalises the registry. The returned value is never mutated again.
func (b *Builder) Build() *IndexedInstruments {
	return b.ii
}

// ExchangeIndexOf looks up the index for a business key.
func (ii *IndexedInstruments) ExchangeIndexOf(id ExchangeId) (ExchangeIndex, bool) {
	idx, ok := ii.exchangeIndex[id]
	return idx, ok
}

// ExchangeID returns the business key for an index. Panics on an
// out-of-range index: an internal consistency violation that should not
// happen if setup is correct.
func (ii *IndexedInstruments) ExchangeID(idx ExchangeIndex) ExchangeId {
	return ii.exchangeIds[idx]
}

// Exchanges returns all registered exchange ids, in index order.
func (ii *IndexedInstruments) Exchanges() []ExchangeId {
	out := make([]ExchangeId, len(ii.exchangeIds))
	copy(out, ii.exchangeIds)
	return out
}

// AssetIndexOf looks up the index for a per-exchange asset.
func (ii *IndexedInstruments) AssetIndexOf(exchange ExchangeIndex, name AssetNameInternal) (AssetIndex, bool) {
	idx, ok := ii.assetIndex[assetKey{exchange, name}]
	return idx, ok
}

// AssetName returns the (exchange, asset-name) pair for an asset index.
func (ii *IndexedInstruments) AssetName(idx AssetIndex) (ExchangeIndex, AssetNameInternal) {
	k := ii.assets[idx]
	return k.exchange, k.name
}

// AssetIndices returns every asset index belonging to the given exchange.
func (ii *IndexedInstruments) AssetIndices(exchange ExchangeIndex) []AssetIndex {
	var out []AssetIndex
	for i, k := range ii.assets {
		if k.exchange == exchange {
			out = append(out, AssetIndex(i))
		}
	}
	return out
}

// InstrumentIndexOf looks up the index for a per-exchange instrument.
func (ii *IndexedInstruments) InstrumentIndexOf(exchange ExchangeIndex, name InstrumentNameInternal) (InstrumentIndex, bool) {
	idx, ok := ii.instrumentIdx[instrumentKey{exchange, name}]
	return idx, ok
}

// Instrument returns the full Instrument for an index.
func (ii *IndexedInstruments) Instrument(idx InstrumentIndex) Instrument {
	return ii.instruments[idx]
}

// Instruments returns every registered instrument, in index order.
func (ii *IndexedInstruments) Instruments() []Instrument {
	out := make([]Instrument, len(ii.instruments))
	copy(out, ii.instruments)
	return out
}

// InstrumentIndices returns every instrument index belonging to the given
// exchange.
func (ii *IndexedInstruments) InstrumentIndices(exchange ExchangeIndex) []InstrumentIndex {
	var out []InstrumentIndex
	for i, inst := range ii.instruments {
		if idx, _ := ii.ExchangeIndexOf(inst.Exchange); idx == exchange {
			out = append(out, InstrumentIndex(i))
		}
	}
	return out
}

// NumExchanges, NumAssets and NumInstruments report registry sizes, used to
// pre-size the dense slices in EngineState.
func (ii *IndexedInstruments) NumExchanges() int   { return len(ii.exchangeIds) }
func (ii *IndexedInstruments) NumAssets() int      { return len(ii.assets) }
func (ii *IndexedInstruments) NumInstruments() int { return len(ii.instruments) }
