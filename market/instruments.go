package market

// InstrumentMeta carries static trading details for a symbol.
type InstrumentMeta struct {
	Symbol         string
	LotStep        float64 // smallest tradable quantity increment
	PricePrecision int     // decimal places quoted
}

// DefaultLotStep applies to symbols without an Instruments entry.
// Whole units keeps sizing conservative for unknown listings.
const DefaultLotStep = 1.0

// Instruments maps the symbols the bot knows about to their metadata.
// Equities trade in whole shares, crypto in fractional lots.
var Instruments = map[string]InstrumentMeta{
	"AAPL":    {Symbol: "AAPL", LotStep: 1, PricePrecision: 2},
	"MSFT":    {Symbol: "MSFT", LotStep: 1, PricePrecision: 2},
	"GOOG":    {Symbol: "GOOG", LotStep: 1, PricePrecision: 2},
	"KO":      {Symbol: "KO", LotStep: 1, PricePrecision: 2},
	"PEP":     {Symbol: "PEP", LotStep: 1, PricePrecision: 2},
	"XOM":     {Symbol: "XOM", LotStep: 1, PricePrecision: 2},
	"CVX":     {Symbol: "CVX", LotStep: 1, PricePrecision: 2},
	"BTCUSDT": {Symbol: "BTCUSDT", LotStep: 0.00001, PricePrecision: 2},
	"ETHUSDT": {Symbol: "ETHUSDT", LotStep: 0.0001, PricePrecision: 2},
	"SOLUSDT": {Symbol: "SOLUSDT", LotStep: 0.001, PricePrecision: 3},
	"BNBUSDT": {Symbol: "BNBUSDT", LotStep: 0.001, PricePrecision: 2},
}

// Lookup returns the metadata for symbol, falling back to whole-unit
// defaults when the symbol is not listed.
func Lookup(symbol string) InstrumentMeta {
	if meta, ok := Instruments[symbol]; ok {
		return meta
	}
	return InstrumentMeta{Symbol: symbol, LotStep: DefaultLotStep, PricePrecision: 2}
}
