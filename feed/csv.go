package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"pairbot/market"
)

// Bar is one OHLCV row from a bar file. The replayer serves the close.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// CSVSource replays bar files in lockstep: Step advances every symbol
// by one row, Latest serves the close at the current row. Rows beyond
// the shortest file are ignored so legs stay aligned.
type CSVSource struct {
	mu      sync.Mutex
	bars    map[string][]Bar
	symbols []string
	idx     int
	n       int
}

// LoadCSVDir reads <dir>/<SYMBOL>.csv for each symbol.
func LoadCSVDir(dir string, symbols []string) (*CSVSource, error) {
	symbols = dedupeSymbols(symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("csv feed requires at least one symbol")
	}

	src := &CSVSource{
		bars:    make(map[string][]Bar, len(symbols)),
		symbols: symbols,
		idx:     -1,
	}
	for _, sym := range symbols {
		path := filepath.Join(dir, sym+".csv")
		bars, err := ReadBars(path)
		if err != nil {
			return nil, fmt.Errorf("load bars for %s: %w", sym, err)
		}
		src.bars[sym] = bars
		if src.n == 0 || len(bars) < src.n {
			src.n = len(bars)
		}
	}
	return src, nil
}

// ReadBars parses one bar file: a "time,open,high,low,close,volume"
// header then RFC3339-stamped rows.
func ReadBars(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header[0] != "time" {
		return nil, fmt.Errorf("unexpected header %q", header[0])
	}

	var bars []Bar
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		bar, err := parseBar(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(bars)+2, err)
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: no rows", path)
	}
	return bars, nil
}

func parseBar(rec []string) (Bar, error) {
	ts, err := time.Parse(time.RFC3339, rec[0])
	if err != nil {
		return Bar{}, fmt.Errorf("bad time %q: %w", rec[0], err)
	}
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return Bar{}, fmt.Errorf("bad value %q: %w", rec[i+1], err)
		}
		vals[i] = v
	}
	return Bar{
		Time:   ts.UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// Len is the number of replayable rows (the shortest file wins).
func (s *CSVSource) Len() int { return s.n }

// Symbols returns the symbols being replayed.
func (s *CSVSource) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// Step advances the replay to the next row. It returns false once the
// data is exhausted.
func (s *CSVSource) Step() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx+1 >= s.n {
		return false
	}
	s.idx++
	return true
}

// Latest returns the close at the current row. Before the first Step,
// or for symbols not loaded, it returns ErrNoData.
func (s *CSVSource) Latest(_ context.Context, symbol string) (market.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx < 0 {
		return market.PricePoint{}, ErrNoData
	}
	bars, ok := s.bars[symbol]
	if !ok {
		return market.PricePoint{}, ErrNoData
	}
	bar := bars[s.idx]
	return market.PricePoint{Symbol: symbol, Time: bar.Time, Price: bar.Close}, nil
}
