package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pairbot/market"
)

// Binance streams trades from the public combined-stream websocket
// into a quote store. Latest serves from the store and reports
// ErrNoData while a symbol is absent or stale.
type Binance struct {
	symbols []string
	store   *market.QuoteStore
	log     zerolog.Logger
	url     string
	maxAge  time.Duration
	now     func() time.Time
}

const (
	binanceStreamURL = "wss://stream.binance.com:9443/stream"
	binanceMaxAge    = 15 * time.Second
)

func NewBinance(symbols []string, log zerolog.Logger) *Binance {
	return &Binance{
		symbols: dedupeSymbols(symbols),
		store:   market.NewQuoteStore(),
		log:     log,
		url:     binanceStreamURL,
		maxAge:  binanceMaxAge,
		now:     time.Now,
	}
}

// SetMaxAge overrides how stale a quote may be before Latest treats
// the symbol as having no data.
func (b *Binance) SetMaxAge(d time.Duration) {
	if d > 0 {
		b.maxAge = d
	}
}

// Latest returns the most recent streamed trade price for symbol.
func (b *Binance) Latest(_ context.Context, symbol string) (market.PricePoint, error) {
	pp, ok := b.store.Get(symbol)
	if !ok {
		return market.PricePoint{}, ErrNoData
	}
	if b.now().Sub(pp.Time) > b.maxAge {
		return market.PricePoint{}, ErrNoData
	}
	return pp, nil
}

type binanceEnvelope struct {
	Stream string       `json:"stream"`
	Data   binanceTrade `json:"data"`
}

type binanceTrade struct {
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// Run connects and pumps trades into the store until ctx is done,
// reconnecting with backoff on stream failures.
func (b *Binance) Run(ctx context.Context) error {
	if len(b.symbols) == 0 {
		return fmt.Errorf("binance feed requires at least one symbol")
	}

	streams := make([]string, len(b.symbols))
	for i, sym := range b.symbols {
		streams[i] = strings.ToLower(sym) + "@trade"
	}
	url := fmt.Sprintf("%s?streams=%s", b.url, strings.Join(streams, "/"))

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := b.consume(ctx, url)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.log.Warn().Err(err).Msg("binance feed disconnected, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
	}
}

func (b *Binance) consume(ctx context.Context, url string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	b.log.Info().Strs("symbols", b.symbols).Msg("connected binance feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					b.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env binanceEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			b.log.Warn().Err(err).Msg("failed to decode binance message")
			continue
		}
		px, err := strconv.ParseFloat(env.Data.Price, 64)
		if err != nil {
			b.log.Warn().Str("price", env.Data.Price).Msg("invalid price from binance")
			continue
		}
		b.store.Set(market.PricePoint{
			Symbol: parseStreamSymbol(env.Stream),
			Time:   time.UnixMilli(env.Data.TradeTime).UTC(),
			Price:  px,
		})
	}
}

func parseStreamSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToUpper(stream)
	}
	return strings.ToUpper(parts[0])
}
