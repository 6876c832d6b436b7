// Package history downloads Dukascopy tick archives and flattens them
// into the bar files the CSV replayer consumes.
package history

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/ulikunitz/xz/lzma"
)

const DefaultBaseURL = "https://datafeed.dukascopy.com/datafeed"

// Downloader fetches hourly .bi5 archives. Zero values get sensible
// defaults, so a bare &Downloader{Log: log} works.
type Downloader struct {
	BaseURL string
	Client  *http.Client
	Workers int
	// Sleep is a polite delay before each request.
	Sleep time.Duration
	// Scale divides the integer wire prices. 1e5 suits most FX
	// symbols; JPY crosses use 1e3.
	Scale float64
	// BarInterval is the aggregation bucket, one minute by default.
	BarInterval time.Duration
	Log         zerolog.Logger
}

// Stats summarizes one fetch: hours landed, hours the feed has no
// data for, and hours that errored.
type Stats struct {
	OK      int
	Missing int
	Failed  int
	Ticks   int
	Bars    int
}

func (d *Downloader) baseURL() string {
	if d.BaseURL != "" {
		return strings.TrimRight(d.BaseURL, "/")
	}
	return DefaultBaseURL
}

func (d *Downloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: 45 * time.Second}
}

func (d *Downloader) workers() int {
	if d.Workers > 0 {
		return d.Workers
	}
	n := runtime.NumCPU()
	if n < 4 {
		n = 4
	}
	return n
}

func (d *Downloader) scale() float64 {
	if d.Scale > 0 {
		return d.Scale
	}
	return 1e5
}

func (d *Downloader) barInterval() time.Duration {
	if d.BarInterval > 0 {
		return d.BarInterval
	}
	return time.Minute
}

// FetchRange downloads [start, end) hour by hour, decodes the ticks
// and writes <dir>/<SYMBOL>.csv. Already-cached hours are not fetched
// again, so reruns only pull what is new.
func (d *Downloader) FetchRange(ctx context.Context, symbol, dir string, start, end time.Time) (Stats, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Stats{}, fmt.Errorf("history: symbol required")
	}
	start = start.UTC().Truncate(time.Hour)
	end = end.UTC().Truncate(time.Hour)
	if !end.After(start) {
		return Stats{}, fmt.Errorf("history: end %s must be after start %s", end, start)
	}

	var hours []time.Time
	for t := start; t.Before(end); t = t.Add(time.Hour) {
		hours = append(hours, t)
	}
	d.Log.Info().Str("symbol", symbol).Time("start", start).Time("end", end).
		Int("hours", len(hours)).Msg("fetching tick history")

	var (
		mu    sync.Mutex
		stats Stats
		ticks []Tick
	)

	jobCh := make(chan time.Time)
	var wg sync.WaitGroup
	for i := 0; i < d.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for hour := range jobCh {
				hourTicks, outcome := d.fetchHour(ctx, symbol, dir, hour)
				mu.Lock()
				switch outcome {
				case hourOK:
					stats.OK++
					ticks = append(ticks, hourTicks...)
				case hourMissing:
					stats.Missing++
				default:
					stats.Failed++
				}
				mu.Unlock()
			}
		}()
	}
	for _, hour := range hours {
		jobCh <- hour
	}
	close(jobCh)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	sort.Slice(ticks, func(i, j int) bool { return ticks[i].Time.Before(ticks[j].Time) })
	stats.Ticks = len(ticks)

	bars := AggregateBars(ticks, d.barInterval())
	stats.Bars = len(bars)
	if len(bars) == 0 {
		d.Log.Warn().Str("symbol", symbol).Msg("no ticks decoded, bar file not written")
		return stats, nil
	}

	path := filepath.Join(dir, symbol+".csv")
	if err := WriteBars(path, bars); err != nil {
		return stats, fmt.Errorf("write bars: %w", err)
	}
	d.Log.Info().Str("path", path).Int("bars", len(bars)).Int("ticks", len(ticks)).
		Int("missing_hours", stats.Missing).Msg("bar file written")
	return stats, nil
}

type hourOutcome int

const (
	hourOK hourOutcome = iota
	hourMissing
	hourFailed
)

func (d *Downloader) fetchHour(ctx context.Context, symbol, dir string, hour time.Time) ([]Tick, hourOutcome) {
	if d.Sleep > 0 {
		time.Sleep(d.Sleep)
	}

	cache := d.cachePath(dir, symbol, hour)
	status, err := d.downloadIfMissing(ctx, tickURL(d.baseURL(), symbol, hour), cache)
	if err != nil {
		d.Log.Warn().Err(err).Str("symbol", symbol).Time("hour", hour).Msg("hour download failed")
		return nil, hourFailed
	}
	if status == http.StatusNotFound {
		d.Log.Debug().Str("symbol", symbol).Time("hour", hour).Msg("no data for hour")
		return nil, hourMissing
	}

	ticks, err := d.decodeHour(cache, hour)
	if err != nil {
		d.Log.Warn().Err(err).Str("path", cache).Msg("hour decode failed")
		return nil, hourFailed
	}
	return ticks, hourOK
}

func (d *Downloader) cachePath(dir, symbol string, hour time.Time) string {
	return filepath.Join(dir, "raw", symbol,
		fmt.Sprintf("%04d", hour.Year()),
		fmt.Sprintf("%02d", int(hour.Month())),
		fmt.Sprintf("%02d", hour.Day()),
		fmt.Sprintf("%02dh_ticks.bi5", hour.Hour()))
}

// tickURL builds the archive URL. Dukascopy uses zero-based months in
// the path: Jan=00 .. Dec=11.
func tickURL(base, symbol string, t time.Time) string {
	return fmt.Sprintf("%s/%s/%04d/%02d/%02d/%02dh_ticks.bi5",
		base, symbol, t.Year(), int(t.Month())-1, t.Day(), t.Hour())
}

// downloadIfMissing pulls url into dst unless a non-empty copy is
// already cached. Writes land in a .part file first so a killed run
// never leaves a truncated archive behind.
func (d *Downloader) downloadIfMissing(ctx context.Context, url, dst string) (int, error) {
	if st, err := os.Stat(dst); err == nil && st.Size() > 0 {
		return http.StatusOK, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "pairbot-history/1.0")

	resp, err := d.client().Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return http.StatusNotFound, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("http status %d", resp.StatusCode)
	}

	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return resp.StatusCode, err
	}
	_, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(tmp)
		return resp.StatusCode, copyErr
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return resp.StatusCode, closeErr
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}

// decodeHour reads one cached .bi5 and expands it to ticks. An empty
// archive is a quiet hour, not an error.
func (d *Downloader) decodeHour(path string, hour time.Time) ([]Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, nil
	}

	r, err := lzma.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open lzma: %w", err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return DecodeTicks(hour, raw, d.scale())
}
