package history

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"pairbot/feed"
)

var barHeader = []string{"time", "open", "high", "low", "close", "volume"}

// WriteBars writes a bar file in the replayer's format. The write
// goes through a .part rename so readers never see a partial file.
func WriteBars(path string, bars []feed.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(barHeader); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, bar := range bars {
		row := []string{
			bar.Time.UTC().Format(time.RFC3339),
			num(bar.Open), num(bar.High), num(bar.Low), num(bar.Close), num(bar.Volume),
		}
		if err := w.Write(row); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("flush bars: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
