package history

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"pairbot/feed"
)

const tickRecordSize = 20

// Tick is one decoded Dukascopy tick.
type Tick struct {
	Time   time.Time
	Bid    float64
	Ask    float64
	BidVol float64
	AskVol float64
}

// Mid is the bid/ask midpoint.
func (t Tick) Mid() float64 { return (t.Bid + t.Ask) / 2 }

// DecodeTicks expands a decompressed .bi5 payload. Each record is 20
// bytes big-endian: ms offset into the hour, ask, bid as scaled
// integers, then ask and bid volumes as float32.
func DecodeTicks(hour time.Time, raw []byte, scale float64) ([]Tick, error) {
	if len(raw)%tickRecordSize != 0 {
		return nil, fmt.Errorf("payload length %d is not a multiple of %d", len(raw), tickRecordSize)
	}
	ticks := make([]Tick, 0, len(raw)/tickRecordSize)
	for off := 0; off < len(raw); off += tickRecordSize {
		rec := raw[off : off+tickRecordSize]
		ms := binary.BigEndian.Uint32(rec[0:4])
		ask := binary.BigEndian.Uint32(rec[4:8])
		bid := binary.BigEndian.Uint32(rec[8:12])
		askVol := math.Float32frombits(binary.BigEndian.Uint32(rec[12:16]))
		bidVol := math.Float32frombits(binary.BigEndian.Uint32(rec[16:20]))
		ticks = append(ticks, Tick{
			Time:   hour.Add(time.Duration(ms) * time.Millisecond),
			Ask:    float64(ask) / scale,
			Bid:    float64(bid) / scale,
			AskVol: float64(askVol),
			BidVol: float64(bidVol),
		})
	}
	return ticks, nil
}

// AggregateBars buckets time-sorted ticks into fixed bars over the
// midpoint. Quiet buckets simply produce no bar.
func AggregateBars(ticks []Tick, interval time.Duration) []feed.Bar {
	if len(ticks) == 0 || interval <= 0 {
		return nil
	}
	var bars []feed.Bar
	for _, tk := range ticks {
		bucket := tk.Time.Truncate(interval)
		mid := tk.Mid()
		if len(bars) == 0 || !bars[len(bars)-1].Time.Equal(bucket) {
			bars = append(bars, feed.Bar{Time: bucket, Open: mid, High: mid, Low: mid, Close: mid})
		}
		b := &bars[len(bars)-1]
		if mid > b.High {
			b.High = mid
		}
		if mid < b.Low {
			b.Low = mid
		}
		b.Close = mid
		b.Volume += tk.BidVol + tk.AskVol
	}
	return bars
}
