package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// persistedState is the on-disk form of the ledger. Everything needed
// to resume mid-flight transitions is kept: order mappings and applied
// fill sequences included.
type persistedState struct {
	SavedAt      time.Time           `json:"saved_at"`
	Active       map[string]Position `json:"active"` // pair id -> position
	Closed       []Position          `json:"closed"`
	RealizedPL   float64             `json:"realized_pl"`
	DayKey       string              `json:"day_key"`
	DayRealized  float64             `json:"day_realized_pl"`
	OrderRefs    map[string]orderRef `json:"order_refs"`
	AppliedFills map[string][]int    `json:"applied_fills"`
}

// SaveSnapshot writes the full ledger state to path. The write goes
// through a temp file and rename so a crash never leaves a torn
// snapshot.
func (l *Ledger) SaveSnapshot(path string) error {
	l.mu.Lock()
	st := persistedState{
		SavedAt:      l.now().UTC(),
		Active:       make(map[string]Position, len(l.active)),
		Closed:       append([]Position(nil), l.closed...),
		RealizedPL:   l.realized,
		DayKey:       l.dayKey,
		DayRealized:  l.dayRealized,
		OrderRefs:    make(map[string]orderRef, len(l.orders)),
		AppliedFills: make(map[string][]int, len(l.applied)),
	}
	for pairID, pos := range l.active {
		st.Active[pairID] = *pos
	}
	for oid, ref := range l.orders {
		st.OrderRefs[oid] = ref
	}
	for oid, seqs := range l.applied {
		out := make([]int, 0, len(seqs))
		for seq := range seqs {
			out = append(out, seq)
		}
		sort.Ints(out)
		st.AppliedFills[oid] = out
	}
	l.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("snapshot dir: %w", err)
		}
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot replaces the in-memory state with the snapshot at
// path. Statuses and quantities come back exactly as saved.
func (l *Ledger) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.active = make(map[string]*Position, len(st.Active))
	for pairID, pos := range st.Active {
		p := pos
		l.active[pairID] = &p
	}
	l.closed = append([]Position(nil), st.Closed...)
	l.realized = st.RealizedPL
	l.dayKey = st.DayKey
	l.dayRealized = st.DayRealized

	l.orders = make(map[string]orderRef, len(st.OrderRefs))
	for oid, ref := range st.OrderRefs {
		l.orders[oid] = ref
	}
	l.applied = make(map[string]map[int]bool, len(st.AppliedFills))
	for oid, seqs := range st.AppliedFills {
		m := make(map[int]bool, len(seqs))
		for _, seq := range seqs {
			m[seq] = true
		}
		l.applied[oid] = m
	}
	return nil
}
