package runner

// PairState tracks where a pair is in its submit/reconcile cycle.
// Only IDLE pairs are picked up by a tick, so a slow broker call on
// one pair can never double-submit it.
type PairState string

const (
	StateIdle           PairState = "IDLE"
	StateSignalPending  PairState = "SIGNAL_PENDING"
	StateOrderSubmitted PairState = "ORDER_SUBMITTED"
	StateReconciling    PairState = "RECONCILING"
	StateFailed         PairState = "FAILED"
)

func (r *Runner) setState(pairID string, s PairState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.states == nil {
		r.states = make(map[string]PairState)
	}
	r.states[pairID] = s
}

// casState transitions pairID from one state to another, reporting
// whether the swap happened. Unknown pairs count as IDLE.
func (r *Runner) casState(pairID string, from, to PairState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.states == nil {
		r.states = make(map[string]PairState)
	}
	cur, ok := r.states[pairID]
	if !ok {
		cur = StateIdle
	}
	if cur != from {
		return false
	}
	r.states[pairID] = to
	return true
}

// State reports the current cycle state for a pair.
func (r *Runner) State(pairID string) PairState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[pairID]; ok {
		return s
	}
	return StateIdle
}
