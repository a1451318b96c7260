package dyntree

import "time"

const DefaultRebalancePeriod = 200 * time.Millisecond

// RebalanceTimer is a countdown restarted each time it elapses. A zero period
// never elapses.
type RebalanceTimer struct {
	period    time.Duration
	remaining time.Duration
}

func NewRebalanceTimer(period time.Duration) RebalanceTimer {
	if period < 0 {
		period = 0
	}

	return RebalanceTimer{
		period:    period,
		remaining: period,
	}
}

func (t *RebalanceTimer) Update(elapsed time.Duration) {
	if t.period == 0 {
		return
	}
	t.remaining -= elapsed
}

func (t *RebalanceTimer) Passed() bool {
	return t.period != 0 && t.remaining <= 0
}

func (t *RebalanceTimer) Reset() {
	t.remaining = t.period
}

func (t *RebalanceTimer) Period() time.Duration {
	return t.period
}
