package poller

import "time"

// TickSource abstracts the timer driving the poll loop so tests can
// inject ticks deterministically.
type TickSource interface {
	C() <-chan time.Time
	Stop()
}

// TickerSource wraps a real time.Ticker.
type TickerSource struct {
	t *time.Ticker
}

// NewTickerSource creates a ticker-backed tick source.
func NewTickerSource(interval time.Duration) *TickerSource {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &TickerSource{t: time.NewTicker(interval)}
}

func (s *TickerSource) C() <-chan time.Time { return s.t.C }

func (s *TickerSource) Stop() { s.t.Stop() }

// ManualSource fires only when Tick is called. Test use.
type ManualSource struct {
	ch chan time.Time
}

// NewManualSource creates a manually driven tick source.
func NewManualSource() *ManualSource {
	return &ManualSource{ch: make(chan time.Time, 1)}
}

func (s *ManualSource) C() <-chan time.Time { return s.ch }

func (s *ManualSource) Stop() {}

// Tick fires one tick.
func (s *ManualSource) Tick() { s.ch <- time.Now() }
