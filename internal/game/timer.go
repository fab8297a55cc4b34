package game

import (
	"sync"
	"time"
)

// Ticker abstracts time.Ticker so tests can drive countdown ticks manually.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewTicker adapts time.NewTicker to the Ticker interface. It is the
// default ticker factory.
func NewTicker(d time.Duration) Ticker {
	return tickerAdapter{time.NewTicker(d)}
}

type tickerAdapter struct {
	t *time.Ticker
}

func (t tickerAdapter) C() <-chan time.Time { return t.t.C }

func (t tickerAdapter) Stop() { t.t.Stop() }

// countdown is the cancellable handle for one question's timer goroutine.
// Stop is idempotent; the goroutine exits on the next select once stopped.
type countdown struct {
	stop chan struct{}
	once sync.Once
}

func newCountdown() *countdown {
	return &countdown{stop: make(chan struct{})}
}

func (c *countdown) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *countdown) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}
