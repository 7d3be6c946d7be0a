package metrics

import (
	"sync/atomic"
	"time"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Cart counts reconciliation events of one cart manager.
type Cart struct {
	Fetches        Counter
	DroppedLines   Counter
	StockEvents    Counter
	OutOfStock     Counter
	StaleResponses Counter
	Rejected       Counter
}

func (c *Cart) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"fetches":         c.Fetches.Load(),
		"dropped_lines":   c.DroppedLines.Load(),
		"stock_events":    c.StockEvents.Load(),
		"out_of_stock":    c.OutOfStock.Load(),
		"stale_responses": c.StaleResponses.Load(),
		"rejected":        c.Rejected.Load(),
	}
}
