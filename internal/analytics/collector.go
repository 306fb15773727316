package analytics

import (
	"sync/atomic"
	"time"

	"github.com/poormans/rategate/internal/domain"
)

// Collector counts decisions in-process. Record runs on the request path
// and only touches atomics; the flusher drains the counts into minute
// buckets out of band.
type Collector struct {
	total   atomic.Int64
	allowed atomic.Int64
	denied  atomic.Int64
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Record(allowed bool) {
	c.total.Add(1)
	if allowed {
		c.allowed.Add(1)
	} else {
		c.denied.Add(1)
	}
}

// Drain swaps the counters to zero and returns them as the stats row for
// the minute containing now.
func (c *Collector) Drain(now time.Time) domain.StatsRow {
	return domain.StatsRow{
		Minute:  now.Truncate(time.Minute),
		Total:   c.total.Swap(0),
		Allowed: c.allowed.Swap(0),
		Denied:  c.denied.Swap(0),
	}
}
