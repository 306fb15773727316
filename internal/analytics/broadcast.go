package analytics

import (
	"sync"
	"time"

	"github.com/poormans/rategate/internal/domain"
)

const (
	FrameSnapshot = "snapshot"
	FrameUpdate   = "update"
)

// Frame is one message on the analytics stream. Snapshot frames carry the
// series and recent logs; update frames carry the freshly flushed delta.
type Frame struct {
	Type       string              `json:"type"`
	At         time.Time           `json:"at"`
	Summary    domain.Summary      `json:"summary"`
	Series     []domain.StatsRow   `json:"series,omitempty"`
	RecentLogs []domain.TrafficLog `json:"recentLogs,omitempty"`
	Delta      *domain.StatsRow    `json:"delta,omitempty"`
}

// Broadcaster fans frames out to stream subscribers. A subscriber that
// cannot keep up loses frames, not the connection.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Frame]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Frame]struct{})}
}

// Subscribe registers a listener. The returned cancel must be called when
// the subscriber goes away.
func (b *Broadcaster) Subscribe() (<-chan Frame, func()) {
	ch := make(chan Frame, 8)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Broadcaster) Publish(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- f:
		default: // slow subscriber, drop the frame
		}
	}
}

func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
