package dedupe

import (
	"context"
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

const DefaultTTL = 24 * time.Hour

// Memory is the single-instance deduper: event id -> expiry
type Memory struct {
	log logger.Logger
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	items   map[string]time.Time
	stopCh  chan struct{}
	stopped bool
}

// NewMemory keeps ids for ttl; janitorEvery=0 disables background cleanup
func NewMemory(log logger.Logger, ttl, janitorEvery time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		log:    log,
		ttl:    ttl,
		now:    time.Now,
		items:  make(map[string]time.Time, 1024),
		stopCh: make(chan struct{}),
	}

	if janitorEvery > 0 {
		go m.janitor(janitorEvery)
	}
	return m
}

func (m *Memory) Seen(_ context.Context, id string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if exp, ok := m.items[id]; ok && exp.After(now) {
		return true, nil
	}
	m.items[id] = now.Add(m.ttl)
	return false, nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// sweep drops expired ids and reports how many were removed
func (m *Memory) sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k, exp := range m.items {
		if !exp.After(now) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

func (m *Memory) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			if n := m.sweep(); n > 0 {
				m.log.Debugf("Dedupe janitor removed %d expired ids", n)
			}
		}
	}
}

// Close stops the janitor (if running)
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		close(m.stopCh)
		m.stopped = true
	}
}
