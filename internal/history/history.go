package history

import (
	"swapguard/internal/domain"

	"github.com/holiman/uint256"
)

// Default number of samples retained per pool
const DefaultCapacity = 100

// Log is the bounded, chronological price log of one pool.
// Samples are never mutated after insertion; the oldest is evicted once the cap is exceeded.
type Log struct {
	Samples []domain.PriceSample
}

// Record appends a sample and evicts from the front until len <= capacity
func (l *Log) Record(price *uint256.Int, timestamp uint64, capacity int) domain.PriceSample {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	sample := domain.PriceSample{
		Price:     domain.CopyU256(price),
		Timestamp: timestamp,
	}
	l.Samples = append(l.Samples, sample)

	if over := len(l.Samples) - capacity; over > 0 {
		// shift-left compaction keeps the backing array bounded
		n := copy(l.Samples, l.Samples[over:])
		for i := n; i < len(l.Samples); i++ {
			l.Samples[i] = domain.PriceSample{}
		}
		l.Samples = l.Samples[:n]
	}

	return sample
}

// Recent returns the last min(limit, len) samples in chronological order
func (l *Log) Recent(limit int) []domain.PriceSample {
	if l == nil || limit <= 0 || len(l.Samples) == 0 {
		return []domain.PriceSample{}
	}
	if limit > len(l.Samples) {
		limit = len(l.Samples)
	}

	out := make([]domain.PriceSample, limit)
	copy(out, l.Samples[len(l.Samples)-limit:])
	return out
}

func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Samples)
}

// Latest returns the newest sample, ok=false on an empty log
func (l *Log) Latest() (domain.PriceSample, bool) {
	if l.Len() == 0 {
		return domain.PriceSample{}, false
	}
	return l.Samples[len(l.Samples)-1], true
}
