package engine

import (
	"sync"
	"time"
)

// BellStatus describes what happened to a single bell.
type BellStatus string

const (
	BellStatusPlayed     BellStatus = "played"
	BellStatusSilenced   BellStatus = "silenced"
	BellStatusUnresolved BellStatus = "unresolved"
	BellStatusDebounced  BellStatus = "debounced"

	historyLimit = 64
)

// BellRecord captures the outcome of one pass through the pipeline.
type BellRecord struct {
	Timestamp time.Time  `json:"timestamp"`
	Address   string     `json:"address"`
	Class     string     `json:"class,omitempty"`
	Title     string     `json:"title,omitempty"`
	Rule      string     `json:"rule,omitempty"`
	Sound     string     `json:"sound,omitempty"`
	Volume    float64    `json:"volume,omitempty"`
	Status    BellStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
}

type bellLog struct {
	mu      sync.Mutex
	entries []BellRecord
	limit   int
}

func newBellLog(limit int) *bellLog {
	if limit <= 0 {
		limit = historyLimit
	}
	return &bellLog{limit: limit}
}

func (l *bellLog) record(entry BellRecord) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == l.limit {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.limit-1]
	}
	l.entries = append(l.entries, entry)
}

func (l *bellLog) snapshot() []BellRecord {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	return append([]BellRecord(nil), l.entries...)
}
