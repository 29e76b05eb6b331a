package metrics

import (
	"sort"
	"sync"
	"time"
)

// Collector aggregates in-memory counters for bell handling.
type Collector struct {
	mu      sync.RWMutex
	started time.Time
	rules   map[string]*RuleMetrics
	global  Totals
	lastErr time.Time
}

// RuleMetrics captures per-rule counters. The fallback sound is recorded
// under the "default" rule.
type RuleMetrics struct {
	Index    int       `json:"index"`
	Rule     string    `json:"rule"`
	Bells    uint64    `json:"bells"`
	Played   uint64    `json:"played"`
	Silenced uint64    `json:"silenced"`
	LastBell time.Time `json:"lastBell,omitempty"`
}

// Totals aggregates counters across all rules plus the per-event failures
// that never reach a rule.
type Totals struct {
	Bells          uint64 `json:"bells"`
	Played         uint64 `json:"played"`
	Silenced       uint64 `json:"silenced"`
	ResolveErrors  uint64 `json:"resolveErrors"`
	PlaybackErrors uint64 `json:"playbackErrors"`
	Debounced      uint64 `json:"debounced"`
}

// Snapshot is the serializable view of the current metrics state.
type Snapshot struct {
	Started     time.Time     `json:"started"`
	LastErrored time.Time     `json:"lastErrored,omitempty"`
	Totals      Totals        `json:"totals"`
	Rules       []RuleMetrics `json:"rules,omitempty"`
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		started: time.Now(),
		rules:   make(map[string]*RuleMetrics),
	}
}

// RecordSelection counts a bell resolved to a rule. index is -1 for the
// default sound; silent is true when nothing is played.
func (c *Collector) RecordSelection(index int, rule string, silent bool) {
	if c == nil {
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	metrics, ok := c.rules[rule]
	if !ok {
		metrics = &RuleMetrics{Index: index, Rule: rule}
		c.rules[rule] = metrics
	}
	metrics.Bells++
	metrics.LastBell = now
	if silent {
		metrics.Silenced++
	} else {
		metrics.Played++
	}
}

// RecordResolveError counts a bell dropped because the window could not be resolved.
func (c *Collector) RecordResolveError() {
	c.updateGlobal(func(t *Totals) { t.ResolveErrors++ }, true)
}

// RecordPlaybackError counts a player that failed to start or exited non-zero.
func (c *Collector) RecordPlaybackError() {
	c.updateGlobal(func(t *Totals) { t.PlaybackErrors++ }, true)
}

// RecordDebounced counts a bell dropped by the debounce window.
func (c *Collector) RecordDebounced() {
	c.updateGlobal(func(t *Totals) { t.Debounced++ }, false)
}

func (c *Collector) updateGlobal(mutate func(*Totals), failure bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	mutate(&c.global)
	if failure {
		c.lastErr = time.Now()
	}
}

// Snapshot returns the current counters for serialization or display.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{
		Started:     c.started,
		LastErrored: c.lastErr,
		Totals:      c.global,
	}
	if len(c.rules) == 0 {
		return snap
	}
	snap.Rules = make([]RuleMetrics, 0, len(c.rules))
	for _, metrics := range c.rules {
		clone := *metrics
		snap.Rules = append(snap.Rules, clone)
		snap.Totals.Bells += clone.Bells
		snap.Totals.Played += clone.Played
		snap.Totals.Silenced += clone.Silenced
	}
	// Declaration order, default last.
	sort.Slice(snap.Rules, func(i, j int) bool {
		a, b := snap.Rules[i], snap.Rules[j]
		if (a.Index < 0) != (b.Index < 0) {
			return b.Index < 0
		}
		if a.Index == b.Index {
			return a.Rule < b.Rule
		}
		return a.Index < b.Index
	})
	return snap
}
