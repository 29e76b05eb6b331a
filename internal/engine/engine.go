package engine

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/onion108/onionbell/internal/ipc"
	"github.com/onion108/onionbell/internal/metrics"
	"github.com/onion108/onionbell/internal/rules"
	"github.com/onion108/onionbell/internal/state"
	"github.com/onion108/onionbell/internal/util"
)

// BellSource yields bells until the connection is lost.
type BellSource interface {
	Next(ctx context.Context) (ipc.Bell, error)
}

// Resolver maps a bell address to the window's attributes.
type Resolver interface {
	Resolve(ctx context.Context, address string) (state.Window, error)
}

// Player starts playback without waiting for it.
type Player interface {
	Play(path string, volume float64)
}

// debounceSweepSize bounds the per-address map before stale entries are dropped.
const debounceSweepSize = 256

// Engine drives bells through resolution, rule selection and playback.
type Engine struct {
	source   BellSource
	resolver Resolver
	player   Player
	logger   *util.Logger
	metrics  *metrics.Collector

	mu       sync.Mutex
	set      *rules.Set
	debounce time.Duration
	lastBell map[string]time.Time
	history  *bellLog
	started  time.Time
	now      func() time.Time
}

// New creates a new engine instance. A zero debounce plays every bell.
func New(source BellSource, resolver Resolver, player Player, logger *util.Logger, set *rules.Set, collector *metrics.Collector, debounce time.Duration) *Engine {
	if set == nil {
		set = &rules.Set{}
	}
	return &Engine{
		source:   source,
		resolver: resolver,
		player:   player,
		logger:   logger,
		metrics:  collector,
		set:      set,
		debounce: debounce,
		lastBell: make(map[string]time.Time),
		history:  newBellLog(0),
		started:  time.Now(),
		now:      time.Now,
	}
}

// Run handles bells one at a time until ctx is cancelled or the listener
// fails. Per-bell failures are logged and skipped; a lost event connection or
// a vanished compositor ends the loop.
func (e *Engine) Run(ctx context.Context) error {
	for {
		bell, err := e.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "bell listener")
		}
		e.logger.Trace("bell.received", zap.String("address", bell.Address))
		if _, err := e.handleBell(ctx, bell.Address, true); err != nil && errors.Is(err, ipc.ErrCompositorGone) {
			return err
		}
	}
}

// Ring runs one pipeline iteration for address as if it had rung, bypassing
// the debounce window.
func (e *Engine) Ring(ctx context.Context, address string) (BellRecord, error) {
	return e.handleBell(ctx, address, false)
}

// handleBell returns the resolve error, if any, so callers can tell a
// vanished compositor from a dropped bell.
func (e *Engine) handleBell(ctx context.Context, address string, debounce bool) (BellRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	rec := BellRecord{Timestamp: now, Address: address}

	if debounce && e.debouncedLocked(address, now) {
		rec.Status = BellStatusDebounced
		e.metrics.RecordDebounced()
		e.history.record(rec)
		e.logger.Debugf("bell from %s debounced", address)
		return rec, nil
	}

	win, err := e.resolver.Resolve(ctx, address)
	if err != nil {
		rec.Status = BellStatusUnresolved
		rec.Error = err.Error()
		e.metrics.RecordResolveError()
		e.history.record(rec)
		switch {
		case errors.Is(err, ipc.ErrCompositorGone):
			e.logger.Errorf("bell from %s: %v", address, err)
		case errors.Is(err, ipc.ErrWindowNotFound):
			e.logger.Debugf("bell from %s dropped: %v", address, err)
		default:
			e.logger.Warnf("bell from %s dropped: %v", address, err)
		}
		return rec, err
	}

	rec.Class = win.Class
	rec.Title = win.Title
	sel := rules.Select(win, e.set)
	rec.Rule = sel.RuleName
	rec.Sound = sel.Sound
	rec.Volume = sel.Volume
	if e.logger.Enabled(util.LevelTrace) {
		for _, tr := range rules.Explain(win, e.set) {
			e.logger.Trace("rule.checked",
				zap.String("address", address),
				zap.String("rule", tr.Rule),
				zap.Bool("matched", tr.Matched),
				zap.Bool("selected", tr.Selected),
				zap.Strings("failed", tr.Failed),
			)
		}
	}
	e.metrics.RecordSelection(sel.Rule, sel.RuleName, sel.Silent())

	if sel.Silent() {
		rec.Status = BellStatusSilenced
		e.logger.Debugf("bell from %s (%s) silenced by %s", address, win.Class, sel.RuleName)
	} else {
		e.player.Play(sel.Sound, sel.Volume)
		rec.Status = BellStatusPlayed
		e.logger.Debugf("bell from %s (%s) matched %s, playing %s at %.2f", address, win.Class, sel.RuleName, sel.Sound, sel.Volume)
	}
	e.history.record(rec)
	return rec, nil
}

func (e *Engine) debouncedLocked(address string, now time.Time) bool {
	if e.debounce <= 0 {
		return false
	}
	key := state.NormalizeAddress(address)
	if last, ok := e.lastBell[key]; ok && now.Sub(last) < e.debounce {
		return true
	}
	if len(e.lastBell) >= debounceSweepSize {
		for k, t := range e.lastBell {
			if now.Sub(t) >= e.debounce {
				delete(e.lastBell, k)
			}
		}
	}
	e.lastBell[key] = now
	return false
}

// Explain evaluates win against the loaded rules without playing anything.
func (e *Engine) Explain(win state.Window) (rules.Selection, []rules.Trace) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return rules.Select(win, e.set), rules.Explain(win, e.set)
}

// Status summarises the running engine.
type Status struct {
	Started  time.Time        `json:"started"`
	Uptime   string           `json:"uptime"`
	Rules    int              `json:"rules"`
	Sound    string           `json:"sound,omitempty"`
	Debounce string           `json:"debounce,omitempty"`
	Metrics  metrics.Snapshot `json:"metrics"`
	Recent   []BellRecord     `json:"recent,omitempty"`
}

// Status returns counters and the most recent bells.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{
		Started: e.started,
		Uptime:  e.now().Sub(e.started).Round(time.Second).String(),
		Rules:   len(e.set.Rules),
		Sound:   e.set.Sound,
	}
	if e.debounce > 0 {
		st.Debounce = e.debounce.String()
	}
	e.mu.Unlock()
	st.Metrics = e.metrics.Snapshot()
	st.Recent = e.history.snapshot()
	return st
}

// History returns the most recent bells, oldest first.
func (e *Engine) History() []BellRecord {
	return e.history.snapshot()
}
