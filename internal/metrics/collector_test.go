package metrics

import (
	"sync"
	"testing"
)

func TestCollectorRecordsCounters(t *testing.T) {
	c := NewCollector()
	c.RecordSelection(1, "kitty", false)
	c.RecordSelection(1, "kitty", false)
	c.RecordSelection(-1, "default", true)
	c.RecordSelection(0, "discord", true)
	c.RecordResolveError()
	c.RecordPlaybackError()
	c.RecordDebounced()

	snap := c.Snapshot()
	if snap.Started.IsZero() {
		t.Fatalf("expected start time")
	}
	want := Totals{Bells: 4, Played: 2, Silenced: 2, ResolveErrors: 1, PlaybackErrors: 1, Debounced: 1}
	if snap.Totals != want {
		t.Fatalf("unexpected totals: %#v", snap.Totals)
	}
	if len(snap.Rules) != 3 {
		t.Fatalf("expected three rules in snapshot, got %d", len(snap.Rules))
	}
	order := []string{snap.Rules[0].Rule, snap.Rules[1].Rule, snap.Rules[2].Rule}
	if order[0] != "discord" || order[1] != "kitty" || order[2] != "default" {
		t.Fatalf("expected declaration order with default last, got %v", order)
	}
	kitty := snap.Rules[1]
	if kitty.Bells != 2 || kitty.Played != 2 || kitty.Silenced != 0 || kitty.LastBell.IsZero() {
		t.Fatalf("unexpected rule counters: %#v", kitty)
	}
	if snap.LastErrored.IsZero() {
		t.Fatalf("expected error timestamp to be recorded")
	}
}

func TestCollectorDebounceIsNotAnError(t *testing.T) {
	c := NewCollector()
	c.RecordDebounced()
	if snap := c.Snapshot(); !snap.LastErrored.IsZero() || snap.Totals.Debounced != 1 {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
}

func TestCollectorConcurrentUpdates(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordSelection(0, "kitty", false)
				c.RecordPlaybackError()
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()
	snap := c.Snapshot()
	if snap.Totals.Played != 800 || snap.Totals.PlaybackErrors != 800 {
		t.Fatalf("lost updates: %#v", snap.Totals)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordSelection(0, "kitty", false)
	c.RecordResolveError()
	if snap := c.Snapshot(); snap.Totals.Bells != 0 {
		t.Fatalf("expected empty snapshot")
	}
}
