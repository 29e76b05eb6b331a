package engine

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/onion108/onionbell/internal/ipc"
	"github.com/onion108/onionbell/internal/metrics"
	"github.com/onion108/onionbell/internal/state"
)

type countingPlayer struct {
	mu    sync.Mutex
	plays []string
}

func (p *countingPlayer) Play(path string, _ float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays = append(p.plays, path)
}

func (p *countingPlayer) Plays() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.plays...)
}

type tableResolver map[string]state.Window

func (r tableResolver) Resolve(_ context.Context, address string) (state.Window, error) {
	win, ok := r[address]
	if !ok {
		return state.Window{}, errors.Mark(errors.Newf("no client %s", address), ipc.ErrWindowNotFound)
	}
	return win, nil
}

var _ = Describe("Event loop", func() {
	var (
		player    *countingPlayer
		resolver  tableResolver
		collector *metrics.Collector
	)

	BeforeEach(func() {
		player = &countingPlayer{}
		resolver = tableResolver{
			"kitty":   {Class: "kitty"},
			"float":   {Class: "kitty", Floating: true},
			"discord": {Class: "discord"},
		}
		collector = metrics.NewCollector()
	})

	run := func(source *scriptedSource) error {
		eng := New(source, resolver, player, testLogger(), scenarioSet(GinkgoT()), collector, 0)
		return eng.Run(context.Background())
	}

	Context("when the window cannot be resolved", func() {
		It("dispatches nothing and keeps listening", func() {
			source := &scriptedSource{bells: bells("closed", "kitty"), err: errLost}
			err := run(source)

			Expect(errors.Is(err, ipc.ErrConnectionLost)).To(BeTrue())
			Expect(player.Plays()).To(Equal([]string{"c.wav"}))
			Expect(collector.Snapshot().Totals.ResolveErrors).To(Equal(uint64(1)))
		})
	})

	Context("when the event connection is lost", func() {
		It("terminates exactly once without reading further events", func() {
			source := &scriptedSource{err: errLost}
			err := run(source)

			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, ipc.ErrConnectionLost)).To(BeTrue())
			Expect(source.calls).To(Equal(1))
			Expect(player.Plays()).To(BeEmpty())
		})
	})

	Context("when the matching rule has no sound", func() {
		It("stays silent instead of falling back to the default", func() {
			source := &scriptedSource{bells: bells("discord", "float"), err: errLost}
			_ = run(source)

			Expect(player.Plays()).To(Equal([]string{"b.wav"}))
			snap := collector.Snapshot()
			Expect(snap.Totals.Silenced).To(Equal(uint64(1)))
			Expect(snap.Totals.Played).To(Equal(uint64(1)))
		})
	})
})
