package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/onion108/onionbell/internal/config"
	"github.com/onion108/onionbell/internal/engine"
	"github.com/onion108/onionbell/internal/ipc"
	"github.com/onion108/onionbell/internal/metrics"
	"github.com/onion108/onionbell/internal/rules"
	"github.com/onion108/onionbell/internal/state"
	"github.com/onion108/onionbell/internal/util"
)

var replayCmd = &cobra.Command{
	Use:   "replay <fixture>",
	Short: "Run a recorded event stream through the rules without playing anything",
	Long: `Replay a fixture through the bell pipeline with the configured rules.
Nothing is played; the command prints which rule handled each bell and how
long handling took.

A fixture is either a JSON document with "clients" (the output of
'hyprctl clients -j') and "events" (raw EVENT>>DATA lines), or a plain
event log captured from the event socket, combined with --clients.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var (
	replayClients    string
	replayIterations int
	replayJSON       bool
)

func init() {
	replayCmd.Flags().StringVar(&replayClients, "clients", "", "JSON client list used with a plain event log")
	replayCmd.Flags().IntVar(&replayIterations, "iterations", 1, "number of times to replay the fixture")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(replayCmd)
}

type replayFixture struct {
	Name    string        `json:"name"`
	Clients state.Windows `json:"clients"`
	Events  []string      `json:"events"`
}

type latencyStats struct {
	Min    float64 `json:"minMs"`
	Mean   float64 `json:"meanMs"`
	Median float64 `json:"medianMs"`
	P95    float64 `json:"p95Ms"`
	Max    float64 `json:"maxMs"`
}

type replayReport struct {
	Fixture    string              `json:"fixture"`
	Iterations int                 `json:"iterations"`
	Events     int                 `json:"events"`
	Bells      int                 `json:"bells"`
	Latency    latencyStats        `json:"latency"`
	Metrics    metrics.Snapshot    `json:"metrics"`
	Plays      map[string]int      `json:"plays"`
	Last       []engine.BellRecord `json:"last,omitempty"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	if replayIterations <= 0 {
		return errors.New("--iterations must be positive")
	}
	logger := util.NewLoggerWithWriter(util.ParseLogLevel(logLevel), cmd.ErrOrStderr())
	cfg, err := loadConfig(logger, configPath)
	if err != nil {
		return err
	}
	fixture, err := loadFixture(args[0], replayClients)
	if err != nil {
		return err
	}
	report, err := replay(cmd.Context(), logger, cfg, fixture, replayIterations)
	if err != nil {
		return err
	}
	if replayJSON {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	return printReplay(cmd.OutOrStdout(), report)
}

func loadFixture(path, clientsPath string) (replayFixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return replayFixture{}, errors.Wrap(err, "read fixture")
	}
	fixture := replayFixture{Name: path}
	if trimmed := strings.TrimSpace(string(data)); strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &fixture); err != nil {
			return replayFixture{}, errors.Wrap(err, "decode fixture")
		}
		if fixture.Name == "" {
			fixture.Name = path
		}
	} else {
		scanner := bufio.NewScanner(strings.NewReader(string(data)))
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				fixture.Events = append(fixture.Events, line)
			}
		}
	}
	if clientsPath != "" {
		raw, err := os.ReadFile(clientsPath)
		if err != nil {
			return replayFixture{}, errors.Wrap(err, "read clients")
		}
		if err := json.Unmarshal(raw, &fixture.Clients); err != nil {
			return replayFixture{}, errors.Wrap(err, "decode clients")
		}
	}
	if len(fixture.Events) == 0 {
		return replayFixture{}, errors.New("fixture contains no events")
	}
	return fixture, nil
}

func replay(ctx context.Context, logger *util.Logger, cfg *config.Config, fixture replayFixture, iterations int) (replayReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	set, err := rules.Build(cfg)
	if err != nil {
		return replayReport{}, errors.Wrap(err, "compile rules")
	}

	collector := metrics.NewCollector()
	player := &dryRunPlayer{plays: map[string]int{}}
	resolver := fixtureResolver(fixture.Clients)
	var (
		durations []time.Duration
		last      []engine.BellRecord
	)
	for i := 0; i < iterations; i++ {
		source := &fixtureSource{events: fixture.Events}
		eng := engine.New(source, resolver, player, logger, set, collector, cfg.Debounce)
		if err := eng.Run(ctx); err != nil && !errors.Is(err, io.EOF) {
			return replayReport{}, errors.Wrapf(err, "iteration %d", i+1)
		}
		durations = append(durations, source.durations...)
		last = eng.History()
	}

	return replayReport{
		Fixture:    fixture.Name,
		Iterations: iterations,
		Events:     len(fixture.Events),
		Bells:      len(durations),
		Latency:    buildLatencyStats(durations),
		Metrics:    collector.Snapshot(),
		Plays:      player.plays,
		Last:       last,
	}, nil
}

func printReplay(w io.Writer, report replayReport) error {
	fmt.Fprintf(w, "%s: %d events, %d bells over %d iteration(s)\n",
		report.Fixture, report.Events, report.Bells, report.Iterations)
	l := report.Latency
	fmt.Fprintf(w, "handling: min %.3fms  mean %.3fms  p50 %.3fms  p95 %.3fms  max %.3fms\n\n",
		l.Min, l.Mean, l.Median, l.P95, l.Max)

	t := newTable(w)
	t.Header([]string{"Rule", "Bells", "Played", "Silenced"})
	for _, r := range report.Metrics.Rules {
		_ = t.Append([]string{
			r.Rule,
			humanize.Comma(int64(r.Bells)),
			humanize.Comma(int64(r.Played)),
			humanize.Comma(int64(r.Silenced)),
		})
	}
	_ = t.Append([]string{"(unresolved)", strconv.FormatUint(report.Metrics.Totals.ResolveErrors, 10), "-", "-"})
	if report.Metrics.Totals.Debounced > 0 {
		_ = t.Append([]string{"(debounced)", strconv.FormatUint(report.Metrics.Totals.Debounced, 10), "-", "-"})
	}
	if err := t.Render(); err != nil {
		return err
	}

	if len(report.Plays) > 0 {
		fmt.Fprintln(w)
		sounds := make([]string, 0, len(report.Plays))
		for s := range report.Plays {
			sounds = append(sounds, s)
		}
		sort.Strings(sounds)
		st := newTable(w)
		st.Header([]string{"Sound", "Plays"})
		for _, s := range sounds {
			_ = st.Append([]string{s, strconv.Itoa(report.Plays[s])})
		}
		return st.Render()
	}
	return nil
}

// fixtureSource yields the bells of a recorded event stream and measures the
// time the engine spends between two reads.
type fixtureSource struct {
	events    []string
	pos       int
	pending   bool
	lastRead  time.Time
	durations []time.Duration
}

func (s *fixtureSource) Next(ctx context.Context) (ipc.Bell, error) {
	if s.pending {
		s.durations = append(s.durations, time.Since(s.lastRead))
		s.pending = false
	}
	for s.pos < len(s.events) {
		if err := ctx.Err(); err != nil {
			return ipc.Bell{}, err
		}
		line := s.events[s.pos]
		s.pos++
		ev, ok := ipc.ParseEvent(line)
		if !ok || ev.Kind != ipc.BellEvent {
			continue
		}
		s.pending = true
		s.lastRead = time.Now()
		return ipc.Bell{Address: ev.Payload}, nil
	}
	return ipc.Bell{}, io.EOF
}

type fixtureResolver state.Windows

func (f fixtureResolver) Resolve(_ context.Context, address string) (state.Window, error) {
	if win := state.Windows(f).FindByAddress(address); win != nil {
		return *win, nil
	}
	return state.Window{}, errors.Mark(errors.Newf("no client with address %s in fixture", address), ipc.ErrWindowNotFound)
}

type dryRunPlayer struct {
	mu    sync.Mutex
	plays map[string]int
}

func (p *dryRunPlayer) Play(path string, _ float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plays[path]++
}

func buildLatencyStats(durations []time.Duration) latencyStats {
	if len(durations) == 0 {
		return latencyStats{}
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return latencyStats{
		Min:    toMillis(sorted[0]),
		Mean:   toMillis(total / time.Duration(len(sorted))),
		Median: toMillis(percentile(sorted, 0.50)),
		P95:    toMillis(percentile(sorted, 0.95)),
		Max:    toMillis(sorted[len(sorted)-1]),
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
