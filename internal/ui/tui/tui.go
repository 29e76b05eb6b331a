package tui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/onion108/onionbell/internal/control/client"
)

const (
	defaultRefresh = time.Second
	titleWidth     = 40
	maxRecent      = 10
)

// Source provides daemon status snapshots. *client.Client satisfies it.
type Source interface {
	Status(ctx context.Context) (client.Status, error)
}

// Renderer periodically polls the daemon and redraws a bell dashboard.
type Renderer struct {
	Source  Source
	Writer  io.Writer
	Refresh time.Duration

	now func() time.Time
}

// New returns a renderer with the default refresh interval.
func New(src Source, w io.Writer) *Renderer {
	return &Renderer{Source: src, Writer: w, Refresh: defaultRefresh}
}

// Run redraws the dashboard until ctx is cancelled.
func (r *Renderer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.Writer == nil {
		r.Writer = os.Stdout
	}
	if r.Source == nil {
		return errors.New("status dashboard requires a control client")
	}

	refresh := r.Refresh
	if refresh <= 0 {
		refresh = defaultRefresh
	}

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	fmt.Fprint(r.Writer, "\033[?25l")
	defer fmt.Fprint(r.Writer, "\033[?25h")

	r.render(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.render(ctx)
		}
	}
}

func (r *Renderer) render(ctx context.Context) {
	status, err := r.Source.Status(ctx)
	if ctx.Err() != nil {
		return
	}
	now := time.Now()
	if r.now != nil {
		now = r.now()
	}
	fmt.Fprint(r.Writer, Frame(status, err, now))
}

// Frame renders one screen of the dashboard.
func Frame(status client.Status, err error, now time.Time) string {
	var buf bytes.Buffer
	buf.WriteString("\033[H\033[2J")
	buf.WriteString("onionbell status, Ctrl+C to exit\n")
	buf.WriteString(now.Format(time.RFC1123))
	buf.WriteString("\n\n")

	if err != nil {
		fmt.Fprintf(&buf, "error: %v\n", err)
		return buf.String()
	}

	writeSummary(&buf, status, now)
	buf.WriteByte('\n')
	writeRules(&buf, status)
	buf.WriteByte('\n')
	writeRecent(&buf, status.Recent, now)
	return buf.String()
}

func writeSummary(buf *bytes.Buffer, status client.Status, now time.Time) {
	m := status.Metrics
	fmt.Fprintf(buf, "up since %s (%s), %d rules", humanize.RelTime(status.Started, now, "ago", "from now"), status.Uptime, status.Rules)
	if status.Debounce != "" {
		fmt.Fprintf(buf, ", debounce %s", status.Debounce)
	}
	buf.WriteByte('\n')
	sound := status.Sound
	if sound == "" {
		sound = "(silent)"
	}
	fmt.Fprintf(buf, "default sound: %s\n", sound)
	fmt.Fprintf(buf, "bells: %s  played: %s  silenced: %s  debounced: %s\n",
		humanize.Comma(int64(m.Totals.Bells)), humanize.Comma(int64(m.Totals.Played)),
		humanize.Comma(int64(m.Totals.Silenced)), humanize.Comma(int64(m.Totals.Debounced)))
	fmt.Fprintf(buf, "errors: %d unresolved, %d playback", m.Totals.ResolveErrors, m.Totals.PlaybackErrors)
	if !m.LastErrored.IsZero() {
		fmt.Fprintf(buf, ", last %s", humanize.RelTime(m.LastErrored, now, "ago", "from now"))
	}
	buf.WriteByte('\n')
}

func writeRules(buf *bytes.Buffer, status client.Status) {
	buf.WriteString("Rules:\n")
	if len(status.Metrics.Rules) == 0 {
		buf.WriteString("  (no bells matched yet)\n")
		return
	}
	t := newTable(buf)
	t.Header([]string{"#", "Rule", "Bells", "Played", "Silenced"})
	for _, rm := range status.Metrics.Rules {
		idx := "-"
		if rm.Index >= 0 {
			idx = strconv.Itoa(rm.Index)
		}
		_ = t.Append([]string{
			idx,
			rm.Rule,
			strconv.FormatUint(rm.Bells, 10),
			strconv.FormatUint(rm.Played, 10),
			strconv.FormatUint(rm.Silenced, 10),
		})
	}
	_ = t.Render()
}

func writeRecent(buf *bytes.Buffer, bells []client.BellRecord, now time.Time) {
	buf.WriteString("Recent bells:\n")
	if len(bells) == 0 {
		buf.WriteString("  (none)\n")
		return
	}
	if len(bells) > maxRecent {
		bells = bells[len(bells)-maxRecent:]
	}
	t := newTable(buf)
	t.Header([]string{"When", "Class", "Title", "Rule", "Status", "Sound"})
	for i := len(bells) - 1; i >= 0; i-- {
		b := bells[i]
		class := b.Class
		if class == "" {
			class = "(unknown)"
		}
		detail := b.Sound
		if b.Error != "" {
			detail = b.Error
		}
		_ = t.Append([]string{
			humanize.RelTime(b.Timestamp, now, "ago", "from now"),
			class,
			truncate(b.Title, titleWidth),
			b.Rule,
			string(b.Status),
			detail,
		})
	}
	_ = t.Render()
}

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleRounded),
		})),
		tablewriter.WithPadding(tw.Padding{Left: " ", Right: " "}),
	)
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
