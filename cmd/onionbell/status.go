package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/onion108/onionbell/internal/control/client"
	"github.com/onion108/onionbell/internal/ui/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show counters of the running daemon",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the most recent bells handled by the daemon",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var (
	statusJSON    bool
	statusWatch   bool
	statusRefresh time.Duration
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw JSON payload")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "keep redrawing a live dashboard until interrupted")
	statusCmd.Flags().DurationVar(&statusRefresh, "refresh", time.Second, "redraw interval for --watch")
	historyCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw JSON payload")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if statusWatch {
		if statusJSON {
			return errors.New("--json and --watch cannot be combined")
		}
		return watchStatus(cmd.Context(), cmd.OutOrStdout(), client.New(controlSocket), statusRefresh)
	}
	status, err := client.New(controlSocket).Status(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if statusJSON {
		return writeJSON(w, status)
	}
	return printStatus(w, status)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	history, err := client.New(controlSocket).History(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if statusJSON {
		return writeJSON(w, history)
	}
	if len(history.Bells) == 0 {
		fmt.Fprintln(w, "no bells yet")
		return nil
	}
	return renderHistory(w, history.Bells)
}

func watchStatus(ctx context.Context, w io.Writer, src tui.Source, refresh time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := tui.New(src, w)
	r.Refresh = refresh
	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func printStatus(w io.Writer, status client.Status) error {
	m := status.Metrics
	fmt.Fprintf(w, "up since %s (%s), %d rules\n", humanize.Time(status.Started), status.Uptime, status.Rules)
	if status.Sound != "" {
		fmt.Fprintf(w, "default sound: %s\n", status.Sound)
	}
	if status.Debounce != "" {
		fmt.Fprintf(w, "debounce: %s\n", status.Debounce)
	}
	fmt.Fprintf(w, "bells: %s  played: %s  silenced: %s  debounced: %s\n",
		humanize.Comma(int64(m.Totals.Bells)), humanize.Comma(int64(m.Totals.Played)),
		humanize.Comma(int64(m.Totals.Silenced)), humanize.Comma(int64(m.Totals.Debounced)))
	fmt.Fprintf(w, "errors: %d unresolved, %d playback\n", m.Totals.ResolveErrors, m.Totals.PlaybackErrors)
	if !m.LastErrored.IsZero() {
		fmt.Fprintf(w, "last error %s\n", humanize.Time(m.LastErrored))
	}

	if len(m.Rules) > 0 {
		fmt.Fprintln(w)
		t := newTable(w)
		t.Header([]string{"#", "Rule", "Bells", "Played", "Silenced", "Last bell"})
		for _, r := range m.Rules {
			idx := "-"
			if r.Index >= 0 {
				idx = strconv.Itoa(r.Index)
			}
			last := "never"
			if !r.LastBell.IsZero() {
				last = humanize.Time(r.LastBell)
			}
			_ = t.Append([]string{
				idx,
				r.Rule,
				strconv.FormatUint(r.Bells, 10),
				strconv.FormatUint(r.Played, 10),
				strconv.FormatUint(r.Silenced, 10),
				last,
			})
		}
		if err := t.Render(); err != nil {
			return err
		}
	}

	if len(status.Recent) > 0 {
		fmt.Fprintln(w)
		return renderHistory(w, status.Recent)
	}
	return nil
}

func renderHistory(w io.Writer, bells []client.BellRecord) error {
	t := newTable(w)
	t.Header([]string{"When", "Address", "Class", "Rule", "Status", "Sound"})
	for _, b := range bells {
		detail := b.Sound
		if b.Error != "" {
			detail = b.Error
		}
		_ = t.Append([]string{humanize.Time(b.Timestamp), b.Address, b.Class, b.Rule, string(b.Status), detail})
	}
	return t.Render()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
