package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/onion108/onionbell/internal/config"
	"github.com/onion108/onionbell/internal/control/client"
	"github.com/onion108/onionbell/internal/ipc"
	"github.com/onion108/onionbell/internal/rules"
	"github.com/onion108/onionbell/internal/state"
	"github.com/onion108/onionbell/internal/util"
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Show which rule would pick the sound for a window",
	Long: `Evaluate the rules against a window and print, per rule, whether it
matched and which predicates failed.

The window is either described with flags or, with --address, looked up
in the running compositor. With --daemon the rules loaded by the running
daemon are used instead of the configuration file.`,
	Example: `  onionbell explain --class kitty --floating
  onionbell explain --address 558e9243ab50
  onionbell explain --class discord --daemon`,
	Args: cobra.NoArgs,
	RunE: runExplain,
}

var (
	explainAddress   string
	explainClass     string
	explainTitle     string
	explainFloating  bool
	explainXWayland  bool
	explainWorkspace string
	explainDaemon    bool
)

func init() {
	f := explainCmd.Flags()
	f.StringVar(&explainAddress, "address", "", "look the window up in the running compositor")
	f.StringVar(&explainClass, "class", "", "window class")
	f.StringVar(&explainTitle, "title", "", "window title")
	f.BoolVar(&explainFloating, "floating", false, "window is floating")
	f.BoolVar(&explainXWayland, "xwayland", false, "window runs under XWayland")
	f.StringVar(&explainWorkspace, "workspace", "", "workspace id or name")
	f.BoolVar(&explainDaemon, "daemon", false, "evaluate with the rules of the running daemon")
}

func runExplain(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	w := cmd.OutOrStdout()

	win := windowFromFlags()
	if explainAddress != "" {
		found, err := lookupWindow(ctx, explainAddress)
		if err != nil {
			return err
		}
		win = found
	}

	if explainDaemon {
		result, err := client.New(controlSocket).Explain(ctx, win)
		if err != nil {
			return err
		}
		sel := rules.Selection{Sound: result.Sound, Volume: result.Volume, RuleName: result.Rule}
		return printExplanation(w, win, sel, result.Traces)
	}

	logger := util.NewLoggerWithWriter(util.LevelWarn, cmd.ErrOrStderr())
	cfg, err := loadConfig(logger, configPath)
	if err != nil {
		return err
	}
	return explainWindow(w, cfg, win)
}

func explainWindow(w io.Writer, cfg *config.Config, win state.Window) error {
	set, err := rules.Build(cfg)
	if err != nil {
		return err
	}
	return printExplanation(w, win, rules.Select(win, set), rules.Explain(win, set))
}

func printExplanation(w io.Writer, win state.Window, sel rules.Selection, traces []rules.Trace) error {
	fmt.Fprintf(w, "window: class=%q title=%q floating=%t xwayland=%t workspace=%d (%q)\n\n",
		win.Class, win.Title, win.Floating, win.XWayland, win.Workspace.ID, win.Workspace.Name)
	if len(traces) > 0 {
		if err := renderTraces(w, traces); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	if sel.Silent() {
		fmt.Fprintf(w, "rule %s: silent\n", sel.RuleName)
		return nil
	}
	fmt.Fprintf(w, "rule %s: play %s at volume %s\n", sel.RuleName, sel.Sound, formatVolume(sel.Volume))
	return nil
}

func windowFromFlags() state.Window {
	win := state.Window{
		Class:    explainClass,
		Title:    explainTitle,
		Floating: explainFloating,
		XWayland: explainXWayland,
	}
	if explainWorkspace != "" {
		win.Workspace.Name = explainWorkspace
		if id, err := strconv.Atoi(explainWorkspace); err == nil {
			win.Workspace.ID = id
		}
	}
	return win
}

func lookupWindow(ctx context.Context, address string) (state.Window, error) {
	logger := util.NewLogger(util.LevelWarn)
	inst, err := ipc.Locate()
	if err != nil {
		return state.Window{}, err
	}
	querier, _, err := ipc.NewQuerier(logger, inst, config.QuerySocket)
	if err != nil {
		return state.Window{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	win, err := ipc.NewResolver(querier, logger).Resolve(ctx, address)
	if err != nil {
		return state.Window{}, errors.Wrapf(err, "look up window %s", address)
	}
	return win, nil
}
