package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/onion108/onionbell/internal/config"
	"github.com/onion108/onionbell/internal/sound"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and the sound files it references",
	Long: `Load the configuration, print the rule table in evaluation order, report
lint warnings such as rules shadowed by a wildcard, and check that every
referenced sound file exists and looks like audio.

With --against, also print a diff between the effective settings of the
two files.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

var checkAgainst string

func init() {
	checkCmd.Flags().StringVar(&checkAgainst, "against", "", "compare the effective configuration with another file")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	return checkConfig(cmd.Context(), cmd.OutOrStdout(), configPath, checkAgainst)
}

// errCheckFailed is returned after the report has been printed.
var errCheckFailed = errors.New("configuration check failed")

func checkConfig(ctx context.Context, w io.Writer, path, against string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if path == "" {
		path = config.DefaultPath()
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(path)
	switch {
	case errors.Is(err, config.ErrConfigNotFound):
		fmt.Fprintf(w, "%s does not exist, the daemon would run with defaults\n", path)
		loader = config.NewLoader()
		if cfg, err = loader.Load(""); err != nil {
			return err
		}
	case err != nil:
		fmt.Fprintf(w, "invalid configuration: %v\n", err)
		return errCheckFailed
	default:
		fmt.Fprintf(w, "configuration: %s\n", path)
	}
	fmt.Fprintf(w, "query: %s  debounce: %s  player: %v\n\n", cfg.Query, cfg.Debounce, playerLabel(cfg.Player))

	if err := renderRules(w, cfg); err != nil {
		return err
	}

	failed := false
	if lints := cfg.Lint(); len(lints) > 0 {
		fmt.Fprintln(w, "\nwarnings:")
		for _, l := range lints {
			fmt.Fprintf(w, "  - %v\n", l)
		}
	}

	if paths := cfg.Sounds(); len(paths) > 0 {
		checks, err := sound.Verify(ctx, paths)
		if err != nil {
			return err
		}
		fmt.Fprintln(w)
		if err := renderSounds(w, checks); err != nil {
			return err
		}
		for _, c := range checks {
			if !c.OK() {
				failed = true
			}
		}
	}

	player, err := sound.NewPlayer(nil, cfg.Player)
	switch {
	case err != nil:
		fmt.Fprintf(w, "\nplayer: %v\n", err)
		failed = true
	case !player.ScalesVolume() && usesVolume(cfg):
		fmt.Fprintf(w, "\nplayer: %s takes no volume placeholder, configured volumes are ignored\n", player.Name())
	}

	if against != "" {
		if err := diffAgainst(w, loader, against); err != nil {
			return err
		}
	}

	if failed {
		return errCheckFailed
	}
	fmt.Fprintln(w, "\nok")
	return nil
}

func diffAgainst(w io.Writer, current *config.Loader, path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "--against %s", path)
	}
	other := config.NewLoader()
	if _, err := other.Load(path); err != nil {
		return errors.Wrapf(err, "--against %s", path)
	}
	theirs, err := other.Marshal()
	if err != nil {
		return err
	}
	ours, err := current.Marshal()
	if err != nil {
		return err
	}
	diff := config.DiffSerialized(theirs, ours)
	if diff == "" {
		fmt.Fprintf(w, "\nno differences from %s\n", path)
		return nil
	}
	fmt.Fprintf(w, "\ndifferences from %s:\n%s\n", path, diff)
	return nil
}

// usesVolume reports whether any configured volume differs from full volume.
func usesVolume(cfg *config.Config) bool {
	if cfg.Volume != config.DefaultVolume {
		return true
	}
	for _, r := range cfg.Rules {
		if r.RuleVolume() != config.DefaultVolume {
			return true
		}
	}
	return false
}

func playerLabel(command []string) string {
	if len(command) == 0 {
		return "auto"
	}
	return command[0]
}
