package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onion108/onionbell/internal/control/client"
	"github.com/onion108/onionbell/internal/engine"
)

var ringCmd = &cobra.Command{
	Use:   "ring <address>",
	Short: "Ask the daemon to handle a bell for a window",
	Long: `Send a synthetic bell for the window at address through the running
daemon, as if the compositor had emitted it. Debouncing is skipped.`,
	Example: "  onionbell ring 558e9243ab50",
	Args:    cobra.ExactArgs(1),
	RunE:    runRing,
}

func runRing(cmd *cobra.Command, args []string) error {
	rec, err := client.New(controlSocket).Ring(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	switch rec.Status {
	case engine.BellStatusPlayed:
		fmt.Fprintf(w, "%s (%s): rule %s played %s\n", rec.Address, rec.Class, rec.Rule, rec.Sound)
	default:
		fmt.Fprintf(w, "%s (%s): rule %s, %s\n", rec.Address, rec.Class, rec.Rule, rec.Status)
	}
	return nil
}
