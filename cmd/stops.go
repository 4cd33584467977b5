package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tidbyt.dev/bustime"
)

var stopsCmd = &cobra.Command{
	Use:   "stops <stop_id>...",
	Short: "Looks up stops in the provider's registry",
	Args:  cobra.MinimumNArgs(1),
	RunE:  stops,
}

func init() {
	rootCmd.AddCommand(stopsCmd)
}

func stops(cmd *cobra.Command, args []string) error {
	p, _, err := newProvider(nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, stopID := range args {
		info, err := p.Stop(cmd.Context(), stopID)
		if errors.Is(err, bustime.ErrStopNotFound) {
			fmt.Fprintf(out, "%s %s\n", stopID, warningStyle.Render("not found"))
			continue
		}
		if err != nil {
			return fmt.Errorf("looking up stop %s: %w", stopID, err)
		}
		fmt.Fprintf(out, "%s %s\n", info.ID, displayStyle.Render(info.Name))
	}

	return nil
}
