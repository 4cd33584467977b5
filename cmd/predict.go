package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/bustime"
	"tidbyt.dev/bustime/model"
)

var predictCmd = &cobra.Command{
	Use:   "predict <stop_id> <route_id>...",
	Short: "Prints predicted and scheduled arrivals at a stop",
	Args:  cobra.MinimumNArgs(2),
	RunE:  predict,
}

var (
	direction string
	maxCount  int
)

func init() {
	predictCmd.Flags().StringVarP(&direction, "direction", "d", "inbound", "Direction of travel (inbound or outbound)")
	predictCmd.Flags().IntVarP(&maxCount, "limit", "l", bustime.DefaultMaxPredictions, "Maximum predictions per route")
	rootCmd.AddCommand(predictCmd)
}

func predict(cmd *cobra.Command, args []string) error {
	p, _, err := newProvider(nil)
	if err != nil {
		return err
	}

	agg := bustime.NewAggregator(p, cfg.Location())
	agg.MaxPredictions = maxCount

	summary, err := agg.Predictions(cmd.Context(), args[0], model.ParseDirection(direction), args[1:], time.Now())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, r := range summary.Results {
		switch {
		case len(r.Predictions) > 0:
			fmt.Fprintf(out, "%s %s\n", r.RouteID, displayStyle.Render(bustime.Join(r.Predictions)))
		case r.Scheduled != "":
			fmt.Fprintf(out, "%s %s %s\n", r.RouteID, displayStyle.Render(r.Scheduled), detailStyle.Render("(scheduled)"))
		default:
			fmt.Fprintf(out, "%s %s\n", r.RouteID, warningStyle.Render("none"))
		}
	}
	fmt.Fprintln(out, speechStyle.Render(summary.Speech))

	return nil
}
