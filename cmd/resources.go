package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yatrik/scheduler/app"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Print routes, buses and crew per depot as seen by the scheduler",
	RunE:  runResources,
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
}

func runResources(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, flush, err := setup()
	if err != nil {
		return err
	}
	defer flush()

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer closeService(svc)

	res, err := svc.Resources(ctx, cfg.Schedule.DepotIDs)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPOT\tROUTES\tBUSES\tDRIVERS\tCONDUCTORS")
	for _, c := range res.Counts() {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", c.DepotID, c.Routes, c.Buses, c.Drivers, c.Conductors)
	}
	return tw.Flush()
}
