package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yatrik/scheduler/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the mass scheduling HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
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
	return svc.Serve(ctx)
}
