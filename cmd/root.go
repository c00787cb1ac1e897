package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yatrik/scheduler/app"
	"github.com/yatrik/scheduler/config"
	"github.com/yatrik/scheduler/core/monitoring"
	"github.com/yatrik/scheduler/core/scheduler"
	"github.com/yatrik/scheduler/infra/logger"
	infmon "github.com/yatrik/scheduler/infra/monitoring"
)

var (
	cfgPath     string
	optionsPath string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:           "yatrik-scheduler",
	Short:         "Mass trip scheduling for the YATRIK fleet",
	RunE:          runSchedule,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (YAML or JSON)")
	rootCmd.Flags().StringVar(&optionsPath, "options", "", "run options file (YAML or JSON)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every skipped slot")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// setup loads the configuration and installs logging and error monitoring.
func setup() (*config.Config, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(cfg.Logging.Level)
	mon, err := infmon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		logger.New("main").Warnf("sentry disabled: %v", err)
	} else {
		monitoring.Init(mon)
	}
	return cfg, func() { monitoring.Flush(2 * time.Second) }, nil
}

func closeService(svc *app.Service) {
	if err := svc.Close(); err != nil {
		logger.New("main").Errorf("service close: %v", err)
	}
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, flush, err := setup()
	if err != nil {
		return err
	}
	defer flush()
	defer monitoring.Recover()

	opts := cfg.Schedule
	if optionsPath != "" {
		if opts, err = scheduler.LoadOptions(optionsPath, opts); err != nil {
			return fmt.Errorf("load options: %w", err)
		}
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer closeService(svc)

	rep, err := svc.Schedule(ctx, opts)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if verbose {
		for _, s := range rep.Skips {
			fmt.Fprintf(out, "skip route=%s depot=%s %s-%s %s %s\n", s.Route, s.DepotID, s.Start, s.End, s.Reason, s.Detail)
		}
		for _, w := range rep.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
	}
	fmt.Fprintln(out, rep.String())
	return nil
}
