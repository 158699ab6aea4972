package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/flightcheck/internal/monitor"
	"github.com/zulandar/flightcheck/internal/probe"
)

func newCheckCmd() *cobra.Command {
	var (
		configPath  string
		pendingOnly bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one sweep and print the results",
		Long:  "Probes monitored builds once, records outcomes and transitions, then exits. Notifications are not sent from one-off checks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, configPath, pendingOnly)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "flightcheck.yaml", "path to FlightCheck config file")
	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "check only PENDING builds")
	return cmd
}

func runCheck(cmd *cobra.Command, configPath string, pendingOnly bool) error {
	cfg, st, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	mon, err := monitor.New(monitor.Opts{
		Store:      st,
		Prober:     probe.NewProber(cfg.Monitor.ProbeTimeout()),
		Classifier: probe.ForName(cfg.Monitor.Classifier),
		Config:     cfg.Monitor,
	})
	if err != nil {
		return err
	}

	mode := monitor.SweepAll
	if pendingOnly {
		mode = monitor.SweepPending
	}

	summary, err := mon.RunSweep(cmd.Context(), mode)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if summary.Checked == 0 {
		fmt.Fprintln(out, "No builds due for checking.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tERROR")
	for _, r := range summary.Results {
		errText := "-"
		if r.Error != "" {
			errText = r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", truncate(r.Name, 30), r.Status, errText)
	}
	w.Flush()

	fmt.Fprintf(out, "\nChecked %d builds, %d errors\n", summary.Checked, summary.Errored)
	return nil
}
