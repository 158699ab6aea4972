package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/zulandar/flightcheck/internal/config"
	"github.com/zulandar/flightcheck/internal/dashboard"
	"github.com/zulandar/flightcheck/internal/metrics"
	"github.com/zulandar/flightcheck/internal/monitor"
	"github.com/zulandar/flightcheck/internal/notify"
	"github.com/zulandar/flightcheck/internal/notify/discord"
	"github.com/zulandar/flightcheck/internal/notify/slack"
	"github.com/zulandar/flightcheck/internal/probe"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor and dashboard API",
		Long:  "Starts the sweep scheduler and the HTTP API, and keeps both running until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "flightcheck.yaml", "path to FlightCheck config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, st, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	dispatcher, closeSinks, err := buildDispatcher(cmd, cfg, collector)
	if err != nil {
		return err
	}
	defer closeSinks()

	mon, err := monitor.New(monitor.Opts{
		Store:      st,
		Prober:     probe.NewProber(cfg.Monitor.ProbeTimeout()),
		Classifier: probe.ForName(cfg.Monitor.Classifier),
		Notifier:   dispatcher,
		Metrics:    collector,
		Config:     cfg.Monitor,
	})
	if err != nil {
		return err
	}

	if err := mon.Start(); err != nil {
		return err
	}
	defer mon.Stop()
	fmt.Fprintf(out, "Monitor running (schedule %s)\n", cfg.Monitor.Schedule)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Blocks until the context is cancelled, then shuts down gracefully.
	return dashboard.Start(ctx, dashboard.StartOpts{
		Store:    st,
		Monitor:  mon,
		Gatherer: registry,
		Port:     cfg.Dashboard.Port,
		Out:      out,
	})
}

// buildDispatcher assembles the configured notification sinks. Either channel
// may be absent; with none configured the monitor runs silent.
func buildDispatcher(cmd *cobra.Command, cfg *config.Config, collector *metrics.Collector) (*notify.Dispatcher, func(), error) {
	out := cmd.OutOrStdout()
	var sinks []notify.Sink
	closeSinks := func() {}

	if cfg.Discord.BotToken != "" {
		dg, err := discord.New(discord.SinkOpts{
			BotToken:  cfg.Discord.BotToken,
			ChannelID: cfg.Discord.ChannelID,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := dg.Connect(); err != nil {
			return nil, nil, err
		}
		closeSinks = func() { dg.Close() }
		sinks = append(sinks, dg)
		fmt.Fprintln(out, "Discord notifications enabled")
	}

	if cfg.Slack.BotToken != "" {
		sl, err := slack.New(slack.SinkOpts{
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.Slack.ChannelID,
		})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, sl)
		fmt.Fprintln(out, "Slack notifications enabled")
	}

	if len(sinks) == 0 {
		fmt.Fprintln(out, "No notification channels configured")
	}
	return notify.NewDispatcher(collector, sinks...), closeSinks, nil
}
