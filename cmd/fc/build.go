package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/flightcheck/internal/store"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build management commands",
	}

	cmd.AddCommand(newBuildAddCmd())
	cmd.AddCommand(newBuildListCmd())
	cmd.AddCommand(newBuildShowCmd())
	cmd.AddCommand(newBuildRemoveCmd())
	cmd.AddCommand(newBuildLogsCmd())
	return cmd
}

func newBuildAddCmd() *cobra.Command {
	var (
		configPath  string
		name        string
		version     string
		buildNumber string
		url         string
		notes       string
		public      bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a build for monitoring",
		Long:  "Registers a TestFlight invite URL. The build starts in PENDING status and is picked up by the next sweep.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			b, err := st.Create(store.CreateOpts{
				Name:        name,
				Version:     version,
				BuildNumber: buildNumber,
				URL:         url,
				Notes:       notes,
				Public:      public,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Registered build %s\n", b.ID)
			fmt.Fprintf(out, "Name:   %s\n", b.Name)
			fmt.Fprintf(out, "Status: %s\n", b.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "flightcheck.yaml", "path to FlightCheck config file")
	cmd.Flags().StringVar(&name, "name", "", "app name (required)")
	cmd.Flags().StringVar(&version, "version", "", "marketing version, e.g. 1.2.0")
	cmd.Flags().StringVar(&buildNumber, "build", "", "build number")
	cmd.Flags().StringVar(&url, "url", "", "TestFlight invite URL (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().BoolVar(&public, "public", false, "expose on the public status endpoints")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("url")
	return cmd
}

func newBuildListCmd() *cobra.Command {
	var (
		configPath string
		status     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List monitored builds",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			builds, err := st.List(store.ListFilters{Status: status})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(builds) == 0 {
				fmt.Fprintln(out, "No builds found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tVERSION\tSTATUS\tLAST CHECKED")
			for _, b := range builds {
				checked := "-"
				if b.LastCheckedAt != nil {
					checked = b.LastCheckedAt.Format("2006-01-02 15:04:05")
				}
				version := b.Version
				if b.BuildNumber != "" {
					version = fmt.Sprintf("%s (%s)", b.Version, b.BuildNumber)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					b.ID, truncate(b.Name, 30), version, b.Status, checked)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "flightcheck.yaml", "path to FlightCheck config file")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func newBuildShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show build details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			b, err := st.Get(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:           %s\n", b.ID)
			fmt.Fprintf(out, "Name:         %s\n", b.Name)
			if b.Version != "" {
				fmt.Fprintf(out, "Version:      %s\n", b.Version)
			}
			if b.BuildNumber != "" {
				fmt.Fprintf(out, "Build:        %s\n", b.BuildNumber)
			}
			fmt.Fprintf(out, "URL:          %s\n", b.URL)
			fmt.Fprintf(out, "Status:       %s\n", b.Status)
			fmt.Fprintf(out, "Public:       %t\n", b.Public)
			fmt.Fprintf(out, "Created:      %s\n", b.CreatedAt.Format("2006-01-02 15:04:05"))
			if b.LastCheckedAt != nil {
				fmt.Fprintf(out, "Last checked: %s\n", b.LastCheckedAt.Format("2006-01-02 15:04:05"))
			}
			if b.Notes != "" {
				fmt.Fprintf(out, "\nNotes:\n%s\n", b.Notes)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "flightcheck.yaml", "path to FlightCheck config file")
	return cmd
}

func newBuildRemoveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a build and its check history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			if err := st.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed build %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "flightcheck.yaml", "path to FlightCheck config file")
	return cmd
}

func newBuildLogsCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Show recent check history for a build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			if _, err := st.Get(args[0]); err != nil {
				return err
			}
			logs, err := st.RecentLogs(args[0], limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(logs) == 0 {
				fmt.Fprintln(out, "No checks recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tSTATUS\tMESSAGE")
			for _, l := range logs {
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					l.CreatedAt.Format(time.DateTime), l.Status, l.Message)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "flightcheck.yaml", "path to FlightCheck config file")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show")
	return cmd
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
