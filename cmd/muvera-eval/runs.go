package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/asmuvera/muvera-eval/internal/client"
	"github.com/asmuvera/muvera-eval/internal/report"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List runs on a server, or write the report of one run",
		Long: `Without an argument, list the runs a muvera-eval server remembers,
newest first. With a run id, fetch that run and write its report the same
way 'evaluate' does.

Examples:
  muvera-eval runs --server http://localhost:8090
  muvera-eval runs 6f1c... --output run.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRuns,
	}

	cmd.Flags().String("server", client.DefaultConfig().BaseURL, "muvera-eval server URL")
	cmd.Flags().StringP("output", "o", "", "report file path")
	cmd.Flags().String("format", "", "report format (json, yaml, markdown, csv); inferred from the output path when empty")
	cmd.Flags().Bool("per-query", true, "include per-query results in the report")

	return cmd
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()

	ccfg := client.DefaultConfig()
	ccfg.BaseURL, _ = flags.GetString("server")
	c := client.New(ccfg)
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		runs, err := c.ListRuns(cmd.Context())
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}
		for _, r := range runs {
			fmt.Fprintf(out, "%s  %s  %3d queries  %6d ms  %d failed  %s\n",
				r.ID, r.StartedAt.Format(time.RFC3339), r.Queries, r.DurationMs, r.Failures,
				strings.Join(r.Strategies, ","))
		}
		return nil
	}

	if flags.Changed("output") {
		cfg.Report.Output, _ = flags.GetString("output")
	}
	if flags.Changed("format") {
		cfg.Report.Format, _ = flags.GetString("format")
	}
	if flags.Changed("per-query") {
		cfg.Report.PerQuery, _ = flags.GetBool("per-query")
	}

	var format report.Format
	if cfg.Report.Format != "" {
		if format, err = report.ParseFormat(cfg.Report.Format); err != nil {
			return err
		}
	}

	run, err := c.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return writeReport(cmd, cfg, format, run)
}
