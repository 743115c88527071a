package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/asmuvera/muvera-eval/internal/bus"
	"github.com/asmuvera/muvera-eval/internal/client"
	"github.com/asmuvera/muvera-eval/internal/config"
	"github.com/asmuvera/muvera-eval/internal/dataset"
	"github.com/asmuvera/muvera-eval/internal/evaluation"
	"github.com/asmuvera/muvera-eval/internal/metrics"
	"github.com/asmuvera/muvera-eval/internal/report"
	"github.com/asmuvera/muvera-eval/internal/retrieval"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate retrieval strategies against relevance judgments",
		Long: `Run every query through every configured strategy, score the rankings
with NDCG@k, Recall@k, Precision@k, MRR and MAP, and write a report.

Examples:
  muvera-eval evaluate
  muvera-eval evaluate --strategies single_vector,multi_vector --ks 1,5,10
  muvera-eval evaluate --max-queries 50 --output results.md
  muvera-eval evaluate --server http://localhost:8090`,
		RunE: runEvaluate,
	}

	cmd.Flags().String("queries", "", "queries file (JSONL or TSV)")
	cmd.Flags().String("judgments", "", "relevance judgments file (JSONL or TREC qrels)")
	cmd.Flags().StringSlice("strategies", nil, "strategies to evaluate")
	cmd.Flags().IntSlice("ks", nil, "metric cutoffs")
	cmd.Flags().Int("max-queries", 0, "evaluate at most this many queries (0 = all)")
	cmd.Flags().Int("workers", 0, "queries evaluated concurrently")
	cmd.Flags().Duration("timeout", 0, "abort the run after this long (0 = no limit)")
	cmd.Flags().StringP("output", "o", "", "report file path")
	cmd.Flags().String("format", "", "report format (json, yaml, markdown, csv); inferred from the output path when empty")
	cmd.Flags().Bool("per-query", true, "include per-query results in the report")
	cmd.Flags().String("server", "", "run on a muvera-eval server at this URL instead of calling engines directly")

	return cmd
}

// applyEvaluateFlags overrides cfg with the flags set on the command line.
func applyEvaluateFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("queries") {
		cfg.Eval.QueriesPath, _ = flags.GetString("queries")
	}
	if flags.Changed("judgments") {
		cfg.Eval.JudgmentsPath, _ = flags.GetString("judgments")
	}
	if flags.Changed("strategies") {
		cfg.Eval.Strategies, _ = flags.GetStringSlice("strategies")
	}
	if flags.Changed("ks") {
		cfg.Eval.Ks, _ = flags.GetIntSlice("ks")
	}
	if flags.Changed("max-queries") {
		cfg.Eval.MaxQueries, _ = flags.GetInt("max-queries")
	}
	if flags.Changed("workers") {
		cfg.Eval.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("timeout") {
		cfg.Eval.RunTimeout, _ = flags.GetDuration("timeout")
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

	return cfg.Validate()
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyEvaluateFlags(cmd, cfg); err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	var format report.Format
	if cfg.Report.Format != "" {
		if format, err = report.ParseFormat(cfg.Report.Format); err != nil {
			return err
		}
	}

	queries, err := dataset.LoadQueries(cfg.Eval.QueriesPath)
	if err != nil {
		return err
	}
	queries = dataset.Limit(queries, cfg.Eval.MaxQueries)

	judgments, err := dataset.LoadJudgments(cfg.Eval.JudgmentsPath)
	if err != nil {
		return err
	}
	log.Info("Loaded evaluation data",
		"queries", len(queries),
		"judged_queries", len(judgments.QueryIDs()),
		"judgments", judgments.Len(),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serverURL, _ := cmd.Flags().GetString("server"); serverURL != "" {
		var strategies []string
		if cmd.Flags().Changed("strategies") {
			strategies = cfg.Eval.Strategies
		}
		run, err := evaluateRemote(ctx, serverURL, cfg, strategies, queries, judgments)
		if err != nil {
			return err
		}
		return writeReport(cmd, cfg, format, run)
	}

	m := metrics.New()

	req, err := retrieval.Needs(cfg.Eval.Strategies, cfg.Fusion)
	if err != nil {
		return err
	}
	eng, err := openEngines(cfg, req, m, log)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	adapters, err := retrieval.Build(cfg, eng.deps())
	if err != nil {
		return err
	}

	innerBus, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		return err
	}
	eventBus := bus.NewInstrumentedBus(innerBus, m)
	defer func() { _ = eventBus.Close() }()

	if err := metrics.NewEventSubscriber(m, eventBus).SubscribeToEvents(ctx); err != nil {
		log.Warn("Failed to subscribe metrics to events", "error", err)
	}

	evaluator, err := evaluation.NewEvaluator(evaluation.OptionsFromConfig(cfg), adapters, judgments, log, eventBus, m)
	if err != nil {
		return err
	}

	runCtx := ctx
	if cfg.Eval.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Eval.RunTimeout)
		defer cancel()
	}

	run, err := evaluator.Run(runCtx, queries)
	if err != nil {
		return err
	}
	return writeReport(cmd, cfg, format, run)
}

// evaluateRemote sends the queries and their judgments to a running server.
// No strategies means every strategy the server runs.
func evaluateRemote(ctx context.Context, serverURL string, cfg *config.Config, strategies []string, queries []dataset.Query, judgments *dataset.Judgments) (*evaluation.Run, error) {
	ccfg := client.DefaultConfig()
	ccfg.BaseURL = serverURL
	if cfg.Eval.RunTimeout > 0 {
		ccfg.Timeout = cfg.Eval.RunTimeout
	}
	c := client.New(ccfg)

	if _, err := c.Health(ctx); err != nil {
		return nil, fmt.Errorf("server %s is not reachable: %w", serverURL, err)
	}

	ids := make([]string, len(queries))
	for i, q := range queries {
		ids[i] = q.ID
	}

	return c.Evaluate(ctx, evaluation.EvaluateRequest{
		Queries:    client.QueryInputs(queries),
		Strategies: strategies,
		Ks:         cfg.Eval.Ks,
		MaxResults: cfg.Eval.MaxResults,
		Judgments:  client.JudgmentInputs(judgments, ids...),
	})
}

// writeReport builds the report of run, writes it and prints a summary.
func writeReport(cmd *cobra.Command, cfg *config.Config, format report.Format, run *evaluation.Run) error {
	rep, err := report.Build(run, report.Meta{
		QueriesPath:   cfg.Eval.QueriesPath,
		JudgmentsPath: cfg.Eval.JudgmentsPath,
		Version:       version,
		Config:        cfg,
		PerQuery:      cfg.Report.PerQuery,
	})
	if err != nil {
		return err
	}

	if err := report.Write(cfg.Report.Output, format, rep); err != nil {
		return err
	}

	if err := report.PrintSummary(cmd.OutOrStdout(), rep); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nReport: %s\n", cfg.Report.Output)
	return nil
}
