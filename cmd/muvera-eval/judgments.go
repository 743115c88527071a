package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asmuvera/muvera-eval/internal/client"
	"github.com/asmuvera/muvera-eval/internal/dataset"
)

func judgmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "judgments [file]",
		Short: "Upload relevance judgments to a server's store",
		Long: `Load a judgments file (JSONL or TREC qrels) and add it to the judgment
store of a running muvera-eval server. Later evaluations on that server use
the uploaded grades. Defaults to eval.judgments from the config.

Examples:
  muvera-eval judgments data/qrels.jsonl --server http://localhost:8090`,
		Args: cobra.MaximumNArgs(1),
		RunE: runJudgments,
	}
	cmd.Flags().String("server", client.DefaultConfig().BaseURL, "muvera-eval server URL")
	return cmd
}

func runJudgments(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := cfg.Eval.JudgmentsPath
	if len(args) == 1 {
		path = args[0]
	}

	j, err := dataset.LoadJudgments(path)
	if err != nil {
		return err
	}

	ccfg := client.DefaultConfig()
	ccfg.BaseURL, _ = cmd.Flags().GetString("server")
	if err := client.New(ccfg).LoadJudgments(cmd.Context(), client.JudgmentInputs(j)); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d judgments for %d queries to %s\n",
		j.Len(), len(j.QueryIDs()), ccfg.BaseURL)
	return nil
}
