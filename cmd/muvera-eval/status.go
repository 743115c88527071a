package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/asmuvera/muvera-eval/internal/client"
	"github.com/asmuvera/muvera-eval/internal/config"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check engines and data files",
		RunE:  runStatus,
	}
	cmd.Flags().Duration("timeout", 5*time.Second, "timeout for each engine check")
	cmd.Flags().String("server", "", "also check a muvera-eval server at this URL")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Engines")
	checkVespa(cmd.Context(), out, cfg, timeout)
	checkQdrant(cmd.Context(), out, cfg, timeout)

	if serverURL, _ := cmd.Flags().GetString("server"); serverURL != "" {
		fmt.Fprintln(out, "\nServer")
		checkServer(cmd.Context(), out, serverURL, timeout)
	}

	fmt.Fprintln(out, "\nData files")
	files := []struct{ name, path string }{
		{"queries", cfg.Eval.QueriesPath},
		{"judgments", cfg.Eval.JudgmentsPath},
		{"passages", cfg.Keyword.PassagesPath},
	}
	if cfg.Embedding.Source == "precomputed" {
		files = append(files, struct{ name, path string }{"embeddings", cfg.Embedding.Path})
	}
	for _, f := range files {
		printFile(out, f.name, f.path)
	}
	return nil
}

func checkVespa(ctx context.Context, out io.Writer, cfg *config.Config, timeout time.Duration) {
	vc, err := newVespa(cfg)
	if err != nil {
		printCheck(out, "vespa", false, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := vc.Status(ctx); err != nil {
		printCheck(out, "vespa", false, err.Error())
		return
	}
	printCheck(out, "vespa", true, vc.URL())
}

func checkQdrant(ctx context.Context, out io.Writer, cfg *config.Config, timeout time.Duration) {
	qc, err := newQdrant(cfg)
	if err != nil {
		printCheck(out, "qdrant", false, err.Error())
		return
	}
	defer func() { _ = qc.Close() }()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := qc.GetVersion(ctx)
	if err != nil {
		printCheck(out, "qdrant", false, err.Error())
		return
	}
	printCheck(out, "qdrant", true, fmt.Sprintf("%s (version %s)", cfg.Qdrant.URL, v))

	exists, err := qc.CollectionExists(ctx, cfg.Qdrant.Collection)
	if err != nil {
		printCheck(out, "  "+cfg.Qdrant.Collection, false, err.Error())
		return
	}
	if !exists {
		printCheck(out, "  "+cfg.Qdrant.Collection, false, "collection not found")
		return
	}

	info, err := qc.GetCollectionInfo(ctx, cfg.Qdrant.Collection)
	if err != nil {
		printCheck(out, "  "+cfg.Qdrant.Collection, false, err.Error())
		return
	}
	printCheck(out, "  "+cfg.Qdrant.Collection, true,
		fmt.Sprintf("%d points, status %s", info.PointsCount, info.Status))
}

func checkServer(ctx context.Context, out io.Writer, serverURL string, timeout time.Duration) {
	c := client.New(client.Config{BaseURL: serverURL, Timeout: timeout})

	health, err := c.Health(ctx)
	if err != nil {
		printCheck(out, "muvera-eval", false, err.Error())
		return
	}
	printCheck(out, "muvera-eval", true, fmt.Sprintf("%s (version %s)", serverURL, health.Version))

	strategies, err := c.Strategies(ctx)
	if err != nil {
		printCheck(out, "  strategies", false, err.Error())
		return
	}
	for _, s := range strategies {
		detail := s.Engine
		if !s.Enabled {
			detail += ", not configured"
		}
		printCheck(out, "  "+s.Name, s.Enabled, detail)
	}
}

func printFile(out io.Writer, name, path string) {
	if path == "" {
		printCheck(out, name, false, "not configured")
		return
	}
	st, err := os.Stat(path)
	if err != nil {
		printCheck(out, name, false, path+" missing")
		return
	}
	printCheck(out, name, true, fmt.Sprintf("%s (%d bytes)", path, st.Size()))
}

func printCheck(out io.Writer, name string, ok bool, detail string) {
	mark := "ok  "
	if !ok {
		mark = "FAIL"
	}
	fmt.Fprintf(out, "  [%s] %-20s %s\n", mark, name, detail)
}
