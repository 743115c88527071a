package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/asmuvera/muvera-eval/internal/bus"
	"github.com/asmuvera/muvera-eval/internal/config"
	"github.com/asmuvera/muvera-eval/internal/dataset"
	"github.com/asmuvera/muvera-eval/internal/evaluation"
	"github.com/asmuvera/muvera-eval/internal/metrics"
	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
	"github.com/asmuvera/muvera-eval/internal/retrieval"
	"github.com/asmuvera/muvera-eval/internal/server"
	"github.com/asmuvera/muvera-eval/internal/watch"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation HTTP API",
		Long: `Serve the evaluation API:
  POST /v1/evaluation/evaluate     run an evaluation
  POST /v1/evaluation/judgments    add relevance judgments
  GET  /v1/evaluation/strategies   list strategies
  GET  /v1/evaluation/runs         recent runs
  GET  /metrics                    Prometheus metrics`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "HTTP server port")
	cmd.Flags().String("host", "", "HTTP server host")
	cmd.Flags().Bool("watch", false, "reload the judgments file when it changes")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := newLogger(cmd, cfg)

	log.Info("Starting muvera-eval server", "version", version, "addr", cfg.Address())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	req, err := retrieval.Needs(cfg.Eval.Strategies, cfg.Fusion)
	if err != nil {
		return err
	}
	eng, err := openEngines(cfg, req, m, log)
	if err != nil {
		return err
	}

	adapters, err := retrieval.Build(cfg, eng.deps())
	if err != nil {
		_ = eng.Close()
		return err
	}

	innerBus, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		_ = eng.Close()
		return err
	}
	eventBus := bus.NewInstrumentedBus(innerBus, m)
	if err := metrics.NewEventSubscriber(m, eventBus).SubscribeToEvents(ctx); err != nil {
		log.Warn("Failed to subscribe metrics to events", "error", err)
	}

	handler := evaluation.NewHandler(evaluation.HandlerConfig{
		Options:   evaluation.OptionsFromConfig(cfg),
		Adapters:  adapters,
		Judgments: loadServeJudgments(cfg, log),
		Log:       log,
		Publisher: eventBus,
		Recorder:  m,
	})

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Host
	srvCfg.Port = cfg.Port
	srvCfg.Version = version
	srvCfg.RateLimit = cfg.Security.RateLimit
	srvCfg.RateBurst = cfg.Security.RateBurst

	srv, err := server.New(srvCfg, server.Deps{
		Evaluation: handler,
		Metrics:    m,
		Collector:  eng.collector(m, cfg, log),
		Closers:    []io.Closer{eventBus, eng},
	}, log)
	if err != nil {
		_ = eventBus.Close()
		_ = eng.Close()
		return err
	}

	if watchJudgments, _ := cmd.Flags().GetBool("watch"); watchJudgments {
		if err := startJudgmentsWatcher(ctx, cfg.Eval.JudgmentsPath, handler, log); err != nil {
			log.Warn("Judgments file is not watched", "error", err)
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		_ = srv.Stop(context.Background())
		return err
	case <-ctx.Done():
	}

	if err := srv.Stop(context.Background()); err != nil {
		return err
	}
	return <-errCh
}

// loadServeJudgments preloads the configured judgments file. The API can
// still receive judgments when the file is missing.
func loadServeJudgments(cfg *config.Config, log *logger.Logger) *dataset.Judgments {
	if cfg.Eval.JudgmentsPath == "" {
		return dataset.NewJudgments()
	}
	j, err := dataset.LoadJudgments(cfg.Eval.JudgmentsPath)
	if err != nil {
		log.Warn("Starting without judgments", "path", cfg.Eval.JudgmentsPath, "error", err)
		return dataset.NewJudgments()
	}
	log.Info("Loaded judgments", "path", cfg.Eval.JudgmentsPath, "judgments", j.Len())
	return j
}

// startJudgmentsWatcher reloads path into handler whenever it changes. A file
// that fails to load leaves the current judgments in place.
func startJudgmentsWatcher(ctx context.Context, path string, handler *evaluation.Handler, log *logger.Logger) error {
	w, err := watch.New(watch.Config{
		Path: path,
		OnChange: func(p string) {
			j, err := dataset.LoadJudgments(p)
			if err != nil {
				log.WithError(err).Warn("Keeping previous judgments", "path", p)
				return
			}
			handler.ReplaceJudgments(j)
			log.Info("Reloaded judgments", "path", p, "judgments", j.Len())
		},
		Log: log,
	})
	if err != nil {
		return err
	}

	go func() {
		if err := w.Start(ctx); err != nil {
			log.Error("Judgments watcher stopped", "error", err)
		}
	}()
	return nil
}
