package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/asmuvera/muvera-eval/internal/bus"
	"github.com/asmuvera/muvera-eval/internal/metrics"
	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show or replay evaluation events from the event log",
		Long: `Read the JSONL event log written when bus.event_log is set.

Without --replay every matching event is printed, oldest first. With
--replay the events are published to a fresh in-memory bus and the run
counters they produce are printed.

Examples:
  muvera-eval events --run 6f1c...
  muvera-eval events --since 1h --limit 20
  muvera-eval events --run 6f1c... --replay`,
		RunE: runEvents,
	}

	cmd.Flags().String("log", "", "event log path (default: bus.event_log)")
	cmd.Flags().String("run", "", "only events of this run id")
	cmd.Flags().String("since", "", "only events after this time (RFC3339) or this long ago (e.g. 1h)")
	cmd.Flags().Int("limit", 0, "print at most this many events (0 = all)")
	cmd.Flags().Bool("json", false, "print events as JSON lines")
	cmd.Flags().Bool("replay", false, "replay events through a fresh bus and print the resulting counters")

	return cmd
}

func runEvents(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg)
	flags := cmd.Flags()

	path := cfg.Bus.EventLog
	if flags.Changed("log") {
		path, _ = flags.GetString("log")
	}
	if path == "" {
		return apperrors.ValidationError("no event log configured; set bus.event_log or pass --log")
	}

	sinceStr, _ := flags.GetString("since")
	since, err := parseSince(sinceStr, time.Now())
	if err != nil {
		return err
	}
	runID, _ := flags.GetString("run")
	eventLog := bus.OpenEventLog(path)

	if replay, _ := flags.GetBool("replay"); replay {
		return replayEvents(cmd.Context(), cmd.OutOrStdout(), eventLog, since, runID, log)
	}

	limit, _ := flags.GetInt("limit")
	events, err := eventLog.GetEvents(since, runID, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := flags.GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	for _, e := range events {
		fmt.Fprintf(out, "%s  %-28s run=%s %s\n",
			e.Timestamp.Format(time.RFC3339), e.Topic, e.Event.CorrelationID, describeEvent(e))
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "No events found.")
	}
	return nil
}

// replayEvents publishes the logged events to a memory bus whose only
// subscriber is the metrics event subscriber.
func replayEvents(ctx context.Context, out io.Writer, eventLog *bus.EventLogger, since time.Time, runID string, log *logger.Logger) error {
	m := metrics.New()
	replayBus := bus.NewMemoryBus(log)
	if err := metrics.NewEventSubscriber(m, replayBus).SubscribeToEvents(ctx); err != nil {
		return err
	}

	var published int
	counting := publisherFunc(func(ctx context.Context, topic string, event bus.Event) error {
		published++
		return replayBus.Publish(ctx, topic, event)
	})

	replayErr := eventLog.Replay(ctx, counting, since, runID)
	if err := replayBus.Close(); err != nil {
		log.Warn("Failed to close replay bus", "error", err)
	}
	if replayErr != nil {
		return replayErr
	}

	fmt.Fprintf(out, "Replayed %d events\n", published)
	fmt.Fprintf(out, "  queries evaluated: %d\n", m.QueriesEvaluated.Value())
	fmt.Fprintf(out, "  failed calls:      %d\n", m.RunFailures.Value())
	return nil
}

type publisherFunc func(ctx context.Context, topic string, event bus.Event) error

func (f publisherFunc) Publish(ctx context.Context, topic string, event bus.Event) error {
	return f(ctx, topic, event)
}

// parseSince accepts an RFC3339 time or a duration counted back from now.
// An empty string means the beginning of the log.
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return time.Time{}, apperrors.ValidationError(fmt.Sprintf("--since must not be negative: %s", s))
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperrors.ValidationError(fmt.Sprintf("--since must be RFC3339 or a duration: %s", s))
	}
	return t, nil
}

func describeEvent(e bus.LoggedEvent) string {
	switch e.Topic {
	case bus.TopicRunStarted:
		p, err := bus.DecodePayload[bus.RunPayload](e.Event)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("queries=%d strategies=%s", p.Queries, strings.Join(p.Strategies, ","))
	case bus.TopicQueryCompleted:
		p, err := bus.DecodePayload[bus.QueryCompletedPayload](e.Event)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("query=%s progress=%d/%d failures=%d", p.QueryID, p.Completed, p.Total, p.Failures)
	case bus.TopicRunCompleted:
		p, err := bus.DecodePayload[bus.RunPayload](e.Event)
		if err != nil {
			return ""
		}
		s := fmt.Sprintf("records=%d failures=%d duration_ms=%d", p.Records, p.Failures, p.DurationMs)
		if p.Error != "" {
			s += " error=" + p.Error
		}
		return s
	}
	return ""
}
