package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/asmuvera/muvera-eval/internal/pkg/logger"
	"github.com/asmuvera/muvera-eval/internal/qdrant"
)

// VespaStatus checks a Vespa container.
type VespaStatus interface {
	Status(ctx context.Context) error
}

// QdrantStatus checks a Qdrant instance.
type QdrantStatus interface {
	HealthCheck(ctx context.Context) error
	GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error)
}

// Collector refreshes engine health and system gauges.
type Collector struct {
	metrics    *Metrics
	vespa      VespaStatus
	qdrant     QdrantStatus
	collection string
	log        *logger.Logger
}

// NewCollector creates a new metrics collector. vespa and qdrant may be nil
// when the engine is not in use.
func NewCollector(metrics *Metrics, vespa VespaStatus, qdrant QdrantStatus, collection string, log *logger.Logger) *Collector {
	if log == nil {
		log = logger.Default()
	}
	return &Collector{
		metrics:    metrics,
		vespa:      vespa,
		qdrant:     qdrant,
		collection: collection,
		log:        log,
	}
}

// Collect checks every configured engine once and returns the gathered
// statistics.
func (c *Collector) Collect(ctx context.Context) map[string]any {
	stats := make(map[string]any)

	if c.vespa != nil {
		err := c.vespa.Status(ctx)
		c.metrics.SetEngineUp("vespa", err == nil)
		stats["vespa_up"] = err == nil
		if err != nil {
			c.log.Debug("Vespa health check failed", "error", err.Error())
		}
	}

	if c.qdrant != nil {
		err := c.qdrant.HealthCheck(ctx)
		c.metrics.SetEngineUp("qdrant", err == nil)
		stats["qdrant_up"] = err == nil
		if err != nil {
			c.log.Debug("Qdrant health check failed", "error", err.Error())
		} else if info, err := c.qdrant.GetCollectionInfo(ctx, c.collection); err == nil {
			c.metrics.SetEnginePoints("qdrant", c.collection, info.PointsCount)
			stats["qdrant_points"] = info.PointsCount
			stats["qdrant_segments"] = info.SegmentsCount
			stats["qdrant_status"] = info.Status
		}
	}

	c.metrics.UpdateSystemMetrics()
	stats["goroutines"] = c.metrics.GoroutineCount.Value()
	stats["memory_bytes"] = c.metrics.MemoryUsage.Value()
	stats["uptime_seconds"] = c.metrics.Uptime.Value()
	stats["queries_evaluated_total"] = c.metrics.QueriesEvaluated.Value()
	stats["active_runs"] = c.metrics.ActiveRuns.Value()

	return stats
}

// Start collects every interval until ctx is done.
func (c *Collector) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.collectWithTimeout(ctx, interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collectWithTimeout(ctx, interval)
		}
	}
}

func (c *Collector) collectWithTimeout(ctx context.Context, timeout time.Duration) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	c.Collect(cctx)
}

// Summary returns a human-readable summary of current metrics.
func (c *Collector) Summary(ctx context.Context) string {
	stats := c.Collect(ctx)

	var sb strings.Builder
	sb.WriteString("muvera-eval metrics\n")
	sb.WriteString("===================\n\n")

	for _, engine := range []string{"vespa", "qdrant"} {
		if up, ok := stats[engine+"_up"].(bool); ok {
			state := "down"
			if up {
				state = "up"
			}
			fmt.Fprintf(&sb, "%-18s %s\n", engine+":", state)
		}
	}
	if points, ok := stats["qdrant_points"].(uint64); ok {
		fmt.Fprintf(&sb, "%-18s %s\n", "Qdrant points:", formatInt(int64(points)))
	}

	fmt.Fprintf(&sb, "%-18s %s\n", "Queries evaluated:", formatInt(c.metrics.QueriesEvaluated.Value()))
	fmt.Fprintf(&sb, "%-18s %d\n", "Goroutines:", int(c.metrics.GoroutineCount.Value()))
	fmt.Fprintf(&sb, "%-18s %s\n", "Memory:", formatBytes(int64(c.metrics.MemoryUsage.Value())))
	fmt.Fprintf(&sb, "%-18s %s\n", "Uptime:", formatDuration(int64(c.metrics.Uptime.Value())))

	return sb.String()
}

func formatInt(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatDuration(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
