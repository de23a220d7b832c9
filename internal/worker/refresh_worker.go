// Package worker consumes change events and keeps derived views warm. The
// dashboard is recomputed from storage on demand, so the worker's job is
// cache invalidation plus an eager rebuild of the current period.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/services"
)

// TimelineExporter pushes a rebuilt timeline to an external sink.
type TimelineExporter interface {
	ExportTimeline(ctx context.Context, points []core.PeriodDataPoint) error
}

// RefreshWorker reacts to import and plan change events.
type RefreshWorker struct {
	dashboards *services.DashboardService
	workspace  string
	exporter   TimelineExporter
}

// NewRefreshWorker builds a worker. exporter may be nil when no spreadsheet
// export is configured.
func NewRefreshWorker(dashboards *services.DashboardService, workspace string, exporter TimelineExporter) *RefreshWorker {
	return &RefreshWorker{dashboards: dashboards, workspace: workspace, exporter: exporter}
}

// HandleChangeEvent drops stale memos and rebuilds the current period view.
// Events for other workspaces are acknowledged and skipped.
func (w *RefreshWorker) HandleChangeEvent(ctx context.Context, event *amqp.ChangeEvent) error {
	if event.Workspace != w.workspace {
		slog.DebugContext(ctx, "Ignoring event for other workspace",
			"event_workspace", event.Workspace,
			"workspace", w.workspace)
		return nil
	}

	slog.InfoContext(ctx, "Processing change event",
		"kind", event.Kind,
		"workspace", event.Workspace,
		"source_file", event.SourceFile,
		"plan_id", event.PlanID)

	w.dashboards.InvalidatePlans()

	// Warm the current period so the next request is served from a fresh
	// computation without paying the full latency.
	data, err := w.dashboards.Dashboard(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("rebuild current period: %w", err)
	}

	if w.exporter != nil && len(data.Timeline) > 0 {
		// Export is a side channel; a failed push must not requeue the event.
		if err := w.exporter.ExportTimeline(ctx, data.Timeline); err != nil {
			slog.ErrorContext(ctx, "Failed to export timeline", "error", err)
		}
	}

	slog.InfoContext(ctx, "Current period view rebuilt", "kind", event.Kind)
	return nil
}
