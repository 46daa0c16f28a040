package workers

import (
	"chat-match/observability"
	"context"
	"log/slog"
	"time"
)

type ReporterWorker struct {
	log        *slog.Logger
	monitoring *observability.MonitoringManager
	interval   time.Duration
}

func NewReporterWorker(log *slog.Logger, monitoring *observability.MonitoringManager, interval time.Duration) *ReporterWorker {
	return &ReporterWorker{log: log, monitoring: monitoring, interval: interval}
}

// Run refreshes and logs the metrics snapshot until context cancellation
func (w *ReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.report()
			w.log.Info("Reporter stopped")
			return ctx.Err()
		case <-ticker.C:
			w.report()
		}
	}
}

func (w *ReporterWorker) report() {
	stats := w.monitoring.Refresh()
	w.log.Info("Pairing stats",
		"uptime", stats.Uptime,
		"connections", stats.RegisteredConnections,
		"waiting", stats.Waiting,
		"sessions", stats.ActiveSessions,
		"matches", stats.Matches,
		"messages", stats.MessagesRelayed,
		"dispatch_backlog", stats.DispatchBacklog,
		"rss_mb", stats.RssBytes/1024/1024,
	)
}
