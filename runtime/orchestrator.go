// Package runtime wires transport events to the pairing core.
// It orchestrates the system without containing business logic or domain rules.
package runtime

import (
	"chat-match/contract"
	"chat-match/domain"
	"chat-match/errors"
	"chat-match/lifecycle"
	"chat-match/observability"
	"chat-match/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"time"
)

var _ contract.Dispatcher = (*Orchestrator)(nil)

type Orchestrator struct {
	log             *slog.Logger
	supervisor      contract.ISupervisor
	registry        *Registry
	manager         *lifecycle.Manager
	monitoring      *observability.MonitoringManager
	commands        chan domain.Command
	dispatchTimeout time.Duration
	metricInterval  time.Duration
}

func NewOrchestrator(log *slog.Logger, supervisor *workers.Supervisor,
	registry *Registry, manager *lifecycle.Manager, monitoring *observability.MonitoringManager,
	bufferSize int, dispatchTimeout, metricInterval time.Duration) *Orchestrator {
	return &Orchestrator{
		log:             log,
		supervisor:      supervisor,
		registry:        registry,
		manager:         manager,
		monitoring:      monitoring,
		commands:        make(chan domain.Command, bufferSize),
		dispatchTimeout: dispatchTimeout,
		metricInterval:  metricInterval,
	}
}

// Dispatch queues cmd for the dispatcher worker.
// It waits at most the dispatch timeout for room in the queue, a command is never dropped silently.
func (o *Orchestrator) Dispatch(ctx context.Context, cmd domain.Command) error {
	select {
	case o.commands <- cmd:
		return nil
	default:
	}

	timer := time.NewTimer(o.dispatchTimeout)
	defer timer.Stop()

	select {
	case o.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		o.log.Warn("Command channel full, command rejected",
			"conn", cmd.ConnectionID().Suffix(), "backlog", len(o.commands))
		return fmt.Errorf("%T after %s: %w", cmd, o.dispatchTimeout, errors.ErrDispatchTimeout)
	}
}

// Registry is the connection directory transports register into.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Stats refreshes and returns the current metrics snapshot.
func (o *Orchestrator) Stats() observability.MonitoringStats {
	return o.monitoring.Refresh()
}

// Start plugs the gauges, registers the workers and blocks until ctx is done or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	o.monitoring.SetGaugeSource(func() observability.Gauges {
		snapshot := o.manager.Snapshot()
		return observability.Gauges{
			Waiting:               snapshot.Waiting,
			ActiveSessions:        snapshot.ActiveSessions,
			RegisteredConnections: o.registry.Len(),
			DispatchBacklog:       len(o.commands),
			DispatchCapacity:      cap(o.commands),
		}
	})

	o.supervisor.
		Add(workers.NewDispatcherWorker(o.log, o.commands, o.manager)).
		Add(workers.NewReporterWorker(o.log, o.monitoring, o.metricInterval))

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
}

func (o *Orchestrator) Stop() {
	o.supervisor.Stop()
}
