package observability

import (
	"chat-match/domain"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// MonitoringStats is the snapshot served on /stats and logged by the reporter.
type MonitoringStats struct {
	Uptime string `json:"uptime"`

	// --- COUNTERS ---
	ConnectionsOpened    uint64            `json:"connections_opened"`
	ConnectionsClosed    uint64            `json:"connections_closed"`
	Matches              uint64            `json:"matches"`
	MessagesRelayed      uint64            `json:"messages_relayed"`
	Terminations         map[string]uint64 `json:"terminations"`
	RejectedEvents       uint64            `json:"rejected_events"`
	DroppedNotifications uint64            `json:"dropped_notifications"`

	// --- GAUGES ---
	Waiting               int `json:"waiting"`
	ActiveSessions        int `json:"active_sessions"`
	RegisteredConnections int `json:"registered_connections"`
	DispatchBacklog       int `json:"dispatch_backlog"`
	DispatchCapacity      int `json:"dispatch_capacity"`

	// --- SYSTEM METRICS ---
	RssBytes   uint64  `json:"rss_bytes"`
	CpuPercent float64 `json:"cpu_percent"`
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
}

// Gauges are read from the live structures at refresh time.
type Gauges struct {
	Waiting               int
	ActiveSessions        int
	RegisteredConnections int
	DispatchBacklog       int
	DispatchCapacity      int
}

type GaugeSource func() Gauges

// MonitoringManager aggregates counters pushed by the core and gauges pulled on refresh.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats
	startedAt   time.Time
	gauges      GaugeSource
	self        *process.Process

	connectionsOpened    uint64
	connectionsClosed    uint64
	matches              uint64
	messagesRelayed      uint64
	rejectedEvents       uint64
	droppedNotifications uint64
	terminations         sync.Map // domain.TerminationReason -> *uint64
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process metrics unavailable", "error", err)
	}
	return &MonitoringManager{
		log:       log,
		startedAt: time.Now(),
		self:      self,
		latestStats: MonitoringStats{
			Terminations: make(map[string]uint64),
		},
	}
}

// SetGaugeSource plugs the function reading the live structures.
func (mm *MonitoringManager) SetGaugeSource(source GaugeSource) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.gauges = source
}

func (mm *MonitoringManager) IncrConnectionsOpened() {
	atomic.AddUint64(&mm.connectionsOpened, 1)
}

func (mm *MonitoringManager) IncrConnectionsClosed() {
	atomic.AddUint64(&mm.connectionsClosed, 1)
}

func (mm *MonitoringManager) IncrMatches() {
	atomic.AddUint64(&mm.matches, 1)
}

func (mm *MonitoringManager) IncrMessagesRelayed() {
	atomic.AddUint64(&mm.messagesRelayed, 1)
}

func (mm *MonitoringManager) IncrRejectedEvents() {
	atomic.AddUint64(&mm.rejectedEvents, 1)
}

func (mm *MonitoringManager) IncrDroppedNotifications() {
	atomic.AddUint64(&mm.droppedNotifications, 1)
}

func (mm *MonitoringManager) IncrTerminations(reason domain.TerminationReason) {
	counter, _ := mm.terminations.LoadOrStore(reason, new(uint64))
	atomic.AddUint64(counter.(*uint64), 1)
}

// Refresh recomputes the snapshot from counters, gauges and process metrics.
func (mm *MonitoringManager) Refresh() MonitoringStats {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	stats := MonitoringStats{
		Uptime:               time.Since(mm.startedAt).Round(time.Second).String(),
		ConnectionsOpened:    atomic.LoadUint64(&mm.connectionsOpened),
		ConnectionsClosed:    atomic.LoadUint64(&mm.connectionsClosed),
		Matches:              atomic.LoadUint64(&mm.matches),
		MessagesRelayed:      atomic.LoadUint64(&mm.messagesRelayed),
		RejectedEvents:       atomic.LoadUint64(&mm.rejectedEvents),
		DroppedNotifications: atomic.LoadUint64(&mm.droppedNotifications),
		Terminations:         make(map[string]uint64),
	}
	mm.terminations.Range(func(key, value any) bool {
		stats.Terminations[string(key.(domain.TerminationReason))] = atomic.LoadUint64(value.(*uint64))
		return true
	})

	if mm.gauges != nil {
		gauges := mm.gauges()
		stats.Waiting = gauges.Waiting
		stats.ActiveSessions = gauges.ActiveSessions
		stats.RegisteredConnections = gauges.RegisteredConnections
		stats.DispatchBacklog = gauges.DispatchBacklog
		stats.DispatchCapacity = gauges.DispatchCapacity
	}

	if mm.self != nil {
		if memInfo, err := mm.self.MemoryInfo(); err == nil {
			stats.RssBytes = memInfo.RSS
		}
		if cpu, err := mm.self.CPUPercent(); err == nil {
			stats.CpuPercent = cpu
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.AllocMemMb = m.Alloc / 1024 / 1024
	stats.NumGC = m.NumGC

	mm.latestStats = stats
	return stats
}

// GetLatest returns the last refreshed snapshot.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}
