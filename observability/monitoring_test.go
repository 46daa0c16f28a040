package observability

import (
	"chat-match/domain"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitoringManager_Refresh(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(slog.Default())
	mm.SetGaugeSource(func() Gauges {
		return Gauges{Waiting: 1, ActiveSessions: 2, RegisteredConnections: 5}
	})

	// Given counters incremented from several goroutines
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mm.IncrMessagesRelayed()
			mm.IncrTerminations(domain.ReasonDisconnect)
		}()
	}
	wg.Wait()
	mm.IncrMatches()
	mm.IncrConnectionsOpened()
	mm.IncrTerminations(domain.ReasonManualLeave)

	// When the snapshot is refreshed
	stats := mm.Refresh()

	// Then counters and gauges are all there
	req.Equal(uint64(10), stats.MessagesRelayed)
	req.Equal(uint64(1), stats.Matches)
	req.Equal(uint64(1), stats.ConnectionsOpened)
	req.Equal(uint64(10), stats.Terminations["disconnect"])
	req.Equal(uint64(1), stats.Terminations["manual_leave"])
	req.Equal(1, stats.Waiting)
	req.Equal(2, stats.ActiveSessions)
	req.Equal(5, stats.RegisteredConnections)
	req.Equal(stats, mm.GetLatest())
}
