package runtime

import (
	"chat-match/domain"
	"chat-match/errors"
	"chat-match/infrastructure/storage"
	"chat-match/lifecycle"
	"chat-match/mocks"
	"chat-match/observability"
	"chat-match/runtime/workers"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupOrchestrator(t *testing.T, bufferSize int) *Orchestrator {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitoring := observability.NewMonitoringManager(log)
	registry := NewRegistry(log, monitoring)
	manager := lifecycle.NewManager(log, registry, storage.NewMessageLog(db, log), monitoring, false)
	return NewOrchestrator(log, workers.NewSupervisor(log, 10*time.Millisecond),
		registry, manager, monitoring, bufferSize, 20*time.Millisecond, time.Minute)
}

func TestOrchestrator_DispatchTimesOutWhenFull(t *testing.T) {
	req := require.New(t)
	o := setupOrchestrator(t, 1)
	ctx := context.Background()

	// Given nothing drains the channel
	req.NoError(o.Dispatch(ctx, domain.FindPartnerCommand{Conn: "a"}))

	// Then the next command is rejected after the timeout
	err := o.Dispatch(ctx, domain.FindPartnerCommand{Conn: "b"})
	req.ErrorIs(err, errors.ErrDispatchTimeout)
}

func TestOrchestrator_DispatchHonorsContext(t *testing.T) {
	req := require.New(t)
	o := setupOrchestrator(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req.ErrorIs(o.Dispatch(ctx, domain.FindPartnerCommand{Conn: "a"}), context.Canceled)
}

func TestOrchestrator_PairsThroughDispatcher(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	o := setupOrchestrator(t, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sinkA := mocks.NewMockConnectionSink(ctrl)
	sinkB := mocks.NewMockConnectionSink(ctrl)
	received := make(chan string, 8)
	record := func(data []byte) error {
		received <- string(data)
		return nil
	}
	sinkA.EXPECT().Send(gomock.Any()).DoAndReturn(record).AnyTimes()
	sinkB.EXPECT().Send(gomock.Any()).DoAndReturn(record).AnyTimes()

	o.Registry().Register("conn-a", sinkA)
	o.Registry().Register("conn-b", sinkB)

	done := make(chan struct{})
	go func() {
		o.Start(ctx)
		close(done)
	}()

	// When both connections look for a partner
	req.NoError(o.Dispatch(ctx, domain.FindPartnerCommand{Conn: "conn-a"}))
	req.NoError(o.Dispatch(ctx, domain.FindPartnerCommand{Conn: "conn-b"}))

	// Then a waits, then both are matched
	req.Eventually(func() bool { return o.Stats().ActiveSessions == 1 }, time.Second, 5*time.Millisecond)
	req.Contains(<-received, `"event":"waiting"`)
	req.Contains(<-received, `"event":"matched"`)
	req.Contains(<-received, `"event":"matched"`)

	stats := o.Stats()
	req.Equal(uint64(1), stats.Matches)
	req.Equal(2, stats.RegisteredConnections)
	req.Equal(16, stats.DispatchCapacity)

	o.Stop()
	<-done
}
