package runtime

import (
	"chat-match/domain"
	"chat-match/errors"
	"chat-match/mocks"
	"chat-match/observability"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRegistry_NotifyFramesEnvelope(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockConnectionSink(ctrl)
	registry := NewRegistry(slog.Default(), observability.NewMonitoringManager(slog.Default()))
	conn := domain.ConnectionID(uuid.NewString())

	// Given a registered connection
	registry.Register(conn, sink)
	req.Equal(1, registry.Len())

	// Then the sink receives the JSON envelope
	sink.EXPECT().Send([]byte(`{"event":"matched","data":{"session_id":"session:1","partner":"abcd"}}`)).Return(nil)

	// When an event is notified
	err := registry.Notify(context.Background(), conn, domain.EventMatched, domain.MatchedPayload{
		SessionID: "session:1",
		Partner:   "abcd",
	})
	req.NoError(err)
}

func TestRegistry_NotifyUnknownConnection(t *testing.T) {
	req := require.New(t)
	monitoring := observability.NewMonitoringManager(slog.Default())
	registry := NewRegistry(slog.Default(), monitoring)

	err := registry.Notify(context.Background(), "ghost", domain.EventStatus, domain.StatusPayload{})
	req.ErrorIs(err, errors.ErrConnectionGone)
	req.Equal(uint64(1), monitoring.Refresh().DroppedNotifications)
}

func TestRegistry_SlowConsumer(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockConnectionSink(ctrl)
	monitoring := observability.NewMonitoringManager(slog.Default())
	registry := NewRegistry(slog.Default(), monitoring)

	registry.Register("conn", sink)
	sink.EXPECT().Send(gomock.Any()).Return(errors.ErrSlowConsumer)

	err := registry.Notify(context.Background(), "conn", domain.EventWaiting, domain.WaitingPayload{Message: domain.WaitingMessage})
	req.ErrorIs(err, errors.ErrSlowConsumer)
	req.Equal(uint64(1), monitoring.Refresh().DroppedNotifications)
}

func TestRegistry_RegisterTwiceClosesPrevious(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	first := mocks.NewMockConnectionSink(ctrl)
	second := mocks.NewMockConnectionSink(ctrl)
	registry := NewRegistry(slog.Default(), observability.NewMonitoringManager(slog.Default()))

	first.EXPECT().Close().Times(1)
	second.EXPECT().Close().Times(1)

	registry.Register("conn", first)
	registry.Register("conn", second)
	req.Equal(1, registry.Len())

	// Unregister closes the current sink, a second call is a no-op
	registry.Unregister("conn")
	registry.Unregister("conn")
	req.Zero(registry.Len())
}
