package lifecycle

import (
	"chat-match/domain"
	"chat-match/errors"
	"chat-match/infrastructure/storage"
	"chat-match/internal/recorder"
	"chat-match/mocks"
	"chat-match/observability"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupManager(t *testing.T, errorAcks bool) (*Manager, *recorder.Recorder, *observability.MonitoringManager) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	rec := recorder.New()
	monitoring := observability.NewMonitoringManager(log)
	return NewManager(log, rec, storage.NewMessageLog(db, log), monitoring, errorAcks), rec, monitoring
}

func matchedPayload(t *testing.T, rec *recorder.Recorder, conn domain.ConnectionID) domain.MatchedPayload {
	last, ok := rec.Last(conn)
	require.True(t, ok)
	require.Equal(t, domain.EventMatched, last.Event)
	return last.Payload.(domain.MatchedPayload)
}

func TestManager_Scenario(t *testing.T) {
	req := require.New(t)
	m, rec, _ := setupManager(t, false)
	ctx := context.Background()
	a, b := domain.ConnectionID("conn-a-aaaa"), domain.ConnectionID("conn-b-bbbb")

	m.OnConnect(ctx, a, "")
	m.OnConnect(ctx, b, "")

	// A looks for a partner and waits
	req.NoError(m.OnFindPartner(ctx, a))
	last, _ := rec.Last(a)
	req.Equal(domain.EventWaiting, last.Event)
	req.Equal(domain.StateWaiting, m.State(a))

	// B looks for a partner and both are matched on the same session
	req.NoError(m.OnFindPartner(ctx, b))
	forA := matchedPayload(t, rec, a)
	forB := matchedPayload(t, rec, b)
	req.Equal(forA.SessionID, forB.SessionID)
	req.Equal("bbbb", forA.Partner)
	req.Equal("aaaa", forB.Partner)
	req.Equal(domain.StatePaired, m.State(a))
	req.Equal(domain.StatePaired, m.State(b))
	s := forA.SessionID

	// A says hi
	req.NoError(m.OnSendMessage(ctx, a, s, "hi"))
	last, _ = rec.Last(b)
	req.Equal(domain.EventNewMessage, last.Event)
	req.Equal(domain.NewMessagePayload{Sender: "User_aaaa", Message: "hi"}, last.Payload)
	last, _ = rec.Last(a)
	req.Equal(domain.EventMessageAck, last.Event)
	req.Equal(domain.MessageAckPayload{Status: "delivered", Message: "hi"}, last.Payload)

	// B disconnects, A is told and S is gone
	m.OnDisconnect(ctx, b)
	last, _ = rec.Last(a)
	req.Equal(domain.EventStatus, last.Event)
	req.Equal(domain.StatusPayload{Message: "Your partner disconnected."}, last.Payload)
	req.Equal(domain.StateIdle, m.State(a))
	req.Equal(domain.StateIdle, m.State(b))
	req.Zero(m.Snapshot().ActiveSessions)
	_, err := m.Messages(ctx, s)
	req.ErrorIs(err, errors.ErrInvalidSession)
	req.NoError(m.CheckInvariants())
}

func TestManager_ConnectLabels(t *testing.T) {
	req := require.New(t)
	m, rec, _ := setupManager(t, false)
	ctx := context.Background()

	req.NoError(m.Handle(ctx, domain.ConnectCommand{Conn: "conn-1234"}))
	req.NoError(m.Handle(ctx, domain.ConnectCommand{Conn: "conn-5678", ClientLabel: "alice"}))

	last, _ := rec.Last("conn-1234")
	req.Equal(domain.ConnectedPayload{UserID: "User_1234"}, last.Payload)
	last, _ = rec.Last("conn-5678")
	req.Equal(domain.ConnectedPayload{UserID: "User_alice"}, last.Payload)
}

func TestManager_FIFOPairing(t *testing.T) {
	for _, n := range []int{1, 2, 5, 8} {
		t.Run(fmt.Sprintf("%d connections", n), func(t *testing.T) {
			req := require.New(t)
			m, rec, _ := setupManager(t, false)
			ctx := context.Background()

			conns := make([]domain.ConnectionID, n)
			for i := range conns {
				conns[i] = domain.ConnectionID(fmt.Sprintf("conn-%04d", i))
				req.NoError(m.OnFindPartner(ctx, conns[i]))
				req.NoError(m.CheckInvariants())
			}

			// Pairs are formed in arrival order: (0,1), (2,3)...
			for i := 0; i+1 < n; i += 2 {
				first := matchedPayload(t, rec, conns[i])
				second := matchedPayload(t, rec, conns[i+1])
				req.Equal(first.SessionID, second.SessionID)
				req.Equal(conns[i+1].Suffix(), first.Partner)
				req.Equal(domain.StatePaired, m.State(conns[i]))
			}
			if n%2 == 1 {
				req.Equal(domain.StateWaiting, m.State(conns[n-1]))
			}
			req.Equal(Snapshot{Waiting: n % 2, ActiveSessions: n / 2}, m.Snapshot())
		})
	}
}

func TestManager_FindPartnerWhilePairedIsIgnored(t *testing.T) {
	req := require.New(t)
	m, rec, _ := setupManager(t, false)
	ctx := context.Background()

	req.NoError(m.OnFindPartner(ctx, "a"))
	req.NoError(m.OnFindPartner(ctx, "b"))
	rec.Reset()

	req.ErrorIs(m.OnFindPartner(ctx, "a"), errors.ErrAlreadyPaired)
	req.Empty(rec.All())
	req.Equal(domain.StatePaired, m.State("a"))
}

func TestManager_FindPartnerWhileWaitingMovesToTail(t *testing.T) {
	req := require.New(t)
	m, rec, _ := setupManager(t, false)
	ctx := context.Background()

	req.NoError(m.OnFindPartner(ctx, "a"))
	req.NoError(m.OnFindPartner(ctx, "a"))

	// Still a single waiting entry, told twice
	req.Equal(1, m.Snapshot().Waiting)
	req.Equal(2, rec.Count("a", domain.EventWaiting))
	req.NoError(m.CheckInvariants())

	// The next caller is paired with it
	req.NoError(m.OnFindPartner(ctx, "b"))
	req.Equal(domain.StatePaired, m.State("a"))
}

func TestManager_DisconnectIsIdempotent(t *testing.T) {
	req := require.New(t)
	m, rec, monitoring := setupManager(t, false)
	ctx := context.Background()

	req.NoError(m.OnFindPartner(ctx, "a"))
	req.NoError(m.OnFindPartner(ctx, "b"))
	rec.Reset()

	m.OnDisconnect(ctx, "a")
	m.OnDisconnect(ctx, "a")
	m.OnDisconnect(ctx, "never-seen")

	req.Len(rec.All(), 1)
	req.Equal(1, rec.Count("b", domain.EventStatus))
	req.Equal(uint64(1), monitoring.Refresh().Terminations["disconnect"])
	req.NoError(m.CheckInvariants())
}

func TestManager_DisconnectWhileWaiting(t *testing.T) {
	req := require.New(t)
	m, rec, _ := setupManager(t, false)
	ctx := context.Background()

	req.NoError(m.OnFindPartner(ctx, "a"))
	rec.Reset()
	m.OnDisconnect(ctx, "a")

	req.Equal(domain.StateIdle, m.State("a"))
	req.Zero(m.Snapshot().Waiting)
	req.Empty(rec.All())
}

func TestManager_ManualLeave(t *testing.T) {
	req := require.New(t)
	m, rec, _ := setupManager(t, false)
	ctx := context.Background()

	req.NoError(m.OnFindPartner(ctx, "a"))
	req.NoError(m.OnFindPartner(ctx, "b"))
	s := matchedPayload(t, rec, "a").SessionID
	rec.Reset()

	// When A leaves without naming the session
	req.NoError(m.Handle(ctx, domain.ManualLeaveCommand{Conn: "a"}))

	// Then B is told, and both are idle
	req.Equal(1, rec.Count("b", domain.EventStatus))
	req.Empty(rec.For("a"))
	req.Equal(domain.StateIdle, m.State("a"))
	req.Equal(domain.StateIdle, m.State("b"))

	// And leaving again has no effect
	rec.Reset()
	req.ErrorIs(m.OnManualLeave(ctx, "a", ""), errors.ErrUnresolvableLeave)
	req.ErrorIs(m.OnManualLeave(ctx, "a", s), errors.ErrInvalidSession)
	req.Empty(rec.All())
}

func TestManager_ManualLeaveOfForeignSessionIsRejected(t *testing.T) {
	req := require.New(t)
	m, rec, _ := setupManager(t, false)
	ctx := context.Background()

	req.NoError(m.OnFindPartner(ctx, "a"))
	req.NoError(m.OnFindPartner(ctx, "b"))
	s := matchedPayload(t, rec, "a").SessionID
	rec.Reset()

	req.ErrorIs(m.OnManualLeave(ctx, "intruder", s), errors.ErrInvalidSession)
	req.Empty(rec.All())
	req.Equal(1, m.Snapshot().ActiveSessions)
}

func TestManager_ReconnectTerminatesPreviousSession(t *testing.T) {
	req := require.New(t)
	m, rec, monitoring := setupManager(t, false)
	ctx := context.Background()

	req.NoError(m.OnFindPartner(ctx, "a"))
	req.NoError(m.OnFindPartner(ctx, "b"))
	rec.Reset()

	m.OnConnect(ctx, "a", "")

	req.Equal(1, rec.Count("b", domain.EventStatus))
	req.Equal(1, rec.Count("a", domain.EventConnected))
	req.Equal(domain.StateIdle, m.State("b"))
	req.Equal(uint64(1), monitoring.Refresh().Terminations["reconnect"])
}

func TestManager_SendMessageToUnknownSession(t *testing.T) {
	req := require.New(t)
	m, rec, monitoring := setupManager(t, false)
	ctx := context.Background()

	err := m.Handle(ctx, domain.SendMessageCommand{Conn: "a", SessionID: "session:nope", Text: "hello"})
	req.ErrorIs(err, errors.ErrInvalidSession)
	req.Empty(rec.All())
	req.Equal(uint64(1), monitoring.Refresh().RejectedEvents)
}

func TestManager_ErrorAcks(t *testing.T) {
	req := require.New(t)
	m, rec, _ := setupManager(t, true)
	ctx := context.Background()

	_ = m.OnSendMessage(ctx, "a", "session:nope", "hello")
	last, ok := rec.Last("a")
	req.True(ok)
	req.Equal(domain.EventError, last.Event)
	req.Equal(domain.CodeInvalidSession, last.Payload.(domain.ErrorPayload).Code)

	_ = m.OnManualLeave(ctx, "a", "")
	last, _ = rec.Last("a")
	req.Equal(domain.CodeUnresolvableLeave, last.Payload.(domain.ErrorPayload).Code)

	err := m.Handle(ctx, domain.InvalidCommand{Conn: "a", Event: "send_message", Reason: "message is required"})
	req.ErrorIs(err, errors.ErrInvalidPayload)
	last, _ = rec.Last("a")
	req.Equal(domain.CodeInvalidPayload, last.Payload.(domain.ErrorPayload).Code)
}

func TestManager_StorageFailureIsNotReportedAsInvalidSession(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	rec := recorder.New()
	monitoring := observability.NewMonitoringManager(log)
	messageLog := mocks.NewMockMessageLog(ctrl)
	m := NewManager(log, rec, messageLog, monitoring, true)

	// Given a paired session whose log refuses writes
	req.NoError(m.OnFindPartner(ctx, "a"))
	req.NoError(m.OnFindPartner(ctx, "b"))
	s := matchedPayload(t, rec, "a").SessionID
	diskFull := fmt.Errorf("disk full")
	messageLog.EXPECT().Append(gomock.Any(), gomock.Any()).Return(diskFull)

	// When A sends a message
	err := m.OnSendMessage(ctx, "a", s, "hello")

	// Then the failure is returned but A gets neither an error ack nor a delivery ack
	req.ErrorIs(err, diskFull)
	req.NotErrorIs(err, errors.ErrInvalidSession)
	last, _ := rec.Last("a")
	req.Equal(domain.EventMatched, last.Event)
	last, _ = rec.Last("b")
	req.Equal(domain.EventMatched, last.Event)
	req.Zero(monitoring.Refresh().RejectedEvents)
	req.Equal(domain.StatePaired, m.State("a"))
}

func TestManager_TerminationsKeepOtherSessionLogs(t *testing.T) {
	req := require.New(t)
	m, rec, _ := setupManager(t, false)
	ctx := context.Background()

	// Given a long lived session with one message
	req.NoError(m.OnFindPartner(ctx, "stay-a"))
	req.NoError(m.OnFindPartner(ctx, "stay-b"))
	kept := matchedPayload(t, rec, "stay-a").SessionID
	req.NoError(m.OnSendMessage(ctx, "stay-a", kept, "still here"))

	// When 300 short sessions are created, used and ended around it
	for i := 0; i < 300; i++ {
		a, b := domain.ConnectionID(fmt.Sprintf("a-%d", i)), domain.ConnectionID(fmt.Sprintf("b-%d", i))
		req.NoError(m.OnFindPartner(ctx, a))
		req.NoError(m.OnFindPartner(ctx, b))
		s := matchedPayload(t, rec, a).SessionID
		req.NoError(m.OnSendMessage(ctx, a, s, "bye"))
		m.OnDisconnect(ctx, a)

		_, err := m.Messages(ctx, s)
		req.ErrorIs(err, errors.ErrInvalidSession)
	}

	// Then only the long lived session remains with its log intact
	req.Equal(Snapshot{Waiting: 0, ActiveSessions: 1}, m.Snapshot())
	messages, err := m.Messages(ctx, kept)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("still here", messages[0].Text)
	req.NoError(m.CheckInvariants())
}

type unknownCommand struct{}

func (unknownCommand) ConnectionID() domain.ConnectionID { return "x" }

func TestManager_UnknownCommand(t *testing.T) {
	m, _, _ := setupManager(t, false)
	require.ErrorIs(t, m.Handle(context.Background(), unknownCommand{}), errors.ErrUnknownCommand)
}

func TestManager_InvariantsHoldOverRandomSequences(t *testing.T) {
	req := require.New(t)
	m, rec, _ := setupManager(t, false)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	conns := make([]domain.ConnectionID, 8)
	for i := range conns {
		conns[i] = domain.ConnectionID(fmt.Sprintf("conn-%04d", i))
	}

	for step := 0; step < 2000; step++ {
		conn := conns[rng.Intn(len(conns))]
		var cmd domain.Command
		switch rng.Intn(6) {
		case 0:
			cmd = domain.ConnectCommand{Conn: conn}
		case 1, 2:
			cmd = domain.FindPartnerCommand{Conn: conn}
		case 3:
			var sessionID domain.SessionID
			if last, ok := rec.Last(conn); ok && last.Event == domain.EventMatched {
				sessionID = last.Payload.(domain.MatchedPayload).SessionID
			}
			cmd = domain.SendMessageCommand{Conn: conn, SessionID: sessionID, Text: "ping"}
		case 4:
			cmd = domain.DisconnectCommand{Conn: conn}
		default:
			cmd = domain.ManualLeaveCommand{Conn: conn}
		}

		_ = m.Handle(ctx, cmd)
		req.NoError(m.CheckInvariants(), "step %d: %T on %s", step, cmd, conn)
	}
}
