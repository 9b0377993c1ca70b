package channel

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classview-backend/internal/realtime"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newQuizServer runs handle once per websocket connection and returns the
// ws:// URL to dial.
func newQuizServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readEnvelope(t *testing.T, conn *websocket.Conn) realtime.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	var env realtime.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("server got malformed frame: %v", err)
	}
	return env
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	data, _ := json.Marshal(payload)
	if err := conn.WriteJSON(realtime.Envelope{Event: event, Data: data}); err != nil {
		t.Fatalf("server write failed: %v", err)
	}
}

// ackJoin consumes the join frame and replies session_joined with the given
// participant count.
func ackJoin(t *testing.T, conn *websocket.Conn, count int) realtime.JoinRequest {
	t.Helper()
	env := readEnvelope(t, conn)
	if env.Event != realtime.EventJoinSession {
		t.Fatalf("expected join_session, got %q", env.Event)
	}
	var join realtime.JoinRequest
	json.Unmarshal(env.Data, &join)
	sendEnvelope(t, conn, realtime.EventSessionJoined, realtime.SessionJoinedPayload{ParticipantCount: count})
	return join
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func testIdentity() Identity {
	return Identity{SessionID: "S1", StudentID: "stu-1", StudentName: "Ada", StudentEmail: "ada@example.com"}
}

func TestConnectJoinsRoom(t *testing.T) {
	joins := make(chan realtime.JoinRequest, 1)
	endpoint := newQuizServer(t, func(conn *websocket.Conn) {
		joins <- ackJoin(t, conn, 5)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage() // hold until client disconnects
	})

	ch := New(testIdentity(), Options{Endpoint: endpoint, ReconnectAttempts: -1, Cue: func() {}})
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	join := <-joins

	// The join frame carries the identity under both namings.
	if join.SessionID != "S1" || join.SessionIDSnake != "S1" {
		t.Errorf("join session IDs = %q/%q, want S1 under both namings", join.SessionID, join.SessionIDSnake)
	}
	if join.StudentID != "stu-1" || join.StudentIDSnake != "stu-1" {
		t.Errorf("join student IDs = %q/%q, want stu-1 under both namings", join.StudentID, join.StudentIDSnake)
	}
	if join.Name != "Ada" || join.StudentName != "Ada" {
		t.Errorf("join names = %q/%q, want Ada under both namings", join.Name, join.StudentName)
	}

	waitFor(t, ch.IsJoined, "channel never reached joined state")
	if got := ch.ParticipantCount(); got != 5 {
		t.Errorf("ParticipantCount = %d, want 5", got)
	}
	if ch.State().String() != "joined" {
		t.Errorf("State = %q, want joined", ch.State())
	}
}

func TestQuizBroadcastSurfaced(t *testing.T) {
	endpoint := newQuizServer(t, func(conn *websocket.Conn) {
		ackJoin(t, conn, 1)
		sendEnvelope(t, conn, realtime.EventNewQuestion, map[string]interface{}{
			"session_id":  "S1",
			"question_id": "Q9",
			"question":    "2+2?",
			"options":     []string{"3", "4"},
			"time_limit":  30,
		})
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})

	quizzes := make(chan QuizPayload, 1)
	var cues int32
	ch := New(testIdentity(), Options{
		Endpoint:          endpoint,
		ReconnectAttempts: -1,
		OnQuiz:            func(q QuizPayload) { quizzes <- q },
		Cue:               func() { atomic.AddInt32(&cues, 1) },
	})
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	var q QuizPayload
	select {
	case q = <-quizzes:
	case <-time.After(2 * time.Second):
		t.Fatal("OnQuiz was never invoked")
	}

	if q.Type != "NEW_QUESTION" || q.SessionID != "S1" || q.QuestionID != "Q9" || q.Question != "2+2?" {
		t.Errorf("unexpected quiz payload: %+v", q)
	}
	if len(q.Options) != 2 || q.Options[0] != "3" || q.Options[1] != "4" {
		t.Errorf("options = %v, want [3 4]", q.Options)
	}
	if q.TimeLimit != 30 {
		t.Errorf("time limit = %d, want 30", q.TimeLimit)
	}

	waitFor(t, func() bool { return atomic.LoadInt32(&cues) == 1 }, "cue was never played")

	held := ch.CurrentQuiz()
	if held == nil || held.QuestionID != "Q9" {
		t.Fatalf("CurrentQuiz = %+v, want held Q9", held)
	}

	// The copy is isolated from channel state.
	held.Question = "mutated"
	if ch.CurrentQuiz().Question != "2+2?" {
		t.Error("mutating the returned quiz leaked into channel state")
	}

	ch.ClearQuiz()
	if ch.CurrentQuiz() != nil {
		t.Error("ClearQuiz left a quiz behind")
	}
	if !ch.IsJoined() {
		t.Error("ClearQuiz must not touch connection state")
	}
}

func TestForeignSessionQuizDropped(t *testing.T) {
	endpoint := newQuizServer(t, func(conn *websocket.Conn) {
		ackJoin(t, conn, 1)
		sendEnvelope(t, conn, realtime.EventQuiz, map[string]interface{}{
			"session_id": "S2",
			"question":   "should not surface",
		})
		sendEnvelope(t, conn, realtime.EventQuiz, map[string]interface{}{
			"session_id": "S1",
			"question":   "should surface",
		})
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})

	quizzes := make(chan QuizPayload, 2)
	ch := New(testIdentity(), Options{
		Endpoint:          endpoint,
		ReconnectAttempts: -1,
		OnQuiz:            func(q QuizPayload) { quizzes <- q },
		Cue:               func() {},
	})
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	select {
	case q := <-quizzes:
		if q.Question != "should surface" {
			t.Fatalf("foreign-session quiz surfaced: %+v", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-session quiz never surfaced")
	}

	if got := ch.DroppedEvents(); got != 1 {
		t.Errorf("DroppedEvents = %d, want 1", got)
	}
}

func TestQuizWithoutSessionIDSurfaces(t *testing.T) {
	// Broadcasts with no session scoping predate the filter; they pass through.
	endpoint := newQuizServer(t, func(conn *websocket.Conn) {
		ackJoin(t, conn, 1)
		sendEnvelope(t, conn, realtime.EventQuiz, map[string]interface{}{"question": "unscoped"})
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})

	quizzes := make(chan QuizPayload, 1)
	ch := New(testIdentity(), Options{
		Endpoint:          endpoint,
		ReconnectAttempts: -1,
		OnQuiz:            func(q QuizPayload) { quizzes <- q },
		Cue:               func() {},
	})
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	select {
	case q := <-quizzes:
		if q.Question != "unscoped" {
			t.Fatalf("unexpected quiz: %+v", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unscoped quiz never surfaced")
	}
	if ch.DroppedEvents() != 0 {
		t.Errorf("DroppedEvents = %d, want 0", ch.DroppedEvents())
	}
}

func TestParticipantCountTracksStudentJoins(t *testing.T) {
	endpoint := newQuizServer(t, func(conn *websocket.Conn) {
		ackJoin(t, conn, 1)
		sendEnvelope(t, conn, realtime.EventStudentJoined, realtime.StudentJoinedPayload{
			StudentID: "stu-2", ParticipantCount: 2,
		})
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})

	ch := New(testIdentity(), Options{Endpoint: endpoint, ReconnectAttempts: -1, Cue: func() {}})
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	waitFor(t, func() bool { return ch.ParticipantCount() == 2 },
		"participant count never reached 2")
}

func TestServerErrorRecorded(t *testing.T) {
	endpoint := newQuizServer(t, func(conn *websocket.Conn) {
		ackJoin(t, conn, 1)
		sendEnvelope(t, conn, realtime.EventError, realtime.ErrorPayload{Message: "room is closed"})
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})

	ch := New(testIdentity(), Options{Endpoint: endpoint, ReconnectAttempts: -1, Cue: func() {}})
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	waitFor(t, func() bool { return ch.LastError() == "room is closed" },
		"server error never recorded")

	// An error event does not tear down the connection.
	if !ch.IsConnected() {
		t.Error("error event must not disconnect the channel")
	}
}

func TestConnectNoOpConditions(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		ch := New(testIdentity(), Options{Endpoint: "ws://127.0.0.1:1", Disabled: true})
		if err := ch.Connect(context.Background()); err != nil {
			t.Fatalf("disabled Connect returned error: %v", err)
		}
		if ch.State() != Disconnected {
			t.Errorf("State = %v, want Disconnected", ch.State())
		}
	})

	t.Run("incomplete identity", func(t *testing.T) {
		ch := New(Identity{SessionID: "S1"}, Options{Endpoint: "ws://127.0.0.1:1"})
		if err := ch.Connect(context.Background()); err != nil {
			t.Fatalf("incomplete-identity Connect returned error: %v", err)
		}
		if ch.State() != Disconnected {
			t.Errorf("State = %v, want Disconnected", ch.State())
		}
	})

	t.Run("already connected", func(t *testing.T) {
		endpoint := newQuizServer(t, func(conn *websocket.Conn) {
			ackJoin(t, conn, 1)
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			conn.ReadMessage()
		})

		ch := New(testIdentity(), Options{Endpoint: endpoint, ReconnectAttempts: -1, Cue: func() {}})
		if err := ch.Connect(context.Background()); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		defer ch.Disconnect()
		waitFor(t, ch.IsJoined, "channel never joined")

		if err := ch.Connect(context.Background()); err != nil {
			t.Fatalf("second Connect returned error: %v", err)
		}
		if !ch.IsJoined() {
			t.Error("second Connect disturbed an established connection")
		}
	})
}

func TestConcurrentConnectOpensOneTransport(t *testing.T) {
	var conns int32
	endpoint := newQuizServer(t, func(conn *websocket.Conn) {
		atomic.AddInt32(&conns, 1)
		ackJoin(t, conn, 1)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})

	// A slow dial widens the window in which a second Connect could slip past
	// the single-connection guard.
	slowDialer := &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			time.Sleep(100 * time.Millisecond)
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}

	ch := New(testIdentity(), Options{
		Endpoint:          endpoint,
		ReconnectAttempts: -1,
		Cue:               func() {},
		Dialer:            slowDialer,
	})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ch.Connect(context.Background()); err != nil {
				t.Errorf("Connect failed: %v", err)
			}
		}()
	}
	wg.Wait()
	defer ch.Disconnect()

	waitFor(t, ch.IsJoined, "channel never joined")
	time.Sleep(150 * time.Millisecond) // room for a second dial to land, if any
	if got := atomic.LoadInt32(&conns); got != 1 {
		t.Errorf("server saw %d transports for one identity, want 1", got)
	}
}

func TestDispatchIgnoresSupersededReader(t *testing.T) {
	surfaced := make(chan QuizPayload, 1)
	ch := New(testIdentity(), Options{
		Endpoint:          "ws://127.0.0.1:1",
		ReconnectAttempts: -1,
		OnQuiz:            func(q QuizPayload) { surfaced <- q },
		Cue:               func() {},
	})
	ch.gen = 2 // a reconnect happened after the reader below was spawned

	env := realtime.Envelope{
		Event: realtime.EventQuiz,
		Data:  json.RawMessage(`{"session_id":"S1","question":"from old transport"}`),
	}
	if ch.dispatch(env, 1) {
		t.Error("dispatch accepted a frame from a superseded transport")
	}

	select {
	case q := <-surfaced:
		t.Errorf("stale quiz reached the consumer: %+v", q)
	default:
	}
	if ch.CurrentQuiz() != nil {
		t.Error("stale quiz was stored")
	}
}

func TestNewKeepsExplicitNoCue(t *testing.T) {
	ch := New(testIdentity(), Options{Endpoint: "ws://127.0.0.1:1", Cue: NoCue})
	if reflect.ValueOf(ch.opts.Cue).Pointer() == reflect.ValueOf(TerminalBell).Pointer() {
		t.Error("explicit NoCue was replaced by the TerminalBell default")
	}

	silent := New(testIdentity(), Options{Endpoint: "ws://127.0.0.1:1"})
	if reflect.ValueOf(silent.opts.Cue).Pointer() != reflect.ValueOf(TerminalBell).Pointer() {
		t.Error("nil Cue did not default to TerminalBell")
	}
}

func TestConnectDialFailure(t *testing.T) {
	ch := New(testIdentity(), Options{Endpoint: "ws://127.0.0.1:1", ReconnectAttempts: -1})

	err := ch.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect to a dead endpoint succeeded")
	}
	if ch.State() != Disconnected {
		t.Errorf("State = %v, want Disconnected", ch.State())
	}
	if !strings.Contains(ch.LastError(), "connect failed") {
		t.Errorf("LastError = %q, want a connect failure message", ch.LastError())
	}

	// The channel stays usable: a later Connect against a live endpoint works.
	endpoint := newQuizServer(t, func(conn *websocket.Conn) {
		ackJoin(t, conn, 1)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})
	ch.opts.Endpoint = endpoint
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("recovery Connect failed: %v", err)
	}
	defer ch.Disconnect()
	waitFor(t, ch.IsJoined, "channel never joined after recovery")
	if ch.LastError() != "" {
		t.Errorf("LastError = %q, want cleared on successful connect", ch.LastError())
	}
}

func TestDisconnectEmitsLeave(t *testing.T) {
	leaves := make(chan realtime.LeaveRequest, 1)
	endpoint := newQuizServer(t, func(conn *websocket.Conn) {
		ackJoin(t, conn, 1)
		env := readEnvelope(t, conn)
		if env.Event == realtime.EventLeaveSession {
			var leave realtime.LeaveRequest
			json.Unmarshal(env.Data, &leave)
			leaves <- leave
		}
	})

	ch := New(testIdentity(), Options{Endpoint: endpoint, ReconnectAttempts: -1, Cue: func() {}})
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, ch.IsJoined, "channel never joined")

	ch.Disconnect()

	select {
	case leave := <-leaves:
		if leave.SessionID != "S1" || leave.StudentID != "stu-1" {
			t.Errorf("leave = %+v, want S1/stu-1", leave)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("leave_session was never emitted")
	}

	if ch.State() != Disconnected {
		t.Errorf("State = %v, want Disconnected", ch.State())
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	ch := New(testIdentity(), Options{Endpoint: "ws://127.0.0.1:1", ReconnectAttempts: -1})

	// No prior Connect: still safe.
	ch.Disconnect()
	ch.Disconnect()

	if ch.State() != Disconnected {
		t.Errorf("State = %v, want Disconnected", ch.State())
	}
}

func TestDisconnectAfterTransportDeath(t *testing.T) {
	// When the transport is already dead the leave emit fails, but the channel
	// still ends Disconnected.
	endpoint := newQuizServer(t, func(conn *websocket.Conn) {
		ackJoin(t, conn, 1)
		conn.Close()
	})

	ch := New(testIdentity(), Options{Endpoint: endpoint, ReconnectAttempts: -1, Cue: func() {}})
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitFor(t, func() bool { return ch.State() == Disconnected },
		"channel never noticed the dead transport")

	ch.Disconnect()
	if ch.State() != Disconnected {
		t.Errorf("State = %v, want Disconnected", ch.State())
	}
}

func TestRedialAfterUnexpectedClose(t *testing.T) {
	var conns int32
	endpoint := newQuizServer(t, func(conn *websocket.Conn) {
		n := atomic.AddInt32(&conns, 1)
		ackJoin(t, conn, int(n))
		if n == 1 {
			conn.Close() // abrupt close, no close frame
			return
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})

	ch := New(testIdentity(), Options{
		Endpoint:          endpoint,
		ReconnectAttempts: 3,
		ReconnectDelay:    20 * time.Millisecond,
		Cue:               func() {},
	})
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	waitFor(t, func() bool { return ch.IsJoined() && ch.ParticipantCount() == 2 },
		"channel never rejoined after the drop")
	if got := atomic.LoadInt32(&conns); got != 2 {
		t.Errorf("server saw %d connections, want 2", got)
	}
}

func TestDisconnectStopsRedial(t *testing.T) {
	var conns int32
	endpoint := newQuizServer(t, func(conn *websocket.Conn) {
		atomic.AddInt32(&conns, 1)
		ackJoin(t, conn, 1)
		conn.Close()
	})

	ch := New(testIdentity(), Options{
		Endpoint:          endpoint,
		ReconnectAttempts: 5,
		ReconnectDelay:    20 * time.Millisecond,
		Cue:               func() {},
	})
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitFor(t, func() bool { return ch.State() == Disconnected },
		"channel never noticed the drop")
	ch.Disconnect()

	before := atomic.LoadInt32(&conns)
	time.Sleep(100 * time.Millisecond)
	after := atomic.LoadInt32(&conns)
	if after != before {
		t.Errorf("redial continued after Disconnect: %d -> %d connections", before, after)
	}
	if ch.State() != Disconnected {
		t.Errorf("State = %v, want Disconnected", ch.State())
	}
}

func TestTokenAppendedToEndpoint(t *testing.T) {
	tokens := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens <- r.URL.Query().Get("token")
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ackJoin(t, conn, 1)
	}))
	t.Cleanup(srv.Close)

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	ch := New(testIdentity(), Options{Endpoint: endpoint, Token: "tok-123", ReconnectAttempts: -1, Cue: func() {}})
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer ch.Disconnect()

	select {
	case tok := <-tokens:
		if tok != "tok-123" {
			t.Errorf("token = %q, want tok-123", tok)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the dial")
	}
}

func TestSeparateChannelsPerSession(t *testing.T) {
	// A session change means a fresh channel: each joins its own room.
	joins := make(chan realtime.JoinRequest, 2)
	endpoint := newQuizServer(t, func(conn *websocket.Conn) {
		joins <- ackJoin(t, conn, 1)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	})

	first := New(testIdentity(), Options{Endpoint: endpoint, ReconnectAttempts: -1, Cue: func() {}})
	if err := first.Connect(context.Background()); err != nil {
		t.Fatalf("first Connect failed: %v", err)
	}
	waitFor(t, first.IsJoined, "first channel never joined")
	first.Disconnect()

	second := New(Identity{SessionID: "S2", StudentID: "stu-1"}, Options{Endpoint: endpoint, ReconnectAttempts: -1, Cue: func() {}})
	if err := second.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	defer second.Disconnect()
	waitFor(t, second.IsJoined, "second channel never joined")

	if s := (<-joins).Session(); s != "S1" {
		t.Errorf("first join session = %q, want S1", s)
	}
	if s := (<-joins).Session(); s != "S2" {
		t.Errorf("second join session = %q, want S2", s)
	}

	if first.State() != Disconnected {
		t.Errorf("first channel State = %v, want Disconnected", first.State())
	}
}

func TestEndpointFromEnv(t *testing.T) {
	t.Setenv("CLASSVIEW_REALTIME_URL", "")
	t.Setenv("REALTIME_URL", "")
	if got := EndpointFromEnv(); got != defaultEndpoint {
		t.Errorf("EndpointFromEnv() = %q, want default", got)
	}

	t.Setenv("REALTIME_URL", "ws://fallback:9000/ws")
	if got := EndpointFromEnv(); got != "ws://fallback:9000/ws" {
		t.Errorf("EndpointFromEnv() = %q, want REALTIME_URL value", got)
	}

	t.Setenv("CLASSVIEW_REALTIME_URL", "ws://primary:9000/ws")
	if got := EndpointFromEnv(); got != "ws://primary:9000/ws" {
		t.Errorf("EndpointFromEnv() = %q, want CLASSVIEW_REALTIME_URL value", got)
	}
}
