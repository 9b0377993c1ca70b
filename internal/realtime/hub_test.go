package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

const testSecret = "hub-test-secret"

func mintToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// newHubServer runs a single-node hub (no redis) behind httptest and returns
// the hub plus the ws:// URL to dial.
func newHubServer(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(nil, testSecret)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialHub(t *testing.T, wsURL, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	data, _ := json.Marshal(payload)
	if err := conn.WriteJSON(Envelope{Event: event, Data: data}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return env
}

func joinSession(t *testing.T, conn *websocket.Conn, sessionID, studentID string) SessionJoinedPayload {
	t.Helper()
	sendFrame(t, conn, EventJoinSession, JoinRequest{SessionID: sessionID, StudentID: studentID})
	env := readFrame(t, conn)
	if env.Event != EventSessionJoined {
		t.Fatalf("expected session_joined, got %q", env.Event)
	}
	var ack SessionJoinedPayload
	json.Unmarshal(env.Data, &ack)
	return ack
}

func TestHandleWebSocketRequiresToken(t *testing.T) {
	_, wsURL := newHubServer(t)

	tests := []struct {
		name string
		url  string
	}{
		{"missing token", wsURL},
		{"garbage token", wsURL + "?token=not-a-jwt"},
		{"wrong secret", wsURL + "?token=" + mintToken(t, "some-other-secret")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tc.url, nil)
			if err == nil {
				t.Fatal("dial succeeded without valid auth")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("expected 401 handshake response, got %+v", resp)
			}
		})
	}
}

func TestJoinSessionAcksWithCount(t *testing.T) {
	hub, wsURL := newHubServer(t)
	token := mintToken(t, testSecret)

	conn := dialHub(t, wsURL, token)
	ack := joinSession(t, conn, "S1", "stu-1")

	if ack.ParticipantCount != 1 {
		t.Errorf("participant_count = %d, want 1", ack.ParticipantCount)
	}
	if got := hub.ParticipantCount("S1"); got != 1 {
		t.Errorf("hub.ParticipantCount = %d, want 1", got)
	}
}

func TestJoinSessionAcceptsSnakeCaseIdentity(t *testing.T) {
	_, wsURL := newHubServer(t)
	token := mintToken(t, testSecret)

	conn := dialHub(t, wsURL, token)
	sendFrame(t, conn, EventJoinSession, map[string]string{
		"session_id": "S1",
		"student_id": "stu-1",
	})

	env := readFrame(t, conn)
	if env.Event != EventSessionJoined {
		t.Fatalf("expected session_joined, got %q", env.Event)
	}
}

func TestJoinSessionRejectsIncompleteIdentity(t *testing.T) {
	hub, wsURL := newHubServer(t)
	token := mintToken(t, testSecret)

	conn := dialHub(t, wsURL, token)
	sendFrame(t, conn, EventJoinSession, JoinRequest{SessionID: "S1"})

	env := readFrame(t, conn)
	if env.Event != EventError {
		t.Fatalf("expected error, got %q", env.Event)
	}
	if hub.ParticipantCount("S1") != 0 {
		t.Error("incomplete join still entered the room")
	}
}

func TestSecondJoinerNotifiesRoom(t *testing.T) {
	_, wsURL := newHubServer(t)
	token := mintToken(t, testSecret)

	first := dialHub(t, wsURL, token)
	joinSession(t, first, "S1", "stu-1")

	second := dialHub(t, wsURL, token)
	ack := joinSession(t, second, "S1", "stu-2")
	if ack.ParticipantCount != 2 {
		t.Errorf("second joiner saw count %d, want 2", ack.ParticipantCount)
	}

	// The earlier member hears about the new arrival; the joiner does not get
	// its own student_joined_session echo.
	env := readFrame(t, first)
	if env.Event != EventStudentJoined {
		t.Fatalf("expected student_joined_session, got %q", env.Event)
	}
	var joined StudentJoinedPayload
	json.Unmarshal(env.Data, &joined)
	if joined.StudentID != "stu-2" || joined.ParticipantCount != 2 {
		t.Errorf("student_joined_session = %+v, want stu-2 with count 2", joined)
	}
}

func TestBroadcastQuestionReachesRoomOnly(t *testing.T) {
	hub, wsURL := newHubServer(t)
	token := mintToken(t, testSecret)

	inRoom := dialHub(t, wsURL, token)
	joinSession(t, inRoom, "S1", "stu-1")

	otherRoom := dialHub(t, wsURL, token)
	joinSession(t, otherRoom, "S2", "stu-2")

	broadcast := QuestionBroadcast{
		SessionID:   "S1",
		QuestionID:  "Q9",
		Question:    "2+2?",
		Options:     []string{"3", "4"},
		TimeLimit:   30,
		TriggeredAt: "2026-08-31T10:00:00Z",
	}
	if err := hub.BroadcastQuestion(context.Background(), broadcast); err != nil {
		t.Fatalf("BroadcastQuestion failed: %v", err)
	}

	env := readFrame(t, inRoom)
	if env.Event != EventNewQuestion {
		t.Fatalf("expected NEW_QUESTION, got %q", env.Event)
	}
	var got QuestionBroadcast
	json.Unmarshal(env.Data, &got)
	if got.QuestionID != "Q9" || got.Question != "2+2?" || got.TimeLimit != 30 {
		t.Errorf("broadcast payload = %+v", got)
	}
	if len(got.Options) != 2 {
		t.Errorf("options = %v, want two entries", got.Options)
	}

	// The other room stays silent.
	otherRoom.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var stray Envelope
	if err := otherRoom.ReadJSON(&stray); err == nil {
		t.Errorf("other room received %q, want nothing", stray.Event)
	}
}

func TestLeaveSessionEmptiesRoom(t *testing.T) {
	hub, wsURL := newHubServer(t)
	token := mintToken(t, testSecret)

	conn := dialHub(t, wsURL, token)
	joinSession(t, conn, "S1", "stu-1")

	sendFrame(t, conn, EventLeaveSession, nil)

	deadline := time.Now().Add(2 * time.Second)
	for hub.ParticipantCount("S1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room never emptied after leave_session")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDisconnectEmptiesRoom(t *testing.T) {
	hub, wsURL := newHubServer(t)
	token := mintToken(t, testSecret)

	conn := dialHub(t, wsURL, token)
	joinSession(t, conn, "S1", "stu-1")
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ParticipantCount("S1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room never emptied after the socket dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRejoinMovesRooms(t *testing.T) {
	hub, wsURL := newHubServer(t)
	token := mintToken(t, testSecret)

	conn := dialHub(t, wsURL, token)
	joinSession(t, conn, "S1", "stu-1")
	joinSession(t, conn, "S2", "stu-1")

	if got := hub.ParticipantCount("S1"); got != 0 {
		t.Errorf("old room count = %d, want 0", got)
	}
	if got := hub.ParticipantCount("S2"); got != 1 {
		t.Errorf("new room count = %d, want 1", got)
	}
}

func TestMalformedFrameGetsError(t *testing.T) {
	_, wsURL := newHubServer(t)
	token := mintToken(t, testSecret)

	conn := dialHub(t, wsURL, token)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	env := readFrame(t, conn)
	if env.Event != EventError {
		t.Fatalf("expected error, got %q", env.Event)
	}
	var p ErrorPayload
	json.Unmarshal(env.Data, &p)
	if p.Message != "malformed frame" {
		t.Errorf("error message = %q, want malformed frame", p.Message)
	}
}
