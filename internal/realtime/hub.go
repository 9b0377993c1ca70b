package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// member is one connected participant. Writes are serialized per connection.
type member struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	studentID string
	sessionID string // room currently joined, empty if none
}

func (m *member) send(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub groups connections into per-session rooms and relays quiz broadcasts to
// them. Room membership gates delivery: only joined clients receive a
// session's events. With a redis client the hub also bridges broadcasts across
// nodes over pub/sub; with nil redis it is single-node.
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string]map[*member]struct{}
	redis     *redis.Client
	jwtSecret []byte
	cancels   map[string]context.CancelFunc
}

func NewHub(redisClient *redis.Client, jwtSecret string) *Hub {
	return &Hub{
		rooms:     make(map[string]map[*member]struct{}),
		redis:     redisClient,
		jwtSecret: []byte(jwtSecret),
		cancels:   make(map[string]context.CancelFunc),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	go h.readLoop(&member{conn: conn})
}

func (h *Hub) readLoop(m *member) {
	defer func() {
		h.leaveRoom(m)
		m.conn.Close()
	}()

	for {
		_, raw, err := m.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			m.send(Envelope{Event: EventError, Data: mustJSON(ErrorPayload{Message: "malformed frame"})})
			continue
		}

		switch env.Event {
		case EventJoinSession:
			h.handleJoin(m, env.Data)
		case EventLeaveSession:
			h.leaveRoom(m)
		}
	}
}

func (h *Hub) handleJoin(m *member, data json.RawMessage) {
	var req JoinRequest
	json.Unmarshal(data, &req)

	sessionID := req.Session()
	studentID := req.Student()
	if sessionID == "" || studentID == "" {
		m.send(Envelope{Event: EventError, Data: mustJSON(ErrorPayload{Message: "join_session requires session and student IDs"})})
		return
	}

	// Re-joining a different session implies leaving the old room.
	if m.sessionID != "" && m.sessionID != sessionID {
		h.leaveRoom(m)
	}

	h.mu.Lock()
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[*member]struct{})
		h.rooms[sessionID] = room

		// First participant brings up the cross-node bridge for this room.
		if h.redis != nil {
			ctx, cancel := context.WithCancel(context.Background())
			h.cancels[sessionID] = cancel
			go h.subscribeRoom(ctx, sessionID)
		}
	}
	m.studentID = studentID
	m.sessionID = sessionID
	room[m] = struct{}{}
	count := len(room)
	h.mu.Unlock()

	log.Printf("session %s: student %s joined (%d in room)", sessionID, studentID, count)

	m.send(Envelope{Event: EventSessionJoined, Data: mustJSON(SessionJoinedPayload{ParticipantCount: count})})
	h.broadcastLocal(sessionID, Envelope{
		Event: EventStudentJoined,
		Data:  mustJSON(StudentJoinedPayload{StudentID: studentID, ParticipantCount: count}),
	}, m)
}

func (h *Hub) leaveRoom(m *member) {
	if m.sessionID == "" {
		return
	}

	h.mu.Lock()
	sessionID := m.sessionID
	m.sessionID = ""
	room := h.rooms[sessionID]
	delete(room, m)
	if len(room) == 0 {
		delete(h.rooms, sessionID)
		if cancel, ok := h.cancels[sessionID]; ok {
			cancel()
			delete(h.cancels, sessionID)
		}
	}
	h.mu.Unlock()

	log.Printf("session %s: student %s left", sessionID, m.studentID)
}

func (h *Hub) subscribeRoom(ctx context.Context, sessionID string) {
	pubsub := h.redis.Subscribe(ctx, "session_events:"+sessionID)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			h.broadcastLocal(sessionID, env, nil)
		}
	}
}

func (h *Hub) broadcastLocal(sessionID string, env Envelope, except *member) {
	h.mu.RLock()
	members := make([]*member, 0, len(h.rooms[sessionID]))
	for m := range h.rooms[sessionID] {
		if m != except {
			members = append(members, m)
		}
	}
	h.mu.RUnlock()

	for _, m := range members {
		m.send(env)
	}
}

// BroadcastQuestion pushes a quiz broadcast to the session's room. With redis
// it goes through pub/sub so every node's room receives it; otherwise it is
// delivered to local members only.
func (h *Hub) BroadcastQuestion(ctx context.Context, q QuestionBroadcast) error {
	env := Envelope{Event: EventNewQuestion, Data: mustJSON(q)}

	if h.redis != nil {
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		return h.redis.Publish(ctx, "session_events:"+q.SessionID, string(data)).Err()
	}

	h.broadcastLocal(q.SessionID, env, nil)
	return nil
}

// ParticipantCount reports local room size.
func (h *Hub) ParticipantCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
