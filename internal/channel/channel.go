// Package channel implements the client side of the live-session quiz
// delivery channel: one websocket connection scoped to a session+student pair,
// joining the hub's room and surfacing quiz broadcasts as canonical payloads.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"classview-backend/internal/realtime"
)

const defaultEndpoint = "ws://localhost:8080/api/v1/ws/sessions"

// EndpointFromEnv resolves the realtime endpoint: CLASSVIEW_REALTIME_URL,
// then REALTIME_URL, then the local default.
func EndpointFromEnv() string {
	if v := os.Getenv("CLASSVIEW_REALTIME_URL"); v != "" {
		return v
	}
	if v := os.Getenv("REALTIME_URL"); v != "" {
		return v
	}
	return defaultEndpoint
}

// Identity scopes one channel to a session+student pair. It is immutable for
// the channel's lifetime; a different SessionID or StudentID means tearing the
// channel down and creating a new one.
type Identity struct {
	SessionID    string
	StudentID    string
	StudentName  string
	StudentEmail string
}

func (id Identity) complete() bool {
	return id.SessionID != "" && id.StudentID != ""
}

// State is the connection lifecycle. Transitions are driven only by Connect,
// Disconnect and transport events.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	JoinedRoom
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case JoinedRoom:
		return "joined"
	default:
		return "disconnected"
	}
}

type Options struct {
	// Endpoint overrides EndpointFromEnv().
	Endpoint string

	// Token is appended as the token query parameter for hub auth.
	Token string

	// Disabled suppresses Connect entirely, for consumers that mount before a
	// session is active.
	Disabled bool

	// OnQuiz is invoked for every surfaced quiz broadcast.
	OnQuiz func(QuizPayload)

	// Cue plays the local notification cue on quiz receipt. Defaults to
	// TerminalBell. It must not block.
	Cue func()

	// ReconnectAttempts bounds the automatic redial after an unexpected
	// close; ReconnectDelay is the fixed wait between attempts. Zero values
	// mean 5 attempts, 2s apart; a negative attempt count disables redial.
	// A quiz broadcast delivered during the gap is lost to this client.
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Channel owns one realtime connection. All state is mutated under one mutex;
// transport events are delivered by a single reader goroutine, so handlers
// never run concurrently with each other.
type Channel struct {
	identity Identity
	opts     Options

	mu       sync.Mutex
	conn     *websocket.Conn
	gen      int // connection generation; a stale reader's events are ignored
	state    State
	count    int
	quiz     *QuizPayload
	lastErr  string
	dropped  int
	detached bool // set by Disconnect, cleared by Connect
}

func New(identity Identity, opts Options) *Channel {
	if opts.Endpoint == "" {
		opts.Endpoint = EndpointFromEnv()
	}
	if opts.Cue == nil {
		opts.Cue = TerminalBell
	}
	if opts.ReconnectAttempts == 0 {
		opts.ReconnectAttempts = 5
	}
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Channel{identity: identity, opts: opts}
}

// Connect dials the hub and joins the session room. It is a no-op when the
// identity is incomplete, the channel is disabled, a connection already
// exists, or another Connect is mid-dial. Dial failures are recorded on
// LastError and returned; the channel stays usable and a later Connect may
// succeed.
func (c *Channel) Connect(ctx context.Context) error {
	if c.opts.Disabled || !c.identity.complete() {
		return nil
	}

	c.mu.Lock()
	if c.conn != nil || c.state == Connecting {
		// A live transport or an in-flight dial already owns the identity.
		c.mu.Unlock()
		return nil
	}
	c.detached = false
	c.state = Connecting
	c.mu.Unlock()

	conn, _, err := c.opts.Dialer.DialContext(ctx, c.endpointURL(), nil)
	if err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.lastErr = fmt.Sprintf("connect failed: %v", err)
		c.mu.Unlock()
		return fmt.Errorf("dial %s: %w", c.opts.Endpoint, err)
	}

	c.mu.Lock()
	if c.detached {
		// Disconnect raced the dial; honor it.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	c.state = Connected
	c.lastErr = ""
	c.mu.Unlock()

	if err := c.emitJoin(conn); err != nil {
		c.recordError(fmt.Sprintf("join emit failed: %v", err))
	}

	go c.readLoop(conn, gen)
	return nil
}

// Disconnect best-effort emits leave_session, then unconditionally closes the
// transport. The channel always ends Disconnected, whether or not the leave
// notification could be sent. Safe to call with no prior Connect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.detached = true
	c.gen++
	c.state = Disconnected
	c.mu.Unlock()

	if conn == nil {
		return
	}

	leave := realtime.LeaveRequest{SessionID: c.identity.SessionID, StudentID: c.identity.StudentID}
	if data, err := json.Marshal(leave); err == nil {
		conn.WriteJSON(realtime.Envelope{Event: realtime.EventLeaveSession, Data: data})
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
}

// ClearQuiz drops the held quiz payload without touching connection state.
func (c *Channel) ClearQuiz() {
	c.mu.Lock()
	c.quiz = nil
	c.mu.Unlock()
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Connected || c.state == JoinedRoom
}

func (c *Channel) IsJoined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == JoinedRoom
}

func (c *Channel) ParticipantCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// CurrentQuiz returns a copy of the latest surfaced quiz payload, or nil.
func (c *Channel) CurrentQuiz() *QuizPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quiz == nil {
		return nil
	}
	q := *c.quiz
	return &q
}

func (c *Channel) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// DroppedEvents counts quiz broadcasts discarded by the session filter.
func (c *Channel) DroppedEvents() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Channel) endpointURL() string {
	if c.opts.Token == "" {
		return c.opts.Endpoint
	}
	u, err := url.Parse(c.opts.Endpoint)
	if err != nil {
		return c.opts.Endpoint
	}
	q := u.Query()
	q.Set("token", c.opts.Token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Channel) emitJoin(conn *websocket.Conn) error {
	join := realtime.JoinRequest{
		SessionID:      c.identity.SessionID,
		SessionIDSnake: c.identity.SessionID,
		StudentID:      c.identity.StudentID,
		StudentIDSnake: c.identity.StudentID,
		Name:           c.identity.StudentName,
		StudentName:    c.identity.StudentName,
		Email:          c.identity.StudentEmail,
		StudentEmail:   c.identity.StudentEmail,
	}
	data, err := json.Marshal(join)
	if err != nil {
		return err
	}
	return conn.WriteJSON(realtime.Envelope{Event: realtime.EventJoinSession, Data: data})
}

func (c *Channel) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, gen, err)
			return
		}

		var env realtime.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("channel: dropping malformed frame: %v", err)
			continue
		}
		if !c.dispatch(env, gen) {
			// A newer connection owns the channel now.
			conn.Close()
			return
		}
	}
}

// dispatch applies one event from the reader at generation gen. It reports
// false when that reader has been superseded, so frames from a transport the
// channel no longer owns never reach the consumer.
func (c *Channel) dispatch(env realtime.Envelope, gen int) bool {
	switch env.Event {
	case realtime.EventSessionJoined:
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return false
		}
		c.state = JoinedRoom
		if n, ok := pickCount(env.Data, "participantCount", "participant_count"); ok {
			c.count = n
		}
		c.mu.Unlock()

	case realtime.EventStudentJoined:
		if n, ok := pickCount(env.Data, "participantCount", "participant_count"); ok {
			c.mu.Lock()
			if gen != c.gen {
				c.mu.Unlock()
				return false
			}
			c.count = n
			c.mu.Unlock()
		}

	case realtime.EventQuiz, realtime.EventNewQuestion:
		q := NormalizeQuiz(env.Event, env.Data)
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return false
		}
		if q.SessionID != "" && q.SessionID != c.identity.SessionID {
			// Stale or cross-session broadcast, e.g. delivered mid-reconnect.
			c.dropped++
			c.mu.Unlock()
			log.Printf("channel: dropped quiz for session %s while scoped to %s", q.SessionID, c.identity.SessionID)
			return true
		}
		c.quiz = &q
		c.mu.Unlock()
		if c.opts.OnQuiz != nil {
			c.opts.OnQuiz(q)
		}
		if c.opts.Cue != nil {
			c.opts.Cue()
		}

	case realtime.EventError:
		var p realtime.ErrorPayload
		json.Unmarshal(env.Data, &p)
		if p.Message == "" {
			p.Message = "server error"
		}
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return false
		}
		c.lastErr = p.Message
		c.mu.Unlock()
	}
	return true
}

func (c *Channel) handleClose(conn *websocket.Conn, gen int, err error) {
	conn.Close()

	c.mu.Lock()
	if gen != c.gen || c.detached {
		// Superseded by Disconnect or a newer connection.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Disconnected
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.lastErr = fmt.Sprintf("connection lost: %v", err)
	}
	retry := c.opts.ReconnectAttempts > 0
	c.mu.Unlock()

	if retry {
		go c.redial()
	}
}

// redial re-establishes the connection after an unexpected close: bounded
// attempts with a fixed delay, no backoff.
func (c *Channel) redial() {
	for i := 0; i < c.opts.ReconnectAttempts; i++ {
		time.Sleep(c.opts.ReconnectDelay)

		c.mu.Lock()
		stop := c.detached || c.conn != nil
		c.mu.Unlock()
		if stop {
			return
		}

		if err := c.Connect(context.Background()); err == nil {
			return
		}
	}
}

func (c *Channel) recordError(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
}
