package realtime

import "encoding/json"

// Event names on the session channel. NEW_QUESTION and quiz both deliver a
// quiz broadcast; older hub builds used one, newer ones the other, and clients
// listen for both.
const (
	EventJoinSession   = "join_session"
	EventLeaveSession  = "leave_session"
	EventSessionJoined = "session_joined"
	EventNewQuestion   = "NEW_QUESTION"
	EventQuiz          = "quiz"
	EventStudentJoined = "student_joined_session"
	EventError         = "error"
)

// Envelope is the frame format on the wire: one named event plus its payload,
// as a JSON text frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest carries the identity under both field namings. The hub and some
// deployed clients disagree on casing; emitting both keeps every combination
// working until the contract is unified.
type JoinRequest struct {
	SessionID      string `json:"sessionId,omitempty"`
	SessionIDSnake string `json:"session_id,omitempty"`
	StudentID      string `json:"studentId,omitempty"`
	StudentIDSnake string `json:"student_id,omitempty"`
	Name           string `json:"name,omitempty"`
	StudentName    string `json:"studentName,omitempty"`
	Email          string `json:"email,omitempty"`
	StudentEmail   string `json:"studentEmail,omitempty"`
}

// Session returns the session ID under either naming.
func (j JoinRequest) Session() string {
	if j.SessionID != "" {
		return j.SessionID
	}
	return j.SessionIDSnake
}

// Student returns the student ID under either naming.
func (j JoinRequest) Student() string {
	if j.StudentID != "" {
		return j.StudentID
	}
	return j.StudentIDSnake
}

type LeaveRequest struct {
	SessionID string `json:"session_id"`
	StudentID string `json:"student_id"`
}

type SessionJoinedPayload struct {
	ParticipantCount int `json:"participant_count"`
}

type StudentJoinedPayload struct {
	StudentID        string `json:"student_id"`
	ParticipantCount int    `json:"participant_count"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// QuestionBroadcast is the hub-side quiz payload. The hub emits snake_case
// field names; clients normalize.
type QuestionBroadcast struct {
	SessionID   string   `json:"session_id"`
	QuestionID  string   `json:"question_id"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	TimeLimit   int      `json:"time_limit"`
	TriggeredAt string   `json:"triggered_at"`
}
