package channel

import (
	"encoding/json"
	"strconv"
)

// QuizPayload is the canonical quiz broadcast surfaced to consumers. Type is
// the wire event name that delivered it ("quiz" or "NEW_QUESTION"), so a
// consumer can tell the two delivery paths apart without seeing the transport.
type QuizPayload struct {
	Type        string   `json:"type"`
	SessionID   string   `json:"sessionId"`
	QuestionID  string   `json:"questionId"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	TimeLimit   int      `json:"timeLimit"`
	TriggeredAt string   `json:"triggeredAt"`
}

// Wire aliases per canonical field, in preference order. Older hub builds emit
// snake_case while newer ones emit camelCase; both are accepted, and this
// table is the single place to retire the fallback once the hub contract is
// unified.
var (
	sessionIDAliases   = []string{"sessionId", "session_id"}
	questionIDAliases  = []string{"questionId", "question_id"}
	questionAliases    = []string{"question", "questionText", "question_text"}
	timeLimitAliases   = []string{"timeLimit", "time_limit"}
	triggeredAtAliases = []string{"triggeredAt", "triggered_at"}
)

// NormalizeQuiz folds either wire shape into the canonical payload. Missing
// fields stay zero valued.
func NormalizeQuiz(event string, data json.RawMessage) QuizPayload {
	var fields map[string]json.RawMessage
	json.Unmarshal(data, &fields)

	q := QuizPayload{Type: event}
	q.SessionID = pickString(fields, sessionIDAliases...)
	q.QuestionID = pickString(fields, questionIDAliases...)
	q.Question = pickString(fields, questionAliases...)
	q.Options = pickStrings(fields, "options")
	q.TimeLimit, _ = pickNumber(fields, timeLimitAliases...)
	q.TriggeredAt = pickString(fields, triggeredAtAliases...)
	return q
}

func pickString(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		// Numbers are stringified (timestamps arrive either way).
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return ""
}

func pickStrings(fields map[string]json.RawMessage, keys ...string) []string {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil && list != nil {
			return list
		}
	}
	return nil
}

func pickNumber(fields map[string]json.RawMessage, keys ...string) (int, bool) {
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return int(f), true
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if n, err := strconv.Atoi(s); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// pickCount reads a participant count out of a raw event payload.
func pickCount(data json.RawMessage, keys ...string) (int, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return 0, false
	}
	return pickNumber(fields, keys...)
}
