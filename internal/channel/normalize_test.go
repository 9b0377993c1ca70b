package channel

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestNormalizeQuiz(t *testing.T) {
	tests := []struct {
		name  string
		event string
		data  string
		want  QuizPayload
	}{
		{
			name:  "snake_case NEW_QUESTION",
			event: "NEW_QUESTION",
			data:  `{"session_id":"S1","question_id":"Q9","question":"2+2?","options":["3","4"],"time_limit":30,"triggered_at":"2026-08-31T10:00:00Z"}`,
			want: QuizPayload{
				Type:        "NEW_QUESTION",
				SessionID:   "S1",
				QuestionID:  "Q9",
				Question:    "2+2?",
				Options:     []string{"3", "4"},
				TimeLimit:   30,
				TriggeredAt: "2026-08-31T10:00:00Z",
			},
		},
		{
			name:  "camelCase quiz",
			event: "quiz",
			data:  `{"sessionId":"S1","questionId":"Q9","question":"2+2?","options":["3","4"],"timeLimit":30,"triggeredAt":"2026-08-31T10:00:00Z"}`,
			want: QuizPayload{
				Type:        "quiz",
				SessionID:   "S1",
				QuestionID:  "Q9",
				Question:    "2+2?",
				Options:     []string{"3", "4"},
				TimeLimit:   30,
				TriggeredAt: "2026-08-31T10:00:00Z",
			},
		},
		{
			name:  "camelCase wins when both namings present",
			event: "quiz",
			data:  `{"sessionId":"S-camel","session_id":"S-snake","question":"Q"}`,
			want:  QuizPayload{Type: "quiz", SessionID: "S-camel", Question: "Q"},
		},
		{
			name:  "question text aliases",
			event: "quiz",
			data:  `{"question_text":"What is Go?","options":["a language"]}`,
			want:  QuizPayload{Type: "quiz", Question: "What is Go?", Options: []string{"a language"}},
		},
		{
			name:  "numeric IDs are stringified",
			event: "quiz",
			data:  `{"session_id":42,"question_id":7,"question":"?"}`,
			want:  QuizPayload{Type: "quiz", SessionID: "42", QuestionID: "7", Question: "?"},
		},
		{
			name:  "time limit as numeric string",
			event: "quiz",
			data:  `{"question":"?","time_limit":"45"}`,
			want:  QuizPayload{Type: "quiz", Question: "?", TimeLimit: 45},
		},
		{
			name:  "numeric triggered_at is stringified",
			event: "quiz",
			data:  `{"question":"?","triggeredAt":1756630800}`,
			want:  QuizPayload{Type: "quiz", Question: "?", TriggeredAt: "1756630800"},
		},
		{
			name:  "missing fields stay zero valued",
			event: "quiz",
			data:  `{}`,
			want:  QuizPayload{Type: "quiz"},
		},
		{
			name:  "malformed payload yields only the type",
			event: "NEW_QUESTION",
			data:  `"not an object"`,
			want:  QuizPayload{Type: "NEW_QUESTION"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeQuiz(tc.event, json.RawMessage(tc.data))
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("NormalizeQuiz() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestNormalizeQuizEquivalentShapes(t *testing.T) {
	camel := NormalizeQuiz("quiz", json.RawMessage(
		`{"sessionId":"S1","questionId":"Q9","question":"2+2?","options":["3","4"],"timeLimit":30}`))
	snake := NormalizeQuiz("quiz", json.RawMessage(
		`{"session_id":"S1","question_id":"Q9","question":"2+2?","options":["3","4"],"time_limit":30}`))

	if !reflect.DeepEqual(camel, snake) {
		t.Errorf("camelCase and snake_case payloads normalized differently:\n%+v\n%+v", camel, snake)
	}
}

func TestPickNumberRejectsGarbage(t *testing.T) {
	fields := map[string]json.RawMessage{
		"time_limit": json.RawMessage(`"soon"`),
	}
	if n, ok := pickNumber(fields, "time_limit"); ok {
		t.Errorf("expected no number, got %d", n)
	}
}
