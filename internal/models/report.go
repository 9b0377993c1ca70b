package models

import (
	"time"

	"github.com/google/uuid"
)

// QuestionStat aggregates answers for one launched question.
type QuestionStat struct {
	QuestionID   uuid.UUID `json:"question_id"`
	Text         string    `json:"text"`
	AnswerCount  int       `json:"answer_count"`
	CorrectCount int       `json:"correct_count"`
	CorrectRate  float64   `json:"correct_rate"`
}

type LeaderboardEntry struct {
	StudentID    uuid.UUID `json:"student_id"`
	FullName     string    `json:"full_name"`
	CorrectCount int       `json:"correct_count"`
	AnswerCount  int       `json:"answer_count"`
}

type SessionReport struct {
	SessionID        uuid.UUID          `json:"session_id"`
	Title            string             `json:"title"`
	ParticipantCount int                `json:"participant_count"`
	QuestionStats    []QuestionStat     `json:"question_stats"`
	Leaderboard      []LeaderboardEntry `json:"leaderboard"`
	GeneratedAt      time.Time          `json:"generated_at"`
}

// CourseAnalytics summarizes engagement across a course's ended sessions.
type CourseAnalytics struct {
	CourseID          uuid.UUID `json:"course_id"`
	SessionCount      int       `json:"session_count"`
	EnrolledCount     int       `json:"enrolled_count"`
	AvgParticipation  float64   `json:"avg_participation"`
	AvgCorrectRate    float64   `json:"avg_correct_rate"`
	QuestionsLaunched int       `json:"questions_launched"`
	AnswersSubmitted  int       `json:"answers_submitted"`
}
