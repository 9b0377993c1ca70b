package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SessionScheduled = "scheduled"
	SessionLive      = "live"
	SessionEnded     = "ended"
)

type LiveSession struct {
	ID                uuid.UUID  `json:"id"`
	CourseID          uuid.UUID  `json:"course_id"`
	InstructorID      uuid.UUID  `json:"instructor_id"`
	Title             string     `json:"title"`
	Status            string     `json:"status"` // "scheduled" | "live" | "ended"
	CurrentQuestionID *uuid.UUID `json:"current_question_id"`
	ScheduledFor      *time.Time `json:"scheduled_for"`
	StartedAt         *time.Time `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

type CreateSessionRequest struct {
	CourseID     uuid.UUID  `json:"course_id"`
	Title        string     `json:"title"`
	ScheduledFor *time.Time `json:"scheduled_for"`
}

type LaunchQuestionRequest struct {
	QuestionID       uuid.UUID `json:"question_id"`
	TimeLimitSeconds *int      `json:"time_limit_seconds"` // overrides the question default when set
}

type Answer struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	QuestionID  uuid.UUID `json:"question_id"`
	StudentID   uuid.UUID `json:"student_id"`
	OptionIndex int       `json:"option_index"`
	Correct     bool      `json:"correct"`
	AnsweredAt  time.Time `json:"answered_at"`
}

type SubmitAnswerRequest struct {
	QuestionID  uuid.UUID `json:"question_id"`
	OptionIndex int       `json:"option_index"`
}
