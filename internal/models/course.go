package models

import (
	"time"

	"github.com/google/uuid"
)

type Course struct {
	ID           uuid.UUID  `json:"id"`
	InstructorID uuid.UUID  `json:"instructor_id"`
	Title        string     `json:"title"`
	Code         string     `json:"code"` // short join code shared with students
	Description  *string    `json:"description"`
	ArchivedAt   *time.Time `json:"archived_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

type Enrollment struct {
	CourseID   uuid.UUID `json:"course_id"`
	StudentID  uuid.UUID `json:"student_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

type CreateCourseRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

type UpdateCourseRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type EnrollRequest struct {
	Code string `json:"code"`
}

// RosterEntry is one student row on an instructor's course roster.
type RosterEntry struct {
	StudentID  uuid.UUID `json:"student_id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	EnrolledAt time.Time `json:"enrolled_at"`
}
