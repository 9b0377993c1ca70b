package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"classview-backend/internal/models"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, course_id, instructor_id, title, status, current_question_id, scheduled_for, started_at, ended_at, created_at`

func (r *SessionRepo) Create(ctx context.Context, s *models.LiveSession) error {
	s.ID = uuid.New()
	s.Status = models.SessionScheduled

	query := `INSERT INTO live_sessions (id, course_id, instructor_id, title, status, scheduled_for)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		s.ID, s.CourseID, s.InstructorID, s.Title, s.Status, s.ScheduledFor,
	).Scan(&s.CreatedAt)
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.LiveSession, error) {
	s := &models.LiveSession{}
	query := `SELECT ` + sessionColumns + ` FROM live_sessions WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.CourseID, &s.InstructorID, &s.Title, &s.Status, &s.CurrentQuestionID,
		&s.ScheduledFor, &s.StartedAt, &s.EndedAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]*models.LiveSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM live_sessions WHERE course_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.LiveSession
	for rows.Next() {
		s := &models.LiveSession{}
		err := rows.Scan(
			&s.ID, &s.CourseID, &s.InstructorID, &s.Title, &s.Status, &s.CurrentQuestionID,
			&s.ScheduledFor, &s.StartedAt, &s.EndedAt, &s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// ListUpcoming returns scheduled sessions starting within the given window,
// for reminder delivery.
func (r *SessionRepo) ListUpcoming(ctx context.Context, withinMinutes int) ([]*models.LiveSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM live_sessions
		WHERE status = 'scheduled' AND scheduled_for IS NOT NULL
		  AND scheduled_for BETWEEN NOW() AND NOW() + ($1 || ' minutes')::INTERVAL
		ORDER BY scheduled_for`

	rows, err := r.pool.Query(ctx, query, withinMinutes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.LiveSession
	for rows.Next() {
		s := &models.LiveSession{}
		err := rows.Scan(
			&s.ID, &s.CourseID, &s.InstructorID, &s.Title, &s.Status, &s.CurrentQuestionID,
			&s.ScheduledFor, &s.StartedAt, &s.EndedAt, &s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (r *SessionRepo) Start(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE live_sessions SET status = 'live', started_at = NOW() WHERE id = $1 AND status = 'scheduled'", id)
	return err
}

func (r *SessionRepo) End(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE live_sessions SET status = 'ended', ended_at = NOW(), current_question_id = NULL WHERE id = $1", id)
	return err
}

func (r *SessionRepo) SetCurrentQuestion(ctx context.Context, id, questionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE live_sessions SET current_question_id = $1 WHERE id = $2", questionID, id)
	return err
}

// Answers

func (r *SessionRepo) RecordAnswer(ctx context.Context, a *models.Answer) error {
	a.ID = uuid.New()

	// One answer per student per question; later submissions are rejected.
	query := `INSERT INTO answers (id, session_id, question_id, student_id, option_index, correct)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, question_id, student_id) DO NOTHING
		RETURNING answered_at`

	return r.pool.QueryRow(ctx, query,
		a.ID, a.SessionID, a.QuestionID, a.StudentID, a.OptionIndex, a.Correct,
	).Scan(&a.AnsweredAt)
}

func (r *SessionRepo) AnswerCounts(ctx context.Context, sessionID, questionID uuid.UUID) (total, correct int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE correct)
		 FROM answers WHERE session_id = $1 AND question_id = $2`,
		sessionID, questionID,
	).Scan(&total, &correct)
	return total, correct, err
}
