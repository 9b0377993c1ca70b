package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"classview-backend/internal/models"
)

type ReportRepo struct {
	pool *pgxpool.Pool
}

func NewReportRepo(pool *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{pool: pool}
}

// BuildSessionReport aggregates answers for one session into a report.
func (r *ReportRepo) BuildSessionReport(ctx context.Context, sessionID uuid.UUID) (*models.SessionReport, error) {
	report := &models.SessionReport{SessionID: sessionID, GeneratedAt: time.Now()}

	err := r.pool.QueryRow(ctx,
		"SELECT title FROM live_sessions WHERE id = $1", sessionID,
	).Scan(&report.Title)
	if err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx,
		"SELECT COUNT(DISTINCT student_id) FROM answers WHERE session_id = $1", sessionID,
	).Scan(&report.ParticipantCount)
	if err != nil {
		return nil, err
	}

	stats, err := r.questionStats(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	report.QuestionStats = stats

	leaderboard, err := r.leaderboard(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	report.Leaderboard = leaderboard

	return report, nil
}

func (r *ReportRepo) questionStats(ctx context.Context, sessionID uuid.UUID) ([]models.QuestionStat, error) {
	query := `SELECT q.id, q.text, COUNT(a.id), COUNT(a.id) FILTER (WHERE a.correct)
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE a.session_id = $1
		GROUP BY q.id, q.text
		ORDER BY MIN(a.answered_at)`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []models.QuestionStat
	for rows.Next() {
		s := models.QuestionStat{}
		if err := rows.Scan(&s.QuestionID, &s.Text, &s.AnswerCount, &s.CorrectCount); err != nil {
			return nil, err
		}
		if s.AnswerCount > 0 {
			s.CorrectRate = float64(s.CorrectCount) / float64(s.AnswerCount)
		}
		stats = append(stats, s)
	}
	return stats, nil
}

func (r *ReportRepo) leaderboard(ctx context.Context, sessionID uuid.UUID) ([]models.LeaderboardEntry, error) {
	query := `SELECT u.id, u.full_name, COUNT(a.id) FILTER (WHERE a.correct), COUNT(a.id)
		FROM answers a
		JOIN users u ON u.id = a.student_id
		WHERE a.session_id = $1
		GROUP BY u.id, u.full_name
		ORDER BY COUNT(a.id) FILTER (WHERE a.correct) DESC, u.full_name
		LIMIT 50`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		e := models.LeaderboardEntry{}
		if err := rows.Scan(&e.StudentID, &e.FullName, &e.CorrectCount, &e.AnswerCount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// WeeklyActivity counts an instructor's sessions and the answers submitted in
// them since the given time. Feeds the weekly digest email.
func (r *ReportRepo) WeeklyActivity(ctx context.Context, instructorID uuid.UUID, since time.Time) (sessionCount, answerCount int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM live_sessions
		 WHERE instructor_id = $1 AND status = 'ended' AND ended_at >= $2`,
		instructorID, since,
	).Scan(&sessionCount)
	if err != nil {
		return 0, 0, err
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(a.id) FROM answers a
		 JOIN live_sessions s ON s.id = a.session_id
		 WHERE s.instructor_id = $1 AND a.answered_at >= $2`,
		instructorID, since,
	).Scan(&answerCount)
	if err != nil {
		return 0, 0, err
	}

	return sessionCount, answerCount, nil
}

// BuildCourseAnalytics aggregates across a course's ended sessions.
func (r *ReportRepo) BuildCourseAnalytics(ctx context.Context, courseID uuid.UUID) (*models.CourseAnalytics, error) {
	a := &models.CourseAnalytics{CourseID: courseID}

	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM live_sessions WHERE course_id = $1 AND status = 'ended'", courseID,
	).Scan(&a.SessionCount)
	if err != nil {
		return nil, err
	}

	err = r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM enrollments WHERE course_id = $1", courseID,
	).Scan(&a.EnrolledCount)
	if err != nil {
		return nil, err
	}

	query := `SELECT COUNT(DISTINCT ans.question_id), COUNT(ans.id),
			COALESCE(AVG(CASE WHEN ans.correct THEN 1.0 ELSE 0.0 END), 0)
		FROM answers ans
		JOIN live_sessions s ON s.id = ans.session_id
		WHERE s.course_id = $1`

	err = r.pool.QueryRow(ctx, query, courseID).Scan(&a.QuestionsLaunched, &a.AnswersSubmitted, &a.AvgCorrectRate)
	if err != nil {
		return nil, err
	}

	if a.SessionCount > 0 && a.EnrolledCount > 0 {
		var participants int
		err = r.pool.QueryRow(ctx,
			`SELECT COUNT(DISTINCT (ans.session_id, ans.student_id))
			 FROM answers ans
			 JOIN live_sessions s ON s.id = ans.session_id
			 WHERE s.course_id = $1`,
			courseID,
		).Scan(&participants)
		if err != nil {
			return nil, err
		}
		a.AvgParticipation = float64(participants) / float64(a.SessionCount*a.EnrolledCount)
	}

	return a, nil
}
