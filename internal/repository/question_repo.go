package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"classview-backend/internal/models"
)

type QuestionRepo struct {
	pool *pgxpool.Pool
}

func NewQuestionRepo(pool *pgxpool.Pool) *QuestionRepo {
	return &QuestionRepo{pool: pool}
}

func (r *QuestionRepo) Create(ctx context.Context, q *models.Question) error {
	q.ID = uuid.New()
	if q.Source == "" {
		q.Source = "manual"
	}
	if q.OptionsJSON == nil {
		q.OptionsJSON = json.RawMessage("[]")
	}

	query := `INSERT INTO questions (id, course_id, creator_id, text, options_json, correct_index, time_limit_seconds, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		q.ID, q.CourseID, q.CreatorID, q.Text, q.OptionsJSON, q.CorrectIndex, q.TimeLimitSeconds, q.Source,
	).Scan(&q.CreatedAt)
}

func (r *QuestionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	q := &models.Question{}
	query := `SELECT id, course_id, creator_id, text, options_json, correct_index, time_limit_seconds, source, created_at
		FROM questions WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&q.ID, &q.CourseID, &q.CreatorID, &q.Text, &q.OptionsJSON, &q.CorrectIndex,
		&q.TimeLimitSeconds, &q.Source, &q.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (r *QuestionRepo) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]*models.Question, error) {
	query := `SELECT id, course_id, creator_id, text, options_json, correct_index, time_limit_seconds, source, created_at
		FROM questions WHERE course_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		q := &models.Question{}
		err := rows.Scan(
			&q.ID, &q.CourseID, &q.CreatorID, &q.Text, &q.OptionsJSON, &q.CorrectIndex,
			&q.TimeLimitSeconds, &q.Source, &q.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func (r *QuestionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM questions WHERE id = $1", id)
	return err
}
