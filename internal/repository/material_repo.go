package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"classview-backend/internal/models"
)

type MaterialRepo struct {
	pool *pgxpool.Pool
}

func NewMaterialRepo(pool *pgxpool.Pool) *MaterialRepo {
	return &MaterialRepo{pool: pool}
}

func (r *MaterialRepo) Create(ctx context.Context, m *models.Material) error {
	m.ID = uuid.New()
	if m.Status == "" {
		m.Status = "pending"
	}
	if m.MetadataJSON == nil {
		m.MetadataJSON = json.RawMessage("{}")
	}

	query := `INSERT INTO materials (id, course_id, uploader_id, title, kind, status, source_url, file_path, metadata_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		m.ID, m.CourseID, m.UploaderID, m.Title, m.Kind, m.Status, m.SourceURL, m.FilePath, m.MetadataJSON,
	).Scan(&m.CreatedAt)
}

func (r *MaterialRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	m := &models.Material{}
	query := `SELECT id, course_id, uploader_id, title, kind, status, source_url, file_path, extracted_text, metadata_json, created_at
		FROM materials WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.CourseID, &m.UploaderID, &m.Title, &m.Kind, &m.Status,
		&m.SourceURL, &m.FilePath, &m.ExtractedText, &m.MetadataJSON, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MaterialRepo) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]*models.Material, error) {
	query := `SELECT id, course_id, uploader_id, title, kind, status, source_url, file_path, extracted_text, metadata_json, created_at
		FROM materials WHERE course_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var materials []*models.Material
	for rows.Next() {
		m := &models.Material{}
		err := rows.Scan(
			&m.ID, &m.CourseID, &m.UploaderID, &m.Title, &m.Kind, &m.Status,
			&m.SourceURL, &m.FilePath, &m.ExtractedText, &m.MetadataJSON, &m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	return materials, nil
}

func (r *MaterialRepo) UpdateText(ctx context.Context, id uuid.UUID, text string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE materials SET extracted_text = $1, status = 'ready' WHERE id = $2", text, id)
	return err
}

func (r *MaterialRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, "UPDATE materials SET status = $1 WHERE id = $2", status, id)
	return err
}

func (r *MaterialRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM materials WHERE id = $1", id)
	return err
}
