package repository

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"classview-backend/internal/models"
)

type CourseRepo struct {
	pool *pgxpool.Pool
}

func NewCourseRepo(pool *pgxpool.Pool) *CourseRepo {
	return &CourseRepo{pool: pool}
}

const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newJoinCode generates a 6-character course code. Ambiguous characters are
// excluded from the alphabet.
func newJoinCode() string {
	code := make([]byte, 6)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(joinCodeAlphabet))))
		if err != nil {
			code[i] = joinCodeAlphabet[0]
			continue
		}
		code[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(code)
}

func (r *CourseRepo) Create(ctx context.Context, c *models.Course) error {
	c.ID = uuid.New()
	c.Code = newJoinCode()

	query := `INSERT INTO courses (id, instructor_id, title, code, description)
		VALUES ($1, $2, $3, $4, $5) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		c.ID, c.InstructorID, c.Title, c.Code, c.Description,
	).Scan(&c.CreatedAt)
}

func (r *CourseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	c := &models.Course{}
	query := `SELECT id, instructor_id, title, code, description, archived_at, created_at
		FROM courses WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.InstructorID, &c.Title, &c.Code, &c.Description, &c.ArchivedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CourseRepo) GetByCode(ctx context.Context, code string) (*models.Course, error) {
	c := &models.Course{}
	query := `SELECT id, instructor_id, title, code, description, archived_at, created_at
		FROM courses WHERE code = $1 AND archived_at IS NULL`

	err := r.pool.QueryRow(ctx, query, code).Scan(
		&c.ID, &c.InstructorID, &c.Title, &c.Code, &c.Description, &c.ArchivedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CourseRepo) ListByInstructor(ctx context.Context, instructorID uuid.UUID) ([]*models.Course, error) {
	query := `SELECT id, instructor_id, title, code, description, archived_at, created_at
		FROM courses WHERE instructor_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, instructorID)
}

func (r *CourseRepo) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*models.Course, error) {
	query := `SELECT c.id, c.instructor_id, c.title, c.code, c.description, c.archived_at, c.created_at
		FROM courses c
		JOIN enrollments e ON e.course_id = c.id
		WHERE e.student_id = $1 AND c.archived_at IS NULL
		ORDER BY e.enrolled_at DESC`
	return r.list(ctx, query, studentID)
}

func (r *CourseRepo) list(ctx context.Context, query string, args ...interface{}) ([]*models.Course, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []*models.Course
	for rows.Next() {
		c := &models.Course{}
		err := rows.Scan(&c.ID, &c.InstructorID, &c.Title, &c.Code, &c.Description, &c.ArchivedAt, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, nil
}

func (r *CourseRepo) Update(ctx context.Context, id uuid.UUID, title, description *string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE courses SET title = COALESCE($1, title), description = COALESCE($2, description) WHERE id = $3`,
		title, description, id,
	)
	return err
}

func (r *CourseRepo) Archive(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE courses SET archived_at = NOW() WHERE id = $1", id)
	return err
}

// Enrollments

func (r *CourseRepo) Enroll(ctx context.Context, courseID, studentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO enrollments (course_id, student_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		courseID, studentID,
	)
	return err
}

func (r *CourseRepo) IsEnrolled(ctx context.Context, courseID, studentID uuid.UUID) (bool, error) {
	var enrolled bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2)",
		courseID, studentID,
	).Scan(&enrolled)
	return enrolled, err
}

func (r *CourseRepo) Roster(ctx context.Context, courseID uuid.UUID) ([]*models.RosterEntry, error) {
	query := `SELECT u.id, u.full_name, u.email, e.enrolled_at
		FROM enrollments e
		JOIN users u ON u.id = e.student_id
		WHERE e.course_id = $1
		ORDER BY u.full_name`

	rows, err := r.pool.Query(ctx, query, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roster []*models.RosterEntry
	for rows.Next() {
		entry := &models.RosterEntry{}
		err := rows.Scan(&entry.StudentID, &entry.FullName, &entry.Email, &entry.EnrolledAt)
		if err != nil {
			return nil, err
		}
		roster = append(roster, entry)
	}
	return roster, nil
}

func (r *CourseRepo) EnrolledCount(ctx context.Context, courseID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM enrollments WHERE course_id = $1", courseID).Scan(&count)
	return count, err
}
