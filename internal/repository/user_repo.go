package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"classview-backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, email, password_hash, full_name, role, avatar_url, is_verified, is_active, created_at, last_login_at`

func (r *UserRepo) scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.AvatarURL,
		&u.IsVerified, &u.IsActive, &u.CreatedAt, &u.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	u.ID = uuid.New()
	if u.Role == "" {
		u.Role = models.RoleStudent
	}

	query := `INSERT INTO users (id, email, password_hash, full_name, role, avatar_url, is_verified, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE) RETURNING created_at, is_active`

	return r.pool.QueryRow(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.FullName, u.Role, u.AvatarURL, u.IsVerified,
	).Scan(&u.CreatedAt, &u.IsActive)
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepo) VerifyEmail(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE users SET is_verified = TRUE WHERE id = $1", id)
	return err
}

func (r *UserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE users SET last_login_at = $1 WHERE id = $2", time.Now(), id)
	return err
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, fullName, avatarURL *string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET full_name = COALESCE($1, full_name), avatar_url = COALESCE($2, avatar_url) WHERE id = $3`,
		fullName, avatarURL, id,
	)
	return err
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	_, err := r.pool.Exec(ctx, "UPDATE users SET password_hash = $1 WHERE id = $2", passwordHash, id)
	return err
}

func (r *UserRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE users SET is_active = FALSE WHERE id = $1", id)
	return err
}

// Notification settings

func (r *UserRepo) CreateNotificationSettings(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notification_settings (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	return err
}

func (r *UserRepo) GetNotificationSettings(ctx context.Context, userID uuid.UUID) (*models.NotificationSettings, error) {
	s := &models.NotificationSettings{}
	query := `SELECT user_id, session_reminders, weekly_digest, updated_at FROM notification_settings WHERE user_id = $1`

	err := r.pool.QueryRow(ctx, query, userID).Scan(&s.UserID, &s.SessionReminders, &s.WeeklyDigest, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *UserRepo) UpdateNotificationSettings(ctx context.Context, userID uuid.UUID, sessionReminders, weeklyDigest bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_settings SET session_reminders = $1, weekly_digest = $2, updated_at = NOW() WHERE user_id = $3`,
		sessionReminders, weeklyDigest, userID,
	)
	return err
}

// ListDigestRecipients returns instructors who opted into the weekly digest.
func (r *UserRepo) ListDigestRecipients(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		JOIN notification_settings ns ON ns.user_id = users.id
		WHERE users.role = 'instructor' AND users.is_active AND ns.weekly_digest`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
