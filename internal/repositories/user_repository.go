package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chat-server/internal/models"
)

// UserRepository abstracts account persistence.
type UserRepository interface {
	CreateUser(ctx context.Context, username, passwordHash string, profile models.Profile) error
	GetUser(ctx context.Context, username string) (models.User, error)
	GetProfile(ctx context.Context, username string) (models.Profile, error)
	UpdateProfile(ctx context.Context, username string, profile models.Profile) (models.Profile, error)
	IsAdmin(ctx context.Context, username string) (bool, error)
	SetAdmin(ctx context.Context, username string, admin bool) error
	DeleteUser(ctx context.Context, username string) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const profileColumns = `bio, avatar_url, status, theme, wallpaper, real_name, location, birth_date, social_link, is_admin`

// CreateUser inserts the account and its private notepad DM edge.
func (r *UserRepo) CreateUser(ctx context.Context, username, passwordHash string, profile models.Profile) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO users (username, password, `+profileColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		username, passwordHash, profile.Bio, profile.AvatarURL, profile.Status, profile.Theme, profile.Wallpaper,
		profile.RealName, profile.Location, profile.BirthDate, profile.SocialLink, profile.IsAdmin)
	if isUniqueViolation(err) {
		return ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO dms (user1, user2) VALUES ($1, $1)`, username); err != nil {
		return fmt.Errorf("insert notepad: %w", err)
	}
	return tx.Commit()
}

// GetUser fetches the account including its password hash.
func (r *UserRepo) GetUser(ctx context.Context, username string) (models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT username, password, `+profileColumns+` FROM users WHERE username=$1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

// GetProfile fetches the public profile.
func (r *UserRepo) GetProfile(ctx context.Context, username string) (models.Profile, error) {
	var p models.Profile
	err := r.db.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM users WHERE username=$1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrUserNotFound
	}
	return p, err
}

// UpdateProfile overwrites the editable fields. IsAdmin is only ever raised
// here, never cleared.
func (r *UserRepo) UpdateProfile(ctx context.Context, username string, p models.Profile) (models.Profile, error) {
	var out models.Profile
	err := r.db.GetContext(ctx, &out, `UPDATE users SET bio=$1, avatar_url=$2, status=$3, theme=$4, wallpaper=$5,
        real_name=$6, location=$7, birth_date=$8, social_link=$9, is_admin = is_admin OR $10
        WHERE username=$11
        RETURNING `+profileColumns,
		p.Bio, p.AvatarURL, p.Status, p.Theme, p.Wallpaper, p.RealName, p.Location, p.BirthDate, p.SocialLink, p.IsAdmin, username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrUserNotFound
	}
	return out, err
}

// IsAdmin reads the admin flag. Unknown users are not admins.
func (r *UserRepo) IsAdmin(ctx context.Context, username string) (bool, error) {
	var admin bool
	err := r.db.GetContext(ctx, &admin, `SELECT COALESCE((SELECT is_admin FROM users WHERE username=$1), FALSE)`, username)
	return admin, err
}

// SetAdmin sets the admin flag.
func (r *UserRepo) SetAdmin(ctx context.Context, username string, admin bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_admin=$1 WHERE username=$2`, admin, username)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes the account and everything tied to it: authored
// messages, messages of its DM channels, DM edges, memberships and requests.
func (r *UserRepo) DeleteUser(ctx context.Context, username string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	statements := []string{
		`DELETE FROM messages WHERE username=$1`,
		`DELETE FROM messages WHERE channel LIKE 'dm:%' AND (split_part(channel, ':', 2)=$1 OR split_part(channel, ':', 3)=$1)`,
		`DELETE FROM dms WHERE user1=$1 OR user2=$1`,
		`DELETE FROM group_members WHERE username=$1`,
		`DELETE FROM friend_requests WHERE sender=$1 OR receiver=$1`,
		`DELETE FROM users WHERE username=$1`,
	}
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt, username); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
	}
	return tx.Commit()
}
